package pipeline

// Default values for receipt processing.
const (
	// DefaultModelName is the default Gemini model used for extraction.
	DefaultModelName = "gemini-2.5-flash"

	// maxAuditErrorLen bounds error text stored in audit rows.
	maxAuditErrorLen = 2000
)

// Stage names a step of the receipt ingest flow.
type Stage string

const (
	StageCreate   Stage = "create"
	StageDownload Stage = "download"
	StagePublish  Stage = "publish"
	StageExtract  Stage = "extract"
	StageUpdate   Stage = "update"
)

// Audit statuses of an extraction run.
const (
	RunStatusSuccess = "SUCCESS"
	RunStatusFailed  = "FAILED"
)
