package handlers

import "github.com/dvloznov/receipt-validator/internal/pipeline"

// Stable machine-readable error codes.
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeAdminUnavailable    = "UPSTREAM_ADMIN_UNAVAILABLE"
	CodeMediaDownload       = "MEDIA_DOWNLOAD_ERROR"
	CodeStorageUpload       = "STORAGE_UPLOAD_ERROR"
	CodeExtraction          = "EXTRACTION_ERROR"
	CodeReconciliationWrite = "RECONCILIATION_WRITE_ERROR"
	CodeGatewayLookup       = "GATEWAY_LOOKUP_ERROR"
	CodeNotFound            = "NOT_FOUND"
	CodeInternal            = "INTERNAL_ERROR"
)

type stageFailure struct {
	message string
	code    string
}

var stageFailures = map[pipeline.Stage]stageFailure{
	pipeline.StageCreate:   {"Failed to create request", CodeAdminUnavailable},
	pipeline.StageDownload: {"Failed to download image", CodeMediaDownload},
	pipeline.StagePublish:  {"Failed to upload image", CodeStorageUpload},
	pipeline.StageExtract:  {"Failed to analyze receipt", CodeExtraction},
	pipeline.StageUpdate:   {"Failed to update request", CodeReconciliationWrite},
}

func failureForStage(stage pipeline.Stage) stageFailure {
	if f, ok := stageFailures[stage]; ok {
		return f
	}
	return stageFailure{"Failed to process receipt", CodeInternal}
}
