package pipeline

import "github.com/dvloznov/receipt-validator/internal/domain"

// CompletenessReport tells how many of the key receipt fields were extracted.
type CompletenessReport struct {
	IsValid       bool     `json:"isValid"`
	MissingFields []string `json:"missingFields"`
	Completeness  float64  `json:"completeness"` // percentage, 0-100
}

// keyFields are the fields a usable receipt is expected to show.
var keyFields = []string{"amount", "date", "senderName", "receiverName", "operationNumber"}

// CheckCompleteness reports which key fields of record are missing.
func CheckCompleteness(record *domain.TransactionRecord) CompletenessReport {
	present := map[string]bool{
		"amount":          record.Amount.Valid,
		"date":            record.Date != nil,
		"senderName":      record.Sender != nil && record.Sender.Name != nil,
		"receiverName":    record.Receiver != nil && record.Receiver.Name != nil,
		"operationNumber": record.OperationNumber != nil,
	}

	missing := []string{}
	for _, f := range keyFields {
		if !present[f] {
			missing = append(missing, f)
		}
	}

	found := len(keyFields) - len(missing)
	return CompletenessReport{
		IsValid:       len(missing) == 0,
		MissingFields: missing,
		Completeness:  float64(found) / float64(len(keyFields)) * 100,
	}
}
