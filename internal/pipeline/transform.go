package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dvloznov/receipt-validator/internal/domain"
	"github.com/dvloznov/receipt-validator/internal/logger"
	"github.com/shopspring/decimal"
)

// parseModelOutput decodes cleaned model JSON and transforms it into a record.
func parseModelOutput(ctx context.Context, clean string) (*domain.TransactionRecord, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(clean)))
	dec.UseNumber()

	var parsed interface{}
	if err := dec.Decode(&parsed); err != nil {
		return nil, newExtractionError(fmt.Errorf("unmarshal model JSON: %w", err))
	}

	obj, ok := parsed.(map[string]interface{})
	if !ok {
		return nil, newExtractionError(fmt.Errorf("model output is %T, want object", parsed))
	}

	record, err := transformModelOutputToRecord(ctx, obj)
	if err != nil {
		return nil, newExtractionError(err)
	}
	return record, nil
}

// transformModelOutputToRecord converts the generic model object into a TransactionRecord.
// Every declared field ends up set or nil; wrong JSON types fail the whole record.
func transformModelOutputToRecord(ctx context.Context, obj map[string]interface{}) (*domain.TransactionRecord, error) {
	amount, err := getOptionalDecimalField(obj, "amount")
	if err != nil {
		return nil, err
	}
	currency, err := getOptionalStringField(obj, "currency")
	if err != nil {
		return nil, err
	}
	date, err := getOptionalStringField(obj, "date")
	if err != nil {
		return nil, err
	}
	sender, err := getOptionalPartyField(obj, "sender")
	if err != nil {
		return nil, err
	}
	receiver, err := getOptionalPartyField(obj, "receiver")
	if err != nil {
		return nil, err
	}
	operationNumber, err := getOptionalReferenceField(obj, "operationNumber")
	if err != nil {
		return nil, err
	}
	gatewayID, err := getOptionalStringField(obj, "gatewayId")
	if err != nil {
		return nil, err
	}
	transactionType, err := getOptionalStringField(obj, "transactionType")
	if err != nil {
		return nil, err
	}
	platform, err := getOptionalStringField(obj, "platform")
	if err != nil {
		return nil, err
	}
	status, err := getOptionalStringField(obj, "status")
	if err != nil {
		return nil, err
	}

	if gatewayID != nil && !domain.ValidGatewayID(*gatewayID) {
		log := logger.FromContext(ctx)
		log.Warn().
			Str("candidate", *gatewayID).
			Int("length", len(*gatewayID)).
			Msg("discarding gateway id that is not 22 alphanumeric characters")
		gatewayID = nil
	}

	record := &domain.TransactionRecord{
		Amount:          amount,
		Currency:        currency,
		Date:            date,
		Sender:          sender,
		Receiver:        receiver,
		OperationNumber: operationNumber,
		GatewayID:       gatewayID,
		TransactionType: domain.DefaultTransactionType,
		Platform:        platform,
		Status:          domain.DefaultExtractionStatus,
	}
	if transactionType != nil {
		record.TransactionType = *transactionType
	}
	if status != nil {
		record.Status = *status
	}

	return record, nil
}

func getOptionalStringField(m map[string]interface{}, key string) (*string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch val := v.(type) {
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return nil, nil
		}
		return &s, nil
	default:
		return nil, fmt.Errorf("field %q has type %T, want string or null", key, v)
	}
}

// getOptionalReferenceField accepts a numeric-looking reference as string or number.
func getOptionalReferenceField(m map[string]interface{}, key string) (*string, error) {
	if n, ok := m[key].(json.Number); ok {
		s := n.String()
		return &s, nil
	}
	return getOptionalStringField(m, key)
}

func getOptionalDecimalField(m map[string]interface{}, key string) (decimal.NullDecimal, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return decimal.NullDecimal{}, nil
	}
	switch val := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(val.String())
		if err != nil {
			return decimal.NullDecimal{}, fmt.Errorf("field %q: invalid number %q: %w", key, val, err)
		}
		return decimal.NewNullDecimal(d), nil
	case float64:
		return decimal.NewNullDecimal(decimal.NewFromFloat(val)), nil
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return decimal.NullDecimal{}, nil
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.NullDecimal{}, fmt.Errorf("field %q: invalid number %q: %w", key, val, err)
		}
		return decimal.NewNullDecimal(d), nil
	default:
		return decimal.NullDecimal{}, fmt.Errorf("field %q has type %T, want number or null", key, v)
	}
}

func getOptionalPartyField(m map[string]interface{}, key string) (*domain.Party, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("field %q has type %T, want object or null", key, v)
	}

	name, err := getOptionalStringField(obj, "name")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	taxID, err := getOptionalReferenceField(obj, "taxId")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	accountRef, err := getOptionalReferenceField(obj, "accountRef")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}

	return &domain.Party{Name: name, TaxID: taxID, AccountRef: accountRef}, nil
}
