package pipeline

import (
	"strings"

	"github.com/dvloznov/receipt-validator/internal/domain"
	"google.golang.org/genai"
)

// buildReceiptPrompt returns the fixed instruction set sent with every receipt image.
func buildReceiptPrompt() string {
	var b strings.Builder
	b.WriteString("You are an expert analyst of payment receipts and bank transfer vouchers ")
	b.WriteString("(Mercado Pago, banks and other Argentine payment platforms).\n\n")

	b.WriteString("Task:\n")
	b.WriteString("- Extract the transaction described by the attached receipt image.\n")
	b.WriteString("- Output STRICT JSON only, matching the response schema.\n\n")

	b.WriteString("Pay special attention to:\n")
	b.WriteString("- The exact transaction amount, digits only (\"amount\").\n")
	b.WriteString("- The date and time exactly as printed (\"date\").\n")
	b.WriteString("- The sender: who sends the money (name, CUIT/CUIL as taxId, CVU/CBU as accountRef).\n")
	b.WriteString("- The receiver: who receives the money (same fields).\n")
	b.WriteString("- The operation number, a numeric reference such as 120013543417.\n")
	b.WriteString("- The platform used (Mercado Pago, bank name, etc.).\n\n")

	b.WriteString("GATEWAY ID RULES:\n")
	b.WriteString("1. \"gatewayId\" is the COELSA id: exactly 22 alphanumeric characters, e.g. WGRXJE27GO0PJ05EN7MYQL.\n")
	b.WriteString("2. It may be labelled differently on the receipt (\"ID COELSA\", \"Código de identificación\").\n")
	b.WriteString("3. CBU and CVU account numbers are also 22 characters long. They are accountRef values, NEVER gatewayId.\n")
	b.WriteString("4. If no such id is visible, set gatewayId to null.\n\n")

	b.WriteString("Rules:\n")
	b.WriteString("- Extract ONLY what is clearly visible. Use null for anything missing or unreadable; never guess.\n")
	b.WriteString("- Keep the original formatting of numbers and dates in text fields; do not normalize them.\n")
	b.WriteString("- Attribute sender and receiver correctly; do not swap them.\n")
	b.WriteString("- If the operation type is not shown, use \"" + domain.DefaultTransactionType + "\".\n")
	b.WriteString("Do NOT wrap the response in code fences.\n")

	return b.String()
}

func nullableString(description string) *genai.Schema {
	return &genai.Schema{
		Type:        genai.TypeString,
		Nullable:    genai.Ptr(true),
		Description: description,
	}
}

func partySchema(role string) *genai.Schema {
	return &genai.Schema{
		Type:        genai.TypeObject,
		Nullable:    genai.Ptr(true),
		Description: "The party that " + role + " the money",
		Properties: map[string]*genai.Schema{
			"name":       nullableString("Full name"),
			"taxId":      nullableString("CUIT/CUIL"),
			"accountRef": nullableString("CVU/CBU"),
		},
		Required:         []string{"name", "taxId", "accountRef"},
		PropertyOrdering: []string{"name", "taxId", "accountRef"},
	}
}

// receiptSchema mirrors domain.TransactionRecord.
func receiptSchema() *genai.Schema {
	idLen := int64(domain.GatewayIDLength)
	gatewayID := nullableString("COELSA id, 22 alphanumeric characters, never a CBU/CVU")
	gatewayID.MinLength = &idLen
	gatewayID.MaxLength = &idLen

	fields := []string{
		"amount", "currency", "date", "sender", "receiver", "operationNumber",
		"gatewayId", "transactionType", "platform", "status",
	}

	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"amount": {
				Type:        genai.TypeNumber,
				Nullable:    genai.Ptr(true),
				Description: "Transaction amount, digits only",
			},
			"currency":        nullableString("Currency code, e.g. ARS or USD"),
			"date":            nullableString("Date and time exactly as printed"),
			"sender":          partySchema("sends"),
			"receiver":        partySchema("receives"),
			"operationNumber": nullableString("Operation number, e.g. 120013543417"),
			"gatewayId":       gatewayID,
			"transactionType": nullableString("Transaction type, e.g. Transferencia"),
			"platform":        nullableString("Platform used, e.g. Mercado Pago"),
			"status":          nullableString("Transaction status if printed"),
		},
		Required:         fields,
		PropertyOrdering: fields,
	}
}
