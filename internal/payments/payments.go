package payments

import (
	"github.com/shopspring/decimal"
)

const (
	DefaultFormURL  = "https://banking.idram.am/Payment/GetPayment"
	DefaultLanguage = "EN"
)

// Outbound form fields.
const (
	FieldLanguage    = "EDP_LANGUAGE"
	FieldRecAccount  = "EDP_REC_ACCOUNT"
	FieldDescription = "EDP_DESCRIPTION"
	FieldAmount      = "EDP_AMOUNT"
	FieldBillNo      = "EDP_BILL_NO"
)

// Gateway holds the merchant credentials. It is read-only after startup.
type Gateway struct {
	FormURL    string
	RecAccount string
	SecretKey  string
	Language   string
}

func (g Gateway) Configured() bool {
	return g.RecAccount != "" && g.SecretKey != ""
}

type Form struct {
	URL    string            `json:"formUrl"`
	Fields map[string]string `json:"formData"`
}

// BuildForm returns the hosted payment page target for an order.
func (g Gateway) BuildForm(orderID string, amount decimal.Decimal) *Form {
	url := g.FormURL
	if url == "" {
		url = DefaultFormURL
	}
	lang := g.Language
	if lang == "" {
		lang = DefaultLanguage
	}
	return &Form{
		URL: url,
		Fields: map[string]string{
			FieldLanguage:    lang,
			FieldRecAccount:  g.RecAccount,
			FieldDescription: "Order #" + orderID,
			FieldAmount:      FormatAmount(amount),
			FieldBillNo:      orderID,
		},
	}
}

// FormatAmount renders an amount the way it is presented to and signed by the gateway.
func FormatAmount(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}
