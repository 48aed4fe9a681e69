package payments

import (
	"errors"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

// Inbound callback fields.
const (
	FieldPrecheck     = "EDP_PRECHECK"
	FieldPayerAccount = "EDP_PAYER_ACCOUNT"
	FieldTransID      = "EDP_TRANS_ID"
	FieldTransDate    = "EDP_TRANS_DATE"
	FieldChecksum     = "EDP_CHECKSUM"
)

var ErrMalformedCallback = errors.New("malformed callback")

type Callback struct {
	Precheck     bool
	RecAccount   string
	Amount       string
	BillNo       string
	PayerAccount string
	TransID      string
	TransDate    string
	Checksum     string
}

// ParseCallback reads both the precheck and the confirmation request.
func ParseCallback(values url.Values) (*Callback, error) {
	cb := &Callback{
		Precheck:     strings.EqualFold(strings.TrimSpace(values.Get(FieldPrecheck)), "YES"),
		RecAccount:   strings.TrimSpace(values.Get(FieldRecAccount)),
		Amount:       strings.TrimSpace(values.Get(FieldAmount)),
		BillNo:       strings.TrimSpace(values.Get(FieldBillNo)),
		PayerAccount: strings.TrimSpace(values.Get(FieldPayerAccount)),
		TransID:      strings.TrimSpace(values.Get(FieldTransID)),
		TransDate:    strings.TrimSpace(values.Get(FieldTransDate)),
		Checksum:     strings.TrimSpace(values.Get(FieldChecksum)),
	}
	if cb.BillNo == "" {
		return nil, ErrMalformedCallback
	}
	if !cb.Precheck && (cb.Checksum == "" || cb.TransID == "") {
		return nil, ErrMalformedCallback
	}
	return cb, nil
}

// SignedFields binds the callback to an amount chosen by the caller, which
// must be the stored order total and never c.Amount.
func (c *Callback) SignedFields(amount decimal.Decimal) Fields {
	return Fields{
		RecAccount:   c.RecAccount,
		Amount:       FormatAmount(amount),
		BillNo:       c.BillNo,
		PayerAccount: c.PayerAccount,
		TransID:      c.TransID,
		TransDate:    c.TransDate,
	}
}

// AmountMatches compares the claimed amount with the stored total numerically.
func (c *Callback) AmountMatches(total decimal.Decimal) bool {
	claimed, err := decimal.NewFromString(c.Amount)
	if err != nil {
		return false
	}
	return claimed.Equal(total)
}

// Values is the loggable form of the callback.
func (c *Callback) Values() map[string]string {
	out := map[string]string{
		FieldRecAccount: c.RecAccount,
		FieldAmount:     c.Amount,
		FieldBillNo:     c.BillNo,
	}
	if c.Precheck {
		out[FieldPrecheck] = "YES"
		return out
	}
	out[FieldPayerAccount] = c.PayerAccount
	out[FieldTransID] = c.TransID
	out[FieldTransDate] = c.TransDate
	out[FieldChecksum] = c.Checksum
	return out
}
