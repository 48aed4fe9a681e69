package payments

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// Fields are the transaction values the gateway signs, in signing order
// minus the secret, which sits between Amount and BillNo.
type Fields struct {
	RecAccount   string
	Amount       string
	BillNo       string
	PayerAccount string
	TransID      string
	TransDate    string
}

const checksumSeparator = ":"

// Checksummer computes and checks the callback digest. The gateway dictates
// the primitive; callers only depend on this interface.
type Checksummer interface {
	Checksum(f Fields, secret string) string
	Verify(f Fields, secret, received string) bool
}

// MD5Checksummer implements the Idram EDP_CHECKSUM scheme.
type MD5Checksummer struct{}

func (MD5Checksummer) Checksum(f Fields, secret string) string {
	raw := strings.Join([]string{
		f.RecAccount,
		f.Amount,
		secret,
		f.BillNo,
		f.PayerAccount,
		f.TransID,
		f.TransDate,
	}, checksumSeparator)
	sum := md5.Sum([]byte(raw))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

func (c MD5Checksummer) Verify(f Fields, secret, received string) bool {
	if received == "" {
		return false
	}
	want := c.Checksum(f, secret)
	return subtle.ConstantTimeCompare([]byte(want), []byte(strings.ToUpper(received))) == 1
}
