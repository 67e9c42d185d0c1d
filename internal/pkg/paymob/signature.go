package paymob

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strconv"
	"strings"
)

// ComputeTransactionHMAC renders the documented transaction fields in their
// fixed lexicographic order and returns the hex HMAC-SHA512 digest. Booleans
// render as "true"/"false", integers in base 10.
func ComputeTransactionHMAC(tx *Transaction, secret string) string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(tx.AmountCents, 10))
	b.WriteString(tx.CreatedAt)
	b.WriteString(tx.Currency)
	b.WriteString(strconv.FormatBool(tx.ErrorOccured))
	b.WriteString(strconv.FormatBool(tx.HasParentTransaction))
	b.WriteString(strconv.FormatInt(tx.ID, 10))
	b.WriteString(strconv.FormatInt(tx.IntegrationID, 10))
	b.WriteString(strconv.FormatBool(tx.Is3DSecure))
	b.WriteString(strconv.FormatBool(tx.IsAuth))
	b.WriteString(strconv.FormatBool(tx.IsCapture))
	b.WriteString(strconv.FormatBool(tx.IsRefunded))
	b.WriteString(strconv.FormatBool(tx.IsStandalonePayment))
	b.WriteString(strconv.FormatBool(tx.IsVoided))
	b.WriteString(strconv.FormatInt(tx.Order.ID, 10))
	b.WriteString(strconv.FormatInt(tx.Owner, 10))
	b.WriteString(strconv.FormatBool(tx.Pending))
	b.WriteString(tx.SourceData.Pan)
	b.WriteString(tx.SourceData.SubType)
	b.WriteString(tx.SourceData.Type)
	b.WriteString(strconv.FormatBool(tx.Success))

	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(b.String()))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyTransactionHMAC checks a delivered signature against the transaction
// content using a constant-time compare. Empty signature or secret never
// verifies.
func VerifyTransactionHMAC(tx *Transaction, signature, secret string) bool {
	sig := strings.TrimSpace(signature)
	if sig == "" || strings.TrimSpace(secret) == "" {
		return false
	}

	decodedSig, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return false
	}

	expected, err := hex.DecodeString(ComputeTransactionHMAC(tx, secret))
	if err != nil {
		return false
	}
	return hmac.Equal(expected, decodedSig)
}
