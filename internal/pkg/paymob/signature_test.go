package paymob

import (
	"strings"
	"testing"
)

func sampleTransaction() *Transaction {
	return &Transaction{
		ID:            1122334,
		AmountCents:   2000,
		CreatedAt:     "2026-08-01T10:15:00.000000",
		Currency:      "EGP",
		IntegrationID: 4455,
		Order:         TransactionOrder{ID: 987654},
		Owner:         17,
		SourceData:    SourceData{Pan: "2346", SubType: "MasterCard", Type: "card"},
		Success:       true,
	}
}

func TestVerifyTransactionHMAC(t *testing.T) {
	tx := sampleTransaction()
	secret := "hmac-secret"

	sig := ComputeTransactionHMAC(tx, secret)
	if !VerifyTransactionHMAC(tx, sig, secret) {
		t.Fatalf("expected computed signature to verify")
	}

	// case-insensitive hex
	if !VerifyTransactionHMAC(tx, strings.ToUpper(sig), secret) {
		t.Fatalf("expected uppercase signature to verify")
	}

	if VerifyTransactionHMAC(tx, sig, "other-secret") {
		t.Fatalf("expected wrong secret to fail")
	}
	if VerifyTransactionHMAC(tx, "deadbeef", secret) {
		t.Fatalf("expected invalid signature to fail")
	}
	if VerifyTransactionHMAC(tx, "", secret) {
		t.Fatalf("expected empty signature to fail")
	}
	if VerifyTransactionHMAC(tx, sig, "") {
		t.Fatalf("expected empty secret to fail")
	}
}

func TestVerifyTransactionHMAC_ContentChange(t *testing.T) {
	tx := sampleTransaction()
	secret := "hmac-secret"
	sig := ComputeTransactionHMAC(tx, secret)

	tampered := *tx
	tampered.Success = false
	if VerifyTransactionHMAC(&tampered, sig, secret) {
		t.Fatalf("expected signature to fail after content change")
	}

	tampered = *tx
	tampered.AmountCents = 1
	if VerifyTransactionHMAC(&tampered, sig, secret) {
		t.Fatalf("expected signature to fail after amount change")
	}
}
