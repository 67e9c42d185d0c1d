package paymob

import (
	"encoding/json"
	"testing"
)

func TestParseWebhookNotification(t *testing.T) {
	raw := []byte(`{
		"type": "TRANSACTION",
		"obj": {
			"id": 1122334,
			"amount_cents": 2000,
			"currency": "EGP",
			"order": { "id": 987654 },
			"success": true
		}
	}`)

	n, err := ParseWebhookNotification(raw)
	if err != nil {
		t.Fatalf("ParseWebhookNotification failed: %v", err)
	}
	if n.Obj.ID != 1122334 {
		t.Fatalf("transaction id = %d", n.Obj.ID)
	}
	if got := n.PaymentID(); got != "987654" {
		t.Fatalf("PaymentID() = %q, want %q", got, "987654")
	}
}

func TestParseWebhookNotification_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: `{"type":`},
		{name: "wrong type", raw: `{"type":"TOKEN","obj":{"id":1,"order":{"id":2}}}`},
		{name: "missing transaction id", raw: `{"type":"TRANSACTION","obj":{"order":{"id":2}}}`},
		{name: "missing order id", raw: `{"type":"TRANSACTION","obj":{"id":1}}`},
	}

	for _, tt := range tests {
		if _, err := ParseWebhookNotification([]byte(tt.raw)); err == nil {
			t.Fatalf("%s: expected error", tt.name)
		}
	}
}

func TestOutcomeFromTransaction(t *testing.T) {
	tests := []struct {
		name string
		tx   Transaction
		want string
	}{
		{name: "success", tx: Transaction{Success: true}, want: OutcomePaid},
		{name: "declined", tx: Transaction{Success: false}, want: OutcomeFailed},
		{name: "error flag wins over success", tx: Transaction{Success: true, ErrorOccured: true}, want: OutcomeFailed},
		{name: "voided", tx: Transaction{Success: true, IsVoided: true}, want: OutcomeCancelled},
		{name: "refunded", tx: Transaction{Success: true, IsRefunded: true}, want: OutcomeCancelled},
		{name: "pending progress", tx: Transaction{Pending: true}, want: OutcomeProgress},
		{name: "pending wins over success", tx: Transaction{Pending: true, Success: true}, want: OutcomeProgress},
	}

	for _, tt := range tests {
		if got := OutcomeFromTransaction(&tt.tx); got != tt.want {
			t.Fatalf("%s: OutcomeFromTransaction = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestTransactionRoundTripKeepsHMACFields(t *testing.T) {
	tx := sampleTransaction()
	raw, err := json.Marshal(WebhookNotification{Type: "TRANSACTION", Obj: *tx})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	n, err := ParseWebhookNotification(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ComputeTransactionHMAC(&n.Obj, "s") != ComputeTransactionHMAC(tx, "s") {
		t.Fatalf("HMAC input changed across encode/decode")
	}
}
