package payments

import (
	"github.com/atlasworks/payflow/app/models"
	"github.com/shopspring/decimal"
)

// InitiateInput is the normalized input of one payment initiation attempt.
type InitiateInput struct {
	OrderID          uint
	Amount           decimal.Decimal
	Currency         string
	OrderDescription string
	CustomerEmail    string
	CustomerPhone    string
}

// InitiateResult carries the redirect URL handed back to the caller plus the
// persisted record.
type InitiateResult struct {
	PaymentURL string
	Record     *models.PaymentRecord
}

// ReconcileInput is one inbound webhook delivery.
type ReconcileInput struct {
	Payload   []byte
	Signature string
	// EventID is an optional delivery identifier from transport headers; when
	// absent deduplication falls back to a payload hash.
	EventID string
}

// ReconcileResult describes what a delivery did.
type ReconcileResult struct {
	// Duplicate marks a byte-identical redelivery that was acknowledged
	// without any processing.
	Duplicate bool
	// Applied marks that this delivery won the pending-to-terminal
	// transition.
	Applied bool
	// Status is the record's terminal status after reconciliation, or
	// "pending" for a progress-only update.
	Status string
}
