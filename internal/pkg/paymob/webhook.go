package paymob

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Outcome values a notification resolves to. OutcomeProgress marks a
// non-terminal update that must not change local state.
const (
	OutcomePaid      = "paid"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
	OutcomeProgress  = "progress"
)

const webhookTypeTransaction = "TRANSACTION"

type TransactionOrder struct {
	ID int64 `json:"id"`
}

type SourceData struct {
	Pan     string `json:"pan"`
	SubType string `json:"sub_type"`
	Type    string `json:"type"`
}

// Transaction is the gateway's transaction object as delivered in webhook
// notifications. Field set mirrors what the HMAC covers.
type Transaction struct {
	ID                   int64            `json:"id"`
	AmountCents          int64            `json:"amount_cents"`
	CreatedAt            string           `json:"created_at"`
	Currency             string           `json:"currency"`
	ErrorOccured         bool             `json:"error_occured"`
	HasParentTransaction bool             `json:"has_parent_transaction"`
	IntegrationID        int64            `json:"integration_id"`
	Is3DSecure           bool             `json:"is_3d_secure"`
	IsAuth               bool             `json:"is_auth"`
	IsCapture            bool             `json:"is_capture"`
	IsRefunded           bool             `json:"is_refunded"`
	IsStandalonePayment  bool             `json:"is_standalone_payment"`
	IsVoided             bool             `json:"is_voided"`
	Order                TransactionOrder `json:"order"`
	Owner                int64            `json:"owner"`
	Pending              bool             `json:"pending"`
	SourceData           SourceData       `json:"source_data"`
	Success              bool             `json:"success"`
}

// WebhookNotification is the envelope Paymob posts to the webhook endpoint.
// The HMAC usually arrives as a query parameter; some variants embed it.
type WebhookNotification struct {
	Type string      `json:"type"`
	Obj  Transaction `json:"obj"`
	HMAC string      `json:"hmac,omitempty"`
}

// correlation id of the notification: the gateway order id the payment
// record was keyed on at creation.
func (n *WebhookNotification) PaymentID() string {
	if n.Obj.Order.ID == 0 {
		return ""
	}
	return fmt.Sprintf("%d", n.Obj.Order.ID)
}

func ParseWebhookNotification(payload []byte) (*WebhookNotification, error) {
	var n WebhookNotification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, err
	}
	if t := strings.TrimSpace(n.Type); t != "" && !strings.EqualFold(t, webhookTypeTransaction) {
		return nil, fmt.Errorf("unsupported paymob webhook type: %s", t)
	}
	if n.Obj.ID == 0 {
		return nil, errors.New("paymob webhook payload missing transaction id")
	}
	if n.Obj.Order.ID == 0 {
		return nil, errors.New("paymob webhook payload missing order id")
	}
	return &n, nil
}

// OutcomeFromTransaction maps the gateway's reported state to a local
// outcome. Unrecognized combinations fall through to failed so a record is
// never left pending forever by a terminal delivery.
func OutcomeFromTransaction(tx *Transaction) string {
	switch {
	case tx.Pending:
		return OutcomeProgress
	case tx.IsVoided || tx.IsRefunded:
		return OutcomeCancelled
	case tx.Success && !tx.ErrorOccured:
		return OutcomePaid
	default:
		return OutcomeFailed
	}
}
