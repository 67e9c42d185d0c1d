package payments

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/atlasworks/payflow/app/models"
	"github.com/atlasworks/payflow/internal/pkg/env"
	"github.com/atlasworks/payflow/internal/pkg/paymob"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Sentinel errors the HTTP boundary maps to response codes.
var (
	ErrInvalidAmount     = errors.New("amount must be a positive number")
	ErrUnknownOrder      = errors.New("order does not exist")
	ErrThrottled         = errors.New("payment initiation throttled, retry later")
	ErrInvalidSignature  = errors.New("webhook signature verification failed")
	ErrUnresolvableEvent = errors.New("webhook does not resolve to a known payment")
	ErrMalformedEvent    = errors.New("webhook payload is malformed")
)

const defaultCurrency = "EGP"

// Gateway creates remote payment sessions. Implemented by paymob.Client.
type Gateway interface {
	CreatePaymentSession(ctx context.Context, orderID string, amount decimal.Decimal, currency string, customer paymob.Customer) (*paymob.PaymentSession, error)
}

// Limiter gates session creation per order key within a cool-down window.
type Limiter interface {
	Acquire(key string) bool
}

// Notifier signals downstream fulfillment after a record turned paid. The
// pending-only transition is the sole de-duplication gate, so Notifier is
// invoked at most once per record.
type Notifier interface {
	PaymentSucceeded(ctx context.Context, record *models.PaymentRecord) error
}

// Service orchestrates the payment lifecycle: session initiation against the
// gateway and idempotent webhook reconciliation.
type Service struct {
	repo          Repository
	gateway       Gateway
	limiter       Limiter
	notifier      Notifier
	hmacSecret    string
	integrationID string
}

// NewService wires the service from injected collaborators.
func NewService(repo Repository, gateway Gateway, limiter Limiter, notifier Notifier, hmacSecret, integrationID string) *Service {
	return &Service{
		repo:          repo,
		gateway:       gateway,
		limiter:       limiter,
		notifier:      notifier,
		hmacSecret:    hmacSecret,
		integrationID: integrationID,
	}
}

// NewServiceFromDB builds a service with env-configured collaborators.
func NewServiceFromDB(db *gorm.DB, limiter Limiter, notifier Notifier) *Service {
	return NewService(
		NewRepository(db),
		paymob.NewClientFromEnv(),
		limiter,
		notifier,
		env.GetEnv("PAYMOB_HMAC_SECRET", ""),
		env.GetEnv("PAYMOB_INTEGRATION_ID", ""),
	)
}

// InitiatePayment runs the initiation flow: throttle gate, gateway session,
// durable record, order link. A record exists only if the gateway issued a
// usable payment token, and a link row exists only if the record does.
func (s *Service) InitiatePayment(ctx context.Context, in InitiateInput) (*InitiateResult, error) {
	if !in.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	// The engine never creates orders; refuse to start a session against one
	// that does not exist, before a lease is burned on it.
	if _, err := s.repo.GetOrderByID(in.OrderID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: order_id=%d", ErrUnknownOrder, in.OrderID)
		}
		return nil, fmt.Errorf("order lookup failed: %w", err)
	}

	if s.limiter != nil && !s.limiter.Acquire(initiationKey(in.OrderID)) {
		return nil, ErrThrottled
	}

	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = defaultCurrency
	}

	session, err := s.gateway.CreatePaymentSession(ctx, strconv.FormatUint(uint64(in.OrderID), 10), in.Amount, currency, paymob.Customer{
		Email: in.CustomerEmail,
		Phone: in.CustomerPhone,
	})
	if err != nil {
		return nil, fmt.Errorf("gateway session creation failed: %w", err)
	}

	record := &models.PaymentRecord{
		UUID:          uuid.NewString(),
		OrderID:       in.OrderID,
		Amount:        in.Amount,
		Currency:      currency,
		Status:        models.PaymentStatusPending,
		PaymentMethod: models.PaymentMethodOnline,
		Provider:      models.PaymentProviderPaymob,
		PaymentID:     strconv.FormatInt(session.RemoteOrderID, 10),
	}
	if err := record.SetMetadata(map[string]any{
		"remote_order_id": session.RemoteOrderID,
		"integration_id":  s.integrationID,
		"iframe_url":      session.RedirectURL,
	}); err != nil {
		return nil, err
	}

	if err := s.repo.CreatePayment(record); err != nil {
		// The remote session already exists and is not rolled back; leave
		// enough correlation data for the reconciliation job to find it.
		log.Printf("orphaned gateway session: record creation failed order_id=%d remote_order_id=%d err=%v",
			in.OrderID, session.RemoteOrderID, err)
		return nil, fmt.Errorf("persisting payment record failed: %w", err)
	}

	if err := s.repo.AppendOrderPayment(&models.OrderPaymentRef{
		OrderID:         in.OrderID,
		PaymentRecordID: record.ID,
	}); err != nil {
		log.Printf("unlinked payment record: order link failed order_id=%d payment_id=%s record_id=%d err=%v",
			in.OrderID, record.PaymentID, record.ID, err)
		return nil, fmt.Errorf("linking payment to order failed: %w", err)
	}

	return &InitiateResult{
		PaymentURL: session.RedirectURL,
		Record:     record,
	}, nil
}

// ReconcileNotification consumes one webhook delivery. Deliveries are
// recorded first for dedup/audit, authenticated, resolved by correlation id
// and then applied through the pending-only transition. Every path is safe
// to repeat.
func (s *Service) ReconcileNotification(ctx context.Context, in ReconcileInput) (*ReconcileResult, error) {
	notification, parseErr := paymob.ParseWebhookNotification(in.Payload)

	// The HMAC normally arrives as a query parameter; some payload variants
	// embed it instead.
	signature := strings.TrimSpace(in.Signature)
	if signature == "" && parseErr == nil {
		signature = strings.TrimSpace(notification.HMAC)
	}
	signatureValid := parseErr == nil && paymob.VerifyTransactionHMAC(&notification.Obj, signature, s.hmacSecret)

	eventID := strings.TrimSpace(in.EventID)
	if eventID == "" {
		sum := sha256.Sum256(in.Payload)
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}
	eventType := "transaction"
	if parseErr != nil {
		eventType = "malformed"
	}

	created, stored, err := s.repo.CreateWebhookEventIfNotExists(&models.PaymentWebhookEvent{
		Provider:        models.PaymentProviderPaymob,
		ProviderEventID: eventID,
		EventType:       eventType,
		PayloadJSON:     string(in.Payload),
		SignatureValid:  signatureValid,
	})
	if err != nil {
		return nil, err
	}
	if !created {
		if webhookEventSettled(stored) {
			// Byte-identical redelivery of a completed event; already handled.
			return &ReconcileResult{Duplicate: true, Status: stored.EventType}, nil
		}
		// The earlier attempt was rejected or interrupted. The gateway only
		// redelivers until it sees success, so run the delivery again; a
		// late-created record or corrected secret can now reconcile it.
	}

	if parseErr != nil {
		s.markProcessed(stored.ID, parseErr)
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, parseErr)
	}
	if !signatureValid {
		s.markProcessed(stored.ID, ErrInvalidSignature)
		return nil, ErrInvalidSignature
	}

	paymentID := notification.PaymentID()
	record, err := s.repo.GetPaymentByPaymentID(paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.markProcessed(stored.ID, ErrUnresolvableEvent)
			return nil, fmt.Errorf("%w: payment_id=%s", ErrUnresolvableEvent, paymentID)
		}
		s.markProcessed(stored.ID, err)
		return nil, err
	}

	outcome := paymob.OutcomeFromTransaction(&notification.Obj)
	if outcome == paymob.OutcomeProgress {
		// Non-terminal progress update; no local status change.
		s.markProcessed(stored.ID, nil)
		return &ReconcileResult{Status: record.Status}, nil
	}

	if record.IsTerminal() {
		// Duplicate or replayed terminal notification: explicit no-op success.
		s.markProcessed(stored.ID, nil)
		return &ReconcileResult{Status: record.Status}, nil
	}

	applied, err := s.repo.TransitionPaymentStatus(paymentID, outcome)
	if err != nil {
		s.markProcessed(stored.ID, err)
		return nil, err
	}
	if !applied {
		// A racing delivery won the transition; re-read for the final word.
		current, err := s.repo.GetPaymentByPaymentID(paymentID)
		if err != nil {
			s.markProcessed(stored.ID, err)
			return nil, err
		}
		s.markProcessed(stored.ID, nil)
		return &ReconcileResult{Status: current.Status}, nil
	}

	s.extendRecordMetadata(record, notification)

	if outcome == paymob.OutcomePaid && s.notifier != nil {
		record.Status = outcome
		if err := s.notifier.PaymentSucceeded(ctx, record); err != nil {
			// The transition is durable; fulfillment signaling is best-effort
			// and picked up by reconciliation tooling via the event log.
			log.Printf("fulfillment signal failed order_id=%d payment_id=%s err=%v", record.OrderID, record.PaymentID, err)
		}
	}

	s.markProcessed(stored.ID, nil)
	return &ReconcileResult{Applied: true, Status: outcome}, nil
}

// webhookEventSettled reports whether an earlier delivery of this event
// completed without error. Only settled events short-circuit a redelivery;
// rejected ones stay retryable.
func webhookEventSettled(event *models.PaymentWebhookEvent) bool {
	return event.ProcessedAt != nil && event.ProcessingError == ""
}

func (s *Service) markProcessed(eventID uint, processingErr error) {
	msg := ""
	if processingErr != nil {
		msg = processingErr.Error()
	}
	if err := s.repo.MarkWebhookProcessed(eventID, msg); err != nil {
		log.Printf("failed to mark webhook event %d processed: %v", eventID, err)
	}
}

// extendRecordMetadata preserves the raw gateway outcome on the record for
// audit; existing keys are never overwritten.
func (s *Service) extendRecordMetadata(record *models.PaymentRecord, n *paymob.WebhookNotification) {
	err := record.MergeMetadata(map[string]any{
		"transaction_id":      n.Obj.ID,
		"gateway_success":     n.Obj.Success,
		"gateway_error":       n.Obj.ErrorOccured,
		"gateway_voided":      n.Obj.IsVoided,
		"gateway_refunded":    n.Obj.IsRefunded,
		"reported_amount":     n.Obj.AmountCents,
		"reported_created_at": n.Obj.CreatedAt,
	})
	if err == nil {
		err = s.repo.UpdatePaymentMetadata(record.PaymentID, record.MetadataJSON)
	}
	if err != nil {
		log.Printf("failed to extend payment metadata payment_id=%s: %v", record.PaymentID, err)
	}
}

func initiationKey(orderID uint) string {
	return fmt.Sprintf("order:%d", orderID)
}
