package controllers

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/atlasworks/payflow/internal/pkg/database"
	"github.com/atlasworks/payflow/internal/pkg/fulfillment"
	"github.com/atlasworks/payflow/internal/pkg/payments"
	"github.com/atlasworks/payflow/internal/pkg/paymob"
	"github.com/atlasworks/payflow/internal/pkg/throttle"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// Process-wide collaborators: the cool-down limiter holds the only shared
// in-memory state of the engine, the publisher holds the AMQP connection.
var (
	limiterOnce       sync.Once
	initiationLimiter *throttle.CooldownLimiter

	notifierOnce        sync.Once
	fulfillmentNotifier payments.Notifier
)

func getInitiationLimiter() payments.Limiter {
	limiterOnce.Do(func() {
		initiationLimiter = throttle.NewCooldownLimiterFromEnv()
	})
	return initiationLimiter
}

func getFulfillmentNotifier() payments.Notifier {
	notifierOnce.Do(func() {
		if p := fulfillment.NewPublisherFromEnv(); p != nil {
			fulfillmentNotifier = p
		}
	})
	return fulfillmentNotifier
}

// InitiatePaymentRequest is the initiate endpoint body. Amount is decoded as
// a decimal so values like 19.995 keep their exact representation.
type InitiatePaymentRequest struct {
	OrderID          uint            `json:"orderId" validate:"required"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency" validate:"omitempty,len=3,alpha"`
	OrderDescription string          `json:"orderDescription" validate:"max=500"`
	CustomerEmail    string          `json:"customerEmail" validate:"omitempty,email"`
	CustomerPhone    string          `json:"customerPhone" validate:"omitempty,max=32"`
}

func (r *InitiatePaymentRequest) Validate() error {
	v := validator.New()

	return v.Struct(r)
}

// HandleInitiatePayment creates a gateway session for an order and returns
// the checkout redirect URL.
func HandleInitiatePayment(c *fiber.Ctx) error {
	var req InitiatePaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
			"details": err.Error(),
		})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request",
			"details": err.Error(),
		})
	}

	svc := payments.NewServiceFromDB(database.GetDB(), getInitiationLimiter(), getFulfillmentNotifier())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := svc.InitiatePayment(ctx, payments.InitiateInput{
		OrderID:          req.OrderID,
		Amount:           req.Amount,
		Currency:         req.Currency,
		OrderDescription: req.OrderDescription,
		CustomerEmail:    req.CustomerEmail,
		CustomerPhone:    req.CustomerPhone,
	})
	if err != nil {
		return initiateErrorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"paymentUrl": result.PaymentURL,
	})
}

func initiateErrorResponse(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, payments.ErrInvalidAmount):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": err.Error(),
		})
	case errors.Is(err, payments.ErrUnknownOrder):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": err.Error(),
		})
	case errors.Is(err, payments.ErrThrottled):
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"success": false,
			"message": err.Error(),
		})
	}

	// Surface upstream gateway detail where available; internal errors stay
	// behind a generic message.
	details := "internal error"
	var apiErr *paymob.APIError
	if errors.As(err, &apiErr) {
		details = apiErr.Error()
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"success": false,
		"message": "Payment initiation failed",
		"details": details,
	})
}

// HandlePaymobWebhook consumes asynchronous gateway notifications. The body
// is only semantically meaningful to us; the gateway just needs a status
// code, and any rejection here is safe to redeliver.
func HandlePaymobWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Query("hmac"))
	eventID := firstWebhookHeaderValue(c, "X-Paymob-Delivery", "X-Delivery-ID")

	svc := payments.NewServiceFromDB(database.GetDB(), getInitiationLimiter(), getFulfillmentNotifier())
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	result, err := svc.ReconcileNotification(ctx, payments.ReconcileInput{
		Payload:   rawBody,
		Signature: signature,
		EventID:   eventID,
	})
	if err != nil {
		switch {
		case errors.Is(err, payments.ErrMalformedEvent):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
		case errors.Is(err, payments.ErrInvalidSignature):
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
		case errors.Is(err, payments.ErrUnresolvableEvent):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown_payment"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_processing_failed"})
	}

	if result.Duplicate {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "status": result.Status})
}

func firstWebhookHeaderValue(c *fiber.Ctx, keys ...string) string {
	for _, k := range keys {
		v := strings.TrimSpace(c.Get(k))
		if v != "" {
			return v
		}
	}
	return ""
}
