package paymob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/atlasworks/payflow/internal/pkg/env"
	"github.com/shopspring/decimal"
)

const defaultBaseURL = "https://accept.paymob.com"

// Placeholder billing fields the gateway requires but callers may omit.
const (
	fallbackEmail = "customer@example.com"
	fallbackPhone = "0123456789"
	fieldNA       = "NA"
)

// APIError carries the upstream response of a failed gateway call.
type APIError struct {
	Endpoint string
	Status   int
	Body     string
	Err      error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("paymob %s failed: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("paymob %s failed: status=%d body=%s", e.Endpoint, e.Status, e.Body)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Customer is the caller-supplied contact data passed into billing fields.
type Customer struct {
	Email string
	Phone string
}

// PaymentSession is the result of a successful three-call session creation.
type PaymentSession struct {
	RemoteOrderID int64
	PaymentToken  string
	RedirectURL   string
}

// Client talks to the Paymob Accept API. It holds no local state; all its
// effects live on the remote gateway.
type Client struct {
	APIKey        string
	IntegrationID int64
	IframeID      string
	ReturnURL     string

	BaseURL string

	HTTPClient *http.Client
}

func NewClientFromEnv() *Client {
	integrationID, _ := strconv.ParseInt(strings.TrimSpace(env.GetEnv("PAYMOB_INTEGRATION_ID", "0")), 10, 64)

	return &Client{
		APIKey:        strings.TrimSpace(env.GetEnv("PAYMOB_API_KEY", "")),
		IntegrationID: integrationID,
		IframeID:      strings.TrimSpace(env.GetEnv("PAYMOB_IFRAME_ID", "")),
		ReturnURL:     strings.TrimSpace(env.GetEnv("PAYMOB_RETURN_URL", "")),
		BaseURL:       strings.TrimRight(env.GetEnv("PAYMOB_BASE_URL", defaultBaseURL), "/"),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// MinorUnits converts a major-unit decimal amount to integer cents,
// round-half-up (19.995 -> 2000, 19.994 -> 1999).
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// CreatePaymentSession performs the three-call Paymob sequence: authenticate,
// create the remote order, mint a payment token scoped to it. Any failing
// call aborts the whole operation and nothing from a partial run is used.
func (c *Client) CreatePaymentSession(ctx context.Context, orderID string, amount decimal.Decimal, currency string, customer Customer) (*PaymentSession, error) {
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, errors.New("PAYMOB_API_KEY is not configured")
	}
	if strings.TrimSpace(c.IframeID) == "" {
		return nil, errors.New("PAYMOB_IFRAME_ID is not configured")
	}

	authToken, err := c.authenticate(ctx)
	if err != nil {
		return nil, err
	}

	amountCents := MinorUnits(amount)
	remoteOrderID, err := c.createOrder(ctx, authToken, orderID, amountCents, currency)
	if err != nil {
		return nil, err
	}

	paymentToken, err := c.createPaymentKey(ctx, authToken, remoteOrderID, amountCents, currency, customer)
	if err != nil {
		return nil, err
	}

	return &PaymentSession{
		RemoteOrderID: remoteOrderID,
		PaymentToken:  paymentToken,
		RedirectURL:   c.IframeURL(paymentToken),
	}, nil
}

// IframeURL builds the checkout redirect URL for a minted payment token with
// the post-payment return address URL-encoded as a query parameter.
func (c *Client) IframeURL(paymentToken string) string {
	q := url.Values{}
	q.Set("payment_token", paymentToken)
	if c.ReturnURL != "" {
		q.Set("return_url", c.ReturnURL)
	}
	return fmt.Sprintf("%s/api/acceptance/iframes/%s?%s", c.BaseURL, c.IframeID, q.Encode())
}

func (c *Client) authenticate(ctx context.Context) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	err := c.postJSON(ctx, "/api/auth/tokens", "", map[string]any{
		"api_key": c.APIKey,
	}, &out)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out.Token) == "" {
		return "", &APIError{Endpoint: "/api/auth/tokens", Err: errors.New("empty auth token in response")}
	}
	return out.Token, nil
}

func (c *Client) createOrder(ctx context.Context, authToken, merchantOrderID string, amountCents int64, currency string) (int64, error) {
	var out struct {
		ID int64 `json:"id"`
	}
	err := c.postJSON(ctx, "/api/ecommerce/orders", authToken, map[string]any{
		"merchant_order_id": merchantOrderID,
		"amount_cents":      amountCents,
		"currency":          currency,
		"delivery_needed":   false,
		"items":             []any{},
	}, &out)
	if err != nil {
		return 0, err
	}
	if out.ID == 0 {
		return 0, &APIError{Endpoint: "/api/ecommerce/orders", Err: errors.New("missing order id in response")}
	}
	return out.ID, nil
}

func (c *Client) createPaymentKey(ctx context.Context, authToken string, remoteOrderID, amountCents int64, currency string, customer Customer) (string, error) {
	email := strings.TrimSpace(customer.Email)
	if email == "" {
		email = fallbackEmail
	}
	phone := strings.TrimSpace(customer.Phone)
	if phone == "" {
		phone = fallbackPhone
	}

	var out struct {
		Token string `json:"token"`
	}
	err := c.postJSON(ctx, "/api/acceptance/payment_keys", "", map[string]any{
		"auth_token":   authToken,
		"amount_cents": amountCents,
		"expiration":   3600,
		"order_id":     remoteOrderID,
		"billing_data": map[string]any{
			"apartment":       fieldNA,
			"email":           email,
			"floor":           fieldNA,
			"first_name":      "Customer",
			"last_name":       "Name",
			"street":          fieldNA,
			"building":        fieldNA,
			"phone_number":    phone,
			"shipping_method": fieldNA,
			"postal_code":     fieldNA,
			"city":            fieldNA,
			"country":         "EG",
			"state":           fieldNA,
		},
		"currency":       currency,
		"integration_id": c.IntegrationID,
	}, &out)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out.Token) == "" {
		return "", &APIError{Endpoint: "/api/acceptance/payment_keys", Err: errors.New("empty payment token in response")}
	}
	return out.Token, nil
}

func (c *Client) postJSON(ctx context.Context, endpoint, bearerToken string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &APIError{Endpoint: endpoint, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return &APIError{Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+bearerToken)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &APIError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Endpoint: endpoint, Status: resp.StatusCode, Body: string(respBody)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return &APIError{Endpoint: endpoint, Status: resp.StatusCode, Body: string(respBody), Err: err}
	}
	return nil
}
