// Package paypal talks to the PayPal Orders v2 REST API.
package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	SandboxBaseURL = "https://api-m.sandbox.paypal.com"
	LiveBaseURL    = "https://api-m.paypal.com"

	maxResponseBytes = 1 << 20
)

// Order and capture statuses returned by the Orders API.
const (
	StatusCreated             = "CREATED"
	StatusSaved               = "SAVED"
	StatusApproved            = "APPROVED"
	StatusVoided              = "VOIDED"
	StatusCompleted           = "COMPLETED"
	StatusPayerActionRequired = "PAYER_ACTION_REQUIRED"

	CaptureStatusCompleted = "COMPLETED"
	CaptureStatusPending   = "PENDING"
	CaptureStatusDeclined  = "DECLINED"
	CaptureStatusFailed    = "FAILED"
)

const (
	issueOrderAlreadyCaptured   = "ORDER_ALREADY_CAPTURED"
	issueOrderNotApproved       = "ORDER_NOT_APPROVED"
	issueOrderCompletedOrVoided = "ORDER_COMPLETED_OR_VOIDED"
)

var (
	ErrAlreadyCaptured = errors.New("paypal order already captured")
	ErrNotApproved     = errors.New("paypal order not approved by payer")
	ErrOrderClosed     = errors.New("paypal order completed or voided")
)

// BaseURLForEnv maps PAYPAL_ENV to an API host. Anything but "live" is sandbox.
func BaseURLForEnv(env string) string {
	if strings.EqualFold(strings.TrimSpace(env), "live") {
		return LiveBaseURL
	}
	return SandboxBaseURL
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a client that fetches and refreshes its own bearer token.
// base is used for both the token and API calls and may be nil.
func NewClient(baseURL, clientID, clientSecret string, base *http.Client) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	if base == nil {
		base = http.DefaultClient
	}

	cfg := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     baseURL + "/v1/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, base)

	return &Client{
		baseURL:    baseURL,
		httpClient: cfg.Client(tokenCtx),
	}
}

type Money struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type Link struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method,omitempty"`
}

type Capture struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount *Money `json:"amount,omitempty"`
}

type PurchaseUnit struct {
	ReferenceID string `json:"reference_id,omitempty"`
	CustomID    string `json:"custom_id,omitempty"`
	Description string `json:"description,omitempty"`
	Amount      *Money `json:"amount,omitempty"`
	Payments    *struct {
		Captures []Capture `json:"captures"`
	} `json:"payments,omitempty"`
}

type Order struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	PurchaseUnits []PurchaseUnit `json:"purchase_units"`
	Links         []Link         `json:"links"`
}

// ApproveURL returns the link the buyer follows to approve the order.
func (o *Order) ApproveURL() string {
	for _, link := range o.Links {
		if link.Rel == "approve" || link.Rel == "payer-action" {
			return link.Href
		}
	}
	return ""
}

// FirstCapture returns the first capture of the first purchase unit.
func (o *Order) FirstCapture() (Capture, bool) {
	if len(o.PurchaseUnits) == 0 || o.PurchaseUnits[0].Payments == nil || len(o.PurchaseUnits[0].Payments.Captures) == 0 {
		return Capture{}, false
	}
	return o.PurchaseUnits[0].Payments.Captures[0], true
}

// CustomID returns the merchant reference stored on the order.
func (o *Order) CustomID() string {
	if len(o.PurchaseUnits) == 0 {
		return ""
	}
	return o.PurchaseUnits[0].CustomID
}

type CreateOrderRequest struct {
	// RequestID makes the create call idempotent on PayPal's side.
	RequestID   string
	CustomID    string
	Description string
	Amount      Money
	ReturnURL   string
	CancelURL   string
}

type createOrderBody struct {
	Intent             string             `json:"intent"`
	PurchaseUnits      []PurchaseUnit     `json:"purchase_units"`
	ApplicationContext applicationContext `json:"application_context"`
}

type applicationContext struct {
	ReturnURL          string `json:"return_url"`
	CancelURL          string `json:"cancel_url"`
	UserAction         string `json:"user_action"`
	ShippingPreference string `json:"shipping_preference"`
}

// APIError is PayPal's error envelope.
type APIError struct {
	StatusCode int    `json:"-"`
	Name       string `json:"name"`
	Message    string `json:"message"`
	DebugID    string `json:"debug_id"`
	Details    []struct {
		Issue       string `json:"issue"`
		Description string `json:"description"`
	} `json:"details"`
}

func (e *APIError) Error() string {
	issue := ""
	if len(e.Details) > 0 {
		issue = " (" + e.Details[0].Issue + ")"
	}
	return fmt.Sprintf("paypal api error %d %s: %s%s", e.StatusCode, e.Name, e.Message, issue)
}

func (e *APIError) hasIssue(issue string) bool {
	for _, d := range e.Details {
		if d.Issue == issue {
			return true
		}
	}
	return false
}

func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	body := createOrderBody{
		Intent: "CAPTURE",
		PurchaseUnits: []PurchaseUnit{{
			ReferenceID: req.CustomID,
			CustomID:    req.CustomID,
			Description: req.Description,
			Amount:      &req.Amount,
		}},
		ApplicationContext: applicationContext{
			ReturnURL:          req.ReturnURL,
			CancelURL:          req.CancelURL,
			UserAction:         "PAY_NOW",
			ShippingPreference: "NO_SHIPPING",
		},
	}

	var order Order
	if err := c.do(ctx, http.MethodPost, "/v2/checkout/orders", req.RequestID, body, &order); err != nil {
		return nil, fmt.Errorf("failed to create paypal order: %w", err)
	}
	return &order, nil
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	var order Order
	if err := c.do(ctx, http.MethodGet, "/v2/checkout/orders/"+url.PathEscape(orderID), "", nil, &order); err != nil {
		return nil, fmt.Errorf("failed to get paypal order: %w", err)
	}
	return &order, nil
}

// CaptureOrder captures an approved order. Business rejections are mapped to
// ErrAlreadyCaptured, ErrNotApproved and ErrOrderClosed.
func (c *Client) CaptureOrder(ctx context.Context, orderID, requestID string) (*Order, error) {
	var order Order
	err := c.do(ctx, http.MethodPost, "/v2/checkout/orders/"+url.PathEscape(orderID)+"/capture", requestID, struct{}{}, &order)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			switch {
			case apiErr.hasIssue(issueOrderAlreadyCaptured):
				return nil, fmt.Errorf("%w: %w", ErrAlreadyCaptured, err)
			case apiErr.hasIssue(issueOrderNotApproved):
				return nil, fmt.Errorf("%w: %w", ErrNotApproved, err)
			case apiErr.hasIssue(issueOrderCompletedOrVoided):
				return nil, fmt.Errorf("%w: %w", ErrOrderClosed, err)
			}
		}
		return nil, fmt.Errorf("failed to capture paypal order: %w", err)
	}
	return &order, nil
}

func (c *Client) do(ctx context.Context, method, path, requestID string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if requestID != "" {
		req.Header.Set("PayPal-Request-Id", requestID)
	}
	if method == http.MethodPost {
		req.Header.Set("Prefer", "return=representation")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if jsonErr := json.Unmarshal(data, apiErr); jsonErr != nil || apiErr.Name == "" {
			apiErr.Name = http.StatusText(resp.StatusCode)
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
