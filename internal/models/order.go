package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus is the payment-level truth of an order. It only moves forward:
// pending -> paid or pending -> canceled.
type PaymentStatus string

const (
	StatusPending  PaymentStatus = "pending"
	StatusPaid     PaymentStatus = "paid"
	StatusCanceled PaymentStatus = "canceled"
)

// IsTerminal reports whether no further payment transition is valid.
func (s PaymentStatus) IsTerminal() bool {
	return s == StatusPaid || s == StatusCanceled
}

// FulfillmentStatus is the back-office workflow state. Staff own it; payment
// reconciliation never writes it.
type FulfillmentStatus string

const (
	FulfillmentPending    FulfillmentStatus = "pending"
	FulfillmentProcessing FulfillmentStatus = "processing"
	FulfillmentCompleted  FulfillmentStatus = "completed"
	FulfillmentCancelled  FulfillmentStatus = "cancelled"
)

func (s FulfillmentStatus) Valid() bool {
	switch s {
	case FulfillmentPending, FulfillmentProcessing, FulfillmentCompleted, FulfillmentCancelled:
		return true
	default:
		return false
	}
}

type PaymentProvider string

const (
	ProviderStripe PaymentProvider = "stripe"
	ProviderPayPal PaymentProvider = "paypal"
)

func (p PaymentProvider) Valid() bool {
	return p == ProviderStripe || p == ProviderPayPal
}

type MusicOption string

const (
	MusicDefault MusicOption = "default"
	MusicCustom  MusicOption = "custom"
)

type DeliveryMethod string

const (
	DeliveryStandard DeliveryMethod = "standard"
	DeliveryExpress  DeliveryMethod = "express"
)

type Order struct {
	ID                 uuid.UUID         `json:"id"`
	Status             PaymentStatus     `json:"status"`
	OrderStatus        FulfillmentStatus `json:"order_status"`
	Email              string            `json:"email"`
	Message            string            `json:"message"`
	GiftNote           string            `json:"gift_note,omitempty"`
	MusicOption        MusicOption       `json:"music_option"`
	MusicLink          string            `json:"music_link,omitempty"`
	MusicFileURL       string            `json:"music_file_url,omitempty"`
	DeliveryMethod     DeliveryMethod    `json:"delivery_method"`
	PhotoURL           string            `json:"photo_url"`
	TotalCents         int64             `json:"total_cents"`
	PaymentProvider    PaymentProvider   `json:"payment_provider,omitempty"`
	ProviderAttemptRef string            `json:"provider_attempt_ref,omitempty"`
	ProviderCaptureRef string            `json:"provider_capture_ref,omitempty"`
	Notes              string            `json:"notes,omitempty"`
	CostCents          int64             `json:"cost_cents"`
	CreatedAt          time.Time         `json:"created_at"`
	PaidAt             time.Time         `json:"paid_at,omitzero"`
	CanceledAt         time.Time         `json:"canceled_at,omitzero"`
}
