package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/webhook"
)

const (
	MetadataProjectID = "project_id"
	MetadataUserID    = "user_id"
)

var ErrSignatureInvalid = errors.New("webhook signature verification failed")

type CheckoutParams struct {
	ProjectID   uuid.UUID
	UserID      uuid.UUID
	Prompt      string
	AmountCents int64
	Currency    string
	ProductName string
	SuccessURL  string
	CancelURL   string
}

type CheckoutSession struct {
	ID  string
	URL string
}

// PaymentEvent is a verified webhook event reduced to what the ledger needs.
type PaymentEvent struct {
	ID            string
	Type          string
	Completed     bool // payment for the session is confirmed
	SessionID     string
	TransactionID string
	ProjectID     string
	UserID        string
	PaymentStatus string
}

type Client struct {
	sessions      session.Client
	webhookSecret string
	tolerance     time.Duration
}

func NewClient(secretKey, webhookSecret string) *Client {
	return NewClientWithBackend(stripe.GetBackend(stripe.APIBackend), secretKey, webhookSecret)
}

func NewClientWithBackend(backend stripe.Backend, secretKey, webhookSecret string) *Client {
	return &Client{
		sessions:      session.Client{B: backend, Key: secretKey},
		webhookSecret: webhookSecret,
		tolerance:     webhook.DefaultTolerance,
	}
}

func (c *Client) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(p.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(p.ProductName),
						Description: stripe.String("Transformation: " + excerpt(p.Prompt, 100)),
					},
					UnitAmount: stripe.Int64(p.AmountCents),
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(p.SuccessURL),
		CancelURL:         stripe.String(p.CancelURL),
		ClientReferenceID: stripe.String(p.ProjectID.String()),
	}
	params.Context = ctx
	params.AddMetadata(MetadataProjectID, p.ProjectID.String())
	params.AddMetadata(MetadataUserID, p.UserID.String())

	s, err := c.sessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	return &CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

// ParseEvent verifies the signature over the exact raw payload and decodes
// checkout session events. Other event types come back with only ID and Type.
func (c *Client) ParseEvent(payload []byte, signature string) (*PaymentEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, c.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                c.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	out := &PaymentEvent{ID: event.ID, Type: string(event.Type)}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
	default:
		return out, nil
	}

	var s stripe.CheckoutSession
	if event.Data == nil {
		return nil, fmt.Errorf("event %s has no data", event.ID)
	}
	if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
		return nil, fmt.Errorf("failed to decode checkout session: %w", err)
	}

	out.SessionID = s.ID
	out.PaymentStatus = string(s.PaymentStatus)
	out.ProjectID = s.Metadata[MetadataProjectID]
	out.UserID = s.Metadata[MetadataUserID]
	if s.PaymentIntent != nil {
		out.TransactionID = s.PaymentIntent.ID
	}

	// A completed session paid by a delayed method stays unpaid until
	// async_payment_succeeded arrives.
	out.Completed = event.Type == stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded ||
		s.PaymentStatus != stripe.CheckoutSessionPaymentStatusUnpaid

	return out, nil
}

func excerpt(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}
