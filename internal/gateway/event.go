package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v76"

	"github.com/wondertwin-ai/loyaltypay/internal/apperr"
)

// Webhook event types this service reacts to.
const (
	TypePaymentSucceeded = "payment_intent.succeeded"
	TypePaymentFailed    = "payment_intent.payment_failed"
	TypePaymentCanceled  = "payment_intent.canceled"
)

// Event is a decoded webhook event. It is one of PaymentSucceeded,
// PaymentFailed, PaymentCanceled or Unhandled.
type Event interface {
	EventID() string
	event()
}

// PaymentSucceeded reports a captured payment intent.
type PaymentSucceeded struct {
	ID       string
	IntentID string
	Amount   int64 // minor units
}

// PaymentFailed reports a declined or errored payment intent.
type PaymentFailed struct {
	ID       string
	IntentID string
	Reason   string
}

// PaymentCanceled reports a canceled payment intent.
type PaymentCanceled struct {
	ID       string
	IntentID string
	Reason   string
}

// Unhandled is any other event type. It is acknowledged and ignored.
type Unhandled struct {
	ID   string
	Type string
}

func (e PaymentSucceeded) EventID() string { return e.ID }
func (e PaymentFailed) EventID() string    { return e.ID }
func (e PaymentCanceled) EventID() string  { return e.ID }
func (e Unhandled) EventID() string        { return e.ID }

func (PaymentSucceeded) event() {}
func (PaymentFailed) event()    {}
func (PaymentCanceled) event()  {}
func (Unhandled) event()        {}

// DecodeEvent parses a webhook payload. Payment intent events without an
// intent id are rejected with apperr.ErrValidation.
func DecodeEvent(payload []byte) (Event, error) {
	var evt stripe.Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("%w: decode webhook event: %v", apperr.ErrValidation, err)
	}
	if evt.ID == "" || evt.Type == "" {
		return nil, fmt.Errorf("%w: webhook event missing id or type", apperr.ErrValidation)
	}

	typ := string(evt.Type)
	switch typ {
	case TypePaymentSucceeded, TypePaymentFailed, TypePaymentCanceled:
	default:
		return Unhandled{ID: evt.ID, Type: typ}, nil
	}

	if evt.Data == nil || len(evt.Data.Raw) == 0 {
		return nil, fmt.Errorf("%w: event %s has no data object", apperr.ErrValidation, evt.ID)
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("%w: decode payment intent: %v", apperr.ErrValidation, err)
	}
	if pi.ID == "" {
		return nil, fmt.Errorf("%w: event %s has no payment intent id", apperr.ErrValidation, evt.ID)
	}

	switch typ {
	case TypePaymentSucceeded:
		return PaymentSucceeded{ID: evt.ID, IntentID: pi.ID, Amount: pi.Amount}, nil
	case TypePaymentFailed:
		reason := ""
		if pi.LastPaymentError != nil {
			reason = pi.LastPaymentError.Msg
		}
		return PaymentFailed{ID: evt.ID, IntentID: pi.ID, Reason: reason}, nil
	default:
		return PaymentCanceled{ID: evt.ID, IntentID: pi.ID, Reason: string(pi.CancellationReason)}, nil
	}
}

// EncodeEvent builds a webhook payload in the gateway's wire format. The
// local fake gateway and tests use it to simulate deliveries.
func EncodeEvent(eventID, eventType, intentID string, amount int64) ([]byte, error) {
	status := "succeeded"
	switch eventType {
	case TypePaymentFailed:
		status = "requires_payment_method"
	case TypePaymentCanceled:
		status = "canceled"
	}
	return json.Marshal(map[string]any{
		"id":     eventID,
		"object": "event",
		"type":   eventType,
		"data": map[string]any{
			"object": map[string]any{
				"id":     intentID,
				"object": "payment_intent",
				"amount": amount,
				"status": status,
			},
		},
	})
}
