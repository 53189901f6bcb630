// Package payment holds the payment record and its monotonic status rules.
package payment

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wondertwin-ai/loyaltypay/internal/apperr"
)

// Status is a payment attempt's state.
type Status string

// Payment statuses.
const (
	StatusInitiated  Status = "initiated"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// AwaitingConfirmation reports whether s can still be confirmed.
func (s Status) AwaitingConfirmation() bool {
	return s == StatusInitiated || s == StatusProcessing
}

// IsFinal reports whether s can never change again.
func (s Status) IsFinal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

// ParseStatus parses a payment status. "canceled" is accepted as a spelling
// of cancelled.
func ParseStatus(s string) (Status, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	if norm == "canceled" {
		norm = string(StatusCancelled)
	}
	switch st := Status(norm); st {
	case StatusInitiated, StatusProcessing, StatusSucceeded, StatusFailed, StatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown payment status %q", apperr.ErrInvalidStatus, s)
}

// Payment is one payment attempt for an order.
type Payment struct {
	ID              string          `json:"id"`
	OrderID         string          `json:"order_id"`
	Amount          decimal.Decimal `json:"amount"`
	Status          Status          `json:"status"`
	PaymentIntentID string          `json:"payment_intent_id,omitempty"`
	EventID         string          `json:"event_id,omitempty"`
	ClientSecret    string          `json:"client_secret,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Confirm moves a payment that is awaiting confirmation to a final status and
// consumes its client secret. A final payment is never resurrected.
func (p *Payment) Confirm(next Status, now time.Time) error {
	if !p.Status.AwaitingConfirmation() {
		return fmt.Errorf("payment %s is %s: %w", p.ID, p.Status, apperr.ErrAlreadyProcessed)
	}
	if !next.IsFinal() {
		return fmt.Errorf("payment %s cannot be confirmed as %q: %w", p.ID, next, apperr.ErrInvalidStatus)
	}
	p.Status = next
	p.UpdatedAt = now
	p.ClientSecret = ""
	return nil
}
