// Package gateway is the boundary to the external payment gateway: creating
// payment intents, verifying webhook signatures and decoding webhook events.
// The wire format is Stripe's.
package gateway

import (
	"context"

	"github.com/shopspring/decimal"
)

// IntentRequest asks the gateway for a payment intent.
type IntentRequest struct {
	Amount   decimal.Decimal
	Currency string
	Metadata map[string]string
	// IdempotencyKey makes retried creations return the same intent.
	IdempotencyKey string
}

// Intent is a created payment intent.
type Intent struct {
	ID           string
	ClientSecret string
}

// Gateway creates payment intents.
type Gateway interface {
	CreatePaymentIntent(ctx context.Context, req IntentRequest) (Intent, error)
}

// MinorUnits converts a currency amount to integer minor units (cents),
// rounding half away from zero.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// FromMinorUnits converts integer minor units back to a currency amount.
func FromMinorUnits(units int64) decimal.Decimal {
	return decimal.New(units, -2)
}
