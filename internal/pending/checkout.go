// Package pending holds the pending-checkout snapshot that links a gateway
// payment intent to the cart it was priced from.
package pending

import (
	"time"

	"github.com/shopspring/decimal"
)

// Checkout is an unpaid cart awaiting gateway confirmation. It is created once
// at checkout, flipped to processed exactly once by settlement, and never
// deleted.
type Checkout struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	PaymentIntentID string          `json:"payment_intent_id"`
	Items           Snapshot        `json:"items"`
	RedeemedItemIDs IDList          `json:"redeemed_item_ids"`
	OfferIDs        IDList          `json:"offer_ids"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	IsProcessed     bool            `json:"is_processed"`
	CreatedAt       time.Time       `json:"created_at"`
}
