// Package order holds the order entity and its status state machine.
package order

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wondertwin-ai/loyaltypay/internal/apperr"
)

// Item is an immutable order line. A zero UnitPrice marks a loyalty-redeemed item.
type Item struct {
	OrderID       string          `json:"order_id"`
	CatalogItemID string          `json:"catalog_item_id"`
	Name          string          `json:"name,omitempty"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
}

// Subtotal returns Quantity * UnitPrice.
func (it Item) Subtotal() decimal.Decimal {
	return it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// Order is a buyer's order. It is never deleted; cancellation is a status.
type Order struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Status      Status          `json:"status"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Items       []Item          `json:"items"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// New builds a Pending order from items. The total is the sum of item
// subtotals. Every item is stamped with the order id.
func New(id, userID string, items []Item, now time.Time) (*Order, error) {
	if id == "" || userID == "" {
		return nil, fmt.Errorf("new order: %w: id and user id are required", apperr.ErrValidation)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("new order: %w: no items", apperr.ErrValidation)
	}

	total := decimal.Zero
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if it.Quantity < 1 {
			return nil, fmt.Errorf("new order: %w: item %s quantity %d", apperr.ErrValidation, it.CatalogItemID, it.Quantity)
		}
		if it.UnitPrice.IsNegative() {
			return nil, fmt.Errorf("new order: %w: item %s negative price", apperr.ErrValidation, it.CatalogItemID)
		}
		it.OrderID = id
		total = total.Add(it.Subtotal())
		out = append(out, it)
	}

	return &Order{
		ID:          id,
		UserID:      userID,
		Status:      StatusPending,
		TotalAmount: total,
		Items:       out,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Transition moves the order to next and returns the prior status. On an
// illegal edge it returns *IllegalTransitionError and leaves the order untouched.
func (o *Order) Transition(next Status, now time.Time) (Status, error) {
	prior := o.Status
	if !CanTransition(prior, next) {
		return prior, &IllegalTransitionError{From: prior, To: next}
	}
	o.Status = next
	o.UpdatedAt = now
	return prior, nil
}

// Cancel is Transition(StatusCancelled). Only legal from Pending.
func (o *Order) Cancel(now time.Time) (Status, error) {
	return o.Transition(StatusCancelled, now)
}
