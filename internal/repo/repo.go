// Package repo defines the persistence boundary: one repository per aggregate
// and a unit of work that commits them together.
package repo

import (
	"context"
	"errors"

	"github.com/wondertwin-ai/loyaltypay/internal/loyalty"
	"github.com/wondertwin-ai/loyaltypay/internal/order"
	"github.com/wondertwin-ai/loyaltypay/internal/payment"
	"github.com/wondertwin-ai/loyaltypay/internal/pending"
)

// ErrNotFound is returned by repository lookups that match nothing.
var ErrNotFound = errors.New("not found")

// ErrAlreadyClaimed is returned by MarkProcessed when the checkout was already
// processed, possibly by a concurrent unit of work.
var ErrAlreadyClaimed = errors.New("pending checkout already processed")

// PendingCheckouts persists pending checkout snapshots.
type PendingCheckouts interface {
	Create(ctx context.Context, c *pending.Checkout) error
	// FindUnprocessed returns the checkout for intentID with IsProcessed false.
	FindUnprocessed(ctx context.Context, intentID string) (*pending.Checkout, error)
	// MarkProcessed flips IsProcessed from false to true. It returns
	// ErrAlreadyClaimed if the flag was already set.
	MarkProcessed(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*pending.Checkout, error)
}

// Orders persists orders together with their items.
type Orders interface {
	Create(ctx context.Context, o *order.Order) error
	Get(ctx context.Context, id string) (*order.Order, error)
	UpdateStatus(ctx context.Context, o *order.Order) error
}

// Payments persists payment attempts.
type Payments interface {
	Create(ctx context.Context, p *payment.Payment) error
	Get(ctx context.Context, id string) (*payment.Payment, error)
	// FindActiveForOrder returns the order's payment that is processing or
	// succeeded, if any.
	FindActiveForOrder(ctx context.Context, orderID string) (*payment.Payment, error)
	Update(ctx context.Context, p *payment.Payment) error
}

// Loyalty persists accounts and their append-only transactions.
type Loyalty interface {
	FindAccount(ctx context.Context, userID string) (*loyalty.Account, error)
	SaveAccount(ctx context.Context, a *loyalty.Account) error
	AppendTransaction(ctx context.Context, t *loyalty.Transaction) error
	// Transactions lists an account's ledger rows, newest first.
	Transactions(ctx context.Context, accountID string) ([]loyalty.Transaction, error)
}

// Tx is a unit of work. Everything written through it commits or rolls back together.
type Tx interface {
	PendingCheckouts() PendingCheckouts
	Orders() Orders
	Payments() Payments
	Loyalty() Loyalty
}

// Store opens units of work.
type Store interface {
	// WithinTx runs fn in a unit of work. A nil return commits; any error
	// rolls back every write made through tx.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// AccountFor loads the user's loyalty account, creating an empty one if absent.
func AccountFor(ctx context.Context, tx Tx, ledger *loyalty.Ledger, userID string) (*loyalty.Account, error) {
	acct, err := tx.Loyalty().FindAccount(ctx, userID)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	fresh := ledger.NewAccount(userID)
	if err := tx.Loyalty().SaveAccount(ctx, &fresh); err != nil {
		return nil, err
	}
	return &fresh, nil
}
