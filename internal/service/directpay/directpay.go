// Package directpay creates and confirms payments for orders that already
// exist, outside the checkout and webhook flow.
package directpay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/wondertwin-ai/loyaltypay/internal/apperr"
	"github.com/wondertwin-ai/loyaltypay/internal/gateway"
	"github.com/wondertwin-ai/loyaltypay/internal/loyalty"
	"github.com/wondertwin-ai/loyaltypay/internal/order"
	"github.com/wondertwin-ai/loyaltypay/internal/payment"
	"github.com/wondertwin-ai/loyaltypay/internal/repo"
	"github.com/wondertwin-ai/loyaltypay/internal/service"
)

// Deps are the Handler's collaborators.
type Deps struct {
	Store    repo.Store
	Gateway  gateway.Gateway
	Ledger   *loyalty.Ledger
	Clock    service.Clock
	Logger   *slog.Logger
	NewID    func() string
	Currency string
}

// Handler creates and confirms direct payments.
type Handler struct {
	deps Deps
	log  *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(deps Deps) *Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	if deps.Currency == "" {
		deps.Currency = "usd"
	}
	deps.Clock = service.OrSystem(deps.Clock)
	return &Handler{deps: deps, log: deps.Logger.With("component", "directpay")}
}

// CreatePayment opens a payment for a pending order. If the order already
// has a processing or succeeded payment, that payment is returned unchanged
// with created=false.
func (h *Handler) CreatePayment(ctx context.Context, orderID string) (p *payment.Payment, created bool, err error) {
	var (
		o        *order.Order
		existing *payment.Payment
	)
	err = h.deps.Store.WithinTx(ctx, func(tx repo.Tx) error {
		var err error
		o, err = tx.Orders().Get(ctx, orderID)
		if err != nil {
			return service.NotFound(err, apperr.ErrOrderNotFound, orderID)
		}
		if o.Status != order.StatusPending {
			return fmt.Errorf("order %s is %s: %w", orderID, o.Status, apperr.ErrOrderNotPending)
		}
		existing, err = tx.Payments().FindActiveForOrder(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			existing = nil
			return nil
		}
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	paymentID := h.deps.NewID()
	intent, err := h.deps.Gateway.CreatePaymentIntent(ctx, gateway.IntentRequest{
		Amount:         o.TotalAmount,
		Currency:       h.deps.Currency,
		Metadata:       map[string]string{"order_id": o.ID, "payment_id": paymentID},
		IdempotencyKey: paymentID,
	})
	if err != nil {
		if !errors.Is(err, apperr.ErrGateway) {
			err = fmt.Errorf("%w: %v", apperr.ErrGateway, err)
		}
		h.log.Error("payment intent creation failed", "order_id", orderID, "err", err)
		return nil, false, err
	}

	now := h.deps.Clock.Now()
	p = &payment.Payment{
		ID:              paymentID,
		OrderID:         o.ID,
		Amount:          o.TotalAmount,
		Status:          payment.StatusProcessing,
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	// Re-check inside the write so two concurrent creations cannot both persist.
	err = h.deps.Store.WithinTx(ctx, func(tx repo.Tx) error {
		active, err := tx.Payments().FindActiveForOrder(ctx, orderID)
		if err == nil {
			existing = active
			return nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		return tx.Payments().Create(ctx, p)
	})
	if err != nil {
		return nil, false, fmt.Errorf("persist payment: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	h.log.Info("payment created", "payment_id", p.ID, "order_id", o.ID, "intent_id", intent.ID)
	return p, true, nil
}

// Get returns the payment with paymentID.
func (h *Handler) Get(ctx context.Context, paymentID string) (*payment.Payment, error) {
	var p *payment.Payment
	err := h.deps.Store.WithinTx(ctx, func(tx repo.Tx) error {
		var err error
		p, err = tx.Payments().Get(ctx, paymentID)
		if err != nil {
			return service.NotFound(err, apperr.ErrPaymentNotFound, paymentID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Confirm moves a payment awaiting confirmation to a final status. On
// success the order owner earns points for the payment amount in the same
// unit of work.
func (h *Handler) Confirm(ctx context.Context, paymentID string, next payment.Status) (*payment.Payment, error) {
	var p *payment.Payment
	err := h.deps.Store.WithinTx(ctx, func(tx repo.Tx) error {
		var err error
		p, err = tx.Payments().Get(ctx, paymentID)
		if err != nil {
			return service.NotFound(err, apperr.ErrPaymentNotFound, paymentID)
		}
		if err := p.Confirm(next, h.deps.Clock.Now()); err != nil {
			return err
		}
		if err := tx.Payments().Update(ctx, p); err != nil {
			return err
		}
		if next != payment.StatusSucceeded {
			return nil
		}

		o, err := tx.Orders().Get(ctx, p.OrderID)
		if err != nil {
			return service.NotFound(err, apperr.ErrOrderNotFound, p.OrderID)
		}
		acct, err := repo.AccountFor(ctx, tx, h.deps.Ledger, o.UserID)
		if err != nil {
			return err
		}
		txn, err := h.deps.Ledger.Award(acct, o.ID, p.Amount)
		if err != nil {
			return err
		}
		if txn == nil {
			return nil
		}
		if err := tx.Loyalty().AppendTransaction(ctx, txn); err != nil {
			return err
		}
		return tx.Loyalty().SaveAccount(ctx, acct)
	})
	if err != nil {
		return nil, err
	}
	h.log.Info("payment confirmed", "payment_id", p.ID, "order_id", p.OrderID, "status", p.Status)
	return p, nil
}
