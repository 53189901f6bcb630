// Package checkout turns a cart into a pending checkout backed by a gateway
// payment intent, or, for carts paid entirely with loyalty points, directly
// into an order.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wondertwin-ai/loyaltypay/internal/apperr"
	"github.com/wondertwin-ai/loyaltypay/internal/catalog"
	"github.com/wondertwin-ai/loyaltypay/internal/gateway"
	"github.com/wondertwin-ai/loyaltypay/internal/loyalty"
	"github.com/wondertwin-ai/loyaltypay/internal/notify"
	"github.com/wondertwin-ai/loyaltypay/internal/order"
	"github.com/wondertwin-ai/loyaltypay/internal/pending"
	"github.com/wondertwin-ai/loyaltypay/internal/repo"
	"github.com/wondertwin-ai/loyaltypay/internal/service"
)

// Line is one requested cart line.
type Line struct {
	CatalogItemID string `json:"catalogItemId"`
	Quantity      int    `json:"quantity"`
}

// Request is a checkout request.
type Request struct {
	UserID          string   `json:"userId"`
	Items           []Line   `json:"items"`
	RedeemedItemIDs []string `json:"redeemedItemIds,omitempty"`
	OfferIDs        []string `json:"offerIds,omitempty"`
}

// Result is returned to the buyer. A paid checkout fills PendingCheckoutID and
// ClientSecret; a free checkout fills OrderID.
type Result struct {
	PendingCheckoutID string          `json:"pendingCheckoutId,omitempty"`
	ClientSecret      string          `json:"clientSecret,omitempty"`
	PublishableKey    string          `json:"publishableKey,omitempty"`
	OrderID           string          `json:"orderId,omitempty"`
	TotalAmount       decimal.Decimal `json:"totalAmount"`
}

// Free reports whether the checkout completed without a payment.
func (r *Result) Free() bool { return r.OrderID != "" }

// ItemNotFoundError lists every requested catalog id that does not exist.
type ItemNotFoundError struct {
	IDs []string
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("catalog items not found: %s", strings.Join(e.IDs, ", "))
}

func (e *ItemNotFoundError) Unwrap() error { return apperr.ErrItemNotFound }

// Config holds checkout settings.
type Config struct {
	Currency       string
	PublishableKey string
	// AllowFree lets carts with a zero paid total and at least one redeemed
	// item become orders without a gateway payment.
	AllowFree bool
}

// Deps are the Initiator's collaborators.
type Deps struct {
	Store   repo.Store
	Catalog catalog.Catalog
	Gateway gateway.Gateway
	Ledger  *loyalty.Ledger
	Sink    notify.Sink
	Clock   service.Clock
	Logger  *slog.Logger
	// NewID generates pending checkout and order ids. Defaults to uuid.NewString.
	NewID func() string
}

// Initiator starts checkouts.
type Initiator struct {
	deps Deps
	cfg  Config
	log  *slog.Logger
}

// NewInitiator creates an Initiator.
func NewInitiator(deps Deps, cfg Config) *Initiator {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	deps.Clock = service.OrSystem(deps.Clock)
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	return &Initiator{deps: deps, cfg: cfg, log: deps.Logger.With("component", "checkout")}
}

// Initiate prices the cart from the catalog and either opens a gateway
// payment intent with a pending checkout, or completes a free checkout.
// Nothing is persisted when an error is returned.
func (in *Initiator) Initiate(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, fmt.Errorf("checkout: %w: user id is required", apperr.ErrValidation)
	}
	for _, l := range req.Items {
		if l.CatalogItemID == "" {
			return nil, fmt.Errorf("checkout: %w: item without catalog id", apperr.ErrValidation)
		}
		if l.Quantity < 1 {
			return nil, fmt.Errorf("checkout: %w: item %s quantity %d", apperr.ErrValidation, l.CatalogItemID, l.Quantity)
		}
	}
	freeEligible := in.cfg.AllowFree && len(req.RedeemedItemIDs) > 0
	if len(req.Items) == 0 && !freeEligible {
		return nil, apperr.ErrEmptyCart
	}

	found, err := in.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := in.checkRedemptions(ctx, req); err != nil {
		return nil, err
	}

	lines := make([]pending.Line, 0, len(req.Items))
	total := decimal.Zero
	for _, l := range req.Items {
		it := found[l.CatalogItemID]
		line := pending.Line{
			CatalogItemID: it.ID,
			Name:          it.Name,
			Quantity:      l.Quantity,
			UnitPrice:     it.Price,
		}
		lines = append(lines, line)
		total = total.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}

	if !total.IsPositive() {
		if freeEligible {
			return in.completeFree(ctx, req, lines, found)
		}
		return nil, apperr.ErrZeroAmount
	}
	return in.openIntent(ctx, req, lines, total)
}

// resolve looks up every referenced catalog id and fails listing all missing ones.
func (in *Initiator) resolve(ctx context.Context, req Request) (map[string]catalog.Item, error) {
	seen := make(map[string]bool)
	var ids []string
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, l := range req.Items {
		add(l.CatalogItemID)
	}
	for _, id := range req.RedeemedItemIDs {
		add(id)
	}

	found, err := in.deps.Catalog.Items(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("checkout: resolve items: %w", err)
	}
	var missing []string
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, &ItemNotFoundError{IDs: missing}
	}
	return found, nil
}

// checkRedemptions rejects redeemed items that no offer pays for, and offers
// the buyer's account cannot cover right now. Offers are applied in request
// order to a copy of the account, which is never saved.
func (in *Initiator) checkRedemptions(ctx context.Context, req Request) error {
	if len(req.RedeemedItemIDs) > 0 && len(req.OfferIDs) == 0 {
		return fmt.Errorf("checkout: %w: redeemed items require an offer", apperr.ErrValidation)
	}
	if len(req.OfferIDs) == 0 {
		return nil
	}

	offers := make([]loyalty.Offer, 0, len(req.OfferIDs))
	for _, id := range req.OfferIDs {
		offer, err := in.deps.Catalog.Offer(ctx, id)
		if err != nil {
			return fmt.Errorf("checkout: %w", err)
		}
		offers = append(offers, offer)
	}

	var acct loyalty.Account
	err := in.deps.Store.WithinTx(ctx, func(tx repo.Tx) error {
		stored, err := tx.Loyalty().FindAccount(ctx, req.UserID)
		if errors.Is(err, repo.ErrNotFound) {
			acct = in.deps.Ledger.NewAccount(req.UserID)
			return nil
		}
		if err != nil {
			return err
		}
		acct = *stored
		return nil
	})
	if err != nil {
		return fmt.Errorf("checkout: load loyalty account: %w", err)
	}
	for _, offer := range offers {
		if _, err := in.deps.Ledger.Redeem(&acct, offer, ""); err != nil {
			return fmt.Errorf("checkout: %w", err)
		}
	}
	return nil
}

func (in *Initiator) openIntent(ctx context.Context, req Request, lines []pending.Line, total decimal.Decimal) (*Result, error) {
	checkoutID := in.deps.NewID()

	intent, err := in.deps.Gateway.CreatePaymentIntent(ctx, gateway.IntentRequest{
		Amount:   total,
		Currency: in.cfg.Currency,
		Metadata: map[string]string{
			"pending_checkout_id": checkoutID,
			"user_id":             req.UserID,
		},
		IdempotencyKey: checkoutID,
	})
	if err != nil {
		if !errors.Is(err, apperr.ErrGateway) {
			err = fmt.Errorf("%w: %v", apperr.ErrGateway, err)
		}
		in.log.Error("payment intent creation failed", "user_id", req.UserID, "err", err)
		return nil, err
	}

	snap, err := pending.NewSnapshot(lines)
	if err != nil {
		return nil, fmt.Errorf("checkout: %w", err)
	}
	pc := &pending.Checkout{
		ID:              checkoutID,
		UserID:          req.UserID,
		PaymentIntentID: intent.ID,
		Items:           snap,
		RedeemedItemIDs: pending.IDList(req.RedeemedItemIDs),
		OfferIDs:        pending.IDList(req.OfferIDs),
		TotalAmount:     total,
		CreatedAt:       in.deps.Clock.Now(),
	}
	if err := in.deps.Store.WithinTx(ctx, func(tx repo.Tx) error {
		return tx.PendingCheckouts().Create(ctx, pc)
	}); err != nil {
		return nil, fmt.Errorf("checkout: persist pending checkout: %w", err)
	}

	in.log.Info("checkout initiated",
		"pending_checkout_id", pc.ID,
		"intent_id", intent.ID,
		"user_id", req.UserID,
		"total", total.StringFixed(2),
	)
	return &Result{
		PendingCheckoutID: pc.ID,
		ClientSecret:      intent.ClientSecret,
		PublishableKey:    in.cfg.PublishableKey,
		TotalAmount:       total,
	}, nil
}

// completeFree creates the order directly. Offer redemptions are applied in
// the same unit of work and any ledger rejection aborts the checkout.
func (in *Initiator) completeFree(ctx context.Context, req Request, lines []pending.Line, found map[string]catalog.Item) (*Result, error) {
	now := in.deps.Clock.Now()

	items := make([]order.Item, 0, len(lines)+len(req.RedeemedItemIDs))
	for _, l := range lines {
		items = append(items, order.Item{
			CatalogItemID: l.CatalogItemID,
			Name:          l.Name,
			Quantity:      l.Quantity,
			UnitPrice:     l.UnitPrice,
		})
	}
	for _, id := range req.RedeemedItemIDs {
		items = append(items, order.Item{
			CatalogItemID: id,
			Name:          found[id].Name,
			Quantity:      1,
			UnitPrice:     decimal.Zero,
		})
	}

	o, err := order.New(in.deps.NewID(), req.UserID, items, now)
	if err != nil {
		return nil, fmt.Errorf("free checkout: %w", err)
	}

	err = in.deps.Store.WithinTx(ctx, func(tx repo.Tx) error {
		if err := tx.Orders().Create(ctx, o); err != nil {
			return err
		}
		if len(req.OfferIDs) == 0 {
			return nil
		}
		acct, err := repo.AccountFor(ctx, tx, in.deps.Ledger, req.UserID)
		if err != nil {
			return err
		}
		for _, offerID := range req.OfferIDs {
			offer, err := in.deps.Catalog.Offer(ctx, offerID)
			if err != nil {
				return err
			}
			txn, err := in.deps.Ledger.Redeem(acct, offer, o.ID)
			if err != nil {
				return err
			}
			if err := tx.Loyalty().AppendTransaction(ctx, txn); err != nil {
				return err
			}
		}
		return tx.Loyalty().SaveAccount(ctx, acct)
	})
	if err != nil {
		return nil, fmt.Errorf("free checkout: %w", err)
	}

	in.log.Info("free checkout completed", "order_id", o.ID, "user_id", req.UserID)
	n := notify.New(notify.TypeOrderCreated, o.ID, now)
	n.UserID = o.UserID
	n.Status = string(o.Status)
	n.TotalAmount = o.TotalAmount.StringFixed(2)
	notify.Send(ctx, in.deps.Sink, in.log, n)

	return &Result{OrderID: o.ID, TotalAmount: o.TotalAmount}, nil
}
