// Package settlement turns gateway webhook deliveries into orders, payments
// and loyalty ledger updates, exactly once per payment intent.
package settlement

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/wondertwin-ai/loyaltypay/internal/catalog"
	"github.com/wondertwin-ai/loyaltypay/internal/gateway"
	"github.com/wondertwin-ai/loyaltypay/internal/loyalty"
	"github.com/wondertwin-ai/loyaltypay/internal/notify"
	"github.com/wondertwin-ai/loyaltypay/internal/order"
	"github.com/wondertwin-ai/loyaltypay/internal/payment"
	"github.com/wondertwin-ai/loyaltypay/internal/pending"
	"github.com/wondertwin-ai/loyaltypay/internal/repo"
	"github.com/wondertwin-ai/loyaltypay/internal/service"
)

// Verifier checks a webhook signature header against its payload.
type Verifier interface {
	Verify(payload []byte, header string) error
}

// Deps are the Processor's collaborators.
type Deps struct {
	Store    repo.Store
	Catalog  catalog.Catalog
	Ledger   *loyalty.Ledger
	Verifier Verifier
	Sink     notify.Sink
	Clock    service.Clock
	Logger   *slog.Logger
	NewID    func() string
}

// Processor handles gateway webhooks.
type Processor struct {
	deps  Deps
	log   *slog.Logger
	group singleflight.Group
}

// errLostRace aborts a unit of work whose checkout was claimed concurrently.
var errLostRace = errors.New("pending checkout claimed concurrently")

// NewProcessor creates a Processor.
func NewProcessor(deps Deps) *Processor {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	deps.Clock = service.OrSystem(deps.Clock)
	return &Processor{deps: deps, log: deps.Logger.With("component", "settlement")}
}

// HandleWebhook verifies and processes one webhook delivery. The signature
// is checked before the payload is decoded. A nil return means the delivery
// should be acknowledged, which includes duplicates, unknown intents and
// event types this service ignores.
func (p *Processor) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error {
	if err := p.deps.Verifier.Verify(payload, signatureHeader); err != nil {
		p.log.Warn("webhook rejected", "err", err)
		return err
	}

	evt, err := gateway.DecodeEvent(payload)
	if err != nil {
		p.log.Error("webhook payload undecodable", "err", err)
		return err
	}

	// Once started, a unit of work runs to completion even if the sender hangs up.
	ctx = context.WithoutCancel(ctx)

	switch e := evt.(type) {
	case gateway.PaymentSucceeded:
		_, err, shared := p.group.Do(e.IntentID, func() (any, error) {
			return nil, p.settle(ctx, e)
		})
		if shared {
			p.log.Debug("concurrent delivery collapsed", "intent_id", e.IntentID, "event_id", e.ID)
		}
		return err
	case gateway.PaymentFailed:
		p.log.Info("payment failed", "intent_id", e.IntentID, "event_id", e.ID, "reason", e.Reason)
		return p.close(ctx, e.IntentID)
	case gateway.PaymentCanceled:
		p.log.Info("payment canceled", "intent_id", e.IntentID, "event_id", e.ID, "reason", e.Reason)
		return p.close(ctx, e.IntentID)
	case gateway.Unhandled:
		p.log.Info("ignoring webhook event", "event_id", e.ID, "type", e.Type)
		return nil
	default:
		p.log.Info("ignoring webhook event", "event_id", evt.EventID())
		return nil
	}
}

// close marks the intent's pending checkout processed without creating
// anything. A missing or already processed checkout is not an error.
func (p *Processor) close(ctx context.Context, intentID string) error {
	err := p.deps.Store.WithinTx(ctx, func(tx repo.Tx) error {
		pc, err := tx.PendingCheckouts().FindUnprocessed(ctx, intentID)
		if errors.Is(err, repo.ErrNotFound) {
			p.log.Info("no pending checkout to close", "intent_id", intentID)
			return nil
		}
		if err != nil {
			return err
		}
		if err := tx.PendingCheckouts().MarkProcessed(ctx, pc.ID); err != nil {
			if errors.Is(err, repo.ErrAlreadyClaimed) {
				return nil
			}
			return err
		}
		p.log.Info("pending checkout closed", "pending_checkout_id", pc.ID, "intent_id", intentID)
		return nil
	})
	return err
}

func (p *Processor) settle(ctx context.Context, e gateway.PaymentSucceeded) error {
	log := p.log.With("intent_id", e.IntentID, "event_id", e.ID)
	now := p.deps.Clock.Now()

	var created *order.Order
	err := p.deps.Store.WithinTx(ctx, func(tx repo.Tx) error {
		pc, err := tx.PendingCheckouts().FindUnprocessed(ctx, e.IntentID)
		if errors.Is(err, repo.ErrNotFound) {
			log.Info("no unprocessed checkout for intent, treating as duplicate")
			return nil
		}
		if err != nil {
			return err
		}

		lines, err := pc.Items.Lines()
		if err != nil {
			log.Error("pending checkout has unusable item snapshot", "pending_checkout_id", pc.ID, "err", err)
			return nil
		}
		if e.Amount != 0 && e.Amount != gateway.MinorUnits(pc.TotalAmount) {
			log.Warn("captured amount differs from checkout total",
				"captured_minor", e.Amount,
				"expected", pc.TotalAmount.StringFixed(2),
			)
		}

		names := p.redeemedNames(ctx, log, pc.RedeemedItemIDs)
		o, err := order.New(p.deps.NewID(), pc.UserID, orderItems(lines, pc.RedeemedItemIDs, names), now)
		if err != nil {
			return err
		}
		if err := tx.Orders().Create(ctx, o); err != nil {
			return err
		}

		pay := &payment.Payment{
			ID:              p.deps.NewID(),
			OrderID:         o.ID,
			Amount:          pc.TotalAmount,
			Status:          payment.StatusSucceeded,
			PaymentIntentID: pc.PaymentIntentID,
			EventID:         e.ID,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.Payments().Create(ctx, pay); err != nil {
			return err
		}

		if err := tx.PendingCheckouts().MarkProcessed(ctx, pc.ID); err != nil {
			if errors.Is(err, repo.ErrAlreadyClaimed) {
				return errLostRace
			}
			return err
		}

		if err := p.applyLoyalty(ctx, tx, log, pc, o); err != nil {
			return err
		}
		created = o
		return nil
	})
	if errors.Is(err, errLostRace) {
		log.Info("checkout settled by a concurrent delivery")
		return nil
	}
	if err != nil {
		log.Error("settlement failed", "err", err)
		return err
	}
	if created == nil {
		return nil
	}

	log.Info("order settled", "order_id", created.ID, "user_id", created.UserID, "total", created.TotalAmount.StringFixed(2))
	n := notify.New(notify.TypeOrderCreated, created.ID, now)
	n.UserID = created.UserID
	n.Status = string(created.Status)
	n.TotalAmount = created.TotalAmount.StringFixed(2)
	notify.Send(ctx, p.deps.Sink, log, n)
	return nil
}

// applyLoyalty redeems the checkout's offers, then awards points on the order
// total. Checkout already verified every offer against the account, so a
// skip here means the offer or the balance changed while the payment was in
// flight; the payment has already been captured.
func (p *Processor) applyLoyalty(ctx context.Context, tx repo.Tx, log *slog.Logger, pc *pending.Checkout, o *order.Order) error {
	acct, err := repo.AccountFor(ctx, tx, p.deps.Ledger, pc.UserID)
	if err != nil {
		return err
	}

	for _, offerID := range pc.OfferIDs {
		offer, err := p.deps.Catalog.Offer(ctx, offerID)
		if err != nil {
			log.Warn("skipping unresolvable offer", "offer_id", offerID, "err", err)
			continue
		}
		txn, err := p.deps.Ledger.Redeem(acct, offer, o.ID)
		if err != nil {
			log.Warn("skipping rejected redemption", "offer_id", offerID, "err", err)
			continue
		}
		if err := tx.Loyalty().AppendTransaction(ctx, txn); err != nil {
			return err
		}
	}

	txn, err := p.deps.Ledger.Award(acct, o.ID, o.TotalAmount)
	if err != nil {
		return err
	}
	if txn != nil {
		if err := tx.Loyalty().AppendTransaction(ctx, txn); err != nil {
			return err
		}
	}
	return tx.Loyalty().SaveAccount(ctx, acct)
}

// redeemedNames looks up display names for redeemed items. Names missing from
// the catalog stay empty; a lookup failure never blocks settlement.
func (p *Processor) redeemedNames(ctx context.Context, log *slog.Logger, ids []string) map[string]string {
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names
	}
	found, err := p.deps.Catalog.Items(ctx, ids)
	if err != nil {
		log.Warn("redeemed item names unavailable", "err", err)
		return names
	}
	for id, it := range found {
		names[id] = it.Name
	}
	return names
}

// orderItems builds one item per priced line at its snapshot price, plus one
// zero-priced item per redeemed catalog id.
func orderItems(lines []pending.Line, redeemed []string, names map[string]string) []order.Item {
	items := make([]order.Item, 0, len(lines)+len(redeemed))
	for _, l := range lines {
		items = append(items, order.Item{
			CatalogItemID: l.CatalogItemID,
			Name:          l.Name,
			Quantity:      l.Quantity,
			UnitPrice:     l.UnitPrice,
		})
	}
	for _, id := range redeemed {
		items = append(items, order.Item{
			CatalogItemID: id,
			Name:          names[id],
			Quantity:      1,
			UnitPrice:     decimal.Zero,
		})
	}
	return items
}
