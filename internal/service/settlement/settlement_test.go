package settlement

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wondertwin-ai/loyaltypay/internal/apperr"
	"github.com/wondertwin-ai/loyaltypay/internal/gateway"
	"github.com/wondertwin-ai/loyaltypay/internal/loyalty"
	"github.com/wondertwin-ai/loyaltypay/internal/notify"
	"github.com/wondertwin-ai/loyaltypay/internal/order"
	"github.com/wondertwin-ai/loyaltypay/internal/payment"
	"github.com/wondertwin-ai/loyaltypay/internal/pending"
	"github.com/wondertwin-ai/loyaltypay/internal/repo"
	"github.com/wondertwin-ai/loyaltypay/internal/service/checkout"
	"github.com/wondertwin-ai/loyaltypay/internal/service/servicetest"
)

func newProcessor(f *servicetest.Fixture) *Processor {
	return NewProcessor(Deps{
		Store:    f.Store,
		Catalog:  f.Catalog,
		Ledger:   f.Ledger,
		Verifier: f.Verifier,
		Sink:     f.Sink,
		Clock:    f.Clock,
	})
}

// startCheckout runs a real checkout and returns the intent id it opened.
func startCheckout(t *testing.T, f *servicetest.Fixture, req checkout.Request) string {
	t.Helper()
	in := checkout.NewInitiator(checkout.Deps{
		Store:   f.Store,
		Catalog: f.Catalog,
		Gateway: f.Gateway,
		Ledger:  f.Ledger,
		Clock:   f.Clock,
	}, checkout.Config{})
	res, err := in.Initiate(context.Background(), req)
	require.NoError(t, err)
	pc, ok := f.Store.Checkouts.Get(res.PendingCheckoutID)
	require.True(t, ok)
	return pc.PaymentIntentID
}

func latteAndBagel(userID string) checkout.Request {
	return checkout.Request{
		UserID: userID,
		Items: []checkout.Line{
			{CatalogItemID: "latte", Quantity: 1},
			{CatalogItemID: "bagel", Quantity: 1},
		},
	}
}

func onlyOrder(t *testing.T, f *servicetest.Fixture) order.Order {
	t.Helper()
	orders := f.Store.Orders.List()
	require.Len(t, orders, 1)
	return orders[0]
}

func TestSucceededWebhookSettlesCheckout(t *testing.T) {
	f := servicetest.New(t)
	p := newProcessor(f)
	intentID := startCheckout(t, f, latteAndBagel("u1"))

	payload, header := f.SignedWebhook(t, gateway.TypePaymentSucceeded, intentID)
	require.NoError(t, p.HandleWebhook(context.Background(), payload, header))

	o := onlyOrder(t, f)
	assert.Equal(t, "u1", o.UserID)
	assert.Equal(t, order.StatusPending, o.Status)
	assert.True(t, o.TotalAmount.Equal(decimal.RequireFromString("45.00")))
	require.Len(t, o.Items, 2)
	assert.True(t, o.Items[0].UnitPrice.Equal(decimal.RequireFromString("25")))

	pays := f.Store.Payments.List()
	require.Len(t, pays, 1)
	assert.Equal(t, payment.StatusSucceeded, pays[0].Status)
	assert.Equal(t, o.ID, pays[0].OrderID)
	assert.Equal(t, intentID, pays[0].PaymentIntentID)
	assert.NotEmpty(t, pays[0].EventID)

	pcs := f.Store.Checkouts.List()
	require.Len(t, pcs, 1)
	assert.True(t, pcs[0].IsProcessed)

	acct := f.Account(t, "u1")
	assert.Equal(t, int64(45), acct.CurrentPoints)
	assert.Equal(t, int64(45), acct.LifetimePoints)

	rows := f.Transactions(t, "u1")
	require.Len(t, rows, 1)
	assert.Equal(t, loyalty.TransactionEarned, rows[0].Type)
	assert.Equal(t, o.ID, rows[0].OrderID)

	sent := f.Sink.Drain()
	require.Len(t, sent, 1)
	assert.Equal(t, notify.TypeOrderCreated, sent[0].Type)
	assert.Equal(t, o.ID, sent[0].OrderID)
	assert.Equal(t, "45.00", sent[0].TotalAmount)
}

func TestDuplicateDeliveryIsNoOp(t *testing.T) {
	f := servicetest.New(t)
	p := newProcessor(f)
	intentID := startCheckout(t, f, latteAndBagel("u1"))

	payload, header := f.SignedWebhook(t, gateway.TypePaymentSucceeded, intentID)
	require.NoError(t, p.HandleWebhook(context.Background(), payload, header))
	require.NoError(t, p.HandleWebhook(context.Background(), payload, header))

	again, header2 := f.SignedWebhook(t, gateway.TypePaymentSucceeded, intentID)
	require.NoError(t, p.HandleWebhook(context.Background(), again, header2))

	assert.Equal(t, 1, f.Store.Orders.Count())
	assert.Equal(t, 1, f.Store.Payments.Count())
	assert.Equal(t, int64(45), f.Account(t, "u1").CurrentPoints)
	assert.Len(t, f.Sink.Drain(), 1)
}

func TestConcurrentDeliveriesCreateOneOrder(t *testing.T) {
	f := servicetest.New(t)
	p := newProcessor(f)
	intentID := startCheckout(t, f, latteAndBagel("u1"))
	payload, header := f.SignedWebhook(t, gateway.TypePaymentSucceeded, intentID)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- p.HandleWebhook(context.Background(), payload, header)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	assert.Equal(t, 1, f.Store.Orders.Count())
	assert.Equal(t, 1, f.Store.Payments.Count())
	assert.Equal(t, int64(45), f.Account(t, "u1").LifetimePoints)
}

func TestSeparateProcessorsRaceOnOneCheckout(t *testing.T) {
	f := servicetest.New(t)
	intentID := startCheckout(t, f, latteAndBagel("u1"))
	payload, header := f.SignedWebhook(t, gateway.TypePaymentSucceeded, intentID)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, newProcessor(f).HandleWebhook(context.Background(), payload, header))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.Store.Orders.Count())
	assert.Len(t, f.Transactions(t, "u1"), 1)
}

func TestSettlementRedeemsOffersThenAwards(t *testing.T) {
	f := servicetest.New(t)
	f.SeedAccount(t, "u1", 500, 5000)
	p := newProcessor(f)

	req := latteAndBagel("u1")
	req.RedeemedItemIDs = []string{"cookie"}
	req.OfferIDs = []string{"free-cookie"}
	intentID := startCheckout(t, f, req)

	payload, header := f.SignedWebhook(t, gateway.TypePaymentSucceeded, intentID)
	require.NoError(t, p.HandleWebhook(context.Background(), payload, header))

	o := onlyOrder(t, f)
	require.Len(t, o.Items, 3)
	assert.Equal(t, "cookie", o.Items[2].CatalogItemID)
	assert.True(t, o.Items[2].UnitPrice.IsZero())
	assert.True(t, o.TotalAmount.Equal(decimal.NewFromInt(45)))

	// Silver earns 45 * 1.25 = 56.25, floored.
	acct := f.Account(t, "u1")
	assert.Equal(t, int64(500-100+56), acct.CurrentPoints)
	assert.Equal(t, int64(5056), acct.LifetimePoints)

	rows := f.Transactions(t, "u1")
	require.Len(t, rows, 2)
	var types []loyalty.TransactionType
	for _, r := range rows {
		types = append(types, r.Type)
	}
	assert.ElementsMatch(t, []loyalty.TransactionType{loyalty.TransactionEarned, loyalty.TransactionRedeemed}, types)
}

func TestSettlementSkipsOffersChangedInFlight(t *testing.T) {
	f := servicetest.New(t)
	f.SeedAccount(t, "u1", 900, 900)
	for _, o := range []loyalty.Offer{
		{ID: "promo-tier", Title: "Tier promo", PointCost: 10, Active: true},
		{ID: "promo-retiring", Title: "Retiring promo", PointCost: 10, Active: true},
		{ID: "promo-repriced", Title: "Repriced promo", PointCost: 10, Active: true},
	} {
		f.Catalog.PutOffer(o)
	}
	p := newProcessor(f)

	req := latteAndBagel("u1")
	req.RedeemedItemIDs = []string{"cookie"}
	req.OfferIDs = []string{"free-cookie", "promo-tier", "promo-retiring", "promo-repriced"}
	intentID := startCheckout(t, f, req)

	// The catalog changes while the payment is in flight.
	f.Catalog.RemoveOffer("free-cookie")
	f.Catalog.PutOffer(loyalty.Offer{ID: "promo-tier", Title: "Tier promo", PointCost: 10, MinimumTier: loyalty.TierGold, Active: true})
	f.Catalog.PutOffer(loyalty.Offer{ID: "promo-retiring", Title: "Retiring promo", PointCost: 10, Active: false})
	f.Catalog.PutOffer(loyalty.Offer{ID: "promo-repriced", Title: "Repriced promo", PointCost: 5000, Active: true})

	payload, header := f.SignedWebhook(t, gateway.TypePaymentSucceeded, intentID)
	require.NoError(t, p.HandleWebhook(context.Background(), payload, header))

	o := onlyOrder(t, f)
	assert.Len(t, o.Items, 3)
	acct := f.Account(t, "u1")
	// Every offer is skipped: removed, tier raised, retired, repriced.
	assert.Equal(t, int64(900+45), acct.CurrentPoints)
	rows := f.Transactions(t, "u1")
	require.Len(t, rows, 1)
	assert.Equal(t, loyalty.TransactionEarned, rows[0].Type)
}

func TestSettlementNamesRedeemedItems(t *testing.T) {
	f := servicetest.New(t)
	f.SeedAccount(t, "u1", 500, 500)
	p := newProcessor(f)

	req := latteAndBagel("u1")
	req.RedeemedItemIDs = []string{"cookie"}
	req.OfferIDs = []string{"free-cookie"}
	intentID := startCheckout(t, f, req)

	payload, header := f.SignedWebhook(t, gateway.TypePaymentSucceeded, intentID)
	require.NoError(t, p.HandleWebhook(context.Background(), payload, header))

	o := onlyOrder(t, f)
	require.Len(t, o.Items, 3)
	assert.Equal(t, "Latte", o.Items[0].Name)
	assert.Equal(t, "Cookie", o.Items[2].Name)
	assert.True(t, o.Items[2].UnitPrice.IsZero())
}

func TestFailedAndCanceledCloseCheckout(t *testing.T) {
	for _, eventType := range []string{gateway.TypePaymentFailed, gateway.TypePaymentCanceled} {
		t.Run(eventType, func(t *testing.T) {
			f := servicetest.New(t)
			p := newProcessor(f)
			intentID := startCheckout(t, f, latteAndBagel("u1"))

			payload, header := f.SignedWebhook(t, eventType, intentID)
			require.NoError(t, p.HandleWebhook(context.Background(), payload, header))

			pcs := f.Store.Checkouts.List()
			require.Len(t, pcs, 1)
			assert.True(t, pcs[0].IsProcessed)
			assert.Zero(t, f.Store.Orders.Count())
			assert.Zero(t, f.Store.Payments.Count())

			late, lateHeader := f.SignedWebhook(t, gateway.TypePaymentSucceeded, intentID)
			require.NoError(t, p.HandleWebhook(context.Background(), late, lateHeader))
			assert.Zero(t, f.Store.Orders.Count())
			assert.Zero(t, f.Store.Accounts.Count())
		})
	}
}

func TestBadSignatureChangesNothing(t *testing.T) {
	f := servicetest.New(t)
	p := newProcessor(f)
	intentID := startCheckout(t, f, latteAndBagel("u1"))

	payload, _ := f.SignedWebhook(t, gateway.TypePaymentSucceeded, intentID)
	_, forged, err := f.Gateway.SignedEvent(gateway.TypePaymentSucceeded, intentID, "whsec_other")
	require.NoError(t, err)

	for _, header := range []string{"", "t=1,v1=deadbeef", forged} {
		err := p.HandleWebhook(context.Background(), payload, header)
		assert.ErrorIs(t, err, apperr.ErrInvalidSignature)
		assert.Equal(t, 400, apperr.HTTPStatus(err))
	}
	assert.Zero(t, f.Store.Orders.Count())
	assert.False(t, f.Store.Checkouts.List()[0].IsProcessed)
}

func TestUnhandledEventIsAcknowledged(t *testing.T) {
	f := servicetest.New(t)
	p := newProcessor(f)
	intentID := startCheckout(t, f, latteAndBagel("u1"))

	payload, header := f.SignedWebhook(t, "charge.refunded", intentID)
	require.NoError(t, p.HandleWebhook(context.Background(), payload, header))
	assert.Zero(t, f.Store.Orders.Count())
	assert.False(t, f.Store.Checkouts.List()[0].IsProcessed)
}

func TestUnknownIntentIsAcknowledged(t *testing.T) {
	f := servicetest.New(t)
	p := newProcessor(f)

	payload, header := f.SignedWebhook(t, gateway.TypePaymentSucceeded, "pi_unknown")
	require.NoError(t, p.HandleWebhook(context.Background(), payload, header))
	assert.Zero(t, f.Store.Orders.Count())
	assert.Empty(t, f.Sink.Drain())
}

func TestMalformedSnapshotIsAcknowledgedWithoutOrder(t *testing.T) {
	f := servicetest.New(t)
	p := newProcessor(f)
	ctx := context.Background()

	pc := &pending.Checkout{
		ID:              "pc_bad",
		UserID:          "u1",
		PaymentIntentID: "pi_bad",
		Items:           pending.Snapshot{Version: 99, Text: "{not json"},
		TotalAmount:     decimal.NewFromInt(10),
		CreatedAt:       servicetest.Base,
	}
	require.NoError(t, f.Store.WithinTx(ctx, func(tx repo.Tx) error {
		return tx.PendingCheckouts().Create(ctx, pc)
	}))

	payload, header := f.SignedWebhook(t, gateway.TypePaymentSucceeded, "pi_bad")
	require.NoError(t, p.HandleWebhook(ctx, payload, header))
	assert.Zero(t, f.Store.Orders.Count())
	stored, ok := f.Store.Checkouts.Get("pc_bad")
	require.True(t, ok)
	assert.False(t, stored.IsProcessed)
}

func TestCanceledRequestStillCompletesSettlement(t *testing.T) {
	f := servicetest.New(t)
	p := newProcessor(f)
	intentID := startCheckout(t, f, latteAndBagel("u1"))
	payload, header := f.SignedWebhook(t, gateway.TypePaymentSucceeded, intentID)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, p.HandleWebhook(ctx, payload, header))
	assert.Equal(t, 1, f.Store.Orders.Count())
}
