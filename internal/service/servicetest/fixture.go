// Package servicetest wires the services' collaborators with in-memory
// implementations for tests.
package servicetest

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wondertwin-ai/loyaltypay/internal/catalog"
	"github.com/wondertwin-ai/loyaltypay/internal/gateway"
	"github.com/wondertwin-ai/loyaltypay/internal/loyalty"
	"github.com/wondertwin-ai/loyaltypay/internal/notify"
	"github.com/wondertwin-ai/loyaltypay/internal/order"
	"github.com/wondertwin-ai/loyaltypay/internal/repo"
	"github.com/wondertwin-ai/loyaltypay/internal/repo/memstore"
	"github.com/wondertwin-ai/loyaltypay/pkg/store"
)

// WebhookSecret signs webhooks in tests.
const WebhookSecret = "whsec_fixture"

// Base is the frozen time every fixture starts at.
var Base = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

// Fixture bundles in-memory collaborators.
type Fixture struct {
	Store    *memstore.MemoryStore
	Catalog  *catalog.Memory
	Gateway  *gateway.Fake
	Ledger   *loyalty.Ledger
	Clock    *store.Clock
	Sink     *notify.Recorder
	Verifier *gateway.Verifier
}

// New returns a fixture with a seeded catalog:
//
//	latte 25.00, bagel 20.00, cookie 2.00, water 0.00
//	offers: free-cookie (100 pts), gold-brunch (800 pts, gold), retired (50 pts, inactive)
func New(t *testing.T) *Fixture {
	t.Helper()
	clock := store.NewClock()
	clock.Freeze(Base)

	cat := catalog.NewMemory()
	for _, it := range []catalog.Item{
		{ID: "latte", Name: "Latte", Price: decimal.RequireFromString("25.00")},
		{ID: "bagel", Name: "Bagel", Price: decimal.RequireFromString("20.00")},
		{ID: "cookie", Name: "Cookie", Price: decimal.RequireFromString("2.00")},
		{ID: "water", Name: "Water", Price: decimal.Zero},
	} {
		cat.PutItem(it)
	}
	for _, o := range []loyalty.Offer{
		{ID: "free-cookie", Title: "Free cookie", PointCost: 100, Active: true},
		{ID: "gold-brunch", Title: "Brunch", PointCost: 800, MinimumTier: loyalty.TierGold, Active: true},
		{ID: "retired", Title: "Retired", PointCost: 50, Active: false},
	} {
		cat.PutOffer(o)
	}

	return &Fixture{
		Store:    memstore.New(),
		Catalog:  cat,
		Gateway:  gateway.NewFake(),
		Ledger:   loyalty.NewLedger(loyalty.DefaultEarnRates(), loyalty.WithClock(clock.Now)),
		Clock:    clock,
		Sink:     notify.NewRecorder(64),
		Verifier: gateway.NewVerifier(WebhookSecret, 0),
	}
}

// SeedAccount stores an account for userID with the given balances.
func (f *Fixture) SeedAccount(t *testing.T, userID string, current, lifetime int64) loyalty.Account {
	t.Helper()
	acct := f.Ledger.NewAccount(userID)
	acct.CurrentPoints = current
	acct.LifetimePoints = lifetime
	ctx := context.Background()
	if err := f.Store.WithinTx(ctx, func(tx repo.Tx) error {
		return tx.Loyalty().SaveAccount(ctx, &acct)
	}); err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return acct
}

// SeedOrder stores a pending order for userID.
func (f *Fixture) SeedOrder(t *testing.T, id, userID string, items ...order.Item) *order.Order {
	t.Helper()
	o, err := order.New(id, userID, items, f.Clock.Now())
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}
	ctx := context.Background()
	if err := f.Store.WithinTx(ctx, func(tx repo.Tx) error {
		return tx.Orders().Create(ctx, o)
	}); err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return o
}

// Account loads userID's account, failing the test if absent.
func (f *Fixture) Account(t *testing.T, userID string) loyalty.Account {
	t.Helper()
	var acct *loyalty.Account
	ctx := context.Background()
	if err := f.Store.WithinTx(ctx, func(tx repo.Tx) error {
		var err error
		acct, err = tx.Loyalty().FindAccount(ctx, userID)
		return err
	}); err != nil {
		t.Fatalf("load account %s: %v", userID, err)
	}
	return *acct
}

// Transactions lists userID's ledger rows, newest first.
func (f *Fixture) Transactions(t *testing.T, userID string) []loyalty.Transaction {
	t.Helper()
	acct := f.Account(t, userID)
	var rows []loyalty.Transaction
	ctx := context.Background()
	if err := f.Store.WithinTx(ctx, func(tx repo.Tx) error {
		var err error
		rows, err = tx.Loyalty().Transactions(ctx, acct.ID)
		return err
	}); err != nil {
		t.Fatalf("load transactions: %v", err)
	}
	return rows
}

// SignedWebhook builds a signed delivery of eventType for intentID.
func (f *Fixture) SignedWebhook(t *testing.T, eventType, intentID string) ([]byte, string) {
	t.Helper()
	payload, header, err := f.Gateway.SignedEvent(eventType, intentID, WebhookSecret)
	if err != nil {
		t.Fatalf("sign webhook: %v", err)
	}
	return payload, header
}
