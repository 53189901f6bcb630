package directpay

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wondertwin-ai/loyaltypay/internal/apperr"
	"github.com/wondertwin-ai/loyaltypay/internal/order"
	"github.com/wondertwin-ai/loyaltypay/internal/payment"
	"github.com/wondertwin-ai/loyaltypay/internal/service/servicetest"
)

func newHandler(f *servicetest.Fixture) *Handler {
	return NewHandler(Deps{
		Store:   f.Store,
		Gateway: f.Gateway,
		Ledger:  f.Ledger,
		Clock:   f.Clock,
	})
}

func seedLatteOrder(t *testing.T, f *servicetest.Fixture) *order.Order {
	t.Helper()
	return f.SeedOrder(t, "o1", "u1", order.Item{
		CatalogItemID: "latte",
		Name:          "Latte",
		Quantity:      2,
		UnitPrice:     decimal.RequireFromString("25.00"),
	})
}

func TestCreatePayment(t *testing.T) {
	f := servicetest.New(t)
	h := newHandler(f)
	seedLatteOrder(t, f)

	p, created, err := h.CreatePayment(context.Background(), "o1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "o1", p.OrderID)
	assert.Equal(t, payment.StatusProcessing, p.Status)
	assert.True(t, p.Amount.Equal(decimal.NewFromInt(50)))
	assert.NotEmpty(t, p.ClientSecret)

	reqs := f.Gateway.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, p.ID, reqs[0].IdempotencyKey)
	assert.Equal(t, "o1", reqs[0].Metadata["order_id"])

	stored, ok := f.Store.Payments.Get(p.ID)
	require.True(t, ok)
	assert.Equal(t, p.PaymentIntentID, stored.PaymentIntentID)
}

func TestCreatePaymentReturnsActivePayment(t *testing.T) {
	f := servicetest.New(t)
	h := newHandler(f)
	seedLatteOrder(t, f)

	first, created, err := h.CreatePayment(context.Background(), "o1")
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := h.CreatePayment(context.Background(), "o1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, f.Gateway.Requests(), 1)
}

func TestCreatePaymentConcurrentCallersShareOnePayment(t *testing.T) {
	f := servicetest.New(t)
	h := newHandler(f)
	seedLatteOrder(t, f)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = map[string]bool{}
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, _, err := h.CreatePayment(context.Background(), "o1")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			ids[p.ID] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, ids, 1)
	assert.Equal(t, 1, f.Store.Payments.Count())
}

func TestCreatePaymentRejections(t *testing.T) {
	f := servicetest.New(t)
	h := newHandler(f)
	o := seedLatteOrder(t, f)

	_, _, err := h.CreatePayment(context.Background(), "missing")
	assert.ErrorIs(t, err, apperr.ErrOrderNotFound)

	_, err = o.Cancel(f.Clock.Now())
	require.NoError(t, err)
	f.Store.Orders.Set(o.ID, *o)

	_, _, err = h.CreatePayment(context.Background(), "o1")
	assert.ErrorIs(t, err, apperr.ErrOrderNotPending)
	assert.Empty(t, f.Gateway.Requests())
}

func TestCreatePaymentGatewayFailure(t *testing.T) {
	f := servicetest.New(t)
	h := newHandler(f)
	seedLatteOrder(t, f)
	f.Gateway.FailWith(errors.New("timeout"))

	_, _, err := h.CreatePayment(context.Background(), "o1")
	assert.ErrorIs(t, err, apperr.ErrGateway)
	assert.Zero(t, f.Store.Payments.Count())
}

func TestConfirmSucceededAwardsOwner(t *testing.T) {
	f := servicetest.New(t)
	h := newHandler(f)
	seedLatteOrder(t, f)

	p, _, err := h.CreatePayment(context.Background(), "o1")
	require.NoError(t, err)

	confirmed, err := h.Confirm(context.Background(), p.ID, payment.StatusSucceeded)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusSucceeded, confirmed.Status)
	assert.Empty(t, confirmed.ClientSecret)

	acct := f.Account(t, "u1")
	assert.Equal(t, int64(50), acct.CurrentPoints)
	assert.Equal(t, int64(50), acct.LifetimePoints)

	_, err = h.Confirm(context.Background(), p.ID, payment.StatusFailed)
	assert.ErrorIs(t, err, apperr.ErrAlreadyProcessed)
	stored, _ := f.Store.Payments.Get(p.ID)
	assert.Equal(t, payment.StatusSucceeded, stored.Status)
}

func TestConfirmFailedDoesNotAward(t *testing.T) {
	f := servicetest.New(t)
	h := newHandler(f)
	seedLatteOrder(t, f)

	p, _, err := h.CreatePayment(context.Background(), "o1")
	require.NoError(t, err)

	confirmed, err := h.Confirm(context.Background(), p.ID, payment.StatusFailed)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusFailed, confirmed.Status)
	assert.Zero(t, f.Store.Accounts.Count())

	// A failed payment no longer blocks a new attempt.
	again, created, err := h.CreatePayment(context.Background(), "o1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, p.ID, again.ID)
}

func TestConfirmRejections(t *testing.T) {
	f := servicetest.New(t)
	h := newHandler(f)
	seedLatteOrder(t, f)

	_, err := h.Confirm(context.Background(), "missing", payment.StatusSucceeded)
	assert.ErrorIs(t, err, apperr.ErrPaymentNotFound)

	p, _, err := h.CreatePayment(context.Background(), "o1")
	require.NoError(t, err)
	_, err = h.Confirm(context.Background(), p.ID, payment.StatusProcessing)
	assert.ErrorIs(t, err, apperr.ErrInvalidStatus)

	stored, _ := f.Store.Payments.Get(p.ID)
	assert.Equal(t, payment.StatusProcessing, stored.Status)
	assert.NotEmpty(t, stored.ClientSecret)
}

func TestGetPayment(t *testing.T) {
	f := servicetest.New(t)
	h := newHandler(f)
	seedLatteOrder(t, f)

	created, _, err := h.CreatePayment(context.Background(), "o1")
	require.NoError(t, err)

	got, err := h.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "o1", got.OrderID)
	assert.Equal(t, payment.StatusProcessing, got.Status)

	_, err = h.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, apperr.ErrPaymentNotFound)
}
