package loyalty

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wondertwin-ai/loyaltypay/internal/apperr"
)

func newTestLedger() *Ledger {
	n := 0
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return NewLedger(DefaultEarnRates(),
		WithClock(func() time.Time { return fixed }),
		WithIDs(func() string { n++; return fmt.Sprintf("txn_%03d", n) }),
	)
}

func TestTierOfBoundaries(t *testing.T) {
	tests := []struct {
		lifetime int64
		want     Tier
	}{
		{0, TierBronze},
		{999, TierBronze},
		{4999, TierBronze},
		{5000, TierSilver},
		{14999, TierSilver},
		{15000, TierGold},
		{1_000_000, TierGold},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TierOf(tt.lifetime), "lifetime=%d", tt.lifetime)
	}
}

func TestTierOfMonotonic(t *testing.T) {
	prev := TierOf(0)
	for p := int64(0); p <= 20000; p += 7 {
		cur := TierOf(p)
		require.GreaterOrEqual(t, cur.rank(), prev.rank(), "tier decreased at %d", p)
		prev = cur
	}
}

func TestNextTierThreshold(t *testing.T) {
	assert.Equal(t, int64(5000), NextTierThreshold(TierBronze))
	assert.Equal(t, int64(15000), NextTierThreshold(TierSilver))
	assert.Equal(t, int64(0), NextTierThreshold(TierGold))

	assert.Equal(t, int64(4000), PointsToNextTier(1000))
	assert.Equal(t, int64(10000), PointsToNextTier(5000))
	assert.Equal(t, int64(0), PointsToNextTier(20000))
}

func TestParseTier(t *testing.T) {
	tier, err := ParseTier(" Gold ")
	require.NoError(t, err)
	assert.Equal(t, TierGold, tier)

	tier, err = ParseTier("")
	require.NoError(t, err)
	assert.Equal(t, Tier(""), tier)

	_, err = ParseTier("platinum")
	assert.Error(t, err)
}

func TestAwardUsesTierRate(t *testing.T) {
	l := newTestLedger()

	tests := []struct {
		name     string
		lifetime int64
		paid     string
		want     int64
	}{
		{name: "bronze", lifetime: 0, paid: "45.00", want: 45},
		{name: "bronze_floor", lifetime: 0, paid: "45.99", want: 45},
		{name: "silver", lifetime: 5000, paid: "10.00", want: 12},
		{name: "gold", lifetime: 15000, paid: "10.00", want: 15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acct := &Account{ID: "acct_1", UserID: "u1", CurrentPoints: 10, LifetimePoints: tt.lifetime}
			txn, err := l.Award(acct, "ord_1", decimal.RequireFromString(tt.paid))
			require.NoError(t, err)
			require.NotNil(t, txn)

			assert.Equal(t, tt.want, txn.Points)
			assert.Equal(t, TransactionEarned, txn.Type)
			assert.Equal(t, "ord_1", txn.OrderID)
			assert.Equal(t, "acct_1", txn.AccountID)
			assert.Equal(t, 10+tt.want, acct.CurrentPoints)
			assert.Equal(t, tt.lifetime+tt.want, acct.LifetimePoints)
		})
	}
}

func TestAwardNonPositiveIsNoop(t *testing.T) {
	l := newTestLedger()
	for _, paid := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-5)} {
		acct := &Account{ID: "acct_1", CurrentPoints: 7, LifetimePoints: 7}
		txn, err := l.Award(acct, "ord_1", paid)
		require.NoError(t, err)
		assert.Nil(t, txn)
		assert.Equal(t, int64(7), acct.CurrentPoints)
		assert.Equal(t, int64(7), acct.LifetimePoints)
	}
}

func TestRedeemScenario(t *testing.T) {
	l := newTestLedger()
	acct := &Account{ID: "acct_1", CurrentPoints: 500, LifetimePoints: 1000}
	offer := Offer{ID: "off_1", Title: "Free coffee", PointCost: 100, Active: true}

	txn, err := l.Redeem(acct, offer, "ord_9")
	require.NoError(t, err)
	require.NotNil(t, txn)

	assert.Equal(t, int64(400), acct.CurrentPoints)
	assert.Equal(t, int64(1000), acct.LifetimePoints, "redeem must not touch lifetime points")
	assert.Equal(t, int64(-100), txn.Points)
	assert.Equal(t, TransactionRedeemed, txn.Type)
	assert.Equal(t, "ord_9", txn.OrderID)
}

func TestRedeemRejections(t *testing.T) {
	l := newTestLedger()

	tests := []struct {
		name  string
		acct  Account
		offer Offer
		want  error
	}{
		{
			name:  "insufficient_points",
			acct:  Account{CurrentPoints: 50, LifetimePoints: 50},
			offer: Offer{ID: "o", PointCost: 100, Active: true},
			want:  apperr.ErrInsufficientPoints,
		},
		{
			name:  "tier_not_met",
			acct:  Account{CurrentPoints: 500, LifetimePoints: 1000},
			offer: Offer{ID: "o", PointCost: 100, MinimumTier: TierSilver, Active: true},
			want:  apperr.ErrTierNotMet,
		},
		{
			name:  "inactive",
			acct:  Account{CurrentPoints: 500, LifetimePoints: 1000},
			offer: Offer{ID: "o", PointCost: 100, Active: false},
			want:  apperr.ErrOfferInactive,
		},
		{
			name:  "negative_cost",
			acct:  Account{CurrentPoints: 500, LifetimePoints: 1000},
			offer: Offer{ID: "o", PointCost: -1, Active: true},
			want:  apperr.ErrValidation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acct := tt.acct
			before := acct
			txn, err := l.Redeem(&acct, tt.offer, "ord_1")
			require.ErrorIs(t, err, tt.want)
			assert.Nil(t, txn)
			assert.Equal(t, before, acct, "failed redeem must leave the account unchanged")
		})
	}
}

func TestRedeemNeverGoesNegative(t *testing.T) {
	l := newTestLedger()
	acct := &Account{CurrentPoints: 250, LifetimePoints: 250}
	offer := Offer{ID: "o", PointCost: 100, Active: true}

	redeemed := 0
	for i := 0; i < 5; i++ {
		if _, err := l.Redeem(acct, offer, "ord"); err == nil {
			redeemed++
		}
		require.GreaterOrEqual(t, acct.CurrentPoints, int64(0))
	}
	assert.Equal(t, 2, redeemed)
	assert.Equal(t, int64(50), acct.CurrentPoints)
}

func TestEarnRatesValidate(t *testing.T) {
	require.NoError(t, DefaultEarnRates().Validate())

	bad := DefaultEarnRates()
	bad.Gold = decimal.NewFromInt(1)
	assert.Error(t, bad.Validate())

	neg := DefaultEarnRates()
	neg.Bronze = decimal.NewFromInt(-1)
	assert.Error(t, neg.Validate())
}

func TestSummarize(t *testing.T) {
	s := Summarize(Account{CurrentPoints: 400, LifetimePoints: 6000})
	assert.Equal(t, TierSilver, s.Tier)
	assert.Equal(t, int64(15000), s.NextTierThreshold)
	assert.Equal(t, int64(9000), s.PointsToNextTier)
}
