package loyalty

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wondertwin-ai/loyaltypay/internal/apperr"
)

// EarnRates holds the points earned per currency unit paid, per tier.
type EarnRates struct {
	Bronze decimal.Decimal
	Silver decimal.Decimal
	Gold   decimal.Decimal
}

// DefaultEarnRates returns 1, 1.25 and 1.5 points per unit for Bronze, Silver and Gold.
func DefaultEarnRates() EarnRates {
	return EarnRates{
		Bronze: decimal.NewFromInt(1),
		Silver: decimal.RequireFromString("1.25"),
		Gold:   decimal.RequireFromString("1.5"),
	}
}

// Rate returns the earn rate for t.
func (r EarnRates) Rate(t Tier) decimal.Decimal {
	switch t {
	case TierGold:
		return r.Gold
	case TierSilver:
		return r.Silver
	default:
		return r.Bronze
	}
}

// Validate checks that rates are non-negative and ordered Gold >= Silver >= Bronze.
func (r EarnRates) Validate() error {
	if r.Bronze.IsNegative() {
		return fmt.Errorf("bronze earn rate must not be negative")
	}
	if r.Silver.LessThan(r.Bronze) {
		return fmt.Errorf("silver earn rate %s is below bronze %s", r.Silver, r.Bronze)
	}
	if r.Gold.LessThan(r.Silver) {
		return fmt.Errorf("gold earn rate %s is below silver %s", r.Gold, r.Silver)
	}
	return nil
}

// Ledger applies earn and redeem operations to accounts. It does not persist
// anything: callers store the mutated account and the returned transaction in
// the same unit of work.
type Ledger struct {
	rates EarnRates
	now   func() time.Time
	newID func() string
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the ledger's time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithIDs overrides transaction id generation.
func WithIDs(newID func() string) Option {
	return func(l *Ledger) { l.newID = newID }
}

// NewLedger creates a ledger with the given earn rates.
func NewLedger(rates EarnRates, opts ...Option) *Ledger {
	l := &Ledger{
		rates: rates,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// PointsFor returns floor(paid * rate(tier)).
func (l *Ledger) PointsFor(tier Tier, paid decimal.Decimal) int64 {
	if !paid.IsPositive() {
		return 0
	}
	return paid.Mul(l.rates.Rate(tier)).Floor().IntPart()
}

// NewAccount returns an empty account for userID.
func (l *Ledger) NewAccount(userID string) Account {
	now := l.now()
	return Account{
		ID:        l.newID(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Award credits points for paidAmount on orderID. The tier is taken from the
// account's lifetime points before the award. It returns a nil transaction and
// leaves the account untouched when nothing is earned.
func (l *Ledger) Award(acct *Account, orderID string, paidAmount decimal.Decimal) (*Transaction, error) {
	if acct == nil {
		return nil, fmt.Errorf("award: %w: nil account", apperr.ErrValidation)
	}
	points := l.PointsFor(TierOf(acct.LifetimePoints), paidAmount)
	if points <= 0 {
		return nil, nil
	}

	now := l.now()
	acct.CurrentPoints += points
	acct.LifetimePoints += points
	acct.UpdatedAt = now

	return &Transaction{
		ID:          l.newID(),
		AccountID:   acct.ID,
		Points:      points,
		Type:        TransactionEarned,
		Description: fmt.Sprintf("Earned for order %s", orderID),
		OrderID:     orderID,
		CreatedAt:   now,
	}, nil
}

// Redeem debits offer.PointCost from the account. On any error the account is
// left unchanged.
func (l *Ledger) Redeem(acct *Account, offer Offer, orderID string) (*Transaction, error) {
	if acct == nil {
		return nil, fmt.Errorf("redeem: %w: nil account", apperr.ErrValidation)
	}
	if offer.PointCost < 0 {
		return nil, fmt.Errorf("redeem offer %s: %w: negative point cost", offer.ID, apperr.ErrValidation)
	}
	if acct.CurrentPoints < offer.PointCost {
		return nil, fmt.Errorf("redeem offer %s: %w: balance %d, cost %d",
			offer.ID, apperr.ErrInsufficientPoints, acct.CurrentPoints, offer.PointCost)
	}
	if tier := TierOf(acct.LifetimePoints); !tier.AtLeast(offer.MinimumTier) {
		return nil, fmt.Errorf("redeem offer %s: %w: tier %s, requires %s",
			offer.ID, apperr.ErrTierNotMet, tier, offer.MinimumTier)
	}
	if !offer.Active {
		return nil, fmt.Errorf("redeem offer %s: %w", offer.ID, apperr.ErrOfferInactive)
	}

	now := l.now()
	acct.CurrentPoints -= offer.PointCost
	acct.UpdatedAt = now

	return &Transaction{
		ID:          l.newID(),
		AccountID:   acct.ID,
		Points:      -offer.PointCost,
		Type:        TransactionRedeemed,
		Description: fmt.Sprintf("Redeemed: %s", offer.Title),
		OrderID:     orderID,
		CreatedAt:   now,
	}, nil
}
