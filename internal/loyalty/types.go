// Package loyalty implements the points ledger: tier computation, point
// earning on paid orders, and offer redemption against an account balance.
package loyalty

import "time"

// Account is a user's loyalty balance. CurrentPoints never goes below zero and
// LifetimePoints never decreases.
type Account struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	CurrentPoints  int64     `json:"current_points"`
	LifetimePoints int64     `json:"lifetime_points"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TransactionType distinguishes ledger rows.
type TransactionType string

// Ledger row types.
const (
	TransactionEarned   TransactionType = "earned"
	TransactionRedeemed TransactionType = "redeemed"
)

// Transaction is an append-only ledger row. Every balance mutation produces
// exactly one.
type Transaction struct {
	ID          string          `json:"id"`
	AccountID   string          `json:"account_id"`
	Points      int64           `json:"points"` // signed delta
	Type        TransactionType `json:"type"`
	Description string          `json:"description"`
	OrderID     string          `json:"order_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Offer is a redeemable reward priced in points. MinimumTier is empty when the
// offer has no tier requirement.
type Offer struct {
	ID          string `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	PointCost   int64  `json:"point_cost" yaml:"point_cost"`
	MinimumTier Tier   `json:"minimum_tier,omitempty" yaml:"minimum_tier,omitempty"`
	Active      bool   `json:"active" yaml:"active"`
}

// Summary is the read model returned to clients.
type Summary struct {
	CurrentPoints     int64 `json:"currentPoints"`
	LifetimePoints    int64 `json:"lifetimePoints"`
	Tier              Tier  `json:"tier"`
	PointsToNextTier  int64 `json:"pointsToNextTier"`
	NextTierThreshold int64 `json:"nextTierThreshold"`
}

// Summarize builds the read model for acct.
func Summarize(acct Account) Summary {
	tier := TierOf(acct.LifetimePoints)
	return Summary{
		CurrentPoints:     acct.CurrentPoints,
		LifetimePoints:    acct.LifetimePoints,
		Tier:              tier,
		PointsToNextTier:  PointsToNextTier(acct.LifetimePoints),
		NextTierThreshold: NextTierThreshold(tier),
	}
}
