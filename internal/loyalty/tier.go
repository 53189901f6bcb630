package loyalty

import (
	"fmt"
	"strings"
)

// Tier is the Bronze/Silver/Gold classification derived from lifetime points.
type Tier string

// Tiers in ascending order.
const (
	TierBronze Tier = "bronze"
	TierSilver Tier = "silver"
	TierGold   Tier = "gold"
)

// Lifetime-point thresholds at which an account enters a tier.
const (
	SilverThreshold int64 = 5000
	GoldThreshold   int64 = 15000
)

// TierOf returns the tier for the given lifetime points.
func TierOf(lifetimePoints int64) Tier {
	switch {
	case lifetimePoints >= GoldThreshold:
		return TierGold
	case lifetimePoints >= SilverThreshold:
		return TierSilver
	default:
		return TierBronze
	}
}

// NextTierThreshold returns the lifetime points needed to leave t,
// or 0 when t is the top tier.
func NextTierThreshold(t Tier) int64 {
	switch t {
	case TierBronze:
		return SilverThreshold
	case TierSilver:
		return GoldThreshold
	default:
		return 0
	}
}

// PointsToNextTier returns how many more lifetime points are needed to reach
// the next tier. It is 0 for Gold.
func PointsToNextTier(lifetimePoints int64) int64 {
	next := NextTierThreshold(TierOf(lifetimePoints))
	if next == 0 || lifetimePoints >= next {
		return 0
	}
	return next - lifetimePoints
}

func (t Tier) rank() int {
	switch t {
	case TierSilver:
		return 1
	case TierGold:
		return 2
	default:
		return 0
	}
}

// AtLeast reports whether t is the same as or above min.
// An empty min means no requirement.
func (t Tier) AtLeast(min Tier) bool {
	if min == "" {
		return true
	}
	return t.rank() >= min.rank()
}

// ParseTier parses a tier name case-insensitively. The empty string parses
// to the empty tier (no requirement).
func ParseTier(s string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return "", nil
	case TierBronze:
		return TierBronze, nil
	case TierSilver:
		return TierSilver, nil
	case TierGold:
		return TierGold, nil
	default:
		return "", fmt.Errorf("unknown loyalty tier %q", s)
	}
}
