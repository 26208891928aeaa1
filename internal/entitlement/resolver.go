package entitlement

import (
	"time"

	"biztomate-api/internal/appstore"
	"biztomate-api/internal/catalog"
)

// Resolve reduces one or more verification results to a single entitlement.
//
// The single-purchase case is a list of length one. The restore case feeds
// every historical receipt's result through the same reduction: only valid,
// non-expired results count, and among those the plan with the highest card
// quota wins (a user who upgraded must land on the best plan they own, not
// the first one enumerated). Ties break on the latest expiry.
//
// Resolve is a pure function of its inputs: the same results and the same
// now always produce the identical entitlement.
func Resolve(results []*appstore.VerificationResult, now time.Time) Entitlement {
	var best *appstore.VerificationResult
	bestQuota := 0

	for _, r := range results {
		if r == nil || !r.IsValid {
			continue
		}
		if r.ExpiresAt == nil || !r.ExpiresAt.After(now) {
			continue
		}
		plan, ok := catalog.ByProductID(r.StoreProductID)
		if !ok {
			continue
		}
		switch {
		case best == nil:
			best, bestQuota = r, plan.CardQuota
		case catalog.BetterQuota(plan.CardQuota, bestQuota):
			best, bestQuota = r, plan.CardQuota
		case plan.CardQuota == bestQuota && r.ExpiresAt.After(*best.ExpiresAt):
			best = r
		}
	}

	if best == nil {
		return Free()
	}

	expiresAt := *best.ExpiresAt
	return Entitlement{
		PlanID:    catalog.PlanForProduct(best.StoreProductID),
		ExpiresAt: &expiresAt,
		CardQuota: bestQuota,
	}
}
