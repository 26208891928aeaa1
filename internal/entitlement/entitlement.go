package entitlement

import (
	"time"

	"biztomate-api/internal/catalog"
)

// Entitlement is the resolved, authoritative subscription state for one user.
// The stored PlanID is never eagerly downgraded: expiry is applied lazily at
// every read through Effective.
type Entitlement struct {
	PlanID       catalog.Plan `json:"plan_id"`
	ExpiresAt    *time.Time   `json:"expires_at,omitempty"`
	ScannedCount int          `json:"scanned_count"`
	CardQuota    int          `json:"card_quota"`
	TrialEndsAt  *time.Time   `json:"trial_ends_at,omitempty"`
}

// Free returns the free-tier entitlement.
func Free() Entitlement {
	return Entitlement{
		PlanID:    catalog.PlanFree,
		CardQuota: catalog.FreeScanLimit,
	}
}

// Active reports whether the paid plan is currently in force.
func (e Entitlement) Active(now time.Time) bool {
	if e.PlanID == catalog.PlanFree {
		return false
	}
	return e.ExpiresAt != nil && e.ExpiresAt.After(now)
}

// Effective recomputes the entitlement for the given instant. A lapsed paid
// plan is reported as free while the stored value stays untouched, so a
// renewal picked up later restores the plan without any repair step.
func (e Entitlement) Effective(now time.Time) Entitlement {
	if e.PlanID == catalog.PlanFree || e.Active(now) {
		return e
	}
	downgraded := Free()
	downgraded.ScannedCount = e.ScannedCount
	downgraded.TrialEndsAt = e.TrialEndsAt
	return downgraded
}
