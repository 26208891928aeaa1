package entitlement

import (
	"time"

	"biztomate-api/internal/catalog"
)

// State gates scanning for one user. It holds the resolved entitlement plus
// the trial scan allowance and recomputes everything from wall clock on each
// read: there are no timers and no stored "expired" flags, so a state loaded
// from persistence is never stale.
type State struct {
	Entitlement Entitlement
	TrialQuota  int
}

// NewState wraps a resolved entitlement with the trial scan allowance.
func NewState(ent Entitlement, trialQuota int) *State {
	return &State{Entitlement: ent, TrialQuota: trialQuota}
}

// TrialActive reports whether the trial window is open at the given instant.
func (s *State) TrialActive(now time.Time) bool {
	return s.Entitlement.TrialEndsAt != nil && s.Entitlement.TrialEndsAt.After(now)
}

// EffectivePlan returns the plan currently in force, with lazy expiry applied.
func (s *State) EffectivePlan(now time.Time) catalog.Plan {
	return s.Entitlement.Effective(now).PlanID
}

// EffectiveQuota returns the card quota in force: an active paid subscription
// takes priority over an active trial, which takes priority over the free
// default.
func (s *State) EffectiveQuota(now time.Time) int {
	if s.Entitlement.Active(now) {
		return s.Entitlement.CardQuota
	}
	if s.TrialActive(now) {
		return s.TrialQuota
	}
	return catalog.FreeScanLimit
}

// CanScan reports whether another card may be scanned. The unlimited
// sentinel always allows, independent of the scanned count.
func (s *State) CanScan(now time.Time) bool {
	quota := s.EffectiveQuota(now)
	if quota == catalog.QuotaUnlimited {
		return true
	}
	return s.Entitlement.ScannedCount < quota
}

// RemainingScans returns how many scans are left, or the unlimited sentinel.
func (s *State) RemainingScans(now time.Time) int {
	quota := s.EffectiveQuota(now)
	if quota == catalog.QuotaUnlimited {
		return catalog.QuotaUnlimited
	}
	remaining := quota - s.Entitlement.ScannedCount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RecordScan increments the scan counter.
func (s *State) RecordScan() {
	s.Entitlement.ScannedCount++
}
