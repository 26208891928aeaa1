package api

import (
	"net/http"
	"time"

	"biztomate-api/internal/catalog"
	"biztomate-api/internal/config"
	"biztomate-api/internal/database"
	"biztomate-api/internal/entitlement"
	"biztomate-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

// EntitlementStatusResponse is the resolved subscription state for one user,
// recomputed against the wall clock on every read.
type EntitlementStatusResponse struct {
	Success        bool   `json:"success"`
	Message        string `json:"message,omitempty"`
	PlanID         string `json:"planId"`
	ExpiresAt      string `json:"expiresAt,omitempty"`
	CardQuota      int    `json:"cardQuota"`
	ScannedCount   int    `json:"scannedCount"`
	RemainingScans int    `json:"remainingScans"`
	CanScan        bool   `json:"canScan"`
	TrialActive    bool   `json:"trialActive"`
	TrialEndsAt    string `json:"trialEndsAt,omitempty"`
}

// GetEntitlementStatus returns the stored entitlement with lazy expiry
// applied at read time. A user with nothing stored is on the free tier.
// GET /api/entitlement/status?user_id=xxx
func GetEntitlementStatus(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, EntitlementStatusResponse{
			Success: false,
			Message: "user_id is required",
		})
		return
	}

	now := time.Now()
	store := entitlement.NewStore(database.GetRedis())
	ent, err := store.Load(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, EntitlementStatusResponse{
			Success: false,
			Message: "failed to load entitlement",
		})
		return
	}

	state := entitlement.NewState(ent, config.AppConfig.TrialScanLimit)
	effective := ent.Effective(now)

	resp := EntitlementStatusResponse{
		Success:        true,
		PlanID:         string(effective.PlanID),
		CardQuota:      state.EffectiveQuota(now),
		ScannedCount:   ent.ScannedCount,
		RemainingScans: state.RemainingScans(now),
		CanScan:        state.CanScan(now),
		TrialActive:    state.TrialActive(now),
	}
	if effective.ExpiresAt != nil {
		resp.ExpiresAt = effective.ExpiresAt.Format(time.RFC3339)
	}
	if ent.TrialEndsAt != nil {
		resp.TrialEndsAt = ent.TrialEndsAt.Format(time.RFC3339)
	}

	c.JSON(http.StatusOK, resp)
}

// RecordScan bumps the user's scan counter after a successful card scan,
// rejecting the scan when the effective quota is exhausted.
// POST /api/entitlement/scan?user_id=xxx
func RecordScan(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, EntitlementStatusResponse{
			Success: false,
			Message: "user_id is required",
		})
		return
	}

	now := time.Now()
	store := entitlement.NewStore(database.GetRedis())
	ent, err := store.Load(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, EntitlementStatusResponse{
			Success: false,
			Message: "failed to load entitlement",
		})
		return
	}

	state := entitlement.NewState(ent, config.AppConfig.TrialScanLimit)
	quota := state.EffectiveQuota(now)

	count, err := store.IncrementScans(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, EntitlementStatusResponse{
			Success: false,
			Message: "failed to record scan",
		})
		return
	}

	// The INCR result is the authoritative gate: two concurrent scans at the
	// last slot both increment, but only one lands within the quota. The
	// loser rolls its increment back.
	if quota != catalog.QuotaUnlimited && count > quota {
		if err := store.DecrementScans(c.Request.Context(), userID); err != nil {
			logging.Errorf("Failed to revert scan count for %s: %v", userID, err)
		}
		c.JSON(http.StatusForbidden, EntitlementStatusResponse{
			Success:      false,
			Message:      "scan quota exhausted",
			PlanID:       string(state.EffectivePlan(now)),
			CardQuota:    quota,
			ScannedCount: count - 1,
		})
		return
	}

	ent.ScannedCount = count
	state = entitlement.NewState(ent, config.AppConfig.TrialScanLimit)

	resp := EntitlementStatusResponse{
		Success:        true,
		PlanID:         string(state.EffectivePlan(now)),
		CardQuota:      state.EffectiveQuota(now),
		ScannedCount:   count,
		RemainingScans: state.RemainingScans(now),
		CanScan:        state.CanScan(now),
		TrialActive:    state.TrialActive(now),
	}
	c.JSON(http.StatusOK, resp)
}
