package entitlement

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"biztomate-api/internal/config"

	"github.com/redis/go-redis/v9"
)

// Store persists resolved entitlements in Redis, keyed by user identifier.
// The scan counter lives in its own key so increments stay atomic (INCR)
// while the entitlement blob is only rewritten on purchase or restore.
type Store struct {
	client    *redis.Client
	trialDays int
}

// NewStore creates an entitlement store on an existing Redis client. The
// trial window length comes from the application configuration.
func NewStore(client *redis.Client) *Store {
	trialDays := 0
	if config.AppConfig != nil {
		trialDays = config.AppConfig.TrialDays
	}
	return NewStoreWithTrial(client, trialDays)
}

// NewStoreWithTrial creates a store that grants first-seen users the given
// trial window in days. Zero disables the trial.
func NewStoreWithTrial(client *redis.Client, trialDays int) *Store {
	return &Store{client: client, trialDays: trialDays}
}

func entitlementKey(userID string) string {
	return fmt.Sprintf("entitlement:%s", userID)
}

func scanCountKey(userID string) string {
	return fmt.Sprintf("entitlement:%s:scans", userID)
}

// Save stores the resolved entitlement for a user. The scan counter is
// tracked separately and is not touched here. An already-granted trial
// window survives the write: reductions produced by purchase or restore
// never carry one, and losing it would re-open or close the trial.
func (s *Store) Save(ctx context.Context, userID string, ent Entitlement) error {
	ent.ScannedCount = 0
	if ent.TrialEndsAt == nil {
		stored, err := s.loadDoc(ctx, userID)
		if err != nil {
			return err
		}
		if stored != nil {
			ent.TrialEndsAt = stored.TrialEndsAt
		}
	}
	return s.writeDoc(ctx, userID, ent)
}

// Load returns the stored entitlement with the scan counter merged in. A
// user seen for the first time starts on the free tier with the trial
// window open; the window is persisted immediately so it is anchored to the
// first sighting instead of sliding with every read.
func (s *Store) Load(ctx context.Context, userID string) (Entitlement, error) {
	stored, err := s.loadDoc(ctx, userID)
	if err != nil {
		return Entitlement{}, err
	}

	var ent Entitlement
	if stored != nil {
		ent = *stored
	} else {
		ent = Free()
		if s.trialDays > 0 {
			trialEndsAt := time.Now().Add(time.Duration(s.trialDays) * 24 * time.Hour)
			ent.TrialEndsAt = &trialEndsAt
			if err := s.writeDoc(ctx, userID, ent); err != nil {
				return Entitlement{}, err
			}
		}
	}

	count, err := s.scanCount(ctx, userID)
	if err != nil {
		return Entitlement{}, err
	}
	ent.ScannedCount = count
	return ent, nil
}

// LoadEffective loads the entitlement and applies lazy expiry for now.
func (s *Store) LoadEffective(ctx context.Context, userID string, now time.Time) (Entitlement, error) {
	ent, err := s.Load(ctx, userID)
	if err != nil {
		return Entitlement{}, err
	}
	return ent.Effective(now), nil
}

// IncrementScans atomically bumps the user's scan counter and returns the
// new count.
func (s *Store) IncrementScans(ctx context.Context, userID string) (int, error) {
	count, err := s.client.Incr(ctx, scanCountKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment scan count: %w", err)
	}
	return int(count), nil
}

// DecrementScans reverts one counted scan. Used to roll back an increment
// that turned out to overshoot the quota.
func (s *Store) DecrementScans(ctx context.Context, userID string) error {
	if err := s.client.Decr(ctx, scanCountKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to decrement scan count: %w", err)
	}
	return nil
}

func (s *Store) loadDoc(ctx context.Context, userID string) (*Entitlement, error) {
	data, err := s.client.Get(ctx, entitlementKey(userID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load entitlement: %w", err)
	}
	var ent Entitlement
	if err := json.Unmarshal([]byte(data), &ent); err != nil {
		return nil, fmt.Errorf("failed to parse stored entitlement: %w", err)
	}
	return &ent, nil
}

func (s *Store) writeDoc(ctx context.Context, userID string, ent Entitlement) error {
	data, err := json.Marshal(ent)
	if err != nil {
		return fmt.Errorf("failed to marshal entitlement: %w", err)
	}
	if err := s.client.Set(ctx, entitlementKey(userID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store entitlement: %w", err)
	}
	return nil
}

func (s *Store) scanCount(ctx context.Context, userID string) (int, error) {
	count, err := s.client.Get(ctx, scanCountKey(userID)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load scan count: %w", err)
	}
	return count, nil
}
