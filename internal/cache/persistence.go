package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"nof0-api/pkg/manager"
)

// RedisPersistence mirrors AutoTrader/Supervisor state into Redis so an
// external dashboard or CLI can read the latest cycle, positions, and
// analytics for a trader without replaying its on-disk DecisionLog. It
// implements manager.PersistenceService; AutoTrader never imports this
// package directly (SetPersistence takes the interface), keeping pkg/manager
// free of a concrete cache dependency.
type RedisPersistence struct {
	client *redis.Client
	ttl    TTLSet
}

// NewRedisPersistence wraps an already-constructed client. Pass a nil client
// to get a persistence service that accepts writes silently and is never
// queried — used by callers who want the interface wired but no backing
// store (e.g. tests, or a Redis-less deployment with CACHE_REDIS_ADDR unset).
func NewRedisPersistence(client *redis.Client, ttl TTLSet) *RedisPersistence {
	return &RedisPersistence{client: client, ttl: ttl}
}

func (r *RedisPersistence) setJSON(ctx context.Context, key string, v any, ttlFn func(TTLSet) time.Duration) error {
	if r == nil || r.client == nil {
		return nil
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return r.client.Set(ctx, key, payload, ttlFn(r.ttl)).Err()
}

func (r *RedisPersistence) RecordPositionEvent(ctx context.Context, event manager.PositionEvent) error {
	if r == nil || r.client == nil {
		return nil
	}
	// event.Trader is an *AutoTrader, not a data shape worth mirroring; drop it
	// before encoding so this never marshals the trader's internal state.
	type wire struct {
		TraderID   string  `json:"trader_id"`
		Event      string  `json:"event"`
		Symbol     string  `json:"symbol"`
		Action     string  `json:"action"`
		FillPrice  float64 `json:"fill_price"`
		FillSize   float64 `json:"fill_size"`
		OccurredAt string  `json:"occurred_at"`
	}
	w := wire{
		TraderID:   event.TraderID,
		Event:      string(event.Event),
		Symbol:     event.Decision.Symbol,
		Action:     string(event.Decision.Action),
		FillPrice:  event.FillPrice,
		FillSize:   event.FillSize,
		OccurredAt: event.OccurredAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	return r.setJSON(ctx, PositionsHashKey(event.TraderID), w, PositionsTTL)
}

func (r *RedisPersistence) RecordDecisionCycle(ctx context.Context, record manager.DecisionCycleRecord) error {
	return r.setJSON(ctx, DecisionLastKey(record.TraderID), record.Cycle, DecisionLastTTL)
}

func (r *RedisPersistence) RecordAccountSnapshot(ctx context.Context, snapshot manager.AccountSyncSnapshot) error {
	return r.setJSON(ctx, TraderStateKey(snapshot.TraderID), snapshot, TraderStateTTL)
}

func (r *RedisPersistence) RecordAnalytics(ctx context.Context, snapshot manager.AnalyticsSnapshot) error {
	return r.setJSON(ctx, AnalyticsKey(snapshot.TraderID), snapshot, AnalyticsTTL)
}

// HydrateCaches is a no-op: every key this package writes carries its own
// TTL and is repopulated on the next cycle, so there is nothing to warm.
func (r *RedisPersistence) HydrateCaches(ctx context.Context, traderIDs []string) error {
	return nil
}
