package cache

import (
	"strings"
	"time"

	"nof0-api/internal/config"
)

// Namespace is the Redis key prefix every key this package builds shares.
const Namespace = "nof0"

// TTLClass is a config-driven TTL bucket (§4.C/§4.D caching notes).
type TTLClass string

const (
	TTLShort  TTLClass = "short"
	TTLMedium TTLClass = "medium"
	TTLLong   TTLClass = "long"
)

// TTLSet normalises cache TTLs from config into time.Duration values.
type TTLSet struct {
	Short  time.Duration
	Medium time.Duration
	Long   time.Duration
}

// NewTTLSet converts config TTLs (in seconds) into durations.
func NewTTLSet(cfg config.CacheTTL) TTLSet {
	return TTLSet{
		Short:  durationOrDefault(cfg.Short, 10*time.Second),
		Medium: durationOrDefault(cfg.Medium, time.Minute),
		Long:   durationOrDefault(cfg.Long, 5*time.Minute),
	}
}

func durationOrDefault(seconds int, fallback time.Duration) time.Duration {
	if seconds < 0 {
		return 0
	}
	if seconds == 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

// Duration returns the configured duration for the given TTL class.
func (t TTLSet) Duration(class TTLClass) time.Duration {
	switch class {
	case TTLShort:
		return t.Short
	case TTLMedium:
		return t.Medium
	case TTLLong:
		return t.Long
	default:
		return 0
	}
}

// Scaled applies a multiplier to a TTL class, useful for half/double TTL variants.
func (t TTLSet) Scaled(class TTLClass, factor float64) time.Duration {
	base := t.Duration(class)
	if base <= 0 || factor <= 0 {
		return base
	}
	return time.Duration(float64(base) * factor)
}

func formatKey(parts ...string) string {
	values := make([]string, 0, len(parts)+1)
	values = append(values, Namespace)
	for _, part := range parts {
		clean := strings.TrimSpace(part)
		if clean == "" {
			continue
		}
		values = append(values, clean)
	}
	return strings.Join(values, ":")
}

// --- Trader state keys (§4.G account/position snapshots) ------------------

// TraderStateKey holds the last AccountSyncSnapshot for one trader.
func TraderStateKey(traderID string) string {
	return formatKey("trader", traderID, "state")
}

// TraderStateTTL returns the TTL for cached trader state.
func TraderStateTTL(ttl TTLSet) time.Duration {
	return ttl.Duration(TTLMedium)
}

// PositionsHashKey holds the trader's open-position set mirrored from the
// venue, keyed by trader rather than by symbol since §4.G drives the venue
// per trader, not per symbol.
func PositionsHashKey(traderID string) string {
	return formatKey("positions", traderID)
}

// PositionsTTL returns the TTL for positions hash payloads.
func PositionsTTL(ttl TTLSet) time.Duration {
	return ttl.Scaled(TTLMedium, 0.5) // target ~30s when medium=60s
}

// --- Decision cycle keys (§4.E DecisionLog mirror) -------------------------

// DecisionLastKey caches the most recent DecisionRecord for one trader, so a
// dashboard or CLI can read the latest cycle without replaying the journal.
func DecisionLastKey(traderID string) string {
	return formatKey("decision", "last", traderID)
}

// DecisionLastTTL returns the TTL for last-decision snapshots.
func DecisionLastTTL(ttl TTLSet) time.Duration {
	return ttl.Duration(TTLMedium)
}

// --- Analytics keys (§4.E AnalyzePerformance mirror) -----------------------

// AnalyticsKey caches one trader's latest performance snapshot.
func AnalyticsKey(traderID string) string {
	return formatKey("analytics", traderID)
}

// AnalyticsTTL returns the TTL for analytics payloads.
func AnalyticsTTL(ttl TTLSet) time.Duration {
	return ttl.Scaled(TTLLong, 2) // target ~600s when long=300s
}

// --- Candidate pool keys (§4.D L1 cache in front of the disk cache) -------

// CandidatePoolKey caches one feed's merged candidate list.
func CandidatePoolKey(feed string) string {
	return formatKey("candidatepool", feed)
}

// CandidatePoolTTL returns the TTL for candidate pool entries.
func CandidatePoolTTL(ttl TTLSet) time.Duration {
	return ttl.Duration(TTLShort)
}
