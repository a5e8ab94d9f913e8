// Package candidatepool implements the two independent upstream feeds (scored
// and OI-growth) that seed a cycle's candidate symbol list, with disk-backed
// caching and a hard-coded fallback set when the scored feed is disabled or
// unreachable with no cache (§4.D).
package candidatepool

import (
	"context"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/zeromicro/go-zero/core/logx"
)

// DefaultSymbols is the hard-coded fallback set used when a feed is disabled,
// unconfigured, or unreachable with no cache to fall back to.
var DefaultSymbols = []string{
	"BTCUSDT", "ETHUSDT", "SOLUSDT", "BNBUSDT",
	"XRPUSDT", "DOGEUSDT", "ADAUSDT", "HYPEUSDT",
}

const (
	scoredCacheFile   = "latest.json"
	oiGrowthCacheFile = "oi_top_latest.json"
	staleCacheAge     = 24 * time.Hour
)

var retrySchedule = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

// ScoredCandidate is one entry of the scored feed (§3).
type ScoredCandidate struct {
	Symbol string
	Score  float64
	Flags  []string
}

// OIGrowthCandidate is one entry of the OI-growth feed (§3).
type OIGrowthCandidate struct {
	Symbol      string
	Rank        int
	OIDeltaPct  float64
	OIDeltaUSD  float64
	PriceDelta  float64
	NetLongUSD  float64
	NetShortUSD float64
}

// Candidate is a merged, origin-tagged symbol as returned by Merged.
type Candidate struct {
	Symbol  string
	Origins []string
}

// Config controls feed endpoints and cache location.
type Config struct {
	ScoredFeedEnabled   bool
	ScoredFeedURL       string
	OIGrowthFeedEnabled bool
	OIGrowthFeedURL     string
	CacheDir            string
	Timeout             time.Duration
}

// Pool fetches, caches, and merges the scored and OI-growth feeds.
type Pool struct {
	cfg     Config
	client  *http.Client
	retries []time.Duration
}

// New constructs a Pool and ensures its cache directory exists.
func New(cfg Config) (*Pool, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = "candidatepool_cache"
	}
	if err := ensureDir(cfg.CacheDir); err != nil {
		return nil, err
	}
	return &Pool{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}, retries: retrySchedule}, nil
}

// ScoredFeed returns the scored feed, following the fetch/cache/fallback
// discipline described in §4.D.
func (p *Pool) ScoredFeed(ctx context.Context) ([]ScoredCandidate, error) {
	if !p.cfg.ScoredFeedEnabled || strings.TrimSpace(p.cfg.ScoredFeedURL) == "" {
		return defaultScored(), nil
	}

	path := p.cachePath(scoredCacheFile)
	raw, err := fetchWithRetry(ctx, p.client, p.cfg.ScoredFeedURL, p.retries)
	if err == nil {
		if cacheErr := writeCacheFile(path, raw, time.Now()); cacheErr != nil {
			logx.WithContext(ctx).Errorf("candidatepool: write scored cache failed err=%v", cacheErr)
		}
		return parseScored(raw), nil
	}
	logx.WithContext(ctx).Errorf("candidatepool: scored feed fetch failed err=%v", err)

	fetchedAt, entries, readErr := readCacheFile(path)
	if readErr != nil {
		return defaultScored(), nil
	}
	if time.Since(fetchedAt) > staleCacheAge {
		logx.WithContext(ctx).Errorf("candidatepool: scored cache is stale fetched_at=%s", fetchedAt.Format(time.RFC3339))
	}
	return parseScored(entries), nil
}

// OIGrowthFeed returns the OI-growth feed, following the same discipline —
// except its empty-cache fallback is the empty set, not the default symbols,
// since it is an enrichment feed rather than a symbol source of record.
func (p *Pool) OIGrowthFeed(ctx context.Context) ([]OIGrowthCandidate, error) {
	if !p.cfg.OIGrowthFeedEnabled || strings.TrimSpace(p.cfg.OIGrowthFeedURL) == "" {
		return nil, nil
	}

	path := p.cachePath(oiGrowthCacheFile)
	raw, err := fetchWithRetry(ctx, p.client, p.cfg.OIGrowthFeedURL, p.retries)
	if err == nil {
		if cacheErr := writeCacheFile(path, raw, time.Now()); cacheErr != nil {
			logx.WithContext(ctx).Errorf("candidatepool: write oi-growth cache failed err=%v", cacheErr)
		}
		return parseOIGrowth(raw), nil
	}
	logx.WithContext(ctx).Errorf("candidatepool: oi-growth feed fetch failed err=%v", err)

	fetchedAt, entries, readErr := readCacheFile(path)
	if readErr != nil {
		return nil, nil
	}
	if time.Since(fetchedAt) > staleCacheAge {
		logx.WithContext(ctx).Errorf("candidatepool: oi-growth cache is stale fetched_at=%s", fetchedAt.Format(time.RFC3339))
	}
	return parseOIGrowth(entries), nil
}

// Merged returns the union of the top aiLimit scored-feed symbols (by score
// descending) and every OI-growth symbol, each tagged with the feed(s) it
// originated from. Per an explicitly recorded design decision, aiLimit is
// plumbed through but never trims the scored feed below its own length — the
// cap is a genuine no-op, honoring spec.md's Open Question on this point.
func (p *Pool) Merged(ctx context.Context, aiLimit int) ([]Candidate, error) {
	scored, err := p.ScoredFeed(ctx)
	if err != nil {
		return nil, err
	}
	oiGrowth, err := p.OIGrowthFeed(ctx)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	origins := make(map[string][]string)
	order := make([]string, 0, len(scored)+len(oiGrowth))
	for _, s := range scored {
		if _, seen := origins[s.Symbol]; !seen {
			order = append(order, s.Symbol)
		}
		origins[s.Symbol] = appendUnique(origins[s.Symbol], "scored_feed")
	}
	for _, o := range oiGrowth {
		if _, seen := origins[o.Symbol]; !seen {
			order = append(order, o.Symbol)
		}
		origins[o.Symbol] = appendUnique(origins[o.Symbol], "oi_growth_feed")
	}

	out := make([]Candidate, 0, len(order))
	for _, symbol := range order {
		out = append(out, Candidate{Symbol: symbol, Origins: origins[symbol]})
	}
	return out, nil
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

func defaultScored() []ScoredCandidate {
	out := make([]ScoredCandidate, len(DefaultSymbols))
	for i, sym := range DefaultSymbols {
		out[i] = ScoredCandidate{Symbol: sym}
	}
	return out
}

// fetchWithRetry performs the §4.D fetch with up to 3 retries at 1s/2s/4s.
// Generic HTTP fetch errors (non-2xx, transport failures) are retryable here
// regardless of type, unlike pkg/llm's vendor-specific shouldRetry predicate,
// so this is a standalone loop rather than a reuse of pkg/llm.RetryHandler.
func fetchWithRetry(ctx context.Context, client *http.Client, url string, schedule []time.Duration) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= len(schedule); attempt++ {
		body, err := fetchOnce(ctx, client, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if attempt == len(schedule) {
			break
		}
		select {
		case <-time.After(schedule[attempt]):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func fetchOnce(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &httpStatusError{url: url, status: resp.StatusCode}
	}
	return body, nil
}

type httpStatusError struct {
	url    string
	status int
}

func (e *httpStatusError) Error() string {
	return "candidatepool: unexpected status " + http.StatusText(e.status) + " from " + e.url
}

func parseScored(raw []byte) []ScoredCandidate {
	parsed := gjson.ParseBytes(raw)
	var out []ScoredCandidate
	parsed.ForEach(func(_, elem gjson.Result) bool {
		if !elem.IsObject() {
			return true
		}
		var flags []string
		elem.Get("flags").ForEach(func(_, f gjson.Result) bool {
			flags = append(flags, f.String())
			return true
		})
		out = append(out, ScoredCandidate{
			Symbol: strings.ToUpper(strings.TrimSpace(elem.Get("symbol").String())),
			Score:  elem.Get("score").Float(),
			Flags:  flags,
		})
		return true
	})
	return out
}

func parseOIGrowth(raw []byte) []OIGrowthCandidate {
	parsed := gjson.ParseBytes(raw)
	var out []OIGrowthCandidate
	parsed.ForEach(func(_, elem gjson.Result) bool {
		if !elem.IsObject() {
			return true
		}
		out = append(out, OIGrowthCandidate{
			Symbol:      strings.ToUpper(strings.TrimSpace(elem.Get("symbol").String())),
			Rank:        int(elem.Get("rank").Int()),
			OIDeltaPct:  elem.Get("oi_delta_pct").Float(),
			OIDeltaUSD:  elem.Get("oi_delta_value").Float(),
			PriceDelta:  elem.Get("price_delta_pct").Float(),
			NetLongUSD:  elem.Get("net_long").Float(),
			NetShortUSD: elem.Get("net_short").Float(),
		})
		return true
	})
	return out
}
