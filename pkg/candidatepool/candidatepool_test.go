package candidatepool

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPool_ScoredFeed_DisabledReturnsDefaults(t *testing.T) {
	p, err := New(Config{CacheDir: t.TempDir()})
	require.NoError(t, err)

	scored, err := p.ScoredFeed(context.Background())
	require.NoError(t, err)
	require.Len(t, scored, len(DefaultSymbols))
	require.Equal(t, "BTCUSDT", scored[0].Symbol)
}

func TestPool_ScoredFeed_FetchesAndCaches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"symbol":"solusdt","score":8.5},{"symbol":"btcusdt","score":9.9}]`))
	}))
	defer srv.Close()

	p, err := New(Config{ScoredFeedEnabled: true, ScoredFeedURL: srv.URL, CacheDir: t.TempDir()})
	require.NoError(t, err)

	scored, err := p.ScoredFeed(context.Background())
	require.NoError(t, err)
	require.Len(t, scored, 2)
	require.Equal(t, "SOLUSDT", scored[0].Symbol)

	_, _, err = readCacheFile(p.cachePath(scoredCacheFile))
	require.NoError(t, err, "a successful fetch must populate the cache file")
}

func TestPool_ScoredFeed_FallsBackToCacheOnFetchFailure(t *testing.T) {
	dir := t.TempDir()
	p, err := New(Config{ScoredFeedEnabled: true, ScoredFeedURL: "http://127.0.0.1:0/unreachable", CacheDir: dir})
	require.NoError(t, err)
	p.retries = nil

	require.NoError(t, writeCacheFile(p.cachePath(scoredCacheFile), []byte(`[{"symbol":"ethusdt","score":1}]`), time.Now()))

	scored, err := p.ScoredFeed(context.Background())
	require.NoError(t, err)
	require.Len(t, scored, 1)
	require.Equal(t, "ETHUSDT", scored[0].Symbol)
}

func TestPool_ScoredFeed_FallsBackToDefaultsWithNoCache(t *testing.T) {
	p, err := New(Config{ScoredFeedEnabled: true, ScoredFeedURL: "http://127.0.0.1:0/unreachable", CacheDir: t.TempDir()})
	require.NoError(t, err)
	p.retries = nil

	scored, err := p.ScoredFeed(context.Background())
	require.NoError(t, err)
	require.Len(t, scored, len(DefaultSymbols))
}

func TestPool_OIGrowthFeed_DisabledReturnsEmpty(t *testing.T) {
	p, err := New(Config{CacheDir: t.TempDir()})
	require.NoError(t, err)

	oi, err := p.OIGrowthFeed(context.Background())
	require.NoError(t, err)
	require.Empty(t, oi)
}

func TestPool_Merged_UnionsFeedsWithOriginTags(t *testing.T) {
	scoredSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"symbol":"btcusdt","score":5},{"symbol":"ethusdt","score":9}]`))
	}))
	defer scoredSrv.Close()
	oiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"symbol":"pepeusdt","rank":1,"oi_delta_pct":12.3}]`))
	}))
	defer oiSrv.Close()

	p, err := New(Config{
		ScoredFeedEnabled: true, ScoredFeedURL: scoredSrv.URL,
		OIGrowthFeedEnabled: true, OIGrowthFeedURL: oiSrv.URL,
		CacheDir: t.TempDir(),
	})
	require.NoError(t, err)

	merged, err := p.Merged(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, merged, 3, "union of 2 scored + 1 oi-growth symbol, no overlap")

	bySymbol := make(map[string][]string)
	for _, c := range merged {
		bySymbol[c.Symbol] = c.Origins
	}
	require.Equal(t, []string{"scored_feed"}, bySymbol["ETHUSDT"])
	require.Equal(t, []string{"oi_growth_feed"}, bySymbol["PEPEUSDT"])
}

func TestPool_Merged_AiLimitDoesNotTrimScoredFeed(t *testing.T) {
	scoredSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"symbol":"a","score":1},{"symbol":"b","score":2},{"symbol":"c","score":3}]`))
	}))
	defer scoredSrv.Close()

	p, err := New(Config{ScoredFeedEnabled: true, ScoredFeedURL: scoredSrv.URL, CacheDir: t.TempDir()})
	require.NoError(t, err)

	merged, err := p.Merged(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, merged, 3, "ai_limit is plumbed through but never reduces the scored feed, per design decision")
}
