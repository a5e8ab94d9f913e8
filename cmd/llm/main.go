// Command llm drives the live trading loop: it loads every trader
// configured for a user, wires each one to a venue, a market data provider,
// and an LLM-backed DecisionEngine, and runs them concurrently under a
// Supervisor until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"nof0-api/internal/cache"
	"nof0-api/internal/cli"
	appconfig "nof0-api/internal/config"
	"nof0-api/internal/svc"
	"nof0-api/internal/telemetry"
	"nof0-api/pkg/candidatepool"
	executorpkg "nof0-api/pkg/executor"
	llmpkg "nof0-api/pkg/llm"
	managerpkg "nof0-api/pkg/manager"
	marketpkg "nof0-api/pkg/market"

	// Import for side-effects: registers venue/market provider constructors.
	_ "nof0-api/pkg/exchange/hyperliquid"
	_ "nof0-api/pkg/market/exchanges/hyperliquid"
	"nof0-api/pkg/venue"
)

const (
	defaultPromptTemplateDir = "etc/prompts"
	defaultMonitoredSymbols  = "BTC,ETH,SOL"
	shutdownTimeout          = 30 * time.Second
	metricsAddrEnv           = "PROMETHEUS_LISTEN_ADDR"
	redisAddrEnv             = "CACHE_REDIS_ADDR"
)

var (
	userIDFlag         = flag.String("user", "default", "user id to load trader configuration for")
	symbolsFlag        = flag.String("symbols", defaultMonitoredSymbols, "comma-separated market warm-up symbol list")
	candidateCacheFlag = flag.String("candidate-cache-dir", "var/candidatepool", "disk cache directory for the candidate pool feeds")
)

func fatalf(format string, args ...interface{}) {
	logx.Errorf(format, args...)
	os.Exit(1)
}

// yamlTraderConfigRepo adapts the YAML fleet configuration (pkg/manager.Config)
// to manager.TraderConfigRepo, the interface Supervisor.LoadForUser consumes.
// It is the fallback path internal/svc.ServiceContext's doc comment describes:
// used whenever no Postgres.DataSource is configured, i.e. every standalone
// cmd/llm deployment that isn't backed by the configuration database (§6).
// Unlike the database-backed repo.TraderConfigRepo, it is single-tenant: every
// trader in the YAML file is returned regardless of the requested userID.
type yamlTraderConfigRepo struct {
	cfg *managerpkg.Config
}

func newYAMLTraderConfigRepo(cfg *managerpkg.Config) *yamlTraderConfigRepo {
	return &yamlTraderConfigRepo{cfg: cfg}
}

func (r *yamlTraderConfigRepo) TradersForUser(ctx context.Context, userID string) ([]managerpkg.TraderRow, error) {
	if r.cfg == nil {
		return nil, fmt.Errorf("yaml trader config repo: manager config not loaded")
	}
	rows := make([]managerpkg.TraderRow, 0, len(r.cfg.Traders))
	for _, tr := range r.cfg.Traders {
		rows = append(rows, managerpkg.TraderRow{
			TraderID:             tr.ID,
			UserID:               userID,
			Name:                 tr.Name,
			AIModelID:            tr.Model,
			ModelEnabled:         true,
			ExchangeID:           tr.ExchangeProvider,
			ExchangeCredentialID: tr.ExchangeProvider,
			ExchangeEnabled:      true,
			BTCETHLeverage:       tr.RiskParams.BTCETHLeverage,
			AltcoinLeverage:      tr.RiskParams.AltcoinLeverage,
			ScanIntervalMinutes:  int(tr.DecisionInterval / time.Minute),
			SystemPromptTemplate: tr.PromptTemplate,
			CustomPrompt:         tr.CustomPrompt,
			OverrideBasePrompt:   tr.OverrideBasePrompt,
		})
	}
	return rows, nil
}

// filteredMarket narrows a shared market.Provider down to the symbol list a
// single trader is allowed to see, so one misconfigured trader can't widen
// its own candidate set by requesting an un-configured symbol.
type filteredMarket struct {
	marketpkg.Provider
	allowed map[string]struct{}
}

func newFilteredMarket(base marketpkg.Provider, symbols []string) marketpkg.Provider {
	set := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym != "" {
			set[sym] = struct{}{}
		}
	}
	if len(set) == 0 {
		return base
	}
	return &filteredMarket{Provider: base, allowed: set}
}

func (f *filteredMarket) Snapshot(ctx context.Context, symbol string) (*marketpkg.Snapshot, error) {
	if _, ok := f.allowed[strings.ToUpper(symbol)]; !ok {
		return nil, fmt.Errorf("filtered market: symbol %s not allowed for this trader", symbol)
	}
	return f.Provider.Snapshot(ctx, symbol)
}

func (f *filteredMarket) ListAssets(ctx context.Context) ([]marketpkg.Asset, error) {
	assets, err := f.Provider.ListAssets(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]marketpkg.Asset, 0, len(assets))
	for _, asset := range assets {
		if _, ok := f.allowed[strings.ToUpper(asset.Symbol)]; ok {
			out = append(out, asset)
		}
	}
	return out, nil
}

func parseSymbols(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t'
	})
	out := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		f = strings.ToUpper(strings.TrimSpace(f))
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

func main() {
	flag.Parse()
	logx.Infof("llm: starting autotrader supervisor")

	appCfg, err := appconfig.Load(appconfig.ConfigFile())
	if err != nil {
		fatalf("llm: failed to load app config: %v", err)
	}
	for _, line := range cli.ConfigSummaryLines(appCfg) {
		logx.Infof("llm: %s", line)
	}

	svcCtx := svc.NewServiceContext(*appCfg, appconfig.ConfigFile())
	if svcCtx.ManagerConfig == nil && svcCtx.TraderConfigRepo == nil {
		fatalf("llm: neither manager.file nor postgres.data_source configured; no trader source available")
	}

	var traderRepo managerpkg.TraderConfigRepo
	switch {
	case svcCtx.TraderConfigRepo != nil:
		traderRepo = svcCtx.TraderConfigRepo
		logx.Infof("llm: loading traders from configuration database")
	default:
		traderRepo = newYAMLTraderConfigRepo(svcCtx.ManagerConfig)
		logx.Infof("llm: loading traders from YAML fleet configuration (%d traders)", len(svcCtx.ManagerConfig.Traders))
	}

	pool, err := candidatepool.New(candidatepool.Config{
		ScoredFeedEnabled:   os.Getenv("CANDIDATE_SCORED_FEED_URL") != "",
		ScoredFeedURL:       os.Getenv("CANDIDATE_SCORED_FEED_URL"),
		OIGrowthFeedEnabled: os.Getenv("CANDIDATE_OI_FEED_URL") != "",
		OIGrowthFeedURL:     os.Getenv("CANDIDATE_OI_FEED_URL"),
		CacheDir:            *candidateCacheFlag,
	})
	if err != nil {
		fatalf("llm: failed to construct candidate pool: %v", err)
	}

	var llmClient *llmpkg.Client
	if svcCtx.LLMConfig != nil {
		llmClient, err = llmpkg.NewClient(svcCtx.LLMConfig)
		if err != nil {
			fatalf("llm: failed to construct llm client: %v", err)
		}
		defer llmClient.Close()
	}

	promptTemplateDir := defaultPromptTemplateDir
	if svcCtx.ManagerConfig != nil && svcCtx.ManagerConfig.Manager.PromptTemplateDir != "" {
		promptTemplateDir = svcCtx.ManagerConfig.Manager.PromptTemplateDir
	}

	warmupSymbols := parseSymbols(*symbolsFlag)

	buildVenue := func(ctx context.Context, row managerpkg.TraderRow) (venue.Venue, error) {
		if v, ok := svcCtx.ManagerTraderVenue[row.TraderID]; ok {
			return v, nil
		}
		if v, ok := svcCtx.VenueProviders[row.ExchangeID]; ok {
			return v, nil
		}
		if svcCtx.DefaultVenue != nil {
			return svcCtx.DefaultVenue, nil
		}
		return nil, fmt.Errorf("no venue provider for exchange id %q", row.ExchangeID)
	}

	buildMarket := func(ctx context.Context, row managerpkg.TraderRow) (marketpkg.Provider, error) {
		base, ok := svcCtx.ManagerTraderMarket[row.TraderID]
		if !ok {
			base = svcCtx.DefaultMarket
		}
		if base == nil {
			return nil, fmt.Errorf("no market provider available for trader %s", row.TraderID)
		}
		return newFilteredMarket(base, warmupSymbols), nil
	}

	buildExecutor := func(ctx context.Context, row managerpkg.TraderRow) (executorpkg.Executor, error) {
		if llmClient == nil {
			return nil, fmt.Errorf("llm client not configured (set llm.file in %s)", appconfig.ConfigFile())
		}
		if svcCtx.ExecutorConfig == nil {
			return nil, fmt.Errorf("executor config not configured (set executor.file in %s)", appconfig.ConfigFile())
		}
		modelAlias := row.AIModelID
		if modelAlias == "" {
			modelAlias = svcCtx.LLMConfig.DefaultModel
		}
		return executorpkg.NewExecutor(svcCtx.ExecutorConfig, llmClient, promptTemplateDir, modelAlias)
	}

	execGuards := managerpkg.ExecGuards{}
	if svcCtx.ManagerConfig != nil && len(svcCtx.ManagerConfig.Traders) > 0 {
		execGuards = svcCtx.ManagerConfig.Traders[0].ExecGuards
	}

	supervisor := managerpkg.NewSupervisor(traderRepo, pool, svcCtx.JournalRoot, execGuards, buildVenue, buildMarket, buildExecutor)

	shutdownTracing, err := telemetry.StartTracing(context.Background(), "nof0-llm")
	if err != nil {
		logx.Errorf("llm: failed to start tracing: %v", err)
		shutdownTracing = func(context.Context) error { return nil }
	}
	stopProfiling, err := telemetry.StartProfiling("nof0-llm")
	if err != nil {
		logx.Errorf("llm: failed to start profiling: %v", err)
		stopProfiling = func() {}
	}
	registry := telemetry.NewRegistry()
	if addr := os.Getenv(metricsAddrEnv); addr != "" {
		registry.Serve(addr)
	}
	supervisor.SetObserver(registry)

	if addr := os.Getenv(redisAddrEnv); addr != "" {
		redisClient := cache.NewClient(cache.RedisConf{Addr: addr})
		if err := cache.Ping(context.Background(), redisClient); err != nil {
			logx.Errorf("llm: redis at %s unreachable, continuing without cache mirroring: %v", addr, err)
		} else {
			supervisor.SetPersistence(cache.NewRedisPersistence(redisClient, cache.NewTTLSet(appCfg.TTL)))
			logx.Infof("llm: mirroring trader state to redis at %s", addr)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := supervisor.LoadForUser(ctx, *userIDFlag); err != nil {
		fatalf("llm: failed to load traders for user %s: %v", *userIDFlag, err)
	}
	if len(supervisor.List()) == 0 {
		fatalf("llm: no traders registered for user %s", *userIDFlag)
	}
	if err := supervisor.StartAll(ctx); err != nil {
		logx.Errorf("llm: start all traders reported errors: %v", err)
	}

	warmup := newMarketIngestor(svcCtx.MarketProviders, warmupSymbols, 2*time.Minute, 15*time.Minute, 200*time.Millisecond)
	go warmup.run(ctx)

	logx.Infof("llm: %d traders running, press Ctrl+C to stop", len(supervisor.List()))
	<-ctx.Done()
	logx.Infof("llm: shutdown signal received, stopping traders")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := supervisor.StopAll(stopCtx); err != nil {
		logx.Errorf("llm: stop all traders reported errors: %v", err)
	}

	stopProfiling()
	if err := shutdownTracing(stopCtx); err != nil {
		logx.Errorf("llm: tracing shutdown error: %v", err)
	}
	logx.Infof("llm: supervisor stopped")
}
