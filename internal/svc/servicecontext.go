package svc

import (
	"log"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"nof0-api/internal/config"
	"nof0-api/internal/repo"
	"nof0-api/pkg/confkit"
	executorpkg "nof0-api/pkg/executor"
	llmpkg "nof0-api/pkg/llm"
	managerpkg "nof0-api/pkg/manager"
	marketpkg "nof0-api/pkg/market"
	_ "nof0-api/pkg/market/exchanges/hyperliquid"
	venuepkg "nof0-api/pkg/venue"
)

type ServiceContext struct {
	Config config.Config

	// JournalRoot is the base directory AutoTraders append DecisionLog entries
	// under, one subdirectory per trader_id. Derived from Config.DataPath.
	JournalRoot string

	LLMConfig             *llmpkg.Config
	ExecutorConfig        *executorpkg.Config
	ManagerConfig         *managerpkg.Config
	VenueConfig           *venuepkg.RegistryConfig
	VenueProviders        map[string]venuepkg.Venue
	DefaultVenue          venuepkg.Venue
	MarketConfig          *marketpkg.Config
	MarketProviders       map[string]marketpkg.Provider
	DefaultMarket         marketpkg.Provider
	ManagerTraderVenue    map[string]venuepkg.Venue
	ManagerTraderMarket   map[string]marketpkg.Provider
	// ManagerTraderExchange is kept as an alias of ManagerTraderVenue for
	// callers still phrased in terms of the older "exchange" vocabulary.
	ManagerTraderExchange map[string]venuepkg.Venue
	ExchangeProviders     map[string]venuepkg.Venue

	// DBConn and TraderConfigRepo are only populated when Postgres.DataSource
	// is configured; Supervisor.LoadForUser falls back to a YAML-driven repo
	// otherwise (see cmd/llm).
	DBConn           sqlx.SqlConn
	TraderConfigRepo *repo.TraderConfigRepo
}

func NewServiceContext(c config.Config, mainConfigPath string) *ServiceContext {
	svc := &ServiceContext{
		Config:      c,
		JournalRoot: c.DataPath,
	}

	baseDir := confkit.BaseDir(mainConfigPath)

	// Load LLM config if specified
	if c.LLM.File != "" {
		llmCfg, err := llmpkg.LoadConfig(confkit.ResolvePath(baseDir, c.LLM.File))
		if err != nil {
			log.Fatalf("failed to load llm config: %v", err)
		}
		// Apply test environment defaults: use low-cost model for good quality
		if c.IsTestEnv() {
			llmCfg.DefaultModel = "google/gemini-2.5-flash-lite"
		}
		svc.LLMConfig = llmCfg
	}

	// Load Executor config if specified
	if c.Executor.File != "" {
		executorCfg, err := executorpkg.LoadConfig(confkit.ResolvePath(baseDir, c.Executor.File))
		if err != nil {
			log.Fatalf("failed to load executor config: %v", err)
		}
		svc.ExecutorConfig = executorCfg
	}

	// Load Manager config if specified
	if c.Manager.File != "" {
		managerCfg, err := managerpkg.LoadConfig(confkit.ResolvePath(baseDir, c.Manager.File))
		if err != nil {
			log.Fatalf("failed to load manager config: %v", err)
		}
		svc.ManagerConfig = managerCfg
	}

	// Load Venue config if specified
	if c.Venue.File != "" {
		venueCfg, err := venuepkg.LoadConfig(confkit.ResolvePath(baseDir, c.Venue.File))
		if err != nil {
			log.Fatalf("failed to load venue config: %v", err)
		}
		// Apply test environment defaults: use testnet endpoints for all venues
		if c.IsTestEnv() {
			for _, v := range venueCfg.Venues {
				v.Testnet = true
			}
		}
		venues, err := venueCfg.BuildVenues()
		if err != nil {
			log.Fatalf("failed to build venues: %v", err)
		}
		svc.VenueConfig = venueCfg
		svc.VenueProviders = venues
		svc.ExchangeProviders = venues
		if venueCfg.Default != "" {
			svc.DefaultVenue = venues[venueCfg.Default]
		}
	}

	// Load Market config if specified
	if c.Market.File != "" {
		marketCfg, err := marketpkg.LoadConfig(confkit.ResolvePath(baseDir, c.Market.File))
		if err != nil {
			log.Fatalf("failed to load market config: %v", err)
		}
		providers, err := marketCfg.BuildProviders()
		if err != nil {
			log.Fatalf("failed to build market providers: %v", err)
		}
		svc.MarketConfig = marketCfg
		svc.MarketProviders = providers
		if marketCfg.Default != "" {
			svc.DefaultMarket = providers[marketCfg.Default]
		}
	}

	// Validate cross-module references: manager trader -> venue/market providers
	if svc.ManagerConfig != nil {
		svc.ManagerTraderVenue = make(map[string]venuepkg.Venue, len(svc.ManagerConfig.Traders))
		svc.ManagerTraderMarket = make(map[string]marketpkg.Provider, len(svc.ManagerConfig.Traders))
		for i := range svc.ManagerConfig.Traders {
			trader := &svc.ManagerConfig.Traders[i]
			// Strict mapping: manager config requires explicit provider IDs
			venueProvider, ok := svc.VenueProviders[trader.ExchangeProvider]
			if !ok {
				log.Fatalf("manager trader %s references unknown venue provider %s", trader.ID, trader.ExchangeProvider)
			}
			svc.ManagerTraderVenue[trader.ID] = venueProvider

			mktProvider, ok := svc.MarketProviders[trader.MarketProvider]
			if !ok {
				log.Fatalf("manager trader %s references unknown market provider %s", trader.ID, trader.MarketProvider)
			}
			svc.ManagerTraderMarket[trader.ID] = mktProvider
		}
		svc.ManagerTraderExchange = svc.ManagerTraderVenue
	}

	// Only inject DB access when a DSN is provided; the standalone cmd/llm
	// binary also runs fully off YAML config with no Postgres available.
	if c.Postgres.DataSource != "" {
		conn := sqlx.NewSqlConn("pgx", c.Postgres.DataSource)
		svc.DBConn = conn
		svc.TraderConfigRepo = repo.NewTraderConfigRepo(conn)
	}
	return svc
}
