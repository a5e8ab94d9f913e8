// Command cron runs the read-only market/exchange monitoring loop: it never
// places an order or drives an AutoTrader, it only exercises the Provider
// read paths on a schedule and reports latency/error counts so an operator
// can tell a venue or data feed is unhealthy before an AutoTrader hits it.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zeromicro/go-zero/core/logx"

	"nof0-api/internal/cli"
	"nof0-api/internal/config"
	"nof0-api/pkg/exchange"
	"nof0-api/pkg/market"

	// Import for side-effects: registers hyperliquid providers
	_ "nof0-api/pkg/exchange/hyperliquid"
	hyperliquidExchange "nof0-api/pkg/exchange/hyperliquid"
	_ "nof0-api/pkg/market/exchanges/hyperliquid"
)

const (
	marketInterval   = 2 * time.Minute  // Market data monitoring interval
	exchangeInterval = 10 * time.Minute // Exchange API monitoring interval
	apiTimeout       = 5 * time.Second  // Timeout for individual API calls
	shutdownTimeout  = 10 * time.Second // Grace period for shutdown

	defaultExchangeConfigPath = "etc/exchange.yaml"
	metricsAddrEnv            = "PROMETHEUS_LISTEN_ADDR"
)

var monitoredSymbols = []string{"BTC", "ETH", "SOL"}

var checkLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "nof0_cron_check_duration_seconds",
	Help:    "Latency of one read-only market/exchange monitoring check.",
	Buckets: prometheus.DefBuckets,
}, []string{"check"})

// serveMetrics exposes the default prometheus registry (checkLatency above)
// on addr. A listen failure is logged, not fatal: the monitor loop itself
// must keep running even if the metrics endpoint can't bind.
func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logx.Infof("cron: serving metrics on %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Errorf("cron: metrics server stopped: %v", err)
		}
	}()
}

func main() {
	logx.Infof("cron: starting monitor")

	appCfg, err := config.Load(config.ConfigFile())
	if err != nil {
		logx.Errorf("cron: failed to load app config: %v, using default configuration", err)
		appCfg = &config.Config{Env: "test"}
	}
	for _, line := range cli.ConfigSummaryLines(appCfg) {
		logx.Infof("cron: %s", line)
	}

	if addr := os.Getenv(metricsAddrEnv); addr != "" {
		serveMetrics(addr)
	}

	marketCfg := appCfg.Market.Value
	marketPath := appCfg.Market.File
	if marketCfg == nil {
		marketCfg = config.MustLoadMarket()
		marketPath = "etc/market.yaml (default)"
	}

	exchangeCfg, err := exchange.LoadConfig(defaultExchangeConfigPath)
	if err != nil {
		logx.Errorf("cron: failed to load exchange config from %s: %v", defaultExchangeConfigPath, err)
		os.Exit(1)
	}
	if appCfg.IsTestEnv() {
		for _, provider := range exchangeCfg.Providers {
			provider.Testnet = true
		}
	}

	logx.Infof("cron: market config path=%s", marketPath)
	logx.Infof("cron: exchange config path=%s", defaultExchangeConfigPath)
	logx.Infof("cron: monitored symbols=%v, intervals market=%s exchange=%s", monitoredSymbols, marketInterval, exchangeInterval)

	marketProviders, err := marketCfg.BuildProviders()
	if err != nil {
		logx.Errorf("cron: failed to build market providers: %v", err)
		os.Exit(1)
	}
	marketProvider, ok := marketProviders[marketCfg.Default]
	if !ok {
		logx.Errorf("cron: default market provider %q not found", marketCfg.Default)
		os.Exit(1)
	}

	exchangeProviders, err := exchangeCfg.BuildProviders()
	if err != nil {
		logx.Errorf("cron: failed to build exchange providers: %v", err)
		os.Exit(1)
	}
	exchangeProvider, ok := exchangeProviders[exchangeCfg.Default]
	if !ok {
		logx.Errorf("cron: default exchange provider %q not found", exchangeCfg.Default)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		runMarketMonitor(ctx, marketProvider)
	}()
	go func() {
		defer wg.Done()
		runExchangeMonitor(ctx, exchangeProvider)
	}()

	logx.Infof("cron: monitor started, press Ctrl+C to stop")
	<-ctx.Done()
	logx.Infof("cron: shutdown signal received, stopping tasks")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logx.Infof("cron: all tasks stopped cleanly")
	case <-shutdownCtx.Done():
		logx.Errorf("cron: shutdown timeout exceeded, forcing exit")
	}
	logx.Infof("cron: monitor stopped")
}

// runMarketMonitor runs market data monitoring on a schedule
func runMarketMonitor(ctx context.Context, provider market.Provider) {
	ticker := time.NewTicker(marketInterval)
	defer ticker.Stop()

	monitorMarket(ctx, provider)
	for {
		select {
		case <-ctx.Done():
			logx.Infof("cron: stopping market monitor")
			return
		case <-ticker.C:
			monitorMarket(ctx, provider)
		}
	}
}

// runExchangeMonitor runs exchange API monitoring on a schedule
func runExchangeMonitor(ctx context.Context, provider exchange.Provider) {
	ticker := time.NewTicker(exchangeInterval)
	defer ticker.Stop()

	monitorExchange(ctx, provider)
	for {
		select {
		case <-ctx.Done():
			logx.Infof("cron: stopping exchange monitor")
			return
		case <-ticker.C:
			monitorExchange(ctx, provider)
		}
	}
}

// timedCheck runs fn with apiTimeout, logging its latency and recording it
// against the "check" metric so a degrading venue/data feed shows up on a
// dashboard before an AutoTrader ever calls the same method.
func timedCheck(parentCtx context.Context, name string, fn func(ctx context.Context) error) {
	if parentCtx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(parentCtx, apiTimeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	checkLatency.WithLabelValues(name).Observe(elapsed.Seconds())

	if err != nil {
		logx.Errorf("cron: check=%s [ERROR] %v took=%s", name, err, elapsed)
		return
	}
	logx.Infof("cron: check=%s [OK] took=%s", name, elapsed)
}

// monitorMarket calls market data interfaces and logs results
func monitorMarket(parentCtx context.Context, provider market.Provider) {
	timedCheck(parentCtx, "market.list_assets", func(ctx context.Context) error {
		assets, err := provider.ListAssets(ctx)
		if err != nil {
			return err
		}
		logx.Infof("cron: market.list_assets found %d assets", len(assets))
		return nil
	})

	for _, symbol := range monitoredSymbols {
		sym := symbol
		timedCheck(parentCtx, "market.snapshot."+sym, func(ctx context.Context) error {
			snapshot, err := provider.Snapshot(ctx, sym)
			if err != nil {
				return err
			}
			if snapshot.Price.Last <= 0 {
				logx.Errorf("cron: market.snapshot.%s invalid price=%f", sym, snapshot.Price.Last)
				return nil
			}
			logx.Infof("cron: market.snapshot.%s price=%.2f change_1h=%.2f%% change_4h=%.2f%%",
				sym, snapshot.Price.Last, snapshot.Change.OneHour*100, snapshot.Change.FourHour*100)
			if snapshot.OpenInterest != nil {
				logx.Infof("cron: market.snapshot.%s open_interest latest=%.2f average=%.2f",
					sym, snapshot.OpenInterest.Latest, snapshot.OpenInterest.Average)
			}
			return nil
		})
	}
}

// monitorExchange calls exchange read-only interfaces and logs results
func monitorExchange(parentCtx context.Context, provider exchange.Provider) {
	timedCheck(parentCtx, "exchange.open_orders", func(ctx context.Context) error {
		orders, err := provider.GetOpenOrders(ctx)
		if err != nil {
			return err
		}
		logx.Infof("cron: exchange.open_orders count=%d", len(orders))
		return nil
	})

	timedCheck(parentCtx, "exchange.positions", func(ctx context.Context) error {
		positions, err := provider.GetPositions(ctx)
		if err != nil {
			return err
		}
		logx.Infof("cron: exchange.positions count=%d", len(positions))
		for _, pos := range positions {
			entryPx := "N/A"
			if pos.EntryPx != nil {
				entryPx = *pos.EntryPx
			}
			logx.Infof("cron: exchange.positions %s size=%s entry=%s unrealized_pnl=%s", pos.Coin, pos.Szi, entryPx, pos.UnrealizedPnl)
		}
		return nil
	})

	timedCheck(parentCtx, "exchange.account_state", func(ctx context.Context) error {
		state, err := provider.GetAccountState(ctx)
		if err != nil {
			return err
		}
		if state == nil {
			logx.Errorf("cron: exchange.account_state received nil state")
			return nil
		}
		logx.Infof("cron: exchange.account_state account_value=%s total_margin=%s",
			state.MarginSummary.AccountValue, state.MarginSummary.TotalMarginUsed)
		return nil
	})

	timedCheck(parentCtx, "exchange.account_value", func(ctx context.Context) error {
		value, err := provider.GetAccountValue(ctx)
		if err != nil {
			return err
		}
		logx.Infof("cron: exchange.account_value value=%.2f", value)
		return nil
	})

	for _, symbol := range monitoredSymbols {
		sym := symbol
		timedCheck(parentCtx, "exchange.asset_index."+sym, func(ctx context.Context) error {
			idx, err := provider.GetAssetIndex(ctx, sym)
			if err != nil {
				return err
			}
			logx.Infof("cron: exchange.asset_index.%s index=%d", sym, idx)
			return nil
		})
	}

	hlProvider, ok := provider.(*hyperliquidExchange.Provider)
	if !ok {
		return
	}
	for _, symbol := range monitoredSymbols {
		sym := symbol
		timedCheck(parentCtx, "hyperliquid.format_size."+sym, func(ctx context.Context) error {
			formatted, err := hlProvider.FormatSize(ctx, sym, 1.23456789)
			if err != nil {
				return err
			}
			logx.Infof("cron: hyperliquid.format_size.%s 1.23456789 -> %s", sym, formatted)
			return nil
		})
		timedCheck(parentCtx, "hyperliquid.format_price."+sym, func(ctx context.Context) error {
			formatted, err := hlProvider.FormatPrice(ctx, sym, 12345.6789)
			if err != nil {
				return err
			}
			logx.Infof("cron: hyperliquid.format_price.%s 12345.6789 -> %s", sym, formatted)
			return nil
		})
	}
}
