package manager

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"nof0-api/pkg/candidatepool"
	executorpkg "nof0-api/pkg/executor"
	"nof0-api/pkg/journal"
	"nof0-api/pkg/market"
	"nof0-api/pkg/venue"
)

// TraderRow is the minimal shape of a configuration-database trader row (§6)
// a Supervisor needs to construct and register an AutoTrader. The external
// configuration database's schema and admin CRUD are out of scope (§1); this
// is only the read contract Supervisor.LoadForUser depends on.
type TraderRow struct {
	TraderID             string
	UserID               string
	Name                 string
	AIModelID            string
	ModelEnabled         bool
	ExchangeID           string
	ExchangeCredentialID string
	ExchangeEnabled      bool
	InitialBalanceUSD    float64
	BTCETHLeverage       int
	AltcoinLeverage      int
	ScanIntervalMinutes  int
	TradingSymbols       []string
	SystemPromptTemplate string
	CustomPrompt         string
	OverrideBasePrompt   bool
	IsCrossMargin        bool
	UseCoinPool          bool
	UseOITop             bool
}

// TraderConfigRepo reads per-user trader rows from the external configuration
// database (§6). internal/repo.TraderConfigRepo implements this interface;
// it is declared here, not imported, since pkg must not depend on internal.
type TraderConfigRepo interface {
	TradersForUser(ctx context.Context, userID string) ([]TraderRow, error)
}

// VenueBuilder, MarketBuilder, and ExecutorBuilder turn a TraderRow's vendor
// IDs into the live dependencies an AutoTrader drives. The owning process
// (cmd/llm) supplies these; Supervisor itself never talks to a concrete
// vendor SDK.
type (
	VenueBuilder    func(ctx context.Context, row TraderRow) (venue.Venue, error)
	MarketBuilder   func(ctx context.Context, row TraderRow) (market.Provider, error)
	ExecutorBuilder func(ctx context.Context, row TraderRow) (executorpkg.Executor, error)
)

// Supervisor owns a trader_id -> AutoTrader registry and drives the
// load/start/stop lifecycle across every trader it holds (§4.H). Each
// AutoTrader runs independently; the mutex only ever guards map access, never
// a blocking AutoTrader call.
type Supervisor struct {
	mu      sync.Mutex
	traders map[string]*AutoTrader

	repo        TraderConfigRepo
	pool        *candidatepool.Pool
	journalRoot string
	execGuards  ExecGuards
	observer    CycleObserver
	persistence PersistenceService

	buildVenue    VenueBuilder
	buildMarket   MarketBuilder
	buildExecutor ExecutorBuilder
}

// NewSupervisor constructs an empty Supervisor. execGuards supplies the
// default risk-control knobs (daily loss limit, cooldowns) applied to every
// trader loaded via LoadForUser, since those are deployment-wide operational
// policy rather than per-trader configuration-database fields.
func NewSupervisor(repo TraderConfigRepo, pool *candidatepool.Pool, journalRoot string, execGuards ExecGuards, buildVenue VenueBuilder, buildMarket MarketBuilder, buildExecutor ExecutorBuilder) *Supervisor {
	return &Supervisor{
		traders:       make(map[string]*AutoTrader),
		repo:          repo,
		pool:          pool,
		journalRoot:   journalRoot,
		execGuards:    execGuards,
		observer:      noopCycleObserver{},
		persistence:   newNoopPersistenceService(),
		buildVenue:    buildVenue,
		buildMarket:   buildMarket,
		buildExecutor: buildExecutor,
	}
}

// SetObserver wires a CycleObserver into the Supervisor and every trader it
// has already registered; every trader built afterward by buildTrader picks
// it up automatically.
func (s *Supervisor) SetObserver(o CycleObserver) {
	if o == nil {
		return
	}
	s.mu.Lock()
	s.observer = o
	traders := make([]*AutoTrader, 0, len(s.traders))
	for _, t := range s.traders {
		traders = append(traders, t)
	}
	s.mu.Unlock()
	for _, t := range traders {
		t.SetObserver(o)
	}
}

// SetPersistence wires a PersistenceService into the Supervisor and every
// trader already registered; every trader built afterward by buildTrader
// picks it up automatically, the same propagation shape as SetObserver.
func (s *Supervisor) SetPersistence(p PersistenceService) {
	if p == nil {
		return
	}
	s.mu.Lock()
	s.persistence = p
	traders := make([]*AutoTrader, 0, len(s.traders))
	for _, t := range s.traders {
		traders = append(traders, t)
	}
	s.mu.Unlock()
	for _, t := range traders {
		t.SetPersistence(p)
	}
}

// LoadForUser reads every trader row for userID and registers one AutoTrader
// per row that references an enabled LLM model and enabled venue credentials
// (§4.H). Registration is idempotent on trader_id: a row already registered
// is skipped rather than reconstructed.
func (s *Supervisor) LoadForUser(ctx context.Context, userID string) error {
	rows, err := s.repo.TradersForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("supervisor: load traders for user %s: %w", userID, err)
	}

	for _, row := range rows {
		if !row.ModelEnabled {
			logx.WithContext(ctx).Infof("supervisor: skipping trader %s, model %s disabled", row.TraderID, row.AIModelID)
			continue
		}
		if !row.ExchangeEnabled {
			logx.WithContext(ctx).Infof("supervisor: skipping trader %s, exchange credential %s disabled", row.TraderID, row.ExchangeCredentialID)
			continue
		}

		s.mu.Lock()
		_, exists := s.traders[row.TraderID]
		s.mu.Unlock()
		if exists {
			continue
		}

		trader, err := s.buildTrader(ctx, row)
		if err != nil {
			logx.WithContext(ctx).Errorf("supervisor: build trader %s failed: %v", row.TraderID, err)
			continue
		}
		if err := trader.Initialize(ctx); err != nil {
			logx.WithContext(ctx).Errorf("supervisor: initialize trader %s failed: %v", row.TraderID, err)
			continue
		}

		s.mu.Lock()
		s.traders[row.TraderID] = trader
		s.mu.Unlock()
	}
	return nil
}

func (s *Supervisor) buildTrader(ctx context.Context, row TraderRow) (*AutoTrader, error) {
	v, err := s.buildVenue(ctx, row)
	if err != nil {
		return nil, fmt.Errorf("build venue: %w", err)
	}
	m, err := s.buildMarket(ctx, row)
	if err != nil {
		return nil, fmt.Errorf("build market provider: %w", err)
	}
	exec, err := s.buildExecutor(ctx, row)
	if err != nil {
		return nil, fmt.Errorf("build executor: %w", err)
	}
	log, err := journal.NewLog(filepath.Join(s.journalRoot, row.TraderID))
	if err != nil {
		return nil, fmt.Errorf("open decision log: %w", err)
	}

	interval := time.Duration(row.ScanIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = 3 * time.Minute
	}

	cfg := TraderConfig{
		ID:                 row.TraderID,
		Name:               row.Name,
		DecisionInterval:   interval,
		PromptTemplate:     row.SystemPromptTemplate,
		CustomPrompt:       row.CustomPrompt,
		OverrideBasePrompt: row.OverrideBasePrompt,
		ExecGuards:         s.execGuards,
		RiskParams: RiskParameters{
			BTCETHLeverage:  row.BTCETHLeverage,
			AltcoinLeverage: row.AltcoinLeverage,
		},
	}
	trader := NewAutoTrader(row.TraderID, cfg, v, m, exec, s.pool, log)
	trader.SetObserver(s.observer)
	trader.SetPersistence(s.persistence)
	return trader, nil
}

// StartAll starts every registered trader that is currently IDLE.
func (s *Supervisor) StartAll(ctx context.Context) error {
	for _, trader := range s.List() {
		if trader.State() != StateIdle {
			continue
		}
		if err := trader.Run(ctx); err != nil {
			logx.WithContext(ctx).Errorf("supervisor: start trader %s failed: %v", trader.ID(), err)
		}
	}
	return nil
}

// StopAll stops every registered trader, each with its own stopDeadline
// grace period before a forceful cancel (§4.H). Traders stop concurrently;
// StopAll waits for all of them.
func (s *Supervisor) StopAll(ctx context.Context) error {
	traders := s.List()
	var wg sync.WaitGroup
	errs := make([]error, len(traders))
	for i, trader := range traders {
		wg.Add(1)
		go func(i int, tr *AutoTrader) {
			defer wg.Done()
			errs[i] = tr.Stop(ctx)
		}(i, trader)
	}
	wg.Wait()

	var combined []string
	for i, err := range errs {
		if err != nil {
			combined = append(combined, fmt.Sprintf("%s: %v", traders[i].ID(), err))
		}
	}
	if len(combined) > 0 {
		return fmt.Errorf("supervisor: stop errors: %s", strings.Join(combined, "; "))
	}
	return nil
}

// Get returns the registered trader by id.
func (s *Supervisor) Get(traderID string) (*AutoTrader, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.traders[traderID]
	return t, ok
}

// List returns every registered trader in an unspecified order.
func (s *Supervisor) List() []*AutoTrader {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*AutoTrader, 0, len(s.traders))
	for _, t := range s.traders {
		out = append(out, t)
	}
	return out
}

// Status returns the lifecycle state of one registered trader.
func (s *Supervisor) Status(traderID string) (State, bool) {
	t, ok := s.Get(traderID)
	if !ok {
		return "", false
	}
	return t.State(), true
}

// StatusAll returns the lifecycle state of every registered trader.
func (s *Supervisor) StatusAll() map[string]State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]State, len(s.traders))
	for id, t := range s.traders {
		out[id] = t.State()
	}
	return out
}

// buildCloid derives a deterministic client order id for one (trader,
// symbol, action, quantity) tuple within a one-minute bucket: resubmitting
// the same decision inside the same minute (e.g. after a transient retry)
// produces the same id, so a venue with idempotent-cloid submission will not
// double-fill it. It is not passed to pkg/venue today (the Venue interface
// has no cloid parameter) but is used to correlate execution-log entries and
// is kept as the building block for a future idempotent-submission venue.
func buildCloid(traderID, symbol, action string, qty float64, t time.Time) string {
	bucket := t.UTC().Truncate(time.Minute).Unix()
	key := strings.ToLower(traderID) + "|" + strings.ToLower(symbol) + "|" + strings.ToLower(action) + "|" +
		strconv.FormatFloat(qty, 'f', 8, 64) + "|" + strconv.FormatInt(bucket, 10)
	sum := sha256.Sum256([]byte(key))
	return "0x" + hex.EncodeToString(sum[:16])
}
