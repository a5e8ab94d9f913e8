package venue

import (
	"fmt"
	"sync"
	"time"

	"nof0-api/pkg/exchange/hyperliquid"
	"nof0-api/pkg/exchange/sim"
)

// Config describes the credentials needed to construct a Venue for one
// exchange_id, mirroring the configuration-database field table in §6.
type Config struct {
	ExchangeID   string        `yaml:"exchange_id"`
	PrivateKey   string        `yaml:"private_key"`
	Testnet      bool          `yaml:"testnet"`
	VaultAddress string        `yaml:"vault_address,omitempty"`
	MainAddress  string        `yaml:"main_address,omitempty"`
	Timeout      time.Duration `yaml:"-"`
}

// Builder constructs a Venue from a Config. Concrete adapters register one via
// RegisterBuilder in an init() func, the same factory-by-exchange_id pattern the
// teacher uses for its lower-level exchange.Provider registry.
type Builder func(cfg Config) (Venue, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Builder{}
)

// RegisterBuilder registers a Venue constructor under exchangeID. Re-registering
// the same id overwrites the previous builder (used by tests to inject fakes).
func RegisterBuilder(exchangeID string, builder Builder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[exchangeID] = builder
}

// New constructs a Venue for the given exchange_id using its registered builder.
func New(cfg Config) (Venue, error) {
	registryMu.RLock()
	builder, ok := registry[cfg.ExchangeID]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("venue: unknown exchange_id %q", cfg.ExchangeID)
	}
	return builder(cfg)
}

func init() {
	RegisterBuilder("hyperliquid", func(cfg Config) (Venue, error) {
		opts := []hyperliquid.ClientOption{}
		provider, err := hyperliquid.NewProvider(cfg.PrivateKey, cfg.Testnet, opts...)
		if err != nil {
			return nil, fmt.Errorf("venue: construct hyperliquid provider: %w", err)
		}
		return NewHyperliquidAdapter(provider), nil
	})
	RegisterBuilder("sim", func(cfg Config) (Venue, error) {
		return NewSimAdapter(sim.New()), nil
	})
}
