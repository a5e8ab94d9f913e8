package venue

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// RegistryConfig describes one or more named Venue instances to construct at
// startup, mirroring the teacher's exchange.Config provider-map pattern
// (pkg/exchange/config.go) one level up from the factory in factory.go.
type RegistryConfig struct {
	Default string             `yaml:"default"`
	Venues  map[string]*Config `yaml:"venues"`
}

// LoadConfig reads a RegistryConfig from disk.
func LoadConfig(path string) (*RegistryConfig, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open venue config: %w", err)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// LoadConfigFromReader constructs a RegistryConfig from an io.Reader.
func LoadConfigFromReader(r io.Reader) (*RegistryConfig, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read venue config: %w", err)
	}
	var cfg RegistryConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal venue config: %w", err)
	}
	cfg.expandEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *RegistryConfig) expandEnv() {
	if c.Venues == nil {
		c.Venues = make(map[string]*Config)
	}
	for name, v := range c.Venues {
		if v == nil {
			v = &Config{}
			c.Venues[name] = v
		}
		v.ExchangeID = strings.TrimSpace(os.ExpandEnv(v.ExchangeID))
		v.PrivateKey = strings.TrimSpace(os.ExpandEnv(v.PrivateKey))
		v.VaultAddress = strings.TrimSpace(os.ExpandEnv(v.VaultAddress))
		v.MainAddress = strings.TrimSpace(os.ExpandEnv(v.MainAddress))
	}
}

// Validate ensures every named venue has an exchange_id and the default, if
// set, refers to a defined entry.
func (c *RegistryConfig) Validate() error {
	if len(c.Venues) == 0 {
		return fmt.Errorf("venue config: venues cannot be empty")
	}
	if c.Default != "" {
		if _, ok := c.Venues[c.Default]; !ok {
			return fmt.Errorf("venue config: default venue %q not defined", c.Default)
		}
	}
	for name, v := range c.Venues {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("venue config: venue name cannot be empty")
		}
		if strings.TrimSpace(v.ExchangeID) == "" {
			return fmt.Errorf("venue config: %s requires exchange_id", name)
		}
		if v.ExchangeID == "hyperliquid" && v.PrivateKey == "" {
			return fmt.Errorf("venue config: %s requires private_key for exchange_id hyperliquid", name)
		}
	}
	return nil
}

// BuildVenues constructs one Venue per named entry via the factory registry.
func (c *RegistryConfig) BuildVenues() (map[string]Venue, error) {
	out := make(map[string]Venue, len(c.Venues))
	for name, v := range c.Venues {
		venue, err := New(*v)
		if err != nil {
			return nil, fmt.Errorf("venue %s: %w", name, err)
		}
		out[name] = venue
	}
	return out, nil
}
