package venue

import (
	"strings"
	"testing"
)

func TestLoadRegistryConfigFromReader(t *testing.T) {
	yaml := `
default: paper
venues:
  paper:
    exchange_id: sim
  live:
    exchange_id: hyperliquid
    private_key: deadbeef
    testnet: true
`
	cfg, err := LoadConfigFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadConfigFromReader error: %v", err)
	}
	if cfg.Default != "paper" {
		t.Fatalf("Default = %q, want paper", cfg.Default)
	}
	if len(cfg.Venues) != 2 {
		t.Fatalf("len(Venues) = %d, want 2", len(cfg.Venues))
	}

	venues, err := cfg.BuildVenues()
	if err != nil {
		t.Fatalf("BuildVenues error: %v", err)
	}
	if _, ok := venues["paper"]; !ok {
		t.Fatal("expected paper venue to be built")
	}
	if _, ok := venues["live"]; !ok {
		t.Fatal("expected live venue to be built")
	}
}

func TestRegistryConfigValidateRejectsMissingExchangeID(t *testing.T) {
	yaml := `
venues:
  paper: {}
`
	_, err := LoadConfigFromReader(strings.NewReader(yaml))
	if err == nil || !strings.Contains(err.Error(), "exchange_id") {
		t.Fatalf("expected exchange_id error, got %v", err)
	}
}

func TestRegistryConfigValidateRejectsUnknownDefault(t *testing.T) {
	yaml := `
default: missing
venues:
  paper:
    exchange_id: sim
`
	_, err := LoadConfigFromReader(strings.NewReader(yaml))
	if err == nil || !strings.Contains(err.Error(), "default venue") {
		t.Fatalf("expected default venue error, got %v", err)
	}
}

func TestRegistryConfigValidateRequiresPrivateKeyForHyperliquid(t *testing.T) {
	yaml := `
venues:
  live:
    exchange_id: hyperliquid
`
	_, err := LoadConfigFromReader(strings.NewReader(yaml))
	if err == nil || !strings.Contains(err.Error(), "private_key") {
		t.Fatalf("expected private_key error, got %v", err)
	}
}
