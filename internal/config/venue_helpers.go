package config

import (
	"fmt"
	"path/filepath"

	"nof0-api/pkg/venue"
)

// MustLoadVenues loads etc/venue.yaml from the project root and panics on
// error. It isolates venue config to avoid requiring other sections (LLM,
// Executor, etc.) when callers only need venue instances.
func MustLoadVenues() *venue.RegistryConfig {
	root := MustProjectRoot()
	path := filepath.Join(root, "etc", "venue.yaml")
	cfg, err := venue.LoadConfig(path)
	if err != nil {
		panic(fmt.Errorf("load venue config %s: %w", path, err))
	}
	return cfg
}

// MustBuildVenues loads venue config from the default path and constructs
// one Venue per named entry; returns the map and the configured default name.
func MustBuildVenues() (map[string]venue.Venue, string) {
	cfg := MustLoadVenues()
	venues, err := cfg.BuildVenues()
	if err != nil {
		panic(err)
	}
	return venues, cfg.Default
}
