package config

import (
	"nof0-api/pkg/executor"
	"nof0-api/pkg/manager"
	"nof0-api/pkg/market"
)

// MustLoadExecutor loads the default executor configuration and panics on error.
func MustLoadExecutor() *executor.Config {
	return executor.MustLoad()
}

// MustLoadManager loads the default manager configuration and panics on error.
func MustLoadManager() *manager.Config {
	return manager.MustLoad()
}

// MustLoadMarket loads the default market configuration and panics on error.
func MustLoadMarket() *market.Config {
	return market.MustLoad()
}
