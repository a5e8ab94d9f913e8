package repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"nof0-api/pkg/manager"
)

// traderConfigRow is the column shape joined out of the traders, ai_models,
// and exchange_credentials tables (§6 Configuration database). The schema
// and admin CRUD for these tables are out of scope; this is only the read
// query manager.Supervisor.LoadForUser depends on.
type traderConfigRow struct {
	TraderID             string  `db:"trader_id"`
	UserID               string  `db:"user_id"`
	Name                 string  `db:"name"`
	AIModelID            string  `db:"ai_model_id"`
	ModelEnabled         bool    `db:"model_enabled"`
	ExchangeID           string  `db:"exchange_id"`
	ExchangeCredentialID string  `db:"exchange_credential_id"`
	ExchangeEnabled      bool    `db:"exchange_enabled"`
	InitialBalanceUSD    float64 `db:"initial_balance"`
	BTCETHLeverage       int     `db:"btc_eth_leverage"`
	AltcoinLeverage      int     `db:"altcoin_leverage"`
	ScanIntervalMinutes  int     `db:"scan_interval_minutes"`
	TradingSymbolsCSV    string  `db:"trading_symbols"`
	SystemPromptTemplate string  `db:"system_prompt_template"`
	CustomPrompt         string  `db:"custom_prompt"`
	OverrideBasePrompt   bool    `db:"override_base_prompt"`
	IsCrossMargin        bool    `db:"is_cross_margin"`
	UseCoinPool          bool    `db:"use_coin_pool"`
	UseOITop             bool    `db:"use_oi_top"`
}

// TraderConfigRepo loads trader configuration rows from Postgres. It
// implements manager.TraderConfigRepo structurally; pkg/manager never
// imports this package directly.
type TraderConfigRepo struct {
	conn sqlx.SqlConn
}

// NewTraderConfigRepo constructs a TraderConfigRepo over an existing
// go-zero SqlConn.
func NewTraderConfigRepo(conn sqlx.SqlConn) *TraderConfigRepo {
	return &TraderConfigRepo{conn: conn}
}

const tradersForUserQuery = `
SELECT
	t.trader_id,
	t.user_id,
	t.name,
	t.ai_model_id,
	m.enabled AS model_enabled,
	t.exchange_id,
	t.exchange_credential_id,
	c.enabled AS exchange_enabled,
	t.initial_balance,
	t.btc_eth_leverage,
	t.altcoin_leverage,
	t.scan_interval_minutes,
	t.trading_symbols,
	t.system_prompt_template,
	t.custom_prompt,
	t.override_base_prompt,
	t.is_cross_margin,
	t.use_coin_pool,
	t.use_oi_top
FROM traders t
JOIN ai_models m ON m.ai_model_id = t.ai_model_id
JOIN exchange_credentials c ON c.exchange_credential_id = t.exchange_credential_id
WHERE t.user_id = $1
ORDER BY t.trader_id
`

// TradersForUser satisfies manager.TraderConfigRepo.
func (r *TraderConfigRepo) TradersForUser(ctx context.Context, userID string) ([]manager.TraderRow, error) {
	var rows []traderConfigRow
	if err := r.conn.QueryRowsCtx(ctx, &rows, tradersForUserQuery, userID); err != nil {
		return nil, fmt.Errorf("trader config repo: query traders for user %s: %w", userID, err)
	}

	out := make([]manager.TraderRow, 0, len(rows))
	for _, row := range rows {
		symbols := splitSymbols(row.TradingSymbolsCSV)
		if len(symbols) == 0 {
			logx.WithContext(ctx).Infof("trader config repo: trader %s has no trading_symbols configured", row.TraderID)
		}
		out = append(out, manager.TraderRow{
			TraderID:             row.TraderID,
			UserID:               row.UserID,
			Name:                 row.Name,
			AIModelID:            row.AIModelID,
			ModelEnabled:         row.ModelEnabled,
			ExchangeID:           row.ExchangeID,
			ExchangeCredentialID: row.ExchangeCredentialID,
			ExchangeEnabled:      row.ExchangeEnabled,
			InitialBalanceUSD:    row.InitialBalanceUSD,
			BTCETHLeverage:       row.BTCETHLeverage,
			AltcoinLeverage:      row.AltcoinLeverage,
			ScanIntervalMinutes:  row.ScanIntervalMinutes,
			TradingSymbols:       symbols,
			SystemPromptTemplate: row.SystemPromptTemplate,
			CustomPrompt:         row.CustomPrompt,
			OverrideBasePrompt:   row.OverrideBasePrompt,
			IsCrossMargin:        row.IsCrossMargin,
			UseCoinPool:          row.UseCoinPool,
			UseOITop:             row.UseOITop,
		})
	}
	return out, nil
}

func splitSymbols(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(strings.ToUpper(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
