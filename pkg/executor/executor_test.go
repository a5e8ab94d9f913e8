package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeCaller returns a fixed reasoning+JSON-array response, mimicking the
// exact shape a DecisionCall produces (§4.F).
type fakeCaller struct {
	response string
	err      error
}

func (f *fakeCaller) DecisionCall(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func testConfig() *Config {
	return &Config{
		BTCETHLeverage:         20,
		AltcoinLeverage:        10,
		MinConfidence:          75,
		MinRiskReward:          3.0,
		MaxPositions:           4,
		DecisionIntervalRaw:    "3m",
		DecisionTimeoutRaw:     "60s",
		MaxConcurrentDecisions: 1,
	}
}

func TestExecutor_GetFullDecision(t *testing.T) {
	cfg := testConfig()
	caller := &fakeCaller{response: `Clear uptrend on BTCUSDT, taking a long.
[
  {
    "symbol": "BTCUSDT",
    "action": "open_long",
    "leverage": 10,
    "position_size_usd": 5000,
    "stop_loss": 100,
    "take_profit": 115,
    "confidence": 0.9,
    "risk_usd": 50,
    "reasoning": "clear uptrend"
  }
]`}

	exec, err := NewExecutor(cfg, caller, testTemplateDir(), "")
	assert.NoError(t, err, "NewExecutor should not error")
	assert.NotNil(t, exec, "executor should not be nil")

	ctx := &Context{
		Now:             testTime(),
		Account:         AccountInfo{TotalEquity: 1000},
		BTCETHLeverage:  20,
		AltcoinLeverage: 10,
	}
	out, err := exec.GetFullDecision(context.Background(), ctx, TraderPromptOptions{})
	assert.NoError(t, err, "GetFullDecision should not error")
	assert.NotNil(t, out, "decision output should not be nil")
	assert.Len(t, out.Decisions, 1, "should have exactly one decision")

	d := out.Decisions[0]
	assert.Equal(t, ActionOpenLong, d.Action)
	assert.Equal(t, "BTCUSDT", d.Symbol)
	assert.NotEmpty(t, out.UserPrompt, "UserPrompt should be populated")
	assert.Contains(t, out.CoTTrace, "Clear uptrend")
}

func TestExecutor_GetFullDecision_RejectsInvalid(t *testing.T) {
	cfg := testConfig()
	caller := &fakeCaller{response: `Weak setup.
[
  {
    "symbol": "BTCUSDT",
    "action": "open_long",
    "leverage": 10,
    "position_size_usd": 5000,
    "stop_loss": 100,
    "take_profit": 105,
    "confidence": 0.4,
    "reasoning": "marginal"
  }
]`}
	exec, err := NewExecutor(cfg, caller, testTemplateDir(), "")
	assert.NoError(t, err)

	ctx := &Context{Now: testTime(), Account: AccountInfo{TotalEquity: 1000}, BTCETHLeverage: 20, AltcoinLeverage: 10}
	out, err := exec.GetFullDecision(context.Background(), ctx, TraderPromptOptions{})
	assert.NoError(t, err)
	assert.Empty(t, out.Decisions, "low risk-reward decision should be rejected by the validator")
}

func testTime() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
