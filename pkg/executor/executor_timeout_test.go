package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type slowCaller struct{}

func (s *slowCaller) DecisionCall(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestExecutor_TimeoutHonored(t *testing.T) {
	cfg := testConfig()
	cfg.DecisionTimeoutRaw = "20ms"
	err := cfg.parseDurations()
	assert.NoError(t, err, "parseDurations should not error")

	exec, err := NewExecutor(cfg, &slowCaller{}, testTemplateDir(), "")
	assert.NoError(t, err, "NewExecutor should not error")
	assert.NotNil(t, exec, "executor should not be nil")

	callCtx, cancel := context.WithTimeout(context.Background(), cfg.DecisionTimeout)
	defer cancel()

	start := time.Now()
	ctx := &Context{Now: testTime(), Account: AccountInfo{TotalEquity: 1000}, BTCETHLeverage: 20, AltcoinLeverage: 10}
	_, err = exec.GetFullDecision(callCtx, ctx, TraderPromptOptions{})
	assert.Error(t, err, "GetFullDecision should return timeout error")
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond, "timeout should be enforced with sufficient delay")
}
