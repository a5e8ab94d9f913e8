package executor

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"nof0-api/pkg/llm"
	"nof0-api/pkg/market"
)

// Executor defines the decision engine interface.
type Executor interface {
	// GetFullDecision builds prompts from input context, calls the LLM and
	// returns the parsed-and-validated decision bundle.
	GetFullDecision(ctx context.Context, input *Context, opts TraderPromptOptions) (*FullDecision, error)
	// UpdatePerformance refreshes the cached performance view used in prompts.
	UpdatePerformance(view *PerformanceView)
	// GetConfig exposes the immutable executor configuration.
	GetConfig() *Config
}

// BasicExecutor implements the DecisionEngine (§4.F): it assembles prompts,
// calls the LLM once per cycle, and parses+validates the resulting decisions.
type BasicExecutor struct {
	cfg           *Config
	caller        llm.Caller
	renderer      *PromptRenderer
	performance   *PerformanceView
	modelAlias    string
	failures      map[string]int
	conversations ConversationRecorder
}

// NewExecutor constructs a BasicExecutor. templateDir is a directory of named
// system-prompt templates (§4.F); it must contain a `default.txt`.
func NewExecutor(cfg *Config, caller llm.Caller, templateDir string, modelAlias string, opts ...ExecutorOption) (*BasicExecutor, error) {
	if cfg == nil {
		return nil, errors.New("executor: config is required")
	}
	if caller == nil {
		return nil, errors.New("executor: llm caller is required")
	}
	renderer, err := NewPromptRenderer(cfg, templateDir)
	if err != nil {
		return nil, err
	}
	exec := &BasicExecutor{
		cfg:           cfg,
		caller:        caller,
		renderer:      renderer,
		modelAlias:    strings.TrimSpace(modelAlias),
		failures:      make(map[string]int),
		conversations: noopConversationRecorder{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(exec)
		}
	}
	if exec.conversations == nil {
		exec.conversations = noopConversationRecorder{}
	}
	return exec, nil
}

// GetConfig returns the underlying configuration.
func (e *BasicExecutor) GetConfig() *Config { return e.cfg }

// UpdatePerformance stores the latest performance snapshot.
func (e *BasicExecutor) UpdatePerformance(view *PerformanceView) { e.performance = view }

// GetFullDecision implements the §4.F decide() flow: build prompts, call the
// LLM once, parse the reasoning+array response, and validate each decision.
func (e *BasicExecutor) GetFullDecision(ctx context.Context, input *Context, opts TraderPromptOptions) (*FullDecision, error) {
	if e == nil || e.renderer == nil {
		return nil, errors.New("executor: not initialised")
	}
	if input == nil {
		return nil, errors.New("executor: input context is required")
	}
	if input.Performance == nil {
		input.Performance = e.performance
	}

	e.logInputWarnings(input)

	systemPrompt, err := e.renderer.RenderSystemPrompt(input, opts)
	if err != nil {
		return nil, err
	}
	userPrompt := BuildUserPrompt(input)

	promptDigest := llm.DigestString(systemPrompt + userPrompt)
	logx.Infof("executor: prompt rendered digest=%s candidates=%d positions=%d runtime_minutes=%.1f model=%s",
		promptDigest, len(input.CandidateCoins), len(input.Positions), input.RuntimeMinutes, e.modelAlias)

	callStart := time.Now()
	raw, err := e.caller.DecisionCall(ctx, systemPrompt, userPrompt)
	if err != nil {
		logx.WithContext(ctx).Errorf("executor: decision call failed digest=%s duration=%s error=%v", promptDigest, time.Since(callStart), err)
		return &FullDecision{SystemPrompt: systemPrompt, UserPrompt: userPrompt, Timestamp: time.Now()}, err
	}
	logx.WithContext(ctx).Infof("executor: decision call completed digest=%s duration=%s", promptDigest, time.Since(callStart))
	e.recordConversation(ctx, systemPrompt+"\n\n"+userPrompt, raw)

	full, err := parseFullDecisionResponse(sanitizeResponse(raw))
	if err != nil {
		logx.WithContext(ctx).Errorf("executor: parse failed digest=%s error=%v", promptDigest, err)
		full.SystemPrompt = systemPrompt
		full.UserPrompt = userPrompt
		full.Timestamp = time.Now()
		return full, err
	}
	full.SystemPrompt = systemPrompt
	full.UserPrompt = userPrompt
	full.Timestamp = time.Now()

	valid, rejected := ValidateDecisions(full.Decisions, input.Account.TotalEquity, input.BTCETHLeverage, input.AltcoinLeverage)
	for _, r := range rejected {
		e.trackFailure(r.Decision.Symbol, errors.New(r.Reason))
	}
	for _, d := range valid {
		e.resetFailure(d.Symbol)
		logx.Infof("executor: decision validated digest=%s symbol=%s action=%s notional=%.2f",
			promptDigest, d.Symbol, d.Action, d.PositionSizeUSD)
	}
	full.Decisions = valid

	return full, nil
}

func (e *BasicExecutor) logInputWarnings(input *Context) {
	if input == nil {
		return
	}
	const (
		changeOneHourAnomalyPct  = 0.05
		changeFourHourAnomalyPct = 0.10
		fundingAnomalyThreshold  = 0.01
	)
	for sym, snap := range input.MarketDataMap {
		if snap == nil {
			continue
		}
		if math.Abs(snap.Change.OneHour) > changeOneHourAnomalyPct {
			logx.Slowf("executor: market change anomaly symbol=%s change_1h=%.4f change_4h=%.4f", sym, snap.Change.OneHour, snap.Change.FourHour)
		}
		if math.Abs(snap.Change.FourHour) > changeFourHourAnomalyPct {
			logx.Slowf("executor: market 4h change anomaly symbol=%s change_4h=%.4f", sym, snap.Change.FourHour)
		}
		if snap.Price.Last <= 0 {
			logx.Slowf("executor: non-positive price symbol=%s price=%f", sym, snap.Price.Last)
		}
		if snap.Funding != nil && math.Abs(snap.Funding.Rate) > fundingAnomalyThreshold {
			logx.Slowf("executor: funding anomaly symbol=%s funding=%.6f", sym, snap.Funding.Rate)
		}
		checkIndicators(sym, snap)
	}

	if input.Account.TotalEquity <= 0 {
		logx.Slowf("executor: account equity non-positive equity=%.2f", input.Account.TotalEquity)
	}
	symbolSeen := make(map[string]struct{}, len(input.Positions))
	for _, pos := range input.Positions {
		if _, exists := symbolSeen[pos.Symbol]; exists {
			logx.Slowf("executor: duplicate position detected symbol=%s", pos.Symbol)
		}
		symbolSeen[pos.Symbol] = struct{}{}
	}
	if len(input.CandidateCoins) == 0 && len(input.Positions) > 0 {
		logx.Slowf("executor: no candidates provided while %d positions open", len(input.Positions))
	}
}

func (e *BasicExecutor) recordConversation(ctx context.Context, prompt string, response string) {
	if e == nil || e.conversations == nil || e.cfg == nil || strings.TrimSpace(e.cfg.TraderID) == "" {
		return
	}
	rec := ConversationRecord{
		ModelID:   e.cfg.TraderID,
		Prompt:    prompt,
		Response:  strings.TrimSpace(response),
		ModelName: e.modelAlias,
		Timestamp: time.Now(),
	}
	if err := e.conversations.RecordConversation(ctx, rec); err != nil {
		logx.WithContext(ctx).Errorf("executor: record conversation failed trader=%s err=%v", e.cfg.TraderID, err)
	}
}

func checkIndicators(symbol string, snap *market.Snapshot) {
	if snap == nil {
		return
	}
	if len(snap.Indicators.EMA) == 0 && len(snap.Indicators.RSI) == 0 && snap.Indicators.MACD == 0 {
		logx.Slowf("executor: indicators missing for symbol=%s", symbol)
	}
	if snap.Indicators.RSI != nil {
		for key, value := range snap.Indicators.RSI {
			if value < 0 || value > 100 {
				logx.Slowf("executor: RSI anomaly symbol=%s interval=%s value=%.2f", symbol, key, value)
			}
		}
	}
}

func (e *BasicExecutor) trackFailure(symbol string, err error) {
	if e.failures == nil {
		e.failures = make(map[string]int)
	}
	key := normalizeFailureKey(symbol, err)
	if key == "" {
		return
	}
	e.failures[key]++
	count := e.failures[key]
	logx.Errorf("executor: decision validation failed key=%s symbol=%s error=%v count=%d", key, symbol, err, count)
	if count >= 3 {
		logx.Slowf("executor: repeated validation failures key=%s count=%d last_error=%v", key, count, err)
	}
}

func (e *BasicExecutor) resetFailure(symbol string) {
	if e.failures == nil {
		return
	}
	key := normalizeFailureKey(symbol, nil)
	if key == "" {
		return
	}
	delete(e.failures, key)
}

func normalizeFailureKey(symbol string, err error) string {
	key := strings.ToUpper(strings.TrimSpace(symbol))
	if key != "" {
		return key
	}
	if err == nil {
		return ""
	}
	msg := strings.TrimSpace(err.Error())
	if len(msg) > 64 {
		msg = msg[:64]
	}
	if msg == "" {
		return ""
	}
	return "ERR:" + msg
}
