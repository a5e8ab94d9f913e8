package executor

import (
	"fmt"
	"strings"

	"nof0-api/pkg/prompt"
)

// TraderPromptOptions customises the system prompt for one trader (§4.F).
type TraderPromptOptions struct {
	TemplateName   string // looked up in the library; degrades to "default"
	CustomAddendum string // appended as a "personalized strategy" section
	OverrideBase   bool   // when true, CustomAddendum replaces the system prompt entirely
}

// PromptRenderer renders the executor's system prompt from a named template
// library plus the runtime hard-constraints and output-format layers.
type PromptRenderer struct {
	cfg *Config
	lib *prompt.Library
}

// NewPromptRenderer constructs a renderer backed by a directory of named
// system-prompt templates (a `default.txt` is required).
func NewPromptRenderer(cfg *Config, templateDir string) (*PromptRenderer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("executor prompt renderer requires config")
	}
	lib, err := prompt.NewLibrary(templateDir, nil)
	if err != nil {
		return nil, err
	}
	return &PromptRenderer{cfg: cfg, lib: lib}, nil
}

// RenderSystemPrompt composes the three-layer system prompt described in
// §4.F: a named base template, a hard-constraints block derived from the
// runtime numbers, and an output-format block. A trader-supplied custom
// addendum is appended as a personalized-strategy section unless
// opts.OverrideBase replaces the base entirely.
func (r *PromptRenderer) RenderSystemPrompt(ctx *Context, opts TraderPromptOptions) (string, error) {
	if r == nil || r.lib == nil {
		return "", fmt.Errorf("executor prompt renderer not initialised")
	}
	if ctx == nil {
		return "", fmt.Errorf("executor: context is required to render a prompt")
	}

	custom := strings.TrimSpace(opts.CustomAddendum)
	if opts.OverrideBase && custom != "" {
		return custom, nil
	}

	base, _, err := r.lib.Render(opts.TemplateName, struct {
		Config  *Config
		Context *Context
	}{Config: r.cfg, Context: ctx})
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(strings.TrimRight(base, "\n"))
	sb.WriteString("\n\n")
	sb.WriteString(hardConstraintsBlock(r.cfg, ctx))
	sb.WriteString("\n\n")
	sb.WriteString(outputFormatBlock)
	if custom != "" {
		sb.WriteString("\n\n## Personalized strategy\n\n")
		sb.WriteString(custom)
	}
	return sb.String(), nil
}

// Digest returns a digest of the rendered base template for observability.
func (r *PromptRenderer) Digest(name string) string {
	if r == nil || r.lib == nil {
		return ""
	}
	tpl, _ := r.lib.Get(name)
	if tpl == nil {
		return ""
	}
	return tpl.Digest()
}

func hardConstraintsBlock(cfg *Config, ctx *Context) string {
	equity := ctx.Account.TotalEquity
	var sb strings.Builder
	sb.WriteString("## Hard constraints\n\n")
	fmt.Fprintf(&sb, "- Risk-reward ratio must be at least 1:%.1f.\n", cfg.MinRiskReward)
	fmt.Fprintf(&sb, "- At most %d concurrent open positions.\n", cfg.MaxPositions)
	fmt.Fprintf(&sb, "- BTCUSDT/ETHUSDT: leverage <= %dx, position size <= %.2f USD (10x equity).\n",
		ctx.BTCETHLeverage, 10*equity)
	fmt.Fprintf(&sb, "- Any other symbol: leverage <= %dx, position size <= %.2f USD (1.5x equity).\n",
		ctx.AltcoinLeverage, 1.5*equity)
	sb.WriteString("- Total margin use across all positions must stay at or below 90% of equity.\n")
	return sb.String()
}

const outputFormatBlock = `## Output format

Write your reasoning in free-form prose first. End your response with a single
JSON array of decision objects (and nothing after it), each shaped as:

[
  {
    "symbol": "BTCUSDT",
    "action": "open_long|open_short|close_long|close_short|hold|wait",
    "leverage": 10,
    "position_size_usd": 5000,
    "stop_loss": 100.0,
    "take_profit": 115.0,
    "confidence": 0.8,
    "risk_usd": 50.0,
    "reasoning": "one-line rationale for this decision"
  }
]`
