package executor

import (
	"path/filepath"
	"strings"
	"testing"
)

func testTemplateDir() string {
	return filepath.Join("..", "..", "etc", "prompts", "executor")
}

func TestPromptRendererDefaultTemplate(t *testing.T) {
	cfg := &Config{
		BTCETHLeverage:         20,
		AltcoinLeverage:        8,
		MinConfidence:          75,
		MinRiskReward:          3.2,
		MaxPositions:           3,
		DecisionIntervalRaw:    "3m",
		DecisionTimeoutRaw:     "60s",
		MaxConcurrentDecisions: 1,
	}
	renderer, err := NewPromptRenderer(cfg, testTemplateDir())
	if err != nil {
		t.Fatalf("NewPromptRenderer error: %v", err)
	}

	ctx := &Context{
		Account:         AccountInfo{TotalEquity: 12000},
		BTCETHLeverage:  20,
		AltcoinLeverage: 8,
	}

	out, err := renderer.RenderSystemPrompt(ctx, TraderPromptOptions{})
	if err != nil {
		t.Fatalf("RenderSystemPrompt error: %v", err)
	}

	expectations := []string{
		"autonomous crypto perpetual-futures trader",
		"Hard constraints",
		"at least 1:3.2",
		"At most 3 concurrent",
		"JSON array of decision objects",
	}
	for _, substr := range expectations {
		if !strings.Contains(out, substr) {
			t.Fatalf("rendered prompt missing substring %q\n--- prompt ---\n%s", substr, out)
		}
	}
}

func TestPromptRendererNamedTemplateDegradesToDefault(t *testing.T) {
	cfg := &Config{BTCETHLeverage: 20, AltcoinLeverage: 8, MinRiskReward: 3.0, MaxPositions: 3}
	renderer, err := NewPromptRenderer(cfg, testTemplateDir())
	if err != nil {
		t.Fatalf("NewPromptRenderer error: %v", err)
	}
	ctx := &Context{Account: AccountInfo{TotalEquity: 1000}, BTCETHLeverage: 20, AltcoinLeverage: 8}

	out, err := renderer.RenderSystemPrompt(ctx, TraderPromptOptions{TemplateName: "does-not-exist"})
	if err != nil {
		t.Fatalf("RenderSystemPrompt error: %v", err)
	}
	if !strings.Contains(out, "autonomous crypto perpetual-futures trader") {
		t.Fatalf("expected degrade to default template, got:\n%s", out)
	}
}

func TestPromptRendererNamedTemplateAggressive(t *testing.T) {
	cfg := &Config{BTCETHLeverage: 20, AltcoinLeverage: 8, MinRiskReward: 3.0, MaxPositions: 3}
	renderer, err := NewPromptRenderer(cfg, testTemplateDir())
	if err != nil {
		t.Fatalf("NewPromptRenderer error: %v", err)
	}
	ctx := &Context{Account: AccountInfo{TotalEquity: 1000}, BTCETHLeverage: 20, AltcoinLeverage: 8}

	out, err := renderer.RenderSystemPrompt(ctx, TraderPromptOptions{TemplateName: "aggressive"})
	if err != nil {
		t.Fatalf("RenderSystemPrompt error: %v", err)
	}
	if !strings.Contains(out, "aggressive, momentum-following") {
		t.Fatalf("expected aggressive template content, got:\n%s", out)
	}
}

func TestPromptRendererCustomAddendum(t *testing.T) {
	cfg := &Config{BTCETHLeverage: 20, AltcoinLeverage: 8, MinRiskReward: 3.0, MaxPositions: 3}
	renderer, err := NewPromptRenderer(cfg, testTemplateDir())
	if err != nil {
		t.Fatalf("NewPromptRenderer error: %v", err)
	}
	ctx := &Context{Account: AccountInfo{TotalEquity: 1000}, BTCETHLeverage: 20, AltcoinLeverage: 8}

	out, err := renderer.RenderSystemPrompt(ctx, TraderPromptOptions{CustomAddendum: "Only trade BTCUSDT."})
	if err != nil {
		t.Fatalf("RenderSystemPrompt error: %v", err)
	}
	if !strings.Contains(out, "Personalized strategy") || !strings.Contains(out, "Only trade BTCUSDT.") {
		t.Fatalf("expected custom addendum appended, got:\n%s", out)
	}
}

func TestPromptRendererOverrideBaseReplacesEntirely(t *testing.T) {
	cfg := &Config{BTCETHLeverage: 20, AltcoinLeverage: 8, MinRiskReward: 3.0, MaxPositions: 3}
	renderer, err := NewPromptRenderer(cfg, testTemplateDir())
	if err != nil {
		t.Fatalf("NewPromptRenderer error: %v", err)
	}
	ctx := &Context{Account: AccountInfo{TotalEquity: 1000}, BTCETHLeverage: 20, AltcoinLeverage: 8}

	out, err := renderer.RenderSystemPrompt(ctx, TraderPromptOptions{CustomAddendum: "Only the custom text.", OverrideBase: true})
	if err != nil {
		t.Fatalf("RenderSystemPrompt error: %v", err)
	}
	if out != "Only the custom text." {
		t.Fatalf("expected override_base to replace prompt entirely, got:\n%s", out)
	}
}

func TestPromptRendererNilConfig(t *testing.T) {
	if _, err := NewPromptRenderer(nil, ""); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestPromptRendererMissingDir(t *testing.T) {
	cfg := &Config{BTCETHLeverage: 20, AltcoinLeverage: 8, MinRiskReward: 3.0, MaxPositions: 3}
	if _, err := NewPromptRenderer(cfg, filepath.Join("does", "not", "exist")); err == nil {
		t.Fatal("expected error for missing template directory")
	}
}
