package executor

import "testing"

func TestParseFullDecisionResponse_Basic(t *testing.T) {
	raw := `Reasoning: BTC looks strong here, taking a long.
[{"symbol":"BTCUSDT","action":"open_long","leverage":10,"position_size_usd":5000,"stop_loss":100,"take_profit":115,"confidence":0.8,"risk_usd":50,"reasoning":"uptrend"}]`

	full, err := parseFullDecisionResponse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if full.CoTTrace == "" {
		t.Fatal("expected non-empty reasoning trace")
	}
	if len(full.Decisions) != 1 {
		t.Fatalf("expected 1 decision, got %d", len(full.Decisions))
	}
	d := full.Decisions[0]
	if d.Symbol != "BTCUSDT" || d.Action != ActionOpenLong {
		t.Fatalf("unexpected decision: %+v", d)
	}
}

func TestParseFullDecisionResponse_CurlyQuotes(t *testing.T) {
	raw := "Reasoning.\n[{“symbol”: “ETHUSDT”, “action”: “hold”}]"
	full, err := parseFullDecisionResponse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(full.Decisions) != 1 || full.Decisions[0].Symbol != "ETHUSDT" {
		t.Fatalf("unexpected decisions: %+v", full.Decisions)
	}
}

func TestParseFullDecisionResponse_BracketInsideDecisionString(t *testing.T) {
	// A bracket inside a quoted string value must not confuse the balanced-block scan.
	raw := `Reasoning, no stray brackets here.
[{"symbol":"BTCUSDT","action":"hold","reasoning":"range-bound [consolidating]"}]`
	full, err := parseFullDecisionResponse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(full.Decisions) != 1 {
		t.Fatalf("expected 1 decision, got %d", len(full.Decisions))
	}
}

func TestParseFullDecisionResponse_NoArray_Errors(t *testing.T) {
	_, err := parseFullDecisionResponse("just reasoning, no array here")
	if err != ErrUnbalancedOutput {
		t.Fatalf("expected ErrUnbalancedOutput, got %v", err)
	}
}

func TestParseFullDecisionResponse_UnbalancedArray_Errors(t *testing.T) {
	_, err := parseFullDecisionResponse("reasoning\n[{\"symbol\": \"BTCUSDT\"")
	if err != ErrUnbalancedOutput {
		t.Fatalf("expected ErrUnbalancedOutput, got %v", err)
	}
}
