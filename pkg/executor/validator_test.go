package executor

import "testing"

func TestValidateDecision_OpenLong_OK(t *testing.T) {
	d := Decision{
		Symbol:          "BTCUSDT",
		Action:          ActionOpenLong,
		Leverage:        10,
		PositionSizeUSD: 5000,
		StopLoss:        100,
		TakeProfit:      115,
	}
	ok, reason := ValidateDecision(d, 1000, 20, 10)
	if !ok {
		t.Fatalf("expected ok, got reason: %s", reason)
	}
}

func TestValidateDecision_RiskRewardBelowMinimum_Fails(t *testing.T) {
	d := Decision{
		Symbol:          "BTCUSDT",
		Action:          ActionOpenLong,
		Leverage:        10,
		PositionSizeUSD: 5000,
		StopLoss:        100,
		TakeProfit:      110, // RR ~2.33 < 3.0
	}
	ok, _ := ValidateDecision(d, 1000, 20, 10)
	if ok {
		t.Fatal("expected risk-reward failure")
	}
}

func TestValidateDecision_AltcoinLeverageCap_Fails(t *testing.T) {
	d := Decision{
		Symbol:          "PEPEUSDT",
		Action:          ActionOpenLong,
		Leverage:        50, // exceeds altcoin cap
		PositionSizeUSD: 100,
		StopLoss:        0.9,
		TakeProfit:      1.5,
	}
	ok, _ := ValidateDecision(d, 1000, 20, 10)
	if ok {
		t.Fatal("expected leverage cap failure")
	}
}

func TestValidateDecision_MajorCoinSizeBand(t *testing.T) {
	// equity=1000, BTCUSDT: max_position_value = 10*1000 = 10000, tolerance 1.01 -> 10100
	d := Decision{
		Symbol:          "BTCUSDT",
		Action:          ActionOpenLong,
		Leverage:        10,
		PositionSizeUSD: 10100,
		StopLoss:        100,
		TakeProfit:      115,
	}
	ok, reason := ValidateDecision(d, 1000, 20, 10)
	if !ok {
		t.Fatalf("expected ok at tolerance boundary, got: %s", reason)
	}

	d.PositionSizeUSD = 10110
	ok, _ = ValidateDecision(d, 1000, 20, 10)
	if ok {
		t.Fatal("expected size cap failure beyond tolerance")
	}
}

func TestValidateDecision_OpenShort_StopTakeOrdering(t *testing.T) {
	d := Decision{
		Symbol:          "ETHUSDT",
		Action:          ActionOpenShort,
		Leverage:        5,
		PositionSizeUSD: 100,
		StopLoss:        110,
		TakeProfit:      70,
	}
	ok, reason := ValidateDecision(d, 1000, 20, 10)
	if !ok {
		t.Fatalf("expected ok, got: %s", reason)
	}

	// Inverted ordering for a short must fail.
	d.StopLoss, d.TakeProfit = 70, 110
	ok, _ = ValidateDecision(d, 1000, 20, 10)
	if ok {
		t.Fatal("expected stop/take ordering failure for open_short")
	}
}

func TestValidateDecision_CloseAndHoldAlwaysPass(t *testing.T) {
	for _, action := range []Action{ActionCloseLong, ActionCloseShort, ActionHold, ActionWait} {
		d := Decision{Symbol: "BTCUSDT", Action: action}
		ok, reason := ValidateDecision(d, 1000, 20, 10)
		if !ok {
			t.Fatalf("expected %s to pass validation unconditionally, got: %s", action, reason)
		}
	}
}

func TestValidateDecision_UnknownAction_Fails(t *testing.T) {
	d := Decision{Symbol: "BTCUSDT", Action: "teleport"}
	ok, _ := ValidateDecision(d, 1000, 20, 10)
	if ok {
		t.Fatal("expected unknown action to fail")
	}
}

func TestValidateDecisions_SplitsValidAndRejected(t *testing.T) {
	good := Decision{Symbol: "BTCUSDT", Action: ActionOpenLong, Leverage: 10, PositionSizeUSD: 5000, StopLoss: 100, TakeProfit: 115}
	bad := Decision{Symbol: "BTCUSDT", Action: ActionOpenLong, Leverage: 10, PositionSizeUSD: 5000, StopLoss: 100, TakeProfit: 110}

	valid, rejected := ValidateDecisions([]Decision{good, bad}, 1000, 20, 10)
	if len(valid) != 1 || len(rejected) != 1 {
		t.Fatalf("expected 1 valid, 1 rejected; got %d valid, %d rejected", len(valid), len(rejected))
	}
	if rejected[0].Reason == "" {
		t.Fatal("expected a non-empty rejection reason")
	}
}
