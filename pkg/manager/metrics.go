package manager

import "time"

// CycleObserver receives per-cycle telemetry from every AutoTrader a
// Supervisor drives. It exists so pkg/manager can emit metrics without
// importing a concrete metrics backend: internal/telemetry's prometheus
// registry implements this interface and is wired in at the process edge
// (cmd/llm), the same "accept an interface, let the binary supply the
// concrete collector" shape the teacher uses for PersistenceService.
type CycleObserver interface {
	// ObserveCycle records one completed decision cycle's wall-clock duration.
	ObserveCycle(traderID string, cycle int, duration time.Duration)
	// ObserveDecision records one executed decision's outcome.
	ObserveDecision(traderID, action, outcome string)
}

type noopCycleObserver struct{}

func (noopCycleObserver) ObserveCycle(string, int, time.Duration) {}
func (noopCycleObserver) ObserveDecision(string, string, string)  {}
