package telemetry

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestRegistryImplementsCycleObserver(t *testing.T) {
	r := NewRegistry()
	r.ObserveCycle("trader-1", 1, 2*time.Second)
	r.ObserveDecision("trader-1", "open_long", "success")
}

func TestStartTracingNoopWithoutEndpoint(t *testing.T) {
	os.Unsetenv(otelEndpointEnv)
	shutdown, err := StartTracing(context.Background(), "nof0-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("noop shutdown should never error: %v", err)
	}
}

func TestStartProfilingNoopWithoutAddress(t *testing.T) {
	os.Unsetenv(pyroscopeAddrEnv)
	stop, err := StartProfiling("nof0-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stop()
}
