package telemetry

import (
	"os"

	"github.com/grafana/pyroscope-go"
	"github.com/zeromicro/go-zero/core/logx"
)

// pyroscopeAddrEnv names the Pyroscope server address that enables continuous
// profiling. Unset leaves StartProfiling a no-op.
const pyroscopeAddrEnv = "PYROSCOPE_SERVER_ADDRESS"

// StartProfiling starts a pyroscope.Profiler tagged with appName when
// PYROSCOPE_SERVER_ADDRESS is set. The returned stop func is always non-nil
// and safe to call even when profiling was never started.
func StartProfiling(appName string) (stop func(), err error) {
	addr := os.Getenv(pyroscopeAddrEnv)
	if addr == "" {
		return func() {}, nil
	}

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: appName,
		ServerAddress:   addr,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
	if err != nil {
		return func() {}, err
	}
	logx.Infof("telemetry: continuous profiling enabled, reporting to %s", addr)
	return func() {
		_ = profiler.Stop()
	}, nil
}
