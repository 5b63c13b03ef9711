package otel

import (
	"time"

	hostmetrics "go.opentelemetry.io/contrib/instrumentation/host"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
)

// StartRuntimeMetrics collects Go runtime (heap, GC, goroutines) and host
// (CPU, memory, network) metrics on the configured meter provider.
func StartRuntimeMetrics() error {
	mp := GetMeterProvider()

	if err := runtime.Start(
		runtime.WithMeterProvider(mp),
		runtime.WithMinimumReadMemStatsInterval(30*time.Second),
	); err != nil {
		return err
	}

	return hostmetrics.Start(hostmetrics.WithMeterProvider(mp))
}
