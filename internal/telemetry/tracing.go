package telemetry

import (
	"context"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/zeromicro/go-zero/core/logx"
)

// otelEndpointEnv names the OTLP/HTTP collector endpoint (host:port, no
// scheme) that enables tracing. Unset or empty leaves the global tracer a
// no-op, so every executor/venue span call below is always safe to make.
const otelEndpointEnv = "OTEL_EXPORTER_OTLP_ENDPOINT"

// StartTracing configures the global TracerProvider from OTEL_EXPORTER_OTLP_ENDPOINT.
// It returns a shutdown func that must be called before process exit to flush
// pending spans; the returned func is always non-nil and safe to call even
// when tracing was never enabled.
func StartTracing(ctx context.Context, serviceName string) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }
	endpoint := os.Getenv(otelEndpointEnv)
	if endpoint == "" {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
	if err != nil {
		return noop, err
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
	))
	if err != nil {
		return noop, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	logx.Infof("telemetry: tracing enabled, exporting to %s", endpoint)

	return tp.Shutdown, nil
}

// Tracer returns the named tracer off the global provider; callers get a
// no-op tracer until StartTracing configures a real one, matching how
// pkg/executor and pkg/venue use context.Context regardless of whether
// tracing is active.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
