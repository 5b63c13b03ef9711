// Package otel wires OpenTelemetry tracing and metrics for the simulator.
package otel

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	instrumentationName = "github.com/erain9/tradesim/pkg/otel"

	ServiceGateway        = "order-gateway"
	ServiceMatchingEngine = "matching-engine"
)

var (
	mu                   sync.RWMutex
	gatewayTracer        trace.Tracer
	matchingEngineTracer trace.Tracer
	meterProvider        metric.MeterProvider
)

// Config holds the OpenTelemetry configuration
type Config struct {
	ServiceVersion   string
	Endpoint         string
	ConnectTimeout   time.Duration
	MetricInterval   time.Duration
	CollectorEnabled bool
}

// Init sets up trace and metric providers exporting over OTLP/gRPC. With the
// collector disabled it only installs the propagator and the returned cleanup
// is a no-op.
func Init(ctx context.Context, cfg Config) (func(), error) {
	if cfg.ServiceVersion == "" {
		cfg.ServiceVersion = "0.1.0"
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.MetricInterval == 0 {
		cfg.MetricInterval = 5 * time.Second
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	if !cfg.CollectorEnabled {
		return func() {}, nil
	}

	conn, err := grpc.NewClient(cfg.Endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}

	gatewayTP, err := newTracerProvider(ctx, conn, newResource(ctx, ServiceGateway, cfg.ServiceVersion))
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	engineTP, err := newTracerProvider(ctx, conn, newResource(ctx, ServiceMatchingEngine, cfg.ServiceVersion))
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	mp, err := newMeterProvider(ctx, conn, newResource(ctx, ServiceMatchingEngine, cfg.ServiceVersion), cfg.MetricInterval)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	otel.SetTracerProvider(engineTP)
	otel.SetMeterProvider(mp)

	mu.Lock()
	gatewayTracer = gatewayTP.Tracer(ServiceGateway)
	matchingEngineTracer = engineTP.Tracer(ServiceMatchingEngine)
	meterProvider = mp
	mu.Unlock()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
		defer cancel()
		err := errors.Join(
			gatewayTP.Shutdown(shutdownCtx),
			engineTP.Shutdown(shutdownCtx),
			mp.Shutdown(shutdownCtx),
			conn.Close(),
		)
		if err != nil {
			otel.Handle(err)
		}
	}, nil
}

func newResource(ctx context.Context, serviceName, serviceVersion string) *sdkresource.Resource {
	extra, err := sdkresource.New(ctx,
		sdkresource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
		sdkresource.WithOS(),
		sdkresource.WithProcess(),
		sdkresource.WithHost(),
	)
	if err != nil {
		return sdkresource.Default()
	}

	merged, err := sdkresource.Merge(sdkresource.Default(), extra)
	if err != nil {
		return extra
	}
	return merged
}

func newTracerProvider(ctx context.Context, conn *grpc.ClientConn, res *sdkresource.Resource) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(1))),
	), nil
}

func newMeterProvider(ctx context.Context, conn *grpc.ClientConn, res *sdkresource.Resource, interval time.Duration) (*sdkmetric.MeterProvider, error) {
	exporter, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}

	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
		sdkmetric.WithResource(res),
	), nil
}

// GetOrderServiceTracer returns the tracer for the request-facing gateway
func GetOrderServiceTracer() trace.Tracer {
	mu.RLock()
	defer mu.RUnlock()
	return gatewayTracer
}

// GetMatchingEngineTracer returns the tracer for the matching engine
func GetMatchingEngineTracer() trace.Tracer {
	mu.RLock()
	defer mu.RUnlock()
	return matchingEngineTracer
}

// GetMeterProvider returns the meter provider installed by Init, or the global one
func GetMeterProvider() metric.MeterProvider {
	mu.RLock()
	defer mu.RUnlock()
	if meterProvider == nil {
		return otel.GetMeterProvider()
	}
	return meterProvider
}

// ResetForTesting clears the tracers installed by Init or InitForTesting
func ResetForTesting() {
	mu.Lock()
	defer mu.Unlock()
	gatewayTracer = nil
	matchingEngineTracer = nil
	meterProvider = nil
}

// InitForTesting routes both services to the given tracer
func InitForTesting(tracer trace.Tracer) error {
	mu.Lock()
	defer mu.Unlock()
	gatewayTracer = tracer
	matchingEngineTracer = tracer
	return nil
}
