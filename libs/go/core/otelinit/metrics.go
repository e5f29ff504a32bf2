package otelinit

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
)

// Instruments holds the cross-cutting counters shared by resilience helpers
// (retry, circuit breaker) regardless of which process emits them.
type Instruments struct {
	RetryAttempts          metric.Int64Counter
	CircuitOpenTransitions metric.Int64Counter
}

// InitMetrics sets up a global OTLP push exporter for metrics. Returns a shutdown
// function and the shared cross-cutting instrument set.
func InitMetrics(ctx context.Context, role string) (shutdown func(context.Context) error, instruments Instruments) {
	res, _ := sdkresource.Merge(sdkresource.Default(), sdkresource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(role),
		attribute.String("role", role),
	))

	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT")
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if endpoint == "" {
		endpoint = "localhost:4317"
	}

	ctxInit, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	exp, err := otlpmetricgrpc.New(ctxInit,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithDialOption(grpc.WithInsecure()),
	)
	if err != nil {
		slog.Warn("otel metrics exporter init failed", "error", err)
		return func(context.Context) error { return nil }, commonInstruments()
	}

	reader := sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(10*time.Second))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(res))
	otel.SetMeterProvider(mp)
	slog.Info("otel metrics initialized", "endpoint", endpoint, "role", role)
	return mp.Shutdown, commonInstruments()
}

// InitPrometheusBridge registers a second meter provider backed by the OTel
// Prometheus exporter and returns an http.Handler for /metrics. Used by the
// coordinator to serve scrape-style metrics alongside the OTLP push path
// InitMetrics sets up for everything else.
func InitPrometheusBridge(role string) (http.Handler, error) {
	res, _ := sdkresource.Merge(sdkresource.Default(), sdkresource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(role),
	))

	exp, err := prometheus.New()
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exp), sdkmetric.WithResource(res))
	otel.SetMeterProvider(mp)
	return promhttp.Handler(), nil
}

func commonInstruments() Instruments {
	meter := otel.Meter(TracerName)
	retry, _ := meter.Int64Counter("flowmesh_resilience_retry_attempts_total")
	circuit, _ := meter.Int64Counter("flowmesh_resilience_circuit_open_total")
	return Instruments{RetryAttempts: retry, CircuitOpenTransitions: circuit}
}
