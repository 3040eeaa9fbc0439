package main

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	metricsdk "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"sutext.github.io/tether/xlog"
)

const (
	serviceNamespace = "tether"
	exportTimeout    = 5 * time.Second
)

type telemetry struct {
	logger        *xlog.Logger
	traceProvider *tracesdk.TracerProvider
	meterProvider *metricsdk.MeterProvider
}

// newTelemetry installs the global tracer and meter providers the config
// asks for. A provider that fails to start is logged and skipped.
func newTelemetry(ctx context.Context, cfg *config, session string, logger *xlog.Logger) *telemetry {
	t := &telemetry{logger: logger}
	if cfg.Trace.Enabled {
		if err := t.startTracing(ctx, cfg.Trace, session); err != nil {
			otel.Handle(err)
			logger.Error("Failed to initialize tracing", xlog.Err(err))
		} else {
			logger.Info("OTel tracing initialized", xlog.Str("otlp_endpoint", cfg.Trace.OTLPEndpoint))
		}
	}
	if cfg.Metrics.Enabled {
		if err := t.startMetrics(ctx, cfg.Metrics, session); err != nil {
			otel.Handle(err)
			logger.Error("Failed to initialize metrics", xlog.Err(err))
		} else {
			logger.Info("OTel metrics initialized", xlog.Str("otlp_endpoint", cfg.Metrics.OTLPEndpoint))
		}
	}
	return t
}

// sessionResource identifies one client session to the collector.
func sessionResource(ctx context.Context, serviceName, session string) (*resource.Resource, error) {
	return resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(serviceName),
		semconv.ServiceNamespace(serviceNamespace),
		semconv.ServiceInstanceID(session),
	))
}

func (t *telemetry) startTracing(ctx context.Context, conf traceConfig, session string) error {
	res, err := sessionResource(ctx, conf.ServiceName, session)
	if err != nil {
		return err
	}
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(conf.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithTimeout(exportTimeout))
	if err != nil {
		return err
	}
	t.traceProvider = tracesdk.NewTracerProvider(tracesdk.WithBatcher(exporter), tracesdk.WithResource(res))
	otel.SetTracerProvider(t.traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	return nil
}

func (t *telemetry) startMetrics(ctx context.Context, conf metricsConfig, session string) error {
	res, err := sessionResource(ctx, conf.ServiceName, session)
	if err != nil {
		return err
	}
	exporter, err := otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpointURL(conf.OTLPEndpoint),
		otlpmetrichttp.WithInsecure(),
		otlpmetrichttp.WithTimeout(exportTimeout),
		otlpmetrichttp.WithHeaders(map[string]string{"X-Scope-OrgID": conf.TenantID}),
	)
	if err != nil {
		return err
	}
	reader := metricsdk.NewPeriodicReader(exporter,
		metricsdk.WithInterval(conf.period()),
		metricsdk.WithTimeout(exportTimeout),
	)
	t.meterProvider = metricsdk.NewMeterProvider(metricsdk.WithReader(reader), metricsdk.WithResource(res))
	otel.SetMeterProvider(t.meterProvider)
	return nil
}

func (t *telemetry) Shutdown(ctx context.Context) (err error) {
	if t.traceProvider != nil {
		if err = t.traceProvider.Shutdown(ctx); err != nil {
			t.logger.Error("Failed to shutdown tracer provider", xlog.Err(err))
		}
	}
	if t.meterProvider != nil {
		if err = t.meterProvider.Shutdown(ctx); err != nil {
			t.logger.Error("Failed to shutdown meter provider", xlog.Err(err))
		}
	}
	return err
}
