package tracing

import (
	"context"
	"fmt"
	"time"

	"courierchat/internal/models"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const tracerName = "courierchat"

// Manager manages OpenTelemetry setup and lifecycle
type Manager struct {
	config         models.TracingConfig
	logger         *logrus.Logger
	tracerProvider *trace.TracerProvider
}

// NewManager creates a new tracing manager
func NewManager(config models.TracingConfig, logger *logrus.Logger) *Manager {
	return &Manager{
		config: config,
		logger: logger,
	}
}

// Initialize sets up OpenTelemetry tracing
func (m *Manager) Initialize(ctx context.Context) error {
	if !m.config.Enabled {
		m.logger.Info("OpenTelemetry tracing is disabled")
		return nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(m.config.ServiceName),
			semconv.ServiceVersionKey.String(m.config.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(m.config.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	var exporter trace.SpanExporter
	if m.config.UseStdout {
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		m.logger.Info("Using stdout trace exporter")
	} else {
		exporter, err = otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(m.config.OTLPEndpoint),
			otlptracehttp.WithInsecure(),
		)
		if err != nil {
			return fmt.Errorf("failed to create OTLP HTTP exporter: %w", err)
		}
		m.logger.WithField("endpoint", m.config.OTLPEndpoint).Info("Using OTLP HTTP trace exporter")
	}

	m.tracerProvider = trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(trace.TraceIDRatioBased(m.config.SampleRate)),
	)

	otel.SetTracerProvider(m.tracerProvider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	m.logger.WithFields(logrus.Fields{
		"service":     m.config.ServiceName,
		"sample_rate": m.config.SampleRate,
	}).Info("OpenTelemetry tracing initialized")

	return nil
}

// Shutdown gracefully shuts down the tracing system
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.tracerProvider == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := m.tracerProvider.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown tracer provider: %w", err)
	}

	m.logger.Info("OpenTelemetry tracing shutdown completed")
	return nil
}

// StartSpan starts a new span with the given name and attributes. When no
// provider is configured this yields a no-op span, so callers never need to
// check whether tracing is enabled.
func StartSpan(ctx context.Context, spanName string, attributes ...attribute.KeyValue) (context.Context, oteltrace.Span) {
	tracer := otel.Tracer(tracerName)
	spanCtx, span := tracer.Start(ctx, spanName)

	if len(attributes) > 0 {
		span.SetAttributes(attributes...)
	}

	return spanCtx, span
}

// RecordError marks the current span as failed
func RecordError(ctx context.Context, err error) {
	span := oteltrace.SpanFromContext(ctx)
	if span != nil && span.IsRecording() {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// AddSpanAttributes adds attributes to the current span
func AddSpanAttributes(ctx context.Context, attributes ...attribute.KeyValue) {
	span := oteltrace.SpanFromContext(ctx)
	if span != nil && span.IsRecording() {
		span.SetAttributes(attributes...)
	}
}
