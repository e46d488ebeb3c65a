package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// ServiceName identifies this program in exported spans.
const ServiceName = "ask"

// Exporter names accepted by InitTracer.
const (
	ExporterNone   = ""
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// ErrUnknownExporter is returned for an unsupported exporter name.
var ErrUnknownExporter = errors.New("unknown trace exporter")

// Options selects where spans are exported.
type Options struct {
	Exporter string
	// Endpoint overrides OTEL_EXPORTER_OTLP_ENDPOINT for the otlp exporter.
	Endpoint string
	// Writer receives stdout spans; defaults to stderr so answers stay clean.
	Writer io.Writer
}

// InitTracer installs a global tracer provider and returns its shutdown
// function. With no exporter it is a no-op.
func InitTracer(ctx context.Context, opts Options, logger *slog.Logger) (func(context.Context) error, error) {
	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch opts.Exporter {
	case ExporterNone:
		return func(context.Context) error { return nil }, nil
	case ExporterStdout:
		w := opts.Writer
		if w == nil {
			w = os.Stderr
		}
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	case ExporterOTLP:
		var clientOpts []otlptracehttp.Option
		if opts.Endpoint != "" {
			clientOpts = append(clientOpts, otlptracehttp.WithEndpoint(opts.Endpoint))
		}
		exporter, err = otlptracehttp.New(ctx, clientOpts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownExporter, opts.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s exporter: %w", opts.Exporter, err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(ServiceName),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	logger.Debug("tracing initialized", slog.String("exporter", opts.Exporter))

	return tp.Shutdown, nil
}

// Tracer returns the tracer used for the program's own spans.
func Tracer() trace.Tracer {
	return otel.Tracer(ServiceName)
}
