// Package telemetry installs the OpenTelemetry meter and tracer providers
// used by the sampling drivers.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const (
	ExporterNone       = "none"
	ExporterStdout     = "stdout"
	ExporterPrometheus = "prometheus"
)

var (
	ErrNilContext      = errors.New("telemetry: nil context")
	ErrUnknownExporter = errors.New("telemetry: unknown exporter")
)

type Config struct {
	ServiceName    string
	ServiceVersion string
	// MetricExporter is "prometheus", "stdout" or "none".
	MetricExporter string
	// TraceExporter is "stdout" or "none".
	TraceExporter string
	// MetricsAddr is where the prometheus exporter is served. Empty keeps
	// the handler unserved; it is still available from Provider.Handler.
	MetricsAddr string
	// Writer receives stdout exporter output. Defaults to os.Stderr.
	Writer io.Writer
}

func DefaultConfig() Config {
	return Config{
		ServiceName:    "hardspherectl",
		ServiceVersion: "dev",
		MetricExporter: ExporterNone,
		TraceExporter:  ExporterNone,
	}
}

// Provider owns the installed providers and the optional metrics server.
type Provider struct {
	handler  http.Handler
	server   *http.Server
	addr     net.Addr
	shutdown []func(context.Context) error
}

// Init installs global meter and tracer providers for cfg. The caller must
// call Shutdown on exit so periodic exporters flush.
func Init(ctx context.Context, cfg Config) (*Provider, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if cfg.Writer == nil {
		cfg.Writer = os.Stderr
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	p := &Provider{}
	switch cfg.TraceExporter {
	case "", ExporterNone:
	case ExporterStdout:
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(cfg.Writer))
		if err != nil {
			return nil, fmt.Errorf("create stdout trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tp)
		p.shutdown = append(p.shutdown, tp.Shutdown)
	default:
		return nil, fmt.Errorf("%w: trace %s", ErrUnknownExporter, cfg.TraceExporter)
	}

	mp, err := p.initMeter(cfg, res)
	if err != nil {
		_ = p.Shutdown(context.WithoutCancel(ctx))
		return nil, err
	}
	if mp != nil {
		otel.SetMeterProvider(mp)
		p.shutdown = append(p.shutdown, mp.Shutdown)
	}

	if p.handler != nil && cfg.MetricsAddr != "" {
		if err := p.serve(cfg.MetricsAddr); err != nil {
			_ = p.Shutdown(context.WithoutCancel(ctx))
			return nil, err
		}
	}
	return p, nil
}

func (p *Provider) initMeter(cfg Config, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	switch cfg.MetricExporter {
	case "", ExporterNone:
		return nil, nil
	case ExporterPrometheus:
		registry := prometheus.NewRegistry()
		exporter, err := promexporter.New(promexporter.WithRegisterer(registry))
		if err != nil {
			return nil, fmt.Errorf("create prometheus exporter: %w", err)
		}
		p.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
		return sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exporter),
		), nil
	case ExporterStdout:
		exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(cfg.Writer))
		if err != nil {
			return nil, fmt.Errorf("create stdout metric exporter: %w", err)
		}
		return sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		), nil
	default:
		return nil, fmt.Errorf("%w: metric %s", ErrUnknownExporter, cfg.MetricExporter)
	}
}

func (p *Provider) serve(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen metrics %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", p.handler)
	p.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	p.addr = listener.Addr()
	go func() {
		_ = p.server.Serve(listener)
	}()
	p.shutdown = append(p.shutdown, p.server.Shutdown)
	return nil
}

// Handler returns the prometheus scrape handler, or nil for other exporters.
func (p *Provider) Handler() http.Handler {
	return p.handler
}

// Addr is the metrics listener address, nil when nothing is served.
func (p *Provider) Addr() net.Addr {
	return p.addr
}

// Shutdown flushes and stops everything Init started, newest first.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(p.shutdown) - 1; i >= 0; i-- {
		if err := p.shutdown[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	p.shutdown = nil
	return errors.Join(errs...)
}
