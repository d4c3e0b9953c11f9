package obs

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// ErrTelemetryInit is returned when the OpenTelemetry providers fail to
// initialize, grounded on the teacher's ErrOTelInitFailed.
var ErrTelemetryInit = errors.New("obs: opentelemetry initialization failed")

// TelemetryConfig selects which phase diagnostics the Analyzer's -i/-v
// flags request. Grounded on the teacher's OTelConfig, trimmed to the
// two signals wasmati actually emits: per-phase span timings and the
// final graph size.
type TelemetryConfig struct {
	ServiceName string
	// Verbose enables trace spans around each build phase (-v).
	Verbose bool
	// Instrument enables the graph-size and phase-duration metrics (-i).
	Instrument bool
}

// Telemetry wraps the tracer and metric instruments a single Analyzer
// run needs. A nil *Telemetry is valid and every method on it is a
// no-op, so callers never need a liveness check before using one.
type Telemetry struct {
	cfg    TelemetryConfig
	tp     *sdktrace.TracerProvider
	mp     *sdkmetric.MeterProvider
	tracer trace.Tracer

	phaseDuration metric.Float64Histogram
	nodeCount     metric.Int64Gauge
	edgeCount     metric.Int64Gauge
	vulnCount     metric.Int64Counter
}

// NewTelemetry builds providers that print spans and metrics to stderr
// via the stdout exporters (there is no collector endpoint in scope for
// a CLI tool), per cfg. Either signal can be independently disabled; if
// both are off, NewTelemetry returns nil so callers can skip it safely.
func NewTelemetry(cfg TelemetryConfig) (*Telemetry, error) {
	if !cfg.Verbose && !cfg.Instrument {
		return nil, nil
	}
	t := &Telemetry{cfg: cfg}

	if cfg.Verbose {
		exp, err := stdouttrace.New(stdouttrace.WithoutTimestamps())
		if err != nil {
			return nil, errors.Join(ErrTelemetryInit, err)
		}
		t.tp = sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
		t.tracer = t.tp.Tracer("github.com/darkmacheken/wasmati-go")
	} else {
		t.tracer = otel.Tracer("github.com/darkmacheken/wasmati-go")
	}

	if cfg.Instrument {
		exp, err := stdoutmetric.New()
		if err != nil {
			return nil, errors.Join(ErrTelemetryInit, err)
		}
		t.mp = sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)))
		meter := t.mp.Meter("github.com/darkmacheken/wasmati-go")

		var err2 error
		t.phaseDuration, err2 = meter.Float64Histogram("wasmati.phase.duration",
			metric.WithDescription("Build phase duration"), metric.WithUnit("s"))
		if err2 != nil {
			return nil, errors.Join(ErrTelemetryInit, err2)
		}
		t.nodeCount, err2 = meter.Int64Gauge("wasmati.graph.nodes", metric.WithDescription("Node count after build"))
		if err2 != nil {
			return nil, errors.Join(ErrTelemetryInit, err2)
		}
		t.edgeCount, err2 = meter.Int64Gauge("wasmati.graph.edges", metric.WithDescription("Edge count after build"))
		if err2 != nil {
			return nil, errors.Join(ErrTelemetryInit, err2)
		}
		t.vulnCount, err2 = meter.Int64Counter("wasmati.vulnerabilities", metric.WithDescription("Vulnerabilities reported"))
		if err2 != nil {
			return nil, errors.Join(ErrTelemetryInit, err2)
		}
	}

	return t, nil
}

// Phase runs fn inside a span named after phase (when Verbose) and
// records its wall-clock duration (when Instrument). Use for each of
// the AST/CG/CFG/PDG/checker build stages:
//
//	err := tel.Phase(ctx, "pdg", func(ctx context.Context) error {
//	    return pdgbuild.Build(g, m, ast)
//	})
func (t *Telemetry) Phase(ctx context.Context, phase string, fn func(context.Context) error) error {
	if t == nil {
		return fn(ctx)
	}
	if t.tracer != nil {
		var span trace.Span
		ctx, span = t.tracer.Start(ctx, phase)
		defer span.End()
	}
	start := time.Now()
	err := fn(ctx)
	if t.phaseDuration != nil {
		t.phaseDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(phaseAttr(phase)))
	}
	if err != nil && t.tracer != nil {
		trace.SpanFromContext(ctx).RecordError(err)
	}
	return err
}

// RecordGraphSize records the final node/edge counts, when Instrument.
func (t *Telemetry) RecordGraphSize(ctx context.Context, nodes, edges int) {
	if t == nil || t.nodeCount == nil {
		return
	}
	t.nodeCount.Record(ctx, int64(nodes))
	t.edgeCount.Record(ctx, int64(edges))
}

// RecordVulnerabilities increments the vulnerability counter by n.
func (t *Telemetry) RecordVulnerabilities(ctx context.Context, n int) {
	if t == nil || t.vulnCount == nil {
		return
	}
	t.vulnCount.Add(ctx, int64(n))
}

func phaseAttr(phase string) attribute.KeyValue {
	return attribute.String("phase", phase)
}

// Shutdown flushes and stops any providers this Telemetry owns.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	var err error
	if t.tp != nil {
		err = errors.Join(err, t.tp.Shutdown(ctx))
	}
	if t.mp != nil {
		err = errors.Join(err, t.mp.Shutdown(ctx))
	}
	return err
}
