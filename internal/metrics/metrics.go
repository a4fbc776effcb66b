// Package metrics records rep counter telemetry through OpenTelemetry and,
// optionally, InfluxDB.
package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/ayusman/fitcheck"

// Rep is one counted repetition.
type Rep struct {
	SessionID string
	Exercise  string
	Side      string
	Count     int
	Angle     float64
	At        time.Time
}

// Recorder receives rep events. Implementations must not block the frame loop
// for long.
type Recorder interface {
	RecordRep(ctx context.Context, r Rep) error
}

// Metrics holds the OTel instruments of the frame pipeline. It uses the global
// meter provider, which is a no-op unless one has been installed.
type Metrics struct {
	reps      metric.Int64Counter
	processed metric.Int64Counter
	skipped   metric.Int64Counter
	detect    metric.Float64Histogram
}

// New creates the instruments.
func New() (*Metrics, error) {
	m := otel.Meter(instrumentationName)

	reps, err := m.Int64Counter(
		"fitcheck.reps",
		metric.WithDescription("Total repetitions counted"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating reps counter: %w", err)
	}

	processed, err := m.Int64Counter(
		"fitcheck.frames.processed",
		metric.WithDescription("Frames that reached the rep counter"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}

	skipped, err := m.Int64Counter(
		"fitcheck.frames.skipped",
		metric.WithDescription("Frames skipped before counting"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating skipped counter: %w", err)
	}

	detect, err := m.Float64Histogram(
		"fitcheck.detect.duration",
		metric.WithDescription("Pose detection latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating detect histogram: %w", err)
	}

	return &Metrics{
		reps:      reps,
		processed: processed,
		skipped:   skipped,
		detect:    detect,
	}, nil
}

// RecordRep implements Recorder.
func (m *Metrics) RecordRep(ctx context.Context, r Rep) error {
	m.reps.Add(ctx, 1, metric.WithAttributes(
		attribute.String("exercise", r.Exercise),
		attribute.String("side", r.Side),
	))
	return nil
}

// FrameProcessed counts a frame whose angle reached the counter.
func (m *Metrics) FrameProcessed(ctx context.Context) {
	m.processed.Add(ctx, 1)
}

// FrameSkipped counts a frame dropped for the given reason.
func (m *Metrics) FrameSkipped(ctx context.Context, reason string) {
	m.skipped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// DetectDuration records how long one detector call took.
func (m *Metrics) DetectDuration(ctx context.Context, d time.Duration) {
	m.detect.Record(ctx, float64(d.Microseconds())/1000.0)
}
