package exercise

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidThresholds is returned when a counter's thresholds are out of
// range or not ordered.
var ErrInvalidThresholds = errors.New("invalid thresholds")

// Stage is the phase of a repetition cycle.
type Stage int

const (
	// StageNone is the neutral stage before the first threshold crossing.
	StageNone Stage = iota
	// StageHigh means the angle last went above the high threshold.
	StageHigh
	// StageLow means the angle last went below the low threshold.
	StageLow
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageHigh:
		return "high"
	case StageLow:
		return "low"
	default:
		return "none"
	}
}

// Edge selects which stage transition increments the count.
type Edge int

const (
	// EdgeEnteringLow counts on the high to low transition.
	EdgeEnteringLow Edge = iota
	// EdgeEnteringHigh counts on the low to high transition.
	EdgeEnteringHigh
)

// String returns the edge name used in configuration and JSON.
func (e Edge) String() string {
	if e == EdgeEnteringHigh {
		return "entering_high"
	}
	return "entering_low"
}

// ParseEdge parses an edge name as produced by Edge.String.
func ParseEdge(s string) (Edge, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "entering_low", "low":
		return EdgeEnteringLow, nil
	case "entering_high", "high":
		return EdgeEnteringHigh, nil
	}
	return EdgeEnteringLow, fmt.Errorf("unknown count edge %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (e Edge) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *Edge) UnmarshalText(text []byte) error {
	v, err := ParseEdge(string(text))
	if err != nil {
		return err
	}
	*e = v
	return nil
}

// State is the counting state carried from one frame to the next.
type State struct {
	Count int   `json:"count"`
	Stage Stage `json:"stage"`
}

// Counter is a two-threshold hysteresis rep counter. It holds only its
// configuration; state is passed in and returned by Update.
type Counter struct {
	High    float64
	Low     float64
	CountOn Edge
}

// NewCounter creates a counter after checking that 0 <= low < high <= 180.
func NewCounter(high, low float64, countOn Edge) (Counter, error) {
	if err := validateThresholds(high, low); err != nil {
		return Counter{}, err
	}
	return Counter{High: high, Low: low, CountOn: countOn}, nil
}

func validateThresholds(high, low float64) error {
	if !finite(high) || !finite(low) {
		return fmt.Errorf("%w: thresholds must be finite", ErrInvalidThresholds)
	}
	if low < 0 || high > 180 {
		return fmt.Errorf("%w: thresholds must lie within [0, 180], got low=%g high=%g", ErrInvalidThresholds, low, high)
	}
	if low >= high {
		return fmt.Errorf("%w: low (%g) must be below high (%g)", ErrInvalidThresholds, low, high)
	}
	return nil
}

// Update returns the state after observing one angle sample. Non-finite
// samples leave the state unchanged. Leaving StageNone never counts.
func (c Counter) Update(s State, angle float64) State {
	if math.IsNaN(angle) || math.IsInf(angle, 0) {
		return s
	}

	switch {
	case angle > c.High && s.Stage != StageHigh:
		if c.CountOn == EdgeEnteringHigh && s.Stage == StageLow {
			s.Count++
		}
		s.Stage = StageHigh
	case angle < c.Low && s.Stage == StageHigh:
		if c.CountOn == EdgeEnteringLow {
			s.Count++
		}
		s.Stage = StageLow
	}
	return s
}

// Reset returns the initial state.
func (c Counter) Reset() State {
	return State{}
}
