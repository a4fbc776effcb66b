package exercise

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ayusman/fitcheck/internal/detector"
)

// ErrUnknownExercise is returned when an exercise name is not registered.
var ErrUnknownExercise = errors.New("unknown exercise")

// ErrBuiltIn is returned when a built-in exercise would be replaced or removed.
var ErrBuiltIn = errors.New("exercise is built in")

// ErrInvalidSide is returned when a side is not supported by an exercise.
var ErrInvalidSide = errors.New("invalid side")

var namePattern = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,31}$`)

// Side selects which limb an exercise tracks.
type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
	// SideBoth averages the angle of the left and right limb.
	SideBoth Side = "both"
)

// ParseSide parses a side name. The empty string parses to the empty side,
// meaning "use the definition default".
func ParseSide(s string) (Side, error) {
	switch side := Side(strings.ToLower(strings.TrimSpace(s))); side {
	case "", SideLeft, SideRight, SideBoth:
		return side, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSide, s)
}

// JointPair names the left and right landmark for one point of a joint triple.
type JointPair struct {
	Left  string `json:"left"`
	Right string `json:"right"`
}

// Definition is the configuration record of one exercise type.
type Definition struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Joints      [3]JointPair `json:"joints"`
	Side        Side         `json:"side"`
	Sides       []Side       `json:"sides,omitempty"`
	High        float64      `json:"high"`
	Low         float64      `json:"low"`
	CountOn     Edge         `json:"count_on"`
	HighLabel   string       `json:"high_label"`
	LowLabel    string       `json:"low_label"`
	BuiltIn     bool         `json:"builtin"`
}

// Counter returns the hysteresis counter configured by the definition.
func (d Definition) Counter() (Counter, error) {
	return NewCounter(d.High, d.Low, d.CountOn)
}

// StageLabel returns the display label of a stage, or "" for StageNone.
func (d Definition) StageLabel(s Stage) string {
	switch s {
	case StageHigh:
		return d.HighLabel
	case StageLow:
		return d.LowLabel
	}
	return ""
}

// SupportsSide reports whether the exercise can track the given side.
func (d Definition) SupportsSide(side Side) bool {
	if len(d.Sides) == 0 {
		return side == d.Side
	}
	for _, s := range d.Sides {
		if s == side {
			return true
		}
	}
	return false
}

// WithSide returns a copy of the definition tracking the given side. An empty
// side keeps the default.
func (d Definition) WithSide(side Side) (Definition, error) {
	if side == "" {
		return d, nil
	}
	if !d.SupportsSide(side) {
		return Definition{}, fmt.Errorf("%w: %s does not support side %q", ErrInvalidSide, d.Name, side)
	}
	d.Side = side
	return d, nil
}

// Validate checks the name, landmarks, thresholds and sides of a definition.
func (d Definition) Validate() error {
	if !namePattern.MatchString(d.Name) {
		return fmt.Errorf("invalid exercise name %q", d.Name)
	}
	if _, err := d.Counter(); err != nil {
		return err
	}
	for _, j := range d.Joints {
		if _, err := detector.LandmarkIndex(j.Left); err != nil {
			return err
		}
		if _, err := detector.LandmarkIndex(j.Right); err != nil {
			return err
		}
	}
	switch d.Side {
	case SideLeft, SideRight, SideBoth:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSide, d.Side)
	}
	if !d.SupportsSide(d.Side) {
		return fmt.Errorf("%w: default side %q not in supported sides", ErrInvalidSide, d.Side)
	}
	return nil
}

// landmarks returns the landmark indices of the joint triple for one side.
func (d Definition) landmarks(side Side) [3]int {
	var idx [3]int
	for i, j := range d.Joints {
		name := j.Left
		if side == SideRight {
			name = j.Right
		}
		idx[i], _ = detector.LandmarkIndex(name)
	}
	return idx
}

// Curl returns the built-in arm curl: shoulder, elbow, wrist. The arm is
// "down" when extended past 160 degrees and a rep counts when it closes below
// 30 degrees.
func Curl() Definition {
	return Definition{
		Name:        "curl",
		Description: "Arm curl, counted when the elbow closes",
		Joints: [3]JointPair{
			{Left: "left_shoulder", Right: "right_shoulder"},
			{Left: "left_elbow", Right: "right_elbow"},
			{Left: "left_wrist", Right: "right_wrist"},
		},
		Side:      SideLeft,
		Sides:     []Side{SideLeft, SideRight},
		High:      160,
		Low:       30,
		CountOn:   EdgeEnteringLow,
		HighLabel: "down",
		LowLabel:  "up",
		BuiltIn:   true,
	}
}

// Squat returns the built-in squat: hip, knee, ankle averaged over both legs.
// A rep counts on the way down, when the knee closes below 70 degrees.
func Squat() Definition {
	return Definition{
		Name:        "squat",
		Description: "Squat, counted on the way down",
		Joints: [3]JointPair{
			{Left: "left_hip", Right: "right_hip"},
			{Left: "left_knee", Right: "right_knee"},
			{Left: "left_ankle", Right: "right_ankle"},
		},
		Side:      SideBoth,
		Sides:     []Side{SideBoth, SideLeft, SideRight},
		High:      160,
		Low:       70,
		CountOn:   EdgeEnteringLow,
		HighLabel: "up",
		LowLabel:  "down",
		BuiltIn:   true,
	}
}
