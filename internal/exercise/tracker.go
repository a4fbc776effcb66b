package exercise

import (
	"github.com/ayusman/fitcheck/internal/detector"
)

// DefaultMinVisibility is the landmark visibility below which a frame is skipped.
const DefaultMinVisibility = 0.5

// SkipReason explains why a frame did not reach the counter.
type SkipReason string

const (
	SkipNone       SkipReason = ""
	SkipNoPose     SkipReason = "no_pose"
	SkipOccluded   SkipReason = "occluded"
	SkipDegenerate SkipReason = "degenerate"
)

// Observation is the outcome of feeding one frame to a Tracker.
type Observation struct {
	// Angle is the joint angle used for counting; zero when Detected is false.
	Angle float64
	// Detected reports whether an angle could be computed for this frame.
	Detected bool
	// Counted reports whether this frame completed a repetition.
	Counted bool
	// Skip holds the reason the frame was skipped when Detected is false.
	Skip  SkipReason
	State State
}

// Tracker counts repetitions of one exercise from a stream of poses.
// It is not safe for concurrent use.
type Tracker struct {
	def     Definition
	counter Counter
	state   State
	joints  [][3]int
}

// NewTracker creates a tracker for the given definition.
func NewTracker(def Definition) (*Tracker, error) {
	t := &Tracker{}
	if err := t.Select(def); err != nil {
		return nil, err
	}
	return t, nil
}

// Definition returns the active exercise definition.
func (t *Tracker) Definition() Definition {
	return t.def
}

// State returns the current counting state.
func (t *Tracker) State() State {
	return t.state
}

// Select switches to another exercise or side and resets the state.
func (t *Tracker) Select(def Definition) error {
	c, err := def.Counter()
	if err != nil {
		return err
	}

	t.def = def
	t.counter = c
	switch def.Side {
	case SideBoth:
		t.joints = [][3]int{def.landmarks(SideLeft), def.landmarks(SideRight)}
	default:
		t.joints = [][3]int{def.landmarks(def.Side)}
	}
	t.state = c.Reset()
	return nil
}

// Vertices returns the landmark index of the joint vertex of each tracked limb.
func (t *Tracker) Vertices() []int {
	v := make([]int, len(t.joints))
	for i, j := range t.joints {
		v[i] = j[1]
	}
	return v
}

// Reset zeroes the count and returns the stage to StageNone.
func (t *Tracker) Reset() {
	t.state = t.counter.Reset()
}

// Observe feeds one frame's pose to the counter. Frames with no pose, with a
// required landmark below minVisibility, or with degenerate geometry leave the
// state untouched.
func (t *Tracker) Observe(pose *detector.Pose, minVisibility float64) Observation {
	obs := t.Measure(pose, minVisibility)
	if !obs.Detected {
		return obs
	}

	prev := t.state
	t.state = t.counter.Update(prev, obs.Angle)

	obs.Counted = t.state.Count > prev.Count
	obs.State = t.state
	return obs
}

// Measure computes the joint angle of pose like Observe but leaves the
// counting state untouched.
func (t *Tracker) Measure(pose *detector.Pose, minVisibility float64) Observation {
	obs := Observation{State: t.state}
	if pose == nil {
		obs.Skip = SkipNoPose
		return obs
	}

	angle, reason := t.angle(pose, minVisibility)
	if reason != SkipNone {
		obs.Skip = reason
		return obs
	}
	obs.Angle = angle
	obs.Detected = true
	return obs
}

// angle returns the joint angle for the active side, averaging over limbs for
// SideBoth.
func (t *Tracker) angle(pose *detector.Pose, minVisibility float64) (float64, SkipReason) {
	var sum float64
	for _, j := range t.joints {
		if !pose.Visible(minVisibility, j[0], j[1], j[2]) {
			return 0, SkipOccluded
		}
		a, ok := JointAngle(point(pose, j[0]), point(pose, j[1]), point(pose, j[2]))
		if !ok {
			return 0, SkipDegenerate
		}
		sum += a
	}
	return sum / float64(len(t.joints)), SkipNone
}

func point(p *detector.Pose, i int) Point {
	l := p.Landmarks[i]
	return Point{X: l.X, Y: l.Y}
}
