// Package exercise turns a stream of pose landmarks into repetition counts.
//
// It holds the joint angle calculator, a generic hysteresis counter, the table
// of exercise definitions and a Tracker that combines them frame by frame.
package exercise

import "math"

// degenerateEpsilon is the distance below which two points are treated as coincident.
const degenerateEpsilon = 1e-9

// Point is a 2-D point in normalized image coordinates.
type Point struct {
	X, Y float64
}

// Angle returns the included angle at b, in degrees within [0, 180], formed by
// the segments b->a and b->c.
func Angle(a, b, c Point) float64 {
	radians := math.Atan2(c.Y-b.Y, c.X-b.X) - math.Atan2(a.Y-b.Y, a.X-b.X)
	deg := math.Abs(radians * 180.0 / math.Pi)
	if deg > 180.0 {
		deg = 360.0 - deg
	}
	return deg
}

// JointAngle is Angle with a validity flag. It reports false when any
// coordinate is not finite, when a or c coincides with b, or when the result
// is not a finite number. Callers skip the frame in that case.
func JointAngle(a, b, c Point) (float64, bool) {
	for _, p := range [...]Point{a, b, c} {
		if !finite(p.X) || !finite(p.Y) {
			return 0, false
		}
	}
	if math.Hypot(a.X-b.X, a.Y-b.Y) < degenerateEpsilon || math.Hypot(c.X-b.X, c.Y-b.Y) < degenerateEpsilon {
		return 0, false
	}

	deg := Angle(a, b, c)
	if !finite(deg) {
		return 0, false
	}
	return deg, true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
