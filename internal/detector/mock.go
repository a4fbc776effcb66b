package detector

import (
	"math"
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results, either a fixed pose or a
// scripted sequence returned one entry per call.
type MockDetector struct {
	mu       sync.Mutex
	pose     *Pose
	sequence []*Pose
	index    int
	err      error
	calls    int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetPose sets the pose that will be returned by every Detect call.
func (m *MockDetector) SetPose(p *Pose) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pose = p
	m.sequence = nil
	m.index = 0
}

// SetSequence scripts the poses returned by successive Detect calls. A nil entry
// simulates a frame where nobody was detected. Once the sequence is exhausted
// Detect returns nil.
func (m *MockDetector) SetSequence(poses []*Pose) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sequence = poses
	m.index = 0
	m.pose = nil
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Detect has been called.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Detect returns the pre-configured pose or error.
func (m *MockDetector) Detect(frame *gocv.Mat) (*Pose, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return nil, m.err
	}

	if m.sequence != nil {
		if m.index >= len(m.sequence) {
			return nil, nil
		}
		p := m.sequence[m.index]
		m.index++
		return p.Clone(), nil
	}

	return m.pose.Clone(), nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// StandingPose returns a synthetic pose of a person standing upright, arms
// hanging straight down, facing the camera. Every landmark is fully visible.
func StandingPose() *Pose {
	p := &Pose{Score: 0.99}

	set := func(i int, x, y float64) {
		p.Landmarks[i] = Landmark{X: x, Y: y, Z: 0, Visibility: 0.99}
	}

	// Head
	set(Nose, 0.50, 0.12)
	set(LeftEyeInner, 0.51, 0.10)
	set(LeftEye, 0.52, 0.10)
	set(LeftEyeOuter, 0.53, 0.10)
	set(RightEyeInner, 0.49, 0.10)
	set(RightEye, 0.48, 0.10)
	set(RightEyeOuter, 0.47, 0.10)
	set(LeftEar, 0.55, 0.11)
	set(RightEar, 0.45, 0.11)
	set(MouthLeft, 0.51, 0.14)
	set(MouthRight, 0.49, 0.14)

	// Arms hanging straight (the subject's left side is image right)
	set(LeftShoulder, 0.60, 0.25)
	set(RightShoulder, 0.40, 0.25)
	set(LeftElbow, 0.60, 0.40)
	set(RightElbow, 0.40, 0.40)
	set(LeftWrist, 0.60, 0.55)
	set(RightWrist, 0.40, 0.55)
	set(LeftPinky, 0.61, 0.58)
	set(RightPinky, 0.39, 0.58)
	set(LeftIndex, 0.60, 0.59)
	set(RightIndex, 0.40, 0.59)
	set(LeftThumb, 0.59, 0.57)
	set(RightThumb, 0.41, 0.57)

	// Legs straight
	set(LeftHip, 0.56, 0.55)
	set(RightHip, 0.44, 0.55)
	set(LeftKnee, 0.56, 0.72)
	set(RightKnee, 0.44, 0.72)
	set(LeftAnkle, 0.56, 0.89)
	set(RightAnkle, 0.44, 0.89)
	set(LeftHeel, 0.56, 0.91)
	set(RightHeel, 0.44, 0.91)
	set(LeftFootIndex, 0.58, 0.93)
	set(RightFootIndex, 0.42, 0.93)

	return p
}

// CurlPose returns a standing pose with the elbow of the given side bent so
// that the shoulder-elbow-wrist angle equals degrees. Side is "left", "right"
// or "both".
func CurlPose(side string, degrees float64) *Pose {
	p := StandingPose()
	if side == "left" || side == "both" {
		BendJoint(p, LeftShoulder, LeftElbow, LeftWrist, degrees, LeftPinky, LeftIndex, LeftThumb)
	}
	if side == "right" || side == "both" {
		BendJoint(p, RightShoulder, RightElbow, RightWrist, -degrees, RightPinky, RightIndex, RightThumb)
	}
	return p
}

// SquatPose returns a pose with both knees bent so that the hip-knee-ankle
// angle equals degrees.
func SquatPose(degrees float64) *Pose {
	p := StandingPose()
	BendJoint(p, LeftHip, LeftKnee, LeftAnkle, degrees, LeftHeel, LeftFootIndex)
	BendJoint(p, RightHip, RightKnee, RightAnkle, -degrees, RightHeel, RightFootIndex)
	return p
}

// BendJoint moves landmark c around b so that the angle a-b-c equals degrees.
// The sign of degrees picks the rotation direction. Followers are translated by
// the same displacement as c.
func BendJoint(p *Pose, a, b, c int, degrees float64, followers ...int) {
	pa, pb, pc := p.Landmarks[a], p.Landmarks[b], p.Landmarks[c]

	vx, vy := pa.X-pb.X, pa.Y-pb.Y
	norm := math.Hypot(vx, vy)
	if norm == 0 {
		return
	}
	vx, vy = vx/norm, vy/norm

	length := math.Hypot(pc.X-pb.X, pc.Y-pb.Y)
	rad := degrees * math.Pi / 180.0
	rx := vx*math.Cos(rad) - vy*math.Sin(rad)
	ry := vx*math.Sin(rad) + vy*math.Cos(rad)

	nx, ny := pb.X+length*rx, pb.Y+length*ry
	dx, dy := nx-pc.X, ny-pc.Y

	p.Landmarks[c].X, p.Landmarks[c].Y = nx, ny
	for _, f := range followers {
		p.Landmarks[f].X += dx
		p.Landmarks[f].Y += dy
	}
}
