// Package detector provides pose detection interfaces and types for rep counting.
package detector

import (
	"fmt"
	"math"
)

// Pose landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/pose_landmarker
const (
	Nose           = 0
	LeftEyeInner   = 1
	LeftEye        = 2
	LeftEyeOuter   = 3
	RightEyeInner  = 4
	RightEye       = 5
	RightEyeOuter  = 6
	LeftEar        = 7
	RightEar       = 8
	MouthLeft      = 9
	MouthRight     = 10
	LeftShoulder   = 11
	RightShoulder  = 12
	LeftElbow      = 13
	RightElbow     = 14
	LeftWrist      = 15
	RightWrist     = 16
	LeftPinky      = 17
	RightPinky     = 18
	LeftIndex      = 19
	RightIndex     = 20
	LeftThumb      = 21
	RightThumb     = 22
	LeftHip        = 23
	RightHip       = 24
	LeftKnee       = 25
	RightKnee      = 26
	LeftAnkle      = 27
	RightAnkle     = 28
	LeftHeel       = 29
	RightHeel      = 30
	LeftFootIndex  = 31
	RightFootIndex = 32
	NumLandmarks   = 33
)

var landmarkNames = [NumLandmarks]string{
	"nose", "left_eye_inner", "left_eye", "left_eye_outer",
	"right_eye_inner", "right_eye", "right_eye_outer",
	"left_ear", "right_ear", "mouth_left", "mouth_right",
	"left_shoulder", "right_shoulder", "left_elbow", "right_elbow",
	"left_wrist", "right_wrist", "left_pinky", "right_pinky",
	"left_index", "right_index", "left_thumb", "right_thumb",
	"left_hip", "right_hip", "left_knee", "right_knee",
	"left_ankle", "right_ankle", "left_heel", "right_heel",
	"left_foot_index", "right_foot_index",
}

// Connections lists the landmark pairs joined by a bone when drawing the skeleton.
var Connections = [][2]int{
	{LeftShoulder, RightShoulder},
	{LeftShoulder, LeftElbow}, {LeftElbow, LeftWrist},
	{RightShoulder, RightElbow}, {RightElbow, RightWrist},
	{LeftWrist, LeftPinky}, {LeftWrist, LeftIndex}, {LeftWrist, LeftThumb}, {LeftPinky, LeftIndex},
	{RightWrist, RightPinky}, {RightWrist, RightIndex}, {RightWrist, RightThumb}, {RightPinky, RightIndex},
	{LeftShoulder, LeftHip}, {RightShoulder, RightHip}, {LeftHip, RightHip},
	{LeftHip, LeftKnee}, {LeftKnee, LeftAnkle}, {LeftAnkle, LeftHeel}, {LeftHeel, LeftFootIndex}, {LeftAnkle, LeftFootIndex},
	{RightHip, RightKnee}, {RightKnee, RightAnkle}, {RightAnkle, RightHeel}, {RightHeel, RightFootIndex}, {RightAnkle, RightFootIndex},
	{Nose, LeftEyeInner}, {LeftEyeInner, LeftEye}, {LeftEye, LeftEyeOuter}, {LeftEyeOuter, LeftEar},
	{Nose, RightEyeInner}, {RightEyeInner, RightEye}, {RightEye, RightEyeOuter}, {RightEyeOuter, RightEar},
	{MouthLeft, MouthRight},
}

// LandmarkName returns the snake_case name of a landmark index, or "" if out of range.
func LandmarkName(index int) string {
	if index < 0 || index >= NumLandmarks {
		return ""
	}
	return landmarkNames[index]
}

// LandmarkIndex resolves a snake_case landmark name to its index.
func LandmarkIndex(name string) (int, error) {
	for i, n := range landmarkNames {
		if n == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("unknown landmark %q", name)
}

// Landmark is a single body point in normalized image coordinates.
type Landmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility"`
}

// Valid reports whether all coordinates are finite numbers.
func (l Landmark) Valid() bool {
	return isFinite(l.X) && isFinite(l.Y) && isFinite(l.Z)
}

// Pose holds the 33 landmarks detected for one person in one frame.
type Pose struct {
	Landmarks [NumLandmarks]Landmark `json:"landmarks"`
	Score     float64                `json:"score"`
}

// Visible reports whether every listed landmark has at least the given visibility.
func (p *Pose) Visible(minVisibility float64, indices ...int) bool {
	if p == nil {
		return false
	}
	for _, i := range indices {
		if i < 0 || i >= NumLandmarks {
			return false
		}
		if p.Landmarks[i].Visibility < minVisibility || !p.Landmarks[i].Valid() {
			return false
		}
	}
	return true
}

// Clone returns a copy of the pose.
func (p *Pose) Clone() *Pose {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

// Mirror returns a copy of the pose flipped horizontally, with left and right
// landmarks swapped so that names still refer to the person's own body.
func (p *Pose) Mirror() *Pose {
	if p == nil {
		return nil
	}

	m := &Pose{Score: p.Score}
	for i := 0; i < NumLandmarks; i++ {
		l := p.Landmarks[i]
		l.X = 1.0 - l.X
		m.Landmarks[MirrorIndex(i)] = l
	}
	return m
}

// MirrorIndex maps a landmark to its counterpart on the other side of the body.
func MirrorIndex(i int) int {
	switch {
	case i == Nose:
		return Nose
	case i >= LeftEyeInner && i <= LeftEyeOuter:
		return i + 3
	case i >= RightEyeInner && i <= RightEyeOuter:
		return i - 3
	case i >= LeftEar:
		// From the ears onwards landmarks alternate left/right.
		if (i-LeftEar)%2 == 0 {
			return i + 1
		}
		return i - 1
	}
	return i
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
