package session

import (
	"context"
	"errors"
	"image/color"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ayusman/fitcheck/internal/capture"
	"github.com/ayusman/fitcheck/internal/detector"
	"github.com/ayusman/fitcheck/internal/exercise"
	"github.com/ayusman/fitcheck/internal/metrics"
	"github.com/ayusman/fitcheck/internal/store"
)

const (
	frameWidth  = 320
	frameHeight = 240
)

type recordedReps struct {
	mu   sync.Mutex
	reps []metrics.Rep
}

func (r *recordedReps) RecordRep(ctx context.Context, rep metrics.Rep) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reps = append(r.reps, rep)
	return nil
}

func (r *recordedReps) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reps)
}

type fixture struct {
	sess     *Session
	camera   *capture.MockCamera
	detector *detector.MockDetector
	store    *store.Store
	recorder *recordedReps
	clock    *fakeClock
}

// newFixture builds a session over a looping mock camera, a scripted mock
// detector and a temporary store. mod may adjust the config.
func newFixture(t *testing.T, mod func(*Config)) *fixture {
	t.Helper()

	frames := capture.SolidFrames(3, frameWidth, frameHeight, color.RGBA{R: 40, G: 40, B: 40, A: 255})
	t.Cleanup(func() { capture.CloseFrames(frames) })

	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	m, err := metrics.New()
	if err != nil {
		t.Fatalf("metrics.New() error = %v", err)
	}

	f := &fixture{
		camera:   capture.NewMockCamera(frames, true),
		detector: detector.NewMockDetector(),
		store:    st,
		recorder: &recordedReps{},
		clock:    newFakeClock(),
	}

	cfg := Config{
		Camera:   f.camera,
		Detector: f.detector,
		Exercise: "curl",
		Store:    st,
		Metrics:  m,
		Recorder: f.recorder,
		Logger:   zerolog.Nop(),
		Now:      f.clock.Now,
	}
	if mod != nil {
		mod(&cfg)
	}

	f.sess, err = New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { f.sess.Close() })

	return f
}

// curlSequence returns left-arm curl poses for the given elbow angles.
func curlSequence(angles ...float64) []*detector.Pose {
	poses := make([]*detector.Pose, len(angles))
	for i, a := range angles {
		poses[i] = detector.CurlPose("left", a)
	}
	return poses
}

func tickN(t *testing.T, s *Session, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := s.Tick(); err != nil {
			t.Fatalf("Tick() %d error = %v", i, err)
		}
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{Detector: detector.NewMockDetector()}); err == nil {
		t.Error("expected error without camera")
	}
	if _, err := New(Config{Camera: capture.NewMockCamera(nil, false)}); err == nil {
		t.Error("expected error without detector")
	}

	_, err := New(Config{
		Camera:   capture.NewMockCamera(nil, false),
		Detector: detector.NewMockDetector(),
		Exercise: "jumping-jack",
	})
	if !errors.Is(err, exercise.ErrUnknownExercise) {
		t.Errorf("expected ErrUnknownExercise, got %v", err)
	}
}

func TestSession_TickBeforeStart(t *testing.T) {
	f := newFixture(t, nil)

	if err := f.sess.Tick(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Tick() before Start = %v, want ErrNotRunning", err)
	}
	if err := f.sess.Step(); err != nil {
		t.Errorf("Step() before Start = %v, want nil", err)
	}
	if f.camera.Reads() != 0 {
		t.Error("no frame should be read before Start")
	}
}

func TestSession_CountsCurlReps(t *testing.T) {
	f := newFixture(t, nil)
	f.detector.SetSequence(curlSequence(170, 170, 20, 170, 20, 170))

	snaps, cancel := f.sess.Subscribe()
	defer cancel()

	if err := f.sess.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	id := f.sess.ID()
	if id == "" {
		t.Fatal("Start() should stamp a session id")
	}

	tickN(t, f.sess, 6)

	snap := f.sess.Snapshot()
	if snap.Count != 2 {
		t.Errorf("Count = %d, want 2", snap.Count)
	}
	if snap.Stage != "down" {
		t.Errorf("Stage = %q, want %q", snap.Stage, "down")
	}
	if snap.Frames != 6 || snap.Skipped != 0 {
		t.Errorf("Frames/Skipped = %d/%d, want 6/0", snap.Frames, snap.Skipped)
	}

	var reps []int
	for len(snaps) > 0 {
		s := <-snaps
		if s.Rep != nil {
			reps = append(reps, s.Rep.Count)
		}
	}
	if len(reps) != 2 || reps[0] != 1 || reps[1] != 2 {
		t.Errorf("subscriber reps = %v, want [1 2]", reps)
	}

	stored, err := f.store.Reps().ListBySession(id)
	if err != nil {
		t.Fatalf("ListBySession() error = %v", err)
	}
	if len(stored) != 2 {
		t.Errorf("stored %d reps, want 2", len(stored))
	}
	if f.recorder.Len() != 2 {
		t.Errorf("recorder got %d reps, want 2", f.recorder.Len())
	}
}

func TestSession_SkipsFramesWithoutPose(t *testing.T) {
	f := newFixture(t, nil)
	f.detector.SetSequence([]*detector.Pose{
		detector.CurlPose("left", 170),
		nil,
		detector.CurlPose("left", 20),
	})

	if err := f.sess.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	tickN(t, f.sess, 2)
	snap := f.sess.Snapshot()
	if snap.Detected {
		t.Error("Detected should be false after a frame without pose")
	}
	if snap.Stage != "down" {
		t.Errorf("stage should be kept from the previous frame, got %q", snap.Stage)
	}

	tickN(t, f.sess, 1)
	snap = f.sess.Snapshot()
	if snap.Count != 1 || snap.Skipped != 1 {
		t.Errorf("Count/Skipped = %d/%d, want 1/1", snap.Count, snap.Skipped)
	}
}

func TestSession_CountdownDelaysCounting(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.Countdown = 5 * time.Second })
	f.detector.SetSequence(curlSequence(170, 20, 170, 20))

	if err := f.sess.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := f.sess.Snapshot().Countdown; got != 5 {
		t.Errorf("Countdown = %d, want 5", got)
	}

	tickN(t, f.sess, 1)
	snap := f.sess.Snapshot()
	if !snap.Detected || math.Abs(snap.Angle-170) > 0.5 {
		t.Errorf("countdown frame: detected %v angle %.1f, want the pose shown at 170", snap.Detected, snap.Angle)
	}

	tickN(t, f.sess, 1)
	if snap := f.sess.Snapshot(); snap.Count != 0 || snap.Frames != 0 || snap.Stage != "" {
		t.Errorf("no counting during countdown, got count %d frames %d stage %q", snap.Count, snap.Frames, snap.Stage)
	}

	f.clock.Advance(5 * time.Second)
	tickN(t, f.sess, 2)
	snap = f.sess.Snapshot()
	if snap.Count != 1 {
		t.Errorf("Count = %d, want 1", snap.Count)
	}
	if snap.Countdown != 0 {
		t.Errorf("Countdown = %d, want 0", snap.Countdown)
	}
}

func TestSession_ReadErrorKeepsState(t *testing.T) {
	f := newFixture(t, nil)
	f.detector.SetSequence(curlSequence(170, 20))

	if err := f.sess.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	tickN(t, f.sess, 2)

	f.camera.SetError(errors.New("camera unplugged"))
	if err := f.sess.Tick(); err == nil {
		t.Fatal("Tick() should report the read error")
	}
	if got := f.sess.Snapshot().Count; got != 1 {
		t.Errorf("Count = %d after read error, want 1", got)
	}
	if f.detector.Calls() != 2 {
		t.Errorf("detector should not run on a failed read, calls = %d", f.detector.Calls())
	}
}

func TestSession_DetectorErrorSkips(t *testing.T) {
	f := newFixture(t, nil)
	f.detector.SetError(errors.New("model crashed"))

	if err := f.sess.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := f.sess.Tick(); err != nil {
		t.Fatalf("Tick() error = %v, detector failures are skipped", err)
	}

	snap := f.sess.Snapshot()
	if snap.Skipped != 1 || snap.Detected {
		t.Errorf("Skipped/Detected = %d/%v, want 1/false", snap.Skipped, snap.Detected)
	}
}

func TestSession_MirrorDoesNotChangeCounting(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.Mirror = true })
	f.detector.SetSequence(curlSequence(170, 20, 170, 20))

	if err := f.sess.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	tickN(t, f.sess, 4)

	if got := f.sess.Snapshot().Count; got != 2 {
		t.Errorf("Count = %d with mirrored display, want 2", got)
	}
}

func TestSession_SelectAndReset(t *testing.T) {
	f := newFixture(t, nil)
	f.detector.SetSequence(curlSequence(170, 20))

	if err := f.sess.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	tickN(t, f.sess, 2)
	first := f.sess.ID()

	if err := f.sess.Select("squat", ""); err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	def := f.sess.Definition()
	if def.Name != "squat" || def.Side != exercise.SideBoth {
		t.Errorf("Definition = %s/%s, want squat/both", def.Name, def.Side)
	}
	if got := f.sess.Snapshot().Count; got != 0 {
		t.Errorf("Count after Select = %d, want 0", got)
	}
	if f.sess.ID() == first {
		t.Error("Select on a running session should start a new session")
	}
	if last := f.sess.Last(); last.SessionID != first || last.Reps != 1 {
		t.Errorf("Last() = %+v, want first session with 1 rep", last)
	}

	saved, err := f.store.Settings().Get(store.SettingExercise)
	if err != nil || saved != "squat" {
		t.Errorf("saved exercise = %q (%v), want squat", saved, err)
	}

	f.detector.SetSequence([]*detector.Pose{detector.SquatPose(170), detector.SquatPose(60), detector.SquatPose(60)})
	tickN(t, f.sess, 3)
	if got := f.sess.Snapshot().Count; got != 1 {
		t.Errorf("squat Count = %d, want 1", got)
	}

	f.sess.Reset()
	snap := f.sess.Snapshot()
	if snap.Count != 0 || snap.Stage != "" {
		t.Errorf("after Reset count/stage = %d/%q, want 0/\"\"", snap.Count, snap.Stage)
	}

	if err := f.sess.Select("curl", "middle"); !errors.Is(err, exercise.ErrInvalidSide) {
		t.Errorf("Select with bad side = %v, want ErrInvalidSide", err)
	}
	if err := f.sess.Select("plank", ""); !errors.Is(err, exercise.ErrUnknownExercise) {
		t.Errorf("Select unknown = %v, want ErrUnknownExercise", err)
	}
}

func TestSession_StopFinishesSession(t *testing.T) {
	f := newFixture(t, nil)
	f.detector.SetSequence(curlSequence(170, 20, 170))

	if err := f.sess.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	id := f.sess.ID()
	tickN(t, f.sess, 3)

	f.clock.Advance(time.Minute)
	if err := f.sess.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if f.sess.Running() {
		t.Error("session should not be running after Stop")
	}
	if f.camera.IsOpen() {
		t.Error("camera should be released by Stop")
	}

	row, err := f.store.Sessions().GetByID(id)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if row.EndedAt == nil {
		t.Error("session row should be finished")
	}
	if row.Reps != 1 || row.Frames != 3 {
		t.Errorf("row reps/frames = %d/%d, want 1/3", row.Reps, row.Frames)
	}

	last := f.sess.Last()
	if last.Duration() != time.Minute {
		t.Errorf("Duration() = %s, want 1m", last.Duration())
	}

	if err := f.sess.Start(); err != nil {
		t.Fatalf("restart error = %v", err)
	}
	if !f.camera.IsOpen() {
		t.Error("Start should reopen the camera")
	}
}

func TestSession_CloseReleasesEverything(t *testing.T) {
	f := newFixture(t, nil)

	snaps, _ := f.sess.Subscribe()
	if err := f.sess.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := f.sess.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if f.camera.IsOpen() {
		t.Error("camera should be closed")
	}

	for range snaps {
	}

	if err := f.sess.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := f.sess.Start(); err == nil {
		t.Error("Start after Close should fail")
	}
}

func TestSession_Composite(t *testing.T) {
	f := newFixture(t, nil)

	idle := f.sess.Composite()
	if idle.Cols() != capture.DefaultWidth || idle.Rows() != capture.DefaultHeight {
		t.Errorf("idle composite = %dx%d, want %dx%d", idle.Cols(), idle.Rows(), capture.DefaultWidth, capture.DefaultHeight)
	}
	idle.Close()

	if err := f.sess.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	tickN(t, f.sess, 1)

	img := f.sess.Composite()
	defer img.Close()
	if img.Cols() != frameWidth || img.Rows() != frameHeight {
		t.Errorf("composite = %dx%d, want %dx%d", img.Cols(), img.Rows(), frameWidth, frameHeight)
	}

	jpg, err := f.sess.JPEG()
	if err != nil {
		t.Fatalf("JPEG() error = %v", err)
	}
	if len(jpg) < 2 || jpg[0] != 0xFF || jpg[1] != 0xD8 {
		t.Error("JPEG() should return JPEG data")
	}
}

func TestSession_ReferenceVideo(t *testing.T) {
	refFrames := capture.SolidFrames(2, 100, 80, color.RGBA{B: 200, A: 255})
	t.Cleanup(func() { capture.CloseFrames(refFrames) })
	ref := capture.NewMockCamera(refFrames, false)

	f := newFixture(t, func(c *Config) { c.Reference = ref })

	if err := f.sess.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !ref.IsOpen() {
		t.Fatal("Start should open the reference video")
	}

	for i := 0; i < 4; i++ {
		if err := f.sess.Step(); err != nil {
			t.Fatalf("Step() error = %v", err)
		}
	}

	img := f.sess.Composite()
	defer img.Close()
	if img.Cols() != 2*frameWidth || img.Rows() != frameHeight {
		t.Errorf("composite = %dx%d, want %dx%d", img.Cols(), img.Rows(), 2*frameWidth, frameHeight)
	}

	if err := f.sess.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if ref.IsOpen() {
		t.Error("reference video should be released by Stop")
	}
}

func TestSession_RunStopsAtEnd(t *testing.T) {
	frames := capture.SolidFrames(3, frameWidth, frameHeight, color.RGBA{G: 90, A: 255})
	t.Cleanup(func() { capture.CloseFrames(frames) })
	cam := capture.NewMockCamera(frames, false)

	f := newFixture(t, func(c *Config) {
		c.Camera = cam
		c.Tick = time.Millisecond
		c.StopAtEnd = true
	})
	f.detector.SetSequence(curlSequence(170, 20, 170))

	if err := f.sess.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := f.sess.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if ctx.Err() != nil {
		t.Fatal("Run should return at end of stream, not on timeout")
	}
	if got := f.sess.Snapshot().Count; got != 1 {
		t.Errorf("Count = %d, want 1", got)
	}
}

func TestSession_RunStopsOnCancel(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.Tick = time.Millisecond })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.sess.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSession_MotionGate(t *testing.T) {
	// Solid frames never move, so only the first idle frame is let through.
	gate := capture.NewMotionGate(1.0, 1)
	f := newFixture(t, func(c *Config) { c.Motion = gate })
	f.detector.SetPose(detector.CurlPose("left", 170))

	if err := f.sess.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	tickN(t, f.sess, 3)

	if got := f.detector.Calls(); got != 1 {
		t.Errorf("detector calls = %d, want 1", got)
	}
	snap := f.sess.Snapshot()
	if snap.Frames != 3 || snap.Skipped != 2 {
		t.Errorf("Frames/Skipped = %d/%d, want 3/2", snap.Frames, snap.Skipped)
	}
}
