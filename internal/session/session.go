// Package session drives the rep counter frame pipeline: it reads frames,
// detects poses, counts repetitions, renders the overlay and fans rep events
// out to persistence, metrics, plugins and live subscribers.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"github.com/ayusman/fitcheck/internal/capture"
	"github.com/ayusman/fitcheck/internal/detector"
	"github.com/ayusman/fitcheck/internal/exercise"
	"github.com/ayusman/fitcheck/internal/metrics"
	"github.com/ayusman/fitcheck/internal/overlay"
	"github.com/ayusman/fitcheck/internal/plugin"
	"github.com/ayusman/fitcheck/internal/store"
)

// Pipeline defaults.
const (
	// DefaultTick is the polling interval of Run.
	DefaultTick = 30 * time.Millisecond
	// DefaultExercise is selected when Config.Exercise is empty.
	DefaultExercise = "curl"
	// subscriberBuffer is the channel size of each live subscriber.
	subscriberBuffer = 16
)

// idleText is shown on the composite while no session is running.
const idleText = "press space to start"

// Frame skip reasons recorded in metrics besides exercise.SkipReason.
const (
	skipIdle   = "idle"
	skipDetect = "detect_error"
	skipRead   = "read_error"
)

// ErrNotRunning is returned by Tick when the session has not been started.
var ErrNotRunning = errors.New("session not running")

// Config holds the collaborators and settings of a Session. Camera and
// Detector are required; everything else is optional.
type Config struct {
	Camera   capture.Camera
	Detector detector.Detector
	// Reference is an instructional video shown next to the camera.
	Reference capture.Camera
	Registry  *exercise.Registry

	Exercise      string
	Side          exercise.Side
	MinVisibility float64
	// Countdown delays counting after start; zero counts immediately.
	Countdown time.Duration
	Tick      time.Duration
	// Mirror flips the displayed frame. Counting always uses the raw frame.
	Mirror bool
	// StopAtEnd makes Run return when the camera reports end of stream.
	StopAtEnd bool

	Motion   *capture.MotionGate
	Store    *store.Store
	Metrics  *metrics.Metrics
	Recorder metrics.Recorder
	Plugins  *plugin.Dispatcher
	Logger   zerolog.Logger
	// Now is the clock; nil uses time.Now.
	Now func() time.Time
}

// Session is one camera feed being counted. All methods are safe for
// concurrent use; ticks themselves are serialized.
type Session struct {
	cfg       Config
	log       zerolog.Logger
	ctx       context.Context
	tracker   *exercise.Tracker
	countdown *Countdown

	mu        sync.Mutex
	running   bool
	closed    bool
	id        string
	startedAt time.Time
	frames    int
	skipped   int
	obs       exercise.Observation
	rendered  gocv.Mat
	reference gocv.Mat
	last      Summary

	subMu sync.Mutex
	subs  map[chan Snapshot]struct{}
}

// New creates a Session. The camera is opened by Start.
func New(cfg Config) (*Session, error) {
	if cfg.Camera == nil {
		return nil, errors.New("session: camera is required")
	}
	if cfg.Detector == nil {
		return nil, errors.New("session: detector is required")
	}
	if cfg.Registry == nil {
		cfg.Registry = exercise.NewRegistry()
	}
	if cfg.Exercise == "" {
		cfg.Exercise = DefaultExercise
	}
	if cfg.MinVisibility <= 0 {
		cfg.MinVisibility = exercise.DefaultMinVisibility
	}
	if cfg.Countdown < 0 {
		cfg.Countdown = 0
	}
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	def, err := cfg.Registry.Resolve(cfg.Exercise, cfg.Side)
	if err != nil {
		return nil, err
	}
	tracker, err := exercise.NewTracker(def)
	if err != nil {
		return nil, err
	}

	return &Session{
		cfg:       cfg,
		log:       cfg.Logger.With().Str("component", "session").Logger(),
		ctx:       context.Background(),
		tracker:   tracker,
		countdown: NewCountdown(cfg.Countdown, cfg.Now),
		rendered:  gocv.NewMat(),
		reference: gocv.NewMat(),
		subs:      make(map[chan Snapshot]struct{}),
	}, nil
}

// Registry returns the exercise registry used by Select.
func (s *Session) Registry() *exercise.Registry {
	return s.cfg.Registry
}

// Running reports whether a session is in progress.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// ID returns the id of the running session, or "" when stopped.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Definition returns the active exercise definition.
func (s *Session) Definition() exercise.Definition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.Definition()
}

// Last returns the summary of the most recently finished session.
func (s *Session) Last() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Snapshot returns the current live view.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	def := s.tracker.Definition()
	st := s.tracker.State()
	snap := Snapshot{
		SessionID: s.id,
		Running:   s.running,
		Exercise:  def.Name,
		Side:      string(def.Side),
		Count:     st.Count,
		Stage:     def.StageLabel(st.Stage),
		Angle:     s.obs.Angle,
		Detected:  s.obs.Detected,
		Frames:    s.frames,
		Skipped:   s.skipped,
		At:        s.cfg.Now(),
	}
	if s.running && !s.countdown.Done() {
		snap.Countdown = s.countdown.Seconds()
	}
	return snap
}

// Start opens the camera and the reference video and begins a new session.
// Calling Start on a running session finishes it and starts over.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("session: closed")
	}
	if s.running {
		s.finishLocked()
	}

	if !s.cfg.Camera.IsOpen() {
		if err := s.cfg.Camera.Open(); err != nil {
			return fmt.Errorf("open camera: %w", err)
		}
	}
	if s.cfg.Reference != nil && !s.cfg.Reference.IsOpen() {
		if err := s.cfg.Reference.Open(); err != nil {
			s.log.Warn().Err(err).Msg("reference video unavailable")
		}
	}

	s.beginLocked()
	s.publish(s.snapshotLocked())
	return nil
}

// beginLocked stamps a new session and restarts counting.
func (s *Session) beginLocked() {
	s.id = uuid.NewString()
	s.startedAt = s.cfg.Now()
	s.frames = 0
	s.skipped = 0
	s.obs = exercise.Observation{}
	s.tracker.Reset()
	s.countdown.Restart()
	if s.cfg.Motion != nil {
		s.cfg.Motion.Reset()
	}
	s.running = true

	def := s.tracker.Definition()
	if s.cfg.Store != nil {
		err := s.cfg.Store.Sessions().Create(&store.Session{
			ID:        s.id,
			Exercise:  def.Name,
			Side:      string(def.Side),
			StartedAt: s.startedAt,
		})
		if err != nil {
			s.log.Error().Err(err).Str("session", s.id).Msg("failed to persist session")
		}
	}

	s.log.Info().Str("session", s.id).Str("exercise", def.Name).Str("side", string(def.Side)).
		Dur("countdown", s.cfg.Countdown).Msg("session started")
}

// finishLocked closes the current session row and announces its summary.
func (s *Session) finishLocked() {
	if s.id == "" {
		return
	}

	def := s.tracker.Definition()
	sum := Summary{
		SessionID: s.id,
		Exercise:  def.Name,
		Side:      string(def.Side),
		Reps:      s.tracker.State().Count,
		Frames:    s.frames,
		Skipped:   s.skipped,
		StartedAt: s.startedAt,
		EndedAt:   s.cfg.Now(),
	}

	if s.cfg.Store != nil {
		if err := s.cfg.Store.Sessions().Finish(sum.SessionID, sum.EndedAt, sum.Reps, sum.Frames, sum.Skipped); err != nil {
			s.log.Error().Err(err).Str("session", sum.SessionID).Msg("failed to finish session")
		}
	}
	if s.cfg.Plugins != nil {
		s.cfg.Plugins.Go(s.ctx, plugin.Event{Name: plugin.EventSessionEnd, Exercise: sum.Exercise, Params: sum})
	}

	s.log.Info().Str("session", sum.SessionID).Int("reps", sum.Reps).Int("frames", sum.Frames).
		Int("skipped", sum.Skipped).Dur("duration", sum.Duration()).Msg("session finished")

	s.last = sum
	s.id = ""
	s.running = false
}

// Tick runs one synchronous pass of the pipeline: read a frame, detect,
// count once the countdown has elapsed, render and publish. A frame read
// failure is returned and keeps the previous rendered frame.
func (s *Session) Tick() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return ErrNotRunning
	}

	frame, err := s.cfg.Camera.ReadFrame()
	if err != nil {
		s.frameSkipped(skipRead)
		return fmt.Errorf("read frame: %w", err)
	}

	var pose *detector.Pose
	switch {
	case s.cfg.Motion != nil && !s.cfg.Motion.Allow(frame):
		s.obs = exercise.Observation{State: s.tracker.State(), Skip: skipIdle}
	default:
		start := time.Now()
		pose, err = s.cfg.Detector.Detect(frame)
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.DetectDuration(s.ctx, time.Since(start))
		}
		if err != nil {
			s.log.Warn().Err(err).Msg("pose detection failed")
			pose = nil
			s.obs = exercise.Observation{State: s.tracker.State(), Skip: skipDetect}
		}
	}

	var rep *RepEvent
	if !s.countdown.Done() {
		if s.obs.Skip == exercise.SkipNone {
			s.obs = s.tracker.Measure(pose, s.cfg.MinVisibility)
		}
	} else {
		s.frames++
		if s.obs.Skip == skipIdle || s.obs.Skip == skipDetect {
			s.skipped++
			s.frameSkipped(string(s.obs.Skip))
		} else {
			s.obs = s.tracker.Observe(pose, s.cfg.MinVisibility)
			if s.obs.Detected {
				if s.cfg.Metrics != nil {
					s.cfg.Metrics.FrameProcessed(s.ctx)
				}
			} else {
				s.skipped++
				s.frameSkipped(string(s.obs.Skip))
			}
			if s.obs.Counted {
				rep = s.repLocked()
			}
		}
	}
	// Skip reasons only live for the tick that set them.
	s.obs.Skip = exercise.SkipNone

	s.renderLocked(frame, pose)

	snap := s.snapshotLocked()
	if rep != nil {
		s.emitLocked(*rep)
		snap.Rep = rep
	}
	s.publish(snap)
	return nil
}

func (s *Session) frameSkipped(reason string) {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.FrameSkipped(s.ctx, reason)
	}
}

func (s *Session) repLocked() *RepEvent {
	def := s.tracker.Definition()
	return &RepEvent{
		SessionID: s.id,
		Exercise:  def.Name,
		Side:      string(def.Side),
		Count:     s.obs.State.Count,
		Angle:     s.obs.Angle,
		At:        s.cfg.Now(),
	}
}

// emitLocked delivers a rep to the store, the recorders and the plugins.
// None of them may block for long.
func (s *Session) emitLocked(ev RepEvent) {
	log := s.log.With().Str("session", ev.SessionID).Int("count", ev.Count).Logger()
	log.Info().Str("exercise", ev.Exercise).Float64("angle", ev.Angle).Msg("rep counted")

	if s.cfg.Store != nil {
		err := s.cfg.Store.Reps().Create(&store.Rep{
			SessionID: ev.SessionID,
			Count:     ev.Count,
			Angle:     ev.Angle,
			At:        ev.At,
		})
		if err != nil {
			log.Error().Err(err).Msg("failed to persist rep")
		}
	}

	if s.cfg.Recorder != nil {
		err := s.cfg.Recorder.RecordRep(s.ctx, metrics.Rep{
			SessionID: ev.SessionID,
			Exercise:  ev.Exercise,
			Side:      ev.Side,
			Count:     ev.Count,
			Angle:     ev.Angle,
			At:        ev.At,
		})
		if err != nil {
			log.Error().Err(err).Msg("failed to record rep")
		}
	}

	if s.cfg.Plugins != nil {
		s.cfg.Plugins.Go(s.ctx, plugin.Event{Name: plugin.EventRep, Exercise: ev.Exercise, Params: ev})
	}
}

// renderLocked draws the overlay on frame and keeps it as the rendered frame.
// It takes ownership of frame.
func (s *Session) renderLocked(frame *gocv.Mat, pose *detector.Pose) {
	def := s.tracker.Definition()
	joints := s.tracker.Vertices()

	if s.cfg.Mirror {
		gocv.Flip(*frame, frame, 1)
		pose = pose.Mirror()
		for i, j := range joints {
			joints[i] = detector.MirrorIndex(j)
		}
	}

	overlay.Skeleton(frame, pose, s.cfg.MinVisibility)
	if s.obs.Detected && len(joints) == 1 {
		overlay.JointLabel(frame, pose, joints[0], s.obs.Angle)
	}

	st := s.tracker.State()
	overlay.ScoreTable(frame, overlay.Score{
		Exercise: def.Name,
		Count:    st.Count,
		Stage:    def.StageLabel(st.Stage),
		Angle:    s.obs.Angle,
		Detected: s.obs.Detected,
	})
	if !s.countdown.Done() {
		overlay.Countdown(frame, s.countdown.Seconds())
	}

	old := s.rendered
	s.rendered = *frame
	old.Close()
}

// ReferenceTick reads the next reference video frame, resized to the camera
// frame size. A read failure rewinds the video and skips this tick.
func (s *Session) ReferenceTick() error {
	if s.cfg.Reference == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cfg.Reference.IsOpen() {
		return nil
	}

	frame, err := s.cfg.Reference.ReadFrame()
	if err != nil {
		if r, ok := s.cfg.Reference.(interface{ Rewind() }); ok {
			r.Rewind()
		}
		s.log.Debug().Err(err).Msg("reference video rewound")
		return nil
	}
	defer frame.Close()

	width, height := capture.DefaultWidth, capture.DefaultHeight
	if !s.rendered.Empty() {
		width, height = s.rendered.Cols(), s.rendered.Rows()
	}
	overlay.Fit(*frame, &s.reference, width, height)
	return nil
}

// Step runs Tick and ReferenceTick once when the session is running.
func (s *Session) Step() error {
	if !s.Running() {
		return nil
	}
	err := s.Tick()
	if rerr := s.ReferenceTick(); rerr != nil {
		s.log.Debug().Err(rerr).Msg("reference tick failed")
	}
	if errors.Is(err, ErrNotRunning) {
		return nil
	}
	return err
}

// Run drives Step from a ticker until ctx is cancelled, or until the camera
// runs out of frames when StopAtEnd is set.
func (s *Session) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			err := s.Step()
			if err == nil {
				continue
			}
			if errors.Is(err, capture.ErrEndOfStream) && s.cfg.StopAtEnd {
				s.log.Info().Msg("input finished")
				return nil
			}
			s.log.Debug().Err(err).Msg("tick skipped")
		}
	}
}

// Composite returns the rendered camera frame next to the reference frame.
// While stopped the last frame, or a black frame, carries an idle banner.
// The caller must close the result.
func (s *Session) Composite() gocv.Mat {
	s.mu.Lock()
	defer s.mu.Unlock()

	var base gocv.Mat
	if s.rendered.Empty() {
		base = gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), capture.DefaultHeight, capture.DefaultWidth, gocv.MatTypeCV8UC3)
	} else {
		base = s.rendered.Clone()
	}
	if !s.running {
		overlay.Banner(&base, idleText)
	}

	if s.cfg.Reference == nil {
		return base
	}
	defer base.Close()
	return overlay.SideBySide(base, s.reference)
}

// JPEG returns the composite encoded as JPEG.
func (s *Session) JPEG() ([]byte, error) {
	img := s.Composite()
	defer img.Close()

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		return nil, err
	}
	defer buf.Close()

	b := buf.GetBytes()
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// Select switches exercise and side. An empty side keeps the exercise's
// default. A running session is finished and a new one started at zero.
func (s *Session) Select(name, side string) error {
	sd, err := exercise.ParseSide(side)
	if err != nil {
		return err
	}
	def, err := s.cfg.Registry.Resolve(name, sd)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.tracker.Select(def); err != nil {
		return err
	}
	s.obs = exercise.Observation{}

	if s.cfg.Store != nil {
		settings := s.cfg.Store.Settings()
		if err := errors.Join(
			settings.Set(store.SettingExercise, def.Name),
			settings.Set(store.SettingSide, string(def.Side)),
		); err != nil {
			s.log.Warn().Err(err).Msg("failed to save selection")
		}
	}

	s.log.Info().Str("exercise", def.Name).Str("side", string(def.Side)).Msg("exercise selected")

	if s.running {
		s.finishLocked()
		s.beginLocked()
	}
	s.publish(s.snapshotLocked())
	return nil
}

// Reset zeroes the count and stage. A running session is finished and a new
// one started with a fresh countdown.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.finishLocked()
		s.beginLocked()
	} else {
		s.tracker.Reset()
		s.obs = exercise.Observation{}
	}
	s.publish(s.snapshotLocked())
}

// Stop finishes the running session and releases the camera and reference
// video. The session can be started again.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *Session) stopLocked() error {
	s.finishLocked()

	var errs []error
	if s.cfg.Camera.IsOpen() {
		if err := s.cfg.Camera.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close camera: %w", err))
		}
	}
	if s.cfg.Reference != nil && s.cfg.Reference.IsOpen() {
		if err := s.cfg.Reference.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close reference: %w", err))
		}
	}
	if s.cfg.Motion != nil {
		s.cfg.Motion.Reset()
	}
	s.publish(s.snapshotLocked())

	return errors.Join(errs...)
}

// Close stops the session and releases every resource, including the
// detector. Errors are joined; every resource is released regardless.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true

	errs := []error{s.stopLocked()}
	if err := s.cfg.Detector.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close detector: %w", err))
	}
	if s.cfg.Motion != nil {
		s.cfg.Motion.Close()
	}
	s.rendered.Close()
	s.reference.Close()
	s.mu.Unlock()

	if s.cfg.Plugins != nil {
		s.cfg.Plugins.Wait()
	}

	s.subMu.Lock()
	for ch := range s.subs {
		close(ch)
		delete(s.subs, ch)
	}
	s.subMu.Unlock()

	err := errors.Join(errs...)
	if err != nil {
		s.log.Error().Err(err).Msg("session closed with errors")
	}
	return err
}

// Subscribe returns a channel receiving a snapshot after every tick and state
// change, and a function that cancels the subscription. Slow subscribers
// miss snapshots.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, subscriberBuffer)

	s.subMu.Lock()
	s.subs[ch] = struct{}{}
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			if _, ok := s.subs[ch]; ok {
				delete(s.subs, ch)
				close(ch)
			}
		})
	}
}

func (s *Session) publish(snap Snapshot) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}
