package detector

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// ErrReplayExhausted is returned by a non-looping ReplayDetector after the last
// recorded frame has been played.
var ErrReplayExhausted = errors.New("replay exhausted")

// frameRecord is one line of a landmark recording. Landmarks are keyed by
// snake_case name; landmarks absent from the map are treated as not visible.
// An empty map records a frame without detection.
type frameRecord struct {
	TimestampMs int64               `json:"t"`
	Landmarks   map[string]Landmark `json:"landmarks"`
}

func (r frameRecord) toPose() (*Pose, error) {
	if len(r.Landmarks) == 0 {
		return nil, nil
	}

	p := &Pose{Score: 1.0}
	for name, l := range r.Landmarks {
		i, err := LandmarkIndex(name)
		if err != nil {
			return nil, err
		}
		p.Landmarks[i] = l
	}
	return p, nil
}

// ReadRecording parses a JSON-lines landmark recording.
func ReadRecording(r io.Reader) ([]*Pose, error) {
	var poses []*Pose

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}

		var rec frameRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		p, err := rec.toPose()
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		poses = append(poses, p)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return poses, nil
}

// ReplayDetector plays back a recorded landmark stream, one recorded frame per
// Detect call, ignoring the frame it is given.
type ReplayDetector struct {
	mu    sync.Mutex
	poses []*Pose
	index int
	loop  bool
}

// NewReplayDetector creates a detector that replays the given poses.
func NewReplayDetector(poses []*Pose, loop bool) *ReplayDetector {
	return &ReplayDetector{poses: poses, loop: loop}
}

// OpenReplay loads a recording file and returns a detector replaying it.
func OpenReplay(path string, loop bool) (*ReplayDetector, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}
	defer f.Close()

	poses, err := ReadRecording(f)
	if err != nil {
		return nil, fmt.Errorf("read recording %s: %w", path, err)
	}

	return NewReplayDetector(poses, loop), nil
}

// Detect returns the next recorded pose.
func (d *ReplayDetector) Detect(frame *gocv.Mat) (*Pose, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.poses) == 0 {
		return nil, ErrReplayExhausted
	}

	if d.index >= len(d.poses) {
		if !d.loop {
			return nil, ErrReplayExhausted
		}
		d.index = 0
	}

	p := d.poses[d.index]
	d.index++
	return p.Clone(), nil
}

// Remaining returns the number of frames left before the recording ends.
func (d *ReplayDetector) Remaining() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.poses) - d.index
}

// Close is a no-op for the replay detector.
func (d *ReplayDetector) Close() error {
	return nil
}

// Recorder wraps a Detector and appends every detection result to a JSON-lines
// recording that ReplayDetector can play back.
type Recorder struct {
	inner Detector
	w     io.WriteCloser
	enc   *json.Encoder
	start time.Time
	err   error
	mu    sync.Mutex
}

// NewRecorder creates a recording detector writing to w.
func NewRecorder(inner Detector, w io.WriteCloser) *Recorder {
	return &Recorder{
		inner: inner,
		w:     w,
		enc:   json.NewEncoder(w),
		start: time.Now(),
	}
}

// Detect runs the wrapped detector and records its result. Detection errors
// are passed through without being recorded. The first write failure stops
// recording and is reported by Close.
func (r *Recorder) Detect(frame *gocv.Mat) (*Pose, error) {
	p, err := r.inner.Detect(frame)
	if err != nil {
		return nil, err
	}

	rec := frameRecord{
		TimestampMs: time.Since(r.start).Milliseconds(),
		Landmarks:   map[string]Landmark{},
	}
	if p != nil {
		for i, l := range p.Landmarks {
			rec.Landmarks[landmarkNames[i]] = l
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err == nil {
		if err := r.enc.Encode(rec); err != nil {
			r.err = fmt.Errorf("record frame: %w", err)
		}
	}

	return p, nil
}

// Close closes the wrapped detector and the recording.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return errors.Join(r.err, r.inner.Close(), r.w.Close())
}
