package capture

import (
	"fmt"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// VideoFile is a Camera reading frames from a video file. A looping file seeks
// back to frame 0 when it runs out; the read that hits the end still returns
// ErrEndOfStream so the caller skips that cycle.
type VideoFile struct {
	path    string
	loop    bool
	capture *gocv.VideoCapture
	mu      sync.Mutex
	running bool
	fps     int
}

// NewVideoFile creates a video file source.
func NewVideoFile(path string, loop bool) *VideoFile {
	return &VideoFile{path: path, loop: loop}
}

// Path returns the file being played.
func (v *VideoFile) Path() string {
	return v.path
}

// Open opens the video file.
func (v *VideoFile) Open() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.running {
		return nil
	}

	if _, err := os.Stat(v.path); err != nil {
		return fmt.Errorf("open video: %w", err)
	}

	capture, err := gocv.VideoCaptureFile(v.path)
	if err != nil {
		return fmt.Errorf("open video %s: %w", v.path, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return fmt.Errorf("open video %s: unsupported or unreadable file", v.path)
	}

	v.capture = capture
	v.running = true
	if v.fps == 0 {
		v.fps = int(capture.Get(gocv.VideoCaptureFPS))
	}

	return nil
}

// Close releases the file handle.
func (v *VideoFile) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.running || v.capture == nil {
		v.running = false
		return nil
	}

	err := v.capture.Close()
	v.capture = nil
	v.running = false

	return err
}

// ReadFrame reads the next frame.
func (v *VideoFile) ReadFrame() (*gocv.Mat, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.running || v.capture == nil {
		return nil, ErrCameraNotOpen
	}

	mat, err := readMat(v.capture)
	if err != nil && v.loop {
		v.capture.Set(gocv.VideoCapturePosFrames, 0)
	}
	return mat, err
}

// Rewind seeks back to the first frame.
func (v *VideoFile) Rewind() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.capture != nil {
		v.capture.Set(gocv.VideoCapturePosFrames, 0)
	}
}

// SetFPS records the nominal frame rate. Files are read as fast as they are
// polled, so this does not change playback speed.
func (v *VideoFile) SetFPS(fps int) {
	if fps <= 0 {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.fps = fps
}

// FPS returns the file's frame rate, or the rate set with SetFPS.
func (v *VideoFile) FPS() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.fps
}

// IsOpen returns true if the file is open.
func (v *VideoFile) IsOpen() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.running
}

// New returns the Camera selected by the input setting: a video file path
// when non-empty, otherwise the camera device in opts. It is not opened.
func New(input string, loop bool, opts Options) Camera {
	if input != "" {
		return NewVideoFile(input, loop)
	}
	return NewCameraWithOptions(opts)
}
