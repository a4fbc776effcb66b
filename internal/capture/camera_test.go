package capture

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestNewCameraWithOptions(t *testing.T) {
	tests := []struct {
		name       string
		opts       Options
		wantWidth  int
		wantHeight int
		wantFPS    int
	}{
		{"zero options", Options{}, DefaultWidth, DefaultHeight, DefaultFPS},
		{"second device", Options{DeviceID: 1}, DefaultWidth, DefaultHeight, DefaultFPS},
		{"hd at 15 fps", Options{Width: 1280, Height: 720, FPS: 15}, 1280, 720, 15},
		{"negative values", Options{Width: -1, Height: -1, FPS: -1}, DefaultWidth, DefaultHeight, DefaultFPS},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cam := NewCameraWithOptions(tt.opts)
			impl := cam.(*cameraImpl)
			if impl.opts.Width != tt.wantWidth || impl.opts.Height != tt.wantHeight {
				t.Errorf("size = %dx%d, want %dx%d", impl.opts.Width, impl.opts.Height, tt.wantWidth, tt.wantHeight)
			}
			if got := cam.FPS(); got != tt.wantFPS {
				t.Errorf("FPS() = %d, want %d", got, tt.wantFPS)
			}
			if cam.IsOpen() {
				t.Error("a new camera should not be open")
			}
		})
	}
}

func TestCamera_SetFPSKeepsLastValidRate(t *testing.T) {
	cam := NewCamera(0)
	for _, tc := range []struct{ set, want int }{{10, 10}, {1, 1}, {0, 1}, {-5, 1}, {DefaultFPS, DefaultFPS}} {
		cam.SetFPS(tc.set)
		if got := cam.FPS(); got != tc.want {
			t.Errorf("SetFPS(%d): FPS() = %d, want %d", tc.set, got, tc.want)
		}
	}
}

func TestCamera_NotOpened(t *testing.T) {
	cam := NewCamera(0)

	if _, err := cam.ReadFrame(); !errors.Is(err, ErrCameraNotOpen) {
		t.Errorf("ReadFrame() error = %v, want ErrCameraNotOpen", err)
	}
	if err := cam.Close(); err != nil {
		t.Errorf("Close() on a closed camera = %v, want nil", err)
	}
}

func TestCamera_Webcam(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping webcam test in short mode")
	}

	cam := NewCamera(0)
	if err := cam.Open(); err != nil {
		t.Skipf("no webcam: %v", err)
	}
	defer cam.Close()

	frame, err := cam.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	defer frame.Close()
	if frame.Empty() {
		t.Error("ReadFrame() returned an empty frame")
	}

	if err := cam.Close(); err != nil || cam.IsOpen() {
		t.Errorf("Close() = %v, IsOpen() = %v", err, cam.IsOpen())
	}
}

func TestVideoFile_Missing(t *testing.T) {
	v := NewVideoFile(filepath.Join(t.TempDir(), "missing.mp4"), true)

	if err := v.Open(); err == nil {
		t.Error("Open() should fail for a missing file")
	}
	if v.IsOpen() {
		t.Error("IsOpen() should be false after failed Open()")
	}
	if _, err := v.ReadFrame(); !errors.Is(err, ErrCameraNotOpen) {
		t.Errorf("ReadFrame() error = %v, want ErrCameraNotOpen", err)
	}
	if err := v.Close(); err != nil {
		t.Errorf("Close() on unopened file = %v", err)
	}
}

func TestNew_SelectsInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.avi")

	cam := New(path, true, DefaultOptions())
	v, ok := cam.(*VideoFile)
	if !ok {
		t.Fatalf("New() with a path returned %T, want *VideoFile", cam)
	}
	if v.Path() != path {
		t.Errorf("Path() = %q, want %q", v.Path(), path)
	}
	if cam.IsOpen() {
		t.Error("New() should not open the input")
	}

	if _, ok := New("", false, DefaultOptions()).(*cameraImpl); !ok {
		t.Error("New() without a path should return a camera device")
	}
}
