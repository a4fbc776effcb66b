package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ayusman/fitcheck/internal/config"
	"github.com/ayusman/fitcheck/internal/detector"
	"github.com/ayusman/fitcheck/internal/exercise"
	"github.com/ayusman/fitcheck/internal/store"
)

// newDetector builds the configured detector, wrapped in a Recorder when a
// recording path is set. exerciseName picks the synthetic motion of the mock.
func newDetector(cfg config.DetectorConfig, exerciseName string) (detector.Detector, error) {
	var d detector.Detector

	switch cfg.Type {
	case "mediapipe":
		md, err := detector.NewMediaPipeDetector(detector.Config{
			MinConfidence:   cfg.MinConfidence,
			MinTrackingConf: cfg.MinTracking,
			ModelComplexity: cfg.ModelComplexity,
			ScriptPath:      cfg.Script,
			PythonPath:      cfg.Python,
		})
		if err != nil {
			return nil, fmt.Errorf("mediapipe detector: %w", err)
		}
		d = md
	case "replay":
		if cfg.Replay == "" {
			return nil, fmt.Errorf("detector.replay must name a recording")
		}
		rd, err := detector.OpenReplay(cfg.Replay, true)
		if err != nil {
			return nil, err
		}
		d = rd
	case "mock":
		d = detector.NewReplayDetector(demoPoses(exerciseName), true)
	default:
		return nil, fmt.Errorf("unknown detector type %q (want mediapipe, replay or mock)", cfg.Type)
	}

	if cfg.Record != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Record), 0755); err != nil {
			d.Close()
			return nil, fmt.Errorf("create recording dir: %w", err)
		}
		f, err := os.Create(cfg.Record)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("create recording: %w", err)
		}
		d = detector.NewRecorder(d, f)
	}

	return d, nil
}

// demoPoses is one synthetic repetition of the exercise, from extended to
// fully bent and back.
func demoPoses(exerciseName string) []*detector.Pose {
	var poses []*detector.Pose
	add := func(deg float64) {
		if exerciseName == "squat" {
			poses = append(poses, detector.SquatPose(deg))
		} else {
			poses = append(poses, detector.CurlPose("both", deg))
		}
	}

	for deg := 170.0; deg >= 20; deg -= 5 {
		add(deg)
	}
	for deg := 20.0; deg <= 170; deg += 5 {
		add(deg)
	}
	return poses
}

// loadCustomExercises registers every stored custom exercise. Invalid rows
// are logged and skipped.
func loadCustomExercises(st *store.Store, registry *exercise.Registry, log zerolog.Logger) {
	rows, err := st.Exercises().List()
	if err != nil {
		log.Warn().Err(err).Msg("failed to load custom exercises")
		return
	}

	for _, row := range rows {
		var def exercise.Definition
		if err := json.Unmarshal(row.Definition, &def); err != nil {
			log.Warn().Err(err).Str("exercise", row.Name).Msg("skipping unreadable exercise")
			continue
		}
		def.Name = row.Name
		if err := registry.Register(def); err != nil {
			log.Warn().Err(err).Str("exercise", row.Name).Msg("skipping invalid exercise")
			continue
		}
		log.Debug().Str("exercise", row.Name).Msg("custom exercise loaded")
	}
}

// selection picks the starting exercise and side. Explicit flags, config
// file entries and environment variables win over the selection saved by the
// last run. A saved selection
// the registry can no longer resolve is ignored.
func selection(cfg *config.Config, v *viper.Viper, fs *pflag.FlagSet, st *store.Store, registry *exercise.Registry) (string, exercise.Side) {
	explicit := func(key string) bool {
		if _, ok := os.LookupEnv(config.EnvVar(key)); ok {
			return true
		}
		return v.InConfig(key) || (fs != nil && fs.Changed(key))
	}

	name := cfg.Exercise.Name
	side := cfg.Exercise.Side
	if !explicit("exercise.name") {
		savedName := st.Settings().GetOr(store.SettingExercise, name)
		savedSide := side
		if !explicit("exercise.side") {
			savedSide = st.Settings().GetOr(store.SettingSide, side)
		}
		if resolvable(registry, savedName, savedSide) {
			name, side = savedName, savedSide
		}
	}

	parsed, err := exercise.ParseSide(side)
	if err != nil {
		parsed = ""
	}
	return name, parsed
}

func resolvable(registry *exercise.Registry, name, side string) bool {
	sd, err := exercise.ParseSide(side)
	if err != nil {
		return false
	}
	_, err = registry.Resolve(name, sd)
	return err == nil
}

// staticDir returns the configured dashboard directory or the first "web"
// directory found next to the working directory or in the data directory.
func staticDir(configured string) string {
	if configured != "" {
		return configured
	}

	candidates := []string{"web", "../web", "../../web", filepath.Join(config.DefaultDataDir(), "web")}
	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}
	return ""
}

// dashboardURL turns a listen address into a browsable URL.
func dashboardURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}

// openBrowser opens url with the platform's default handler.
func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
