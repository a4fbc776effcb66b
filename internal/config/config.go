// Package config loads FitCheck settings from defaults, an optional
// fitcheck.json file, FITCHECK_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// FileName is the configuration file looked up in the search path.
const FileName = "fitcheck.json"

// EnvPrefix prefixes the environment variables that override settings.
const EnvPrefix = "FITCHECK"

var envKeyReplacer = strings.NewReplacer(".", "_")

// EnvVar returns the environment variable that overrides key, for example
// FITCHECK_SERVER_ADDR for server.addr.
func EnvVar(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(envKeyReplacer.Replace(key))
}

// Config is the typed view of all settings.
type Config struct {
	Mode     string         `mapstructure:"mode"`
	DataDir  string         `mapstructure:"dataDir"`
	Log      LogConfig      `mapstructure:"log"`
	Graylog  GraylogConfig  `mapstructure:"graylog"`
	Camera   CameraConfig   `mapstructure:"camera"`
	Video    VideoConfig    `mapstructure:"video"`
	Detector DetectorConfig `mapstructure:"detector"`
	Exercise ExerciseConfig `mapstructure:"exercise"`
	Session  SessionConfig  `mapstructure:"session"`
	Motion   MotionConfig   `mapstructure:"motion"`
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Plugins  PluginsConfig  `mapstructure:"plugins"`
	Influx   InfluxConfig   `mapstructure:"influx"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type GraylogConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

type CameraConfig struct {
	Device int `mapstructure:"device"`
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`
	FPS    int `mapstructure:"fps"`
}

// VideoConfig selects a video file as input instead of the camera, and the
// instructional reference video shown next to it.
type VideoConfig struct {
	Input     string `mapstructure:"input"`
	Loop      bool   `mapstructure:"loop"`
	Reference string `mapstructure:"reference"`
}

type DetectorConfig struct {
	Type            string  `mapstructure:"type"`
	Script          string  `mapstructure:"script"`
	Python          string  `mapstructure:"python"`
	MinConfidence   float64 `mapstructure:"minConfidence"`
	MinTracking     float64 `mapstructure:"minTracking"`
	ModelComplexity int     `mapstructure:"modelComplexity"`
	Replay          string  `mapstructure:"replay"`
	Record          string  `mapstructure:"record"`
}

type ExerciseConfig struct {
	Name          string  `mapstructure:"name"`
	Side          string  `mapstructure:"side"`
	MinVisibility float64 `mapstructure:"minVisibility"`
}

type SessionConfig struct {
	Countdown time.Duration `mapstructure:"countdown"`
	Tick      time.Duration `mapstructure:"tick"`
	Mirror    bool          `mapstructure:"mirror"`
	AutoStart bool          `mapstructure:"autoStart"`
}

type MotionConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	Threshold  float64 `mapstructure:"threshold"`
	IdleFrames int     `mapstructure:"idleFrames"`
}

type ServerConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addr      string `mapstructure:"addr"`
	StaticDir string `mapstructure:"staticDir"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type PluginsConfig struct {
	Dir     string        `mapstructure:"dir"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type InfluxConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	URL        string `mapstructure:"url"`
	Token      string `mapstructure:"token"`
	Org        string `mapstructure:"org"`
	Bucket     string `mapstructure:"bucket"`
	BackupFile string `mapstructure:"backupFile"`
}

// DefaultDataDir returns ~/.fitcheck, or .fitcheck when the home directory
// is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".fitcheck"
	}
	return filepath.Join(home, ".fitcheck")
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	dataDir := DefaultDataDir()

	v.SetDefault("mode", "window")
	v.SetDefault("dataDir", dataDir)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")

	v.SetDefault("graylog.enabled", false)
	v.SetDefault("graylog.address", "localhost:12201")

	v.SetDefault("camera.device", 0)
	v.SetDefault("camera.width", 640)
	v.SetDefault("camera.height", 480)
	v.SetDefault("camera.fps", 30)

	v.SetDefault("video.input", "")
	v.SetDefault("video.loop", false)
	v.SetDefault("video.reference", "")

	v.SetDefault("detector.type", "mediapipe")
	v.SetDefault("detector.script", "")
	v.SetDefault("detector.python", "")
	v.SetDefault("detector.minConfidence", 0.5)
	v.SetDefault("detector.minTracking", 0.5)
	v.SetDefault("detector.modelComplexity", 1)
	v.SetDefault("detector.replay", "")
	v.SetDefault("detector.record", "")

	v.SetDefault("exercise.name", "curl")
	v.SetDefault("exercise.side", "")
	v.SetDefault("exercise.minVisibility", 0.5)

	v.SetDefault("session.countdown", "5s")
	v.SetDefault("session.tick", "30ms")
	v.SetDefault("session.mirror", true)
	v.SetDefault("session.autoStart", false)

	v.SetDefault("motion.enabled", false)
	v.SetDefault("motion.threshold", 1.0)
	v.SetDefault("motion.idleFrames", 90)

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.staticDir", "")

	v.SetDefault("store.path", filepath.Join(dataDir, "fitcheck.db"))

	v.SetDefault("plugins.dir", filepath.Join(dataDir, "plugins"))
	v.SetDefault("plugins.timeout", "5s")

	v.SetDefault("influx.enabled", false)
	v.SetDefault("influx.url", "http://localhost:8086")
	v.SetDefault("influx.token", "")
	v.SetDefault("influx.org", "fitcheck")
	v.SetDefault("influx.bucket", "reps")
	v.SetDefault("influx.backupFile", filepath.Join(dataDir, "influx_backup.log.gz"))
}

// Flags returns the command-line flag set. Flag names match config keys.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("fitcheck", pflag.ContinueOnError)
	fs.String("config", "", "directory containing "+FileName)
	fs.String("mode", "window", "window, tray or headless")
	fs.String("log.level", "info", "log level: debug, info, warn, error")
	fs.String("exercise.name", "curl", "exercise to count")
	fs.String("exercise.side", "", "left, right or both (default depends on exercise)")
	fs.Int("camera.device", 0, "camera device id")
	fs.String("video.input", "", "read frames from a video file instead of the camera")
	fs.String("video.reference", "", "instructional video shown next to the camera")
	fs.String("detector.type", "mediapipe", "mediapipe, replay or mock")
	fs.String("detector.replay", "", "landmark recording to replay (detector.type=replay)")
	fs.String("detector.record", "", "write detected landmarks to this JSONL file")
	fs.String("server.addr", ":8080", "HTTP listen address")
	fs.Bool("server.enabled", true, "serve the HTTP API")
	fs.String("store.path", "", "SQLite database path")
	return fs
}

// Load builds a Config on v from defaults, the optional config file, the
// environment and the parsed flags, in increasing precedence. A missing
// config file is not an error.
func Load(v *viper.Viper, fs *pflag.FlagSet) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	if fs != nil {
		var bindErr error
		fs.VisitAll(func(f *pflag.Flag) {
			if f.Name == "config" || !f.Changed {
				return
			}
			if err := v.BindPFlag(f.Name, f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return nil, fmt.Errorf("bind flags: %w", bindErr)
		}
	}

	v.SetConfigName(FileName)
	v.SetConfigType("json")
	if fs != nil {
		if dir, _ := fs.GetString("config"); dir != "" {
			v.AddConfigPath(dir)
		}
	}
	v.AddConfigPath(".")
	v.AddConfigPath(DefaultDataDir())

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}
