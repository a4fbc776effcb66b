package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ayusman/fitcheck/internal/capture"
	"github.com/ayusman/fitcheck/internal/config"
	"github.com/ayusman/fitcheck/internal/exercise"
	"github.com/ayusman/fitcheck/internal/logging"
	"github.com/ayusman/fitcheck/internal/metrics"
	"github.com/ayusman/fitcheck/internal/plugin"
	"github.com/ayusman/fitcheck/internal/server"
	"github.com/ayusman/fitcheck/internal/session"
	"github.com/ayusman/fitcheck/internal/store"
	"github.com/ayusman/fitcheck/internal/ui"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "fitcheck:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := config.Flags()
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	v := viper.New()
	cfg, err := config.Load(v, fs)
	if err != nil {
		return err
	}

	graylogAddr := ""
	if cfg.Graylog.Enabled {
		graylogAddr = cfg.Graylog.Address
	}
	logger, sinks, err := logging.New(logging.Options{
		Level:       cfg.Log.Level,
		File:        cfg.Log.File,
		GraylogAddr: graylogAddr,
	})
	if err != nil {
		return err
	}
	defer sinks.Close()

	log := logging.Component(logger, "main")
	log.Info().Str("mode", cfg.Mode).Str("config", v.ConfigFileUsed()).Msg("FitCheck starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.New(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	registry := exercise.NewRegistry()
	loadCustomExercises(st, registry, log)
	name, side := selection(cfg, v, fs, st, registry)

	det, err := newDetector(cfg.Detector, name)
	if err != nil {
		return err
	}

	m, err := metrics.New()
	if err != nil {
		det.Close()
		return err
	}
	recorders := metrics.Multi{m}
	if cfg.Influx.Enabled {
		ix, err := metrics.NewInflux(ctx, metrics.InfluxOptions{
			URL:        cfg.Influx.URL,
			Token:      cfg.Influx.Token,
			Org:        cfg.Influx.Org,
			Bucket:     cfg.Influx.Bucket,
			BackupFile: cfg.Influx.BackupFile,
			Logger:     logging.Component(logger, "influx"),
		})
		if err != nil {
			log.Warn().Err(err).Msg("InfluxDB recorder disabled")
		} else {
			defer ix.Close()
			recorders = append(recorders, ix)
		}
	}

	manager := plugin.NewManager(cfg.Plugins.Dir, logging.Component(logger, "plugin"))
	if err := manager.Discover(); err != nil {
		log.Warn().Err(err).Str("dir", cfg.Plugins.Dir).Msg("plugin discovery failed")
	}
	dispatcher := plugin.NewDispatcher(manager, plugin.NewExecutor(cfg.Plugins.Timeout), st.Hooks(), logging.Component(logger, "dispatch"))

	var motion *capture.MotionGate
	if cfg.Motion.Enabled {
		motion = capture.NewMotionGate(cfg.Motion.Threshold, cfg.Motion.IdleFrames)
	}

	var reference capture.Camera
	if cfg.Video.Reference != "" {
		reference = capture.NewVideoFile(cfg.Video.Reference, true)
	}

	camera := capture.New(cfg.Video.Input, cfg.Video.Loop, capture.Options{
		DeviceID: cfg.Camera.Device,
		Width:    cfg.Camera.Width,
		Height:   cfg.Camera.Height,
		FPS:      cfg.Camera.FPS,
	})

	sess, err := session.New(session.Config{
		Camera:        camera,
		Detector:      det,
		Reference:     reference,
		Registry:      registry,
		Exercise:      name,
		Side:          side,
		MinVisibility: cfg.Exercise.MinVisibility,
		Countdown:     cfg.Session.Countdown,
		Tick:          cfg.Session.Tick,
		Mirror:        cfg.Session.Mirror,
		StopAtEnd:     cfg.Video.Input != "" && !cfg.Video.Loop,
		Motion:        motion,
		Store:         st,
		Metrics:       m,
		Recorder:      recorders,
		Plugins:       dispatcher,
		Logger:        logger,
	})
	if err != nil {
		det.Close()
		if motion != nil {
			motion.Close()
		}
		return err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.Warn().Err(err).Msg("session close")
		}
	}()

	if cfg.Server.Enabled {
		srv := server.New(server.Config{
			StaticDir: staticDir(cfg.Server.StaticDir),
			Store:     st,
			Registry:  registry,
			Session:   sess,
			Plugins:   manager,
			Logger:    logging.Component(logger, "server"),
		})
		go func() {
			if err := srv.Run(ctx, cfg.Server.Addr); err != nil {
				log.Error().Err(err).Msg("dashboard stopped")
			}
		}()
	}

	if cfg.Session.AutoStart || cfg.Mode == "headless" {
		if err := sess.Start(); err != nil {
			return err
		}
	}

	switch cfg.Mode {
	case "window":
		return ui.New("FitCheck", sess, logger).Run(ctx)
	case "tray":
		return runTray(ctx, sess, dashboardURL(cfg.Server.Addr), logger)
	case "headless":
		return runHeadless(ctx, sess, log)
	default:
		return fmt.Errorf("unknown mode %q (want window, tray or headless)", cfg.Mode)
	}
}

// runHeadless counts until interrupted or the input ends.
func runHeadless(ctx context.Context, sess *session.Session, log zerolog.Logger) error {
	if err := sess.Run(ctx); err != nil {
		return err
	}
	if err := sess.Stop(); err != nil {
		log.Warn().Err(err).Msg("stop failed")
	}
	last := sess.Last()
	log.Info().Str("exercise", last.Exercise).Int("reps", last.Reps).Dur("duration", last.Duration()).Msg("done")
	return nil
}
