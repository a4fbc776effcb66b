package main

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ayusman/fitcheck/internal/logging"
	"github.com/ayusman/fitcheck/internal/session"
	"github.com/ayusman/fitcheck/internal/tray"
)

// runTray drives the session from a background loop and controls it from the
// system tray. It returns when the tray quits or ctx is cancelled.
func runTray(ctx context.Context, sess *session.Session, dashboard string, logger zerolog.Logger) error {
	log := logging.Component(logger, "tray")
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	t := tray.New(tray.DefaultChoices())
	t.SetRunning(sess.Running())

	t.OnToggle(func(running bool) {
		var err error
		if running {
			err = sess.Start()
		} else {
			err = sess.Stop()
		}
		if err != nil {
			log.Warn().Err(err).Bool("running", running).Msg("toggle failed")
			t.SetRunning(sess.Running())
		}
	})
	t.OnSelect(func(c tray.Choice) {
		if err := sess.Select(c.Exercise, c.Side); err != nil {
			log.Warn().Err(err).Str("exercise", c.Exercise).Msg("select failed")
		}
	})
	t.OnReset(sess.Reset)
	t.OnDashboard(func() {
		if err := openBrowser(dashboard); err != nil {
			log.Warn().Err(err).Str("url", dashboard).Msg("cannot open dashboard")
		}
	})
	t.OnQuit(cancel)

	snaps, unsubscribe := sess.Subscribe()
	defer unsubscribe()
	go func() {
		wasRunning := sess.Running()
		for snap := range snaps {
			if wasRunning && !snap.Running {
				t.SetLastReps(sess.Last().Reps)
			}
			if snap.Running != wasRunning {
				t.SetRunning(snap.Running)
			}
			wasRunning = snap.Running
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- sess.Run(ctx)
	}()
	go func() {
		<-ctx.Done()
		t.Quit()
	}()

	t.Run()
	cancel()
	return <-errCh
}
