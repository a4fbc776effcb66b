// Package ui shows the session composite in a native window and maps key
// presses to session commands.
package ui

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"github.com/ayusman/fitcheck/internal/capture"
)

// DefaultDelay is the WaitKey timeout in milliseconds; it paces the loop.
const DefaultDelay = 30

// Controller is the part of a session the window drives.
type Controller interface {
	Start() error
	Stop() error
	Reset()
	Select(name, side string) error
	Step() error
	Composite() gocv.Mat
}

// Window runs the interactive loop.
type Window struct {
	title    string
	ctl      Controller
	bindings []Binding
	delay    int
	logger   zerolog.Logger
}

// New creates a Window for ctl with the default bindings.
func New(title string, ctl Controller, logger zerolog.Logger) *Window {
	return &Window{
		title:    title,
		ctl:      ctl,
		bindings: DefaultBindings,
		delay:    DefaultDelay,
		logger:   logger.With().Str("component", "ui").Logger(),
	}
}

// Handle applies the binding of key. It reports whether the loop should quit.
func (w *Window) Handle(key int) (bool, error) {
	b, ok := Lookup(w.bindings, key)
	if !ok {
		return false, nil
	}

	switch b.Command {
	case CmdStart:
		return false, w.ctl.Start()
	case CmdSelect:
		return false, w.ctl.Select(b.Exercise, b.Side)
	case CmdReset:
		w.ctl.Reset()
	case CmdQuit:
		return true, nil
	}
	return false, nil
}

// Run shows frames until the user quits, the window is closed or ctx is
// cancelled. The session is stopped on return.
func (w *Window) Run(ctx context.Context) error {
	window := gocv.NewWindow(w.title)
	defer window.Close()

	defer func() {
		if err := w.ctl.Stop(); err != nil {
			w.logger.Warn().Err(err).Msg("stop failed")
		}
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := w.ctl.Step(); err != nil {
			if errors.Is(err, capture.ErrEndOfStream) {
				w.logger.Info().Msg("input finished")
			} else {
				w.logger.Debug().Err(err).Msg("tick skipped")
			}
		}

		img := w.ctl.Composite()
		window.IMShow(img)
		img.Close()

		key := window.WaitKey(w.delay)
		if window.GetWindowProperty(gocv.WindowPropertyVisible) < 1 {
			return nil
		}

		quit, err := w.Handle(key)
		if err != nil {
			w.logger.Warn().Err(err).Int("key", key).Msg("key command failed")
		}
		if quit {
			return nil
		}
	}
}
