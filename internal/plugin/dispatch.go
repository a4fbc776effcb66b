package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ayusman/fitcheck/internal/store"
	"github.com/rs/zerolog"
)

// HookSource lists the stored hooks bound to an event.
type HookSource interface {
	ListForEvent(event, exercise string) ([]*store.Hook, error)
}

// Event is a session event delivered to plugins. Params is encoded as the
// request's params.
type Event struct {
	Name     string
	Exercise string
	Params   any
}

// Dispatcher delivers events to the plugins subscribed through their
// manifest and to the plugin actions bound by stored hooks. Failures are
// logged and never stop the caller.
type Dispatcher struct {
	manager  *Manager
	executor *Executor
	hooks    HookSource
	logger   zerolog.Logger

	wg sync.WaitGroup
}

// NewDispatcher creates a Dispatcher. hooks may be nil.
func NewDispatcher(manager *Manager, executor *Executor, hooks HookSource, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		manager:  manager,
		executor: executor,
		hooks:    hooks,
		logger:   logger,
	}
}

type target struct {
	plugin *Plugin
	action string
	config json.RawMessage
}

func (d *Dispatcher) targets(ev Event) []target {
	var ts []target
	for _, p := range d.manager.Subscribers(ev.Name) {
		ts = append(ts, target{plugin: p, action: p.DefaultAction(ev.Name)})
	}

	if d.hooks == nil {
		return ts
	}
	hooks, err := d.hooks.ListForEvent(ev.Name, ev.Exercise)
	if err != nil {
		d.logger.Error().Err(err).Str("event", ev.Name).Msg("failed to list hooks")
		return ts
	}
	for _, h := range hooks {
		p, err := d.manager.Get(h.PluginName)
		if err != nil {
			d.logger.Warn().Str("hook", h.ID).Str("plugin", h.PluginName).Msg("hook references unknown plugin")
			continue
		}
		ts = append(ts, target{plugin: p, action: h.ActionName, config: h.Config})
	}
	return ts
}

// Dispatch runs every target of ev in turn and returns the joined failures.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) error {
	params, err := json.Marshal(ev.Params)
	if err != nil {
		return fmt.Errorf("encode %s params: %w", ev.Name, err)
	}

	var errs []error
	for _, t := range d.targets(ev) {
		req := &Request{
			Event:    ev.Name,
			Action:   t.action,
			Exercise: ev.Exercise,
			Config:   t.config,
			Params:   params,
		}
		if len(req.Config) == 0 {
			req.Config = json.RawMessage("{}")
		}

		log := d.logger.With().Str("plugin", t.plugin.Manifest.Name).Str("event", ev.Name).Str("action", t.action).Logger()

		resp, err := d.executor.Execute(ctx, t.plugin, req)
		if err != nil {
			log.Error().Err(err).Msg("plugin run failed")
			errs = append(errs, err)
			continue
		}
		if !resp.Success {
			err := fmt.Errorf("plugin %s: %s", t.plugin.Manifest.Name, resp.Error)
			log.Warn().Str("error", resp.Error).Msg("plugin reported failure")
			errs = append(errs, err)
			continue
		}
		log.Debug().Msg("plugin run ok")
	}
	return errors.Join(errs...)
}

// Go dispatches ev in the background. Wait blocks until all background
// dispatches are done.
func (d *Dispatcher) Go(ctx context.Context, ev Event) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		_ = d.Dispatch(ctx, ev)
	}()
}

// Wait blocks until every dispatch started with Go has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
