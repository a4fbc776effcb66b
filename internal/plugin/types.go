// Package plugin runs external hook programs on rep counter events.
package plugin

import (
	"encoding/json"
	"slices"

	"github.com/ayusman/fitcheck/internal/store"
)

// Events a plugin can subscribe to.
const (
	EventRep        = store.EventRep
	EventSessionEnd = store.EventSessionEnd
)

// Manifest describes a plugin's metadata and the events it listens to.
type Manifest struct {
	Name         string          `json:"name"`
	Version      string          `json:"version"`
	Description  string          `json:"description"`
	Executable   string          `json:"executable"`
	Events       []string        `json:"events"`
	Actions      []string        `json:"actions"`
	ConfigSchema json.RawMessage `json:"configSchema,omitempty"`
}

// Request is written to the plugin's stdin as JSON.
type Request struct {
	Event    string          `json:"event"`
	Action   string          `json:"action"`
	Exercise string          `json:"exercise"`
	Config   json.RawMessage `json:"config"`
	Params   json.RawMessage `json:"params"`
}

// Response is read from the plugin's stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin is a discovered plugin with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}

// Subscribes reports whether the manifest lists event.
func (p *Plugin) Subscribes(event string) bool {
	return slices.Contains(p.Manifest.Events, event)
}

// DefaultAction is the action sent for manifest subscriptions: the first
// declared action, or the event name when none is declared.
func (p *Plugin) DefaultAction(event string) string {
	if len(p.Manifest.Actions) > 0 {
		return p.Manifest.Actions[0]
	}
	return event
}
