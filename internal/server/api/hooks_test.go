package api

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ayusman/fitcheck/internal/plugin"
	"github.com/ayusman/fitcheck/internal/store"
)

func newTestManager(t *testing.T) *plugin.Manager {
	t.Helper()

	dir := t.TempDir()
	pluginDir := filepath.Join(dir, "announce")
	if err := os.MkdirAll(pluginDir, 0755); err != nil {
		t.Fatalf("failed to create plugin dir: %v", err)
	}
	manifest := `{"name":"announce","version":"1.0.0","executable":"announce","events":["rep"],"actions":["say"]}`
	if err := os.WriteFile(filepath.Join(pluginDir, plugin.ManifestFile), []byte(manifest), 0644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(pluginDir, "announce"), []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatalf("failed to write executable: %v", err)
	}

	m := plugin.NewManager(dir, zerolog.Nop())
	if err := m.Discover(); err != nil {
		t.Fatalf("failed to discover plugins: %v", err)
	}
	return m
}

func TestHookHandler_CRUD(t *testing.T) {
	s := newTestStore(t)
	handler := NewHookHandler(s, newTestManager(t))

	rec := do(t, handler, http.MethodPost, "/api/hooks", map[string]any{
		"event":       "rep",
		"exercise":    "curl",
		"plugin_name": "announce",
		"action_name": "say",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}
	var created hookResponse
	decode(t, rec, &created)
	if created.ID == "" || !created.Enabled {
		t.Errorf("unexpected hook: %+v", created)
	}
	if string(created.Config) != "{}" {
		t.Errorf("expected default config {}, got %s", created.Config)
	}

	rec = do(t, handler, http.MethodGet, "/api/hooks", nil)
	var list listHooksResponse
	decode(t, rec, &list)
	if len(list.Hooks) != 1 {
		t.Fatalf("expected 1 hook, got %d", len(list.Hooks))
	}

	rec = do(t, handler, http.MethodPut, "/api/hooks/"+created.ID, map[string]any{
		"exercise": "",
		"enabled":  false,
		"config":   map[string]any{"every": 5},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	stored, err := s.Hooks().GetByID(created.ID)
	if err != nil {
		t.Fatalf("failed to get hook: %v", err)
	}
	if stored.Enabled || stored.Exercise != "" || stored.Event != store.EventRep {
		t.Errorf("unexpected stored hook: %+v", stored)
	}

	if rec := do(t, handler, http.MethodGet, "/api/hooks/"+created.ID, nil); rec.Code != http.StatusOK {
		t.Errorf("get: expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if rec := do(t, handler, http.MethodDelete, "/api/hooks/"+created.ID, nil); rec.Code != http.StatusNoContent {
		t.Errorf("delete: expected status %d, got %d", http.StatusNoContent, rec.Code)
	}
	if rec := do(t, handler, http.MethodGet, "/api/hooks/"+created.ID, nil); rec.Code != http.StatusNotFound {
		t.Errorf("get after delete: expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestHookHandler_Validation(t *testing.T) {
	handler := NewHookHandler(newTestStore(t), newTestManager(t))

	tests := []struct {
		name string
		body map[string]any
	}{
		{"unknown event", map[string]any{"event": "jump", "plugin_name": "announce", "action_name": "say"}},
		{"missing plugin", map[string]any{"event": "rep", "action_name": "say"}},
		{"missing action", map[string]any{"event": "rep", "plugin_name": "announce"}},
		{"unknown plugin", map[string]any{"event": "rep", "plugin_name": "nope", "action_name": "say"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, handler, http.MethodPost, "/api/hooks", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
			}
		})
	}
}

func TestHookHandler_WithoutManager(t *testing.T) {
	handler := NewHookHandler(newTestStore(t), nil)

	rec := do(t, handler, http.MethodPost, "/api/hooks", map[string]any{
		"event":       "session_end",
		"plugin_name": "anything",
		"action_name": "log",
	})
	if rec.Code != http.StatusCreated {
		t.Errorf("expected status %d, got %d", http.StatusCreated, rec.Code)
	}
}

func TestPluginHandler(t *testing.T) {
	handler := NewPluginHandler(newTestManager(t))

	rec := do(t, handler, http.MethodGet, "/api/plugins", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var response listPluginsResponse
	decode(t, rec, &response)
	if len(response.Plugins) != 1 || response.Plugins[0].Name != "announce" {
		t.Errorf("unexpected plugins: %+v", response.Plugins)
	}

	if rec := do(t, NewPluginHandler(nil), http.MethodGet, "/api/plugins", nil); rec.Body.String() != "{\"plugins\":[]}\n" {
		t.Errorf("expected empty list, got %q", rec.Body.String())
	}
}
