package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ayusman/fitcheck/internal/exercise"
	"github.com/ayusman/fitcheck/internal/store"
)

func TestAPI_ExerciseAndHistoryWorkflow(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	registry := exercise.NewRegistry()
	srv := New(Config{Store: s, Registry: registry})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := ts.Client()

	// 1. Register a custom exercise
	createBody := `{
		"name": "press",
		"joints": [
			{"left": "left_hip", "right": "right_hip"},
			{"left": "left_shoulder", "right": "right_shoulder"},
			{"left": "left_elbow", "right": "right_elbow"}
		],
		"side": "both",
		"sides": ["left", "right", "both"],
		"high": 150,
		"low": 60,
		"count_on": "entering_high",
		"high_label": "up",
		"low_label": "down"
	}`
	resp, err := client.Post(ts.URL+"/api/exercises", "application/json", bytes.NewBufferString(createBody))
	if err != nil {
		t.Fatalf("POST /api/exercises error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	// 2. It shows up next to the built-ins
	resp, err = client.Get(ts.URL + "/api/exercises")
	if err != nil {
		t.Fatalf("GET /api/exercises error = %v", err)
	}
	var list struct {
		Exercises []struct {
			Name    string `json:"name"`
			BuiltIn bool   `json:"builtin"`
		} `json:"exercises"`
	}
	json.NewDecoder(resp.Body).Decode(&list)
	resp.Body.Close()
	if len(list.Exercises) != 3 {
		t.Fatalf("exercise count = %d, want 3", len(list.Exercises))
	}
	if list.Exercises[1].Name != "press" || list.Exercises[1].BuiltIn {
		t.Errorf("unexpected custom exercise entry: %+v", list.Exercises[1])
	}

	// 3. A recorded session is visible in the history
	started := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	if err := s.Sessions().Create(&store.Session{ID: "s1", Exercise: "press", Side: "both", StartedAt: started}); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := s.Reps().Create(&store.Rep{SessionID: "s1", Count: 1, Angle: 155, At: started.Add(3 * time.Second)}); err != nil {
		t.Fatalf("create rep: %v", err)
	}

	resp, err = client.Get(ts.URL + "/api/sessions/s1/reps")
	if err != nil {
		t.Fatalf("GET reps error = %v", err)
	}
	var reps struct {
		Reps []struct {
			Count int `json:"count"`
		} `json:"reps"`
	}
	json.NewDecoder(resp.Body).Decode(&reps)
	resp.Body.Close()
	if len(reps.Reps) != 1 || reps.Reps[0].Count != 1 {
		t.Errorf("reps = %+v, want one rep", reps.Reps)
	}

	// 4. Deleting the exercise removes it from the dispatch table
	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/exercises/press", nil)
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("DELETE error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("DELETE status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
	if _, err := registry.Get("press"); err == nil {
		t.Error("press should be unregistered")
	}
}

func TestServer_RoutesWithoutSession(t *testing.T) {
	srv := New(Config{})

	for _, path := range []string{"/api/live", "/api/live/state", "/api/stream", "/api/exercises"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected status %d, got %d", path, http.StatusNotFound, rec.Code)
		}
	}
}
