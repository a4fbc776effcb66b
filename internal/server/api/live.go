package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ayusman/fitcheck/internal/exercise"
	"github.com/ayusman/fitcheck/internal/session"
)

// Controller is the part of a session the live endpoints drive.
type Controller interface {
	Snapshot() session.Snapshot
	Start() error
	Stop() error
	Reset()
	Select(name, side string) error
}

// LiveHandler exposes the running session: its state and controls.
type LiveHandler struct {
	ctl Controller
}

// NewLiveHandler creates a new LiveHandler.
func NewLiveHandler(ctl Controller) *LiveHandler {
	return &LiveHandler{ctl: ctl}
}

type selectRequest struct {
	Exercise string `json:"exercise"`
	Side     string `json:"side"`
}

// ServeHTTP routes /api/live/{state,start,stop,reset,select}.
func (h *LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r, "/api/live")
	if len(parts) != 1 {
		http.NotFound(w, r)
		return
	}

	if parts[0] == "state" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, h.ctl.Snapshot())
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch parts[0] {
	case "start":
		if err := h.ctl.Start(); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	case "stop":
		if err := h.ctl.Stop(); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	case "reset":
		h.ctl.Reset()
	case "select":
		var req selectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		if req.Exercise == "" {
			writeError(w, http.StatusBadRequest, "exercise is required")
			return
		}
		if err := h.ctl.Select(req.Exercise, req.Side); err != nil {
			switch {
			case errors.Is(err, exercise.ErrUnknownExercise):
				writeError(w, http.StatusNotFound, err.Error())
			case errors.Is(err, exercise.ErrInvalidSide):
				writeError(w, http.StatusBadRequest, err.Error())
			default:
				writeError(w, http.StatusInternalServerError, err.Error())
			}
			return
		}
	default:
		http.NotFound(w, r)
		return
	}

	writeJSON(w, http.StatusOK, h.ctl.Snapshot())
}
