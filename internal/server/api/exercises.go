package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/ayusman/fitcheck/internal/exercise"
	"github.com/ayusman/fitcheck/internal/store"
)

// ActiveExercise is the counter currently using an exercise definition.
type ActiveExercise interface {
	Definition() exercise.Definition
	Select(name, side string) error
}

// ExerciseHandler serves the exercise dispatch table. Built-in exercises are
// read-only; custom ones are persisted in the store.
type ExerciseHandler struct {
	registry *exercise.Registry
	store    *store.Store
	active   ActiveExercise
}

// NewExerciseHandler creates a new ExerciseHandler. active may be nil; when
// set, edits to its exercise are applied immediately and deleting it is
// refused.
func NewExerciseHandler(registry *exercise.Registry, s *store.Store, active ActiveExercise) *ExerciseHandler {
	return &ExerciseHandler{registry: registry, store: s, active: active}
}

func (h *ExerciseHandler) inUse(name string) bool {
	return h.active != nil && h.active.Definition().Name == name
}

// ServeHTTP routes /api/exercises and /api/exercises/{name}.
func (h *ExerciseHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r, "/api/exercises")

	switch len(parts) {
	case 0:
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.create(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case 1:
		name := parts[0]
		switch r.Method {
		case http.MethodGet:
			h.get(w, r, name)
		case http.MethodPut:
			h.update(w, r, name)
		case http.MethodDelete:
			h.delete(w, r, name)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	default:
		http.NotFound(w, r)
	}
}

type listExercisesResponse struct {
	Exercises []exercise.Definition `json:"exercises"`
}

// list handles GET /api/exercises.
func (h *ExerciseHandler) list(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, listExercisesResponse{Exercises: h.registry.List()})
}

// get handles GET /api/exercises/{name}.
func (h *ExerciseHandler) get(w http.ResponseWriter, r *http.Request, name string) {
	def, err := h.registry.Get(name)
	if err != nil {
		writeError(w, http.StatusNotFound, "Exercise not found")
		return
	}
	writeJSON(w, http.StatusOK, def)
}

// create handles POST /api/exercises and registers a custom exercise.
func (h *ExerciseHandler) create(w http.ResponseWriter, r *http.Request) {
	var def exercise.Definition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := def.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := h.registry.Get(def.Name); err == nil {
		writeError(w, http.StatusConflict, "Exercise already exists")
		return
	}

	def.BuiltIn = false
	raw, err := json.Marshal(def)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to encode exercise")
		return
	}

	row := &store.Exercise{ID: uuid.New().String(), Name: def.Name, Definition: raw}
	if err := h.store.Exercises().Create(row); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create exercise")
		return
	}
	if err := h.registry.Register(def); err != nil {
		h.store.Exercises().Delete(def.Name)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, def)
}

// update handles PUT /api/exercises/{name}. The name in the path wins over the
// one in the body.
func (h *ExerciseHandler) update(w http.ResponseWriter, r *http.Request, name string) {
	existing, err := h.registry.Get(name)
	if err != nil {
		writeError(w, http.StatusNotFound, "Exercise not found")
		return
	}
	if existing.BuiltIn {
		writeError(w, http.StatusConflict, "Built-in exercises cannot be modified")
		return
	}

	var def exercise.Definition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	def.Name = name
	def.BuiltIn = false
	if err := def.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	raw, err := json.Marshal(def)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to encode exercise")
		return
	}
	if err := h.store.Exercises().Update(&store.Exercise{Name: name, Definition: raw}); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Exercise not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to update exercise")
		return
	}
	if err := h.registry.Register(def); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if h.inUse(name) {
		side := string(h.active.Definition().Side)
		err := h.active.Select(name, side)
		if errors.Is(err, exercise.ErrInvalidSide) {
			err = h.active.Select(name, "")
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to apply exercise")
			return
		}
	}

	writeJSON(w, http.StatusOK, def)
}

// delete handles DELETE /api/exercises/{name}.
func (h *ExerciseHandler) delete(w http.ResponseWriter, r *http.Request, name string) {
	if def, err := h.registry.Get(name); err == nil && !def.BuiltIn && h.inUse(name) {
		writeError(w, http.StatusConflict, "Exercise is in use")
		return
	}

	if err := h.registry.Unregister(name); err != nil {
		switch {
		case errors.Is(err, exercise.ErrBuiltIn):
			writeError(w, http.StatusConflict, "Built-in exercises cannot be deleted")
		case errors.Is(err, exercise.ErrUnknownExercise):
			writeError(w, http.StatusNotFound, "Exercise not found")
		default:
			writeError(w, http.StatusInternalServerError, "Failed to delete exercise")
		}
		return
	}

	if err := h.store.Exercises().Delete(name); err != nil && !errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "Failed to delete exercise")
		return
	}

	settings := h.store.Settings()
	if saved, err := settings.Get(store.SettingExercise); err == nil && saved == name {
		if err := errors.Join(settings.Delete(store.SettingExercise), settings.Delete(store.SettingSide)); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to clear saved selection")
			return
		}
	}

	w.WriteHeader(http.StatusNoContent)
}
