package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/example/aggregate-store/internal/infrastructure/store"
)

type Handlers struct {
	store *store.Store
}

func NewHandlers(s *store.Store) *Handlers {
	return &Handlers{store: s}
}

// CommitEvents handles POST /events. A sequence collision maps to 409 with
// retry_command set, telling the caller to recompute against fresh state.
func (h *Handlers) CommitEvents(w http.ResponseWriter, r *http.Request) {
	var events []store.Event
	if err := json.NewDecoder(r.Body).Decode(&events); err != nil {
		respondJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	committed, err := h.store.CommitEvents(r.Context(), events)
	switch {
	case errors.Is(err, store.ErrConflict):
		respondJSON(w, http.StatusConflict, map[string]any{
			"error":         "conflict",
			"retry_command": true,
		})
	case errors.Is(err, store.ErrEmptyBatch), errors.Is(err, store.ErrInvalidEvent):
		respondJSONError(w, err.Error(), http.StatusBadRequest)
	case err != nil:
		respondJSONError(w, err.Error(), http.StatusInternalServerError)
	default:
		respondJSON(w, http.StatusCreated, committed)
	}
}

// GetEvents handles GET /aggregates/{id}/events?after=N.
func (h *Handlers) GetEvents(w http.ResponseWriter, r *http.Request) {
	aggregateID := extractAggregateID(r.URL.Path, "/events")
	if aggregateID == "" {
		respondJSONError(w, "missing aggregate id", http.StatusBadRequest)
		return
	}

	after := 0
	if raw := r.URL.Query().Get("after"); raw != "" {
		var err error
		after, err = strconv.Atoi(raw)
		if err != nil {
			respondJSONError(w, "after must be an integer", http.StatusBadRequest)
			return
		}
	}

	events, err := h.store.GetEvents(r.Context(), aggregateID, after)
	if err != nil {
		respondJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []store.Event{}
	}
	respondJSON(w, http.StatusOK, events)
}

// CommitSnapshot handles PUT /snapshots. A stale snapshot is accepted and
// silently retained out of the cache, so the response is 200 either way.
func (h *Handlers) CommitSnapshot(w http.ResponseWriter, r *http.Request) {
	var snapshot store.Snapshot
	if err := json.NewDecoder(r.Body).Decode(&snapshot); err != nil {
		respondJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	err := h.store.CommitSnapshot(r.Context(), snapshot)
	switch {
	case errors.Is(err, store.ErrInvalidSnapshot):
		respondJSONError(w, err.Error(), http.StatusBadRequest)
	case err != nil:
		respondJSONError(w, err.Error(), http.StatusInternalServerError)
	default:
		respondJSON(w, http.StatusOK, map[string]string{"message": "snapshot committed"})
	}
}

// GetSnapshot handles GET /aggregates/{id}/snapshot?min_sequence=N.
// Absent and stale snapshots both answer 404; the caller falls back to the
// event log.
func (h *Handlers) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	aggregateID := extractAggregateID(r.URL.Path, "/snapshot")
	if aggregateID == "" {
		respondJSONError(w, "missing aggregate id", http.StatusBadRequest)
		return
	}

	minSequence := 0
	if raw := r.URL.Query().Get("min_sequence"); raw != "" {
		var err error
		minSequence, err = strconv.Atoi(raw)
		if err != nil {
			respondJSONError(w, "min_sequence must be an integer", http.StatusBadRequest)
			return
		}
	}

	snapshot, err := h.store.GetSnapshot(r.Context(), aggregateID, minSequence)
	if err != nil {
		respondJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if snapshot == nil {
		respondJSONError(w, "snapshot not found", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, snapshot)
}

// Health handles GET /healthz.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// extractAggregateID pulls the id out of /aggregates/{id}{suffix} paths.
func extractAggregateID(path, suffix string) string {
	rest := strings.TrimPrefix(path, "/aggregates/")
	if !strings.HasSuffix(rest, suffix) {
		return ""
	}
	return strings.TrimSuffix(rest, suffix)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondJSONError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, status, map[string]string{"error": message})
}
