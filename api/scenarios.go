/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Populates the store with a built-in fixture (factory/scenarios/*.yaml):
  users, elements, ownership, group memberships and events with their
  requirements. Everything goes through the engine, so approval state
  and journals come out exactly as if the data had been typed in.

HOW SCENARIOS WORK:
 1. Reset the store (clear all data, journals included)
 2. Parse the embedded fixture
 3. factory.Apply it

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "school-week"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - factory/fixture.go: Fixture format and Apply
  - handlers.go: reset
*/
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/warp/scheduling-engine/factory"
)

func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	list, err := factory.Scenarios()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list scenarios", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()
	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	list, err := factory.Scenarios()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list scenarios", err)
		return
	}
	for _, s := range list {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario wipes the store and loads a built-in scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}

	fx, err := factory.LoadScenario(req.ScenarioID)
	if err != nil {
		if errors.Is(err, factory.ErrUnknownScenario) {
			writeError(w, http.StatusBadRequest, "Unknown scenario", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to parse scenario", err)
		return
	}

	ctx := r.Context()
	if err := h.reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	applied, err := factory.Apply(ctx, h.Engine, fx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	events := make(map[string]string, len(applied.Events))
	for key, id := range applied.Events {
		events[key] = string(id)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "loaded",
		"scenario": req.ScenarioID,
		"events":   events,
	})
}
