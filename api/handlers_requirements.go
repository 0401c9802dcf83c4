package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/warp/scheduling-engine/generic"
)

// =============================================================================
// COMMITMENT & REQUEST HANDLERS
// =============================================================================
//
//   POST   /api/commitments/{id}/approve    Approve
//   POST   /api/commitments/{id}/reject     Reject with a reason
//   POST   /api/commitments/{id}/note       Query with a reason
//   DELETE /api/commitments/{id}            Remove from its event
//   POST   /api/commitments/{id}/unfulfill  Give a covering slot back
//   POST   /api/commitments/{id}/forms      Attach a user form
//   POST   /api/commitments/{id}/notes      Add a note
//
//   GET    /api/requests/{id}               Request with allocation
//   DELETE /api/requests/{id}               Destroy request and its allocations
//   POST   /api/requests/{id}/fulfill       Allocate one member
//   POST   /api/requests/{id}/bulk-fulfill  Allocate several members
//   PUT    /api/requests/{id}/quantity      Set quantity
//   POST   /api/requests/{id}/decrement     Quantity minus one
//   POST   /api/requests/{id}/reconfirm     Re-apply after a change
//   POST   /api/requests/{id}/reconcile     Evict over-allocation

func commitmentID(r *http.Request) generic.CommitmentID {
	return generic.CommitmentID(chi.URLParam(r, "id"))
}

func requestID(r *http.Request) generic.RequestID {
	return generic.RequestID(chi.URLParam(r, "id"))
}

// =============================================================================
// APPROVAL
// =============================================================================

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	id := commitmentID(r)
	changed, err := h.Engine.Approve(r.Context(), id, actor(r))
	h.writeDecision(w, r, id, changed, err)
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := commitmentID(r)
	changed, err := h.Engine.Reject(r.Context(), id, actor(r), req.Reason)
	h.writeDecision(w, r, id, changed, err)
}

func (h *Handler) Note(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := commitmentID(r)
	changed, err := h.Engine.Note(r.Context(), id, actor(r), req.Reason)
	h.writeDecision(w, r, id, changed, err)
}

// writeDecision answers with the commitment's status after the attempt,
// whether or not it changed.
func (h *Handler) writeDecision(w http.ResponseWriter, r *http.Request, id generic.CommitmentID, changed bool, err error) {
	if err != nil {
		writeEngineError(w, "Decision failed", err)
		return
	}
	c, err := h.store().GetCommitment(r.Context(), id)
	if err != nil {
		writeEngineError(w, "Failed to reload commitment", err)
		return
	}
	writeJSON(w, http.StatusOK, DecisionDTO{Changed: changed, Status: string(c.Status)})
}

// =============================================================================
// COMMITMENTS
// =============================================================================

func (h *Handler) RemoveCommitment(w http.ResponseWriter, r *http.Request) {
	who := actor(r)
	removed, err := h.Engine.RemoveCommitment(r.Context(), commitmentID(r), who)
	if err != nil {
		writeEngineError(w, "Failed to remove commitment", err)
		return
	}
	h.Sessions.Removed(who, removed.EventID, *removed)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Unfulfill(w http.ResponseWriter, r *http.Request) {
	removed, err := h.Engine.Unfulfill(r.Context(), commitmentID(r), actor(r))
	if err != nil {
		writeEngineError(w, "Failed to unfulfill", err)
		return
	}
	writeJSON(w, http.StatusOK, toCommitmentDTO(*removed))
}

// =============================================================================
// REQUESTS
// =============================================================================

func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	a, err := h.Engine.Allocation(r.Context(), requestID(r))
	if err != nil {
		writeEngineError(w, "Failed to get request", err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(*a))
}

func (h *Handler) Fulfill(w http.ResponseWriter, r *http.Request) {
	var req FulfillRequest
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.Engine.Fulfill(r.Context(), requestID(r), generic.ElementID(req.ElementID), actor(r))
	if err != nil {
		writeEngineError(w, "Failed to fulfill request", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCommitmentDTO(*c))
}

// BulkFulfill allocates each element in turn. Failures are listed, not
// fatal.
func (h *Handler) BulkFulfill(w http.ResponseWriter, r *http.Request) {
	var req BulkFulfillRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	id := requestID(r)
	res, err := h.Engine.BulkFulfill(ctx, id, elementIDs(req.ElementIDs), actor(r))
	if err != nil {
		writeEngineError(w, "Failed to fulfill request", err)
		return
	}
	a, err := h.Engine.Allocation(ctx, id)
	if err != nil {
		writeEngineError(w, "Failed to count allocation", err)
		return
	}
	writeJSON(w, http.StatusOK, AttachResultDTO{
		Commitments: toCommitmentDTOs(res.Commitments),
		Requests:    []RequestDTO{toRequestDTO(*a)},
		Failures:    toFailureDTOs(res.Failures),
	})
}

func (h *Handler) AdjustQuantity(w http.ResponseWriter, r *http.Request) {
	var req AdjustRequest
	if !h.decode(w, r, &req) {
		return
	}
	a, err := h.Engine.AdjustRequest(r.Context(), requestID(r), *req.Quantity, actor(r))
	if err != nil {
		writeEngineError(w, "Failed to adjust quantity", err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(*a))
}

func (h *Handler) Decrement(w http.ResponseWriter, r *http.Request) {
	a, err := h.Engine.DecrementRequest(r.Context(), requestID(r), actor(r))
	if err != nil {
		writeEngineError(w, "Failed to decrement quantity", err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(*a))
}

func (h *Handler) Reconfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := h.Engine.ReconfirmRequest(ctx, requestID(r), actor(r))
	if err != nil {
		writeEngineError(w, "Failed to reconfirm request", err)
		return
	}
	a, err := h.Engine.Allocation(ctx, req.ID)
	if err != nil {
		writeEngineError(w, "Failed to count allocation", err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(*a))
}

func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	evicted, err := h.Engine.ReconcileRequest(r.Context(), requestID(r), actor(r))
	if err != nil {
		writeEngineError(w, "Failed to reconcile request", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"evicted": evicted})
}

// DestroyRequest removes the request and returns the covering commitments
// it took with it.
func (h *Handler) DestroyRequest(w http.ResponseWriter, r *http.Request) {
	removed, err := h.Engine.DestroyRequest(r.Context(), requestID(r), actor(r))
	if err != nil {
		writeEngineError(w, "Failed to destroy request", err)
		return
	}
	writeJSON(w, http.StatusOK, toCommitmentDTOs(removed))
}
