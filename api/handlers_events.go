package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/warp/scheduling-engine/generic"
)

// =============================================================================
// EVENT HANDLERS
// =============================================================================
//
//   GET    /api/events                      List events
//   POST   /api/events                      Create event
//   GET    /api/events/{id}                 Event with commitments and requests
//   PATCH  /api/events/{id}                 Update event
//   DELETE /api/events/{id}                 Destroy event
//   GET    /api/events/{id}/journal         Journal entries
//   POST   /api/events/{id}/attachments     Attach elements (batch)
//   POST   /api/events/{id}/requirements    Attach one element, with quantity
//   POST   /api/events/{id}/notify          End the editing session
//   POST   /api/events/{id}/clones          Clone, once per overrides entry
//   POST   /api/events/{id}/match           Copy what a reference event has
//   POST   /api/events/{id}/sync            Copy this event's resources to siblings
//   POST   /api/events/{id}/forms           Attach a user form
//   POST   /api/events/{id}/notes           Add a note

func eventID(r *http.Request) generic.EventID {
	return generic.EventID(chi.URLParam(r, "id"))
}

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.store().ListEvents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list events", err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTOs(events))
}

func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req CreateEventRequest
	if !h.decode(w, r, &req) {
		return
	}
	in := generic.EventInput{
		Body:     req.Body,
		StartsAt: req.StartsAt,
		EndsAt:   req.EndsAt,
		AllDay:   req.AllDay,
		Category: req.Category,
		Source:   "api",
	}
	if req.OrganiserID != nil {
		id := generic.ElementID(*req.OrganiserID)
		in.OrganiserID = &id
	}
	ev, err := h.Engine.CreateEvent(r.Context(), in, actor(r))
	if err != nil {
		writeEngineError(w, "Failed to create event", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEventDTO(*ev))
}

// GetEvent returns the event with its commitments, requests (with live
// allocation counts) and completeness.
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ev, err := h.Engine.Event(ctx, eventID(r))
	if err != nil {
		writeEngineError(w, "Failed to get event", err)
		return
	}
	commitments, err := h.store().CommitmentsForEvent(ctx, ev.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list commitments", err)
		return
	}
	requests, err := h.store().RequestsForEvent(ctx, ev.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list requests", err)
		return
	}
	detail := EventDetailDTO{
		Event:       toEventDTO(*ev),
		Commitments: toCommitmentDTOs(commitments),
		Requests:    make([]RequestDTO, 0, len(requests)),
	}
	for _, req := range requests {
		a, err := h.Engine.Allocation(ctx, req.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to count allocation", err)
			return
		}
		detail.Requests = append(detail.Requests, toRequestDTO(*a))
	}
	detail.Complete, err = h.Engine.IsComplete(ctx, ev.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to check completeness", err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	var req UpdateEventRequest
	if !h.decode(w, r, &req) {
		return
	}
	patch := generic.EventPatch{
		Body:        req.Body,
		StartsAt:    req.StartsAt,
		EndsAt:      req.EndsAt,
		AllDay:      req.AllDay,
		Category:    req.Category,
		NonExistent: req.NonExistent,
	}
	if req.OrganiserID != nil {
		id := generic.ElementID(*req.OrganiserID)
		patch.OrganiserID = &id
	}
	ev, err := h.Engine.UpdateEvent(r.Context(), eventID(r), patch, actor(r))
	if err != nil {
		writeEngineError(w, "Failed to update event", err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTO(*ev))
}

func (h *Handler) DestroyEvent(w http.ResponseWriter, r *http.Request) {
	id := eventID(r)
	if err := h.Engine.DestroyEvent(r.Context(), id, actor(r)); err != nil {
		writeEngineError(w, "Failed to destroy event", err)
		return
	}
	h.Sessions.Discard(id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetJournal(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Engine.JournalEntries(r.Context(), eventID(r))
	if err != nil {
		writeEngineError(w, "Failed to read journal", err)
		return
	}
	writeJSON(w, http.StatusOK, toJournalEntryDTOs(entries))
}

// =============================================================================
// ATTACHMENTS
// =============================================================================

// AttachElements attaches each element in turn. Per-element failures
// come back in the body; the request still succeeds.
func (h *Handler) AttachElements(w http.ResponseWriter, r *http.Request) {
	var req AttachRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	who := actor(r)
	id := eventID(r)
	res, err := h.Engine.AttachElements(ctx, generic.AttachInput{EventID: id, ElementIDs: elementIDs(req.ElementIDs)}, who)
	if err != nil {
		writeEngineError(w, "Failed to attach elements", err)
		return
	}
	h.Sessions.Added(who, id, res.Commitments...)

	dto := AttachResultDTO{
		Commitments: toCommitmentDTOs(res.Commitments),
		Requests:    make([]RequestDTO, 0, len(res.Requests)),
		Failures:    toFailureDTOs(res.Failures),
	}
	for _, rq := range res.Requests {
		a, err := h.Engine.Allocation(ctx, rq.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to count allocation", err)
			return
		}
		dto.Requests = append(dto.Requests, toRequestDTO(*a))
	}
	writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) CreateRequirement(w http.ResponseWriter, r *http.Request) {
	var req CreateRequirementRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	who := actor(r)
	id := eventID(r)
	res, err := h.Engine.CreateRequirement(ctx, generic.RequirementInput{
		EventID:   id,
		ElementID: generic.ElementID(req.ElementID),
		Quantity:  req.Quantity,
	}, who)
	if err != nil {
		writeEngineError(w, "Failed to create requirement", err)
		return
	}

	dto := RequirementDTO{Merged: res.Merged}
	status := http.StatusCreated
	if res.Merged {
		status = http.StatusOK
	}
	if res.Commitment != nil {
		h.Sessions.Added(who, id, *res.Commitment)
		c := toCommitmentDTO(*res.Commitment)
		dto.Commitment = &c
	}
	if res.Request != nil {
		a, err := h.Engine.Allocation(ctx, res.Request.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to count allocation", err)
			return
		}
		rq := toRequestDTO(*a)
		dto.Request = &rq
	}
	writeJSON(w, status, dto)
}

// FinishEditing sends the notifications collected while the actor edited
// the event.
func (h *Handler) FinishEditing(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ev, err := h.Engine.Event(ctx, eventID(r))
	if err != nil {
		writeEngineError(w, "Failed to get event", err)
		return
	}
	sent, err := h.Sessions.Flush(ctx, actor(r), *ev)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to send notifications", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"sent": sent})
}

// =============================================================================
// CLONING & SYNC
// =============================================================================

func (h *Handler) CloneEvent(w http.ResponseWriter, r *http.Request) {
	var req CloneRequest
	if !h.decode(w, r, &req) {
		return
	}
	overrides := make([]generic.EventOverrides, len(req.Clones))
	for i, c := range req.Clones {
		overrides[i] = generic.EventOverrides{
			Body:     c.Body,
			StartsAt: c.StartsAt,
			EndsAt:   c.EndsAt,
			Category: c.Category,
		}
	}
	clones, err := h.Engine.CloneEvents(r.Context(), eventID(r), actor(r), overrides)
	if err != nil {
		writeEngineError(w, "Failed to clone event", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEventDTOs(clones))
}

// MatchEvent gives this event everything the reference event has that
// it lacks.
func (h *Handler) MatchEvent(w http.ResponseWriter, r *http.Request) {
	var req MatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.Engine.MakeToMatch(r.Context(), eventID(r), generic.EventID(req.ReferenceID), actor(r))
	if err != nil {
		writeEngineError(w, "Failed to match event", err)
		return
	}
	writeJSON(w, http.StatusOK, h.syncResultDTO(r, *res))
}

// SyncEvents makes each target match this event.
func (h *Handler) SyncEvents(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if !h.decode(w, r, &req) {
		return
	}
	targets := make([]generic.EventID, len(req.TargetIDs))
	for i, id := range req.TargetIDs {
		targets[i] = generic.EventID(id)
	}
	results, err := h.Engine.SyncEvents(r.Context(), eventID(r), targets, actor(r))
	if err != nil {
		writeEngineError(w, "Failed to sync events", err)
		return
	}
	out := make(map[string]AttachResultDTO, len(results))
	for i, res := range results {
		out[req.TargetIDs[i]] = h.syncResultDTO(r, res)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) syncResultDTO(r *http.Request, res generic.SyncResult) AttachResultDTO {
	dto := AttachResultDTO{
		Commitments: toCommitmentDTOs(res.Commitments),
		Requests:    make([]RequestDTO, 0, len(res.Requests)),
		Failures:    []FailureDTO{},
	}
	for _, rq := range res.Requests {
		a := generic.Allocation{Request: rq, NumOutstanding: rq.Quantity}
		if live, err := h.Engine.Allocation(r.Context(), rq.ID); err == nil {
			a = *live
		}
		dto.Requests = append(dto.Requests, toRequestDTO(a))
	}
	return dto
}

// =============================================================================
// FORMS & NOTES
// =============================================================================

func (h *Handler) AttachEventForm(w http.ResponseWriter, r *http.Request) {
	h.attachForm(w, r, generic.EventParent(eventID(r)))
}

func (h *Handler) AttachCommitmentForm(w http.ResponseWriter, r *http.Request) {
	h.attachForm(w, r, generic.CommitmentParent(commitmentID(r)))
}

func (h *Handler) attachForm(w http.ResponseWriter, r *http.Request, parent generic.ParentRef) {
	var req AttachFormRequest
	if !h.decode(w, r, &req) {
		return
	}
	var userID *generic.UserID
	if u := actor(r); u != nil {
		userID = &u.ID
	}
	f, err := h.Engine.AttachForm(r.Context(), parent, req.FormName, userID)
	if err != nil {
		writeEngineError(w, "Failed to attach form", err)
		return
	}
	writeJSON(w, http.StatusCreated, toFormDTO(*f))
}

func (h *Handler) SaveFormProgress(w http.ResponseWriter, r *http.Request) {
	f, err := h.Engine.SaveFormProgress(r.Context(), generic.FormResponseID(chi.URLParam(r, "id")))
	if err != nil {
		writeEngineError(w, "Failed to save form", err)
		return
	}
	writeJSON(w, http.StatusOK, toFormDTO(*f))
}

func (h *Handler) CompleteForm(w http.ResponseWriter, r *http.Request) {
	f, err := h.Engine.CompleteForm(r.Context(), generic.FormResponseID(chi.URLParam(r, "id")), actor(r))
	if err != nil {
		writeEngineError(w, "Failed to complete form", err)
		return
	}
	writeJSON(w, http.StatusOK, toFormDTO(*f))
}

func (h *Handler) AddEventNote(w http.ResponseWriter, r *http.Request) {
	h.addNote(w, r, generic.EventParent(eventID(r)))
}

func (h *Handler) AddCommitmentNote(w http.ResponseWriter, r *http.Request) {
	h.addNote(w, r, generic.CommitmentParent(commitmentID(r)))
}

func (h *Handler) addNote(w http.ResponseWriter, r *http.Request, parent generic.ParentRef) {
	var req NoteRequest
	if !h.decode(w, r, &req) {
		return
	}
	n, err := h.Engine.AddNote(r.Context(), parent, req.Title, req.Contents, actor(r))
	if err != nil {
		writeEngineError(w, "Failed to add note", err)
		return
	}
	writeJSON(w, http.StatusCreated, toNoteDTO(*n))
}

func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	var req NoteRequest
	if !h.decode(w, r, &req) {
		return
	}
	n, err := h.Engine.UpdateNote(r.Context(), generic.NoteID(chi.URLParam(r, "id")), req.Title, req.Contents, actor(r))
	if err != nil {
		writeEngineError(w, "Failed to update note", err)
		return
	}
	writeJSON(w, http.StatusOK, toNoteDTO(*n))
}
