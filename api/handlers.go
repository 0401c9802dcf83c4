/*
handlers.go - HTTP API handlers for the scheduling engine

PURPOSE:
  Exposes the commitment engine via REST API. Handles HTTP request/response,
  JSON serialization and validation, and delegates to generic.Engine.

ENDPOINTS:
  Users & elements:
    GET    /api/users                       List users
    POST   /api/users                       Create user
    GET    /api/elements                    List elements
    POST   /api/elements                    Create element
    GET    /api/elements/{id}               Get element
    DELETE /api/elements/{id}               Destroy element (cascades)
    GET    /api/elements/{id}/members       Members on a day
    GET    /api/elements/{id}/groups        Groups on a day
    GET    /api/elements/{id}/pending       Commitments awaiting approval
    POST   /api/concerns                    Create or update a concern
    DELETE /api/concerns/{id}               Delete a concern
    POST   /api/memberships                 Add a group membership

  Events (handlers_events.go):
    CRUD, attachments, requirements, cloning, sync, journal, forms, notes

  Commitments & requests (handlers_requirements.go):
    approve / reject / note, removal, fulfilment, quantities

ACTOR:
  The acting user is named by the X-User-ID header and loaded by the
  withActor middleware. No header means the system acts. Authentication
  is out of scope: the header is trusted.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 401: X-User-ID names an unknown user
  - 404: Record not found
  - 409: Duplicate attachment or concern, allocation conflicts
  - 500: Internal errors
  Refused approval transitions are NOT errors: they answer 200 with
  changed=false, exactly like a no-op.

SEE ALSO:
  - dto.go: Request/response data structures
  - sessions.go: Interactive notification sessions
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/warp/scheduling-engine/generic"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine   *generic.Engine
	Sessions *Sessions

	validate *validator.Validate

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler around the engine. Interactive sessions
// notify through the engine's sink.
func NewHandler(engine *generic.Engine) *Handler {
	return &Handler{
		Engine:   engine,
		Sessions: NewSessions(engine.Store, engine.Sink),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *Handler) store() generic.TxStore { return h.Engine.Store }

// =============================================================================
// ACTOR
// =============================================================================

type actorKey struct{}

const ActorHeader = "X-User-ID"

// withActor loads the user named by X-User-ID into the request context.
func (h *Handler) withActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(ActorHeader)
		if id == "" {
			next.ServeHTTP(w, r)
			return
		}
		u, err := h.store().GetUser(r.Context(), generic.UserID(id))
		if err != nil {
			if generic.IsNotFound(err) {
				writeError(w, http.StatusUnauthorized, "Unknown user", err)
				return
			}
			writeError(w, http.StatusInternalServerError, "Failed to load user", err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey{}, u)))
	})
}

// actor returns the acting user, nil for the system.
func actor(r *http.Request) *generic.User {
	u, _ := r.Context().Value(actorKey{}).(*generic.User)
	return u
}

// =============================================================================
// USER & ELEMENT HANDLERS
// =============================================================================

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store().ListUsers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list users", err)
		return
	}
	dtos := make([]UserDTO, 0, len(users))
	for _, u := range users {
		dtos = append(dtos, toUserDTO(u))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !h.decode(w, r, &req) {
		return
	}
	u := generic.User{
		ID:                    generic.UserID(req.ID),
		Name:                  req.Name,
		Email:                 req.Email,
		ImmediateNotification: req.ImmediateNotification,
		Admin:                 req.Admin,
		CreatedAt:             time.Now(),
	}
	if u.ID == "" {
		u.ID = generic.UserID(generic.NewID())
	}
	if err := h.store().SaveUser(r.Context(), u); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create user", err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserDTO(u))
}

func (h *Handler) ListElements(w http.ResponseWriter, r *http.Request) {
	elements, err := h.store().ListElements(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list elements", err)
		return
	}
	writeJSON(w, http.StatusOK, toElementDTOs(elements))
}

func (h *Handler) CreateElement(w http.ResponseWriter, r *http.Request) {
	var req CreateElementRequest
	if !h.decode(w, r, &req) {
		return
	}
	kind, err := generic.ParseKind(req.Kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid kind", err)
		return
	}
	el := generic.Element{
		ID:        generic.ElementID(req.ID),
		Name:      req.Name,
		Kind:      kind,
		Current:   true,
		CreatedAt: time.Now(),
	}
	if el.ID == "" {
		el.ID = generic.ElementID(generic.NewID())
	}
	if kind == generic.KindGroup && (req.ResourceGroup || req.StartsOn != "") {
		info := &generic.GroupInfo{ResourceGroup: req.ResourceGroup, StartsOn: generic.Today()}
		if req.StartsOn != "" {
			info.StartsOn, _ = generic.ParseDay(req.StartsOn)
		}
		if req.EndsOn != "" {
			ends, _ := generic.ParseDay(req.EndsOn)
			if ends.Before(info.StartsOn) {
				writeError(w, http.StatusBadRequest, "Invalid group lifetime", generic.ErrInvalidPeriod)
				return
			}
			info.EndsOn = &ends
		}
		el.Group = info
	}
	if err := h.store().SaveElement(r.Context(), el); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create element", err)
		return
	}
	writeJSON(w, http.StatusCreated, toElementDTO(el))
}

func (h *Handler) GetElement(w http.ResponseWriter, r *http.Request) {
	el, err := h.store().GetElement(r.Context(), generic.ElementID(chi.URLParam(r, "id")))
	if err != nil {
		writeEngineError(w, "Failed to get element", err)
		return
	}
	writeJSON(w, http.StatusOK, toElementDTO(*el))
}

func (h *Handler) DestroyElement(w http.ResponseWriter, r *http.Request) {
	id := generic.ElementID(chi.URLParam(r, "id"))
	if err := h.Engine.DestroyElement(r.Context(), id, actor(r)); err != nil {
		writeEngineError(w, "Failed to destroy element", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListMembers returns the members of a group on ?date= (default today).
// ?recursive=false limits to direct members; ?exclude_groups=true drops
// nested groups from the result.
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	day, ok := dayParam(w, r)
	if !ok {
		return
	}
	members, err := generic.Members(r.Context(), h.store(), generic.ElementID(chi.URLParam(r, "id")), day,
		boolParam(r, "recursive", true), boolParam(r, "exclude_groups", false))
	if err != nil {
		writeEngineError(w, "Failed to list members", err)
		return
	}
	writeJSON(w, http.StatusOK, toElementDTOs(members))
}

func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	day, ok := dayParam(w, r)
	if !ok {
		return
	}
	groups, err := generic.Groups(r.Context(), h.store(), generic.ElementID(chi.URLParam(r, "id")), day,
		boolParam(r, "recursive", true))
	if err != nil {
		writeEngineError(w, "Failed to list groups", err)
		return
	}
	writeJSON(w, http.StatusOK, toElementDTOs(groups))
}

// ListPending returns commitments of the element awaiting a decision.
func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	pending, err := h.Engine.PendingCommitments(r.Context(), generic.ElementID(chi.URLParam(r, "id")))
	if err != nil {
		writeEngineError(w, "Failed to list pending commitments", err)
		return
	}
	writeJSON(w, http.StatusOK, toCommitmentDTOs(pending))
}

func (h *Handler) SaveConcern(w http.ResponseWriter, r *http.Request) {
	var req SaveConcernRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	c := generic.Concern{
		UserID:          generic.UserID(req.UserID),
		ElementID:       generic.ElementID(req.ElementID),
		Owns:            req.Owns,
		Visible:         req.Visible,
		Equality:        req.Equality,
		AutoAdd:         req.AutoAdd,
		SkipPermissions: req.SkipPermissions,
		SeekPermission:  req.SeekPermission,
	}
	// POST doubles as update: an existing (user, element) concern keeps its id.
	existing, err := h.store().ConcernBetween(ctx, c.UserID, c.ElementID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to look up concern", err)
		return
	}
	status := http.StatusCreated
	if existing != nil {
		c.ID = existing.ID
		status = http.StatusOK
	}
	saved, err := h.Engine.SaveConcern(ctx, c, actor(r))
	if err != nil {
		writeEngineError(w, "Failed to save concern", err)
		return
	}
	writeJSON(w, status, toConcernDTO(*saved))
}

func (h *Handler) DeleteConcern(w http.ResponseWriter, r *http.Request) {
	id := generic.ConcernID(chi.URLParam(r, "id"))
	if err := h.Engine.DeleteConcern(r.Context(), id, actor(r)); err != nil {
		writeEngineError(w, "Failed to delete concern", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AddMembership(w http.ResponseWriter, r *http.Request) {
	var req AddMembershipRequest
	if !h.decode(w, r, &req) {
		return
	}
	m := generic.Membership{
		GroupID:  generic.ElementID(req.GroupID),
		MemberID: generic.ElementID(req.MemberID),
		Inverse:  req.Inverse,
	}
	m.StartsOn, _ = generic.ParseDay(req.StartsOn)
	if req.EndsOn != "" {
		ends, _ := generic.ParseDay(req.EndsOn)
		if ends.Before(m.StartsOn) {
			writeError(w, http.StatusBadRequest, "Invalid membership period", generic.ErrInvalidPeriod)
			return
		}
		m.EndsOn = &ends
	}
	saved, err := h.Engine.AddMembership(r.Context(), m)
	if err != nil {
		writeEngineError(w, "Failed to add membership", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMembershipDTO(*saved))
}

// =============================================================================
// ADMIN
// =============================================================================

// Resetter is implemented by stores that can wipe themselves.
type Resetter interface {
	Reset(ctx context.Context) error
}

// TriggerReconcile runs the over-allocation sweep now.
// POST /api/admin/reconcile
func (h *Handler) TriggerReconcile(w http.ResponseWriter, r *http.Request) {
	evicted, err := h.Engine.ReconcileAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Reconciliation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"evicted": evicted})
}

// ResetDatabase clears all data. Development only.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) reset(ctx context.Context) error {
	rs, ok := h.store().(Resetter)
	if !ok {
		return errors.New("store cannot be reset")
	}
	if err := rs.Reset(ctx); err != nil {
		return err
	}
	h.Sessions.DiscardAll()
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeEngineError maps engine errors to HTTP statuses.
func writeEngineError(w http.ResponseWriter, message string, err error) {
	switch {
	case generic.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, generic.ErrDuplicateAttachment),
		errors.Is(err, generic.ErrDuplicateConcern),
		errors.Is(err, generic.ErrAlreadyAllocated),
		errors.Is(err, generic.ErrFullyAllocated):
		writeError(w, http.StatusConflict, message, err)
	case generic.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

// decode reads and validates a JSON body. An empty body decodes to the
// zero value, which validation may then reject.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

func dayParam(w http.ResponseWriter, r *http.Request) (generic.TimePoint, bool) {
	s := r.URL.Query().Get("date")
	if s == "" {
		return generic.Today(), true
	}
	day, err := generic.ParseDay(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return generic.TimePoint{}, false
	}
	return day, true
}

func boolParam(r *http.Request, name string, def bool) bool {
	b, err := strconv.ParseBool(r.URL.Query().Get(name))
	if err != nil {
		return def
	}
	return b
}

func toElementDTOs(elements []generic.Element) []ElementDTO {
	out := make([]ElementDTO, 0, len(elements))
	for _, e := range elements {
		out = append(out, toElementDTO(e))
	}
	return out
}

func elementIDs(ids []string) []generic.ElementID {
	out := make([]generic.ElementID, len(ids))
	for i, id := range ids {
		out[i] = generic.ElementID(id)
	}
	return out
}
