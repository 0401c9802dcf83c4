/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupling the
  domain model from the wire contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry go-playground/validator tags. decode in handlers.go
  runs them before any handler logic.

TIMES:
  Instants are RFC 3339. Days are YYYY-MM-DD.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/scheduling-engine/factory"
	"github.com/warp/scheduling-engine/generic"
)

// =============================================================================
// REQUESTS
// =============================================================================

type CreateUserRequest struct {
	ID                    string `json:"id" validate:"omitempty,max=64"`
	Name                  string `json:"name" validate:"required,max=200"`
	Email                 string `json:"email" validate:"omitempty,email"`
	ImmediateNotification bool   `json:"immediate_notification"`
	Admin                 bool   `json:"admin"`
}

type CreateElementRequest struct {
	ID            string `json:"id" validate:"omitempty,max=64"`
	Name          string `json:"name" validate:"required,max=200"`
	Kind          string `json:"kind" validate:"required,oneof=staff pupil group location property service"`
	ResourceGroup bool   `json:"resource_group"`
	StartsOn      string `json:"starts_on" validate:"omitempty,datetime=2006-01-02"`
	EndsOn        string `json:"ends_on" validate:"omitempty,datetime=2006-01-02"`
}

type SaveConcernRequest struct {
	UserID          string `json:"user_id" validate:"required"`
	ElementID       string `json:"element_id" validate:"required"`
	Owns            bool   `json:"owns"`
	Visible         bool   `json:"visible"`
	Equality        bool   `json:"equality"`
	AutoAdd         bool   `json:"auto_add"`
	SkipPermissions bool   `json:"skip_permissions"`
	SeekPermission  bool   `json:"seek_permission"`
}

type AddMembershipRequest struct {
	GroupID  string `json:"group_id" validate:"required"`
	MemberID string `json:"member_id" validate:"required,nefield=GroupID"`
	Inverse  bool   `json:"inverse"`
	StartsOn string `json:"starts_on" validate:"required,datetime=2006-01-02"`
	EndsOn   string `json:"ends_on" validate:"omitempty,datetime=2006-01-02"`
}

type CreateEventRequest struct {
	Body        string     `json:"body" validate:"required,max=500"`
	StartsAt    time.Time  `json:"starts_at" validate:"required"`
	EndsAt      *time.Time `json:"ends_at"`
	AllDay      bool       `json:"all_day"`
	Category    string     `json:"category" validate:"max=100"`
	OrganiserID *string    `json:"organiser_id"`
}

type UpdateEventRequest struct {
	Body        *string    `json:"body" validate:"omitempty,min=1,max=500"`
	StartsAt    *time.Time `json:"starts_at"`
	EndsAt      *time.Time `json:"ends_at"`
	AllDay      *bool      `json:"all_day"`
	Category    *string    `json:"category" validate:"omitempty,max=100"`
	OrganiserID *string    `json:"organiser_id"`
	NonExistent *bool      `json:"non_existent"`
}

type AttachRequest struct {
	ElementIDs []string `json:"element_ids" validate:"required,min=1,dive,required"`
}

type CreateRequirementRequest struct {
	ElementID string `json:"element_id" validate:"required"`
	Quantity  *int   `json:"quantity" validate:"omitempty,min=0"`
}

type DecisionRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

type FulfillRequest struct {
	ElementID string `json:"element_id" validate:"required"`
}

type BulkFulfillRequest struct {
	ElementIDs []string `json:"element_ids" validate:"required,min=1,dive,required"`
}

type AdjustRequest struct {
	Quantity *int `json:"quantity" validate:"required,min=0"`
}

type CloneRequest struct {
	Clones []CloneOverrides `json:"clones" validate:"required,min=1,dive"`
}

type CloneOverrides struct {
	Body     *string    `json:"body" validate:"omitempty,min=1,max=500"`
	StartsAt *time.Time `json:"starts_at"`
	EndsAt   *time.Time `json:"ends_at"`
	Category *string    `json:"category"`
}

type SyncRequest struct {
	TargetIDs []string `json:"target_ids" validate:"required,min=1,dive,required"`
}

type MatchRequest struct {
	ReferenceID string `json:"reference_id" validate:"required"`
}

type AttachFormRequest struct {
	FormName string `json:"form_name" validate:"required,max=200"`
}

type NoteRequest struct {
	Title    string `json:"title" validate:"max=200"`
	Contents string `json:"contents" validate:"required"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// RESPONSES
// =============================================================================

type UserDTO struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	Email                 string `json:"email"`
	ImmediateNotification bool   `json:"immediate_notification"`
	Admin                 bool   `json:"admin"`
}

type ElementDTO struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Kind          string  `json:"kind"`
	Current       bool    `json:"current"`
	Owned         bool    `json:"owned"`
	IsGroup       bool    `json:"is_group"`
	ResourceGroup bool    `json:"resource_group"`
	StartsOn      string  `json:"starts_on,omitempty"`
	EndsOn        *string `json:"ends_on,omitempty"`
}

type ConcernDTO struct {
	ID              string `json:"id"`
	UserID          string `json:"user_id"`
	ElementID       string `json:"element_id"`
	Owns            bool   `json:"owns"`
	Visible         bool   `json:"visible"`
	Equality        bool   `json:"equality"`
	AutoAdd         bool   `json:"auto_add"`
	SkipPermissions bool   `json:"skip_permissions"`
	SeekPermission  bool   `json:"seek_permission"`
}

type MembershipDTO struct {
	ID       string  `json:"id"`
	GroupID  string  `json:"group_id"`
	MemberID string  `json:"member_id"`
	Inverse  bool    `json:"inverse"`
	StartsOn string  `json:"starts_on"`
	EndsOn   *string `json:"ends_on,omitempty"`
}

type EventDTO struct {
	ID          string  `json:"id"`
	Body        string  `json:"body"`
	StartsAt    string  `json:"starts_at"`
	EndsAt      string  `json:"ends_at"`
	AllDay      bool    `json:"all_day"`
	Category    string  `json:"category,omitempty"`
	Source      string  `json:"source,omitempty"`
	OwnerID     *string `json:"owner_id,omitempty"`
	OrganiserID *string `json:"organiser_id,omitempty"`
	NonExistent bool    `json:"non_existent"`
}

type CommitmentDTO struct {
	ID        string  `json:"id"`
	EventID   string  `json:"event_id"`
	ElementID string  `json:"element_id"`
	Status    string  `json:"status"`
	Covering  *string `json:"covering,omitempty"`
	Reason    string  `json:"reason,omitempty"`
}

type RequestDTO struct {
	ID             string `json:"id"`
	EventID        string `json:"event_id"`
	ElementID      string `json:"element_id"`
	Quantity       int    `json:"quantity"`
	NumAllocated   int    `json:"num_allocated"`
	NumOutstanding int    `json:"num_outstanding"`
	Coverage       string `json:"coverage"`
}

type RequirementDTO struct {
	Commitment *CommitmentDTO `json:"commitment,omitempty"`
	Request    *RequestDTO    `json:"request,omitempty"`
	Merged     bool           `json:"merged"`
}

type FailureDTO struct {
	ElementID string `json:"element_id"`
	Error     string `json:"error"`
}

type AttachResultDTO struct {
	Commitments []CommitmentDTO `json:"commitments"`
	Requests    []RequestDTO    `json:"requests"`
	Failures    []FailureDTO    `json:"failures"`
}

type EventDetailDTO struct {
	Event       EventDTO        `json:"event"`
	Commitments []CommitmentDTO `json:"commitments"`
	Requests    []RequestDTO    `json:"requests"`
	Complete    bool            `json:"complete"`
}

type JournalEntryDTO struct {
	Kind      string            `json:"kind"`
	UserID    *string           `json:"user_id,omitempty"`
	ElementID *string           `json:"element_id,omitempty"`
	At        string            `json:"at"`
	Payload   map[string]string `json:"payload,omitempty"`
}

type FormDTO struct {
	ID       string `json:"id"`
	Parent   string `json:"parent"`
	FormName string `json:"form_name"`
	Status   string `json:"status"`
}

type NoteDTO struct {
	ID       string  `json:"id"`
	Parent   string  `json:"parent"`
	OwnerID  *string `json:"owner_id,omitempty"`
	Title    string  `json:"title"`
	Contents string  `json:"contents"`
}

// DecisionDTO reports an approval transition. Refused transitions are
// not errors: Changed is simply false.
type DecisionDTO struct {
	Changed bool   `json:"changed"`
	Status  string `json:"status"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type ScenarioDTO = factory.Scenario

// =============================================================================
// CONVERSIONS
// =============================================================================

func strOrNil[T ~string](v *T) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func toUserDTO(u generic.User) UserDTO {
	return UserDTO{
		ID:                    string(u.ID),
		Name:                  u.Name,
		Email:                 u.Email,
		ImmediateNotification: u.ImmediateNotification,
		Admin:                 u.Admin,
	}
}

func toElementDTO(e generic.Element) ElementDTO {
	dto := ElementDTO{
		ID:      string(e.ID),
		Name:    e.Name,
		Kind:    string(e.Kind),
		Current: e.Current,
		Owned:   e.Owned,
		IsGroup: e.Group != nil,
	}
	if e.Group != nil {
		dto.ResourceGroup = e.Group.ResourceGroup
		dto.StartsOn = e.Group.StartsOn.String()
		if e.Group.EndsOn != nil {
			s := e.Group.EndsOn.String()
			dto.EndsOn = &s
		}
	}
	return dto
}

func toConcernDTO(c generic.Concern) ConcernDTO {
	return ConcernDTO{
		ID:              string(c.ID),
		UserID:          string(c.UserID),
		ElementID:       string(c.ElementID),
		Owns:            c.Owns,
		Visible:         c.Visible,
		Equality:        c.Equality,
		AutoAdd:         c.AutoAdd,
		SkipPermissions: c.SkipPermissions,
		SeekPermission:  c.SeekPermission,
	}
}

func toMembershipDTO(m generic.Membership) MembershipDTO {
	dto := MembershipDTO{
		ID:       string(m.ID),
		GroupID:  string(m.GroupID),
		MemberID: string(m.MemberID),
		Inverse:  m.Inverse,
		StartsOn: m.StartsOn.String(),
	}
	if m.EndsOn != nil {
		s := m.EndsOn.String()
		dto.EndsOn = &s
	}
	return dto
}

func toEventDTO(e generic.Event) EventDTO {
	return EventDTO{
		ID:          string(e.ID),
		Body:        e.Body,
		StartsAt:    e.StartsAt.Format(time.RFC3339),
		EndsAt:      e.EndsAt.Format(time.RFC3339),
		AllDay:      e.AllDay,
		Category:    e.Category,
		Source:      e.Source,
		OwnerID:     strOrNil(e.OwnerID),
		OrganiserID: strOrNil(e.OrganiserID),
		NonExistent: e.NonExistent,
	}
}

func toEventDTOs(events []generic.Event) []EventDTO {
	out := make([]EventDTO, 0, len(events))
	for _, e := range events {
		out = append(out, toEventDTO(e))
	}
	return out
}

func toCommitmentDTO(c generic.Commitment) CommitmentDTO {
	return CommitmentDTO{
		ID:        string(c.ID),
		EventID:   string(c.EventID),
		ElementID: string(c.ElementID),
		Status:    string(c.Status),
		Covering:  strOrNil(c.Covering),
		Reason:    c.Reason,
	}
}

func toCommitmentDTOs(cs []generic.Commitment) []CommitmentDTO {
	out := make([]CommitmentDTO, 0, len(cs))
	for _, c := range cs {
		out = append(out, toCommitmentDTO(c))
	}
	return out
}

func toRequestDTO(a generic.Allocation) RequestDTO {
	return RequestDTO{
		ID:             string(a.Request.ID),
		EventID:        string(a.Request.EventID),
		ElementID:      string(a.Request.ElementID),
		Quantity:       a.Request.Quantity,
		NumAllocated:   a.NumAllocated,
		NumOutstanding: a.NumOutstanding,
		Coverage:       a.Coverage().StringFixed(2),
	}
}

func toFailureDTOs(fs []generic.ElementFailure) []FailureDTO {
	out := make([]FailureDTO, 0, len(fs))
	for _, f := range fs {
		out = append(out, FailureDTO{ElementID: string(f.ElementID), Error: f.Err.Error()})
	}
	return out
}

func toJournalEntryDTOs(entries []generic.JournalEntry) []JournalEntryDTO {
	out := make([]JournalEntryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, JournalEntryDTO{
			Kind:      string(e.Kind),
			UserID:    strOrNil(e.UserID),
			ElementID: strOrNil(e.ElementID),
			At:        e.At.Format(time.RFC3339),
			Payload:   e.Payload,
		})
	}
	return out
}

func parentString(p generic.ParentRef) string {
	return string(p.Kind) + ":" + p.ID
}

func toFormDTO(f generic.FormResponse) FormDTO {
	return FormDTO{
		ID:       string(f.ID),
		Parent:   parentString(f.Parent),
		FormName: f.FormName,
		Status:   string(f.Status),
	}
}

func toNoteDTO(n generic.Note) NoteDTO {
	return NoteDTO{
		ID:       string(n.ID),
		Parent:   parentString(n.Parent),
		OwnerID:  strOrNil(n.OwnerID),
		Title:    n.Title,
		Contents: n.Contents,
	}
}
