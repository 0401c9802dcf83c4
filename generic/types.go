/*
Package generic provides the core commitment and approval engine.

PURPOSE:
  This package contains the scheduling domain model and the algorithms that
  govern it: which resources an event commits, who has to approve them,
  how requests against resource pools are fulfilled, how events are cloned
  and synchronised, and the append-only journal of everything that happened.

KEY CONCEPTS IN THIS FILE (types.go):
  - Element: A handle to anything an event can use (room, person, group...)
  - Event: The thing being scheduled
  - Commitment: A firm link between an event and an element
  - Request: A quantity of resources wanted from a pool group
  - ApprovalStatus: tentative / approved / rejected / noted
  - ParentRef: Tagged reference to an event or commitment

DESIGN PRINCIPLES:
  1. Derived values are computed, never trusted from a cache
     (Element.Owned is maintained by the concern bookkeeping, allocation
     counts are counted live from covering commitments)
  2. Covering commitments are derived records and never cloned
  3. Explicit discriminants instead of runtime type inspection

USAGE:
  engine := &generic.Engine{Store: store, Settings: generic.DefaultSettings()}
  result, err := engine.AttachElements(ctx, generic.AttachInput{
      EventID:    ev.ID,
      ElementIDs: []generic.ElementID{room.ID, poolGroup.ID},
  }, actor)

SEE ALSO:
  - approval.go: Approval state machine
  - fulfillment.go: Request fulfilment
  - clone.go: Cloning and synchronisation
  - journal.go: Journal
  - notifier.go: Notification batching
*/
package generic

import "time"

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type ElementID string
type EventID string
type CommitmentID string
type RequestID string
type ConcernID string
type MembershipID string
type JournalID string
type JournalEntryID string
type FormResponseID string
type NoteID string

// =============================================================================
// USERS & CONCERNS
// =============================================================================

// User is someone acting on the system. A nil *User means the system itself.
type User struct {
	ID    UserID
	Name  string
	Email string

	// ImmediateNotification: e-mail this user as soon as resources they own
	// are requested or released.
	ImmediateNotification bool
	Admin                 bool
	CreatedAt             time.Time
}

// Concern records a user's relationship with an element.
type Concern struct {
	ID        ConcernID
	UserID    UserID
	ElementID ElementID

	Visible bool
	// Equality: the user IS this element (their own staff/pupil record).
	Equality bool
	// Owns: the user approves use of the element.
	Owns bool
	AutoAdd bool
	// SkipPermissions lets a non-owner commit the element directly.
	SkipPermissions bool
	// SeekPermission forces requests through approval even for owners.
	SeekPermission bool
	CreatedAt      time.Time
}

// CanCommit reports whether the concern allows committing the element
// without going through the approval process.
func (c Concern) CanCommit() bool {
	return (c.Owns || c.SkipPermissions) && !c.SeekPermission
}

// =============================================================================
// ELEMENTS
// =============================================================================

// Element is a committable resource. Kind is the discriminant for the
// underlying entity.
type Element struct {
	ID      ElementID
	Name    string
	Kind    EntityKind
	Current bool

	// Owned is true iff at least one owning Concern points at this element.
	// Maintained by Engine.SaveConcern / Engine.DeleteConcern.
	Owned bool

	// Group is set once the element has been used as a group.
	Group *GroupInfo

	CreatedAt time.Time
}

// GroupInfo is the group half of an element of kind group. It exists
// only for elements that have acquired members.
type GroupInfo struct {
	// ResourceGroup marks a pool: attaching it to an event creates a
	// Request rather than a Commitment.
	ResourceGroup bool
	StartsOn      TimePoint
	EndsOn        *TimePoint // nil = open ended
}

func (g GroupInfo) Lifetime() Period {
	return Period{Start: g.StartsOn, End: g.EndsOn}
}

// IsResourceGroup reports whether attaching this element creates a Request.
func (e Element) IsResourceGroup() bool {
	return e.Kind == KindGroup && e.Group != nil && e.Group.ResourceGroup
}

// Membership links a member element to a group element. Inverse memberships
// exclude a member that would otherwise be included via another group.
type Membership struct {
	ID        MembershipID
	GroupID   ElementID
	MemberID  ElementID
	Inverse   bool
	StartsOn  TimePoint
	EndsOn    *TimePoint
	CreatedAt time.Time
}

// ActiveOn reports whether the membership covers the given day.
func (m Membership) ActiveOn(day TimePoint) bool {
	return Period{Start: m.StartsOn, End: m.EndsOn}.Contains(day)
}

// =============================================================================
// EVENTS
// =============================================================================

type Event struct {
	ID       EventID
	Body     string
	StartsAt time.Time
	EndsAt   time.Time
	AllDay   bool
	Category string
	Source   string

	OwnerID     *UserID
	OrganiserID *ElementID

	// NonExistent marks a cancelled placeholder.
	NonExistent bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Day returns the day on which the event starts.
func (e Event) Day() TimePoint {
	return NewTimePoint(e.StartsAt.Year(), e.StartsAt.Month(), e.StartsAt.Day())
}

// StartsAtText is the short human form used in notifications.
func (e Event) StartsAtText() string {
	if e.AllDay {
		return e.StartsAt.Format("Mon 02/01/2006")
	}
	return e.StartsAt.Format("15:04 Mon 02/01/2006")
}

// =============================================================================
// APPROVAL STATUS
// =============================================================================

type ApprovalStatus string

const (
	StatusTentative ApprovalStatus = "tentative" // awaiting approval
	StatusApproved  ApprovalStatus = "approved"
	StatusRejected  ApprovalStatus = "rejected"
	StatusNoted     ApprovalStatus = "noted" // issue flagged, not rejected
)

// Tentative is true for anything not yet firmly approved. Rejected and
// noted commitments are still tentative.
func (s ApprovalStatus) Tentative() bool { return s != StatusApproved }

// Constraining is true for statuses that still hold the resource.
func (s ApprovalStatus) Constraining() bool { return s != StatusRejected }

func (s ApprovalStatus) Valid() bool {
	switch s {
	case StatusTentative, StatusApproved, StatusRejected, StatusNoted:
		return true
	}
	return false
}

// =============================================================================
// RESOURCE REQUIREMENTS
// =============================================================================

// Commitment is a firm link between an event and an element.
type Commitment struct {
	ID        CommitmentID
	EventID   EventID
	ElementID ElementID
	Status    ApprovalStatus

	// Covering is set when the commitment exists to fulfil a Request.
	Covering *RequestID

	Reason   string
	ByUserID *UserID

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Direct reports whether the commitment was attached by hand.
func (c Commitment) Direct() bool { return c.Covering == nil }

func (c Commitment) Tentative() bool { return c.Status.Tentative() }
func (c Commitment) Rejected() bool  { return c.Status == StatusRejected }

// Request asks for Quantity members of a resource group.
type Request struct {
	ID        RequestID
	EventID   EventID
	ElementID ElementID // the pool group
	Quantity  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// PARENT REFERENCES - tagged union replacing polymorphic parents
// =============================================================================

type ParentKind string

const (
	ParentEvent      ParentKind = "event"
	ParentCommitment ParentKind = "commitment"
)

// ParentRef points at either an event or a commitment.
type ParentRef struct {
	Kind ParentKind
	ID   string
}

func EventParent(id EventID) ParentRef { return ParentRef{Kind: ParentEvent, ID: string(id)} }
func CommitmentParent(id CommitmentID) ParentRef {
	return ParentRef{Kind: ParentCommitment, ID: string(id)}
}

// =============================================================================
// FORMS & NOTES
// =============================================================================

type FormStatus string

const (
	FormEmpty    FormStatus = "empty"
	FormPartial  FormStatus = "partial"
	FormComplete FormStatus = "complete"
)

// FormResponse is a user's answers to a form attached to an event or
// commitment. The form definition itself lives outside this engine.
type FormResponse struct {
	ID        FormResponseID
	Parent    ParentRef
	UserID    *UserID
	FormName  string
	Status    FormStatus
	UpdatedAt time.Time
}

type Note struct {
	ID        NoteID
	Parent    ParentRef
	OwnerID   *UserID
	Title     string
	Contents  string
	CreatedAt time.Time
	UpdatedAt time.Time
}
