/*
store.go - Persistence interfaces for the commitment engine

PURPOSE:
  Defines the interface between the engine and the durable store. The
  engine treats the store as opaque: it needs transactional create/update/
  destroy with uniqueness enforcement, and nothing else.

KEY INTERFACES:
  UserStore:        Users
  ElementStore:     Elements, concerns and group memberships
  EventStore:       Events
  RequirementStore: Commitments and requests
  JournalStore:     Append-only journal (no Update, no Delete)
  FormStore:        Form responses and notes
  TxStore:          All of the above plus WithTx

UNIQUENESS:
  - At most one direct commitment per (event, element):
    CreateCommitment returns ErrDuplicateAttachment otherwise.
  - At most one request per (event, group): CreateRequest returns
    ErrDuplicateAttachment otherwise.
  - At most one concern per (user, element): ErrDuplicateConcern.

ORDERING:
  Listing methods return records in creation order. The fulfilment engine
  relies on this to evict the most recently allocated coverings first.

LOOKUPS:
  Get* methods return the matching ErrXxxNotFound sentinel. Find* and
  *Between methods return (nil, nil) when nothing matches.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - generic/store/memory.go: In-memory for testing

SEE ALSO:
  - engine.go: Runs every transition inside WithTx
*/
package generic

import "context"

type UserStore interface {
	SaveUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, id UserID) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
}

type ElementStore interface {
	SaveElement(ctx context.Context, e Element) error
	GetElement(ctx context.Context, id ElementID) (*Element, error)
	ListElements(ctx context.Context) ([]Element, error)
	DeleteElement(ctx context.Context, id ElementID) error

	SaveConcern(ctx context.Context, c Concern) error
	GetConcern(ctx context.Context, id ConcernID) (*Concern, error)
	DeleteConcern(ctx context.Context, id ConcernID) error
	ConcernsForElement(ctx context.Context, id ElementID) ([]Concern, error)
	ConcernsForUser(ctx context.Context, id UserID) ([]Concern, error)
	ConcernBetween(ctx context.Context, userID UserID, elementID ElementID) (*Concern, error)

	SaveMembership(ctx context.Context, m Membership) error
	DeleteMembership(ctx context.Context, id MembershipID) error
	MembershipsOfGroup(ctx context.Context, groupID ElementID) ([]Membership, error)
	MembershipsOfMember(ctx context.Context, memberID ElementID) ([]Membership, error)
}

type EventStore interface {
	SaveEvent(ctx context.Context, e Event) error
	GetEvent(ctx context.Context, id EventID) (*Event, error)
	ListEvents(ctx context.Context) ([]Event, error)
	DeleteEvent(ctx context.Context, id EventID) error
}

type RequirementStore interface {
	CreateCommitment(ctx context.Context, c Commitment) error
	GetCommitment(ctx context.Context, id CommitmentID) (*Commitment, error)
	UpdateCommitment(ctx context.Context, c Commitment) error
	DeleteCommitment(ctx context.Context, id CommitmentID) error
	CommitmentsForEvent(ctx context.Context, id EventID) ([]Commitment, error)
	CommitmentsForElement(ctx context.Context, id ElementID) ([]Commitment, error)
	CoveringCommitments(ctx context.Context, id RequestID) ([]Commitment, error)

	// CountCovering is a live count, never a cached counter.
	CountCovering(ctx context.Context, id RequestID) (int, error)

	CreateRequest(ctx context.Context, r Request) error
	GetRequest(ctx context.Context, id RequestID) (*Request, error)
	UpdateRequest(ctx context.Context, r Request) error
	DeleteRequest(ctx context.Context, id RequestID) error
	RequestsForEvent(ctx context.Context, id EventID) ([]Request, error)
	RequestsForElement(ctx context.Context, id ElementID) ([]Request, error)
	FindRequest(ctx context.Context, eventID EventID, elementID ElementID) (*Request, error)
	ListRequests(ctx context.Context) ([]Request, error)
}

// JournalStore is APPEND-ONLY for entries. No Update. No Delete.
type JournalStore interface {
	GetJournal(ctx context.Context, eventID EventID) (*Journal, error)
	CreateJournal(ctx context.Context, j Journal) error
	AppendEntry(ctx context.Context, e JournalEntry) error
	JournalEntries(ctx context.Context, eventID EventID) ([]JournalEntry, error)
}

type FormStore interface {
	SaveFormResponse(ctx context.Context, f FormResponse) error
	GetFormResponse(ctx context.Context, id FormResponseID) (*FormResponse, error)
	FormResponsesFor(ctx context.Context, parent ParentRef) ([]FormResponse, error)

	SaveNote(ctx context.Context, n Note) error
	GetNote(ctx context.Context, id NoteID) (*Note, error)
	NotesFor(ctx context.Context, parent ParentRef) ([]Note, error)

	// DeleteAttachments removes every form response and note of parent.
	DeleteAttachments(ctx context.Context, parent ParentRef) error
}

// Store is the full durable store.
type Store interface {
	UserStore
	ElementStore
	EventStore
	RequirementStore
	JournalStore
	FormStore
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
