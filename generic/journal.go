/*
journal.go - Append-only per-event journal

PURPOSE:
  Every lifecycle transition against an event leaves exactly one entry in
  the event's journal (event updates leave one per changed field). The
  journal is both the permanent record of who did what and the input that
  explains notifications after the fact.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: Entries are never edited or deleted.
  2. LAZY: The journal record is created on the first write (EnsureJournal).
  3. ONE CALL, ONE ENTRY: except EventUpdated, which writes one entry per
     changed scalar field and nothing when nothing changed.
  4. ORDERED: Entries read back in append order.

LIFETIME:
  The journal outlives its event. EventDestroyed is written before the
  event row goes, and the journal stays readable by event id afterwards.

SEE ALSO:
  - store.go: JournalStore
  - engine.go: Writes entries inside the same transaction as the change
*/
package generic

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

type Journal struct {
	ID            JournalID
	EventID       EventID
	EventBody     string
	EventStartsAt time.Time
	CreatedAt     time.Time
}

type EntryKind string

const (
	EntryEventCreated         EntryKind = "event_created"
	EntryEventUpdated         EntryKind = "event_updated"
	EntryEventDestroyed       EntryKind = "event_destroyed"
	EntryCommitmentAdded      EntryKind = "commitment_added"
	EntryCommitmentRemoved    EntryKind = "commitment_removed"
	EntryCommitmentApproved   EntryKind = "commitment_approved"
	EntryCommitmentRejected   EntryKind = "commitment_rejected"
	EntryCommitmentNoted      EntryKind = "commitment_noted"
	EntryCommitmentReset      EntryKind = "commitment_reset"
	EntryNoteAdded            EntryKind = "note_added"
	EntryNoteUpdated          EntryKind = "note_updated"
	EntryFormCompleted        EntryKind = "form_completed"
	EntryRequestCreated       EntryKind = "resource_request_created"
	EntryRequestDestroyed     EntryKind = "resource_request_destroyed"
	EntryRequestIncremented   EntryKind = "resource_request_incremented"
	EntryRequestDecremented   EntryKind = "resource_request_decremented"
	EntryRequestAdjusted      EntryKind = "resource_request_adjusted"
	EntryRequestAllocated     EntryKind = "resource_request_allocated"
	EntryRequestDeallocated   EntryKind = "resource_request_deallocated"
	EntryRequestReconfirmed   EntryKind = "resource_request_reconfirmed"
	EntryRepeatedFrom         EntryKind = "repeated_from"
)

// JournalEntry is immutable once written.
type JournalEntry struct {
	ID        JournalEntryID
	JournalID JournalID
	EventID   EventID
	Kind      EntryKind
	UserID    *UserID // nil = system
	ElementID *ElementID
	At        time.Time
	Payload   map[string]string
}

// =============================================================================
// JOURNALER
// =============================================================================

type Journaler struct {
	Store JournalStore
	Now   func() time.Time
	NewID func() string
}

func NewJournaler(store JournalStore) *Journaler {
	return &Journaler{Store: store, Now: time.Now, NewID: NewID}
}

// EnsureJournal returns the event's journal, creating it on first use.
func (j *Journaler) EnsureJournal(ctx context.Context, ev Event) (*Journal, error) {
	existing, err := j.Store.GetJournal(ctx, ev.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	journal := Journal{
		ID:            JournalID(j.NewID()),
		EventID:       ev.ID,
		EventBody:     ev.Body,
		EventStartsAt: ev.StartsAt,
		CreatedAt:     j.Now(),
	}
	if err := j.Store.CreateJournal(ctx, journal); err != nil {
		return nil, fmt.Errorf("failed to create journal: %w", err)
	}
	return &journal, nil
}

func (j *Journaler) append(ctx context.Context, ev Event, kind EntryKind, user *User, element *ElementID, payload map[string]string) error {
	journal, err := j.EnsureJournal(ctx, ev)
	if err != nil {
		return err
	}
	return j.write(ctx, journal, ev, kind, user, element, payload)
}

func (j *Journaler) write(ctx context.Context, journal *Journal, ev Event, kind EntryKind, user *User, element *ElementID, payload map[string]string) error {
	entry := JournalEntry{
		ID:        JournalEntryID(j.NewID()),
		JournalID: journal.ID,
		EventID:   ev.ID,
		Kind:      kind,
		ElementID: element,
		At:        j.Now(),
		Payload:   payload,
	}
	if user != nil {
		id := user.ID
		entry.UserID = &id
	}
	if err := j.Store.AppendEntry(ctx, entry); err != nil {
		return fmt.Errorf("failed to append %s: %w", kind, err)
	}
	return nil
}

// =============================================================================
// EVENT ENTRIES
// =============================================================================

func (j *Journaler) EventCreated(ctx context.Context, ev Event, user *User) error {
	return j.append(ctx, ev, EntryEventCreated, user, nil, map[string]string{
		"body":      ev.Body,
		"starts_at": ev.StartsAt.Format(time.RFC3339),
		"ends_at":   ev.EndsAt.Format(time.RFC3339),
	})
}

// EventUpdated writes one entry per changed scalar field and returns how
// many were written. Nothing is written unless the journal exists; an
// append failing part way leaves the earlier fields recorded.
func (j *Journaler) EventUpdated(ctx context.Context, before, after Event, user *User) (int, error) {
	changes := diffEvent(before, after)
	if len(changes) == 0 {
		return 0, nil
	}
	journal, err := j.EnsureJournal(ctx, after)
	if err != nil {
		return 0, err
	}
	for i, ch := range changes {
		if err := j.write(ctx, journal, after, EntryEventUpdated, user, nil, map[string]string{
			"field": ch.field,
			"old":   ch.old,
			"new":   ch.new,
		}); err != nil {
			return i, err
		}
	}
	return len(changes), nil
}

func (j *Journaler) EventDestroyed(ctx context.Context, ev Event, user *User) error {
	return j.append(ctx, ev, EntryEventDestroyed, user, nil, map[string]string{"body": ev.Body})
}

func (j *Journaler) RepeatedFrom(ctx context.Context, ev Event, source Event, user *User) error {
	return j.append(ctx, ev, EntryRepeatedFrom, user, nil, map[string]string{
		"source_event_id": string(source.ID),
		"source_starts":   source.StartsAt.Format(time.RFC3339),
	})
}

type fieldChange struct {
	field, old, new string
}

func diffEvent(before, after Event) []fieldChange {
	var out []fieldChange
	add := func(field, o, n string) {
		if o != n {
			out = append(out, fieldChange{field: field, old: o, new: n})
		}
	}
	add("body", before.Body, after.Body)
	add("starts_at", before.StartsAt.Format(time.RFC3339), after.StartsAt.Format(time.RFC3339))
	add("ends_at", before.EndsAt.Format(time.RFC3339), after.EndsAt.Format(time.RFC3339))
	add("all_day", strconv.FormatBool(before.AllDay), strconv.FormatBool(after.AllDay))
	add("category", before.Category, after.Category)
	add("source", before.Source, after.Source)
	add("organiser", elementIDString(before.OrganiserID), elementIDString(after.OrganiserID))
	add("non_existent", strconv.FormatBool(before.NonExistent), strconv.FormatBool(after.NonExistent))
	return out
}

func elementIDString(id *ElementID) string {
	if id == nil {
		return ""
	}
	return string(*id)
}

// =============================================================================
// COMMITMENT ENTRIES
// =============================================================================

func (j *Journaler) commitment(ctx context.Context, ev Event, kind EntryKind, c Commitment, user *User) error {
	payload := map[string]string{
		"commitment_id": string(c.ID),
		"status":        string(c.Status),
	}
	if c.Reason != "" {
		payload["reason"] = c.Reason
	}
	if c.Covering != nil {
		payload["covering"] = string(*c.Covering)
	}
	el := c.ElementID
	return j.append(ctx, ev, kind, user, &el, payload)
}

func (j *Journaler) CommitmentAdded(ctx context.Context, ev Event, c Commitment, user *User) error {
	return j.commitment(ctx, ev, EntryCommitmentAdded, c, user)
}

func (j *Journaler) CommitmentRemoved(ctx context.Context, ev Event, c Commitment, user *User) error {
	return j.commitment(ctx, ev, EntryCommitmentRemoved, c, user)
}

func (j *Journaler) CommitmentApproved(ctx context.Context, ev Event, c Commitment, user *User) error {
	return j.commitment(ctx, ev, EntryCommitmentApproved, c, user)
}

func (j *Journaler) CommitmentRejected(ctx context.Context, ev Event, c Commitment, user *User) error {
	return j.commitment(ctx, ev, EntryCommitmentRejected, c, user)
}

func (j *Journaler) CommitmentNoted(ctx context.Context, ev Event, c Commitment, user *User) error {
	return j.commitment(ctx, ev, EntryCommitmentNoted, c, user)
}

func (j *Journaler) CommitmentReset(ctx context.Context, ev Event, c Commitment, user *User) error {
	return j.commitment(ctx, ev, EntryCommitmentReset, c, user)
}

// =============================================================================
// NOTES & FORMS
// =============================================================================

func (j *Journaler) note(ctx context.Context, ev Event, kind EntryKind, n Note, c *Commitment, user *User) error {
	payload := map[string]string{
		"note_id":  string(n.ID),
		"title":    n.Title,
		"contents": n.Contents,
	}
	var el *ElementID
	if c != nil {
		id := c.ElementID
		el = &id
		payload["commitment_id"] = string(c.ID)
	}
	return j.append(ctx, ev, kind, user, el, payload)
}

func (j *Journaler) NoteAdded(ctx context.Context, ev Event, n Note, c *Commitment, user *User) error {
	return j.note(ctx, ev, EntryNoteAdded, n, c, user)
}

func (j *Journaler) NoteUpdated(ctx context.Context, ev Event, n Note, c *Commitment, user *User) error {
	return j.note(ctx, ev, EntryNoteUpdated, n, c, user)
}

func (j *Journaler) FormCompleted(ctx context.Context, ev Event, f FormResponse, c *Commitment, user *User) error {
	payload := map[string]string{
		"form_response_id": string(f.ID),
		"form":             f.FormName,
	}
	var el *ElementID
	if c != nil {
		id := c.ElementID
		el = &id
		payload["commitment_id"] = string(c.ID)
	}
	return j.append(ctx, ev, EntryFormCompleted, user, el, payload)
}

// =============================================================================
// RESOURCE REQUEST ENTRIES
// =============================================================================

func (j *Journaler) request(ctx context.Context, ev Event, kind EntryKind, r Request, user *User, extra map[string]string) error {
	payload := map[string]string{
		"request_id": string(r.ID),
		"quantity":   strconv.Itoa(r.Quantity),
	}
	for k, v := range extra {
		payload[k] = v
	}
	el := r.ElementID
	return j.append(ctx, ev, kind, user, &el, payload)
}

func (j *Journaler) RequestCreated(ctx context.Context, ev Event, r Request, user *User) error {
	return j.request(ctx, ev, EntryRequestCreated, r, user, nil)
}

func (j *Journaler) RequestDestroyed(ctx context.Context, ev Event, r Request, user *User) error {
	return j.request(ctx, ev, EntryRequestDestroyed, r, user, nil)
}

func (j *Journaler) RequestIncremented(ctx context.Context, ev Event, r Request, user *User) error {
	return j.request(ctx, ev, EntryRequestIncremented, r, user, nil)
}

func (j *Journaler) RequestDecremented(ctx context.Context, ev Event, r Request, user *User) error {
	return j.request(ctx, ev, EntryRequestDecremented, r, user, nil)
}

func (j *Journaler) RequestAdjusted(ctx context.Context, ev Event, r Request, oldQuantity int, user *User) error {
	return j.request(ctx, ev, EntryRequestAdjusted, r, user, map[string]string{
		"old_quantity": strconv.Itoa(oldQuantity),
	})
}

func (j *Journaler) RequestAllocated(ctx context.Context, ev Event, r Request, resource ElementID, user *User) error {
	return j.request(ctx, ev, EntryRequestAllocated, r, user, map[string]string{
		"resource_id": string(resource),
	})
}

func (j *Journaler) RequestDeallocated(ctx context.Context, ev Event, r Request, resource ElementID, user *User) error {
	return j.request(ctx, ev, EntryRequestDeallocated, r, user, map[string]string{
		"resource_id": string(resource),
	})
}

func (j *Journaler) RequestReconfirmed(ctx context.Context, ev Event, r Request, user *User) error {
	return j.request(ctx, ev, EntryRequestReconfirmed, r, user, nil)
}
