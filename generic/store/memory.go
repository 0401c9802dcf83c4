// Package store provides Store implementations.
package store

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/warp/scheduling-engine/generic"
)

// =============================================================================
// TABLES - Unlocked record storage behind Memory and TxMemory
// =============================================================================

// row remembers insertion order so listings come back in creation order.
type row[T any] struct {
	seq uint64
	val T
}

type tables struct {
	seq uint64

	users       map[generic.UserID]row[generic.User]
	elements    map[generic.ElementID]row[generic.Element]
	concerns    map[generic.ConcernID]row[generic.Concern]
	memberships map[generic.MembershipID]row[generic.Membership]
	events      map[generic.EventID]row[generic.Event]
	commitments map[generic.CommitmentID]row[generic.Commitment]
	requests    map[generic.RequestID]row[generic.Request]
	journals    map[generic.EventID]generic.Journal
	entries     []generic.JournalEntry
	forms       map[generic.FormResponseID]row[generic.FormResponse]
	notes       map[generic.NoteID]row[generic.Note]
}

func newTables() *tables {
	return &tables{
		users:       make(map[generic.UserID]row[generic.User]),
		elements:    make(map[generic.ElementID]row[generic.Element]),
		concerns:    make(map[generic.ConcernID]row[generic.Concern]),
		memberships: make(map[generic.MembershipID]row[generic.Membership]),
		events:      make(map[generic.EventID]row[generic.Event]),
		commitments: make(map[generic.CommitmentID]row[generic.Commitment]),
		requests:    make(map[generic.RequestID]row[generic.Request]),
		journals:    make(map[generic.EventID]generic.Journal),
		forms:       make(map[generic.FormResponseID]row[generic.FormResponse]),
		notes:       make(map[generic.NoteID]row[generic.Note]),
	}
}

// clone copies every table. Records are values, so a shallow copy of each
// map is enough.
func (t *tables) clone() *tables {
	return &tables{
		seq:         t.seq,
		users:       maps.Clone(t.users),
		elements:    maps.Clone(t.elements),
		concerns:    maps.Clone(t.concerns),
		memberships: maps.Clone(t.memberships),
		events:      maps.Clone(t.events),
		commitments: maps.Clone(t.commitments),
		requests:    maps.Clone(t.requests),
		journals:    maps.Clone(t.journals),
		entries:     slices.Clone(t.entries),
		forms:       maps.Clone(t.forms),
		notes:       maps.Clone(t.notes),
	}
}

func upsert[K comparable, T any](t *tables, m map[K]row[T], k K, v T) {
	r, ok := m[k]
	if !ok {
		t.seq++
		r.seq = t.seq
	}
	r.val = v
	m[k] = r
}

func collect[K comparable, T any](m map[K]row[T], keep func(T) bool) []T {
	rows := make([]row[T], 0, len(m))
	for _, r := range m {
		if keep == nil || keep(r.val) {
			rows = append(rows, r)
		}
	}
	slices.SortFunc(rows, func(a, b row[T]) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})
	out := make([]T, len(rows))
	for i, r := range rows {
		out[i] = r.val
	}
	return out
}

func get[K comparable, T any](m map[K]row[T], k K, notFound error) (*T, error) {
	r, ok := m[k]
	if !ok {
		return nil, notFound
	}
	v := r.val
	return &v, nil
}

func remove[K comparable, T any](m map[K]row[T], k K, notFound error) error {
	if _, ok := m[k]; !ok {
		return notFound
	}
	delete(m, k)
	return nil
}

// --- users ---

func (t *tables) SaveUser(_ context.Context, u generic.User) error {
	upsert(t, t.users, u.ID, u)
	return nil
}

func (t *tables) GetUser(_ context.Context, id generic.UserID) (*generic.User, error) {
	return get(t.users, id, generic.ErrUserNotFound)
}

func (t *tables) ListUsers(_ context.Context) ([]generic.User, error) {
	return collect(t.users, nil), nil
}

// --- elements ---

func (t *tables) SaveElement(_ context.Context, e generic.Element) error {
	upsert(t, t.elements, e.ID, copyElement(e))
	return nil
}

func (t *tables) GetElement(_ context.Context, id generic.ElementID) (*generic.Element, error) {
	e, err := get(t.elements, id, generic.ErrElementNotFound)
	if err != nil {
		return nil, err
	}
	c := copyElement(*e)
	return &c, nil
}

func (t *tables) ListElements(_ context.Context) ([]generic.Element, error) {
	out := collect(t.elements, nil)
	for i := range out {
		out[i] = copyElement(out[i])
	}
	return out, nil
}

func (t *tables) DeleteElement(_ context.Context, id generic.ElementID) error {
	return remove(t.elements, id, generic.ErrElementNotFound)
}

// copyElement detaches GroupInfo so callers cannot edit stored state.
func copyElement(e generic.Element) generic.Element {
	if e.Group != nil {
		g := *e.Group
		e.Group = &g
	}
	return e
}

// --- concerns ---

func (t *tables) SaveConcern(_ context.Context, c generic.Concern) error {
	for _, r := range t.concerns {
		if r.val.ID != c.ID && r.val.UserID == c.UserID && r.val.ElementID == c.ElementID {
			return generic.ErrDuplicateConcern
		}
	}
	upsert(t, t.concerns, c.ID, c)
	return nil
}

func (t *tables) GetConcern(_ context.Context, id generic.ConcernID) (*generic.Concern, error) {
	return get(t.concerns, id, generic.ErrConcernNotFound)
}

func (t *tables) DeleteConcern(_ context.Context, id generic.ConcernID) error {
	return remove(t.concerns, id, generic.ErrConcernNotFound)
}

func (t *tables) ConcernsForElement(_ context.Context, id generic.ElementID) ([]generic.Concern, error) {
	return collect(t.concerns, func(c generic.Concern) bool { return c.ElementID == id }), nil
}

func (t *tables) ConcernsForUser(_ context.Context, id generic.UserID) ([]generic.Concern, error) {
	return collect(t.concerns, func(c generic.Concern) bool { return c.UserID == id }), nil
}

func (t *tables) ConcernBetween(_ context.Context, userID generic.UserID, elementID generic.ElementID) (*generic.Concern, error) {
	for _, r := range t.concerns {
		if r.val.UserID == userID && r.val.ElementID == elementID {
			c := r.val
			return &c, nil
		}
	}
	return nil, nil
}

// --- memberships ---

func (t *tables) SaveMembership(_ context.Context, m generic.Membership) error {
	upsert(t, t.memberships, m.ID, m)
	return nil
}

func (t *tables) DeleteMembership(_ context.Context, id generic.MembershipID) error {
	delete(t.memberships, id)
	return nil
}

func (t *tables) MembershipsOfGroup(_ context.Context, id generic.ElementID) ([]generic.Membership, error) {
	return collect(t.memberships, func(m generic.Membership) bool { return m.GroupID == id }), nil
}

func (t *tables) MembershipsOfMember(_ context.Context, id generic.ElementID) ([]generic.Membership, error) {
	return collect(t.memberships, func(m generic.Membership) bool { return m.MemberID == id }), nil
}

// --- events ---

func (t *tables) SaveEvent(_ context.Context, e generic.Event) error {
	upsert(t, t.events, e.ID, e)
	return nil
}

func (t *tables) GetEvent(_ context.Context, id generic.EventID) (*generic.Event, error) {
	return get(t.events, id, generic.ErrEventNotFound)
}

func (t *tables) ListEvents(_ context.Context) ([]generic.Event, error) {
	return collect(t.events, nil), nil
}

func (t *tables) DeleteEvent(_ context.Context, id generic.EventID) error {
	return remove(t.events, id, generic.ErrEventNotFound)
}

// --- commitments ---

func (t *tables) CreateCommitment(_ context.Context, c generic.Commitment) error {
	if c.Direct() {
		for _, r := range t.commitments {
			if r.val.Direct() && r.val.EventID == c.EventID && r.val.ElementID == c.ElementID {
				return generic.ErrDuplicateAttachment
			}
		}
	}
	upsert(t, t.commitments, c.ID, c)
	return nil
}

func (t *tables) GetCommitment(_ context.Context, id generic.CommitmentID) (*generic.Commitment, error) {
	return get(t.commitments, id, generic.ErrCommitmentNotFound)
}

func (t *tables) UpdateCommitment(_ context.Context, c generic.Commitment) error {
	if _, ok := t.commitments[c.ID]; !ok {
		return generic.ErrCommitmentNotFound
	}
	upsert(t, t.commitments, c.ID, c)
	return nil
}

func (t *tables) DeleteCommitment(_ context.Context, id generic.CommitmentID) error {
	return remove(t.commitments, id, generic.ErrCommitmentNotFound)
}

func (t *tables) CommitmentsForEvent(_ context.Context, id generic.EventID) ([]generic.Commitment, error) {
	return collect(t.commitments, func(c generic.Commitment) bool { return c.EventID == id }), nil
}

func (t *tables) CommitmentsForElement(_ context.Context, id generic.ElementID) ([]generic.Commitment, error) {
	return collect(t.commitments, func(c generic.Commitment) bool { return c.ElementID == id }), nil
}

func (t *tables) CoveringCommitments(_ context.Context, id generic.RequestID) ([]generic.Commitment, error) {
	return collect(t.commitments, func(c generic.Commitment) bool {
		return c.Covering != nil && *c.Covering == id
	}), nil
}

func (t *tables) CountCovering(_ context.Context, id generic.RequestID) (int, error) {
	n := 0
	for _, r := range t.commitments {
		if r.val.Covering != nil && *r.val.Covering == id {
			n++
		}
	}
	return n, nil
}

// --- requests ---

func (t *tables) CreateRequest(_ context.Context, req generic.Request) error {
	for _, r := range t.requests {
		if r.val.EventID == req.EventID && r.val.ElementID == req.ElementID {
			return generic.ErrDuplicateAttachment
		}
	}
	upsert(t, t.requests, req.ID, req)
	return nil
}

func (t *tables) GetRequest(_ context.Context, id generic.RequestID) (*generic.Request, error) {
	return get(t.requests, id, generic.ErrRequestNotFound)
}

func (t *tables) UpdateRequest(_ context.Context, req generic.Request) error {
	if _, ok := t.requests[req.ID]; !ok {
		return generic.ErrRequestNotFound
	}
	upsert(t, t.requests, req.ID, req)
	return nil
}

func (t *tables) DeleteRequest(_ context.Context, id generic.RequestID) error {
	return remove(t.requests, id, generic.ErrRequestNotFound)
}

func (t *tables) RequestsForEvent(_ context.Context, id generic.EventID) ([]generic.Request, error) {
	return collect(t.requests, func(r generic.Request) bool { return r.EventID == id }), nil
}

func (t *tables) RequestsForElement(_ context.Context, id generic.ElementID) ([]generic.Request, error) {
	return collect(t.requests, func(r generic.Request) bool { return r.ElementID == id }), nil
}

func (t *tables) FindRequest(_ context.Context, eventID generic.EventID, elementID generic.ElementID) (*generic.Request, error) {
	for _, r := range t.requests {
		if r.val.EventID == eventID && r.val.ElementID == elementID {
			v := r.val
			return &v, nil
		}
	}
	return nil, nil
}

func (t *tables) ListRequests(_ context.Context) ([]generic.Request, error) {
	return collect(t.requests, nil), nil
}

// --- journal (append-only) ---

func (t *tables) GetJournal(_ context.Context, id generic.EventID) (*generic.Journal, error) {
	j, ok := t.journals[id]
	if !ok {
		return nil, nil
	}
	return &j, nil
}

func (t *tables) CreateJournal(_ context.Context, j generic.Journal) error {
	t.journals[j.EventID] = j
	return nil
}

func (t *tables) AppendEntry(_ context.Context, e generic.JournalEntry) error {
	t.entries = append(t.entries, e)
	return nil
}

func (t *tables) JournalEntries(_ context.Context, id generic.EventID) ([]generic.JournalEntry, error) {
	var out []generic.JournalEntry
	for _, e := range t.entries {
		if e.EventID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

// --- forms & notes ---

func (t *tables) SaveFormResponse(_ context.Context, f generic.FormResponse) error {
	upsert(t, t.forms, f.ID, f)
	return nil
}

func (t *tables) GetFormResponse(_ context.Context, id generic.FormResponseID) (*generic.FormResponse, error) {
	return get(t.forms, id, generic.ErrFormResponseNotFound)
}

func (t *tables) FormResponsesFor(_ context.Context, parent generic.ParentRef) ([]generic.FormResponse, error) {
	return collect(t.forms, func(f generic.FormResponse) bool { return f.Parent == parent }), nil
}

func (t *tables) SaveNote(_ context.Context, n generic.Note) error {
	upsert(t, t.notes, n.ID, n)
	return nil
}

func (t *tables) GetNote(_ context.Context, id generic.NoteID) (*generic.Note, error) {
	return get(t.notes, id, generic.ErrNoteNotFound)
}

func (t *tables) NotesFor(_ context.Context, parent generic.ParentRef) ([]generic.Note, error) {
	return collect(t.notes, func(n generic.Note) bool { return n.Parent == parent }), nil
}

func (t *tables) DeleteAttachments(_ context.Context, parent generic.ParentRef) error {
	for id, r := range t.forms {
		if r.val.Parent == parent {
			delete(t.forms, id)
		}
	}
	for id, r := range t.notes {
		if r.val.Parent == parent {
			delete(t.notes, id)
		}
	}
	return nil
}

var _ generic.Store = (*tables)(nil)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory guards a set of tables with a RWMutex. Every method takes the
// lock for the duration of one call.
type Memory struct {
	mu sync.RWMutex
	t  *tables
}

var _ generic.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{t: newTables()}
}

// Reset drops every record, journal included.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.t = newTables()
	return nil
}

func (m *Memory) SaveUser(ctx context.Context, u generic.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t.SaveUser(ctx, u)
}

func (m *Memory) GetUser(ctx context.Context, id generic.UserID) (*generic.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.GetUser(ctx, id)
}

func (m *Memory) ListUsers(ctx context.Context) ([]generic.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.ListUsers(ctx)
}

func (m *Memory) SaveElement(ctx context.Context, e generic.Element) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t.SaveElement(ctx, e)
}

func (m *Memory) GetElement(ctx context.Context, id generic.ElementID) (*generic.Element, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.GetElement(ctx, id)
}

func (m *Memory) ListElements(ctx context.Context) ([]generic.Element, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.ListElements(ctx)
}

func (m *Memory) DeleteElement(ctx context.Context, id generic.ElementID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t.DeleteElement(ctx, id)
}

func (m *Memory) SaveConcern(ctx context.Context, c generic.Concern) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t.SaveConcern(ctx, c)
}

func (m *Memory) GetConcern(ctx context.Context, id generic.ConcernID) (*generic.Concern, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.GetConcern(ctx, id)
}

func (m *Memory) DeleteConcern(ctx context.Context, id generic.ConcernID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t.DeleteConcern(ctx, id)
}

func (m *Memory) ConcernsForElement(ctx context.Context, id generic.ElementID) ([]generic.Concern, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.ConcernsForElement(ctx, id)
}

func (m *Memory) ConcernsForUser(ctx context.Context, id generic.UserID) ([]generic.Concern, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.ConcernsForUser(ctx, id)
}

func (m *Memory) ConcernBetween(ctx context.Context, userID generic.UserID, elementID generic.ElementID) (*generic.Concern, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.ConcernBetween(ctx, userID, elementID)
}

func (m *Memory) SaveMembership(ctx context.Context, ms generic.Membership) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t.SaveMembership(ctx, ms)
}

func (m *Memory) DeleteMembership(ctx context.Context, id generic.MembershipID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t.DeleteMembership(ctx, id)
}

func (m *Memory) MembershipsOfGroup(ctx context.Context, id generic.ElementID) ([]generic.Membership, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.MembershipsOfGroup(ctx, id)
}

func (m *Memory) MembershipsOfMember(ctx context.Context, id generic.ElementID) ([]generic.Membership, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.MembershipsOfMember(ctx, id)
}

func (m *Memory) SaveEvent(ctx context.Context, e generic.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t.SaveEvent(ctx, e)
}

func (m *Memory) GetEvent(ctx context.Context, id generic.EventID) (*generic.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.GetEvent(ctx, id)
}

func (m *Memory) ListEvents(ctx context.Context) ([]generic.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.ListEvents(ctx)
}

func (m *Memory) DeleteEvent(ctx context.Context, id generic.EventID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t.DeleteEvent(ctx, id)
}

func (m *Memory) CreateCommitment(ctx context.Context, c generic.Commitment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t.CreateCommitment(ctx, c)
}

func (m *Memory) GetCommitment(ctx context.Context, id generic.CommitmentID) (*generic.Commitment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.GetCommitment(ctx, id)
}

func (m *Memory) UpdateCommitment(ctx context.Context, c generic.Commitment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t.UpdateCommitment(ctx, c)
}

func (m *Memory) DeleteCommitment(ctx context.Context, id generic.CommitmentID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t.DeleteCommitment(ctx, id)
}

func (m *Memory) CommitmentsForEvent(ctx context.Context, id generic.EventID) ([]generic.Commitment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.CommitmentsForEvent(ctx, id)
}

func (m *Memory) CommitmentsForElement(ctx context.Context, id generic.ElementID) ([]generic.Commitment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.CommitmentsForElement(ctx, id)
}

func (m *Memory) CoveringCommitments(ctx context.Context, id generic.RequestID) ([]generic.Commitment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.CoveringCommitments(ctx, id)
}

func (m *Memory) CountCovering(ctx context.Context, id generic.RequestID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.CountCovering(ctx, id)
}

func (m *Memory) CreateRequest(ctx context.Context, r generic.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t.CreateRequest(ctx, r)
}

func (m *Memory) GetRequest(ctx context.Context, id generic.RequestID) (*generic.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.GetRequest(ctx, id)
}

func (m *Memory) UpdateRequest(ctx context.Context, r generic.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t.UpdateRequest(ctx, r)
}

func (m *Memory) DeleteRequest(ctx context.Context, id generic.RequestID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t.DeleteRequest(ctx, id)
}

func (m *Memory) RequestsForEvent(ctx context.Context, id generic.EventID) ([]generic.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.RequestsForEvent(ctx, id)
}

func (m *Memory) RequestsForElement(ctx context.Context, id generic.ElementID) ([]generic.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.RequestsForElement(ctx, id)
}

func (m *Memory) FindRequest(ctx context.Context, eventID generic.EventID, elementID generic.ElementID) (*generic.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.FindRequest(ctx, eventID, elementID)
}

func (m *Memory) ListRequests(ctx context.Context) ([]generic.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.ListRequests(ctx)
}

func (m *Memory) GetJournal(ctx context.Context, id generic.EventID) (*generic.Journal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.GetJournal(ctx, id)
}

func (m *Memory) CreateJournal(ctx context.Context, j generic.Journal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t.CreateJournal(ctx, j)
}

func (m *Memory) AppendEntry(ctx context.Context, e generic.JournalEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t.AppendEntry(ctx, e)
}

func (m *Memory) JournalEntries(ctx context.Context, id generic.EventID) ([]generic.JournalEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.JournalEntries(ctx, id)
}

func (m *Memory) SaveFormResponse(ctx context.Context, f generic.FormResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t.SaveFormResponse(ctx, f)
}

func (m *Memory) GetFormResponse(ctx context.Context, id generic.FormResponseID) (*generic.FormResponse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.GetFormResponse(ctx, id)
}

func (m *Memory) FormResponsesFor(ctx context.Context, parent generic.ParentRef) ([]generic.FormResponse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.FormResponsesFor(ctx, parent)
}

func (m *Memory) SaveNote(ctx context.Context, n generic.Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t.SaveNote(ctx, n)
}

func (m *Memory) GetNote(ctx context.Context, id generic.NoteID) (*generic.Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.GetNote(ctx, id)
}

func (m *Memory) NotesFor(ctx context.Context, parent generic.ParentRef) ([]generic.Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.NotesFor(ctx, parent)
}

func (m *Memory) DeleteAttachments(ctx context.Context, parent generic.ParentRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t.DeleteAttachments(ctx, parent)
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

var _ generic.TxStore = (*TxMemory)(nil)

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// Transactions are serialised by the write lock; fn must only use the
// Store it is given.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(generic.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.t.clone()
	if err := fn(tm.t); err != nil {
		// Rollback
		tm.t = snapshot
		return err
	}
	return nil
}
