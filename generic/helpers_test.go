package generic_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/warp/scheduling-engine/generic"
	"github.com/warp/scheduling-engine/generic/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// recordingSink keeps every notification handed to it.
type recordingSink struct {
	mu   sync.Mutex
	sent []generic.Notification
}

func (s *recordingSink) Notify(_ context.Context, n generic.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
	return nil
}

func (s *recordingSink) count(kind generic.NotificationKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, note := range s.sent {
		if note.Kind == kind {
			n++
		}
	}
	return n
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = nil
}

type fixture struct {
	ctx    context.Context
	store  *store.TxMemory
	engine *generic.Engine
	sink   *recordingSink
}

var monday = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := store.NewTxMemory()
	sink := &recordingSink{}
	engine := generic.NewEngine(s, sink, generic.DefaultSettings())
	return &fixture{ctx: context.Background(), store: s, engine: engine, sink: sink}
}

func (f *fixture) user(t *testing.T, name string, immediate bool) *generic.User {
	t.Helper()
	u := generic.User{
		ID:                    generic.UserID(generic.NewID()),
		Name:                  name,
		Email:                 name + "@school.example",
		ImmediateNotification: immediate,
	}
	require.NoError(t, f.store.SaveUser(f.ctx, u))
	return &u
}

func (f *fixture) element(t *testing.T, name string, kind generic.EntityKind) generic.Element {
	t.Helper()
	e := generic.Element{
		ID:      generic.ElementID(generic.NewID()),
		Name:    name,
		Kind:    kind,
		Current: true,
	}
	require.NoError(t, f.store.SaveElement(f.ctx, e))
	return e
}

// pool creates a resource group holding the given members.
func (f *fixture) pool(t *testing.T, name string, members ...generic.Element) generic.Element {
	t.Helper()
	g := generic.Element{
		ID:      generic.ElementID(generic.NewID()),
		Name:    name,
		Kind:    generic.KindGroup,
		Current: true,
		Group:   &generic.GroupInfo{ResourceGroup: true, StartsOn: generic.NewTimePoint(2024, time.September, 1)},
	}
	require.NoError(t, f.store.SaveElement(f.ctx, g))
	for _, m := range members {
		f.member(t, g, m, false)
	}
	return g
}

func (f *fixture) member(t *testing.T, group, member generic.Element, inverse bool) {
	t.Helper()
	_, err := f.engine.AddMembership(f.ctx, generic.Membership{
		GroupID:  group.ID,
		MemberID: member.ID,
		Inverse:  inverse,
		StartsOn: generic.NewTimePoint(2024, time.September, 1),
	})
	require.NoError(t, err)
}

// owns gives the user an owning concern on the element.
func (f *fixture) owns(t *testing.T, u *generic.User, e generic.Element) generic.Concern {
	t.Helper()
	c, err := f.engine.SaveConcern(f.ctx, generic.Concern{UserID: u.ID, ElementID: e.ID, Owns: true, Visible: true}, nil)
	require.NoError(t, err)
	return *c
}

func (f *fixture) event(t *testing.T, owner *generic.User, body string) *generic.Event {
	t.Helper()
	ev, err := f.engine.CreateEvent(f.ctx, generic.EventInput{Body: body, StartsAt: monday}, owner)
	require.NoError(t, err)
	return ev
}

func (f *fixture) attach(t *testing.T, ev *generic.Event, actor *generic.User, elements ...generic.Element) *generic.AttachResult {
	t.Helper()
	ids := make([]generic.ElementID, len(elements))
	for i, e := range elements {
		ids[i] = e.ID
	}
	res, err := f.engine.AttachElements(f.ctx, generic.AttachInput{EventID: ev.ID, ElementIDs: ids}, actor)
	require.NoError(t, err)
	return res
}

func (f *fixture) commitment(t *testing.T, id generic.CommitmentID) generic.Commitment {
	t.Helper()
	c, err := f.store.GetCommitment(f.ctx, id)
	require.NoError(t, err)
	return *c
}

func (f *fixture) entries(t *testing.T, id generic.EventID) []generic.JournalEntry {
	t.Helper()
	entries, err := f.engine.JournalEntries(f.ctx, id)
	require.NoError(t, err)
	return entries
}

func kinds(entries []generic.JournalEntry) []generic.EntryKind {
	out := make([]generic.EntryKind, len(entries))
	for i, e := range entries {
		out[i] = e.Kind
	}
	return out
}
