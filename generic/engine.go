/*
engine.go - Entry point for every state transition

PURPOSE:
  Engine ties the store, the permission oracle, the journal and the
  notification sink together. Each public operation runs in exactly one
  WithTx episode, re-reads the records it is about to change, writes its
  journal entries inside the same transaction, and only after commit hands
  notifications to the sink.

ORDERING OF SIDE EFFECTS:
  1. Fresh read + precondition checks (inside the transaction)
  2. Mutation
  3. Journal entries (inside the transaction, failures logged)
  4. Commit
  5. Notifications (after commit, failures logged)

  A failed journal write or notification never undoes step 2.

ACTORS:
  Every operation takes the acting user as *User. nil means the system
  (reconciliation sweeps, fixtures) and is journalled without a user.
*/
package generic

import (
	"context"
	"log"
	"time"
)

type Engine struct {
	Store TxStore

	// Oracle answers permission questions. nil = ConcernOracle reading
	// through the current transaction.
	Oracle PermissionOracle

	Sink     NotificationSink
	Settings Settings

	// Now is overridable for tests.
	Now func() time.Time
}

func NewEngine(store TxStore, sink NotificationSink, settings Settings) *Engine {
	return &Engine{
		Store:    store,
		Sink:     sink,
		Settings: settings,
		Now:      time.Now,
	}
}

// local moves t into the school's time zone.
func (e *Engine) local(t time.Time) time.Time {
	if e.Settings.Location == nil {
		return t.UTC()
	}
	return t.In(e.Settings.Location)
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

func (e *Engine) oracle(s Store) PermissionOracle {
	if e.Oracle != nil {
		return e.Oracle
	}
	return ConcernOracle{Store: s}
}

func (e *Engine) journaler(s Store) *Journaler {
	return &Journaler{Store: s, Now: e.now, NewID: NewID}
}

// logJournal records a failed journal write. The surrounding transition
// carries on regardless.
func logJournal(err error) {
	if err != nil {
		log.Printf("[Journal] write failed: %v", err)
	}
}

func (e *Engine) deliverAll(ctx context.Context, notifications []Notification) {
	for _, n := range notifications {
		deliver(ctx, e.Sink, n)
	}
}

// =============================================================================
// READS
// =============================================================================

func (e *Engine) Event(ctx context.Context, id EventID) (*Event, error) {
	return e.Store.GetEvent(ctx, id)
}

// JournalEntries returns the event's journal in append order. It works
// after the event has been destroyed.
func (e *Engine) JournalEntries(ctx context.Context, id EventID) ([]JournalEntry, error) {
	return e.Store.JournalEntries(ctx, id)
}

// IsComplete is true once every commitment of the event is approved.
func (e *Engine) IsComplete(ctx context.Context, id EventID) (bool, error) {
	if _, err := e.Store.GetEvent(ctx, id); err != nil {
		return false, err
	}
	return eventComplete(ctx, e.Store, id)
}

func eventComplete(ctx context.Context, s Store, id EventID) (bool, error) {
	commitments, err := s.CommitmentsForEvent(ctx, id)
	if err != nil {
		return false, err
	}
	for _, c := range commitments {
		if c.Tentative() {
			return false, nil
		}
	}
	return true, nil
}

// loadActor resolves an optional user id. Unknown ids act as the system.
func loadActor(ctx context.Context, s UserStore, id *UserID) (*User, error) {
	if id == nil {
		return nil, nil
	}
	u, err := s.GetUser(ctx, *id)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}
