/*
sessions.go - Interactive notification sessions

PURPOSE:
  While a user edits an event, every attachment and removal is fed to a
  RequestNotifier kept for that (user, event) pair. Nothing is sent until
  the user finishes editing (POST /api/events/{id}/notify), so an add
  followed by a remove of the same resource never bothers its owner.

LIFECYCLE:
  - Opened lazily on the first attach/remove.
  - Flush sends and closes the session.
  - Destroying the event discards every session on it; DestroyEvent
    already told the owners.

CONCURRENCY:
  The registry lock serialises access to each notifier. Flush takes the
  notifier out of the registry before sending, so slow mail never holds
  the lock.
*/
package api

import (
	"context"
	"sync"

	"github.com/warp/scheduling-engine/generic"
)

type sessionKey struct {
	user  generic.UserID // "" = system
	event generic.EventID
}

type Sessions struct {
	store generic.Store
	sink  generic.NotificationSink

	mu   sync.Mutex
	open map[sessionKey]*generic.RequestNotifier
}

func NewSessions(store generic.Store, sink generic.NotificationSink) *Sessions {
	return &Sessions{store: store, sink: sink, open: make(map[sessionKey]*generic.RequestNotifier)}
}

func keyFor(actor *generic.User, eventID generic.EventID) sessionKey {
	k := sessionKey{event: eventID}
	if actor != nil {
		k.user = actor.ID
	}
	return k
}

// notifier returns the session's notifier, opening one if needed.
// Callers hold s.mu.
func (s *Sessions) notifier(k sessionKey) *generic.RequestNotifier {
	n, ok := s.open[k]
	if !ok {
		n = generic.NewRequestNotifier(s.store, s.sink)
		s.open[k] = n
	}
	return n
}

func (s *Sessions) Added(actor *generic.User, eventID generic.EventID, commitments ...generic.Commitment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.notifier(keyFor(actor, eventID))
	for _, c := range commitments {
		n.CommitmentAdded(c)
	}
}

func (s *Sessions) Removed(actor *generic.User, eventID generic.EventID, c generic.Commitment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifier(keyFor(actor, eventID)).CommitmentRemoved(c)
}

// Pending reports whether the session has anything to send.
func (s *Sessions) Pending(actor *generic.User, eventID generic.EventID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.open[keyFor(actor, eventID)]
	return ok && n.Pending()
}

// Flush sends the session's notifications and closes it. Returns the
// number of messages sent.
func (s *Sessions) Flush(ctx context.Context, actor *generic.User, ev generic.Event) (int, error) {
	k := keyFor(actor, ev.ID)
	s.mu.Lock()
	n, ok := s.open[k]
	delete(s.open, k)
	s.mu.Unlock()
	if !ok {
		return 0, nil
	}
	return n.SendNotificationsFor(ctx, actor, ev, false)
}

// Discard drops every session on the event without sending.
func (s *Sessions) Discard(eventID generic.EventID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.open {
		if k.event == eventID {
			delete(s.open, k)
		}
	}
}

func (s *Sessions) DiscardAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.open)
}
