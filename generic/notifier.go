/*
notifier.go - Notification batching for requirement edits

PURPOSE:
  Owners of controlled resources want to hear when someone asks for (or
  stops asking for) their resource. RequestNotifier works out the NET
  change and sends as few messages as possible.

TWO MODES:

  Interactive (one event, one editing session):
    Tracks element ids added to and removed from the event being edited.
    An add followed by a remove of the same element cancels out, and vice
    versa. SendNotificationsFor sends one message per remaining element per
    owner. Instances live in the user's session (see api/sessions.go).

  Batch (one bulk operation, many events):
    Keyed by element, then by event. Add/remove of the same (element,
    event) pair cancels out. SendBatchNotifications sends ONE message per
    element per owner, however many events were touched.

FILTERING (both modes):
  - Only tentative commitments count. An approved commitment needs no
    owner attention.
  - Removals of rejected commitments are ignored; the rejection message
    already told everyone.
  - Only owners with ImmediateNotification set receive anything.

  A notifier is used by one goroutine at a time; the session registry
  serialises access for interactive use.
*/
package generic

import (
	"context"
	"slices"
)

type RequestNotifier struct {
	Store Store
	Sink  NotificationSink

	// interactive mode
	added   []ElementID
	removed []ElementID

	// batch mode
	records map[ElementID]*elementRecord
	order   []ElementID
}

func NewRequestNotifier(store Store, sink NotificationSink) *RequestNotifier {
	return &RequestNotifier{
		Store:   store,
		Sink:    sink,
		records: make(map[ElementID]*elementRecord),
	}
}

// elementRecord holds every event one element gained or lost in a batch.
type elementRecord struct {
	eventBody string
	added     map[EventID]string
	removed   map[EventID]string
	addOrder  []EventID
	remOrder  []EventID
}

func (r *elementRecord) commitmentAdded(ev Event) {
	if _, ok := r.removed[ev.ID]; ok {
		delete(r.removed, ev.ID)
		return
	}
	if _, ok := r.added[ev.ID]; !ok {
		r.addOrder = append(r.addOrder, ev.ID)
	}
	r.added[ev.ID] = ev.StartsAtText()
}

func (r *elementRecord) commitmentRemoved(ev Event) {
	if _, ok := r.added[ev.ID]; ok {
		delete(r.added, ev.ID)
		return
	}
	if _, ok := r.removed[ev.ID]; !ok {
		r.remOrder = append(r.remOrder, ev.ID)
	}
	r.removed[ev.ID] = ev.StartsAtText()
}

func (r *elementRecord) empty() bool {
	return len(r.added) == 0 && len(r.removed) == 0
}

func (r *elementRecord) summary() *BatchSummary {
	s := &BatchSummary{EventBody: r.eventBody}
	for _, id := range r.addOrder {
		if text, ok := r.added[id]; ok {
			s.Added = append(s.Added, EventStamp{EventID: id, StartsAt: text})
		}
	}
	for _, id := range r.remOrder {
		if text, ok := r.removed[id]; ok {
			s.Removed = append(s.Removed, EventStamp{EventID: id, StartsAt: text})
		}
	}
	return s
}

// =============================================================================
// INTERACTIVE MODE
// =============================================================================

// CommitmentAdded records a commitment added to the event being edited.
func (n *RequestNotifier) CommitmentAdded(c Commitment) {
	if !c.Tentative() {
		return
	}
	if i := slices.Index(n.removed, c.ElementID); i >= 0 {
		n.removed = slices.Delete(n.removed, i, i+1)
		return
	}
	if !slices.Contains(n.added, c.ElementID) {
		n.added = append(n.added, c.ElementID)
	}
}

// CommitmentRemoved records a commitment removed from the event being edited.
func (n *RequestNotifier) CommitmentRemoved(c Commitment) {
	if !c.Tentative() || c.Rejected() {
		return
	}
	if i := slices.Index(n.added, c.ElementID); i >= 0 {
		n.added = slices.Delete(n.added, i, i+1)
		return
	}
	if !slices.Contains(n.removed, c.ElementID) {
		n.removed = append(n.removed, c.ElementID)
	}
}

// Pending reports whether the session has net changes to announce.
func (n *RequestNotifier) Pending() bool {
	return len(n.added) > 0 || len(n.removed) > 0
}

// SendNotificationsFor ends the editing session of ev. With deleting set,
// the session's own records are ignored and every pending commitment of
// the event produces a cancellation notice instead. Returns the number of
// notifications handed to the sink.
func (n *RequestNotifier) SendNotificationsFor(ctx context.Context, actor *User, ev Event, deleting bool) (int, error) {
	var out []Notification
	if deleting {
		notices, err := cancellationNotices(ctx, n.Store, ev, actor)
		if err != nil {
			return 0, err
		}
		out = notices
	} else {
		for _, id := range n.removed {
			notices, err := ownerNotices(ctx, n.Store, id, func(owner User, el Element) Notification {
				return Notification{Kind: NotifyResourceCancelled, Recipient: owner, Actor: actor, Element: &el, Event: &ev}
			})
			if err != nil {
				return 0, err
			}
			out = append(out, notices...)
		}
		for _, id := range n.added {
			notices, err := ownerNotices(ctx, n.Store, id, func(owner User, el Element) Notification {
				return Notification{Kind: NotifyResourceRequested, Recipient: owner, Actor: actor, Element: &el, Event: &ev}
			})
			if err != nil {
				return 0, err
			}
			out = append(out, notices...)
		}
		n.added, n.removed = nil, nil
	}
	for _, note := range out {
		deliver(ctx, n.Sink, note)
	}
	return len(out), nil
}

// cancellationNotices builds one notice per owner of each element whose
// commitment on ev is still pending.
func cancellationNotices(ctx context.Context, s Store, ev Event, actor *User) ([]Notification, error) {
	commitments, err := s.CommitmentsForEvent(ctx, ev.ID)
	if err != nil {
		return nil, err
	}
	var out []Notification
	for _, c := range commitments {
		if !c.Tentative() || c.Rejected() {
			continue
		}
		notices, err := ownerNotices(ctx, s, c.ElementID, func(owner User, el Element) Notification {
			return Notification{Kind: NotifyResourceCancelled, Recipient: owner, Actor: actor, Element: &el, Event: &ev}
		})
		if err != nil {
			return nil, err
		}
		out = append(out, notices...)
	}
	return out, nil
}

// ownerNotices builds a notification for each owner of the element who
// wants immediate notification. A vanished element yields nothing.
func ownerNotices(ctx context.Context, s Store, id ElementID, build func(User, Element) Notification) ([]Notification, error) {
	el, err := s.GetElement(ctx, id)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	owners, err := Owners(ctx, s, id)
	if err != nil {
		return nil, err
	}
	var out []Notification
	for _, owner := range owners {
		if owner.ImmediateNotification {
			out = append(out, build(owner, *el))
		}
	}
	return out, nil
}

// =============================================================================
// BATCH MODE
// =============================================================================

func (n *RequestNotifier) record(elementID ElementID, ev Event) *elementRecord {
	r, ok := n.records[elementID]
	if !ok {
		r = &elementRecord{
			eventBody: ev.Body,
			added:     make(map[EventID]string),
			removed:   make(map[EventID]string),
		}
		n.records[elementID] = r
		n.order = append(n.order, elementID)
	}
	return r
}

func (n *RequestNotifier) BatchCommitmentAdded(c Commitment, ev Event) {
	if !c.Tentative() {
		return
	}
	n.record(c.ElementID, ev).commitmentAdded(ev)
}

func (n *RequestNotifier) BatchCommitmentRemoved(c Commitment, ev Event) {
	if !c.Tentative() || c.Rejected() {
		return
	}
	n.record(c.ElementID, ev).commitmentRemoved(ev)
}

// SendBatchNotifications sends one summary per element with net changes,
// to each of its owners. Returns the number of notifications sent.
func (n *RequestNotifier) SendBatchNotifications(ctx context.Context, actor *User) (int, error) {
	out, err := n.batchNotices(ctx, actor)
	if err != nil {
		return 0, err
	}
	for _, note := range out {
		deliver(ctx, n.Sink, note)
	}
	return len(out), nil
}

func (n *RequestNotifier) batchNotices(ctx context.Context, actor *User) ([]Notification, error) {
	var out []Notification
	for _, id := range n.order {
		rec := n.records[id]
		if rec.empty() {
			continue
		}
		summary := rec.summary()
		notices, err := ownerNotices(ctx, n.Store, id, func(owner User, el Element) Notification {
			return Notification{Kind: NotifyResourceBatch, Recipient: owner, Actor: actor, Element: &el, Batch: summary}
		})
		if err != nil {
			return nil, err
		}
		out = append(out, notices...)
	}
	n.records = make(map[ElementID]*elementRecord)
	n.order = nil
	return out, nil
}
