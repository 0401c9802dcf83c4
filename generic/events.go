package generic

import (
	"context"
	"fmt"
	"time"
)

// EventInput creates an event. EndsAt nil means StartsAt plus the
// configured default duration (one day for all-day events).
type EventInput struct {
	Body        string
	StartsAt    time.Time
	EndsAt      *time.Time
	AllDay      bool
	Category    string
	Source      string
	OrganiserID *ElementID
}

// EventPatch updates an event. Nil fields are left alone.
type EventPatch struct {
	Body        *string
	StartsAt    *time.Time
	EndsAt      *time.Time
	AllDay      *bool
	Category    *string
	Source      *string
	OrganiserID *ElementID
	NonExistent *bool
}

func (e *Engine) CreateEvent(ctx context.Context, in EventInput, actor *User) (*Event, error) {
	now := e.now()
	ev := Event{
		ID:          EventID(NewID()),
		Body:        in.Body,
		StartsAt:    in.StartsAt,
		AllDay:      in.AllDay,
		Category:    in.Category,
		Source:      in.Source,
		OrganiserID: in.OrganiserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	switch {
	case in.EndsAt != nil:
		ev.EndsAt = *in.EndsAt
	case in.AllDay:
		ev.EndsAt = in.StartsAt.AddDate(0, 0, 1)
	default:
		ev.EndsAt = in.StartsAt.Add(e.Settings.DefaultEventDuration)
	}
	ev.StartsAt, ev.EndsAt = e.local(ev.StartsAt), e.local(ev.EndsAt)
	if ev.EndsAt.Before(ev.StartsAt) {
		return nil, ErrInvalidPeriod
	}
	if actor != nil {
		id := actor.ID
		ev.OwnerID = &id
	}

	err := e.Store.WithTx(ctx, func(tx Store) error {
		if err := tx.SaveEvent(ctx, ev); err != nil {
			return fmt.Errorf("failed to save event: %w", err)
		}
		logJournal(e.journaler(tx).EventCreated(ctx, ev, actor))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// UpdateEvent applies the patch and journals one entry per changed field.
func (e *Engine) UpdateEvent(ctx context.Context, id EventID, patch EventPatch, actor *User) (*Event, error) {
	var after Event
	err := e.Store.WithTx(ctx, func(tx Store) error {
		current, err := tx.GetEvent(ctx, id)
		if err != nil {
			return err
		}
		before := *current
		after = before
		applyEventPatch(&after, patch)
		after.StartsAt, after.EndsAt = e.local(after.StartsAt), e.local(after.EndsAt)
		if after.EndsAt.Before(after.StartsAt) {
			return ErrInvalidPeriod
		}
		after.UpdatedAt = e.now()
		if err := tx.SaveEvent(ctx, after); err != nil {
			return fmt.Errorf("failed to save event: %w", err)
		}
		_, err = e.journaler(tx).EventUpdated(ctx, before, after, actor)
		logJournal(err)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &after, nil
}

func applyEventPatch(ev *Event, p EventPatch) {
	if p.Body != nil {
		ev.Body = *p.Body
	}
	if p.StartsAt != nil {
		// moving the start keeps the duration unless the end moves too
		if p.EndsAt == nil {
			ev.EndsAt = p.StartsAt.Add(ev.EndsAt.Sub(ev.StartsAt))
		}
		ev.StartsAt = *p.StartsAt
	}
	if p.EndsAt != nil {
		ev.EndsAt = *p.EndsAt
	}
	if p.AllDay != nil {
		ev.AllDay = *p.AllDay
	}
	if p.Category != nil {
		ev.Category = *p.Category
	}
	if p.Source != nil {
		ev.Source = *p.Source
	}
	if p.OrganiserID != nil {
		id := *p.OrganiserID
		ev.OrganiserID = &id
	}
	if p.NonExistent != nil {
		ev.NonExistent = *p.NonExistent
	}
}

// DestroyEvent removes the event and everything it owns. Owners of
// still-pending resources are told the request was cancelled. The journal
// survives.
func (e *Engine) DestroyEvent(ctx context.Context, id EventID, actor *User) error {
	var notices []Notification
	err := e.Store.WithTx(ctx, func(tx Store) error {
		ev, err := tx.GetEvent(ctx, id)
		if err != nil {
			return err
		}
		notices, err = cancellationNotices(ctx, tx, *ev, actor)
		if err != nil {
			return err
		}
		logJournal(e.journaler(tx).EventDestroyed(ctx, *ev, actor))

		if err := destroyRequirements(ctx, tx, ev.ID); err != nil {
			return err
		}
		if err := tx.DeleteAttachments(ctx, EventParent(ev.ID)); err != nil {
			return err
		}
		return tx.DeleteEvent(ctx, ev.ID)
	})
	if err != nil {
		return err
	}
	e.deliverAll(ctx, notices)
	return nil
}

// destroyRequirements deletes coverings before the requests they cover.
func destroyRequirements(ctx context.Context, s Store, id EventID) error {
	commitments, err := s.CommitmentsForEvent(ctx, id)
	if err != nil {
		return err
	}
	for _, c := range commitments {
		if err := s.DeleteAttachments(ctx, CommitmentParent(c.ID)); err != nil {
			return err
		}
		if err := s.DeleteCommitment(ctx, c.ID); err != nil {
			return err
		}
	}
	requests, err := s.RequestsForEvent(ctx, id)
	if err != nil {
		return err
	}
	for _, r := range requests {
		if err := s.DeleteRequest(ctx, r.ID); err != nil {
			return err
		}
	}
	return nil
}
