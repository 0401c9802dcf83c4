/*
clone.go - Event cloning and synchronisation

CLONE (CloneAndSave):
  New event, scalar fields copied with overrides applied, then:
    - every DIRECT commitment copied, status recomputed for the cloning
      user (approvals are never carried over: the clone is a new event)
    - every request copied with its quantity
    - covering commitments NOT copied: each copied request starts with
      nothing allocated
  Journals "repeated from" on the new event.

SYNC (MakeToMatch):
  Additive, one-directional. Anything the reference event has (by element)
  that the target lacks is created on the target. Nothing is removed.
  Running it twice changes nothing the second time.

BULK (CloneEvents, SyncEvents):
  All events in one transaction. Owner notifications go through a batch
  RequestNotifier: one message per element per owner for the whole run.
*/
package generic

import (
	"context"
	"fmt"
	"log"
	"time"
)

// EventOverrides replaces scalar fields of a cloned event. Nil = copy.
type EventOverrides struct {
	Body     *string
	StartsAt *time.Time
	EndsAt   *time.Time
	Category *string
}

// SyncResult lists what MakeToMatch created.
type SyncResult struct {
	Commitments []Commitment
	Requests    []Request
}

// CloneAndSave clones the event and returns the new one.
func (e *Engine) CloneAndSave(ctx context.Context, id EventID, actor *User, ov EventOverrides) (*Event, error) {
	clones, err := e.CloneEvents(ctx, id, actor, []EventOverrides{ov})
	if err != nil {
		return nil, err
	}
	return &clones[0], nil
}

// CloneEvents makes one clone of the event per overrides entry.
func (e *Engine) CloneEvents(ctx context.Context, id EventID, actor *User, overrides []EventOverrides) ([]Event, error) {
	notifier := NewRequestNotifier(e.Store, e.Sink)
	var clones []Event
	err := e.Store.WithTx(ctx, func(tx Store) error {
		src, err := tx.GetEvent(ctx, id)
		if err != nil {
			return err
		}
		for _, ov := range overrides {
			clone, err := e.cloneEvent(ctx, tx, *src, actor, ov, notifier)
			if err != nil {
				return err
			}
			clones = append(clones, *clone)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.sendBatch(ctx, notifier, actor)
	return clones, nil
}

func (e *Engine) cloneEvent(ctx context.Context, tx Store, src Event, actor *User, ov EventOverrides, notifier *RequestNotifier) (*Event, error) {
	now := e.now()
	clone := src
	clone.ID = EventID(NewID())
	clone.NonExistent = false
	clone.CreatedAt = now
	clone.UpdatedAt = now
	if actor != nil {
		uid := actor.ID
		clone.OwnerID = &uid
	}
	if ov.Body != nil {
		clone.Body = *ov.Body
	}
	if ov.StartsAt != nil {
		clone.StartsAt = *ov.StartsAt
		clone.EndsAt = ov.StartsAt.Add(src.EndsAt.Sub(src.StartsAt))
	}
	if ov.EndsAt != nil {
		clone.EndsAt = *ov.EndsAt
	}
	if ov.Category != nil {
		clone.Category = *ov.Category
	}
	clone.StartsAt, clone.EndsAt = e.local(clone.StartsAt), e.local(clone.EndsAt)
	if clone.EndsAt.Before(clone.StartsAt) {
		return nil, ErrInvalidPeriod
	}
	if err := tx.SaveEvent(ctx, clone); err != nil {
		return nil, fmt.Errorf("failed to save clone: %w", err)
	}
	logJournal(e.journaler(tx).RepeatedFrom(ctx, clone, src, actor))

	if _, err := e.copyMissing(ctx, tx, src, clone, actor, notifier); err != nil {
		return nil, err
	}
	return &clone, nil
}

// MakeToMatch adds to the target whatever the reference has that the
// target lacks.
func (e *Engine) MakeToMatch(ctx context.Context, targetID, referenceID EventID, actor *User) (*SyncResult, error) {
	results, err := e.SyncEvents(ctx, referenceID, []EventID{targetID}, actor)
	if err != nil {
		return nil, err
	}
	return &results[0], nil
}

// SyncEvents runs MakeToMatch against the reference for every target.
func (e *Engine) SyncEvents(ctx context.Context, referenceID EventID, targetIDs []EventID, actor *User) ([]SyncResult, error) {
	notifier := NewRequestNotifier(e.Store, e.Sink)
	var results []SyncResult
	err := e.Store.WithTx(ctx, func(tx Store) error {
		ref, err := tx.GetEvent(ctx, referenceID)
		if err != nil {
			return err
		}
		for _, id := range targetIDs {
			target, err := tx.GetEvent(ctx, id)
			if err != nil {
				return err
			}
			res, err := e.copyMissing(ctx, tx, *ref, *target, actor, notifier)
			if err != nil {
				return err
			}
			results = append(results, *res)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.sendBatch(ctx, notifier, actor)
	return results, nil
}

// copyMissing creates on dst each direct commitment and request of src
// whose element dst does not already have. Coverings are never copied.
func (e *Engine) copyMissing(ctx context.Context, tx Store, src, dst Event, actor *User, notifier *RequestNotifier) (*SyncResult, error) {
	result := &SyncResult{}
	j := e.journaler(tx)

	commitments, err := tx.CommitmentsForEvent(ctx, src.ID)
	if err != nil {
		return nil, err
	}
	for _, c := range commitments {
		if !c.Direct() {
			continue
		}
		existing, err := directCommitment(ctx, tx, dst.ID, c.ElementID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			continue
		}
		el, err := tx.GetElement(ctx, c.ElementID)
		if err != nil {
			return nil, err
		}
		created, err := e.newCommitment(ctx, tx, dst, *el, nil, actor)
		if err != nil {
			return nil, err
		}
		logJournal(j.CommitmentAdded(ctx, dst, *created, actor))
		notifier.BatchCommitmentAdded(*created, dst)
		result.Commitments = append(result.Commitments, *created)
	}

	requests, err := tx.RequestsForEvent(ctx, src.ID)
	if err != nil {
		return nil, err
	}
	for _, r := range requests {
		existing, err := tx.FindRequest(ctx, dst.ID, r.ElementID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			continue
		}
		now := e.now()
		copied := Request{
			ID:        RequestID(NewID()),
			EventID:   dst.ID,
			ElementID: r.ElementID,
			Quantity:  r.Quantity,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.CreateRequest(ctx, copied); err != nil {
			return nil, err
		}
		logJournal(j.RequestCreated(ctx, dst, copied, actor))
		result.Requests = append(result.Requests, copied)
	}
	return result, nil
}

func (e *Engine) sendBatch(ctx context.Context, notifier *RequestNotifier, actor *User) {
	if _, err := notifier.SendBatchNotifications(ctx, actor); err != nil {
		log.Printf("[Notify] batch failed: %v", err)
	}
}
