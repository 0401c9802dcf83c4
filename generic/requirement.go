/*
requirement.go - Attaching elements to events

PURPOSE:
  Attaching an element to an event creates one of two requirement kinds:

    ordinary element  -> Commitment, status computed by InitialStatus
    resource group    -> Request for Quantity members of the pool

  A second attachment of the same ordinary element is refused with
  ErrDuplicateAttachment. A second attachment of the same resource group
  is merged: the existing Request's quantity goes up by one.

BATCHES:
  AttachElements runs each element in its own transaction and collects
  per-element failures. One bad element never stops the rest.
*/
package generic

import (
	"context"
	"fmt"
)

// Requirement is what CreateRequirement produced. Exactly one of
// Commitment and Request is set.
type Requirement struct {
	Commitment *Commitment
	Request    *Request

	// Merged is true when an existing Request absorbed the attachment.
	Merged bool
}

type RequirementInput struct {
	EventID   EventID
	ElementID ElementID

	// Quantity applies to new Requests only. nil = 1.
	Quantity *int
}

type AttachInput struct {
	EventID    EventID
	ElementIDs []ElementID
}

type AttachResult struct {
	Commitments []Commitment
	Requests    []Request
	Failures    []ElementFailure
}

func (e *Engine) CreateRequirement(ctx context.Context, in RequirementInput, actor *User) (*Requirement, error) {
	if in.Quantity != nil && *in.Quantity < 0 {
		return nil, ErrInvalidQuantity
	}
	var out *Requirement
	err := e.Store.WithTx(ctx, func(tx Store) error {
		ev, err := tx.GetEvent(ctx, in.EventID)
		if err != nil {
			return err
		}
		el, err := tx.GetElement(ctx, in.ElementID)
		if err != nil {
			return err
		}
		out, err = e.createRequirement(ctx, tx, *ev, *el, in.Quantity, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AttachElements attaches each element to the event. Per-element failures
// are reported in the result; only a missing event or a store failure
// aborts.
func (e *Engine) AttachElements(ctx context.Context, in AttachInput, actor *User) (*AttachResult, error) {
	if _, err := e.Store.GetEvent(ctx, in.EventID); err != nil {
		return nil, err
	}
	result := &AttachResult{}
	for _, id := range in.ElementIDs {
		req, err := e.CreateRequirement(ctx, RequirementInput{EventID: in.EventID, ElementID: id}, actor)
		if err != nil {
			if IsClientError(err) || IsNotFound(err) {
				result.Failures = append(result.Failures, ElementFailure{ElementID: id, Err: err})
				continue
			}
			return result, err
		}
		if req.Commitment != nil {
			result.Commitments = append(result.Commitments, *req.Commitment)
		}
		if req.Request != nil {
			result.Requests = appendOrReplaceRequest(result.Requests, *req.Request)
		}
	}
	return result, nil
}

// appendOrReplaceRequest keeps one entry per request, the latest version.
func appendOrReplaceRequest(list []Request, r Request) []Request {
	for i := range list {
		if list[i].ID == r.ID {
			list[i] = r
			return list
		}
	}
	return append(list, r)
}

func (e *Engine) createRequirement(ctx context.Context, tx Store, ev Event, el Element, quantity *int, actor *User) (*Requirement, error) {
	now := e.now()
	j := e.journaler(tx)

	if el.IsResourceGroup() {
		existing, err := tx.FindRequest(ctx, ev.ID, el.ID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			existing.Quantity++
			existing.UpdatedAt = now
			if err := tx.UpdateRequest(ctx, *existing); err != nil {
				return nil, fmt.Errorf("failed to update request: %w", err)
			}
			logJournal(j.RequestIncremented(ctx, ev, *existing, actor))
			return &Requirement{Request: existing, Merged: true}, nil
		}
		r := Request{
			ID:        RequestID(NewID()),
			EventID:   ev.ID,
			ElementID: el.ID,
			Quantity:  1,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if quantity != nil {
			r.Quantity = *quantity
		}
		if err := tx.CreateRequest(ctx, r); err != nil {
			return nil, err
		}
		logJournal(j.RequestCreated(ctx, ev, r, actor))
		return &Requirement{Request: &r}, nil
	}

	c, err := e.newCommitment(ctx, tx, ev, el, nil, actor)
	if err != nil {
		return nil, err
	}
	logJournal(j.CommitmentAdded(ctx, ev, *c, actor))
	return &Requirement{Commitment: c}, nil
}

// newCommitment creates a commitment of el on ev with the status the
// actor is entitled to. covering nil = direct attachment.
func (e *Engine) newCommitment(ctx context.Context, tx Store, ev Event, el Element, covering *RequestID, actor *User) (*Commitment, error) {
	if covering == nil {
		dup, err := directCommitment(ctx, tx, ev.ID, el.ID)
		if err != nil {
			return nil, err
		}
		if dup != nil {
			return nil, ErrDuplicateAttachment
		}
	}
	status, err := InitialStatus(ctx, e.oracle(tx), e.Settings, actor, el)
	if err != nil {
		return nil, err
	}
	now := e.now()
	c := Commitment{
		ID:        CommitmentID(NewID()),
		EventID:   ev.ID,
		ElementID: el.ID,
		Status:    status,
		Covering:  covering,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if actor != nil {
		id := actor.ID
		c.ByUserID = &id
	}
	if err := tx.CreateCommitment(ctx, c); err != nil {
		return nil, err
	}
	return &c, nil
}

func directCommitment(ctx context.Context, s Store, eventID EventID, elementID ElementID) (*Commitment, error) {
	commitments, err := s.CommitmentsForEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	for _, c := range commitments {
		if c.Direct() && c.ElementID == elementID {
			return &c, nil
		}
	}
	return nil, nil
}

// RemoveCommitment detaches a commitment from its event. Removing a
// covering commitment deallocates it from its request. The removed record
// is returned so the caller can feed its session notifier.
func (e *Engine) RemoveCommitment(ctx context.Context, id CommitmentID, actor *User) (*Commitment, error) {
	var removed Commitment
	err := e.Store.WithTx(ctx, func(tx Store) error {
		c, err := tx.GetCommitment(ctx, id)
		if err != nil {
			return err
		}
		ev, err := tx.GetEvent(ctx, c.EventID)
		if err != nil {
			return err
		}
		removed = *c
		return e.removeCommitment(ctx, tx, *ev, *c, actor)
	})
	if err != nil {
		return nil, err
	}
	return &removed, nil
}

func (e *Engine) removeCommitment(ctx context.Context, tx Store, ev Event, c Commitment, actor *User) error {
	if err := tx.DeleteAttachments(ctx, CommitmentParent(c.ID)); err != nil {
		return err
	}
	if err := tx.DeleteCommitment(ctx, c.ID); err != nil {
		return err
	}
	j := e.journaler(tx)
	if c.Covering != nil {
		r, err := tx.GetRequest(ctx, *c.Covering)
		if err != nil && !IsNotFound(err) {
			return err
		}
		if r != nil {
			logJournal(j.RequestDeallocated(ctx, ev, *r, c.ElementID, actor))
			return nil
		}
	}
	logJournal(j.CommitmentRemoved(ctx, ev, c, actor))
	return nil
}
