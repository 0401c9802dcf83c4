/*
fulfillment.go - Matching requests against concrete resources

PURPOSE:
  A Request asks for Quantity members of a resource group. Fulfilment
  attaches specific members as covering commitments until nothing is
  outstanding.

KEY CONCEPTS:
  - Covering commitment: Commitment with Covering set. Derived; it exists
    only because a request was fulfilled.
  - num_allocated: ALWAYS a live count of covering commitments
    (RequirementStore.CountCovering). There is no cached counter.
  - num_outstanding = Quantity - num_allocated. It may go negative while a
    request is over-allocated.

ELIGIBILITY:
  Only recursive members of the request's group on the event's day may
  fulfil it. The group itself never counts as its own member.

EVICTION:
  When Quantity drops below num_allocated, the most recently created
  coverings are destroyed first until the two agree. Adjust and decrement
  do this immediately; the reconciliation sweep (ReconcileAll) catches
  anything left over-allocated by other paths.
*/
package generic

import (
	"context"
	"fmt"
	"log"

	"github.com/shopspring/decimal"
)

// Allocation is a request together with its live allocation counts.
type Allocation struct {
	Request        Request
	NumAllocated   int
	NumOutstanding int
}

// Coverage returns allocated / quantity, capped at 1. A zero-quantity
// request counts as fully covered.
func (a Allocation) Coverage() decimal.Decimal {
	if a.Request.Quantity <= 0 {
		return decimal.NewFromInt(1)
	}
	ratio := decimal.NewFromInt(int64(a.NumAllocated)).
		Div(decimal.NewFromInt(int64(a.Request.Quantity)))
	if ratio.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.NewFromInt(1)
	}
	return ratio.Round(4)
}

func (a Allocation) OverAllocated() bool {
	return a.NumOutstanding < 0
}

func allocationOf(ctx context.Context, s RequirementStore, r Request) (*Allocation, error) {
	n, err := s.CountCovering(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	return &Allocation{Request: r, NumAllocated: n, NumOutstanding: r.Quantity - n}, nil
}

func (e *Engine) Allocation(ctx context.Context, id RequestID) (*Allocation, error) {
	r, err := e.Store.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	return allocationOf(ctx, e.Store, *r)
}

// =============================================================================
// FULFIL / UNFULFIL
// =============================================================================

// Fulfill allocates element to the request as a covering commitment.
func (e *Engine) Fulfill(ctx context.Context, id RequestID, elementID ElementID, actor *User) (*Commitment, error) {
	var out *Commitment
	err := e.Store.WithTx(ctx, func(tx Store) error {
		r, err := tx.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		ev, err := tx.GetEvent(ctx, r.EventID)
		if err != nil {
			return err
		}
		el, err := tx.GetElement(ctx, elementID)
		if err != nil {
			return err
		}

		// Only members qualify; the pool group itself is never committable here.
		member, err := IsMember(ctx, tx, r.ElementID, el.ID, ev.Day())
		if err != nil {
			return err
		}
		if !member {
			return ErrNotAMember
		}
		coverings, err := tx.CoveringCommitments(ctx, r.ID)
		if err != nil {
			return err
		}
		for _, c := range coverings {
			if c.ElementID == el.ID {
				return ErrAlreadyAllocated
			}
		}
		alloc, err := allocationOf(ctx, tx, *r)
		if err != nil {
			return err
		}
		if alloc.NumOutstanding <= 0 {
			return ErrFullyAllocated
		}

		out, err = e.newCommitment(ctx, tx, *ev, *el, &r.ID, actor)
		if err != nil {
			return err
		}
		logJournal(e.journaler(tx).RequestAllocated(ctx, *ev, *r, el.ID, actor))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Unfulfill destroys a covering commitment. The request itself stays.
func (e *Engine) Unfulfill(ctx context.Context, id CommitmentID, actor *User) (*Commitment, error) {
	var removed Commitment
	err := e.Store.WithTx(ctx, func(tx Store) error {
		c, err := tx.GetCommitment(ctx, id)
		if err != nil {
			return err
		}
		if c.Direct() {
			return ErrNotCovering
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

// BulkResult is the outcome of BulkFulfill.
type BulkResult struct {
	Commitments []Commitment
	Failures    []ElementFailure
}

// BulkFulfill tries each element in turn, collecting failures. It stops
// early only on store errors.
func (e *Engine) BulkFulfill(ctx context.Context, id RequestID, elementIDs []ElementID, actor *User) (*BulkResult, error) {
	if _, err := e.Store.GetRequest(ctx, id); err != nil {
		return nil, err
	}
	result := &BulkResult{}
	for _, elementID := range elementIDs {
		c, err := e.Fulfill(ctx, id, elementID, actor)
		if err != nil {
			if IsClientError(err) || IsNotFound(err) {
				result.Failures = append(result.Failures, ElementFailure{ElementID: elementID, Err: err})
				continue
			}
			return result, err
		}
		result.Commitments = append(result.Commitments, *c)
	}
	return result, nil
}

// =============================================================================
// QUANTITY CHANGES
// =============================================================================

// AdjustRequest sets the quantity, evicting excess coverings.
func (e *Engine) AdjustRequest(ctx context.Context, id RequestID, quantity int, actor *User) (*Allocation, error) {
	if quantity < 0 {
		return nil, ErrInvalidQuantity
	}
	return e.changeQuantity(ctx, id, actor, func(r *Request) (EntryKind, error) {
		r.Quantity = quantity
		return EntryRequestAdjusted, nil
	})
}

// DecrementRequest lowers the quantity by one, evicting the newest
// covering if that leaves the request over-allocated.
func (e *Engine) DecrementRequest(ctx context.Context, id RequestID, actor *User) (*Allocation, error) {
	return e.changeQuantity(ctx, id, actor, func(r *Request) (EntryKind, error) {
		if r.Quantity == 0 {
			return "", ErrInvalidQuantity
		}
		r.Quantity--
		return EntryRequestDecremented, nil
	})
}

// changeQuantity lets change set the new quantity, journals it and trims
// coverings to match.
func (e *Engine) changeQuantity(ctx context.Context, id RequestID, actor *User, change func(*Request) (EntryKind, error)) (*Allocation, error) {
	var out *Allocation
	err := e.Store.WithTx(ctx, func(tx Store) error {
		r, err := tx.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		ev, err := tx.GetEvent(ctx, r.EventID)
		if err != nil {
			return err
		}
		old := r.Quantity
		kind, err := change(r)
		if err != nil {
			return err
		}
		r.UpdatedAt = e.now()
		if err := tx.UpdateRequest(ctx, *r); err != nil {
			return fmt.Errorf("failed to update request: %w", err)
		}

		j := e.journaler(tx)
		if kind == EntryRequestDecremented {
			logJournal(j.RequestDecremented(ctx, *ev, *r, actor))
		} else {
			logJournal(j.RequestAdjusted(ctx, *ev, *r, old, actor))
		}

		if _, err := e.trimExcess(ctx, tx, *ev, *r, actor); err != nil {
			return err
		}
		out, err = allocationOf(ctx, tx, *r)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// trimExcess destroys coverings beyond the request's quantity, newest
// first, and returns what it destroyed.
func (e *Engine) trimExcess(ctx context.Context, tx Store, ev Event, r Request, actor *User) ([]Commitment, error) {
	coverings, err := tx.CoveringCommitments(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	excess := len(coverings) - r.Quantity
	if excess <= 0 {
		return nil, nil
	}
	var evicted []Commitment
	for i := len(coverings) - 1; i >= 0 && len(evicted) < excess; i-- {
		c := coverings[i]
		if err := e.removeCommitment(ctx, tx, ev, c, actor); err != nil {
			return nil, err
		}
		evicted = append(evicted, c)
	}
	return evicted, nil
}

// DestroyRequest removes the request together with its coverings, which
// are returned.
func (e *Engine) DestroyRequest(ctx context.Context, id RequestID, actor *User) ([]Commitment, error) {
	var removed []Commitment
	err := e.Store.WithTx(ctx, func(tx Store) error {
		r, err := tx.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		ev, err := tx.GetEvent(ctx, r.EventID)
		if err != nil {
			return err
		}
		removed, err = e.destroyRequest(ctx, tx, *ev, *r, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

func (e *Engine) destroyRequest(ctx context.Context, tx Store, ev Event, r Request, actor *User) ([]Commitment, error) {
	coverings, err := tx.CoveringCommitments(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	for _, c := range coverings {
		if err := e.removeCommitment(ctx, tx, ev, c, actor); err != nil {
			return nil, err
		}
	}
	if err := tx.DeleteRequest(ctx, r.ID); err != nil {
		return nil, err
	}
	logJournal(e.journaler(tx).RequestDestroyed(ctx, ev, r, actor))
	return coverings, nil
}

// ReconfirmRequest records that the request is still wanted as it stands.
func (e *Engine) ReconfirmRequest(ctx context.Context, id RequestID, actor *User) (*Request, error) {
	var out Request
	err := e.Store.WithTx(ctx, func(tx Store) error {
		r, err := tx.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		ev, err := tx.GetEvent(ctx, r.EventID)
		if err != nil {
			return err
		}
		r.UpdatedAt = e.now()
		if err := tx.UpdateRequest(ctx, *r); err != nil {
			return err
		}
		out = *r
		logJournal(e.journaler(tx).RequestReconfirmed(ctx, *ev, *r, actor))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// =============================================================================
// RECONCILIATION
// =============================================================================

// ReconcileRequest trims an over-allocated request back to its quantity.
// Returns the number of coverings destroyed.
func (e *Engine) ReconcileRequest(ctx context.Context, id RequestID, actor *User) (int, error) {
	var n int
	err := e.Store.WithTx(ctx, func(tx Store) error {
		r, err := tx.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		ev, err := tx.GetEvent(ctx, r.EventID)
		if err != nil {
			return err
		}
		evicted, err := e.trimExcess(ctx, tx, *ev, *r, actor)
		n = len(evicted)
		return err
	})
	return n, err
}

// ReconcileAll runs ReconcileRequest over every request, one transaction
// each. A failing request is logged and skipped.
func (e *Engine) ReconcileAll(ctx context.Context) (int, error) {
	requests, err := e.Store.ListRequests(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, r := range requests {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := e.ReconcileRequest(ctx, r.ID, nil)
		if err != nil {
			log.Printf("[Reconcile] request %s: %v", r.ID, err)
			continue
		}
		total += n
	}
	return total, nil
}
