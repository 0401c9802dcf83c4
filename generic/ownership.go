package generic

import (
	"context"
	"fmt"
	"log"
)

// =============================================================================
// CONCERNS & OWNEDNESS
// =============================================================================
//
// Element.Owned is derived: true iff at least one owning concern points at
// the element. It is recomputed on every concern save and delete. A save
// of an owning concern is enough on its own to say "owned"; anything else
// means counting what is left.
//
// When Owned flips, rejected and noted commitments of the element go back
// to tentative: the people entitled to decide have changed.

// SaveConcern creates or updates a concern and keeps the element's Owned
// flag in step.
func (e *Engine) SaveConcern(ctx context.Context, c Concern, actor *User) (*Concern, error) {
	err := e.Store.WithTx(ctx, func(tx Store) error {
		if _, err := tx.GetUser(ctx, c.UserID); err != nil {
			return err
		}
		if _, err := tx.GetElement(ctx, c.ElementID); err != nil {
			return err
		}
		existing, err := tx.ConcernBetween(ctx, c.UserID, c.ElementID)
		if err != nil {
			return err
		}
		if c.ID == "" {
			if existing != nil {
				return ErrDuplicateConcern
			}
			c.ID = ConcernID(NewID())
		} else if existing != nil && existing.ID != c.ID {
			return ErrDuplicateConcern
		}
		switch {
		case existing != nil:
			c.CreatedAt = existing.CreatedAt
		case c.CreatedAt.IsZero():
			c.CreatedAt = e.now()
		}
		if err := tx.SaveConcern(ctx, c); err != nil {
			return fmt.Errorf("failed to save concern: %w", err)
		}
		return e.refreshOwned(ctx, tx, c.ElementID, c.Owns, actor)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (e *Engine) DeleteConcern(ctx context.Context, id ConcernID, actor *User) error {
	return e.Store.WithTx(ctx, func(tx Store) error {
		c, err := tx.GetConcern(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteConcern(ctx, id); err != nil {
			return err
		}
		return e.refreshOwned(ctx, tx, c.ElementID, false, actor)
	})
}

// refreshOwned recomputes Element.Owned. hint = an owning concern was just
// saved, so no count is needed.
func (e *Engine) refreshOwned(ctx context.Context, tx Store, id ElementID, hint bool, actor *User) error {
	el, err := tx.GetElement(ctx, id)
	if err != nil {
		return err
	}
	owned := hint
	if !owned {
		concerns, err := tx.ConcernsForElement(ctx, id)
		if err != nil {
			return err
		}
		for _, c := range concerns {
			if c.Owns {
				owned = true
				break
			}
		}
	}
	if owned == el.Owned {
		return nil
	}
	el.Owned = owned
	if err := tx.SaveElement(ctx, *el); err != nil {
		return fmt.Errorf("failed to save element: %w", err)
	}

	commitments, err := tx.CommitmentsForElement(ctx, id)
	if err != nil {
		return err
	}
	reset := 0
	for _, c := range commitments {
		done, err := e.resetCommitment(ctx, tx, c, actor)
		if err != nil {
			return err
		}
		if done {
			reset++
		}
	}
	if reset > 0 {
		log.Printf("[Ownership] element %s owned=%t, reset %d commitments", id, owned, reset)
	}
	return nil
}

// =============================================================================
// ELEMENT REMOVAL
// =============================================================================

// DestroyElement removes an element and everything that refers to it:
// its commitments, requests made of it (with their coverings), its
// memberships in both directions, and its concerns.
func (e *Engine) DestroyElement(ctx context.Context, id ElementID, actor *User) error {
	return e.Store.WithTx(ctx, func(tx Store) error {
		if _, err := tx.GetElement(ctx, id); err != nil {
			return err
		}

		requests, err := tx.RequestsForElement(ctx, id)
		if err != nil {
			return err
		}
		for _, r := range requests {
			ev, err := tx.GetEvent(ctx, r.EventID)
			if err != nil {
				return err
			}
			if _, err := e.destroyRequest(ctx, tx, *ev, r, actor); err != nil {
				return err
			}
		}

		commitments, err := tx.CommitmentsForElement(ctx, id)
		if err != nil {
			return err
		}
		for _, c := range commitments {
			ev, err := tx.GetEvent(ctx, c.EventID)
			if err != nil {
				return err
			}
			if err := e.removeCommitment(ctx, tx, *ev, c, actor); err != nil {
				return err
			}
		}

		asGroup, err := tx.MembershipsOfGroup(ctx, id)
		if err != nil {
			return err
		}
		asMember, err := tx.MembershipsOfMember(ctx, id)
		if err != nil {
			return err
		}
		for _, m := range append(asGroup, asMember...) {
			if err := tx.DeleteMembership(ctx, m.ID); err != nil {
				return err
			}
		}

		concerns, err := tx.ConcernsForElement(ctx, id)
		if err != nil {
			return err
		}
		for _, c := range concerns {
			if err := tx.DeleteConcern(ctx, c.ID); err != nil {
				return err
			}
		}
		return tx.DeleteElement(ctx, id)
	})
}
