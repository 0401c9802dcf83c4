/*
approval.go - Commitment approval state machine

STATES:
  tentative  awaiting a decision
  approved   firm
  rejected   refused by an owner, with a reason
  noted      an owner flagged an issue without refusing

TRANSITIONS (actor must own the element, checked fresh every time):

  approve: tentative | rejected | noted  -> approved   (clears reason)
  reject:  tentative | approved | noted  -> rejected
  note:    tentative | rejected          -> noted
  reset:   rejected | noted              -> tentative  (system only)

  Rejected and noted commitments count as tentative (not approved), which
  is why approve accepts them.

SIDE EFFECTS OF A SUCCESSFUL TRANSITION:
  1. Journal entry (inside the transaction)
  2. reject/note: complete form responses of the commitment drop to partial
  3. Notification to the event owner (after commit)

DENIALS:
  Approve/Reject/Note return (false, nil) for an unauthorised actor or a
  disallowed source status. The reason is logged, never returned: callers
  must not be able to tell the two apart. The error return is reserved for
  store failures.
*/
package generic

import (
	"context"
	"errors"
	"fmt"
	"log"
)

type transition struct {
	action string
	to     ApprovalStatus
	from   []ApprovalStatus
	notify NotificationKind
}

var (
	approveTransition = transition{
		action: "approve",
		to:     StatusApproved,
		from:   []ApprovalStatus{StatusTentative, StatusRejected, StatusNoted},
		notify: NotifyCommitmentApproved,
	}
	rejectTransition = transition{
		action: "reject",
		to:     StatusRejected,
		from:   []ApprovalStatus{StatusTentative, StatusApproved, StatusNoted},
		notify: NotifyCommitmentRejected,
	}
	noteTransition = transition{
		action: "note",
		to:     StatusNoted,
		from:   []ApprovalStatus{StatusTentative, StatusRejected},
		notify: NotifyCommitmentNoted,
	}
)

func (t transition) allowedFrom(s ApprovalStatus) bool {
	for _, f := range t.from {
		if f == s {
			return true
		}
	}
	return false
}

// Approve makes a commitment firm.
func (e *Engine) Approve(ctx context.Context, id CommitmentID, actor *User) (bool, error) {
	return e.apply(ctx, approveTransition, id, actor, "")
}

// Reject refuses a commitment with a reason.
func (e *Engine) Reject(ctx context.Context, id CommitmentID, actor *User, reason string) (bool, error) {
	return e.apply(ctx, rejectTransition, id, actor, reason)
}

// Note flags an issue with a commitment without refusing it.
func (e *Engine) Note(ctx context.Context, id CommitmentID, actor *User, reason string) (bool, error) {
	return e.apply(ctx, noteTransition, id, actor, reason)
}

func (e *Engine) apply(ctx context.Context, t transition, id CommitmentID, actor *User, reason string) (bool, error) {
	var notices []Notification
	err := e.Store.WithTx(ctx, func(tx Store) error {
		// fresh read: never trust a status the caller saw earlier
		c, err := tx.GetCommitment(ctx, id)
		if err != nil {
			return err
		}
		if !t.allowedFrom(c.Status) {
			return &TransitionError{Action: t.action, CommitmentID: c.ID, Status: c.Status, Err: ErrInvalidState}
		}
		el, err := tx.GetElement(ctx, c.ElementID)
		if err != nil {
			return err
		}
		owns, err := e.oracle(tx).Owns(ctx, actor, *el)
		if err != nil {
			return err
		}
		if !owns {
			return &TransitionError{Action: t.action, CommitmentID: c.ID, Status: c.Status, Err: ErrUnauthorized}
		}
		ev, err := tx.GetEvent(ctx, c.EventID)
		if err != nil {
			return err
		}

		c.Status = t.to
		c.Reason = reason
		c.UpdatedAt = e.now()
		if actor != nil {
			uid := actor.ID
			c.ByUserID = &uid
		}
		if err := tx.UpdateCommitment(ctx, *c); err != nil {
			return fmt.Errorf("failed to update commitment: %w", err)
		}

		j := e.journaler(tx)
		switch t.to {
		case StatusApproved:
			logJournal(j.CommitmentApproved(ctx, *ev, *c, actor))
		case StatusRejected:
			logJournal(j.CommitmentRejected(ctx, *ev, *c, actor))
		case StatusNoted:
			logJournal(j.CommitmentNoted(ctx, *ev, *c, actor))
		}

		if t.to != StatusApproved {
			if err := e.downgradeForms(ctx, tx, c.ID); err != nil {
				return err
			}
		}

		notices, err = e.decisionNotices(ctx, tx, t.notify, *ev, *el, *c, actor)
		return err
	})
	if err != nil {
		var te *TransitionError
		if errors.As(err, &te) {
			log.Printf("[Approval] denied: %v", te)
			return false, nil
		}
		return false, err
	}
	e.deliverAll(ctx, notices)
	return true, nil
}

// downgradeForms drops complete form responses of the commitment back to
// partial. The resource is no longer guaranteed, so the answers may be
// stale.
func (e *Engine) downgradeForms(ctx context.Context, tx Store, id CommitmentID) error {
	forms, err := tx.FormResponsesFor(ctx, CommitmentParent(id))
	if err != nil {
		return err
	}
	for _, f := range forms {
		if f.Status != FormComplete {
			continue
		}
		f.Status = FormPartial
		f.UpdatedAt = e.now()
		if err := tx.SaveFormResponse(ctx, f); err != nil {
			return err
		}
	}
	return nil
}

// decisionNotices tells the event owner about an approval decision.
func (e *Engine) decisionNotices(ctx context.Context, tx Store, kind NotificationKind, ev Event, el Element, c Commitment, actor *User) ([]Notification, error) {
	owner, err := loadActor(ctx, tx, ev.OwnerID)
	if err != nil || owner == nil {
		return nil, err
	}
	n := Notification{
		Kind:       kind,
		Recipient:  *owner,
		Actor:      actor,
		Element:    &el,
		Event:      &ev,
		Commitment: &c,
	}
	if kind == NotifyCommitmentApproved {
		complete, err := eventComplete(ctx, tx, ev.ID)
		if err != nil {
			return nil, err
		}
		n.EventComplete = complete
	}
	return []Notification{n}, nil
}

// Reset returns a rejected or noted commitment to tentative. Used by the
// ownership bookkeeping; not exposed to end users. Returns false when the
// commitment was not in a resettable state.
func (e *Engine) Reset(ctx context.Context, id CommitmentID) (bool, error) {
	var done bool
	err := e.Store.WithTx(ctx, func(tx Store) error {
		c, err := tx.GetCommitment(ctx, id)
		if err != nil {
			return err
		}
		done, err = e.resetCommitment(ctx, tx, *c, nil)
		return err
	})
	return done, err
}

func (e *Engine) resetCommitment(ctx context.Context, tx Store, c Commitment, actor *User) (bool, error) {
	if c.Status != StatusRejected && c.Status != StatusNoted {
		return false, nil
	}
	ev, err := tx.GetEvent(ctx, c.EventID)
	if err != nil {
		return false, err
	}
	c.Status = StatusTentative
	c.Reason = ""
	c.UpdatedAt = e.now()
	if err := tx.UpdateCommitment(ctx, c); err != nil {
		return false, fmt.Errorf("failed to reset commitment: %w", err)
	}
	logJournal(e.journaler(tx).CommitmentReset(ctx, *ev, c, actor))
	return true, nil
}

// PendingCommitments lists the element's commitments awaiting a decision,
// oldest first. This is an owner's approval queue.
func (e *Engine) PendingCommitments(ctx context.Context, id ElementID) ([]Commitment, error) {
	if _, err := e.Store.GetElement(ctx, id); err != nil {
		return nil, err
	}
	all, err := e.Store.CommitmentsForElement(ctx, id)
	if err != nil {
		return nil, err
	}
	var out []Commitment
	for _, c := range all {
		if c.Status == StatusTentative {
			out = append(out, c)
		}
	}
	return out, nil
}
