package generic

import (
	"context"
	"fmt"
)

// Form responses and notes hang off either an event or one of its
// commitments. Both journal against the owning event.

// resolveParent returns the event behind parent and, for a commitment
// parent, the commitment.
func resolveParent(ctx context.Context, s Store, parent ParentRef) (*Event, *Commitment, error) {
	switch parent.Kind {
	case ParentEvent:
		ev, err := s.GetEvent(ctx, EventID(parent.ID))
		return ev, nil, err
	case ParentCommitment:
		c, err := s.GetCommitment(ctx, CommitmentID(parent.ID))
		if err != nil {
			return nil, nil, err
		}
		ev, err := s.GetEvent(ctx, c.EventID)
		if err != nil {
			return nil, nil, err
		}
		return ev, c, nil
	}
	return nil, nil, fmt.Errorf("unknown parent kind %q", parent.Kind)
}

// AttachForm creates an empty response to the named form.
func (e *Engine) AttachForm(ctx context.Context, parent ParentRef, formName string, userID *UserID) (*FormResponse, error) {
	f := FormResponse{
		ID:       FormResponseID(NewID()),
		Parent:   parent,
		UserID:   userID,
		FormName: formName,
		Status:   FormEmpty,
	}
	err := e.Store.WithTx(ctx, func(tx Store) error {
		if _, _, err := resolveParent(ctx, tx, parent); err != nil {
			return err
		}
		f.UpdatedAt = e.now()
		return tx.SaveFormResponse(ctx, f)
	})
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// SaveFormProgress records partially filled answers.
func (e *Engine) SaveFormProgress(ctx context.Context, id FormResponseID) (*FormResponse, error) {
	return e.setFormStatus(ctx, id, FormPartial, nil)
}

// CompleteForm marks the response complete and journals it.
func (e *Engine) CompleteForm(ctx context.Context, id FormResponseID, actor *User) (*FormResponse, error) {
	return e.setFormStatus(ctx, id, FormComplete, actor)
}

func (e *Engine) setFormStatus(ctx context.Context, id FormResponseID, status FormStatus, actor *User) (*FormResponse, error) {
	var out FormResponse
	err := e.Store.WithTx(ctx, func(tx Store) error {
		f, err := tx.GetFormResponse(ctx, id)
		if err != nil {
			return err
		}
		ev, c, err := resolveParent(ctx, tx, f.Parent)
		if err != nil {
			return err
		}
		f.Status = status
		f.UpdatedAt = e.now()
		if err := tx.SaveFormResponse(ctx, *f); err != nil {
			return err
		}
		out = *f
		if status == FormComplete {
			logJournal(e.journaler(tx).FormCompleted(ctx, *ev, *f, c, actor))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (e *Engine) AddNote(ctx context.Context, parent ParentRef, title, contents string, actor *User) (*Note, error) {
	var out Note
	err := e.Store.WithTx(ctx, func(tx Store) error {
		ev, c, err := resolveParent(ctx, tx, parent)
		if err != nil {
			return err
		}
		now := e.now()
		out = Note{
			ID:        NoteID(NewID()),
			Parent:    parent,
			Title:     title,
			Contents:  contents,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if actor != nil {
			uid := actor.ID
			out.OwnerID = &uid
		}
		if err := tx.SaveNote(ctx, out); err != nil {
			return err
		}
		logJournal(e.journaler(tx).NoteAdded(ctx, *ev, out, c, actor))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (e *Engine) UpdateNote(ctx context.Context, id NoteID, title, contents string, actor *User) (*Note, error) {
	var out Note
	err := e.Store.WithTx(ctx, func(tx Store) error {
		n, err := tx.GetNote(ctx, id)
		if err != nil {
			return err
		}
		ev, c, err := resolveParent(ctx, tx, n.Parent)
		if err != nil {
			return err
		}
		n.Title = title
		n.Contents = contents
		n.UpdatedAt = e.now()
		if err := tx.SaveNote(ctx, *n); err != nil {
			return err
		}
		out = *n
		logJournal(e.journaler(tx).NoteUpdated(ctx, *ev, out, c, actor))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
