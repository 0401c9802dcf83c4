package generic

import "context"

// PermissionOracle answers the two questions the approval process asks.
type PermissionOracle interface {
	// Owns: may the user approve commitments of the element?
	Owns(ctx context.Context, user *User, element Element) (bool, error)

	// CanCommit: may the user attach the element without approval?
	CanCommit(ctx context.Context, user *User, element Element) (bool, error)
}

// ConcernOracle derives permissions from concern records.
type ConcernOracle struct {
	Store ElementStore
}

var _ PermissionOracle = ConcernOracle{}

func (o ConcernOracle) Owns(ctx context.Context, user *User, element Element) (bool, error) {
	if user == nil {
		return false, nil
	}
	c, err := o.Store.ConcernBetween(ctx, user.ID, element.ID)
	if err != nil || c == nil {
		return false, err
	}
	return c.Owns, nil
}

func (o ConcernOracle) CanCommit(ctx context.Context, user *User, element Element) (bool, error) {
	if user == nil {
		// the system commits whatever it likes
		return true, nil
	}
	c, err := o.Store.ConcernBetween(ctx, user.ID, element.ID)
	if err != nil || c == nil {
		return false, err
	}
	return c.CanCommit(), nil
}

// InitialStatus computes the status of a new commitment of element created
// by user. Owned elements need approval unless the user can commit them.
func InitialStatus(ctx context.Context, oracle PermissionOracle, settings Settings, user *User, element Element) (ApprovalStatus, error) {
	if !settings.EnforcePermissions || !element.Owned {
		return StatusApproved, nil
	}
	ok, err := oracle.CanCommit(ctx, user, element)
	if err != nil {
		return "", err
	}
	if ok {
		return StatusApproved, nil
	}
	return StatusTentative, nil
}

// Owners returns the users holding an owning concern on the element.
func Owners(ctx context.Context, s Store, id ElementID) ([]User, error) {
	concerns, err := s.ConcernsForElement(ctx, id)
	if err != nil {
		return nil, err
	}
	var owners []User
	for _, c := range concerns {
		if !c.Owns {
			continue
		}
		u, err := s.GetUser(ctx, c.UserID)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return nil, err
		}
		owners = append(owners, *u)
	}
	return owners, nil
}
