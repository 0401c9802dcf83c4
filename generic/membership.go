package generic

import (
	"context"
	"fmt"
)

// Group membership resolution. Groups may contain groups, and nothing stops
// a cycle (A in B in A). Recursion carries a visited set that is copied
// for each branch, so a group reached twice by different routes is
// expanded on both, while a group reaching itself stops.

// Members returns the members of the group on day. With recursive set,
// members of member groups are included, and excludeGroups drops the
// group elements themselves from the result. Inverse memberships remove
// an element (and, for a group, its members) from the result. A cycle
// never makes the group a member of itself.
func Members(ctx context.Context, s ElementStore, groupID ElementID, day TimePoint, recursive, excludeGroups bool) ([]Element, error) {
	found, order, err := resolveMembers(ctx, s, groupID, day, recursive, map[ElementID]bool{})
	if err != nil {
		return nil, err
	}
	var out []Element
	for _, id := range order {
		el, ok := found[id]
		if !ok || id == groupID {
			continue
		}
		if excludeGroups && el.Kind == KindGroup {
			continue
		}
		out = append(out, el)
	}
	return out, nil
}

// IsMember reports whether element is a recursive member of group on day.
// A group is never its own member.
func IsMember(ctx context.Context, s ElementStore, groupID, elementID ElementID, day TimePoint) (bool, error) {
	if groupID == elementID {
		return false, nil
	}
	found, _, err := resolveMembers(ctx, s, groupID, day, true, map[ElementID]bool{})
	if err != nil {
		return false, err
	}
	_, ok := found[elementID]
	return ok, nil
}

// Groups returns the groups the element belongs to on day, directly or,
// with recursive set, through other groups.
func Groups(ctx context.Context, s ElementStore, elementID ElementID, day TimePoint, recursive bool) ([]Element, error) {
	candidates, err := candidateGroups(ctx, s, elementID, day, recursive, map[ElementID]bool{})
	if err != nil {
		return nil, err
	}
	var out []Element
	seen := map[ElementID]bool{}
	for _, g := range candidates {
		if seen[g.ID] {
			continue
		}
		seen[g.ID] = true
		// an outcast membership elsewhere in the tree may exclude it
		ok, err := IsMember(ctx, s, g.ID, elementID, day)
		if err != nil {
			return nil, err
		}
		if ok || !recursive {
			out = append(out, g)
		}
	}
	return out, nil
}

func candidateGroups(ctx context.Context, s ElementStore, elementID ElementID, day TimePoint, recursive bool, seen map[ElementID]bool) ([]Element, error) {
	if seen[elementID] {
		return nil, nil
	}
	branch := copySeen(seen)
	branch[elementID] = true

	memberships, err := s.MembershipsOfMember(ctx, elementID)
	if err != nil {
		return nil, err
	}
	var out []Element
	for _, m := range memberships {
		if m.Inverse || !m.ActiveOn(day) {
			continue
		}
		g, err := s.GetElement(ctx, m.GroupID)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return nil, err
		}
		if !groupActive(*g, day) {
			continue
		}
		out = append(out, *g)
		if recursive {
			parents, err := candidateGroups(ctx, s, g.ID, day, true, branch)
			if err != nil {
				return nil, err
			}
			out = append(out, parents...)
		}
	}
	return out, nil
}

// resolveMembers returns the members found under groupID keyed by id,
// plus their discovery order.
func resolveMembers(ctx context.Context, s ElementStore, groupID ElementID, day TimePoint, recursive bool, seen map[ElementID]bool) (map[ElementID]Element, []ElementID, error) {
	found := map[ElementID]Element{}
	var order []ElementID
	if seen[groupID] {
		return found, order, nil
	}
	branch := copySeen(seen)
	branch[groupID] = true

	group, err := s.GetElement(ctx, groupID)
	if err != nil {
		return nil, nil, err
	}
	if !groupActive(*group, day) {
		return found, order, nil
	}

	memberships, err := s.MembershipsOfGroup(ctx, groupID)
	if err != nil {
		return nil, nil, err
	}

	add := func(el Element) {
		if _, ok := found[el.ID]; !ok {
			order = append(order, el.ID)
		}
		found[el.ID] = el
	}
	var outcasts []Element

	for _, m := range memberships {
		if !m.ActiveOn(day) {
			continue
		}
		el, err := s.GetElement(ctx, m.MemberID)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return nil, nil, err
		}
		if m.Inverse {
			outcasts = append(outcasts, *el)
			continue
		}
		add(*el)
		if recursive && el.Kind == KindGroup {
			sub, subOrder, err := resolveMembers(ctx, s, el.ID, day, true, branch)
			if err != nil {
				return nil, nil, err
			}
			for _, id := range subOrder {
				if member, ok := sub[id]; ok {
					add(member)
				}
			}
		}
	}

	for _, el := range outcasts {
		delete(found, el.ID)
		if recursive && el.Kind == KindGroup {
			sub, _, err := resolveMembers(ctx, s, el.ID, day, true, branch)
			if err != nil {
				return nil, nil, err
			}
			for id := range sub {
				delete(found, id)
			}
		}
	}
	return found, order, nil
}

func groupActive(g Element, day TimePoint) bool {
	if g.Group == nil {
		return true
	}
	return g.Group.Lifetime().Contains(day)
}

func copySeen(seen map[ElementID]bool) map[ElementID]bool {
	out := make(map[ElementID]bool, len(seen)+1)
	for k, v := range seen {
		out[k] = v
	}
	return out
}

// AddMembership puts member into group. The group element acquires its
// GroupInfo on first use.
func (e *Engine) AddMembership(ctx context.Context, m Membership) (*Membership, error) {
	if m.GroupID == m.MemberID {
		return nil, fmt.Errorf("element %s: %w", m.GroupID, ErrSelfMembership)
	}
	err := e.Store.WithTx(ctx, func(tx Store) error {
		group, err := tx.GetElement(ctx, m.GroupID)
		if err != nil {
			return err
		}
		if group.Kind != KindGroup {
			return fmt.Errorf("element %s is a %s: %w", group.ID, group.Kind, ErrNotAGroup)
		}
		if _, err := tx.GetElement(ctx, m.MemberID); err != nil {
			return err
		}
		if group.Group == nil {
			group.Group = &GroupInfo{StartsOn: m.StartsOn}
			if err := tx.SaveElement(ctx, *group); err != nil {
				return err
			}
		}
		if m.ID == "" {
			m.ID = MembershipID(NewID())
		}
		m.CreatedAt = e.now()
		return tx.SaveMembership(ctx, m)
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}
