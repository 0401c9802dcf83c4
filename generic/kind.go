/*
kind.go - Element entity kinds

PURPOSE:
  An Element is a polymorphic handle. Instead of resolving the underlying
  entity through runtime type inspection, every element carries an explicit
  EntityKind discriminant. Callers switch on it.

SEE ALSO:
  - types.go: Element
*/
package generic

import "fmt"

type EntityKind string

const (
	KindStaff    EntityKind = "staff"
	KindPupil    EntityKind = "pupil"
	KindGroup    EntityKind = "group"
	KindLocation EntityKind = "location"
	KindProperty EntityKind = "property"
	KindService  EntityKind = "service"
)

var allKinds = []EntityKind{KindProperty, KindStaff, KindPupil, KindLocation, KindGroup, KindService}

// SortOrder gives the display ordering of kinds, properties first.
func (k EntityKind) SortOrder() int {
	for i, kk := range allKinds {
		if kk == k {
			return i + 1
		}
	}
	return 0
}

// ParseKind converts a stored or submitted string into a kind.
func ParseKind(s string) (EntityKind, error) {
	for _, k := range allKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown element kind %q", s)
}

// Kinds lists every known kind in sort order.
func Kinds() []EntityKind {
	out := make([]EntityKind, len(allKinds))
	copy(out, allKinds)
	return out
}
