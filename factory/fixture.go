/*
Package factory converts YAML scenario fixtures into domain records.

PURPOSE:
  Demo and test scenarios are described in YAML: who the users are, which
  elements exist, who owns what, how groups are composed, and which
  events already need which resources. The factory validates the document
  and builds the matching generic records. Apply pushes them through the
  engine so ownedness, group info and the journal come out exactly as if a
  user had entered them.

YAML SCHEMA:
  users:
    - {key: olive, name: Olive Owner, email: olive@school.example, immediate_notification: true}
  elements:
    - {key: hall, name: Main Hall, kind: location}
    - {key: it-suites, name: IT Suites, kind: group, group: {resource_group: true, starts_on: 2024-09-01}}
  concerns:
    - {user: olive, element: hall, owns: true}
  memberships:
    - {group: it-suites, member: it1, starts_on: 2024-09-01}
  events:
    - key: assembly
      body: Year 7 Assembly
      owner: tom
      starts: 2025-03-10T09:00:00Z
      requires:
        - {element: hall}
        - {element: it-suites, quantity: 2}

KEYS:
  Fixture keys become record ids for users, elements and concerns, so an
  API caller can name "olive" in X-User-ID. Events get fresh ids; Apply
  returns the key -> id mapping.

SEE ALSO:
  - scenarios/: Built-in scenario documents
  - api/scenarios.go: Loading scenarios over HTTP
*/
package factory

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/warp/scheduling-engine/generic"
)

// =============================================================================
// YAML SCHEMA TYPES
// =============================================================================

type FixtureYAML struct {
	Name        string           `yaml:"name"`
	Description string           `yaml:"description"`
	Users       []UserYAML       `yaml:"users"`
	Elements    []ElementYAML    `yaml:"elements"`
	Concerns    []ConcernYAML    `yaml:"concerns"`
	Memberships []MembershipYAML `yaml:"memberships"`
	Events      []EventYAML      `yaml:"events"`
}

type UserYAML struct {
	Key                   string `yaml:"key"`
	Name                  string `yaml:"name"`
	Email                 string `yaml:"email"`
	ImmediateNotification bool   `yaml:"immediate_notification"`
	Admin                 bool   `yaml:"admin"`
}

type ElementYAML struct {
	Key     string     `yaml:"key"`
	Name    string     `yaml:"name"`
	Kind    string     `yaml:"kind"`
	Current *bool      `yaml:"current"` // default true
	Group   *GroupYAML `yaml:"group"`
}

type GroupYAML struct {
	ResourceGroup bool   `yaml:"resource_group"`
	StartsOn      string `yaml:"starts_on"`
	EndsOn        string `yaml:"ends_on"`
}

type ConcernYAML struct {
	User            string `yaml:"user"`
	Element         string `yaml:"element"`
	Owns            bool   `yaml:"owns"`
	Visible         bool   `yaml:"visible"`
	Equality        bool   `yaml:"equality"`
	AutoAdd         bool   `yaml:"auto_add"`
	SkipPermissions bool   `yaml:"skip_permissions"`
	SeekPermission  bool   `yaml:"seek_permission"`
}

type MembershipYAML struct {
	Group    string `yaml:"group"`
	Member   string `yaml:"member"`
	Inverse  bool   `yaml:"inverse"`
	StartsOn string `yaml:"starts_on"`
	EndsOn   string `yaml:"ends_on"`
}

type EventYAML struct {
	Key      string            `yaml:"key"`
	Body     string            `yaml:"body"`
	Owner    string            `yaml:"owner"`
	Starts   time.Time         `yaml:"starts"`
	Ends     *time.Time        `yaml:"ends"`
	AllDay   bool              `yaml:"all_day"`
	Category string            `yaml:"category"`
	Requires []RequirementYAML `yaml:"requires"`
}

type RequirementYAML struct {
	Element  string `yaml:"element"`
	Quantity *int   `yaml:"quantity"`
}

// =============================================================================
// DOMAIN FIXTURE
// =============================================================================

// Fixture is a validated scenario, ready to Apply.
type Fixture struct {
	Name        string
	Description string
	Users       []generic.User
	Elements    []generic.Element
	Concerns    []generic.Concern
	Memberships []generic.Membership
	Events      []EventSeed
}

type EventSeed struct {
	Key          string
	Owner        *generic.UserID
	Input        generic.EventInput
	Requirements []generic.RequirementInput
}

// Applied maps fixture event keys to the ids the engine gave them.
type Applied struct {
	Events map[string]generic.EventID
}

// ParseFixture parses and validates a YAML scenario.
func ParseFixture(data []byte) (*Fixture, error) {
	var fy FixtureYAML
	if err := yaml.Unmarshal(data, &fy); err != nil {
		return nil, fmt.Errorf("failed to parse fixture YAML: %w", err)
	}
	return FromYAML(fy)
}

// FromYAML converts FixtureYAML to a Fixture, checking every reference.
func FromYAML(fy FixtureYAML) (*Fixture, error) {
	fx := &Fixture{Name: fy.Name, Description: fy.Description}
	var errs []error
	fail := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	users := make(map[string]bool)
	for _, u := range fy.Users {
		if u.Key == "" || users[u.Key] {
			fail("user %q: missing or duplicate key", u.Key)
			continue
		}
		users[u.Key] = true
		name := u.Name
		if name == "" {
			name = u.Key
		}
		fx.Users = append(fx.Users, generic.User{
			ID:                    generic.UserID(u.Key),
			Name:                  name,
			Email:                 u.Email,
			ImmediateNotification: u.ImmediateNotification,
			Admin:                 u.Admin,
		})
	}

	elements := make(map[string]generic.EntityKind)
	for _, e := range fy.Elements {
		if e.Key == "" || elements[e.Key] != "" {
			fail("element %q: missing or duplicate key", e.Key)
			continue
		}
		kind, err := generic.ParseKind(e.Kind)
		if err != nil {
			fail("element %q: %w", e.Key, err)
			continue
		}
		elements[e.Key] = kind
		el := generic.Element{
			ID:      generic.ElementID(e.Key),
			Name:    e.Name,
			Kind:    kind,
			Current: e.Current == nil || *e.Current,
		}
		if e.Group != nil {
			if kind != generic.KindGroup {
				fail("element %q: only groups take group settings", e.Key)
				continue
			}
			info, err := parseGroup(*e.Group)
			if err != nil {
				fail("element %q: %w", e.Key, err)
				continue
			}
			el.Group = info
		}
		fx.Elements = append(fx.Elements, el)
	}

	for i, c := range fy.Concerns {
		if !users[c.User] || elements[c.Element] == "" {
			fail("concern %d: unknown user %q or element %q", i, c.User, c.Element)
			continue
		}
		fx.Concerns = append(fx.Concerns, generic.Concern{
			ID:              generic.ConcernID(c.User + ":" + c.Element),
			UserID:          generic.UserID(c.User),
			ElementID:       generic.ElementID(c.Element),
			Owns:            c.Owns,
			Visible:         c.Visible,
			Equality:        c.Equality,
			AutoAdd:         c.AutoAdd,
			SkipPermissions: c.SkipPermissions,
			SeekPermission:  c.SeekPermission,
		})
	}

	for i, m := range fy.Memberships {
		if elements[m.Group] != generic.KindGroup {
			fail("membership %d: %q is not a group", i, m.Group)
			continue
		}
		if elements[m.Member] == "" {
			fail("membership %d: unknown member %q", i, m.Member)
			continue
		}
		starts, ends, err := parseRange(m.StartsOn, m.EndsOn)
		if err != nil {
			fail("membership %d: %w", i, err)
			continue
		}
		fx.Memberships = append(fx.Memberships, generic.Membership{
			GroupID:  generic.ElementID(m.Group),
			MemberID: generic.ElementID(m.Member),
			Inverse:  m.Inverse,
			StartsOn: starts,
			EndsOn:   ends,
		})
	}

	events := make(map[string]bool)
	for _, ev := range fy.Events {
		if ev.Key == "" || events[ev.Key] {
			fail("event %q: missing or duplicate key", ev.Key)
			continue
		}
		events[ev.Key] = true
		if ev.Starts.IsZero() {
			fail("event %q: starts is required", ev.Key)
			continue
		}
		seed := EventSeed{
			Key: ev.Key,
			Input: generic.EventInput{
				Body:     ev.Body,
				StartsAt: ev.Starts,
				EndsAt:   ev.Ends,
				AllDay:   ev.AllDay,
				Category: ev.Category,
				Source:   "fixture",
			},
		}
		if ev.Owner != "" {
			if !users[ev.Owner] {
				fail("event %q: unknown owner %q", ev.Key, ev.Owner)
				continue
			}
			owner := generic.UserID(ev.Owner)
			seed.Owner = &owner
		}
		for _, r := range ev.Requires {
			if elements[r.Element] == "" {
				fail("event %q: unknown element %q", ev.Key, r.Element)
				continue
			}
			seed.Requirements = append(seed.Requirements, generic.RequirementInput{
				ElementID: generic.ElementID(r.Element),
				Quantity:  r.Quantity,
			})
		}
		fx.Events = append(fx.Events, seed)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return fx, nil
}

func parseGroup(g GroupYAML) (*generic.GroupInfo, error) {
	starts, ends, err := parseRange(g.StartsOn, g.EndsOn)
	if err != nil {
		return nil, err
	}
	return &generic.GroupInfo{ResourceGroup: g.ResourceGroup, StartsOn: starts, EndsOn: ends}, nil
}

// parseRange reads an inclusive day range. A missing start means today;
// a missing end means open ended.
func parseRange(startsOn, endsOn string) (generic.TimePoint, *generic.TimePoint, error) {
	starts := generic.Today()
	if startsOn != "" {
		d, err := generic.ParseDay(startsOn)
		if err != nil {
			return starts, nil, fmt.Errorf("invalid starts_on: %w", err)
		}
		starts = d
	}
	if endsOn == "" {
		return starts, nil, nil
	}
	ends, err := generic.ParseDay(endsOn)
	if err != nil {
		return starts, nil, fmt.Errorf("invalid ends_on: %w", err)
	}
	if ends.Before(starts) {
		return starts, nil, generic.ErrInvalidPeriod
	}
	return starts, &ends, nil
}

// =============================================================================
// APPLY
// =============================================================================

// Apply writes the fixture through the engine. Users and elements are
// saved directly; everything with side effects goes through the engine.
func Apply(ctx context.Context, engine *generic.Engine, fx *Fixture) (*Applied, error) {
	for _, u := range fx.Users {
		if err := engine.Store.SaveUser(ctx, u); err != nil {
			return nil, fmt.Errorf("user %s: %w", u.ID, err)
		}
	}
	for _, el := range fx.Elements {
		if err := engine.Store.SaveElement(ctx, el); err != nil {
			return nil, fmt.Errorf("element %s: %w", el.ID, err)
		}
	}
	for _, c := range fx.Concerns {
		if _, err := engine.SaveConcern(ctx, c, nil); err != nil {
			return nil, fmt.Errorf("concern %s: %w", c.ID, err)
		}
	}
	for _, m := range fx.Memberships {
		if _, err := engine.AddMembership(ctx, m); err != nil {
			return nil, fmt.Errorf("membership %s in %s: %w", m.MemberID, m.GroupID, err)
		}
	}

	applied := &Applied{Events: make(map[string]generic.EventID, len(fx.Events))}
	for _, seed := range fx.Events {
		var owner *generic.User
		if seed.Owner != nil {
			u, err := engine.Store.GetUser(ctx, *seed.Owner)
			if err != nil {
				return nil, fmt.Errorf("event %s: %w", seed.Key, err)
			}
			owner = u
		}
		ev, err := engine.CreateEvent(ctx, seed.Input, owner)
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", seed.Key, err)
		}
		applied.Events[seed.Key] = ev.ID
		for _, in := range seed.Requirements {
			in.EventID = ev.ID
			if _, err := engine.CreateRequirement(ctx, in, owner); err != nil {
				return nil, fmt.Errorf("event %s requires %s: %w", seed.Key, in.ElementID, err)
			}
		}
	}
	return applied, nil
}

// =============================================================================
// BUILT-IN SCENARIOS
// =============================================================================

//go:embed scenarios/*.yaml
var scenarioFS embed.FS

// Scenario describes one built-in fixture.
type Scenario struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Scenarios lists the built-in fixtures, sorted by id.
func Scenarios() ([]Scenario, error) {
	files, err := fs.Glob(scenarioFS, "scenarios/*.yaml")
	if err != nil {
		return nil, err
	}
	out := make([]Scenario, 0, len(files))
	for _, f := range files {
		id := strings.TrimSuffix(strings.TrimPrefix(f, "scenarios/"), ".yaml")
		fx, err := LoadScenario(id)
		if err != nil {
			return nil, err
		}
		out = append(out, Scenario{ID: id, Name: fx.Name, Description: fx.Description})
	}
	slices.SortFunc(out, func(a, b Scenario) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

// ErrUnknownScenario is returned by LoadScenario for ids with no fixture.
var ErrUnknownScenario = errors.New("unknown scenario")

// LoadScenario parses the built-in fixture with the given id.
func LoadScenario(id string) (*Fixture, error) {
	data, err := scenarioFS.ReadFile("scenarios/" + id + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("%q: %w", id, ErrUnknownScenario)
	}
	return ParseFixture(data)
}
