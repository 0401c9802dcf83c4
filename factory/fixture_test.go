package factory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/scheduling-engine/factory"
	"github.com/warp/scheduling-engine/generic"
	"github.com/warp/scheduling-engine/generic/store"
)

func TestParseFixture_BuildsRecords(t *testing.T) {
	fx, err := factory.ParseFixture([]byte(`
name: Tiny
users:
  - {key: olive, name: Olive, email: olive@school.example, immediate_notification: true}
elements:
  - {key: hall, name: Main Hall, kind: location}
  - {key: pool, name: Pool, kind: group, group: {resource_group: true, starts_on: 2024-09-01, ends_on: 2025-07-20}}
concerns:
  - {user: olive, element: hall, owns: true}
memberships:
  - {group: pool, member: hall, starts_on: 2024-09-01}
events:
  - key: assembly
    body: Assembly
    owner: olive
    starts: 2025-03-10T09:00:00Z
    requires:
      - {element: pool, quantity: 2}
`))

	require.NoError(t, err)
	assert.Equal(t, "Tiny", fx.Name)
	require.Len(t, fx.Users, 1)
	assert.True(t, fx.Users[0].ImmediateNotification)

	require.Len(t, fx.Elements, 2)
	pool := fx.Elements[1]
	assert.True(t, pool.IsResourceGroup())
	assert.True(t, pool.Current, "current defaults to true")
	require.NotNil(t, pool.Group.EndsOn)
	assert.True(t, pool.Group.EndsOn.Equal(generic.NewTimePoint(2025, time.July, 20)))

	require.Len(t, fx.Concerns, 1)
	assert.Equal(t, generic.ConcernID("olive:hall"), fx.Concerns[0].ID)

	require.Len(t, fx.Events, 1)
	seed := fx.Events[0]
	assert.Equal(t, time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC), seed.Input.StartsAt)
	require.Len(t, seed.Requirements, 1)
	require.NotNil(t, seed.Requirements[0].Quantity)
	assert.Equal(t, 2, *seed.Requirements[0].Quantity)
}

func TestParseFixture_ReportsEveryBadReference(t *testing.T) {
	_, err := factory.ParseFixture([]byte(`
users:
  - {key: olive}
elements:
  - {key: hall, kind: location}
  - {key: blob, kind: spaceship}
concerns:
  - {user: nobody, element: hall}
memberships:
  - {group: hall, member: olive}
events:
  - {key: e1, body: Missing start}
  - {key: e2, body: Bad owner, owner: zed, starts: 2025-03-10T09:00:00Z}
`))

	require.Error(t, err)
	for _, want := range []string{"spaceship", "nobody", `"hall" is not a group`, "starts is required", `unknown owner "zed"`} {
		assert.ErrorContains(t, err, want)
	}
}

func TestApply_GoesThroughTheEngine(t *testing.T) {
	// GIVEN: The built-in school week scenario
	// WHEN: It is applied to an empty store
	// THEN: Ownership, requests and the journal come out as if typed in by users
	ctx := context.Background()
	s := store.NewTxMemory()
	engine := generic.NewEngine(s, nil, generic.DefaultSettings())
	fx, err := factory.LoadScenario("school-week")
	require.NoError(t, err)

	applied, err := factory.Apply(ctx, engine, fx)
	require.NoError(t, err)

	hall, err := s.GetElement(ctx, "hall")
	require.NoError(t, err)
	assert.True(t, hall.Owned)

	assembly := applied.Events["assembly"]
	commitments, err := s.CommitmentsForEvent(ctx, assembly)
	require.NoError(t, err)
	status := make(map[generic.ElementID]generic.ApprovalStatus)
	for _, c := range commitments {
		status[c.ElementID] = c.Status
	}
	assert.Equal(t, generic.StatusTentative, status["hall"], "owned by olive, booked by tom")
	assert.Equal(t, generic.StatusApproved, status["projector"], "tom skips permissions")
	assert.Equal(t, generic.StatusApproved, status["tom-staff"], "nobody owns tom's staff record")

	req, err := s.FindRequest(ctx, applied.Events["computing"], "it-suites")
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, 2, req.Quantity)

	entries, err := engine.JournalEntries(ctx, assembly)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, generic.EntryEventCreated, entries[0].Kind)
}

func TestScenarios_AllParse(t *testing.T) {
	list, err := factory.Scenarios()

	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "school-week", list[0].ID)
	assert.Equal(t, "sports-day", list[1].ID)
	for _, sc := range list {
		assert.NotEmpty(t, sc.Name)
	}

	_, err = factory.LoadScenario("moon-landing")
	assert.ErrorIs(t, err, factory.ErrUnknownScenario)
}

func TestScenarios_SportsDayExcludesOutcast(t *testing.T) {
	ctx := context.Background()
	s := store.NewTxMemory()
	engine := generic.NewEngine(s, nil, generic.DefaultSettings())
	fx, err := factory.LoadScenario("sports-day")
	require.NoError(t, err)
	_, err = factory.Apply(ctx, engine, fx)
	require.NoError(t, err)

	members, err := generic.Members(ctx, s, "all-staff", generic.NewTimePoint(2025, time.June, 20), true, true)
	require.NoError(t, err)

	var ids []generic.ElementID
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	assert.ElementsMatch(t, []generic.ElementID{"jones", "brown"}, ids)
}
