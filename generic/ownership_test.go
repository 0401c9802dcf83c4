package generic_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/scheduling-engine/generic"
)

func (f *fixture) owned(t *testing.T, id generic.ElementID) bool {
	t.Helper()
	el, err := f.store.GetElement(f.ctx, id)
	require.NoError(t, err)
	return el.Owned
}

func TestSaveConcern_OwnedFollowsOwningConcerns(t *testing.T) {
	f := newFixture(t)
	olive := f.user(t, "olive", true)
	deputy := f.user(t, "deputy", true)
	hall := f.element(t, "Main Hall", generic.KindLocation)
	assert.False(t, f.owned(t, hall.ID))

	first := f.owns(t, olive, hall)
	assert.True(t, f.owned(t, hall.ID))
	second := f.owns(t, deputy, hall)

	require.NoError(t, f.engine.DeleteConcern(f.ctx, first.ID, nil))
	assert.True(t, f.owned(t, hall.ID), "deputy still owns it")

	require.NoError(t, f.engine.DeleteConcern(f.ctx, second.ID, nil))
	assert.False(t, f.owned(t, hall.ID))
}

func TestSaveConcern_DroppingOwnsFlagClearsOwned(t *testing.T) {
	f := newFixture(t)
	olive := f.user(t, "olive", true)
	hall := f.element(t, "Main Hall", generic.KindLocation)
	c := f.owns(t, olive, hall)

	c.Owns = false
	_, err := f.engine.SaveConcern(f.ctx, c, nil)

	require.NoError(t, err)
	assert.False(t, f.owned(t, hall.ID))
}

func TestSaveConcern_DuplicateRejected(t *testing.T) {
	f := newFixture(t)
	olive := f.user(t, "olive", true)
	hall := f.element(t, "Main Hall", generic.KindLocation)
	f.owns(t, olive, hall)

	_, err := f.engine.SaveConcern(f.ctx, generic.Concern{UserID: olive.ID, ElementID: hall.ID, Visible: true}, nil)

	assert.ErrorIs(t, err, generic.ErrDuplicateConcern)
}

func TestSaveConcern_UnknownUserOrElement(t *testing.T) {
	f := newFixture(t)
	olive := f.user(t, "olive", true)
	hall := f.element(t, "Main Hall", generic.KindLocation)

	_, err := f.engine.SaveConcern(f.ctx, generic.Concern{UserID: "ghost", ElementID: hall.ID}, nil)
	assert.ErrorIs(t, err, generic.ErrUserNotFound)

	_, err = f.engine.SaveConcern(f.ctx, generic.Concern{UserID: olive.ID, ElementID: "ghost"}, nil)
	assert.ErrorIs(t, err, generic.ErrElementNotFound)
}

func TestOwnershipToggle_ResetsRejectedCommitments(t *testing.T) {
	// GIVEN: Olive rejected Tom's hall booking
	// WHEN: Olive gives up ownership of the hall
	// THEN: The rejection no longer stands; the commitment is tentative again
	f, olive, _, ev, c := approvalSetup(t)
	_, err := f.engine.Reject(f.ctx, c.ID, olive, "no")
	require.NoError(t, err)

	concerns, err := f.store.ConcernsForUser(f.ctx, olive.ID)
	require.NoError(t, err)
	require.Len(t, concerns, 1)
	require.NoError(t, f.engine.DeleteConcern(f.ctx, concerns[0].ID, olive))

	got := f.commitment(t, c.ID)
	assert.Equal(t, generic.StatusTentative, got.Status)
	assert.Empty(t, got.Reason)
	entries := f.entries(t, ev.ID)
	assert.Equal(t, generic.EntryCommitmentReset, entries[len(entries)-1].Kind)
}

func TestOwnershipToggle_ApprovedCommitmentsUntouched(t *testing.T) {
	f, olive, _, _, c := approvalSetup(t)
	_, err := f.engine.Approve(f.ctx, c.ID, olive)
	require.NoError(t, err)

	concerns, err := f.store.ConcernsForUser(f.ctx, olive.ID)
	require.NoError(t, err)
	require.NoError(t, f.engine.DeleteConcern(f.ctx, concerns[0].ID, olive))

	assert.Equal(t, generic.StatusApproved, f.commitment(t, c.ID).Status)
}

func TestDestroyElement_RemovesCoveringsAndMemberships(t *testing.T) {
	p := newPoolSetup(t, 2)
	covering := p.fulfill(t, p.rooms[0])[0]

	require.NoError(t, p.engine.DestroyElement(p.ctx, p.rooms[0].ID, nil))

	_, err := p.store.GetCommitment(p.ctx, covering.ID)
	assert.ErrorIs(t, err, generic.ErrCommitmentNotFound)
	assert.Equal(t, 0, p.allocation(t).NumAllocated)

	members, err := generic.Members(p.ctx, p.store, p.pool.ID, generic.DayOf(monday), true, false)
	require.NoError(t, err)
	assert.Len(t, members, 3)

	entries := p.entries(t, p.ev.ID)
	assert.Equal(t, generic.EntryRequestDeallocated, entries[len(entries)-1].Kind)
}

func TestDestroyElement_PoolTakesItsRequests(t *testing.T) {
	p := newPoolSetup(t, 2)
	covering := p.fulfill(t, p.rooms[0])[0]

	require.NoError(t, p.engine.DestroyElement(p.ctx, p.pool.ID, nil))

	_, err := p.store.GetRequest(p.ctx, p.request.ID)
	assert.ErrorIs(t, err, generic.ErrRequestNotFound)
	_, err = p.store.GetCommitment(p.ctx, covering.ID)
	assert.ErrorIs(t, err, generic.ErrCommitmentNotFound)
	// the rooms themselves survive
	_, err = p.store.GetElement(p.ctx, p.rooms[0].ID)
	assert.NoError(t, err)

	entries := p.entries(t, p.ev.ID)
	assert.Equal(t, generic.EntryRequestDestroyed, entries[len(entries)-1].Kind)
}

func TestDestroyElement_RemovesDirectCommitmentsAndConcerns(t *testing.T) {
	f, olive, _, ev, c := approvalSetup(t)

	require.NoError(t, f.engine.DestroyElement(f.ctx, c.ElementID, nil))

	remaining, err := f.store.CommitmentsForEvent(f.ctx, ev.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining)
	concerns, err := f.store.ConcernsForUser(f.ctx, olive.ID)
	require.NoError(t, err)
	assert.Empty(t, concerns)
}
