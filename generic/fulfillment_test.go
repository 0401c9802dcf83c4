package generic_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/scheduling-engine/generic"
)

type poolSetup struct {
	*fixture
	ev      *generic.Event
	pool    generic.Element
	rooms   []generic.Element
	request generic.Request
}

// newPoolSetup: an event asking for quantity rooms out of a pool of four.
func newPoolSetup(t *testing.T, quantity int) *poolSetup {
	f := newFixture(t)
	rooms := []generic.Element{
		f.element(t, "L1", generic.KindLocation),
		f.element(t, "L2", generic.KindLocation),
		f.element(t, "L3", generic.KindLocation),
		f.element(t, "L4", generic.KindLocation),
	}
	pool := f.pool(t, "Any L room", rooms...)
	ev := f.event(t, nil, "Mocks")
	req, err := f.engine.CreateRequirement(f.ctx, generic.RequirementInput{
		EventID: ev.ID, ElementID: pool.ID, Quantity: &quantity,
	}, nil)
	require.NoError(t, err)
	return &poolSetup{fixture: f, ev: ev, pool: pool, rooms: rooms, request: *req.Request}
}

func (p *poolSetup) allocation(t *testing.T) *generic.Allocation {
	t.Helper()
	a, err := p.engine.Allocation(p.ctx, p.request.ID)
	require.NoError(t, err)
	return a
}

func (p *poolSetup) fulfill(t *testing.T, rooms ...generic.Element) []generic.Commitment {
	t.Helper()
	var out []generic.Commitment
	for _, r := range rooms {
		c, err := p.engine.Fulfill(p.ctx, p.request.ID, r.ID, nil)
		require.NoError(t, err)
		out = append(out, *c)
	}
	return out
}

// liveCount counts covering commitments straight from the store.
func (p *poolSetup) liveCount(t *testing.T) int {
	t.Helper()
	all, err := p.store.CommitmentsForEvent(p.ctx, p.ev.ID)
	require.NoError(t, err)
	n := 0
	for _, c := range all {
		if c.Covering != nil && *c.Covering == p.request.ID {
			n++
		}
	}
	return n
}

// =============================================================================
// FULFIL / UNFULFIL
// =============================================================================

func TestFulfill_IncrementsAllocationByOne(t *testing.T) {
	p := newPoolSetup(t, 2)
	before := p.allocation(t)
	assert.Equal(t, 0, before.NumAllocated)
	assert.Equal(t, 2, before.NumOutstanding)

	c := p.fulfill(t, p.rooms[0])[0]

	after := p.allocation(t)
	assert.Equal(t, before.NumAllocated+1, after.NumAllocated)
	assert.Equal(t, before.NumOutstanding-1, after.NumOutstanding)
	assert.Equal(t, p.liveCount(t), after.NumAllocated)
	require.NotNil(t, c.Covering)
	assert.Equal(t, p.request.ID, *c.Covering)
	assert.False(t, c.Direct())

	entries := p.entries(t, p.ev.ID)
	last := entries[len(entries)-1]
	assert.Equal(t, generic.EntryRequestAllocated, last.Kind)
	assert.Equal(t, string(p.rooms[0].ID), last.Payload["resource_id"])
}

func TestUnfulfill_IsExactInverse(t *testing.T) {
	p := newPoolSetup(t, 2)
	c := p.fulfill(t, p.rooms[0])[0]
	mid := p.allocation(t)

	removed, err := p.engine.Unfulfill(p.ctx, c.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, c.ID, removed.ID)

	after := p.allocation(t)
	assert.Equal(t, mid.NumAllocated-1, after.NumAllocated)
	assert.Equal(t, mid.NumOutstanding+1, after.NumOutstanding)
	assert.Equal(t, p.liveCount(t), after.NumAllocated)

	_, err = p.store.GetRequest(p.ctx, p.request.ID)
	assert.NoError(t, err, "request survives unfulfil")

	entries := p.entries(t, p.ev.ID)
	assert.Equal(t, generic.EntryRequestDeallocated, entries[len(entries)-1].Kind)
}

func TestUnfulfill_DirectCommitmentRefused(t *testing.T) {
	p := newPoolSetup(t, 1)
	res := p.attach(t, p.ev, nil, p.rooms[0])

	_, err := p.engine.Unfulfill(p.ctx, res.Commitments[0].ID, nil)

	assert.ErrorIs(t, err, generic.ErrNotCovering)
}

func TestFulfill_NotAMember(t *testing.T) {
	p := newPoolSetup(t, 2)
	outsider := p.element(t, "Sports hall", generic.KindLocation)

	_, err := p.engine.Fulfill(p.ctx, p.request.ID, outsider.ID, nil)

	assert.ErrorIs(t, err, generic.ErrNotAMember)
	assert.Equal(t, 0, p.allocation(t).NumAllocated)
}

func TestFulfill_GroupItselfIsNotEligible(t *testing.T) {
	p := newPoolSetup(t, 2)

	_, err := p.engine.Fulfill(p.ctx, p.request.ID, p.pool.ID, nil)

	assert.ErrorIs(t, err, generic.ErrNotAMember)
}

func TestFulfill_NestedGroupMembersEligible(t *testing.T) {
	p := newPoolSetup(t, 2)
	annexe := p.element(t, "Annexe rooms", generic.KindGroup)
	a1 := p.element(t, "A1", generic.KindLocation)
	p.member(t, annexe, a1, false)
	p.member(t, p.pool, annexe, false)

	c, err := p.engine.Fulfill(p.ctx, p.request.ID, a1.ID, nil)

	require.NoError(t, err)
	assert.Equal(t, a1.ID, c.ElementID)
}

func TestFulfill_AlreadyAllocated(t *testing.T) {
	p := newPoolSetup(t, 2)
	p.fulfill(t, p.rooms[0])

	_, err := p.engine.Fulfill(p.ctx, p.request.ID, p.rooms[0].ID, nil)

	assert.ErrorIs(t, err, generic.ErrAlreadyAllocated)
	assert.Equal(t, 1, p.allocation(t).NumAllocated)
}

func TestFulfill_FullyAllocated(t *testing.T) {
	p := newPoolSetup(t, 1)
	p.fulfill(t, p.rooms[0])

	_, err := p.engine.Fulfill(p.ctx, p.request.ID, p.rooms[1].ID, nil)

	assert.ErrorIs(t, err, generic.ErrFullyAllocated)
}

func TestBulkFulfill_CollectsFailures(t *testing.T) {
	p := newPoolSetup(t, 2)
	outsider := p.element(t, "Gym", generic.KindLocation)

	res, err := p.engine.BulkFulfill(p.ctx, p.request.ID, []generic.ElementID{
		p.rooms[0].ID, outsider.ID, p.rooms[0].ID, p.rooms[1].ID, p.rooms[2].ID,
	}, nil)

	require.NoError(t, err)
	assert.Len(t, res.Commitments, 2)
	require.Len(t, res.Failures, 3)
	assert.ErrorIs(t, res.Failures[0], generic.ErrNotAMember)
	assert.ErrorIs(t, res.Failures[1], generic.ErrAlreadyAllocated)
	assert.ErrorIs(t, res.Failures[2], generic.ErrFullyAllocated)
}

// =============================================================================
// QUANTITY CHANGES
// =============================================================================

func TestAdjustRequest_EvictsMostRecentFirst(t *testing.T) {
	// GIVEN: Three rooms allocated in order L1, L2, L3
	// WHEN: Quantity drops to 1
	// THEN: L3 and L2 go, L1 stays
	p := newPoolSetup(t, 3)
	covering := p.fulfill(t, p.rooms[0], p.rooms[1], p.rooms[2])

	alloc, err := p.engine.AdjustRequest(p.ctx, p.request.ID, 1, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, alloc.NumAllocated)
	assert.Equal(t, 0, alloc.NumOutstanding)

	left, err := p.store.CoveringCommitments(p.ctx, p.request.ID)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, covering[0].ID, left[0].ID)
}

func TestAdjustRequest_RaiseKeepsCoverings(t *testing.T) {
	p := newPoolSetup(t, 1)
	p.fulfill(t, p.rooms[0])

	alloc, err := p.engine.AdjustRequest(p.ctx, p.request.ID, 3, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, alloc.NumAllocated)
	assert.Equal(t, 2, alloc.NumOutstanding)

	entries := p.entries(t, p.ev.ID)
	last := entries[len(entries)-1]
	assert.Equal(t, generic.EntryRequestAdjusted, last.Kind)
	assert.Equal(t, "1", last.Payload["old_quantity"])
	assert.Equal(t, "3", last.Payload["quantity"])
}

func TestAdjustRequest_ZeroRemovesAllCoverings(t *testing.T) {
	p := newPoolSetup(t, 2)
	p.fulfill(t, p.rooms[0], p.rooms[1])

	alloc, err := p.engine.AdjustRequest(p.ctx, p.request.ID, 0, nil)

	require.NoError(t, err)
	assert.Equal(t, 0, alloc.NumAllocated)
	assert.Equal(t, 0, alloc.NumOutstanding)
}

func TestAdjustRequest_NegativeRejected(t *testing.T) {
	p := newPoolSetup(t, 2)

	_, err := p.engine.AdjustRequest(p.ctx, p.request.ID, -2, nil)

	assert.ErrorIs(t, err, generic.ErrInvalidQuantity)
}

func TestDecrementRequest_SurvivesUnlessOverAllocated(t *testing.T) {
	p := newPoolSetup(t, 3)
	p.fulfill(t, p.rooms[0], p.rooms[1])

	alloc, err := p.engine.DecrementRequest(p.ctx, p.request.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, alloc.NumAllocated, "2 of 2 still fits")

	alloc, err = p.engine.DecrementRequest(p.ctx, p.request.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, alloc.NumAllocated)
	assert.Equal(t, 0, alloc.NumOutstanding)
}

func TestDecrementRequest_BelowZeroRefused(t *testing.T) {
	p := newPoolSetup(t, 0)

	_, err := p.engine.DecrementRequest(p.ctx, p.request.ID, nil)

	assert.ErrorIs(t, err, generic.ErrInvalidQuantity)
}

func TestDestroyRequest_DestroysCoverings(t *testing.T) {
	p := newPoolSetup(t, 2)
	covering := p.fulfill(t, p.rooms[0], p.rooms[1])

	removed, err := p.engine.DestroyRequest(p.ctx, p.request.ID, nil)

	require.NoError(t, err)
	assert.Len(t, removed, 2)
	for _, c := range covering {
		_, err := p.store.GetCommitment(p.ctx, c.ID)
		assert.ErrorIs(t, err, generic.ErrCommitmentNotFound)
	}
	_, err = p.store.GetRequest(p.ctx, p.request.ID)
	assert.ErrorIs(t, err, generic.ErrRequestNotFound)

	entries := p.entries(t, p.ev.ID)
	assert.Equal(t, generic.EntryRequestDestroyed, entries[len(entries)-1].Kind)
}

func TestReconfirmRequest_Journals(t *testing.T) {
	p := newPoolSetup(t, 2)

	r, err := p.engine.ReconfirmRequest(p.ctx, p.request.ID, nil)

	require.NoError(t, err)
	assert.Equal(t, 2, r.Quantity)
	entries := p.entries(t, p.ev.ID)
	assert.Equal(t, generic.EntryRequestReconfirmed, entries[len(entries)-1].Kind)
}

// =============================================================================
// RECONCILIATION & COVERAGE
// =============================================================================

func TestReconcileAll_TrimsOverAllocation(t *testing.T) {
	// GIVEN: A request for 1 with 2 coverings (written behind the engine's back)
	// WHEN: The reconciliation sweep runs
	// THEN: The newest covering goes; live count equals quantity
	p := newPoolSetup(t, 1)
	first := p.fulfill(t, p.rooms[0])[0]
	rid := p.request.ID
	require.NoError(t, p.store.CreateCommitment(p.ctx, generic.Commitment{
		ID:        "stray",
		EventID:   p.ev.ID,
		ElementID: p.rooms[1].ID,
		Status:    generic.StatusApproved,
		Covering:  &rid,
		CreatedAt: monday,
	}))
	require.True(t, p.allocation(t).OverAllocated())

	n, err := p.engine.ReconcileAll(p.ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	left, err := p.store.CoveringCommitments(p.ctx, rid)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, first.ID, left[0].ID)

	n, err = p.engine.ReconcileAll(p.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestAllocation_Coverage(t *testing.T) {
	p := newPoolSetup(t, 3)
	assert.True(t, p.allocation(t).Coverage().Equal(decimal.Zero))

	p.fulfill(t, p.rooms[0])
	assert.Equal(t, "0.3333", p.allocation(t).Coverage().String())

	p.fulfill(t, p.rooms[1], p.rooms[2])
	assert.True(t, p.allocation(t).Coverage().Equal(decimal.NewFromInt(1)))
}
