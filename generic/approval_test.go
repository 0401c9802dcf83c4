package generic_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/scheduling-engine/generic"
)

// approvalSetup: Olive owns the hall, Tom (no rights) books it.
func approvalSetup(t *testing.T) (*fixture, *generic.User, *generic.User, *generic.Event, generic.Commitment) {
	f := newFixture(t)
	olive := f.user(t, "olive", true)
	tom := f.user(t, "tom", false)
	hall := f.element(t, "Main Hall", generic.KindLocation)
	f.owns(t, olive, hall)

	ev := f.event(t, tom, "Year 9 assembly")
	res := f.attach(t, ev, tom, hall)
	require.Len(t, res.Commitments, 1)
	return f, olive, tom, ev, res.Commitments[0]
}

// =============================================================================
// INITIAL STATUS
// =============================================================================

func TestInitialStatus_NonOwnerOfOwnedElementIsTentative(t *testing.T) {
	_, _, _, _, c := approvalSetup(t)
	assert.Equal(t, generic.StatusTentative, c.Status)
}

func TestInitialStatus_OwnerCommitsDirectly(t *testing.T) {
	f := newFixture(t)
	olive := f.user(t, "olive", true)
	hall := f.element(t, "Main Hall", generic.KindLocation)
	f.owns(t, olive, hall)

	ev := f.event(t, olive, "Concert")
	res := f.attach(t, ev, olive, hall)

	require.Len(t, res.Commitments, 1)
	assert.Equal(t, generic.StatusApproved, res.Commitments[0].Status)
}

func TestInitialStatus_SeekPermissionForcesApproval(t *testing.T) {
	f := newFixture(t)
	olive := f.user(t, "olive", true)
	hall := f.element(t, "Main Hall", generic.KindLocation)
	_, err := f.engine.SaveConcern(f.ctx, generic.Concern{
		UserID: olive.ID, ElementID: hall.ID, Owns: true, SeekPermission: true,
	}, nil)
	require.NoError(t, err)

	ev := f.event(t, olive, "Concert")
	res := f.attach(t, ev, olive, hall)

	require.Len(t, res.Commitments, 1)
	assert.Equal(t, generic.StatusTentative, res.Commitments[0].Status)
}

func TestInitialStatus_UnownedElementIsApproved(t *testing.T) {
	f := newFixture(t)
	tom := f.user(t, "tom", false)
	room := f.element(t, "L12", generic.KindLocation)

	ev := f.event(t, tom, "Maths")
	res := f.attach(t, ev, tom, room)

	require.Len(t, res.Commitments, 1)
	assert.Equal(t, generic.StatusApproved, res.Commitments[0].Status)
}

func TestInitialStatus_PermissionsNotEnforced(t *testing.T) {
	f := newFixture(t)
	f.engine.Settings.EnforcePermissions = false
	olive := f.user(t, "olive", true)
	tom := f.user(t, "tom", false)
	hall := f.element(t, "Main Hall", generic.KindLocation)
	f.owns(t, olive, hall)

	ev := f.event(t, tom, "Assembly")
	res := f.attach(t, ev, tom, hall)

	require.Len(t, res.Commitments, 1)
	assert.Equal(t, generic.StatusApproved, res.Commitments[0].Status)
}

// =============================================================================
// APPROVE
// =============================================================================

func TestApprove_OwnerApprovesTentative(t *testing.T) {
	// GIVEN: A tentative commitment on Olive's hall
	// WHEN: Olive approves
	// THEN: Approved, journalled, event owner told the event is complete
	f, olive, tom, ev, c := approvalSetup(t)
	f.sink.reset()

	ok, err := f.engine.Approve(f.ctx, c.ID, olive)
	require.NoError(t, err)
	assert.True(t, ok)

	got := f.commitment(t, c.ID)
	assert.Equal(t, generic.StatusApproved, got.Status)
	require.NotNil(t, got.ByUserID)
	assert.Equal(t, olive.ID, *got.ByUserID)

	entries := f.entries(t, ev.ID)
	assert.Equal(t, generic.EntryCommitmentApproved, entries[len(entries)-1].Kind)

	require.Len(t, f.sink.sent, 1)
	n := f.sink.sent[0]
	assert.Equal(t, generic.NotifyCommitmentApproved, n.Kind)
	assert.Equal(t, tom.ID, n.Recipient.ID)
	assert.True(t, n.EventComplete)

	complete, err := f.engine.IsComplete(f.ctx, ev.ID)
	require.NoError(t, err)
	assert.True(t, complete)
}

func TestApprove_AlreadyApprovedFails(t *testing.T) {
	f, olive, _, ev, c := approvalSetup(t)
	ok, err := f.engine.Approve(f.ctx, c.ID, olive)
	require.NoError(t, err)
	require.True(t, ok)
	before := len(f.entries(t, ev.ID))
	f.sink.reset()

	ok, err = f.engine.Approve(f.ctx, c.ID, olive)

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, f.entries(t, ev.ID), before, "no journal entry for a refused transition")
	assert.Empty(t, f.sink.sent)
}

func TestApprove_NonOwnerFails(t *testing.T) {
	f, _, tom, ev, c := approvalSetup(t)
	before := len(f.entries(t, ev.ID))

	ok, err := f.engine.Approve(f.ctx, c.ID, tom)

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, generic.StatusTentative, f.commitment(t, c.ID).Status)
	assert.Len(t, f.entries(t, ev.ID), before)
}

func TestApprove_SystemCannotApprove(t *testing.T) {
	f, _, _, _, c := approvalSetup(t)

	ok, err := f.engine.Approve(f.ctx, c.ID, nil)

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestApprove_UnknownCommitmentIsAnError(t *testing.T) {
	f, olive, _, _, _ := approvalSetup(t)

	ok, err := f.engine.Approve(f.ctx, "missing", olive)

	assert.False(t, ok)
	assert.ErrorIs(t, err, generic.ErrCommitmentNotFound)
}

func TestApprove_IncompleteWhileOtherCommitmentsPending(t *testing.T) {
	f, olive, tom, ev, c := approvalSetup(t)
	stage := f.element(t, "Stage", generic.KindProperty)
	f.owns(t, olive, stage)
	f.attach(t, ev, tom, stage)
	f.sink.reset()

	ok, err := f.engine.Approve(f.ctx, c.ID, olive)
	require.NoError(t, err)
	require.True(t, ok)

	require.Len(t, f.sink.sent, 1)
	assert.False(t, f.sink.sent[0].EventComplete)
}

// =============================================================================
// REJECT / NOTE
// =============================================================================

func TestReject_StoresReasonAndDowngradesForm(t *testing.T) {
	// GIVEN: Tom completed the booking form for the hall
	// WHEN: Olive rejects the commitment
	// THEN: Rejected with reason; the form drops back to partial
	f, olive, tom, ev, c := approvalSetup(t)
	form, err := f.engine.AttachForm(f.ctx, generic.CommitmentParent(c.ID), "hall-booking", &tom.ID)
	require.NoError(t, err)
	_, err = f.engine.CompleteForm(f.ctx, form.ID, tom)
	require.NoError(t, err)
	f.sink.reset()

	ok, err := f.engine.Reject(f.ctx, c.ID, olive, "Exams in the hall")
	require.NoError(t, err)
	require.True(t, ok)

	got := f.commitment(t, c.ID)
	assert.Equal(t, generic.StatusRejected, got.Status)
	assert.Equal(t, "Exams in the hall", got.Reason)
	assert.True(t, got.Tentative(), "rejected still counts as tentative")

	stored, err := f.store.GetFormResponse(f.ctx, form.ID)
	require.NoError(t, err)
	assert.Equal(t, generic.FormPartial, stored.Status)

	assert.Equal(t, 1, f.sink.count(generic.NotifyCommitmentRejected))
	entries := f.entries(t, ev.ID)
	assert.Equal(t, generic.EntryCommitmentRejected, entries[len(entries)-1].Kind)
	assert.Equal(t, "Exams in the hall", entries[len(entries)-1].Payload["reason"])
}

func TestReject_ApprovedCommitmentCanBeRejected(t *testing.T) {
	f, olive, _, _, c := approvalSetup(t)
	_, err := f.engine.Approve(f.ctx, c.ID, olive)
	require.NoError(t, err)

	ok, err := f.engine.Reject(f.ctx, c.ID, olive, "double booked")

	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReject_AlreadyRejectedFails(t *testing.T) {
	f, olive, _, _, c := approvalSetup(t)
	_, err := f.engine.Reject(f.ctx, c.ID, olive, "no")
	require.NoError(t, err)

	ok, err := f.engine.Reject(f.ctx, c.ID, olive, "still no")

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "no", f.commitment(t, c.ID).Reason)
}

func TestNote_FromTentativeAndRejected(t *testing.T) {
	f, olive, _, _, c := approvalSetup(t)

	ok, err := f.engine.Note(f.ctx, c.ID, olive, "needs chairs")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, generic.StatusNoted, f.commitment(t, c.ID).Status)

	_, err = f.engine.Reject(f.ctx, c.ID, olive, "no chairs")
	require.NoError(t, err)
	ok, err = f.engine.Note(f.ctx, c.ID, olive, "chairs found elsewhere")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNote_ApprovedCannotBeNoted(t *testing.T) {
	f, olive, _, _, c := approvalSetup(t)
	_, err := f.engine.Approve(f.ctx, c.ID, olive)
	require.NoError(t, err)

	ok, err := f.engine.Note(f.ctx, c.ID, olive, "too late")

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, generic.StatusApproved, f.commitment(t, c.ID).Status)
}

func TestApprove_ClearsRejectionReason(t *testing.T) {
	f, olive, _, _, c := approvalSetup(t)
	_, err := f.engine.Reject(f.ctx, c.ID, olive, "no")
	require.NoError(t, err)

	ok, err := f.engine.Approve(f.ctx, c.ID, olive)

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, f.commitment(t, c.ID).Reason)
}

// =============================================================================
// PENDING / RESET
// =============================================================================

func TestPendingCommitments_ListsOnlyAwaitingDecision(t *testing.T) {
	f, olive, tom, _, c := approvalSetup(t)
	hall, err := f.store.GetElement(f.ctx, c.ElementID)
	require.NoError(t, err)
	second := f.event(t, tom, "Parents evening")
	res := f.attach(t, second, tom, *hall)
	require.Len(t, res.Commitments, 1)
	_, err = f.engine.Reject(f.ctx, res.Commitments[0].ID, olive, "no")
	require.NoError(t, err)

	pending, err := f.engine.PendingCommitments(f.ctx, hall.ID)

	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, c.ID, pending[0].ID)
}

func TestReset_OnlyRejectedOrNoted(t *testing.T) {
	f, olive, _, ev, c := approvalSetup(t)

	done, err := f.engine.Reset(f.ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, done, "tentative needs no reset")

	_, err = f.engine.Reject(f.ctx, c.ID, olive, "no")
	require.NoError(t, err)

	done, err = f.engine.Reset(f.ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, generic.StatusTentative, f.commitment(t, c.ID).Status)

	entries := f.entries(t, ev.ID)
	last := entries[len(entries)-1]
	assert.Equal(t, generic.EntryCommitmentReset, last.Kind)
	assert.Nil(t, last.UserID, "resets are attributed to the system")
}
