package generic_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/scheduling-engine/generic"
)

func TestNotifier_InteractiveAddSendsRequest(t *testing.T) {
	f, olive, tom, ev, c := approvalSetup(t)
	f.sink.reset()
	n := generic.NewRequestNotifier(f.store, f.sink)

	n.CommitmentAdded(c)
	sent, err := n.SendNotificationsFor(f.ctx, tom, *ev, false)

	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	require.Len(t, f.sink.sent, 1)
	assert.Equal(t, generic.NotifyResourceRequested, f.sink.sent[0].Kind)
	assert.Equal(t, olive.ID, f.sink.sent[0].Recipient.ID)
	assert.False(t, n.Pending(), "sending clears the session")
}

func TestNotifier_InteractiveAddThenRemoveCancels(t *testing.T) {
	// GIVEN: An editing session
	// WHEN: The hall is added and then removed again
	// THEN: Nothing to tell anyone
	f, _, tom, ev, c := approvalSetup(t)
	f.sink.reset()
	n := generic.NewRequestNotifier(f.store, f.sink)

	n.CommitmentAdded(c)
	n.CommitmentRemoved(c)

	assert.False(t, n.Pending())
	sent, err := n.SendNotificationsFor(f.ctx, tom, *ev, false)
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Empty(t, f.sink.sent)
}

func TestNotifier_InteractiveRemoveThenAddCancels(t *testing.T) {
	f, _, _, _, c := approvalSetup(t)
	n := generic.NewRequestNotifier(f.store, f.sink)

	n.CommitmentRemoved(c)
	n.CommitmentAdded(c)

	assert.False(t, n.Pending())
}

func TestNotifier_IgnoresApprovedCommitments(t *testing.T) {
	f, olive, _, _, c := approvalSetup(t)
	_, err := f.engine.Approve(f.ctx, c.ID, olive)
	require.NoError(t, err)
	n := generic.NewRequestNotifier(f.store, f.sink)

	n.CommitmentAdded(f.commitment(t, c.ID))

	assert.False(t, n.Pending())
}

func TestNotifier_IgnoresRemovalOfRejected(t *testing.T) {
	f, olive, _, _, c := approvalSetup(t)
	_, err := f.engine.Reject(f.ctx, c.ID, olive, "no")
	require.NoError(t, err)
	n := generic.NewRequestNotifier(f.store, f.sink)

	n.CommitmentRemoved(f.commitment(t, c.ID))

	assert.False(t, n.Pending())
}

func TestNotifier_OnlyImmediateOwnersHear(t *testing.T) {
	f, _, tom, ev, c := approvalSetup(t)
	hall, err := f.store.GetElement(f.ctx, c.ElementID)
	require.NoError(t, err)
	quiet := f.user(t, "quiet", false)
	f.owns(t, quiet, *hall)
	f.sink.reset()
	n := generic.NewRequestNotifier(f.store, f.sink)

	n.CommitmentAdded(c)
	sent, err := n.SendNotificationsFor(f.ctx, tom, *ev, false)

	require.NoError(t, err)
	assert.Equal(t, 1, sent)
}

func TestNotifier_DeletingSendsCancellationForPending(t *testing.T) {
	f, olive, tom, ev, _ := approvalSetup(t)
	f.sink.reset()
	n := generic.NewRequestNotifier(f.store, f.sink)

	sent, err := n.SendNotificationsFor(f.ctx, tom, *ev, true)

	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	require.Len(t, f.sink.sent, 1)
	assert.Equal(t, generic.NotifyResourceCancelled, f.sink.sent[0].Kind)
	assert.Equal(t, olive.ID, f.sink.sent[0].Recipient.ID)
}

func TestDestroyEvent_TellsOwnersOfPendingResources(t *testing.T) {
	f, olive, tom, ev, _ := approvalSetup(t)
	f.sink.reset()

	require.NoError(t, f.engine.DestroyEvent(f.ctx, ev.ID, tom))

	require.Len(t, f.sink.sent, 1)
	assert.Equal(t, generic.NotifyResourceCancelled, f.sink.sent[0].Kind)
	assert.Equal(t, olive.ID, f.sink.sent[0].Recipient.ID)
}

func TestDestroyEvent_RejectedCommitmentsNeedNoCancellation(t *testing.T) {
	f, olive, tom, ev, c := approvalSetup(t)
	_, err := f.engine.Reject(f.ctx, c.ID, olive, "no")
	require.NoError(t, err)
	f.sink.reset()

	require.NoError(t, f.engine.DestroyEvent(f.ctx, ev.ID, tom))

	assert.Empty(t, f.sink.sent)
}

func TestNotifier_BatchAddThenRemoveNetsZero(t *testing.T) {
	f, _, tom, ev, c := approvalSetup(t)
	f.sink.reset()
	n := generic.NewRequestNotifier(f.store, f.sink)

	n.BatchCommitmentAdded(c, *ev)
	n.BatchCommitmentRemoved(c, *ev)
	sent, err := n.SendBatchNotifications(f.ctx, tom)

	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Empty(t, f.sink.sent)
}

func TestNotifier_BatchManyEventsOneMessagePerOwner(t *testing.T) {
	// GIVEN: The hall is added to 100 events and removed from 3 others
	// WHEN: The batch is sent
	// THEN: Olive gets one summary listing both sides in order
	f, olive, tom, ev, c := approvalSetup(t)
	f.sink.reset()
	n := generic.NewRequestNotifier(f.store, f.sink)

	var added []generic.EventID
	for i := 0; i < 100; i++ {
		other := f.event(t, tom, ev.Body)
		added = append(added, other.ID)
		n.BatchCommitmentAdded(generic.Commitment{EventID: other.ID, ElementID: c.ElementID, Status: generic.StatusTentative}, *other)
	}
	for i := 0; i < 3; i++ {
		other := f.event(t, tom, ev.Body)
		n.BatchCommitmentRemoved(generic.Commitment{EventID: other.ID, ElementID: c.ElementID, Status: generic.StatusNoted}, *other)
	}

	sent, err := n.SendBatchNotifications(f.ctx, tom)

	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	require.Len(t, f.sink.sent, 1)
	note := f.sink.sent[0]
	assert.Equal(t, olive.ID, note.Recipient.ID)
	require.NotNil(t, note.Batch)
	require.Len(t, note.Batch.Added, 100)
	assert.Len(t, note.Batch.Removed, 3)
	assert.Equal(t, added[0], note.Batch.Added[0].EventID)
	assert.Equal(t, added[99], note.Batch.Added[99].EventID)
	assert.Equal(t, "09:00 Mon 10/03/2025", note.Batch.Added[0].StartsAt)

	// the notifier is spent
	sent, err = n.SendBatchNotifications(f.ctx, tom)
	require.NoError(t, err)
	assert.Zero(t, sent)
}
