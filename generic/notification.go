/*
notification.go - Outbound notification contract

PURPOSE:
  The engine never sends e-mail itself. It hands Notifications to a
  NotificationSink, fire-and-forget. A failing sink is logged and ignored:
  the state transition that caused the notification has already committed.

SEE ALSO:
  - notifier.go: Decides which notifications to send for requirement edits
  - mailer/: Sink implementation (templates, retry, SendGrid)
*/
package generic

import (
	"context"
	"log"
)

type NotificationKind string

const (
	NotifyResourceRequested  NotificationKind = "resource_requested"
	NotifyResourceCancelled  NotificationKind = "resource_request_cancelled"
	NotifyResourceBatch      NotificationKind = "resource_batch"
	NotifyCommitmentApproved NotificationKind = "commitment_approved"
	NotifyCommitmentRejected NotificationKind = "commitment_rejected"
	NotifyCommitmentNoted    NotificationKind = "commitment_noted"
)

// Notification is one message to one recipient.
type Notification struct {
	Kind      NotificationKind
	Recipient User
	Actor     *User

	Element    *Element
	Event      *Event
	Commitment *Commitment

	// EventComplete accompanies approvals: true once nothing is pending.
	EventComplete bool

	// Batch is set for NotifyResourceBatch only.
	Batch *BatchSummary
}

// BatchSummary lists every event an element gained or lost in one bulk
// operation.
type BatchSummary struct {
	EventBody string
	Added     []EventStamp
	Removed   []EventStamp
}

type EventStamp struct {
	EventID  EventID
	StartsAt string
}

type NotificationSink interface {
	Notify(ctx context.Context, n Notification) error
}

// NotificationSinkFunc adapts a function to NotificationSink.
type NotificationSinkFunc func(ctx context.Context, n Notification) error

func (f NotificationSinkFunc) Notify(ctx context.Context, n Notification) error { return f(ctx, n) }

// deliver hands n to the sink. Failures are logged, never returned.
func deliver(ctx context.Context, sink NotificationSink, n Notification) {
	if sink == nil {
		return
	}
	if err := sink.Notify(ctx, n); err != nil {
		log.Printf("[Notify] %s to %s failed: %v", n.Kind, n.Recipient.ID, err)
	}
}
