/*
dispatcher.go - Notification sink with retry

PURPOSE:
  Dispatcher implements generic.NotificationSink. It renders each
  notification and hands it to a Sender, retrying transient failures with
  exponential backoff. Queue puts a worker goroutine in front of it so
  HTTP handlers never wait on the mail provider. A full queue drops the
  notification rather than hold up a committed change.

FAILURES:
  - Recipients without an address are skipped (logged, not an error).
  - Sender errors wrapping ErrRejected stop the retry loop at once.
  - Anything else is retried up to MaxTries.

SEE ALSO:
  - message.go: Rendering
  - sendgrid.go, sender.go: Senders
*/
package mailer

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/warp/scheduling-engine/generic"
)

const DefaultMaxTries = 5

type Dispatcher struct {
	Sender   Sender
	MaxTries uint

	// NewBackOff builds the wait policy for one message. nil means
	// exponential backoff with library defaults.
	NewBackOff func() backoff.BackOff
}

var _ generic.NotificationSink = (*Dispatcher)(nil)

func NewDispatcher(sender Sender) *Dispatcher {
	return &Dispatcher{Sender: sender, MaxTries: DefaultMaxTries}
}

func (d *Dispatcher) backOff() backoff.BackOff {
	if d.NewBackOff != nil {
		return d.NewBackOff()
	}
	return backoff.NewExponentialBackOff()
}

func (d *Dispatcher) Notify(ctx context.Context, n generic.Notification) error {
	msg, err := Render(n)
	if errors.Is(err, ErrNoAddress) {
		log.Printf("[Dispatcher] skipping %s: %v", n.Kind, err)
		return nil
	}
	if err != nil {
		return err
	}

	tries := d.MaxTries
	if tries == 0 {
		tries = DefaultMaxTries
	}
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		err := d.Sender.Send(ctx, msg)
		if errors.Is(err, ErrRejected) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(d.backOff()),
		backoff.WithMaxTries(tries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			log.Printf("[Dispatcher] %s to %s failed, retrying in %v: %v", n.Kind, msg.To.Address, wait, err)
		}),
	)
	return err
}

// =============================================================================
// QUEUE
// =============================================================================

var (
	// ErrQueueClosed is returned by Notify after Close.
	ErrQueueClosed = errors.New("notification queue closed")

	// ErrQueueFull is returned when Notify drops a notification.
	ErrQueueFull = errors.New("notification queue full")
)

// Queue delivers notifications from one background goroutine.
//
// USAGE:
//
//	q := NewQueue(dispatcher, 100)
//	q.Start()
//	defer q.Close() // drains what is already queued
type Queue struct {
	sink generic.NotificationSink
	ch   chan generic.Notification

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

var _ generic.NotificationSink = (*Queue)(nil)

func NewQueue(sink generic.NotificationSink, size int) *Queue {
	return &Queue{sink: sink, ch: make(chan generic.Notification, size)}
}

func (q *Queue) Start() {
	q.wg.Add(1)
	go q.run()
	log.Printf("[Dispatcher] Queue started (capacity %d)", cap(q.ch))
}

func (q *Queue) run() {
	defer q.wg.Done()
	for n := range q.ch {
		if err := q.sink.Notify(context.Background(), n); err != nil {
			log.Printf("[Dispatcher] %s to %s dropped: %v", n.Kind, n.Recipient.ID, err)
		}
	}
}

// Notify enqueues n without waiting. When the queue is full n is dropped.
func (q *Queue) Notify(_ context.Context, n generic.Notification) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- n:
		return nil
	default:
		log.Printf("[Dispatcher] queue full, dropping %s to %s", n.Kind, n.Recipient.ID)
		return ErrQueueFull
	}
}

// Close stops accepting notifications and waits for the queue to drain.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	q.wg.Wait()
	log.Println("[Dispatcher] Queue stopped")
}
