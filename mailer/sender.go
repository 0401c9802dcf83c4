package mailer

import (
	"context"
	"errors"
	"log"
	"sync"
)

// Sender delivers one rendered message. Errors wrapping ErrRejected are
// final; anything else may be retried.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// ErrRejected marks a message the provider will never accept.
var ErrRejected = errors.New("message rejected")

// ConsoleSender prints messages to the log instead of sending them.
// Used in development when no provider key is configured.
type ConsoleSender struct {
	SubjectPrefix string
}

func (s ConsoleSender) Send(_ context.Context, msg Message) error {
	msg.Subject = s.SubjectPrefix + msg.Subject
	log.Printf("[Mailer] console delivery\n%s", msg)
	return nil
}

// Recorder keeps every message it is given. Safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

func (r *Recorder) Send(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return nil
}

// Messages returns a copy of what has been sent so far.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}
