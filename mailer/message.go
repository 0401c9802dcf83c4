/*
message.go - Rendering notifications into e-mail

PURPOSE:
  Turns a generic.Notification into a plain-text Message. One text
  template per NotificationKind lives in templates/, embedded at build
  time and parsed once.

SUBJECTS:
  resource_requested          Request for <element>
  resource_request_cancelled  Request for <element> cancelled
  resource_batch              Changes to requests for <element>
  commitment_approved         <element> approved for <event>
  commitment_rejected         <element> declined for <event>
  commitment_noted            Query about <element> for <event>

SEE ALSO:
  - dispatcher.go: Sends rendered messages with retry
  - generic/notification.go: Notification kinds
*/
package mailer

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"text/template"

	"github.com/warp/scheduling-engine/generic"
)

//go:embed templates/*.txt
var templateFS embed.FS

var templates = template.Must(
	template.New("mail").Option("missingkey=error").ParseFS(templateFS, "templates/*.txt"),
)

var (
	// ErrNoAddress is returned for recipients without an e-mail address.
	ErrNoAddress = errors.New("recipient has no e-mail address")

	// ErrUnknownKind is returned for notification kinds with no template.
	ErrUnknownKind = errors.New("no template for notification kind")
)

type Message struct {
	To      mail.Address
	Subject string
	Text    string
}

// String renders the message the way the console sender prints it.
func (m Message) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "To: %s <%s>\n", m.To.Name, m.To.Address)
	fmt.Fprintf(&b, "Subject: %s\n\n", m.Subject)
	b.WriteString(m.Text)
	return b.String()
}

// view is the data every template sees.
type view struct {
	Recipient string
	Actor     string
	Element   string
	Event     string
	StartsAt  string
	Reason    string
	Complete  bool
	Batch     generic.BatchSummary
}

func newView(n generic.Notification) view {
	v := view{
		Recipient: n.Recipient.Name,
		Actor:     "The system",
		Complete:  n.EventComplete,
	}
	if n.Actor != nil {
		v.Actor = n.Actor.Name
	}
	if n.Element != nil {
		v.Element = n.Element.Name
	}
	if n.Event != nil {
		v.Event = n.Event.Body
		v.StartsAt = n.Event.StartsAtText()
	}
	if n.Commitment != nil {
		v.Reason = n.Commitment.Reason
	}
	if n.Batch != nil {
		v.Batch = *n.Batch
	}
	return v
}

func subject(kind generic.NotificationKind, v view) string {
	switch kind {
	case generic.NotifyResourceRequested:
		return "Request for " + v.Element
	case generic.NotifyResourceCancelled:
		return "Request for " + v.Element + " cancelled"
	case generic.NotifyResourceBatch:
		return "Changes to requests for " + v.Element
	case generic.NotifyCommitmentApproved:
		return v.Element + " approved for " + v.Event
	case generic.NotifyCommitmentRejected:
		return v.Element + " declined for " + v.Event
	case generic.NotifyCommitmentNoted:
		return "Query about " + v.Element + " for " + v.Event
	}
	return ""
}

// Render builds the e-mail for n.
func Render(n generic.Notification) (Message, error) {
	if n.Recipient.Email == "" {
		return Message{}, fmt.Errorf("%s: %w", n.Recipient.ID, ErrNoAddress)
	}
	tmpl := templates.Lookup(string(n.Kind) + ".txt")
	if tmpl == nil {
		return Message{}, fmt.Errorf("%q: %w", n.Kind, ErrUnknownKind)
	}

	v := newView(n)
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, v); err != nil {
		return Message{}, fmt.Errorf("render %s: %w", n.Kind, err)
	}
	return Message{
		To:      mail.Address{Name: n.Recipient.Name, Address: n.Recipient.Email},
		Subject: subject(n.Kind, v),
		Text:    buf.String(),
	}, nil
}
