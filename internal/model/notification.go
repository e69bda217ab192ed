package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NotificationStatus is the aggregated delivery state of a notification.
// It is always derived from the status multiset of the notification's
// messages; it is cached in storage but never independently authoritative.
type NotificationStatus string

const (
	NotificationStatusPending   NotificationStatus = "pending"
	NotificationStatusSending   NotificationStatus = "sending"
	NotificationStatusSent      NotificationStatus = "sent"
	NotificationStatusCancelled NotificationStatus = "cancelled"
	NotificationStatusFailed    NotificationStatus = "failed"
)

var (
	ErrNotificationTerminal = errors.New("notification is in a terminal status")
	ErrUnknownMessage       = errors.New("message does not belong to notification")
)

// Notification is the aggregate root: content, schedule, direct targets,
// audiences and one message per resolved recipient.
type Notification struct {
	UUID    uuid.UUID
	Content string
	Status  NotificationStatus
	SendAt  *time.Time
	SentAt  *time.Time

	targets   map[uuid.UUID]*Target
	audiences map[uuid.UUID]*Audience
	messages  []*Message
}

func NewNotification(content string, sendAt *time.Time) (*Notification, error) {
	if content == "" {
		return nil, errors.New("notification content is required")
	}
	return &Notification{
		UUID:      uuid.New(),
		Content:   content,
		Status:    NotificationStatusPending,
		SendAt:    sendAt,
		targets:   make(map[uuid.UUID]*Target),
		audiences: make(map[uuid.UUID]*Audience),
	}, nil
}

// ReconstituteNotification rebuilds the scalar shell of a notification from a
// storage row; children are attached by the reconstitution factory.
func ReconstituteNotification(id uuid.UUID, content string, status NotificationStatus, sendAt, sentAt *time.Time) *Notification {
	return &Notification{
		UUID:      id,
		Content:   content,
		Status:    status,
		SendAt:    sendAt,
		SentAt:    sentAt,
		targets:   make(map[uuid.UUID]*Target),
		audiences: make(map[uuid.UUID]*Audience),
	}
}

func (n *Notification) AddTarget(t *Target) {
	if t == nil {
		return
	}
	n.targets[t.UUID] = t
}

func (n *Notification) RemoveTarget(id uuid.UUID) {
	delete(n.targets, id)
}

func (n *Notification) AddAudience(a *Audience) {
	if a == nil {
		return
	}
	n.audiences[a.UUID] = a
}

func (n *Notification) RemoveAudience(id uuid.UUID) {
	delete(n.audiences, id)
}

// Audience returns the attached audience with the given id, or nil. Used by
// reconstitution to match member rows back to their owning audience.
func (n *Notification) Audience(id uuid.UUID) *Audience {
	return n.audiences[id]
}

// Targets returns a defensive snapshot of the direct recipients.
func (n *Notification) Targets() []*Target {
	out := make([]*Target, 0, len(n.targets))
	for _, t := range n.targets {
		out = append(out, t.Copy())
	}
	return out
}

func (n *Notification) TargetIDs() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(n.targets))
	for id := range n.targets {
		out = append(out, id)
	}
	return out
}

func (n *Notification) Audiences() []*Audience {
	out := make([]*Audience, 0, len(n.audiences))
	for _, a := range n.audiences {
		out = append(out, a)
	}
	return out
}

func (n *Notification) AudienceIDs() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(n.audiences))
	for id := range n.audiences {
		out = append(out, id)
	}
	return out
}

// Messages returns a defensive snapshot of the message set.
func (n *Notification) Messages() []*Message {
	out := make([]*Message, 0, len(n.messages))
	for _, m := range n.messages {
		out = append(out, m.Copy())
	}
	return out
}

func (n *Notification) Message(id int) *Message {
	for _, m := range n.messages {
		if m.ID == id {
			return m.Copy()
		}
	}
	return nil
}

// PrepareMessages resolves the recipient set and regenerates the message set:
// one pending message per unique phone number across direct targets and
// audience members, with sequential ids starting at 1. Already-generated
// messages are discarded.
func (n *Notification) PrepareMessages(from PhoneNumber) {
	seen := make(map[string]bool)
	msgs := make([]*Message, 0, len(n.targets))
	next := 1

	appendFor := func(t *Target) {
		e164 := t.Phone.String()
		if seen[e164] {
			return
		}
		seen[e164] = true
		msgs = append(msgs, NewMessage(next, from, t.Phone, n.Content))
		next++
	}

	for _, t := range n.targets {
		appendFor(t)
	}
	for _, a := range n.audiences {
		for _, t := range a.Members() {
			appendFor(t)
		}
	}

	n.SetMessages(msgs)
}

// SetMessages replaces the message set and recomputes the aggregate status.
// It never stamps SentAt: reconstitution goes through here, and a read must
// not invent a timestamp that was never persisted. Stamping happens on the
// message-mutation paths.
func (n *Notification) SetMessages(msgs []*Message) {
	n.messages = msgs
	n.Status = nextStatus(n.Status, n.counts())
}

func (n *Notification) mutateMessage(id int, fn func(*Message)) error {
	for _, m := range n.messages {
		if m.ID == id {
			fn(m)
			n.recomputeStatus()
			return nil
		}
	}
	return fmt.Errorf("%w: id %d", ErrUnknownMessage, id)
}

// MarkMessageSent records provider acceptance of one message.
func (n *Notification) MarkMessageSent(id int, externalID string) error {
	return n.mutateMessage(id, func(m *Message) {
		m.Status = MessageStatusSent
		m.ExternalID = externalID
	})
}

// MarkMessageDelivered records a delivery report for one message.
func (n *Notification) MarkMessageDelivered(id int) error {
	return n.mutateMessage(id, func(m *Message) {
		m.Status = MessageStatusDelivered
	})
}

// MarkMessageFailed records a terminal provider failure for one message.
func (n *Notification) MarkMessageFailed(id int) error {
	return n.mutateMessage(id, func(m *Message) {
		m.Status = MessageStatusFailed
	})
}

// Reschedule moves the send time and recomputes status.
func (n *Notification) Reschedule(sendAt *time.Time) {
	n.SendAt = sendAt
	n.recomputeStatus()
}

// Cancel is the only path into the cancelled status. It is an explicit
// external action and is rejected once delivery has finished.
func (n *Notification) Cancel() error {
	switch n.Status {
	case NotificationStatusPending, NotificationStatusSending:
		n.Status = NotificationStatusCancelled
		return nil
	default:
		return ErrNotificationTerminal
	}
}

type statusCounts struct {
	total     int
	pending   int
	sent      int
	delivered int
	failed    int
}

func (n *Notification) counts() statusCounts {
	var c statusCounts
	c.total = len(n.messages)
	for _, m := range n.messages {
		switch m.Status {
		case MessageStatusPending:
			c.pending++
		case MessageStatusSent:
			c.sent++
		case MessageStatusDelivered:
			c.delivered++
		case MessageStatusFailed:
			c.failed++
		}
	}
	return c
}

// nextStatus is the pure message-driven transition function. Cancelled, sent
// and failed are terminal for message-driven transitions.
func nextStatus(current NotificationStatus, c statusCounts) NotificationStatus {
	switch current {
	case NotificationStatusPending:
		if c.total == 0 {
			return NotificationStatusPending
		}
		switch {
		case c.failed == c.total:
			return NotificationStatusFailed
		case c.sent+c.delivered == c.total:
			return NotificationStatusSent
		case c.pending < c.total:
			return NotificationStatusSending
		default:
			return NotificationStatusPending
		}
	case NotificationStatusSending:
		if c.total == 0 {
			return NotificationStatusSending
		}
		switch {
		case c.failed == c.total:
			return NotificationStatusFailed
		case c.sent+c.delivered == c.total:
			return NotificationStatusSent
		default:
			return NotificationStatusSending
		}
	default:
		return current
	}
}

// recomputeStatus rederives the aggregate status from the current message
// multiset and stamps SentAt on the transition into sent. The status is
// recomputed whole, never patched incrementally.
func (n *Notification) recomputeStatus() {
	n.Status = nextStatus(n.Status, n.counts())
	if n.Status == NotificationStatusSent && n.SentAt == nil {
		now := time.Now().UTC()
		n.SentAt = &now
	}
}
