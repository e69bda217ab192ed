package model

// MessageStatus is the delivery lifecycle state of one outbound SMS.
type MessageStatus string

const (
	MessageStatusPending   MessageStatus = "pending"
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusFailed    MessageStatus = "failed"
)

// Message is one per-recipient delivery attempt owned by a notification.
// IDs are sequential within the owning notification. ExternalID is the
// provider-assigned tracking id, empty until the gateway accepts the message.
type Message struct {
	ID         int
	From       PhoneNumber
	To         PhoneNumber
	Content    string
	Status     MessageStatus
	ExternalID string
}

func NewMessage(id int, from, to PhoneNumber, content string) *Message {
	return &Message{
		ID:      id,
		From:    from,
		To:      to,
		Content: content,
		Status:  MessageStatusPending,
	}
}

func (m *Message) Copy() *Message {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}
