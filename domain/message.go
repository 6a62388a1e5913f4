package domain

import "time"

// DeliveryState tracks a message between optimistic append and server
// confirmation.
type DeliveryState string

const (
	StateDelivered DeliveryState = "delivered"
	StatePending   DeliveryState = "pending"
	StateFailed    DeliveryState = "failed"
)

// Message is one entry of a conversation timeline.
// ID is server-assigned once confirmed; before confirmation it holds a
// locally generated provisional id.
type Message struct {
	ID           string
	Conversation ConversationID
	AuthorID     string
	Body         string
	CreatedAt    time.Time
	ReadAt       *time.Time
	Mine         bool
	State        DeliveryState
}

// Provisional reports whether the entry still awaits server confirmation.
func (m Message) Provisional() bool {
	return m.State == StatePending || m.State == StateFailed
}

// Before defines the timeline ordering: CreatedAt ascending,
// ties broken by ID ascending.
func (m Message) Before(other Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ID < other.ID
}
