package event

import (
	"carelink/domain"
)

// SubscriptionID identifies one live channel subscription. Every event
// carries the id of the subscription it arrived on; the dispatcher
// compares it against the currently active one before forwarding.
type SubscriptionID string

type ChannelEvent interface {
	Subscription() SubscriptionID
}

// MessageReceived is pushed by the broker when the other participant
// (or another device) posts into the subscribed conversation.
type MessageReceived struct {
	SubscriptionID SubscriptionID
	Conversation   domain.ConversationID
	Message        domain.Message
}

func (e MessageReceived) Subscription() SubscriptionID { return e.SubscriptionID }

// SubscriptionOpened signals a completed handshake.
type SubscriptionOpened struct {
	SubscriptionID SubscriptionID
	Conversation   domain.ConversationID
}

func (e SubscriptionOpened) Subscription() SubscriptionID { return e.SubscriptionID }

// SubscriptionClosed signals a released handle. Events tagged with the
// closed id are dropped from then on.
type SubscriptionClosed struct {
	SubscriptionID SubscriptionID
	Conversation   domain.ConversationID
}

func (e SubscriptionClosed) Subscription() SubscriptionID { return e.SubscriptionID }

// ChannelFault signals a broken subscription. The conversation stops
// receiving live updates until it is re-selected.
type ChannelFault struct {
	SubscriptionID SubscriptionID
	Conversation   domain.ConversationID
	Err            error
}

func (e ChannelFault) Subscription() SubscriptionID { return e.SubscriptionID }
