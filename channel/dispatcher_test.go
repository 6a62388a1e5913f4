package channel

import (
	"carelink/domain"
	"carelink/domain/event"
	"carelink/mocks"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// fixedSource pins the active subscription id for the test.
type fixedSource struct {
	id event.SubscriptionID
}

func (s fixedSource) Active() event.SubscriptionID { return s.id }

func TestDispatcher_Dispatch(t *testing.T) {
	liveMessage := event.MessageReceived{
		SubscriptionID: "sub-live",
		Conversation:   "c1",
		Message:        domain.Message{ID: "m1", Conversation: "c1"},
	}
	staleMessage := event.MessageReceived{
		SubscriptionID: "sub-old",
		Conversation:   "c1",
		Message:        domain.Message{ID: "m0", Conversation: "c1"},
	}

	t.Run("should forward events from the live subscription to every sink", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		first := mocks.NewMockEventSink(ctrl)
		second := mocks.NewMockEventSink(ctrl)

		first.EXPECT().Consume(liveMessage).Times(1)
		second.EXPECT().Consume(liveMessage).Times(1)

		d := NewDispatcher(testLogger(), fixedSource{id: "sub-live"}, nil, first, second)
		d.dispatch(liveMessage)
	})

	t.Run("should drop messages from a released subscription", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		sink := mocks.NewMockEventSink(ctrl)

		sink.EXPECT().Consume(gomock.Any()).Times(0)

		dropped := 0
		d := NewDispatcher(testLogger(), fixedSource{id: "sub-live"}, nil, sink)
		d.OnStale(func() { dropped++ })

		d.dispatch(staleMessage)

		req.Equal(1, dropped)
	})

	t.Run("should always pass lifecycle events", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		sink := mocks.NewMockEventSink(ctrl)

		closed := event.SubscriptionClosed{SubscriptionID: "sub-old", Conversation: "c1"}
		sink.EXPECT().Consume(closed).Times(1)

		d := NewDispatcher(testLogger(), fixedSource{id: "sub-live"}, nil, sink)
		d.dispatch(closed)
	})
}
