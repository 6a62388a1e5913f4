package channel

import (
	"carelink/domain"
	"carelink/domain/event"
	"carelink/errors"
	"carelink/mocks"
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSub is a broker handle whose feed the test controls. Close ends
// the feed, which is the contract real subscriptions follow.
type fakeSub struct {
	events chan domain.Message
	once   sync.Once
}

func newFakeSub() *fakeSub {
	return &fakeSub{events: make(chan domain.Message, 4)}
}

func (s *fakeSub) Events() <-chan domain.Message { return s.events }

func (s *fakeSub) Close() error {
	s.once.Do(func() { close(s.events) })
	return nil
}

func authorizedGate(ctrl *gomock.Controller) *mocks.MockAuthorizer {
	gate := mocks.NewMockAuthorizer(ctrl)
	gate.EXPECT().ChannelToken().Return("access-token", nil).AnyTimes()
	return gate
}

// nextEvent pulls one event of type T, skipping others, with a timeout
// so a broken manager fails the test instead of hanging it.
func nextEvent[T event.ChannelEvent](t *testing.T, events <-chan event.ChannelEvent) T {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-events:
			if typed, ok := e.(T); ok {
				return typed
			}
		case <-deadline:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}

func TestManager_Select(t *testing.T) {
	t.Run("should open one subscription for the selected conversation", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		gate := authorizedGate(ctrl)
		broker := mocks.NewMockBroker(ctrl)

		sub := newFakeSub()
		broker.EXPECT().
			Subscribe(gomock.Any(), "access-token", domain.ConversationID("c1")).
			Return(sub, nil).
			Times(1)

		m := NewManager(testLogger(), gate, broker, 16)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() { _ = m.Run(ctx) }()

		m.Select("c1")
		opened := nextEvent[event.SubscriptionOpened](t, m.Events())

		req.Equal(domain.ConversationID("c1"), opened.Conversation)
		req.Equal(opened.SubscriptionID, m.Active())
		conv, ok := m.ActiveConversation()
		req.True(ok)
		req.Equal(domain.ConversationID("c1"), conv)
	})

	t.Run("should close the old handle before opening the next", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		gate := authorizedGate(ctrl)
		broker := mocks.NewMockBroker(ctrl)

		subA := newFakeSub()
		subB := newFakeSub()
		var mu sync.Mutex
		var order []string

		broker.EXPECT().
			Subscribe(gomock.Any(), gomock.Any(), domain.ConversationID("a")).
			DoAndReturn(func(ctx context.Context, token string, id domain.ConversationID) (*fakeSub, error) {
				mu.Lock()
				order = append(order, "subscribe-a")
				mu.Unlock()
				return subA, nil
			})
		broker.EXPECT().
			Subscribe(gomock.Any(), gomock.Any(), domain.ConversationID("b")).
			DoAndReturn(func(ctx context.Context, token string, id domain.ConversationID) (*fakeSub, error) {
				mu.Lock()
				order = append(order, "subscribe-b")
				mu.Unlock()
				// The old feed must be gone by now.
				_, open := <-subA.events
				require.False(t, open, "previous subscription still live")
				return subB, nil
			})

		m := NewManager(testLogger(), gate, broker, 16)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() { _ = m.Run(ctx) }()

		m.Select("a")
		first := nextEvent[event.SubscriptionOpened](t, m.Events())
		m.Select("b")
		second := nextEvent[event.SubscriptionOpened](t, m.Events())

		req.NotEqual(first.SubscriptionID, second.SubscriptionID)
		req.Equal(second.SubscriptionID, m.Active())
		mu.Lock()
		req.Equal([]string{"subscribe-a", "subscribe-b"}, order)
		mu.Unlock()
	})

	t.Run("should only honor the newest pending selection", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		gate := authorizedGate(ctrl)
		broker := mocks.NewMockBroker(ctrl)

		// Both selections land before the worker starts; only "b" may
		// reach the broker.
		broker.EXPECT().
			Subscribe(gomock.Any(), gomock.Any(), domain.ConversationID("b")).
			Return(newFakeSub(), nil).
			Times(1)

		m := NewManager(testLogger(), gate, broker, 16)
		m.Select("a")
		m.Select("b")

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() { _ = m.Run(ctx) }()

		opened := nextEvent[event.SubscriptionOpened](t, m.Events())
		req.Equal(domain.ConversationID("b"), opened.Conversation)
	})

	t.Run("should fall back to idle when the handshake fails", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		gate := authorizedGate(ctrl)
		broker := mocks.NewMockBroker(ctrl)

		broker.EXPECT().
			Subscribe(gomock.Any(), gomock.Any(), domain.ConversationID("c1")).
			Return(nil, errors.ErrChannelClosed)

		m := NewManager(testLogger(), gate, broker, 16)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() { _ = m.Run(ctx) }()

		m.Select("c1")
		fault := nextEvent[event.ChannelFault](t, m.Events())

		req.Equal(domain.ConversationID("c1"), fault.Conversation)
		req.ErrorIs(fault.Err, errors.ErrChannelClosed)
		req.Empty(m.Active())
		_, ok := m.ActiveConversation()
		req.False(ok)
	})
}

func TestManager_Release(t *testing.T) {
	t.Run("should close the handle and clear the active id", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		gate := authorizedGate(ctrl)
		broker := mocks.NewMockBroker(ctrl)

		sub := newFakeSub()
		broker.EXPECT().
			Subscribe(gomock.Any(), gomock.Any(), domain.ConversationID("c1")).
			Return(sub, nil)

		m := NewManager(testLogger(), gate, broker, 16)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() { _ = m.Run(ctx) }()

		m.Select("c1")
		opened := nextEvent[event.SubscriptionOpened](t, m.Events())

		m.Release()
		closed := nextEvent[event.SubscriptionClosed](t, m.Events())

		req.Equal(opened.SubscriptionID, closed.SubscriptionID)
		req.Empty(m.Active())
	})
}

func TestManager_Pump(t *testing.T) {
	t.Run("should tag forwarded messages with their subscription id", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		gate := authorizedGate(ctrl)
		broker := mocks.NewMockBroker(ctrl)

		sub := newFakeSub()
		broker.EXPECT().
			Subscribe(gomock.Any(), gomock.Any(), domain.ConversationID("c1")).
			Return(sub, nil)

		m := NewManager(testLogger(), gate, broker, 16)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() { _ = m.Run(ctx) }()

		m.Select("c1")
		opened := nextEvent[event.SubscriptionOpened](t, m.Events())

		sub.events <- domain.Message{ID: "m1", Conversation: "c1", Body: "ward 4 update"}
		received := nextEvent[event.MessageReceived](t, m.Events())

		req.Equal(opened.SubscriptionID, received.SubscriptionID)
		req.Equal("m1", received.Message.ID)
	})
}
