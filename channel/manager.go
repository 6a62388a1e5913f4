// Package channel maps the active conversation selection to exactly one
// live broker subscription. Transitions are serialized by a single
// worker goroutine; events are tagged with the subscription id they
// arrived on so stragglers from a released handle can be discarded.
package channel

import (
	"carelink/contract"
	"carelink/domain"
	"carelink/domain/event"
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

type State string

const (
	StateIdle          State = "idle"
	StateSubscribing   State = "subscribing"
	StateSubscribed    State = "subscribed"
	StateUnsubscribing State = "unsubscribing"
)

// request is one Select or Release. Only the latest pending request
// matters: a newer selection replaces a queued one.
type request struct {
	conv    domain.ConversationID
	release bool
}

type Manager struct {
	log    *slog.Logger
	gate   contract.Authorizer
	broker contract.Broker
	events chan event.ChannelEvent

	reqMu    sync.Mutex
	requests chan request

	mu     sync.Mutex
	state  State
	active event.SubscriptionID
	conv   domain.ConversationID
	sub    contract.Subscription
}

func NewManager(log *slog.Logger, gate contract.Authorizer,
	broker contract.Broker, bufferSize int) *Manager {
	return &Manager{
		log:      log,
		gate:     gate,
		broker:   broker,
		events:   make(chan event.ChannelEvent, bufferSize),
		requests: make(chan request, 1),
		state:    StateIdle,
	}
}

// Events exposes the tagged event stream consumed by the dispatcher.
func (m *Manager) Events() <-chan event.ChannelEvent { return m.events }

// Select switches the live subscription to the given conversation.
// Never blocks; completion is observed through the event stream.
func (m *Manager) Select(id domain.ConversationID) {
	m.enqueue(request{conv: id})
}

// Release forces the manager back to Idle. Used on logout or when the
// chat view is torn down.
func (m *Manager) Release() {
	m.enqueue(request{release: true})
}

// enqueue replaces any still-pending request: only the newest selection
// is worth acting on.
func (m *Manager) enqueue(r request) {
	m.reqMu.Lock()
	defer m.reqMu.Unlock()
	select {
	case <-m.requests:
	default:
	}
	m.requests <- r
}

// Active returns the id of the current subscription, or "" when none.
func (m *Manager) Active() event.SubscriptionID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// ActiveConversation returns the conversation the live handle is bound to.
func (m *Manager) ActiveConversation() (domain.ConversationID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conv, m.conv != ""
}

// Run consumes selection requests one at a time: the previous handle is
// fully released before the next handshake starts, so two subscriptions
// are never live together. Implements contract.Worker.
func (m *Manager) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			m.teardown()
			return nil
		case r := <-m.requests:
			m.teardown()
			if r.release {
				continue
			}
			m.subscribe(ctx, r.conv)
		}
	}
}

func (m *Manager) subscribe(ctx context.Context, conv domain.ConversationID) {
	subID := event.SubscriptionID(uuid.New().String())

	m.mu.Lock()
	m.state = StateSubscribing
	m.active = subID
	m.conv = conv
	m.mu.Unlock()

	// Read the token at handshake time so it reflects the latest refresh.
	token, err := m.gate.ChannelToken()
	if err == nil {
		var sub contract.Subscription
		sub, err = m.broker.Subscribe(ctx, token, conv)
		if err == nil {
			m.mu.Lock()
			m.state = StateSubscribed
			m.sub = sub
			m.mu.Unlock()

			go m.pump(subID, conv, sub)
			m.emit(event.SubscriptionOpened{SubscriptionID: subID, Conversation: conv})
			m.log.Debug("Subscribed", "conversation", conv)
			return
		}
	}

	m.mu.Lock()
	m.state = StateIdle
	m.active = ""
	m.conv = ""
	m.mu.Unlock()
	m.log.Warn("Subscription failed", "conversation", conv, "error", err)
	m.emit(event.ChannelFault{SubscriptionID: subID, Conversation: conv, Err: err})
}

// pump forwards broker messages tagged with the subscription they
// belong to. It may outlive the subscription briefly; the tag check in
// the dispatcher makes those late events harmless.
func (m *Manager) pump(subID event.SubscriptionID, conv domain.ConversationID, sub contract.Subscription) {
	for msg := range sub.Events() {
		m.emit(event.MessageReceived{SubscriptionID: subID, Conversation: conv, Message: msg})
	}
}

// teardown releases the current handle, if any. The active id is
// cleared before the broker close so events racing the teardown are
// already stale when they surface.
func (m *Manager) teardown() {
	m.mu.Lock()
	sub := m.sub
	subID := m.active
	conv := m.conv
	m.state = StateUnsubscribing
	m.active = ""
	m.conv = ""
	m.sub = nil
	m.mu.Unlock()

	if sub != nil {
		if err := sub.Close(); err != nil {
			m.log.Debug("Subscription close", "error", err)
		}
		m.emit(event.SubscriptionClosed{SubscriptionID: subID, Conversation: conv})
	}

	m.mu.Lock()
	m.state = StateIdle
	m.mu.Unlock()
}

func (m *Manager) emit(e event.ChannelEvent) {
	select {
	case m.events <- e:
	default:
		m.log.Warn(fmt.Sprintf("Channel event buffer full, dropping %T", e))
	}
}
