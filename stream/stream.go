// Package stream keeps the ordered message sequence of the active
// conversation, merging optimistic local sends with server-confirmed
// and pushed messages. Grounded rule: a provisional entry and its
// server echo must never both be visible.
package stream

import (
	"carelink/contract"
	"carelink/domain"
	"carelink/domain/event"
	"carelink/errors"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultReconcileWindow bounds how far a server timestamp may drift
// from the provisional creation time and still count as the same send.
const DefaultReconcileWindow = 5 * time.Second

type Stream struct {
	log             *slog.Logger
	gate            contract.Authorizer
	backend         contract.Backend
	reconcileWindow time.Duration

	mu       sync.Mutex
	conv     domain.ConversationID
	messages []domain.Message

	// observer hooks, guarded by mu, may be nil
	onChange     func()
	onSendFailed func()
}

func NewStream(log *slog.Logger, gate contract.Authorizer,
	backend contract.Backend, reconcileWindow time.Duration) *Stream {
	if reconcileWindow <= 0 {
		reconcileWindow = DefaultReconcileWindow
	}
	return &Stream{log: log, gate: gate, backend: backend, reconcileWindow: reconcileWindow}
}

// OnChange registers a callback fired after every visible mutation.
// Safe to call while the dispatcher is already delivering events.
func (s *Stream) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// OnSendFailed registers a hook fired whenever a send is marked failed.
func (s *Stream) OnSendFailed(fn func()) {
	s.mu.Lock()
	s.onSendFailed = fn
	s.mu.Unlock()
}

// Activate clears the sequence and binds the stream to a conversation.
// Called on selection, before Load.
func (s *Stream) Activate(id domain.ConversationID) {
	s.mu.Lock()
	s.conv = id
	s.messages = nil
	s.mu.Unlock()
	s.notify()
}

// Deactivate unbinds the stream (logout, view teardown).
func (s *Stream) Deactivate() {
	s.Activate("")
}

// Load fetches the history through the gate and replaces the sequence.
// A load that completes after the active conversation changed is
// discarded rather than applied to the wrong view.
func (s *Stream) Load(ctx context.Context, id domain.ConversationID) error {
	var history []domain.Message
	err := s.gate.Do(ctx, func(ctx context.Context, token string) error {
		var callErr error
		history, callErr = s.backend.ListMessages(ctx, token, id)
		return callErr
	})
	if err != nil {
		return err
	}

	me := s.gate.UserID()
	s.mu.Lock()
	if s.conv != id {
		s.mu.Unlock()
		s.log.Debug("Discarding history for no-longer-active conversation", "conversation", id)
		return nil
	}
	for i := range history {
		history[i].Mine = history[i].AuthorID == me
		history[i].State = domain.StateDelivered
	}
	sortMessages(history)
	s.messages = history
	s.mu.Unlock()
	s.notify()
	return nil
}

// Append applies one server-confirmed message, from a send response or
// a channel push. If a provisional entry matches (same conversation,
// author and body, confirmed timestamp within the reconcile window) it
// is replaced in place; an entry with a known id is deduplicated;
// anything else is appended and the sequence re-sorted.
func (s *Stream) Append(msg domain.Message) {
	msg.State = domain.StateDelivered
	if msg.AuthorID == s.gate.UserID() {
		msg.Mine = true
	}

	s.mu.Lock()
	if s.conv != msg.Conversation {
		s.mu.Unlock()
		return
	}
	s.applyLocked(msg)
	s.mu.Unlock()
	s.notify()
}

func (s *Stream) applyLocked(msg domain.Message) {
	for i, existing := range s.messages {
		if existing.ID == msg.ID {
			s.messages[i] = msg
			return
		}
	}
	for i, existing := range s.messages {
		if existing.Provisional() &&
			existing.AuthorID == msg.AuthorID &&
			existing.Body == msg.Body &&
			absDuration(msg.CreatedAt.Sub(existing.CreatedAt)) <= s.reconcileWindow {
			// Replace in place to preserve the optimistic position.
			s.messages[i] = msg
			return
		}
	}
	s.messages = append(s.messages, msg)
	sortMessages(s.messages)
}

// Send appends a provisional entry immediately, then issues the call
// through the gate. On failure the entry stays visible, marked failed,
// so the user can retry or remove it.
func (s *Stream) Send(ctx context.Context, id domain.ConversationID, body string) (domain.Message, error) {
	provisional := domain.Message{
		ID:           uuid.New().String(),
		Conversation: id,
		AuthorID:     s.gate.UserID(),
		Body:         body,
		CreatedAt:    time.Now().UTC(),
		Mine:         true,
		State:        domain.StatePending,
	}

	s.mu.Lock()
	if s.conv == id {
		s.messages = append(s.messages, provisional)
	}
	s.mu.Unlock()
	s.notify()

	var confirmed domain.Message
	err := s.gate.Do(ctx, func(ctx context.Context, token string) error {
		var callErr error
		confirmed, callErr = s.backend.PostMessage(ctx, token, id, body)
		return callErr
	})
	if err != nil {
		s.markFailed(provisional.ID)
		return provisional, fmt.Errorf("%w: %v", errors.ErrSendFailed, err)
	}

	confirmed.Conversation = id
	s.Append(confirmed)
	return confirmed, nil
}

func (s *Stream) markFailed(provisionalID string) {
	s.mu.Lock()
	for i := range s.messages {
		if s.messages[i].ID == provisionalID {
			s.messages[i].State = domain.StateFailed
			break
		}
	}
	hook := s.onSendFailed
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	s.notify()
}

// Remove drops a failed provisional entry the user gave up on.
func (s *Stream) Remove(messageID string) {
	s.mu.Lock()
	for i, m := range s.messages {
		if m.ID == messageID && m.Provisional() {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	s.notify()
}

// Messages returns a snapshot copy of the visible sequence.
func (s *Stream) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := make([]domain.Message, len(s.messages))
	copy(snapshot, s.messages)
	return snapshot
}

// Consume lets the stream sit behind the channel dispatcher as an event
// sink: confirmed pushes flow straight into Append.
func (s *Stream) Consume(e event.ChannelEvent) {
	if msg, ok := e.(event.MessageReceived); ok {
		s.Append(msg.Message)
	}
}

func (s *Stream) notify() {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func sortMessages(messages []domain.Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Before(messages[j])
	})
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
