// Package services is the surface the UI talks to: thin orchestration
// over the gate, directory, channel manager, message stream, unread
// tracker and participant search.
package services

import (
	"carelink/auth"
	"carelink/channel"
	"carelink/domain"
	"carelink/errors"
	"carelink/search"
	"carelink/stream"
	"carelink/unread"
	"context"
	"log/slog"
)

type IChatService interface {
	Login(ctx context.Context, email, password string) error
	Logout(ctx context.Context) error
	SelectConversation(ctx context.Context, id domain.ConversationID) error
	SendMessage(ctx context.Context, body string) (domain.Message, error)
	MarkRead(ctx context.Context, id domain.ConversationID) error
	SearchUsers(term string, role domain.Role)
	StartConversationWith(ctx context.Context, userID string) (domain.Conversation, error)
	Release()
	Conversations(ctx context.Context) ([]domain.Conversation, error)
	Messages() []domain.Message
	SearchResults() []domain.Candidate
}

type ChatService struct {
	log       *slog.Logger
	gate      *auth.Gate
	directory Directory
	manager   *channel.Manager
	stream    *stream.Stream
	tracker   *unread.Tracker
	searcher  *search.Searcher
}

// Directory narrows what the facade needs from the conversation cache.
type Directory interface {
	Refresh(ctx context.Context) ([]domain.Conversation, error)
	List() []domain.Conversation
	FindByID(id domain.ConversationID) (domain.Conversation, bool)
}

func NewChatService(log *slog.Logger, gate *auth.Gate, directory Directory,
	manager *channel.Manager, messageStream *stream.Stream,
	tracker *unread.Tracker, searcher *search.Searcher) *ChatService {
	return &ChatService{
		log:       log,
		gate:      gate,
		directory: directory,
		manager:   manager,
		stream:    messageStream,
		tracker:   tracker,
		searcher:  searcher,
	}
}

func (s *ChatService) Login(ctx context.Context, email, password string) error {
	return s.gate.Login(ctx, email, password)
}

// Logout releases the live subscription before revoking the session.
func (s *ChatService) Logout(ctx context.Context) error {
	s.manager.Release()
	s.stream.Deactivate()
	return s.gate.Logout(ctx)
}

// SelectConversation binds the stream to the conversation, switches the
// live subscription and loads the history. Subscription switching never
// blocks; the history load does, under the caller's context.
func (s *ChatService) SelectConversation(ctx context.Context, id domain.ConversationID) error {
	s.stream.Activate(id)
	s.manager.Select(id)
	return s.stream.Load(ctx, id)
}

// SendMessage posts into the currently selected conversation.
func (s *ChatService) SendMessage(ctx context.Context, body string) (domain.Message, error) {
	conv, ok := s.manager.ActiveConversation()
	if !ok {
		return domain.Message{}, errors.ErrNoSelection
	}
	return s.stream.Send(ctx, conv, body)
}

func (s *ChatService) MarkRead(ctx context.Context, id domain.ConversationID) error {
	return s.tracker.MarkRead(ctx, id)
}

func (s *ChatService) SearchUsers(term string, role domain.Role) {
	s.searcher.Search(term, role)
}

func (s *ChatService) StartConversationWith(ctx context.Context, userID string) (domain.Conversation, error) {
	return s.searcher.StartConversationWith(ctx, userID)
}

// Release tears down the live subscription and clears the active
// stream, leaving the session untouched. Used on view unmount.
func (s *ChatService) Release() {
	s.manager.Release()
	s.stream.Deactivate()
}

// Conversations refreshes the directory and returns the list.
func (s *ChatService) Conversations(ctx context.Context) ([]domain.Conversation, error) {
	return s.directory.Refresh(ctx)
}

func (s *ChatService) Messages() []domain.Message {
	return s.stream.Messages()
}

func (s *ChatService) SearchResults() []domain.Candidate {
	return s.searcher.Results()
}
