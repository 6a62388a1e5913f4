//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"carelink/domain"
	"carelink/domain/event"
	"context"
	"reflect"
	"time"
)

// Credentials is the access/refresh token pair issued at login and
// rotated on refresh. Owned exclusively by the session gate.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	UserID       string
}

// Backend is the REST surface consumed by the client core. Every call
// takes the access token the gate decided to attach; implementations
// never cache credentials themselves.
type Backend interface {
	ListConversations(ctx context.Context, token string) ([]domain.Conversation, error)
	ListMessages(ctx context.Context, token string, id domain.ConversationID) ([]domain.Message, error)
	PostMessage(ctx context.Context, token string, id domain.ConversationID, body string) (domain.Message, error)
	MarkRead(ctx context.Context, token string, id domain.ConversationID) error
	CreateConversation(ctx context.Context, token, otherUserID string) (domain.Conversation, error)
	SearchUsers(ctx context.Context, token, term string, role domain.Role) ([]domain.Candidate, error)
}

// Authenticator covers the credential endpoints. Kept apart from Backend
// because these calls are issued by the gate itself and must not be
// routed back through it.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (Credentials, error)
	Refresh(ctx context.Context, refreshToken string) (Credentials, error)
	Logout(ctx context.Context, refreshToken string) error
}

// Subscription is one live private-channel binding. Events() is closed
// when the subscription ends, whatever the cause.
type Subscription interface {
	Events() <-chan domain.Message
	Close() error
}

// Broker opens authenticated per-conversation subscriptions.
type Broker interface {
	Subscribe(ctx context.Context, token string, id domain.ConversationID) (Subscription, error)
}

// SessionStore persists the credential pair between runs. It is treated
// as an opaque key-value store by the gate.
type SessionStore interface {
	Load() (Credentials, bool, error)
	Save(creds Credentials) error
	Clear() error
}

// Call is an outgoing request the gate authorizes: the gate decides
// which access token to attach and whether the call may be re-issued
// after a refresh.
type Call func(ctx context.Context, accessToken string) error

// Authorizer is the session gate seen by the other components: it
// attaches credentials, performs the one-shot refresh-and-retry and
// owns the terminal-failure redirect.
type Authorizer interface {
	Do(ctx context.Context, call Call) error
	ChannelToken() (string, error)
	UserID() string
}

// DirectoryView is the conversation directory seen by components that
// trigger refreshes or read cached unread counts.
type DirectoryView interface {
	Refresh(ctx context.Context) ([]domain.Conversation, error)
	FindByID(id domain.ConversationID) (domain.Conversation, bool)
	UnreadCount(id domain.ConversationID) int
}

// Navigator is how the core asks the host to show the re-authentication
// entry point. Called at most once per terminal auth failure.
type Navigator interface {
	RequireLogin()
}

// EventSink receives tagged channel events that survived the staleness
// check, plus lifecycle notifications.
type EventSink interface {
	Consume(e event.ChannelEvent)
}

// Scheduler abstracts timer creation so debounce logic is testable
// without wall-clock delays. The returned stop function reports whether
// the timer was cancelled before firing.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) (stop func() bool)
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
