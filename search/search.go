// Package search runs the debounced participant lookup used to start
// new conversations. No call leaves before the input has been stable
// for the quiet period, at most one call is in flight, and a result
// arriving for an outdated term is discarded.
package search

import (
	"carelink/contract"
	"carelink/domain"
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DefaultQuietPeriod is the debounce window applied to keystrokes.
const DefaultQuietPeriod = 300 * time.Millisecond

// Selector is the downstream hand-off for a freshly created
// conversation, satisfied by the channel manager.
type Selector interface {
	Select(id domain.ConversationID)
}

type Searcher struct {
	log       *slog.Logger
	gate      contract.Authorizer
	backend   contract.Backend
	directory contract.DirectoryView
	selector  Selector
	scheduler contract.Scheduler
	quiet     time.Duration

	mu       sync.Mutex
	term     string
	role     domain.Role
	stop     func() bool // cancels the pending debounce timer
	inFlight bool
	results  []domain.Candidate

	onResults func([]domain.Candidate) // observer hook, guarded by mu, may be nil
}

func NewSearcher(log *slog.Logger, gate contract.Authorizer, backend contract.Backend,
	directory contract.DirectoryView, selector Selector,
	scheduler contract.Scheduler, quiet time.Duration) *Searcher {
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	return &Searcher{
		log:       log,
		gate:      gate,
		backend:   backend,
		directory: directory,
		selector:  selector,
		scheduler: scheduler,
		quiet:     quiet,
	}
}

// OnResults registers a callback fired with each completed result set.
// Safe to call while a debounced lookup is in flight.
func (s *Searcher) OnResults(fn func([]domain.Candidate)) {
	s.mu.Lock()
	s.onResults = fn
	s.mu.Unlock()
}

// Search records the latest input and (re)arms the debounce timer. An
// empty term clears the results synchronously without a network call.
func (s *Searcher) Search(term string, role domain.Role) {
	term = strings.TrimSpace(term)

	s.mu.Lock()
	if s.stop != nil {
		s.stop()
		s.stop = nil
	}
	s.term = term
	s.role = role

	if term == "" {
		s.results = nil
		s.mu.Unlock()
		s.notify(nil)
		return
	}
	s.stop = s.scheduler.AfterFunc(s.quiet, func() { s.fire(term, role) })
	s.mu.Unlock()
}

// Results returns the current result set.
func (s *Searcher) Results() []domain.Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := make([]domain.Candidate, len(s.results))
	copy(snapshot, s.results)
	return snapshot
}

// fire issues the actual lookup once the quiet period elapsed. Only one
// call runs at a time; if the term moved on while a call was in flight,
// the stale result is dropped and the newer term fired instead.
func (s *Searcher) fire(term string, role domain.Role) {
	s.mu.Lock()
	if term != s.term || s.inFlight {
		s.mu.Unlock()
		return
	}
	s.inFlight = true
	s.mu.Unlock()

	var candidates []domain.Candidate
	err := s.gate.Do(context.Background(), func(ctx context.Context, token string) error {
		var callErr error
		candidates, callErr = s.backend.SearchUsers(ctx, token, term, role)
		return callErr
	})

	s.mu.Lock()
	s.inFlight = false
	current, currentRole := s.term, s.role
	if current != term {
		s.mu.Unlock()
		s.log.Debug("Discarding search result for outdated term", "term", term)
		if current != "" {
			s.fire(current, currentRole)
		}
		return
	}
	if err != nil {
		s.mu.Unlock()
		s.log.Warn("Participant search failed", "term", term, "error", err)
		return
	}
	s.results = candidates
	s.mu.Unlock()
	s.notify(candidates)
}

// StartConversationWith creates or reuses a conversation with the given
// user, refreshes the directory and hands the result to the channel
// manager for selection.
func (s *Searcher) StartConversationWith(ctx context.Context, userID string) (domain.Conversation, error) {
	var conv domain.Conversation
	err := s.gate.Do(ctx, func(ctx context.Context, token string) error {
		var callErr error
		conv, callErr = s.backend.CreateConversation(ctx, token, userID)
		return callErr
	})
	if err != nil {
		return domain.Conversation{}, err
	}
	if _, err := s.directory.Refresh(ctx); err != nil {
		s.log.Warn("Directory refresh after conversation creation failed", "error", err)
	}
	s.selector.Select(conv.ID)
	return conv, nil
}

func (s *Searcher) notify(candidates []domain.Candidate) {
	s.mu.Lock()
	fn := s.onResults
	s.mu.Unlock()
	if fn != nil {
		fn(candidates)
	}
}
