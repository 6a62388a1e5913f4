// Package directory caches the conversation list. The server is
// authoritative: every mutation elsewhere ends in a Refresh here, never
// in a hand-patched cache, so unread counts and previews cannot drift.
package directory

import (
	"carelink/contract"
	"carelink/domain"
	"context"
	"log/slog"
	"sync"

	"github.com/samber/lo"
)

// flight is one in-progress refresh; concurrent callers share its result.
type flight struct {
	done chan struct{}
	list []domain.Conversation
	err  error
}

type Directory struct {
	log     *slog.Logger
	gate    contract.Authorizer
	backend contract.Backend

	mu     sync.Mutex
	cache  []domain.Conversation
	byID   map[domain.ConversationID]domain.Conversation
	flight *flight
}

func NewDirectory(log *slog.Logger, gate contract.Authorizer, backend contract.Backend) *Directory {
	return &Directory{
		log:     log,
		gate:    gate,
		backend: backend,
		byID:    make(map[domain.ConversationID]domain.Conversation),
	}
}

// Refresh fetches the full conversation list through the gate and swaps
// the cache atomically. A refresh already in flight is joined, not
// duplicated; last-write-wins is fine because the server is the
// authority on every field.
func (d *Directory) Refresh(ctx context.Context) ([]domain.Conversation, error) {
	d.mu.Lock()
	if f := d.flight; f != nil {
		d.mu.Unlock()
		select {
		case <-f.done:
			return f.list, f.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f := &flight{done: make(chan struct{})}
	d.flight = f
	d.mu.Unlock()

	var list []domain.Conversation
	err := d.gate.Do(ctx, func(ctx context.Context, token string) error {
		var callErr error
		list, callErr = d.backend.ListConversations(ctx, token)
		return callErr
	})

	d.mu.Lock()
	d.flight = nil
	if err == nil {
		d.cache = list
		d.byID = lo.KeyBy(list, func(c domain.Conversation) domain.ConversationID {
			return c.ID
		})
	} else {
		d.log.Warn("Conversation refresh failed", "error", err)
	}
	f.list, f.err = list, err
	close(f.done)
	d.mu.Unlock()

	return list, err
}

// FindByID looks up the cached list only. A conversation created by
// another client and not yet refreshed is simply "not found".
func (d *Directory) FindByID(id domain.ConversationID) (domain.Conversation, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	conv, ok := d.byID[id]
	return conv, ok
}

// List returns a snapshot copy of the cached conversations.
func (d *Directory) List() []domain.Conversation {
	d.mu.Lock()
	defer d.mu.Unlock()
	snapshot := make([]domain.Conversation, len(d.cache))
	copy(snapshot, d.cache)
	return snapshot
}

// UnreadCount reads the cached count; it is never incremented locally.
func (d *Directory) UnreadCount(id domain.ConversationID) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.byID[id].UnreadCount
}
