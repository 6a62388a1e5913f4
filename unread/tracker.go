// Package unread issues read receipts. Counts themselves always come
// from the directory cache so the message stream and the directory can
// never disagree about them.
package unread

import (
	"carelink/contract"
	"carelink/domain"
	"carelink/errors"
	"context"
	stderrors "errors"
	"log/slog"
)

type Tracker struct {
	log       *slog.Logger
	gate      contract.Authorizer
	backend   contract.Backend
	directory contract.DirectoryView
}

func NewTracker(log *slog.Logger, gate contract.Authorizer,
	backend contract.Backend, directory contract.DirectoryView) *Tracker {
	return &Tracker{log: log, gate: gate, backend: backend, directory: directory}
}

// MarkRead sends the receipt through the gate, then refreshes the
// directory so the cached count reflects server truth. Idempotent:
// marking an already-read conversation is a no-op server-side, and a
// deleted conversation counts as already read.
func (t *Tracker) MarkRead(ctx context.Context, id domain.ConversationID) error {
	err := t.gate.Do(ctx, func(ctx context.Context, token string) error {
		return t.backend.MarkRead(ctx, token, id)
	})
	switch {
	case err == nil:
	case stderrors.Is(err, errors.ErrNotFound):
		t.log.Info("Read receipt for unknown conversation, treating as read", "conversation", id)
	default:
		return err
	}

	_, err = t.directory.Refresh(ctx)
	return err
}

// Count reads the directory cache only.
func (t *Tracker) Count(id domain.ConversationID) int {
	return t.directory.UnreadCount(id)
}
