package services

import (
	"carelink/contract"
	"carelink/domain/event"
	"context"
	"log/slog"
	"time"
)

// DirectoryRefreshSink refreshes the conversation cache whenever a live
// message lands, so previews and unread counts track server truth
// instead of being patched locally.
type DirectoryRefreshSink struct {
	log       *slog.Logger
	directory contract.DirectoryView
	timeout   time.Duration
}

func NewDirectoryRefreshSink(log *slog.Logger, directory contract.DirectoryView,
	timeout time.Duration) *DirectoryRefreshSink {
	return &DirectoryRefreshSink{log: log, directory: directory, timeout: timeout}
}

func (s *DirectoryRefreshSink) Consume(e event.ChannelEvent) {
	if _, ok := e.(event.MessageReceived); !ok {
		return
	}
	// Refresh off the dispatcher goroutine: a slow directory call must
	// not stall event delivery. Concurrent refreshes coalesce anyway.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if _, err := s.directory.Refresh(ctx); err != nil {
			s.log.Debug("Directory refresh on live message failed", "error", err)
		}
	}()
}
