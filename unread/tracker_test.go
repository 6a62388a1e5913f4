package unread

import (
	"carelink/contract"
	"carelink/domain"
	"carelink/errors"
	"carelink/mocks"
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func passthroughGate(gate *mocks.MockAuthorizer) {
	gate.EXPECT().
		Do(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, call contract.Call) error {
			return call(ctx, "access-token")
		}).
		AnyTimes()
}

func TestTracker_MarkRead(t *testing.T) {
	t.Run("should send the receipt then refresh the directory", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		gate := mocks.NewMockAuthorizer(ctrl)
		backend := mocks.NewMockBackend(ctrl)
		directory := mocks.NewMockDirectoryView(ctrl)
		passthroughGate(gate)

		gomock.InOrder(
			backend.EXPECT().
				MarkRead(gomock.Any(), "access-token", domain.ConversationID("c7")).
				Return(nil),
			directory.EXPECT().Refresh(gomock.Any()).Return(nil, nil),
		)

		tracker := NewTracker(testLogger(), gate, backend, directory)
		req.NoError(tracker.MarkRead(context.Background(), "c7"))
	})

	t.Run("should treat an unknown conversation as already read", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		gate := mocks.NewMockAuthorizer(ctrl)
		backend := mocks.NewMockBackend(ctrl)
		directory := mocks.NewMockDirectoryView(ctrl)
		passthroughGate(gate)

		backend.EXPECT().
			MarkRead(gomock.Any(), gomock.Any(), domain.ConversationID("gone")).
			Return(errors.ErrNotFound)
		directory.EXPECT().Refresh(gomock.Any()).Return(nil, nil)

		tracker := NewTracker(testLogger(), gate, backend, directory)
		req.NoError(tracker.MarkRead(context.Background(), "gone"))
	})

	t.Run("should surface other failures without refreshing", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		gate := mocks.NewMockAuthorizer(ctrl)
		backend := mocks.NewMockBackend(ctrl)
		directory := mocks.NewMockDirectoryView(ctrl)
		passthroughGate(gate)

		backend.EXPECT().
			MarkRead(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(fmt.Errorf("backend unavailable"))
		directory.EXPECT().Refresh(gomock.Any()).Times(0)

		tracker := NewTracker(testLogger(), gate, backend, directory)
		req.Error(tracker.MarkRead(context.Background(), "c7"))
	})

	t.Run("should be safe to repeat", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		gate := mocks.NewMockAuthorizer(ctrl)
		backend := mocks.NewMockBackend(ctrl)
		directory := mocks.NewMockDirectoryView(ctrl)
		passthroughGate(gate)

		backend.EXPECT().
			MarkRead(gomock.Any(), gomock.Any(), domain.ConversationID("c7")).
			Return(nil).
			Times(2)
		directory.EXPECT().Refresh(gomock.Any()).Return(nil, nil).Times(2)

		tracker := NewTracker(testLogger(), gate, backend, directory)
		req.NoError(tracker.MarkRead(context.Background(), "c7"))
		req.NoError(tracker.MarkRead(context.Background(), "c7"))
	})
}

func TestTracker_Count(t *testing.T) {
	t.Run("should read the count from the directory cache only", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		gate := mocks.NewMockAuthorizer(ctrl)
		backend := mocks.NewMockBackend(ctrl)
		directory := mocks.NewMockDirectoryView(ctrl)

		directory.EXPECT().UnreadCount(domain.ConversationID("c7")).Return(4)

		tracker := NewTracker(testLogger(), gate, backend, directory)
		req.Equal(4, tracker.Count("c7"))
	})
}
