package directory

import (
	"carelink/contract"
	"carelink/domain"
	"carelink/mocks"
	"context"
	"fmt"
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

// passthroughGate runs every call with a fixed token, like an authorizer
// with a healthy session.
func passthroughGate(gate *mocks.MockAuthorizer) {
	gate.EXPECT().
		Do(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, call contract.Call) error {
			return call(ctx, "access-token")
		}).
		AnyTimes()
}

func conversationWith(id string, unread int) domain.Conversation {
	return domain.Conversation{
		ID:          domain.ConversationID(id),
		Participant: domain.Participant{ID: "u-" + id, DisplayName: "Dr " + id},
		UnreadCount: unread,
		UpdatedAt:   time.Now().UTC(),
	}
}

func TestDirectory_Refresh(t *testing.T) {
	t.Run("should cache the fetched list", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		gate := mocks.NewMockAuthorizer(ctrl)
		backend := mocks.NewMockBackend(ctrl)
		passthroughGate(gate)

		fetched := []domain.Conversation{conversationWith("c1", 2), conversationWith("c2", 0)}
		backend.EXPECT().
			ListConversations(gomock.Any(), "access-token").
			Return(fetched, nil)

		dir := NewDirectory(testLogger(), gate, backend)
		list, err := dir.Refresh(context.Background())

		req.NoError(err)
		req.Len(list, 2)
		req.Equal(fetched, dir.List())
	})

	t.Run("should join a refresh already in flight", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		gate := mocks.NewMockAuthorizer(ctrl)
		backend := mocks.NewMockBackend(ctrl)
		passthroughGate(gate)

		started := make(chan struct{})
		release := make(chan struct{})
		fetched := []domain.Conversation{conversationWith("c1", 0)}
		backend.EXPECT().
			ListConversations(gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, token string) ([]domain.Conversation, error) {
				close(started)
				<-release
				return fetched, nil
			}).
			Times(1)

		dir := NewDirectory(testLogger(), gate, backend)

		const callers = 3
		var wg sync.WaitGroup
		lists := make([][]domain.Conversation, callers)
		errs := make([]error, callers)
		wg.Add(1)
		go func() {
			defer wg.Done()
			lists[0], errs[0] = dir.Refresh(context.Background())
		}()
		<-started
		for i := 1; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				lists[i], errs[i] = dir.Refresh(context.Background())
			}(i)
		}
		close(release)
		wg.Wait()

		for i := 0; i < callers; i++ {
			req.NoError(errs[i])
			req.Equal(fetched, lists[i])
		}
	})

	t.Run("should keep the previous cache when the refresh fails", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		gate := mocks.NewMockAuthorizer(ctrl)
		backend := mocks.NewMockBackend(ctrl)
		passthroughGate(gate)

		fetched := []domain.Conversation{conversationWith("c1", 1)}
		gomock.InOrder(
			backend.EXPECT().
				ListConversations(gomock.Any(), gomock.Any()).
				Return(fetched, nil),
			backend.EXPECT().
				ListConversations(gomock.Any(), gomock.Any()).
				Return(nil, fmt.Errorf("backend unavailable")),
		)

		dir := NewDirectory(testLogger(), gate, backend)
		_, err := dir.Refresh(context.Background())
		req.NoError(err)

		_, err = dir.Refresh(context.Background())
		req.Error(err)
		req.Equal(fetched, dir.List(), "failed refresh must not wipe the cache")
	})
}

func TestDirectory_FindByID(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	gate := mocks.NewMockAuthorizer(ctrl)
	backend := mocks.NewMockBackend(ctrl)
	passthroughGate(gate)

	backend.EXPECT().
		ListConversations(gomock.Any(), gomock.Any()).
		Return([]domain.Conversation{conversationWith("c1", 3)}, nil)

	dir := NewDirectory(testLogger(), gate, backend)
	_, err := dir.Refresh(context.Background())
	req.NoError(err)

	t.Run("should find a cached conversation", func(t *testing.T) {
		conv, ok := dir.FindByID("c1")
		require.True(t, ok)
		require.Equal(t, domain.ConversationID("c1"), conv.ID)
	})

	t.Run("should report not-found for an unknown id without erroring", func(t *testing.T) {
		_, ok := dir.FindByID("ghost")
		require.False(t, ok)
	})

	t.Run("should expose the cached unread count", func(t *testing.T) {
		require.Equal(t, 3, dir.UnreadCount("c1"))
		require.Equal(t, 0, dir.UnreadCount("ghost"))
	})
}
