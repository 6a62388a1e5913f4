package pubsub

import (
	"carelink/errors"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestBroker_Subscribe(t *testing.T) {
	t.Run("should hand shake, subscribe and deliver message frames", func(t *testing.T) {
		req := require.New(t)
		upgrader := websocket.Upgrader{}

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))
			conn, err := upgrader.Upgrade(w, r, nil)
			require.NoError(t, err)
			defer conn.Close()

			var env envelope
			require.NoError(t, conn.ReadJSON(&env))
			require.Equal(t, "subscribe", env.Command)
			require.Equal(t, "c1", env.ConversationID)

			require.NoError(t, conn.WriteJSON(map[string]any{
				"type": "message",
				"message": map[string]any{
					"id":              "m1",
					"conversation_id": "c1",
					"author_id":       "bob",
					"body":            "patient in room 12 is ready",
					"created_at":      time.Now().UTC().Format(time.RFC3339),
				},
			}))

			// Hold the connection open until the client closes it.
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}))
		defer server.Close()

		broker := NewBroker(testLogger(), wsURL(server))
		sub, err := broker.Subscribe(context.Background(), "access-1", "c1")
		req.NoError(err)

		select {
		case msg := <-sub.Events():
			req.Equal("m1", msg.ID)
			req.Equal("bob", msg.AuthorID)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for a pushed message")
		}

		req.NoError(sub.Close())
	})

	t.Run("should end the feed when the server drops the connection", func(t *testing.T) {
		req := require.New(t)
		upgrader := websocket.Upgrader{}

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			conn, err := upgrader.Upgrade(w, r, nil)
			require.NoError(t, err)
			var env envelope
			_ = conn.ReadJSON(&env)
			conn.Close()
		}))
		defer server.Close()

		broker := NewBroker(testLogger(), wsURL(server))
		sub, err := broker.Subscribe(context.Background(), "access-1", "c1")
		req.NoError(err)

		select {
		case _, open := <-sub.Events():
			req.False(open, "feed must close when the transport dies")
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for the feed to close")
		}
	})

	t.Run("should map a rejected handshake to the expiry sentinel", func(t *testing.T) {
		req := require.New(t)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		broker := NewBroker(testLogger(), wsURL(server))
		_, err := broker.Subscribe(context.Background(), "stale", "c1")

		req.ErrorIs(err, errors.ErrAuthExpired)
	})
}
