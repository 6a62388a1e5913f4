// Package pubsub carries live conversation traffic over a websocket.
// Each subscription opens its own connection scoped to one conversation
// so that closing it tears the transport down with no shared state.
package pubsub

import (
	"carelink/contract"
	"carelink/domain"
	"carelink/errors"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	writeTimeout            = 5 * time.Second
)

type Broker struct {
	log    *slog.Logger
	wsURL  string
	dialer *websocket.Dialer
}

func NewBroker(log *slog.Logger, wsURL string) *Broker {
	return &Broker{
		log:   log,
		wsURL: wsURL,
		dialer: &websocket.Dialer{
			HandshakeTimeout: defaultHandshakeTimeout,
		},
	}
}

// envelope is the wire frame exchanged with the channel server.
type envelope struct {
	Command        string          `json:"command,omitempty"`
	Type           string          `json:"type,omitempty"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Message        json.RawMessage `json:"message,omitempty"`
}

type wireMessage struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	AuthorID       string     `json:"author_id"`
	Body           string     `json:"body"`
	CreatedAt      time.Time  `json:"created_at"`
	ReadAt         *time.Time `json:"read_at"`
}

// Subscribe dials the channel server, authenticates with the bearer
// token and asks for the conversation's feed. The returned subscription
// owns the connection.
func (b *Broker) Subscribe(ctx context.Context, token string, id domain.ConversationID) (contract.Subscription, error) {
	header := http.Header{"Authorization": {"Bearer " + token}}
	conn, resp, err := b.dialer.DialContext(ctx, b.wsURL, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, errors.ErrAuthExpired
		}
		return nil, fmt.Errorf("dialing channel server: %w", err)
	}

	sub := &subscription{
		log:    b.log,
		conn:   conn,
		conv:   id,
		events: make(chan domain.Message, 16),
		done:   make(chan struct{}),
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(envelope{Command: "subscribe", ConversationID: string(id)}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("subscribing to conversation %s: %w", id, err)
	}

	go sub.readLoop()
	return sub, nil
}

type subscription struct {
	log    *slog.Logger
	conn   *websocket.Conn
	conv   domain.ConversationID
	events chan domain.Message
	done   chan struct{}
}

func (s *subscription) Events() <-chan domain.Message {
	return s.events
}

// Close sends a best-effort unsubscribe frame then drops the
// connection, which unblocks the read loop.
func (s *subscription) Close() error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = s.conn.WriteJSON(envelope{Command: "unsubscribe", ConversationID: string(s.conv)})
	err := s.conn.Close()
	<-s.done
	return err
}

// readLoop decodes frames until the connection dies, forwarding message
// frames and ignoring pings and acks. Closing the events channel is the
// signal consumers use to notice the feed ended.
func (s *subscription) readLoop() {
	defer close(s.done)
	defer close(s.events)

	for {
		var env envelope
		if err := s.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warn("Channel connection dropped", "conversation", s.conv, "error", err)
			}
			return
		}
		if env.Type != "message" || len(env.Message) == 0 {
			continue
		}

		var wire wireMessage
		if err := json.Unmarshal(env.Message, &wire); err != nil {
			s.log.Warn("Discarding malformed channel frame", "conversation", s.conv, "error", err)
			continue
		}

		s.events <- domain.Message{
			ID:           wire.ID,
			Conversation: domain.ConversationID(wire.ConversationID),
			AuthorID:     wire.AuthorID,
			Body:         wire.Body,
			CreatedAt:    wire.CreatedAt,
			ReadAt:       wire.ReadAt,
			State:        domain.StateDelivered,
		}
	}
}
