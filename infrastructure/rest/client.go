// Package rest adapts the hospital backend's JSON API to the contract
// interfaces. It translates HTTP status codes into the core error
// taxonomy and never caches credentials: the gate passes the token it
// wants attached on every call.
package rest

import (
	"bytes"
	"carelink/contract"
	"carelink/domain"
	"carelink/errors"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/samber/lo"
)

type Client struct {
	log     *slog.Logger
	baseURL string
	http    *http.Client
}

func NewClient(log *slog.Logger, baseURL string, timeout time.Duration) *Client {
	return &Client{
		log:     log,
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type participantDTO struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	AvatarURL   string `json:"avatar_url"`
}

type conversationDTO struct {
	ID          string         `json:"id"`
	Participant participantDTO `json:"participant"`
	LastMessage string         `json:"last_message"`
	UnreadCount int            `json:"unread_count"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

type messageDTO struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	AuthorID       string     `json:"author_id"`
	Body           string     `json:"body"`
	CreatedAt      time.Time  `json:"created_at"`
	ReadAt         *time.Time `json:"read_at"`
}

type candidateDTO struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Role        string `json:"role"`
}

type credentialsDTO struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	UserID       string `json:"user_id"`
}

func (c *Client) ListConversations(ctx context.Context, token string) ([]domain.Conversation, error) {
	var dtos []conversationDTO
	if err := c.call(ctx, http.MethodGet, "/conversations", token, nil, &dtos); err != nil {
		return nil, err
	}
	return lo.Map(dtos, func(dto conversationDTO, _ int) domain.Conversation {
		return toConversation(dto)
	}), nil
}

func (c *Client) ListMessages(ctx context.Context, token string, id domain.ConversationID) ([]domain.Message, error) {
	var dtos []messageDTO
	path := fmt.Sprintf("/conversations/%s/messages", url.PathEscape(string(id)))
	if err := c.call(ctx, http.MethodGet, path, token, nil, &dtos); err != nil {
		return nil, err
	}
	return lo.Map(dtos, func(dto messageDTO, _ int) domain.Message {
		return toMessage(dto)
	}), nil
}

func (c *Client) PostMessage(ctx context.Context, token string, id domain.ConversationID, body string) (domain.Message, error) {
	var dto messageDTO
	path := fmt.Sprintf("/conversations/%s/messages", url.PathEscape(string(id)))
	payload := map[string]string{"body": body}
	if err := c.call(ctx, http.MethodPost, path, token, payload, &dto); err != nil {
		return domain.Message{}, err
	}
	return toMessage(dto), nil
}

func (c *Client) MarkRead(ctx context.Context, token string, id domain.ConversationID) error {
	path := fmt.Sprintf("/conversations/%s/read", url.PathEscape(string(id)))
	return c.call(ctx, http.MethodPost, path, token, nil, nil)
}

func (c *Client) CreateConversation(ctx context.Context, token, otherUserID string) (domain.Conversation, error) {
	var dto conversationDTO
	payload := map[string]string{"other_user_id": otherUserID}
	if err := c.call(ctx, http.MethodPost, "/conversations", token, payload, &dto); err != nil {
		return domain.Conversation{}, err
	}
	return toConversation(dto), nil
}

func (c *Client) SearchUsers(ctx context.Context, token, term string, role domain.Role) ([]domain.Candidate, error) {
	query := url.Values{"q": {term}}
	if role != domain.RoleAny {
		query.Set("role", string(role))
	}
	var dtos []candidateDTO
	if err := c.call(ctx, http.MethodGet, "/users/search?"+query.Encode(), token, nil, &dtos); err != nil {
		return nil, err
	}
	return lo.Map(dtos, func(dto candidateDTO, _ int) domain.Candidate {
		return domain.Candidate{
			ID:          dto.ID,
			DisplayName: dto.DisplayName,
			Email:       dto.Email,
			Role:        domain.Role(dto.Role),
		}
	}), nil
}

func (c *Client) Login(ctx context.Context, email, password string) (contract.Credentials, error) {
	payload := map[string]string{"email": email, "password": password}
	var dto credentialsDTO
	if err := c.call(ctx, http.MethodPost, "/auth/login", "", payload, &dto); err != nil {
		return contract.Credentials{}, err
	}
	return toCredentials(dto), nil
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (contract.Credentials, error) {
	payload := map[string]string{"refresh_token": refreshToken}
	var dto credentialsDTO
	if err := c.call(ctx, http.MethodPost, "/auth/refresh", "", payload, &dto); err != nil {
		return contract.Credentials{}, err
	}
	return toCredentials(dto), nil
}

func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	payload := map[string]string{"refresh_token": refreshToken}
	return c.call(ctx, http.MethodPost, "/auth/logout", "", payload, nil)
}

// call issues one JSON request and decodes the response into out (when
// non-nil). Status codes are mapped onto the core error taxonomy so
// callers can rely on errors.Is.
func (c *Client) call(ctx context.Context, method, path, token string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return errors.ErrAuthExpired
	case resp.StatusCode == http.StatusNotFound:
		return errors.ErrNotFound
	case resp.StatusCode >= 400:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, raw)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func toConversation(dto conversationDTO) domain.Conversation {
	return domain.Conversation{
		ID: domain.ConversationID(dto.ID),
		Participant: domain.Participant{
			ID:          dto.Participant.ID,
			DisplayName: dto.Participant.DisplayName,
			Role:        domain.Role(dto.Participant.Role),
			AvatarURL:   dto.Participant.AvatarURL,
		},
		LastMessage: dto.LastMessage,
		UnreadCount: dto.UnreadCount,
		UpdatedAt:   dto.UpdatedAt,
	}
}

func toMessage(dto messageDTO) domain.Message {
	return domain.Message{
		ID:           dto.ID,
		Conversation: domain.ConversationID(dto.ConversationID),
		AuthorID:     dto.AuthorID,
		Body:         dto.Body,
		CreatedAt:    dto.CreatedAt,
		ReadAt:       dto.ReadAt,
		State:        domain.StateDelivered,
	}
}

func toCredentials(dto credentialsDTO) contract.Credentials {
	return contract.Credentials{
		AccessToken:  dto.AccessToken,
		RefreshToken: dto.RefreshToken,
		UserID:       dto.UserID,
	}
}
