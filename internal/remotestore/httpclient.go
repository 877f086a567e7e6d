package remotestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"suna-chat/internal/chat"
)

// HTTPClient talks to the server's REST API on behalf of a device.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	token      func() string
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// NewHTTPClient builds a client for baseURL. token is consulted on every request.
func NewHTTPClient(baseURL string, token func() string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if token == nil {
		token = func() string { return "" }
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		token:      token,
	}
}

func (c *HTTPClient) ListSessions(ctx context.Context, userID uint) ([]chat.Session, error) {
	if userID == 0 {
		return nil, ErrUnauthorized
	}
	var sessions []chat.Session
	if err := c.do(ctx, "list sessions", http.MethodGet, "/api/v1/sessions", nil, &sessions); err != nil {
		return nil, err
	}
	for i := range sessions {
		sessions[i].Messages = []chat.Message{}
	}
	return sessions, nil
}

func (c *HTTPClient) GetSession(ctx context.Context, sessionID string, userID uint) (chat.Session, error) {
	if userID == 0 {
		return chat.Session{}, ErrUnauthorized
	}
	var session chat.Session
	if err := c.do(ctx, "get session", http.MethodGet, sessionPath(sessionID), nil, &session); err != nil {
		return chat.Session{}, err
	}
	if session.Messages == nil {
		session.Messages = []chat.Message{}
	}
	return session, nil
}

func (c *HTTPClient) GetMessages(ctx context.Context, sessionID string) ([]chat.Message, error) {
	var messages []chat.Message
	if err := c.do(ctx, "get messages", http.MethodGet, sessionPath(sessionID)+"/messages", nil, &messages); err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []chat.Message{}
	}
	return messages, nil
}

func (c *HTTPClient) UpsertSession(ctx context.Context, session chat.Session, userID uint) error {
	if userID == 0 {
		return ErrUnauthorized
	}
	return c.do(ctx, "upsert session", http.MethodPut, sessionPath(session.ID), session.Meta(), nil)
}

func (c *HTTPClient) AppendMessage(ctx context.Context, message chat.Message, sessionID string, userID uint) error {
	if userID == 0 {
		return ErrUnauthorized
	}
	return c.do(ctx, "append message", http.MethodPost, sessionPath(sessionID)+"/messages", message, nil)
}

func (c *HTTPClient) SetFavorite(ctx context.Context, sessionID string, message chat.Message, userID uint) error {
	if userID == 0 {
		return ErrUnauthorized
	}
	return c.do(ctx, "set favorite", http.MethodPatch, sessionPath(sessionID)+"/messages/favorite", message, nil)
}

func (c *HTTPClient) DeleteSession(ctx context.Context, sessionID string, userID uint) error {
	if userID == 0 {
		return ErrUnauthorized
	}
	return c.do(ctx, "delete session", http.MethodDelete, sessionPath(sessionID), nil, nil)
}

func (c *HTTPClient) DeleteMessages(ctx context.Context, sessionID string, userID uint) error {
	if userID == 0 {
		return ErrUnauthorized
	}
	return c.do(ctx, "delete messages", http.MethodDelete, sessionPath(sessionID)+"/messages", nil, nil)
}

func sessionPath(sessionID string) string {
	return "/api/v1/sessions/" + url.PathEscape(sessionID)
}

func (c *HTTPClient) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s request failed: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s request failed: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return storeErr(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return storeErr(op, fmt.Errorf("read response: %w", err))
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	}

	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < 300 {
			return storeErr(op, fmt.Errorf("decode response: %w", err))
		}
	}
	if resp.StatusCode >= 300 {
		msg := env.Message
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return &StoreError{Op: op, Status: resp.StatusCode, Err: errors.New(msg)}
	}
	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return storeErr(op, fmt.Errorf("decode data: %w", err))
		}
	}
	return nil
}
