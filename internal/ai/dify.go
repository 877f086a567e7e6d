package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var ErrNotConfigured = errors.New("llm api key is not configured")

type ChatConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type ChatRequest struct {
	Query          string
	ConversationID string
	// User is the end-user identifier Dify scopes conversations by.
	User string
}

type ChatReply struct {
	Answer         string `json:"answer"`
	ConversationID string `json:"conversation_id"`
}

// DifyClient calls a Dify chat app's chat-messages endpoint.
type DifyClient struct {
	cfg        ChatConfig
	httpClient *http.Client
}

func NewDifyClient(cfg ChatConfig) *DifyClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	return &DifyClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *DifyClient) Configured() bool {
	return strings.TrimSpace(c.cfg.APIKey) != "" && strings.TrimSpace(c.cfg.BaseURL) != ""
}

func (c *DifyClient) Complete(ctx context.Context, in ChatRequest) (ChatReply, error) {
	resp, err := c.post(ctx, in, "blocking")
	if err != nil {
		return ChatReply{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return ChatReply{}, fmt.Errorf("read llm response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return ChatReply{}, fmt.Errorf("llm response status %d: %s", resp.StatusCode, string(raw))
	}

	var reply ChatReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return ChatReply{}, fmt.Errorf("parse llm json failed: %w", err)
	}
	return reply, nil
}

// StreamComplete consumes Dify's server-sent events, handing each answer chunk to onChunk.
func (c *DifyClient) StreamComplete(ctx context.Context, in ChatRequest, onChunk func(chunk string) error) (ChatReply, error) {
	resp, err := c.post(ctx, in, "streaming")
	if err != nil {
		return ChatReply{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return ChatReply{}, fmt.Errorf("llm stream status %d: %s", resp.StatusCode, string(raw))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

	var full strings.Builder
	reply := ChatReply{ConversationID: in.ConversationID}
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

		var chunk struct {
			Event          string `json:"event"`
			Answer         string `json:"answer"`
			ConversationID string `json:"conversation_id"`
			Message        string `json:"message"`
		}
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		if chunk.ConversationID != "" {
			reply.ConversationID = chunk.ConversationID
		}

		switch chunk.Event {
		case "message", "agent_message":
			if chunk.Answer == "" {
				continue
			}
			full.WriteString(chunk.Answer)
			if err := onChunk(chunk.Answer); err != nil {
				return ChatReply{}, err
			}
		case "error":
			return ChatReply{}, fmt.Errorf("llm stream error: %s", chunk.Message)
		case "message_end":
			reply.Answer = full.String()
			return reply, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return ChatReply{}, fmt.Errorf("scan llm stream failed: %w", err)
	}
	reply.Answer = full.String()
	return reply, nil
}

func (c *DifyClient) post(ctx context.Context, in ChatRequest, mode string) (*http.Response, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	user := in.User
	if user == "" {
		user = "anonymous"
	}
	reqBody := map[string]interface{}{
		"inputs":          map[string]interface{}{},
		"query":           in.Query,
		"response_mode":   mode,
		"conversation_id": in.ConversationID,
		"user":            user,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal llm request failed: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat-messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("build llm request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm request failed: %w", err)
	}
	return resp, nil
}
