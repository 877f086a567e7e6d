package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"suna-chat/internal/ai"
)

var (
	ErrMessageEmpty = errors.New("message content is empty")
	ErrLLMConfig    = errors.New("llm is not configured")
)

const emptyAnswer = "The model returned an empty response."

// LLMClient is the chat backend behind the proxy; ai.DifyClient implements it.
type LLMClient interface {
	Configured() bool
	Complete(ctx context.Context, in ai.ChatRequest) (ai.ChatReply, error)
	StreamComplete(ctx context.Context, in ai.ChatRequest, onChunk func(string) error) (ai.ChatReply, error)
}

// ChatService proxies questions to the LLM so devices never hold the API key.
type ChatService struct {
	llm LLMClient
}

type AskInput struct {
	UserID         uint
	Message        string
	ConversationID string
}

func NewChatService(llm LLMClient) *ChatService {
	return &ChatService{llm: llm}
}

func (s *ChatService) Ask(ctx context.Context, input AskInput) (ai.ChatReply, error) {
	req, err := s.request(input)
	if err != nil {
		return ai.ChatReply{}, err
	}
	reply, err := s.llm.Complete(ctx, req)
	if err != nil {
		return ai.ChatReply{}, fmt.Errorf("ask llm failed: %w", err)
	}
	return finish(reply, input), nil
}

func (s *ChatService) StreamAsk(ctx context.Context, input AskInput, onChunk func(string) error) (ai.ChatReply, error) {
	req, err := s.request(input)
	if err != nil {
		return ai.ChatReply{}, err
	}
	reply, err := s.llm.StreamComplete(ctx, req, onChunk)
	if err != nil {
		return ai.ChatReply{}, fmt.Errorf("stream llm failed: %w", err)
	}
	return finish(reply, input), nil
}

func (s *ChatService) request(input AskInput) (ai.ChatRequest, error) {
	message := strings.TrimSpace(input.Message)
	if message == "" {
		return ai.ChatRequest{}, ErrMessageEmpty
	}
	if s.llm == nil || !s.llm.Configured() {
		return ai.ChatRequest{}, ErrLLMConfig
	}
	user := "guest"
	if input.UserID != 0 {
		user = fmt.Sprintf("user-%d", input.UserID)
	}
	return ai.ChatRequest{
		Query:          message,
		ConversationID: strings.TrimSpace(input.ConversationID),
		User:           user,
	}, nil
}

func finish(reply ai.ChatReply, input AskInput) ai.ChatReply {
	reply.Answer = strings.TrimSpace(reply.Answer)
	if reply.Answer == "" {
		reply.Answer = emptyAnswer
	}
	if reply.ConversationID == "" {
		reply.ConversationID = input.ConversationID
	}
	return reply
}
