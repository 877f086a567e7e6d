package remotestore

import (
	"context"
	"net/http"
)

type AccountUser struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Account struct {
	Token string      `json:"token"`
	User  AccountUser `json:"user"`
}

type ChatAnswer struct {
	Answer         string `json:"answer"`
	ConversationID string `json:"conversation_id"`
}

func (c *HTTPClient) Register(ctx context.Context, name, email, password string) (Account, error) {
	var account Account
	err := c.do(ctx, "register", http.MethodPost, "/api/v1/auth/register", map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	}, &account)
	return account, err
}

func (c *HTTPClient) Login(ctx context.Context, email, password string) (Account, error) {
	var account Account
	err := c.do(ctx, "login", http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &account)
	return account, err
}

func (c *HTTPClient) Me(ctx context.Context) (AccountUser, error) {
	var user AccountUser
	err := c.do(ctx, "me", http.MethodGet, "/api/v1/auth/me", nil, &user)
	return user, err
}

// Chat asks the server's LLM proxy for an answer.
func (c *HTTPClient) Chat(ctx context.Context, message, conversationID string) (ChatAnswer, error) {
	var answer ChatAnswer
	err := c.do(ctx, "chat", http.MethodPost, "/api/v1/chat", map[string]string{
		"message":         message,
		"conversation_id": conversationID,
	}, &answer)
	return answer, err
}
