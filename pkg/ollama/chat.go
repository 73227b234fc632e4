package ollama

import (
	"context"
	"fmt"
	"time"
)

// ChatClient sends single-turn, non-streaming requests to /api/chat.
type ChatClient struct {
	base
	temperature float64
}

// NewChatClient creates an Ollama chat client.
func NewChatClient(baseURL, model string, temperature float64, timeout time.Duration) *ChatClient {
	return &ChatClient{base: newBase(baseURL, model, timeout), temperature: temperature}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatReq struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResp struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

// Complete sends prompt as one user message and returns the reply text.
func (c *ChatClient) Complete(ctx context.Context, prompt string) (string, error) {
	req := chatReq{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
		Options:  map[string]any{"temperature": c.temperature},
	}
	var resp chatResp
	if err := c.post(ctx, "/api/chat", req, &resp); err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	return resp.Message.Content, nil
}
