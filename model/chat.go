package model

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const DefaultChatModel = "gpt-4.1-mini"

// Completer runs one chat completion. Both call sites (query rewrite and
// answer synthesis) use temperature 0.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

type OpenAIChat struct {
	client *Client
	model  string
}

func NewOpenAIChat(client *Client, chatModel string) *OpenAIChat {
	if chatModel == "" {
		chatModel = DefaultChatModel
	}
	return &OpenAIChat{client: client, model: chatModel}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *OpenAIChat) Complete(ctx context.Context, system, user string) (string, error) {
	var messages []chatMessage
	if system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: user})

	body, err := c.client.PostJSON(ctx, "/chat/completions", chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: 0,
	})
	if err != nil {
		return "", err
	}

	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to unmarshal completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
