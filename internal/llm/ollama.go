package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Message represents a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client is the interface the agent uses to talk to a language model.
type Client interface {
	// Complete sends a system prompt and a user prompt and returns the
	// assistant's response text.
	Complete(ctx context.Context, system, user string) (string, error)
	// Chat sends a full conversation and returns the assistant's response.
	Chat(ctx context.Context, messages []Message) (string, error)
}

// OllamaChat calls the Ollama /api/chat endpoint for generative responses.
type OllamaChat struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaChat creates a chat client targeting the given Ollama instance and model.
func NewOllamaChat(baseURL, model string) *OllamaChat {
	return &OllamaChat{
		baseURL: baseURL,
		model:   model,
		client: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

// Model returns the configured model name.
func (c *OllamaChat) Model() string { return c.model }

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Model   string  `json:"model"`
	Message Message `json:"message"`
	Done    bool    `json:"done"`
	Error   string  `json:"error,omitempty"`
}

// Complete sends a system prompt and user prompt as a two-message conversation.
func (c *OllamaChat) Complete(ctx context.Context, system, user string) (string, error) {
	msgs := make([]Message, 0, 2)
	if system != "" {
		msgs = append(msgs, Message{Role: "system", Content: system})
	}
	msgs = append(msgs, Message{Role: "user", Content: user})
	return c.Chat(ctx, msgs)
}

// Chat sends a conversation to Ollama and returns the assistant's response.
// Transient failures (network errors, 5xx) are retried with exponential
// backoff, at most three attempts total.
func (c *OllamaChat) Chat(ctx context.Context, messages []Message) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   false,
		Options: map[string]any{
			"temperature": 0.2,
			"top_p":       0.9,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	var content string
	op := func() error {
		var opErr error
		content, opErr = c.chat(ctx, body)
		return opErr
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return "", err
	}
	return content, nil
}

func (c *OllamaChat) chat(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("new chat request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		err := fmt.Errorf("ollama chat returned %d: %s", resp.StatusCode, string(respBody))
		if resp.StatusCode >= 500 {
			return "", err
		}
		return "", backoff.Permanent(err)
	}

	// Ollama may emit newline-delimited JSON chunks even with stream=false;
	// accumulate content across chunks.
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	var content string
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk chatResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return "", backoff.Permanent(fmt.Errorf("decode chat response: %w", err))
		}
		if chunk.Error != "" {
			return "", backoff.Permanent(fmt.Errorf("ollama error: %s", chunk.Error))
		}
		content += chunk.Message.Content
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}
	return content, nil
}
