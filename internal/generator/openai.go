// Package generator produces reply text with an OpenAI-compatible chat model.
package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrEmptyCompletion is returned when the model answers without text.
var ErrEmptyCompletion = errors.New("no text generated")

// Request is everything the model needs to write one reply.
type Request struct {
	Title       string
	Body        string
	Topic       string
	Prompt      string
	Context     string
	TargetWords int
	Tone        string
}

// Options configures the OpenAI client.
type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// OpenAI calls the chat completions endpoint.
type OpenAI struct {
	client      *resty.Client
	baseURL     string
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
}

// NewOpenAI creates a generator client.
func NewOpenAI(opts Options) *OpenAI {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.openai.com/v1"
	}
	if opts.Model == "" {
		opts.Model = "gpt-4o-mini"
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 150
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.7
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}

	client := resty.New()
	client.SetTimeout(opts.Timeout)
	client.SetRetryCount(2)
	client.SetRetryWaitTime(1 * time.Second)
	client.SetRetryMaxWaitTime(5 * time.Second)

	return &OpenAI{
		client:      client,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		apiKey:      opts.APIKey,
		model:       opts.Model,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Generate returns the reply text for req.
func (o *OpenAI) Generate(ctx context.Context, req Request) (string, error) {
	body := chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: SystemPrompt(req)},
			{Role: "user", Content: UserPrompt(req)},
		},
		MaxTokens:   o.maxTokens,
		Temperature: o.temperature,
	}

	resp, err := o.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetAuthToken(o.apiKey).
		SetBody(body).
		Post(o.baseURL + "/chat/completions")
	if err != nil {
		return "", fmt.Errorf("call chat completions: %w", err)
	}

	var out chatResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", fmt.Errorf("decode completion (status %d): %w", resp.StatusCode(), err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("chat completions error (status %d): %s", resp.StatusCode(), out.Error.Message)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("chat completions: unexpected status %d", resp.StatusCode())
	}
	if len(out.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}
