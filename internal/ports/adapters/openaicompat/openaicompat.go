// Package openaicompat talks to any OpenAI-compatible chat completions API
// (DeepSeek, OpenAI, OpenRouter).
package openaicompat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const requestTimeout = 90 * time.Second

type Options struct {
	APIKey      string
	Model       string
	Provider    string
	BaseURL     string
	Temperature float64
	MaxTokens   int
	HTTPClient  *http.Client
}

type Adapter struct {
	key         string
	model       string
	temperature float32
	maxTokens   int
	client      *openai.Client
}

func New(opts Options) *Adapter {
	cfg := openai.DefaultConfig(opts.APIKey)
	if base := normalizeBaseURL(opts.BaseURL, opts.Provider); base != "" {
		cfg.BaseURL = base
	}
	cfg.HTTPClient = opts.HTTPClient
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 5 * time.Minute}
	}
	model := opts.Model
	if model == "" {
		model = "deepseek-chat"
	}
	return &Adapter{
		key:         opts.APIKey,
		model:       model,
		temperature: float32(opts.Temperature),
		maxTokens:   opts.MaxTokens,
		client:      openai.NewClientWithConfig(cfg),
	}
}

func (a *Adapter) Complete(ctx context.Context, prompt string, jsonMode bool) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: a.temperature,
		MaxTokens:   a.maxTokens,
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := a.client.CreateChatCompletion(reqCtx, req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("llm timeout after %s (model=%s)", requestTimeout, a.model)
		}
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("llm status %d: %s", apiErr.HTTPStatusCode, truncate(redactSecrets(apiErr.Message, a.key), 400))
		}
		return "", fmt.Errorf("llm request: %s", truncate(redactSecrets(err.Error(), a.key), 400))
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("llm: empty choices")
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", errors.New("llm: empty content")
	}
	return content, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var (
	bearerTokenRE = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._-]+\b`)
	authHeaderRE  = regexp.MustCompile(`(?i)(authorization\s*[:=]\s*)([^\n\r,;]+)`)
	apiKeyFieldRE = regexp.MustCompile(`(?i)(api[_-]?key\s*[:=]\s*)([^\n\r,;]+)`)
)

func redactSecrets(s, apiKey string) string {
	if s == "" {
		return s
	}
	out := s
	if apiKey != "" {
		out = strings.ReplaceAll(out, apiKey, "[REDACTED]")
	}
	out = bearerTokenRE.ReplaceAllString(out, "Bearer [REDACTED]")
	out = authHeaderRE.ReplaceAllString(out, "${1}[REDACTED]")
	out = apiKeyFieldRE.ReplaceAllString(out, "${1}[REDACTED]")
	return out
}
