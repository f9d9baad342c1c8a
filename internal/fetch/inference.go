// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/research-agent/pkg/types"
)

// InferenceClient calls an OpenAI-compatible chat completion endpoint.
// It implements types.InferenceService.
type InferenceClient struct {
	client     *http.Client
	endpoint   string
	model      string
	apiKey     string
	userAgent  string
	maxRetries int
	logger     *zap.Logger
}

// NewInferenceClient builds an InferenceClient from config.
func NewInferenceClient(cfg types.InferenceConfig, logger *zap.Logger) (*InferenceClient, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("inference endpoint not configured")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("inference model not configured")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &InferenceClient{
		client:     &http.Client{Timeout: timeout},
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		userAgent:  cfg.UserAgent,
		maxRetries: cfg.MaxRetries,
		logger:     logger,
	}, nil
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete sends the prompt, with optional grounding context, and
// returns the model's text answer.
func (c *InferenceClient) Complete(ctx context.Context, prompt, grounding string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", types.Errorf(types.ErrParsing, "empty prompt")
	}

	messages := []chatMessage{
		{Role: "system", Content: "You are a research assistant. Answer concisely from the provided context."},
	}
	if grounding != "" {
		messages = append(messages, chatMessage{Role: "user", Content: "Context:\n" + grounding})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	payload, err := json.Marshal(chatRequest{Model: c.model, Messages: messages})
	if err != nil {
		return "", types.NewError(types.ErrUnknown, fmt.Errorf("encoding inference request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", types.NewError(types.ErrUnknown, fmt.Errorf("creating inference request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := doWithRetry(ctx, c.client, req, c.maxRetries)
	if err != nil {
		return "", classifyTransport("inference", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus("inference", resp.StatusCode)
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", types.NewError(types.ErrParsing, fmt.Errorf("parsing inference response: %w", err))
	}
	if len(cr.Choices) == 0 {
		return "", types.Errorf(types.ErrParsing, "inference response carried no choices")
	}

	answer := strings.TrimSpace(cr.Choices[0].Message.Content)
	c.logger.Debug("inference complete",
		zap.String("model", c.model),
		zap.Int("answer_len", len(answer)))
	return answer, nil
}
