// Package openai implements llm.Completer with the OpenAI chat completions API.
package openai

import (
	"context"
	"fmt"
	"math"

	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/papercomputeco/callflow/pkg/llm"
)

// DefaultModel is used when no model is configured.
const DefaultModel = goopenai.GPT4oMini

// Config configures the OpenAI completer.
type Config struct {
	APIKey string

	// BaseURL overrides the API endpoint (e.g., an OpenAI-compatible gateway).
	BaseURL string

	Model       string
	Temperature float32
}

// Completer calls the chat completions endpoint.
type Completer struct {
	client *goopenai.Client
	config Config
	logger *zap.Logger
}

// New creates a new Completer.
func New(config Config, logger *zap.Logger) (*Completer, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}

	clientConfig := goopenai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &Completer{
		client: goopenai.NewClientWithConfig(clientConfig),
		config: config,
		logger: logger,
	}, nil
}

// Complete implements llm.Completer.
func (c *Completer) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	req := goopenai.ChatCompletionRequest{
		Model:       c.config.Model,
		Messages:    make([]goopenai.ChatCompletionMessage, len(messages)),
		Temperature: c.config.Temperature,
	}
	// A zero temperature is dropped by omitempty and the API falls back to 1.
	if req.Temperature == 0 {
		req.Temperature = math.SmallestNonzeroFloat32
	}
	for i, m := range messages {
		req.Messages[i] = goopenai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		}
	}

	c.logger.Debug("requesting chat completion",
		zap.String("model", req.Model),
		zap.Int("message_count", len(messages)),
	)

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices returned")
	}

	c.logger.Debug("received chat completion",
		zap.String("id", resp.ID),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)

	return resp.Choices[0].Message.Content, nil
}
