// Package ollama implements llm.Completer against an Ollama-compatible
// /api/chat endpoint.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/callflow/pkg/llm"
)

// Config configures the Ollama completer.
type Config struct {
	// BaseURL of the Ollama server (e.g., "http://localhost:11434")
	BaseURL string

	// Model name (e.g., "llama3.2")
	Model string

	// Temperature is passed through when non-nil.
	Temperature *float64
}

// Completer sends non-streaming chat requests to Ollama.
type Completer struct {
	config     Config
	logger     *zap.Logger
	httpClient *http.Client
}

// New creates a new Completer.
func New(config Config, logger *zap.Logger) (*Completer, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("ollama base URL is required")
	}
	if config.Model == "" {
		return nil, fmt.Errorf("ollama model is required")
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &Completer{
		config: config,
		logger: logger,
		httpClient: &http.Client{
			// Local models can be slow to load on first use
			Timeout: 5 * time.Minute,
		},
	}, nil
}

// Complete implements llm.Completer.
func (c *Completer) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	streaming := false
	req := chatRequest{
		Model:    c.config.Model,
		Messages: messages,
		Stream:   &streaming,
	}
	if c.config.Temperature != nil {
		req.Options = &options{Temperature: c.config.Temperature}
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	upstreamURL := c.config.BaseURL + "/api/chat"
	c.logger.Debug("forwarding request to ollama",
		zap.String("url", upstreamURL),
		zap.Int("message_count", len(messages)),
		zap.Int("body_size", len(reqBody)),
	)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, upstreamURL, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama returned %d: %s", httpResp.StatusCode, string(body))
	}

	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}

	c.logger.Debug("received response from ollama",
		zap.String("model", resp.Model),
		zap.Int("prompt_eval_count", resp.PromptEvalCount),
		zap.Int("eval_count", resp.EvalCount),
	)

	return resp.Message.Content, nil
}
