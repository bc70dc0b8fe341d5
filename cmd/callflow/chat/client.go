package chatcmder

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/papercomputeco/callflow/relay"
)

// caller posts text to a running relay the way the telephony front end does.
type caller struct {
	serverURL  string
	callID     string
	httpClient *http.Client
}

func newCaller(serverURL, callID string) *caller {
	return &caller{
		serverURL: strings.TrimRight(serverURL, "/"),
		callID:    callID,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

// say sends one utterance and returns the relay's reply.
func (c *caller) say(ctx context.Context, text string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+"/callflow", strings.NewReader(text))
	if err != nil {
		return "", fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if c.callID != "" {
		req.Header.Set(relay.CallIDHeader, c.callID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("could not read reply: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return string(body), nil
}
