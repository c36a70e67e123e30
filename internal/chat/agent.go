package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Agent answers a user message given the conversation so far
type Agent interface {
	Ask(ctx context.Context, req AgentRequest) (string, error)
}

// AgentRequest is the payload sent to the external assistant
type AgentRequest struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id,omitempty"`
	Role      string    `json:"role,omitempty"`
	Message   string    `json:"message"`
	History   []Message `json:"history,omitempty"`
}

type agentResponse struct {
	Reply    string `json:"reply"`
	Response string `json:"response"`
}

// HTTPAgent calls the assistant over HTTP
type HTTPAgent struct {
	url    string
	key    string
	client *http.Client
}

// NewHTTPAgent creates an agent client; every call is bounded by timeout
func NewHTTPAgent(url, key string, timeout time.Duration) *HTTPAgent {
	if timeout <= 0 {
		timeout = 12 * time.Second
	}
	return &HTTPAgent{
		url:    strings.TrimRight(url, "/"),
		key:    key,
		client: &http.Client{Timeout: timeout},
	}
}

// Ask posts the message to the agent and returns its reply
func (a *HTTPAgent) Ask(ctx context.Context, req AgentRequest) (string, error) {
	if a.url == "" {
		return "", errors.New("chat agent url is not configured")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal agent request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "failed to build agent request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if a.key != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.key)
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return "", errors.Wrap(err, "agent request failed")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errors.Wrap(err, "failed to read agent response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("agent returned status %d", resp.StatusCode)
	}

	var out agentResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", errors.Wrap(err, "failed to decode agent response")
	}
	reply := out.Reply
	if reply == "" {
		reply = out.Response
	}
	if strings.TrimSpace(reply) == "" {
		return "", errors.New("agent returned an empty reply")
	}
	return reply, nil
}
