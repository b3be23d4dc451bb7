package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"agentq/internal/config"
	logx "agentq/pkg/logx"
)

// HTTP calls a chat-completions style model endpoint with the prompt as a
// single user message. One bounded request/response per execution; the
// response text is delivered both as the result output and as one stream
// chunk, so observers see it the same way they see exec output.
type HTTP struct {
	endpoint string
	model    string
	apiKey   string
	client   *http.Client
	log      logx.Logger
}

func NewHTTP(cfg config.HTTPAgentConfig, log logx.Logger) (*HTTP, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("agent: http endpoint is required")
	}
	return &HTTP{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		// Transport-level ceiling only; the scheduler bounds the whole call.
		client: &http.Client{Timeout: 30 * time.Minute},
		log:    log,
	}, nil
}

func (h *HTTP) Kind() string { return "http" }

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
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (h *HTTP) Execute(ctx context.Context, workspacePath, prompt string, onStream StreamFunc) (Result, error) {
	body, err := json.Marshal(chatRequest{
		Model:    h.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}
	req.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Result{Success: false,
				Error: fmt.Sprintf("agent timed out or was cancelled: %v", ctx.Err())}, nil
		}
		return Result{Success: false, Error: err.Error()}, nil
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{Success: false,
			Error: fmt.Sprintf("model endpoint returned %d: %s", resp.StatusCode, truncate(string(raw), 500))}, nil
	}

	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return Result{Success: false, Error: fmt.Sprintf("malformed model response: %v", err)}, nil
	}
	if cr.Error != nil {
		return Result{Success: false, Error: cr.Error.Message}, nil
	}
	if len(cr.Choices) == 0 {
		return Result{Success: false, Error: "model response contained no choices"}, nil
	}

	output := cr.Choices[0].Message.Content
	if onStream != nil && output != "" {
		onStream(output)
	}
	return Result{Success: true, Output: output}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
