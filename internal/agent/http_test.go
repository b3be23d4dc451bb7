package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"agentq/internal/config"
	logx "agentq/pkg/logx"
)

func TestHTTPExecute(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sekrit" {
			t.Errorf("Authorization = %q", got)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "test-model" || len(req.Messages) != 1 || req.Messages[0].Content != "the prompt" {
			t.Errorf("request = %+v", req)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "model says hi"}},
			},
		})
	}))
	defer srv.Close()

	h, err := NewHTTP(config.HTTPAgentConfig{
		Endpoint: srv.URL, Model: "test-model", APIKey: "sekrit",
	}, logx.Nop())
	if err != nil {
		t.Fatalf("NewHTTP: %v", err)
	}

	var chunks []string
	res, err := h.Execute(context.Background(), t.TempDir(), "the prompt", func(c string) {
		chunks = append(chunks, c)
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Success || res.Output != "model says hi" {
		t.Fatalf("res = %+v", res)
	}
	if len(chunks) != 1 || chunks[0] != "model says hi" {
		t.Fatalf("chunks = %v", chunks)
	}
}

func TestHTTPExecuteServerError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	h, err := NewHTTP(config.HTTPAgentConfig{Endpoint: srv.URL, Model: "m"}, logx.Nop())
	if err != nil {
		t.Fatalf("NewHTTP: %v", err)
	}

	res, err := h.Execute(context.Background(), t.TempDir(), "p", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure on 503")
	}
	if !strings.Contains(res.Error, "503") && !strings.Contains(res.Error, "overloaded") {
		t.Fatalf("error = %q", res.Error)
	}
}

func TestHTTPExecuteNoChoices(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	h, err := NewHTTP(config.HTTPAgentConfig{Endpoint: srv.URL, Model: "m"}, logx.Nop())
	if err != nil {
		t.Fatalf("NewHTTP: %v", err)
	}

	res, err := h.Execute(context.Background(), t.TempDir(), "p", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure for empty choices")
	}
}

func TestHTTPRequiresEndpoint(t *testing.T) {
	t.Parallel()
	if _, err := NewHTTP(config.HTTPAgentConfig{}, logx.Nop()); err == nil {
		t.Fatal("expected error for empty endpoint")
	}
}
