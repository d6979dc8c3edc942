package perception

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"symphony/internal/types"
)

func newTestHFClient(serverURL string, models ...string) *HuggingFaceClient {
	client := NewHuggingFaceClient("test-token")
	client.baseURL = serverURL
	client.models = models
	client.minInterval = 0
	client.backoffBase = time.Millisecond
	return client
}

func TestHuggingFaceClient_ListResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Error("Expected bearer token")
		}

		var body hfRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}
		p := body.Parameters
		if p.MaxNewTokens != 1000 || p.Temperature != 0.7 || p.ReturnFullText {
			t.Errorf("Unexpected parameters: %+v", p)
		}

		w.Write([]byte(`[{"generated_text": "list shaped"}]`))
	}))
	defer server.Close()

	client := newTestHFClient(server.URL, "m1")

	resp, err := client.Complete(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp != "list shaped" {
		t.Errorf("Expected 'list shaped', got %q", resp)
	}
	if client.Model() != "m1" {
		t.Errorf("Expected served model m1, got %s", client.Model())
	}
}

func TestHuggingFaceClient_ObjectResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"generated_text": "object shaped"}`))
	}))
	defer server.Close()

	client := newTestHFClient(server.URL, "m1")

	resp, err := client.Complete(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp != "object shaped" {
		t.Errorf("Expected 'object shaped', got %q", resp)
	}
}

func TestHuggingFaceClient_ModelLoadingFallsThrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "cold-model") {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error": "Model is currently loading", "estimated_time": 120.0}`))
			return
		}
		w.Write([]byte(`[{"generated_text": "warm answer"}]`))
	}))
	defer server.Close()

	client := newTestHFClient(server.URL, "cold-model", "warm-model")

	resp, err := client.Complete(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp != "warm answer" {
		t.Errorf("Expected fallthrough to warm model, got %q", resp)
	}
	if client.Model() != "warm-model" {
		t.Errorf("Expected served model warm-model, got %s", client.Model())
	}
}

func TestHuggingFaceClient_AllModelsFail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error": "Model is currently loading", "estimated_time": 60.0}`))
	}))
	defer server.Close()

	client := newTestHFClient(server.URL, "m1", "m2")

	_, err := client.Complete(context.Background(), "Hello")
	if err == nil || !strings.Contains(err.Error(), "no Hugging Face models available") {
		t.Errorf("Expected all-models-failed error, got: %v", err)
	}
}

func TestHuggingFaceClient_RetryOn429(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`[{"generated_text": "after retry"}]`))
	}))
	defer server.Close()

	client := newTestHFClient(server.URL, "m1")

	resp, err := client.Complete(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp != "after retry" {
		t.Errorf("Expected 'after retry', got %q", resp)
	}
	if attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", attempts)
	}
}

func TestHuggingFaceClient_NoToken(t *testing.T) {
	client := NewHuggingFaceClient("")

	_, err := client.Complete(context.Background(), "Hello")
	if err == nil || !strings.Contains(err.Error(), "API key not configured") {
		t.Errorf("Expected missing token error, got: %v", err)
	}
}

func TestHuggingFaceClient_ImplementsLLMClient(t *testing.T) {
	var _ types.LLMClient = (*HuggingFaceClient)(nil)

	client := NewHuggingFaceClient("token")
	if client.Name() != "huggingface" {
		t.Errorf("Unexpected name: %s", client.Name())
	}
	if client.Model() != "mistralai/Mistral-7B-Instruct-v0.2" {
		t.Errorf("Expected first configured model before any call, got %s", client.Model())
	}
}

func TestParseHFBody(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{"list", `[{"generated_text": "a"}]`, "a", false},
		{"object", `{"generated_text": "b"}`, "b", false},
		{"error body", `{"error": "boom"}`, "", true},
		{"empty list", `[]`, "", true},
		{"empty text", `[{"generated_text": ""}]`, "", true},
		{"garbage", `not json`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseHFBody([]byte(tt.body))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}
