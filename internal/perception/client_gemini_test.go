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

func newTestGeminiClient(serverURL string) *GeminiClient {
	client := NewGeminiClient("test-key")
	client.baseURL = serverURL
	client.minInterval = 0
	client.backoffBase = time.Millisecond
	return client
}

func TestGeminiClient_Complete_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/models/gemini-pro:generateContent" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Error("Expected key query parameter")
		}

		var body geminiRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}
		gc := body.GenerationConfig
		if gc.Temperature != 0.7 || gc.TopP != 0.8 || gc.TopK != 40 || gc.MaxOutputTokens != 2048 {
			t.Errorf("Unexpected generation config: %+v", gc)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"candidates": [
				{"content": {"parts": [{"text": "Hello, "}, {"text": "world!"}]}}
			]
		}`))
	}))
	defer server.Close()

	client := newTestGeminiClient(server.URL)

	resp, err := client.Complete(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp != "Hello, world!" {
		t.Errorf("Expected concatenated parts, got %q", resp)
	}
}

func TestGeminiClient_CompleteWithSystem_FoldsSystemPrompt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body geminiRequest
		json.NewDecoder(r.Body).Decode(&body)
		if len(body.Contents) != 1 || len(body.Contents[0].Parts) != 1 {
			t.Fatalf("Expected single content with single part, got %+v", body.Contents)
		}
		text := body.Contents[0].Parts[0].Text
		if !strings.HasPrefix(text, "You are a planner.\n\n") {
			t.Errorf("System prompt not folded into user turn: %q", text)
		}

		w.Write([]byte(`{"candidates": [{"content": {"parts": [{"text": "ok"}]}}]}`))
	}))
	defer server.Close()

	client := newTestGeminiClient(server.URL)

	if _, err := client.CompleteWithSystem(context.Background(), "You are a planner.", "Plan this"); err != nil {
		t.Fatalf("CompleteWithSystem failed: %v", err)
	}
}

func TestGeminiClient_Complete_RetryOn429(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"candidates": [{"content": {"parts": [{"text": "recovered"}]}}]}`))
	}))
	defer server.Close()

	client := newTestGeminiClient(server.URL)

	resp, err := client.Complete(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp != "recovered" {
		t.Errorf("Expected 'recovered', got %q", resp)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestGeminiClient_Complete_AuthErrorNotRetried(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error": {"code": 403, "message": "API key invalid", "status": "PERMISSION_DENIED"}}`))
	}))
	defer server.Close()

	client := newTestGeminiClient(server.URL)

	_, err := client.Complete(context.Background(), "Hello")
	if err == nil {
		t.Fatal("Expected error for 403")
	}
	if !strings.Contains(err.Error(), "403") {
		t.Errorf("Expected status in error, got: %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected single attempt for auth failure, got %d", attempts)
	}
}

func TestGeminiClient_Complete_NoCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates": []}`))
	}))
	defer server.Close()

	client := newTestGeminiClient(server.URL)

	_, err := client.Complete(context.Background(), "Hello")
	if err == nil || !strings.Contains(err.Error(), "no completion returned") {
		t.Errorf("Expected no completion error, got: %v", err)
	}
}

func TestGeminiClient_Complete_ErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error": {"code": 400, "message": "invalid request", "status": "INVALID_ARGUMENT"}}`))
	}))
	defer server.Close()

	client := newTestGeminiClient(server.URL)

	_, err := client.Complete(context.Background(), "Hello")
	if err == nil || !strings.Contains(err.Error(), "invalid request") {
		t.Errorf("Expected API error message, got: %v", err)
	}
}

func TestGeminiClient_Complete_NoAPIKey(t *testing.T) {
	client := NewGeminiClient("")

	_, err := client.Complete(context.Background(), "Hello")
	if err == nil || !strings.Contains(err.Error(), "API key not configured") {
		t.Errorf("Expected missing key error, got: %v", err)
	}
}

func TestGeminiClient_ImplementsLLMClient(t *testing.T) {
	var _ types.LLMClient = (*GeminiClient)(nil)

	client := NewGeminiClient("key")
	if client.Name() != "gemini" {
		t.Errorf("Unexpected name: %s", client.Name())
	}
	if client.Model() != "gemini-pro" {
		t.Errorf("Unexpected model: %s", client.Model())
	}
	client.SetModel("gemini-1.5-flash")
	if client.Model() != "gemini-1.5-flash" {
		t.Errorf("SetModel did not take: %s", client.Model())
	}
}
