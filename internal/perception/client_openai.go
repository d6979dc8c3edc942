package perception

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"symphony/internal/logging"
)

// OpenAICompatClient implements types.LLMClient against any
// OpenAI-compatible chat completions endpoint. The default configuration
// targets the together.xyz free tier, which accepts a placeholder key.
type OpenAICompatClient struct {
	apiKey      string
	endpoint    string
	model       string
	httpClient  *http.Client
	maxRetries  int
	minInterval time.Duration
	backoffBase time.Duration
	mu          sync.Mutex
	lastRequest time.Time
}

// OpenAICompatConfig holds OpenAI-compatible client configuration.
type OpenAICompatConfig struct {
	APIKey      string
	Endpoint    string
	Model       string
	Timeout     time.Duration
	MaxRetries  int
	MinInterval time.Duration
}

// DefaultOpenAICompatConfig returns defaults for the keyless free endpoint.
func DefaultOpenAICompatConfig() OpenAICompatConfig {
	return OpenAICompatConfig{
		APIKey:      "free-key",
		Endpoint:    "https://api.together.xyz/v1/chat/completions",
		Model:       "mistralai/Mixtral-8x7B-Instruct-v0.1",
		Timeout:     120 * time.Second,
		MaxRetries:  3,
		MinInterval: 100 * time.Millisecond,
	}
}

// NewOpenAICompatClient creates a client for the default free endpoint.
func NewOpenAICompatClient() *OpenAICompatClient {
	return NewOpenAICompatClientWithConfig(DefaultOpenAICompatConfig())
}

// NewOpenAICompatClientWithConfig creates a client with custom config.
func NewOpenAICompatClientWithConfig(config OpenAICompatConfig) *OpenAICompatClient {
	return &OpenAICompatClient{
		apiKey:      config.APIKey,
		endpoint:    config.Endpoint,
		model:       config.Model,
		maxRetries:  config.MaxRetries,
		minInterval: config.MinInterval,
		backoffBase: time.Second,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model     string          `json:"model"`
	Messages  []openAIMessage `json:"messages"`
	MaxTokens int             `json:"max_tokens"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Name returns the provider identifier.
func (c *OpenAICompatClient) Name() string { return "free_endpoint" }

// Model returns the configured model.
func (c *OpenAICompatClient) Model() string { return c.model }

// Complete sends a prompt and returns the completion.
func (c *OpenAICompatClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt with an optional system message.
func (c *OpenAICompatClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	// Auto-apply timeout if context has no deadline (centralized timeout handling)
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	startTime := time.Now()
	logging.APIDebug("[FreeEndpoint] CompleteWithSystem: model=%s system_len=%d user_len=%d", c.model, len(systemPrompt), len(userPrompt))

	// Rate limiting
	c.mu.Lock()
	elapsed := time.Since(c.lastRequest)
	if elapsed < c.minInterval {
		time.Sleep(c.minInterval - elapsed)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()

	var messages []openAIMessage
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, openAIMessage{Role: "user", Content: userPrompt})

	reqBody := openAIRequest{
		Model:     c.model,
		Messages:  messages,
		MaxTokens: 1000,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error

	for i := 0; i <= c.maxRetries; i++ {
		if i > 0 {
			time.Sleep(time.Duration(1<<uint(i-1)) * c.backoffBase)
		}

		req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewReader(jsonData))
		if err != nil {
			return "", fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if !isRetryableError(err) {
				return "", fmt.Errorf("request failed: %w", err)
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		if retryableStatus(resp.StatusCode) {
			lastErr = fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
			logging.APIWarn("[FreeEndpoint] transient status %d, attempt %d/%d", resp.StatusCode, i+1, c.maxRetries+1)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
		}

		var openaiResp openAIResponse
		if err := json.Unmarshal(body, &openaiResp); err != nil {
			return "", fmt.Errorf("failed to parse response: %w", err)
		}

		if openaiResp.Error != nil {
			return "", fmt.Errorf("API error: %s", openaiResp.Error.Message)
		}

		if len(openaiResp.Choices) == 0 {
			logging.APIError("[FreeEndpoint] CompleteWithSystem: no completion returned")
			return "", fmt.Errorf("no completion returned")
		}

		response := strings.TrimSpace(openaiResp.Choices[0].Message.Content)
		logging.API("[FreeEndpoint] CompleteWithSystem: completed in %v response_len=%d", time.Since(startTime), len(response))
		return response, nil
	}

	logging.APIError("[FreeEndpoint] CompleteWithSystem: max retries exceeded after %v: %v", time.Since(startTime), lastErr)
	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}
