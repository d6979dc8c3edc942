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

// HuggingFaceClient implements types.LLMClient for the Hugging Face
// Inference API. It walks a list of free hosted models in order and
// serves from the first one that answers.
type HuggingFaceClient struct {
	token       string
	baseURL     string
	models      []string
	httpClient  *http.Client
	maxRetries  int
	minInterval time.Duration
	backoffBase time.Duration

	mu          sync.Mutex
	lastRequest time.Time
	servedModel string
}

// HuggingFaceConfig holds Hugging Face client configuration.
type HuggingFaceConfig struct {
	Token       string
	BaseURL     string
	Models      []string
	Timeout     time.Duration
	MaxRetries  int
	MinInterval time.Duration
}

// DefaultHuggingFaceConfig returns defaults covering the free hosted models.
func DefaultHuggingFaceConfig(token string) HuggingFaceConfig {
	return HuggingFaceConfig{
		Token:   token,
		BaseURL: "https://api-inference.huggingface.co/models",
		Models: []string{
			"mistralai/Mistral-7B-Instruct-v0.2",
			"google/flan-t5-xxl",
			"microsoft/DialoGPT-medium",
		},
		Timeout:     120 * time.Second,
		MaxRetries:  3,
		MinInterval: 100 * time.Millisecond,
	}
}

// NewHuggingFaceClient creates a new Hugging Face client with defaults.
func NewHuggingFaceClient(token string) *HuggingFaceClient {
	return NewHuggingFaceClientWithConfig(DefaultHuggingFaceConfig(token))
}

// NewHuggingFaceClientWithConfig creates a new Hugging Face client with custom config.
func NewHuggingFaceClientWithConfig(config HuggingFaceConfig) *HuggingFaceClient {
	return &HuggingFaceClient{
		token:       config.Token,
		baseURL:     config.BaseURL,
		models:      config.Models,
		maxRetries:  config.MaxRetries,
		minInterval: config.MinInterval,
		backoffBase: time.Second,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

type hfRequest struct {
	Inputs     string       `json:"inputs"`
	Parameters hfParameters `json:"parameters"`
}

type hfParameters struct {
	MaxNewTokens   int     `json:"max_new_tokens"`
	Temperature    float64 `json:"temperature"`
	ReturnFullText bool    `json:"return_full_text"`
}

type hfGeneration struct {
	GeneratedText string `json:"generated_text"`
}

type hfErrorBody struct {
	Error         string  `json:"error"`
	EstimatedTime float64 `json:"estimated_time"`
}

// Name returns the provider identifier.
func (c *HuggingFaceClient) Name() string { return "huggingface" }

// Model returns the model that served the most recent completion, or the
// first configured model before any request has succeeded.
func (c *HuggingFaceClient) Model() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.servedModel != "" {
		return c.servedModel
	}
	if len(c.models) > 0 {
		return c.models[0]
	}
	return ""
}

// Complete sends a prompt and returns the completion.
func (c *HuggingFaceClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt with a system preamble. The inference
// API takes a single text input, so the preamble is folded into the prompt.
func (c *HuggingFaceClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	// Auto-apply timeout if context has no deadline (centralized timeout handling)
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	startTime := time.Now()
	logging.APIDebug("[HuggingFace] CompleteWithSystem: models=%d system_len=%d user_len=%d", len(c.models), len(systemPrompt), len(userPrompt))

	if c.token == "" {
		logging.APIError("[HuggingFace] CompleteWithSystem: token not configured")
		return "", fmt.Errorf("API key not configured")
	}

	prompt := userPrompt
	if strings.TrimSpace(systemPrompt) != "" {
		prompt = systemPrompt + "\n\n" + userPrompt
	}

	var lastErr error
	for _, model := range c.models {
		response, err := c.generateWithModel(ctx, model, prompt)
		if err == nil {
			c.mu.Lock()
			c.servedModel = model
			c.mu.Unlock()
			logging.API("[HuggingFace] CompleteWithSystem: model=%s completed in %v response_len=%d", model, time.Since(startTime), len(response))
			return response, nil
		}
		lastErr = err
		logging.APIWarn("[HuggingFace] model %s failed: %v", model, err)
		if ctx.Err() != nil {
			return "", fmt.Errorf("request cancelled: %w", ctx.Err())
		}
	}

	logging.APIError("[HuggingFace] CompleteWithSystem: all models failed after %v: %v", time.Since(startTime), lastErr)
	return "", fmt.Errorf("no Hugging Face models available: %w", lastErr)
}

// generateWithModel performs the request cycle against a single hosted model.
func (c *HuggingFaceClient) generateWithModel(ctx context.Context, model, prompt string) (string, error) {
	reqBody := hfRequest{
		Inputs: prompt,
		Parameters: hfParameters{
			MaxNewTokens:   1000,
			Temperature:    0.7,
			ReturnFullText: false,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s", c.baseURL, model)

	var lastErr error

	for i := 0; i <= c.maxRetries; i++ {
		if i > 0 {
			time.Sleep(time.Duration(1<<uint(i-1)) * c.backoffBase)
		}

		// Rate limiting
		c.mu.Lock()
		elapsed := time.Since(c.lastRequest)
		if elapsed < c.minInterval {
			time.Sleep(c.minInterval - elapsed)
		}
		c.lastRequest = time.Now()
		c.mu.Unlock()

		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
		if err != nil {
			return "", fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.token)

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

		// A 503 here means the model is cold and loading, which can take
		// minutes. Hand control back so the caller can try the next model.
		if resp.StatusCode == http.StatusServiceUnavailable {
			var errBody hfErrorBody
			if json.Unmarshal(body, &errBody) == nil && errBody.Error != "" {
				return "", fmt.Errorf("model loading (estimated %.0fs): %s", errBody.EstimatedTime, errBody.Error)
			}
			return "", fmt.Errorf("model unavailable (503)")
		}

		if retryableStatus(resp.StatusCode) {
			lastErr = fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
			continue
		}

		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
		}

		text, err := parseHFBody(body)
		if err != nil {
			return "", err
		}
		return text, nil
	}

	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

// parseHFBody handles both response shapes the inference API produces:
// a list of generations for text-generation models and a bare object for
// conversational ones.
func parseHFBody(body []byte) (string, error) {
	var list []hfGeneration
	if err := json.Unmarshal(body, &list); err == nil && len(list) > 0 {
		text := strings.TrimSpace(list[0].GeneratedText)
		if text == "" {
			return "", fmt.Errorf("no completion returned")
		}
		return text, nil
	}

	var single hfGeneration
	if err := json.Unmarshal(body, &single); err == nil && single.GeneratedText != "" {
		return strings.TrimSpace(single.GeneratedText), nil
	}

	var errBody hfErrorBody
	if err := json.Unmarshal(body, &errBody); err == nil && errBody.Error != "" {
		return "", fmt.Errorf("API error: %s", errBody.Error)
	}

	return "", fmt.Errorf("failed to parse response: %s", truncatePrompt(string(body), 200))
}
