package perception

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"symphony/internal/config"
	"symphony/internal/logging"
	"symphony/internal/types"
)

// ErrNoProviders is returned by an empty chain. NewChainFromConfig never
// builds one because the echo stub is always appended.
var ErrNoProviders = errors.New("no providers configured")

// FallbackClient walks an ordered list of clients and serves from the
// first that answers. Any failure, including an invalid key, advances the
// chain; the chain only fails when every client fails, which cannot happen
// while the echo stub sits at the end.
type FallbackClient struct {
	clients []types.LLMClient

	mu     sync.RWMutex
	served types.LLMClient
}

// NewFallbackClient creates a chain over the given clients, tried in order.
func NewFallbackClient(clients ...types.LLMClient) *FallbackClient {
	return &FallbackClient{clients: clients}
}

// Name returns the provider that served the most recent completion, or
// the first client's name before any call has completed.
func (f *FallbackClient) Name() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.served != nil {
		return f.served.Name()
	}
	if len(f.clients) > 0 {
		return f.clients[0].Name()
	}
	return "chain"
}

// Model returns the model that served the most recent completion.
func (f *FallbackClient) Model() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.served != nil {
		return f.served.Model()
	}
	if len(f.clients) > 0 {
		return f.clients[0].Model()
	}
	return ""
}

// Complete sends a prompt through the chain.
func (f *FallbackClient) Complete(ctx context.Context, prompt string) (string, error) {
	return f.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt through the chain.
func (f *FallbackClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if len(f.clients) == 0 {
		return "", ErrNoProviders
	}

	var lastErr error
	for _, client := range f.clients {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("request cancelled: %w", err)
		}

		response, err := client.CompleteWithSystem(ctx, systemPrompt, userPrompt)
		if err == nil {
			f.mu.Lock()
			f.served = client
			f.mu.Unlock()
			return response, nil
		}

		lastErr = err
		logging.APIWarn("[Chain] %s failed, falling back: %v", client.Name(), err)
	}

	return "", fmt.Errorf("all providers failed: %w", lastErr)
}

// NewChainFromConfig assembles the provider chain from application config:
// Gemini when a key is present and the default model asks for it, then
// Hugging Face when a token is present, then the keyless free endpoint,
// then the echo stub. Wraps the chain in an LRU cache when enabled.
func NewChainFromConfig(cfg *config.Config) types.LLMClient {
	timeout := cfg.GetRequestTimeout()
	minInterval := cfg.GetMinInterval()

	var clients []types.LLMClient

	if cfg.LLM.DefaultModel == "gemini-pro" && cfg.LLM.GeminiAPIKey != "" {
		gc := DefaultGeminiConfig(cfg.LLM.GeminiAPIKey)
		gc.Timeout = timeout
		gc.MaxRetries = cfg.LLM.MaxRetries
		gc.MinInterval = minInterval
		clients = append(clients, NewGeminiClientWithConfig(gc))
		logging.API("[Chain] Gemini configured (model=%s)", gc.Model)
	} else {
		logging.APIWarn("[Chain] Gemini not configured")
	}

	if cfg.LLM.HuggingFaceToken != "" {
		hc := DefaultHuggingFaceConfig(cfg.LLM.HuggingFaceToken)
		if len(cfg.LLM.HFModels) > 0 {
			hc.Models = cfg.LLM.HFModels
		}
		hc.Timeout = timeout
		hc.MaxRetries = cfg.LLM.MaxRetries
		hc.MinInterval = minInterval
		clients = append(clients, NewHuggingFaceClientWithConfig(hc))
		logging.API("[Chain] Hugging Face configured (%d models)", len(hc.Models))
	} else {
		logging.APIWarn("[Chain] Hugging Face not configured")
	}

	oc := DefaultOpenAICompatConfig()
	if cfg.LLM.FreeEndpoint.URL != "" {
		oc.Endpoint = cfg.LLM.FreeEndpoint.URL
	}
	if cfg.LLM.FreeEndpoint.Model != "" {
		oc.Model = cfg.LLM.FreeEndpoint.Model
	}
	oc.Timeout = timeout
	oc.MaxRetries = cfg.LLM.MaxRetries
	oc.MinInterval = minInterval
	clients = append(clients, NewOpenAICompatClientWithConfig(oc))

	clients = append(clients, NewEchoClient())

	chain := NewFallbackClient(clients...)

	if cfg.LLM.CacheEnabled {
		cached, err := NewCachingClient(chain, cfg.LLM.CacheSize)
		if err == nil {
			return cached
		}
		logging.APIWarn("[Chain] response cache disabled: %v", err)
	}
	return chain
}
