// Package config loads symphony configuration from YAML with environment
// overrides. Defaults are always applied first, so a missing config file is
// not an error.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all symphony configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// HTTP API
	Server ServerConfig `yaml:"server"`

	// LLM providers
	LLM LLMConfig `yaml:"llm"`

	// Pipeline tuning
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Run store
	Store StoreConfig `yaml:"store"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// FreeEndpointConfig configures the keyless OpenAI-compatible fallback.
type FreeEndpointConfig struct {
	URL   string `yaml:"url"`
	Model string `yaml:"model"`
}

// LLMConfig configures the provider chain.
type LLMConfig struct {
	DefaultModel     string             `yaml:"default_model"`
	GeminiAPIKey     string             `yaml:"gemini_api_key"`
	HuggingFaceToken string             `yaml:"huggingface_token"`
	HFModels         []string           `yaml:"hf_models"`
	FreeEndpoint     FreeEndpointConfig `yaml:"free_endpoint"`
	RequestTimeout   string             `yaml:"request_timeout"`
	MaxRetries       int                `yaml:"max_retries"`
	CacheEnabled     bool               `yaml:"cache_enabled"`
	CacheSize        int                `yaml:"cache_size"`
	MinIntervalMS    int                `yaml:"min_interval_ms"`
}

// PipelineConfig configures the four-phase pipeline.
type PipelineConfig struct {
	MaxIterations      int    `yaml:"max_iterations"`       // refinement loop budget
	PhaseTimeout       string `yaml:"phase_timeout"`        // per-phase deadline
	MaxConcurrentCalls int    `yaml:"max_concurrent_calls"` // scheduler slots
	OutputDir          string `yaml:"output_dir"`
}

// StoreConfig configures the SQLite run store.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig configures the category file loggers.
type LoggingConfig struct {
	Dir   string `yaml:"dir"`
	Debug bool   `yaml:"debug"`
	Level string `yaml:"level"` // debug, info, warn, error
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "symphony",
		Version: "1.0.0",

		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8000,
		},

		LLM: LLMConfig{
			DefaultModel: "gemini-pro",
			HFModels: []string{
				"mistralai/Mistral-7B-Instruct-v0.2",
				"google/flan-t5-xxl",
				"microsoft/DialoGPT-medium",
			},
			FreeEndpoint: FreeEndpointConfig{
				URL:   "https://api.together.xyz/v1/chat/completions",
				Model: "mistralai/Mixtral-8x7B-Instruct-v0.1",
			},
			RequestTimeout: "120s",
			MaxRetries:     3,
			CacheEnabled:   true,
			CacheSize:      256,
			MinIntervalMS:  100,
		},

		Pipeline: PipelineConfig{
			MaxIterations:      3,
			PhaseTimeout:       "300s",
			MaxConcurrentCalls: 5,
			OutputDir:          "generated_projects",
		},

		Store: StoreConfig{
			Path: "symphony.db",
		},

		Logging: LoggingConfig{
			Dir:   filepath.Join(".symphony", "logs"),
			Debug: false,
			Level: "info",
		},
	}
}

// DefaultConfigPath returns the config path, honoring SYMPHONY_CONFIG.
func DefaultConfigPath() string {
	if p := os.Getenv("SYMPHONY_CONFIG"); p != "" {
		return p
	}
	return "symphony.yaml"
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
// Env beats file beats defaults.
func (c *Config) applyEnvOverrides() {
	// Gemini key: GOOGLE_API_KEY is accepted, GEMINI_API_KEY wins.
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		c.LLM.GeminiAPIKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.GeminiAPIKey = key
	}

	// Hugging Face token: HF_TOKEN is accepted, HUGGINGFACE_TOKEN wins.
	if tok := os.Getenv("HF_TOKEN"); tok != "" {
		c.LLM.HuggingFaceToken = tok
	}
	if tok := os.Getenv("HUGGINGFACE_TOKEN"); tok != "" {
		c.LLM.HuggingFaceToken = tok
	}

	if dir := os.Getenv("SYMPHONY_OUTPUT_DIR"); dir != "" {
		c.Pipeline.OutputDir = dir
	}
	if path := os.Getenv("SYMPHONY_DB"); path != "" {
		c.Store.Path = path
	}
	if port := os.Getenv("SYMPHONY_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
}

// GetRequestTimeout returns the per-call LLM timeout as a duration.
func (c *Config) GetRequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.RequestTimeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetPhaseTimeout returns the per-phase deadline as a duration.
func (c *Config) GetPhaseTimeout() time.Duration {
	d, err := time.ParseDuration(c.Pipeline.PhaseTimeout)
	if err != nil {
		return 300 * time.Second
	}
	return d
}

// GetMinInterval returns the minimum spacing between provider calls.
func (c *Config) GetMinInterval() time.Duration {
	if c.LLM.MinIntervalMS <= 0 {
		return 0
	}
	return time.Duration(c.LLM.MinIntervalMS) * time.Millisecond
}

// Validate validates the configuration. A missing API key is not an error:
// the provider chain degrades to the free endpoint and the echo stub.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Pipeline.MaxIterations < 1 {
		return fmt.Errorf("pipeline max_iterations must be >= 1, got %d", c.Pipeline.MaxIterations)
	}
	if c.Pipeline.MaxConcurrentCalls < 1 {
		return fmt.Errorf("pipeline max_concurrent_calls must be >= 1, got %d", c.Pipeline.MaxConcurrentCalls)
	}
	if c.Pipeline.OutputDir == "" {
		return fmt.Errorf("pipeline output_dir must not be empty")
	}
	if _, err := time.ParseDuration(c.LLM.RequestTimeout); err != nil {
		return fmt.Errorf("invalid llm request_timeout %q: %w", c.LLM.RequestTimeout, err)
	}
	if _, err := time.ParseDuration(c.Pipeline.PhaseTimeout); err != nil {
		return fmt.Errorf("invalid pipeline phase_timeout %q: %w", c.Pipeline.PhaseTimeout, err)
	}
	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("llm max_retries must be >= 0, got %d", c.LLM.MaxRetries)
	}
	if c.LLM.CacheEnabled && c.LLM.CacheSize < 1 {
		return fmt.Errorf("llm cache_size must be >= 1 when cache is enabled, got %d", c.LLM.CacheSize)
	}
	return nil
}

// HasGeminiKey reports whether a Gemini API key is configured.
func (c *Config) HasGeminiKey() bool { return c.LLM.GeminiAPIKey != "" }

// HasHuggingFaceToken reports whether a Hugging Face token is configured.
func (c *Config) HasHuggingFaceToken() bool { return c.LLM.HuggingFaceToken != "" }
