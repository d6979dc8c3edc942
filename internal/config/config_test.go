package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "symphony", cfg.Name)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:8000", cfg.Server.Addr())
	assert.Equal(t, "gemini-pro", cfg.LLM.DefaultModel)
	assert.Len(t, cfg.LLM.HFModels, 3)
	assert.Equal(t, "mistralai/Mistral-7B-Instruct-v0.2", cfg.LLM.HFModels[0])
	assert.Equal(t, 3, cfg.Pipeline.MaxIterations)
	assert.Equal(t, 5, cfg.Pipeline.MaxConcurrentCalls)
	assert.Equal(t, "generated_projects", cfg.Pipeline.OutputDir)
	assert.Equal(t, "symphony.db", cfg.Store.Path)

	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Pipeline.MaxIterations)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "symphony.yaml")
	content := `
server:
  port: 9100
llm:
  default_model: gemini-1.5-pro
  request_timeout: 45s
pipeline:
  max_iterations: 5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	// overridden
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "gemini-1.5-pro", cfg.LLM.DefaultModel)
	assert.Equal(t, 45*time.Second, cfg.GetRequestTimeout())
	assert.Equal(t, 5, cfg.Pipeline.MaxIterations)

	// untouched defaults survive
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "generated_projects", cfg.Pipeline.OutputDir)
}

func TestLoadBadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "symphony.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "symphony.yaml")

	cfg := DefaultConfig()
	cfg.Server.Port = 9999
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, loaded.Server.Port)
}

func TestTimeoutFallbacks(t *testing.T) {
	cfg := &Config{
		LLM:      LLMConfig{RequestTimeout: "garbage"},
		Pipeline: PipelineConfig{PhaseTimeout: ""},
	}
	assert.Equal(t, 120*time.Second, cfg.GetRequestTimeout())
	assert.Equal(t, 300*time.Second, cfg.GetPhaseTimeout())

	cfg.LLM.MinIntervalMS = 250
	assert.Equal(t, 250*time.Millisecond, cfg.GetMinInterval())
	cfg.LLM.MinIntervalMS = 0
	assert.Equal(t, time.Duration(0), cfg.GetMinInterval())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid defaults", func(c *Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "invalid server port"},
		{"zero iterations", func(c *Config) { c.Pipeline.MaxIterations = 0 }, "max_iterations"},
		{"zero concurrency", func(c *Config) { c.Pipeline.MaxConcurrentCalls = 0 }, "max_concurrent_calls"},
		{"empty output dir", func(c *Config) { c.Pipeline.OutputDir = "" }, "output_dir"},
		{"bad request timeout", func(c *Config) { c.LLM.RequestTimeout = "bogus" }, "request_timeout"},
		{"bad phase timeout", func(c *Config) { c.Pipeline.PhaseTimeout = "12parsecs" }, "phase_timeout"},
		{"negative retries", func(c *Config) { c.LLM.MaxRetries = -1 }, "max_retries"},
		{"cache enabled with zero size", func(c *Config) { c.LLM.CacheSize = 0 }, "cache_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestMissingKeysAreValid(t *testing.T) {
	// No API keys is a valid configuration: the chain degrades to the free
	// endpoint and the echo stub.
	cfg := DefaultConfig()
	cfg.LLM.GeminiAPIKey = ""
	cfg.LLM.HuggingFaceToken = ""
	assert.NoError(t, cfg.Validate())
	assert.False(t, cfg.HasGeminiKey())
	assert.False(t, cfg.HasHuggingFaceToken())
}

func TestWatcherReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "symphony.yaml")
	require.NoError(t, DefaultConfig().Save(path))

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, func(c *Config) {
		select {
		case reloaded <- c:
		default:
		}
	})
	require.NoError(t, err)
	require.NoError(t, w.Start(t.Context()))
	defer w.Stop()

	cfg := DefaultConfig()
	cfg.Pipeline.MaxConcurrentCalls = 2
	require.NoError(t, cfg.Save(path))

	select {
	case c := <-reloaded:
		assert.Equal(t, 2, c.Pipeline.MaxConcurrentCalls)
	case <-time.After(5 * time.Second):
		t.Fatal("config reload was not observed")
	}
	assert.GreaterOrEqual(t, w.Reloads(), 1)
}
