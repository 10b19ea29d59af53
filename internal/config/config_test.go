package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raysh454/sitegen/internal/config"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefaultConfig_Validates(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 300*time.Second, cfg.GenerateTimeout.Duration)
	assert.Equal(t, 3*time.Second, cfg.Progress.ReconnectDelay.Duration)
	assert.Equal(t, 2*time.Second, cfg.Progress.FailureRedirectDelay.Duration)
}

func TestLoad_FileThenEnv(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "sitegen.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
api_base_url = "https://api.example.com"
storage_bucket = "from-file"

[progress]
reconnect_delay = "5s"
`), 0o644))

	cfg, err := config.Load(config.LoadOptions{
		File: path,
		Getenv: envMap(map[string]string{
			"SITEGEN_STORAGE_BUCKET": "from-env",
			"SITEGEN_MOCK":           "false",
		}),
	})
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.APIBaseURL)
	assert.Equal(t, "from-env", cfg.StorageBucket)
	assert.Equal(t, 5*time.Second, cfg.Progress.ReconnectDelay.Duration)
	// untouched sections keep defaults
	assert.Equal(t, 2*time.Second, cfg.Progress.CorrectionDelay.Duration)
}

func TestLoad_BadMockFlag(t *testing.T) {
	t.Parallel()
	_, err := config.Load(config.LoadOptions{Getenv: envMap(map[string]string{"SITEGEN_MOCK": "maybe"})})
	assert.Error(t, err)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load(config.LoadOptions{File: filepath.Join(t.TempDir(), "nope.toml"), Getenv: envMap(nil)})
	assert.Error(t, err)
}

func TestEffectiveWSBaseURL(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()

	cfg.APIBaseURL = "https://api.example.com/"
	assert.Equal(t, "wss://api.example.com", cfg.EffectiveWSBaseURL())

	cfg.APIBaseURL = "http://localhost:8000"
	assert.Equal(t, "ws://localhost:8000", cfg.EffectiveWSBaseURL())

	cfg.WSBaseURL = "wss://stream.example.com/"
	assert.Equal(t, "wss://stream.example.com", cfg.EffectiveWSBaseURL())
}

func TestApplyMock(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	cfg.MockMode = true
	cfg.Mock.ListenAddr = "127.0.0.1:9000"
	cfg.ApplyMock()

	assert.Equal(t, "http://127.0.0.1:9000", cfg.APIBaseURL)
	assert.Equal(t, "ws://127.0.0.1:9000", cfg.EffectiveWSBaseURL())
	assert.Equal(t, "http://127.0.0.1:9000/storage", cfg.EffectiveStorageBaseURL())
	assert.Equal(t, "mock-token", cfg.Token)
}

func TestValidate_Rejects(t *testing.T) {
	t.Parallel()
	cases := map[string]func(*config.Config){
		"empty api url":      func(c *config.Config) { c.APIBaseURL = "" },
		"ftp api url":        func(c *config.Config) { c.APIBaseURL = "ftp://x" },
		"http ws url":        func(c *config.Config) { c.WSBaseURL = "http://x" },
		"zero reconnect":     func(c *config.Config) { c.Progress.ReconnectDelay.Duration = 0 },
		"negative redirect":  func(c *config.Config) { c.Progress.CompletionRedirectDelay.Duration = -time.Second },
		"zero generate wait": func(c *config.Config) { c.GenerateTimeout.Duration = 0 },
	}
	for name, mutate := range cases {
		cfg := config.DefaultConfig()
		mutate(cfg)
		assert.Error(t, cfg.Validate(), name)
	}
}
