// Package config loads client settings from defaults, an optional TOML file,
// a .env file and SITEGEN_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Config contains the runtime options every client component reads.
type Config struct {
	// APIBaseURL is the backend HTTP base, e.g. https://api.example.com.
	APIBaseURL string `toml:"api_base_url"`

	// WSBaseURL is the WebSocket base. Empty derives it from APIBaseURL.
	WSBaseURL string `toml:"ws_base_url"`

	// MockMode points the client at the in-process mock backend.
	MockMode bool `toml:"mock_mode"`

	// Token is the bearer session token. Normally supplied via env or flag.
	Token string `toml:"token"`

	RequestTimeout  Duration `toml:"request_timeout"`
	GenerateTimeout Duration `toml:"generate_timeout"`

	StorageBaseURL string `toml:"storage_base_url"`
	StorageBucket  string `toml:"storage_bucket"`

	// StateDir holds the local active-job hint database.
	StateDir string `toml:"state_dir"`

	LogLevel   string `toml:"log_level"`
	LogFormat  string `toml:"log_format"`
	LogBackend string `toml:"log_backend"`

	Progress ProgressConfig `toml:"progress"`
	Mock     MockConfig     `toml:"mock"`
}

// ProgressConfig holds the fixed delays of the job-progress synchronizer.
type ProgressConfig struct {
	ReconnectDelay          Duration `toml:"reconnect_delay"`
	CorrectionDelay         Duration `toml:"correction_delay"`
	FailureRedirectDelay    Duration `toml:"failure_redirect_delay"`
	CompletionRedirectDelay Duration `toml:"completion_redirect_delay"`
}

// MockConfig controls the development mock backend.
type MockConfig struct {
	ListenAddr   string   `toml:"listen_addr"`
	StepInterval Duration `toml:"step_interval"`
	// FailAtStep makes every mock job fail when it reaches this step.
	FailAtStep string `toml:"fail_at_step"`
	// OmitDeploymentURL drops the URL from job_completed events so clients
	// exercise their corrective fetch.
	OmitDeploymentURL bool   `toml:"omit_deployment_url"`
	StorageDir        string `toml:"storage_dir"`
}

// Duration is a time.Duration that reads "3s"-style strings from TOML.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// DefaultConfig returns a Config populated with sensible development defaults.
func DefaultConfig() *Config {
	return &Config{
		APIBaseURL:      "http://localhost:8000",
		RequestTimeout:  Duration{30 * time.Second},
		GenerateTimeout: Duration{300 * time.Second},
		StorageBucket:   "sitegen-assets",
		StateDir:        "~/.config/sitegen",
		LogLevel:        "info",
		LogFormat:       "json",
		LogBackend:      "logrus",
		Progress: ProgressConfig{
			ReconnectDelay:          Duration{3 * time.Second},
			CorrectionDelay:         Duration{2 * time.Second},
			FailureRedirectDelay:    Duration{2 * time.Second},
			CompletionRedirectDelay: Duration{3 * time.Second},
		},
		Mock: MockConfig{
			ListenAddr:   "127.0.0.1:8787",
			StepInterval: Duration{1500 * time.Millisecond},
			StorageDir:   "~/.config/sitegen/mock-storage",
		},
	}
}

// LoadOptions names the optional sources Load reads.
type LoadOptions struct {
	// File is a TOML config file; missing is an error only when set explicitly.
	File string
	// EnvFile is a dotenv file; a missing file is ignored.
	EnvFile string
	// Getenv overrides os.Getenv (tests).
	Getenv func(string) string
}

// Load layers defaults, the TOML file, the dotenv file and the environment.
func Load(opts LoadOptions) (*Config, error) {
	cfg := DefaultConfig()

	if opts.File != "" {
		data, err := os.ReadFile(opts.File)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", opts.File, err)
		}
	}

	getenv := opts.Getenv
	if getenv == nil {
		if opts.EnvFile != "" {
			// godotenv never overrides variables already set in the process.
			if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("loading env file: %w", err)
			}
		}
		getenv = os.Getenv
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	setString := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	setString("SITEGEN_API_URL", &c.APIBaseURL)
	setString("SITEGEN_WS_URL", &c.WSBaseURL)
	setString("SITEGEN_TOKEN", &c.Token)
	setString("SITEGEN_STORAGE_URL", &c.StorageBaseURL)
	setString("SITEGEN_STORAGE_BUCKET", &c.StorageBucket)
	setString("SITEGEN_STATE_DIR", &c.StateDir)
	setString("SITEGEN_LOG_LEVEL", &c.LogLevel)
	setString("SITEGEN_LOG_FORMAT", &c.LogFormat)
	setString("SITEGEN_LOG_BACKEND", &c.LogBackend)

	if v := strings.TrimSpace(getenv("SITEGEN_MOCK")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("SITEGEN_MOCK: %w", err)
		}
		c.MockMode = b
	}
	if v := strings.TrimSpace(getenv("SITEGEN_REQUEST_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SITEGEN_REQUEST_TIMEOUT: %w", err)
		}
		c.RequestTimeout = Duration{d}
	}
	return nil
}

// ApplyMock rewires base URLs onto the mock backend listen address.
func (c *Config) ApplyMock() {
	if !c.MockMode {
		return
	}
	base := "http://" + c.Mock.ListenAddr
	c.APIBaseURL = base
	c.WSBaseURL = ""
	c.StorageBaseURL = base + "/storage"
	if c.Token == "" {
		c.Token = "mock-token"
	}
}

// EffectiveWSBaseURL returns WSBaseURL, or APIBaseURL with its scheme
// switched to ws/wss.
func (c *Config) EffectiveWSBaseURL() string {
	if c.WSBaseURL != "" {
		return strings.TrimRight(c.WSBaseURL, "/")
	}
	u, err := url.Parse(c.APIBaseURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return strings.TrimRight(u.String(), "/")
}

// EffectiveStorageBaseURL defaults object storage to {api}/storage.
func (c *Config) EffectiveStorageBaseURL() string {
	if c.StorageBaseURL != "" {
		return strings.TrimRight(c.StorageBaseURL, "/")
	}
	return strings.TrimRight(c.APIBaseURL, "/") + "/storage"
}

// Validate reports the first unusable setting.
func (c *Config) Validate() error {
	if err := checkURL("api base url", c.APIBaseURL, "http", "https"); err != nil {
		return err
	}
	if c.WSBaseURL != "" {
		if err := checkURL("ws base url", c.WSBaseURL, "ws", "wss"); err != nil {
			return err
		}
	}
	if c.RequestTimeout.Duration <= 0 || c.GenerateTimeout.Duration <= 0 {
		return errors.New("request timeouts must be positive")
	}
	p := c.Progress
	if p.ReconnectDelay.Duration <= 0 || p.CorrectionDelay.Duration <= 0 || p.FailureRedirectDelay.Duration <= 0 {
		return errors.New("progress delays must be positive")
	}
	if p.CompletionRedirectDelay.Duration < 0 {
		return errors.New("completion redirect delay must not be negative")
	}
	return nil
}

func checkURL(name, raw string, schemes ...string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%s is required", name)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s %q must use one of %v", name, raw, schemes)
}

// ExpandPath resolves a leading ~ against the user's home directory.
func ExpandPath(p string) (string, error) {
	if len(p) > 0 && p[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, p[1:]), nil
	}
	return p, nil
}
