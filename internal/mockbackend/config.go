package mockbackend

import (
	"time"

	"github.com/raysh454/sitegen/internal/config"
	"github.com/raysh454/sitegen/internal/logging"
	"github.com/raysh454/sitegen/internal/model"
)

// Config holds configuration for the mock backend.
type Config struct {
	// ListenAddr is the host:port the server listens on.
	ListenAddr string

	// PublicURL prefixes storage URLs handed back to clients. Defaults to
	// http://ListenAddr.
	PublicURL string

	// StepInterval is how long each simulated pipeline step takes.
	StepInterval time.Duration

	// FailAtStep, when set, fails every job as it reaches that step.
	FailAtStep  model.StepName
	FailMessage string

	// OmitDeploymentURL leaves the URL out of job_completed events while
	// keeping it on the job record.
	OmitDeploymentURL bool

	StorageDir string
	Bucket     string

	// Token, when set, is the only accepted bearer token. Otherwise any
	// non-empty token is accepted and identifies its own user.
	Token string
	// AdminToken, when set, is required for /api/admin routes.
	AdminToken string

	Logger logging.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:   "127.0.0.1:8787",
		StepInterval: 1500 * time.Millisecond,
		FailMessage:  "Simulated failure",
		StorageDir:   "mock-storage",
		Bucket:       "sitegen-assets",
	}
}

// FromClientConfig derives mock settings from the client config.
func FromClientConfig(c *config.Config, logger logging.Logger) (Config, error) {
	cfg := DefaultConfig()
	cfg.Logger = logger
	if c.Mock.ListenAddr != "" {
		cfg.ListenAddr = c.Mock.ListenAddr
	}
	if c.Mock.StepInterval.Duration > 0 {
		cfg.StepInterval = c.Mock.StepInterval.Duration
	}
	cfg.FailAtStep = model.StepName(c.Mock.FailAtStep)
	cfg.OmitDeploymentURL = c.Mock.OmitDeploymentURL
	if c.StorageBucket != "" {
		cfg.Bucket = c.StorageBucket
	}
	if c.Mock.StorageDir != "" {
		dir, err := config.ExpandPath(c.Mock.StorageDir)
		if err != nil {
			return cfg, err
		}
		cfg.StorageDir = dir
	}
	return cfg, nil
}
