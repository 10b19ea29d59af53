package main

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/raysh454/sitegen/internal/api"
	"github.com/raysh454/sitegen/internal/config"
	"github.com/raysh454/sitegen/internal/hint"
	"github.com/raysh454/sitegen/internal/logging"
	"github.com/raysh454/sitegen/internal/progress"
	"github.com/raysh454/sitegen/internal/stream"
	"github.com/raysh454/sitegen/internal/upload"
	"github.com/raysh454/sitegen/internal/webclient"
)

type globalFlags struct {
	config  string
	envFile string
	apiURL  string
	wsURL   string
	token   string
	mock    bool
	json    bool
}

type contextOption func(*commandContext)

// withGetenv replaces the process environment (tests).
func withGetenv(getenv func(string) string) contextOption {
	return func(c *commandContext) { c.getenv = getenv }
}

type commandContext struct {
	flags  *globalFlags
	getenv func(string) string

	configOnce sync.Once
	config     *config.Config
	configErr  error
	logger     logging.Logger

	mu     sync.Mutex
	wc     webclient.WebClient
	hints  *hint.Store
	client *api.Client
}

func newCommandContext(flags *globalFlags, opts ...contextOption) *commandContext {
	c := &commandContext{flags: flags}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ensureConfig loads config once, layering the global flags on top.
func (c *commandContext) ensureConfig(cmd *cobra.Command) (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, err := config.Load(config.LoadOptions{
			File:    strings.TrimSpace(c.flags.config),
			EnvFile: c.flags.envFile,
			Getenv:  c.getenv,
		})
		if err != nil {
			c.configErr = err
			return
		}
		if c.flags.apiURL != "" {
			cfg.APIBaseURL = c.flags.apiURL
		}
		if c.flags.wsURL != "" {
			cfg.WSBaseURL = c.flags.wsURL
		}
		if c.flags.token != "" {
			cfg.Token = c.flags.token
		}
		if c.flags.mock {
			cfg.MockMode = true
		}
		cfg.ApplyMock()
		if err := cfg.Validate(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.logger = logging.New(cfg.LogBackend, cmd.ErrOrStderr(), logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)
	})
	return c.config, c.configErr
}

func (c *commandContext) jsonOutput() bool { return c.flags.json }

func (c *commandContext) log() logging.Logger {
	if c.logger == nil {
		return logging.Nop()
	}
	return c.logger
}

func (c *commandContext) webClient() (webclient.WebClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wc != nil {
		return c.wc, nil
	}
	if c.config == nil {
		return nil, errors.New("config not loaded")
	}
	if c.config.Token == "" {
		return nil, errors.New("no session token: set SITEGEN_TOKEN or pass --token")
	}
	wc, err := webclient.NewWebClient(webclient.BackendOAuth2, webclient.Options{
		Timeout:     c.config.GenerateTimeout.Duration,
		TokenSource: webclient.StaticToken(c.config.Token),
	}, c.log())
	if err != nil {
		return nil, err
	}
	c.wc = wc
	return wc, nil
}

func (c *commandContext) apiClient() (*api.Client, error) {
	wc, err := c.webClient()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		c.client = api.New(c.config.APIBaseURL, wc, c.log(),
			api.WithRequestTimeout(c.config.RequestTimeout.Duration),
			api.WithGenerateTimeout(c.config.GenerateTimeout.Duration))
	}
	return c.client, nil
}

func (c *commandContext) dialer() *stream.Dialer {
	return stream.NewDialer(c.config.EffectiveWSBaseURL(), c.log())
}

func (c *commandContext) uploader() (*upload.Uploader, error) {
	wc, err := c.webClient()
	if err != nil {
		return nil, err
	}
	store := upload.NewHTTPStore(c.config.EffectiveStorageBaseURL(), c.config.StorageBucket, wc, c.log())
	return upload.NewUploader(store, c.log()), nil
}

func (c *commandContext) hintStore() (*hint.Store, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hints != nil {
		return c.hints, nil
	}
	dir, err := config.ExpandPath(c.config.StateDir)
	if err != nil {
		return nil, err
	}
	s, err := hint.Open(filepath.Join(dir, "hints.db"), c.log())
	if err != nil {
		return nil, err
	}
	c.hints = s
	return s, nil
}

// userKey scopes hints to one backend and session without storing the token.
func (c *commandContext) userKey() string {
	sum := sha256.Sum256([]byte(c.config.APIBaseURL + "\x00" + c.config.Token))
	return hex.EncodeToString(sum[:8])
}

func (c *commandContext) delays() progress.Delays {
	p := c.config.Progress
	return progress.Delays{
		Reconnect:          p.ReconnectDelay.Duration,
		Correction:         p.CorrectionDelay.Duration,
		FailureRedirect:    p.FailureRedirectDelay.Duration,
		CompletionRedirect: p.CompletionRedirectDelay.Duration,
	}
}

func (c *commandContext) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	if c.hints != nil {
		errs = append(errs, c.hints.Close())
		c.hints = nil
	}
	if c.wc != nil {
		errs = append(errs, c.wc.Close())
		c.wc = nil
	}
	c.client = nil
	return errors.Join(errs...)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func stdout(cmd *cobra.Command) io.Writer { return cmd.OutOrStdout() }

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
