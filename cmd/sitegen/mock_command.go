package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/raysh454/sitegen/internal/logging"
	"github.com/raysh454/sitegen/internal/mockbackend"
	"github.com/raysh454/sitegen/internal/model"
)

func newMockCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mock",
		Short: "Local mock backend for development",
	}
	cmd.AddCommand(newMockServeCommand(ctx))
	return cmd
}

func newMockServeCommand(ctx *commandContext) *cobra.Command {
	var (
		addr       string
		interval   time.Duration
		failAt     string
		omitURL    bool
		adminToken string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the mock job API, WebSocket and storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig(cmd)
			if err != nil {
				return err
			}
			mcfg, err := mockbackend.FromClientConfig(cfg, ctx.log())
			if err != nil {
				return err
			}
			if addr != "" {
				mcfg.ListenAddr = addr
			}
			if interval > 0 {
				mcfg.StepInterval = interval
			}
			if failAt != "" {
				step := model.StepName(failAt)
				if !step.Known() {
					return fmt.Errorf("unknown step %q", failAt)
				}
				mcfg.FailAtStep = step
			}
			if cmd.Flags().Changed("omit-deployment-url") {
				mcfg.OmitDeploymentURL = omitURL
			}
			mcfg.AdminToken = adminToken

			return serveMock(cmd.Context(), mcfg, ctx.log())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	cmd.Flags().DurationVar(&interval, "step-interval", 0, "Time each pipeline step takes")
	cmd.Flags().StringVar(&failAt, "fail-at", "", "Fail every job at this step")
	cmd.Flags().BoolVar(&omitURL, "omit-deployment-url", false, "Leave the URL out of job_completed events")
	cmd.Flags().StringVar(&adminToken, "admin-token", "", "Token required for /api/admin routes")
	return cmd
}

// serveMock runs the mock backend until ctx is cancelled.
func serveMock(ctx context.Context, cfg mockbackend.Config, logger logging.Logger) error {
	srv, err := mockbackend.NewServer(cfg)
	if err != nil {
		return err
	}
	defer srv.Close()

	httpSrv := srv.HTTPServer()
	errCh := make(chan error, 1)
	go func() {
		logger.Info("mock backend listening", logging.Field{Key: "addr", Value: cfg.ListenAddr})
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	}
}
