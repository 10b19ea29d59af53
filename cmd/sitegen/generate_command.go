package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/raysh454/sitegen/internal/apperr"
	"github.com/raysh454/sitegen/internal/completeness"
	"github.com/raysh454/sitegen/internal/hint"
	"github.com/raysh454/sitegen/internal/logging"
	"github.com/raysh454/sitegen/internal/model"
)

// loadProfile reads a GenerateRequest from a TOML file with
// [business_info] and [website_config] tables.
func loadProfile(path string) (model.GenerateRequest, error) {
	var req model.GenerateRequest
	if path == "" {
		return req, errors.New("--file is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return req, fmt.Errorf("reading profile: %w", err)
	}
	if err := toml.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("parsing profile %s: %w", path, err)
	}
	return req, nil
}

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var file string
	var watch bool

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Submit a business profile for website generation",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := loadProfile(file)
			if err != nil {
				return err
			}
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}

			score := completeness.Score(req.BusinessInfo)
			if !ctx.jsonOutput() {
				printf(cmd, "Profile completeness: %d%% (%s)\n", score.Score, score.Level)
			}

			resp, err := client.GenerateWebsite(cmd.Context(), req)
			if err != nil {
				return errors.New(apperr.UserMessage(err))
			}

			if store, err := ctx.hintStore(); err != nil {
				ctx.log().Warn("active job hints unavailable", logging.Err(err))
			} else if err := store.Set(cmd.Context(), ctx.userKey(), resp.JobID); err != nil {
				ctx.log().Warn("recording active job hint", logging.Err(err))
			}

			if ctx.jsonOutput() && !watch {
				return writeJSON(cmd, resp)
			}
			if !ctx.jsonOutput() {
				printf(cmd, "Job %s %s\n", resp.JobID, resp.Status)
			}
			if !watch {
				return nil
			}
			return followJob(cmd, ctx, resp.JobID)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Business profile (TOML)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Follow the job until it finishes")
	return cmd
}

func newResumeCommand(ctx *commandContext) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Find your active job, if any",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			store, err := ctx.hintStore()
			if err != nil {
				return err
			}
			resolver := hint.NewResolver(store, client, ctx.log())
			job, err := resolver.Resume(cmd.Context(), ctx.userKey())
			if err != nil {
				return errors.New(apperr.UserMessage(err))
			}
			if job == nil {
				if ctx.jsonOutput() {
					return writeJSON(cmd, nil)
				}
				printf(cmd, "No active job.\n")
				return nil
			}
			if watch {
				return followJob(cmd, ctx, job.ID)
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, job)
			}
			printf(cmd, "Active job %s: %s, %d%% (%s)\n", job.ID, job.Status, job.ProgressPercentage, job.CompanyName)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Follow the active job")
	return cmd
}
