package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand(opts ...contextOption) *cobra.Command {
	flags := &globalFlags{}
	ctx := newCommandContext(flags, opts...)

	rootCmd := &cobra.Command{
		Use:           "sitegen",
		Short:         "Generate and deploy export websites from a business profile",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig(cmd)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return ctx.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.config, "config", "c", "", "Configuration file path (TOML)")
	pf.StringVar(&flags.envFile, "env-file", ".env", "dotenv file to load if present")
	pf.StringVar(&flags.apiURL, "api-url", "", "Backend base URL")
	pf.StringVar(&flags.wsURL, "ws-url", "", "WebSocket base URL (default: derived from --api-url)")
	pf.StringVar(&flags.token, "token", "", "Session token")
	pf.BoolVar(&flags.mock, "mock", false, "Talk to the local mock backend")
	pf.BoolVar(&flags.json, "json", false, "Write machine-readable JSON")

	rootCmd.AddCommand(newGenerateCommand(ctx))
	rootCmd.AddCommand(newWatchCommand(ctx))
	rootCmd.AddCommand(newJobsCommand(ctx))
	rootCmd.AddCommand(newResumeCommand(ctx))
	rootCmd.AddCommand(newAdminCommand(ctx))
	rootCmd.AddCommand(newUploadCommand(ctx))
	rootCmd.AddCommand(newScoreCommand(ctx))
	rootCmd.AddCommand(newMockCommand(ctx))

	return rootCmd
}
