package main

import (
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/raysh454/sitegen/internal/completeness"
)

func newScoreCommand(ctx *commandContext) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:         "score",
		Short:       "Rate how complete a business profile is",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := loadProfile(file)
			if err != nil {
				return err
			}
			res := completeness.Score(req.BusinessInfo)
			if ctx.jsonOutput() {
				return writeJSON(cmd, res)
			}
			printf(cmd, "Completeness: %d%% (%s)\n", res.Score, res.Level)
			if len(res.Missing) == 0 {
				return nil
			}
			rows := make([][]string, 0, len(res.Missing))
			for _, m := range res.Missing {
				rows = append(rows, []string{m.Description, "+" + humanize.FormatFloat("#.#", m.Lost)})
			}
			printf(cmd, "%s\n", renderTable([]string{"Add", "Points"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Business profile (TOML)")
	return cmd
}
