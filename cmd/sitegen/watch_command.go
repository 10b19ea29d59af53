package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/raysh454/sitegen/internal/apperr"
	"github.com/raysh454/sitegen/internal/logging"
	"github.com/raysh454/sitegen/internal/model"
	"github.com/raysh454/sitegen/internal/progress"
	"github.com/raysh454/sitegen/internal/webclient"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <job-id>",
		Short: "Follow a generation job until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return followJob(cmd, ctx, args[0])
		},
	}
}

type watchResult struct {
	Job   model.Job            `json:"job"`
	Steps []model.ProgressStep `json:"steps"`
}

func newViewRenderer(out io.Writer) func(progress.View) {
	if isTerminal(out) {
		return func(v progress.View) {
			fmt.Fprint(out, clearScreen+renderTimeline(v))
		}
	}
	return newLineRenderer(out).render
}

// followJob runs a synchronizer for jobID and renders it until the job
// settles and the synchronizer asks to leave the progress view.
func followJob(cmd *cobra.Command, cc *commandContext, jobID string) error {
	client, err := cc.apiClient()
	if err != nil {
		return err
	}

	var hints progress.HintClearer
	if store, err := cc.hintStore(); err != nil {
		cc.log().Warn("active job hints unavailable", logging.Err(err))
	} else {
		hints = store
	}

	dests := make(chan progress.Destination, 1)
	nav := progress.NavigatorFunc(func(d progress.Destination) {
		select {
		case dests <- d:
		default:
		}
	})

	delays := cc.delays()
	// With no completion redirect there is no result screen to wait for;
	// leave as soon as the completed job is settled.
	atResult := delays.CompletionRedirect <= 0

	syncer, err := progress.New(jobID, progress.Deps{
		API:       client,
		Dialer:    cc.dialer(),
		Tokens:    webclient.StaticToken(cc.config.Token),
		Navigator: nav,
		Hints:     hints,
		Logger:    cc.log(),
	}, progress.WithDelays(delays), progress.WithUpdateBuffer(64))
	if err != nil {
		return err
	}
	defer syncer.Close()

	ctx := cmd.Context()
	if err := syncer.Start(ctx); err != nil {
		if apperr.IsNotFound(err) {
			return fmt.Errorf("job %s no longer exists", jobID)
		}
		return fmt.Errorf("loading job %s: %s", jobID, apperr.UserMessage(err))
	}

	render := func(progress.View) {}
	if !cc.jsonOutput() {
		render = newViewRenderer(stdout(cmd))
	}
	render(syncer.View())

	finish := func(v progress.View) error {
		if cc.jsonOutput() {
			return writeJSON(cmd, watchResult{Job: v.Job, Steps: v.Steps})
		}
		render(v)
		return nil
	}
	// A result redirect can beat the deployment URL re-fetch; the final view
	// is printed only once the job is settled.
	completed := func() bool {
		v := syncer.View()
		return atResult && v.Settled && v.Job.Status == model.JobCompleted
	}

	if completed() {
		return finish(syncer.View())
	}
	for {
		select {
		case v, ok := <-syncer.Updates():
			if !ok {
				return nil
			}
			render(v)
			if completed() {
				return finish(syncer.View())
			}
		case d := <-dests:
			switch d.Kind {
			case progress.Result:
				atResult = true
				if completed() {
					return finish(syncer.View())
				}
			case progress.ErrorScreen:
				if err := finish(syncer.View()); err != nil {
					return err
				}
				return fmt.Errorf("generation failed: %s", d.Message)
			default:
				if err := finish(syncer.View()); err != nil {
					return err
				}
				return fmt.Errorf("job %s no longer exists", jobID)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
