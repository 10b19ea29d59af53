package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/raysh454/sitegen/internal/model"
	"github.com/raysh454/sitegen/internal/progress"
)

const clearScreen = "\033[H\033[2J"

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func since(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

func stepTitle(name model.StepName) string {
	if name.Known() {
		return name.Title()
	}
	return string(name)
}

func statusMark(s model.StepStatus) string {
	switch s {
	case model.StepCompleted:
		return "done"
	case model.StepFailed:
		return "FAILED"
	case model.StepStarted, model.StepInProgress:
		return "running"
	default:
		return string(s)
	}
}

// renderTimeline draws the whole view: header, progress bar and step table.
func renderTimeline(v progress.View) string {
	var b strings.Builder
	job := v.Job
	name := job.CompanyName
	if name == "" {
		name = job.ID
	}
	live := "offline"
	if v.Live {
		live = "live"
	}
	fmt.Fprintf(&b, "%s  [%s, %s]\n", name, job.Status, live)
	fmt.Fprintf(&b, "%s %3d%%\n\n", progressBar(job.ProgressPercentage, 30), job.ProgressPercentage)

	rows := make([][]string, 0, len(v.Steps))
	for _, st := range v.Steps {
		rows = append(rows, []string{stepTitle(st.StepName), statusMark(st.StepStatus), st.Message, since(st.Timestamp.Time)})
	}
	if len(rows) > 0 {
		b.WriteString(renderTable([]string{"Step", "Status", "Message", "When"}, rows, nil))
		b.WriteString("\n")
	}
	if job.Status == model.JobCompleted {
		if u := model.Deref(job.DeploymentURL); u != "" {
			fmt.Fprintf(&b, "\nLive site: %s\n", u)
		}
		if u := model.Deref(job.RepoURL); u != "" {
			fmt.Fprintf(&b, "Repository: %s\n", u)
		}
	}
	if msg := model.Deref(job.ErrorMessage); msg != "" && job.Status == model.JobFailed {
		fmt.Fprintf(&b, "\nError: %s\n", msg)
	}
	return b.String()
}

func progressBar(pct, width int) string {
	pct = model.ClampPercentage(pct)
	filled := pct * width / 100
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}

// lineRenderer prints only what changed since the previous view, for pipes
// and log files.
type lineRenderer struct {
	out     io.Writer
	status  model.JobStatus
	steps   map[model.StepName]model.ProgressStep
	printed bool
}

func newLineRenderer(out io.Writer) *lineRenderer {
	return &lineRenderer{out: out, steps: make(map[model.StepName]model.ProgressStep)}
}

func (r *lineRenderer) render(v progress.View) {
	job := v.Job
	if !r.printed {
		fmt.Fprintf(r.out, "job %s (%s)\n", job.ID, job.CompanyName)
		r.printed = true
	}
	for _, st := range v.Steps {
		prev, ok := r.steps[st.StepName]
		if ok && prev.StepStatus == st.StepStatus && prev.Message == st.Message {
			continue
		}
		r.steps[st.StepName] = st
		line := fmt.Sprintf("[%3d%%] %s: %s", job.ProgressPercentage, stepTitle(st.StepName), statusMark(st.StepStatus))
		if st.Message != "" {
			line += " (" + st.Message + ")"
		}
		fmt.Fprintln(r.out, line)
	}
	if job.Status != r.status {
		r.status = job.Status
		fmt.Fprintf(r.out, "status: %s\n", job.Status)
	}
}

func formatPercent(p int) string { return strconv.Itoa(p) + "%" }
