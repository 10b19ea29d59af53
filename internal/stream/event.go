package stream

import (
	"github.com/raysh454/sitegen/internal/model"
)

// EventType is the "type" discriminator of an inbound message.
type EventType string

const (
	EventProgressUpdate EventType = "progress_update"
	EventStepCompleted  EventType = "step_completed"
	EventJobCompleted   EventType = "job_completed"
	EventError          EventType = "error"
)

// Known reports whether t is one of the handled event kinds.
func (t EventType) Known() bool {
	switch t {
	case EventProgressUpdate, EventStepCompleted, EventJobCompleted, EventError:
		return true
	}
	return false
}

// Result is the payload of a job_completed event. Either URL may be missing;
// the live event is allowed to be an incomplete projection of the final job.
type Result struct {
	GithubRepoURL        string `json:"github_repo_url,omitempty"`
	RailwayDeploymentURL string `json:"railway_deployment_url,omitempty"`
}

// Event is one decoded message from /api/ws/jobs/{id}.
type Event struct {
	Type EventType `json:"type"`

	// progress_update / step_completed
	ProgressPercentage *int             `json:"progress_percentage,omitempty"`
	StepName           model.StepName   `json:"step_name,omitempty"`
	StepStatus         model.StepStatus `json:"step_status,omitempty"`
	Message            string           `json:"message,omitempty"`
	Timestamp          model.Timestamp  `json:"timestamp"`

	// job_completed
	Result *Result `json:"result,omitempty"`

	// error (some backends put the text here instead of "message")
	Error string `json:"error,omitempty"`
}

// Step returns the progress step an update carries, if it names one.
func (e Event) Step() (model.ProgressStep, bool) {
	if e.StepName == "" {
		return model.ProgressStep{}, false
	}
	status := e.StepStatus
	if status == "" && e.Type == EventStepCompleted {
		status = model.StepCompleted
	}
	return model.ProgressStep{
		StepName:   e.StepName,
		StepStatus: status,
		Message:    e.Message,
		Timestamp:  e.Timestamp,
	}, true
}

// FailureMessage is the text of an error event: message, else error, else a
// generic fallback.
func (e Event) FailureMessage() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Error != "" {
		return e.Error
	}
	return "Website generation failed"
}
