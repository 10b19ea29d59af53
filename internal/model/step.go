package model

// StepName identifies a milestone of the generation pipeline.
type StepName string

const (
	StepBusinessAnalysis  StepName = "business_analysis"
	StepContentGeneration StepName = "content_generation"
	StepDesignSystem      StepName = "design_system"
	StepImageProcessing   StepName = "image_processing"
	StepCodeGeneration    StepName = "code_generation"
	StepGithubIntegration StepName = "github_integration"
	StepDeployment        StepName = "deployment"
	StepFinalization      StepName = "finalization"
)

// PipelineSteps lists the known steps in pipeline order.
var PipelineSteps = []StepName{
	StepBusinessAnalysis,
	StepContentGeneration,
	StepDesignSystem,
	StepImageProcessing,
	StepCodeGeneration,
	StepGithubIntegration,
	StepDeployment,
	StepFinalization,
}

var stepTitles = map[StepName]string{
	StepBusinessAnalysis:  "Business analysis",
	StepContentGeneration: "Content generation",
	StepDesignSystem:      "Design system",
	StepImageProcessing:   "Image processing",
	StepCodeGeneration:    "Code generation",
	StepGithubIntegration: "GitHub integration",
	StepDeployment:        "Deployment",
	StepFinalization:      "Finalization",
}

// Known reports whether n is part of the fixed step set.
func (n StepName) Known() bool {
	_, ok := stepTitles[n]
	return ok
}

// Title is the display label for a step; unknown steps echo their name.
func (n StepName) Title() string {
	if t, ok := stepTitles[n]; ok {
		return t
	}
	return string(n)
}

// StepStatus is the state of one reported milestone.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepStarted    StepStatus = "started"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
)

// ProgressStep is one reported milestone. For a given StepName only the
// instance with the latest Timestamp is authoritative.
type ProgressStep struct {
	StepName   StepName   `json:"step_name"`
	StepStatus StepStatus `json:"step_status"`
	Message    string     `json:"message"`
	Timestamp  Timestamp  `json:"timestamp"`
}

// SameReport reports whether two steps carry an identical
// (step name, step status, message) tuple, ignoring the timestamp.
func (s ProgressStep) SameReport(o ProgressStep) bool {
	return s.StepName == o.StepName && s.StepStatus == o.StepStatus && s.Message == o.Message
}
