package model

// JobStatus is the lifecycle state of a website-generation job.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further status change is allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

// IsActive reports whether the job is still queued or running.
func (s JobStatus) IsActive() bool {
	return s == JobQueued || s == JobProcessing
}

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobQueued, JobProcessing, JobCompleted, JobFailed:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next goes forward along
// queued → processing → {completed, failed}. Staying put is allowed.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if !next.Valid() {
		return false
	}
	if s == "" {
		return true
	}
	if s.IsTerminal() {
		return s == next
	}
	return statusRank(next) >= statusRank(s)
}

func statusRank(s JobStatus) int {
	switch s {
	case JobQueued:
		return 0
	case JobProcessing:
		return 1
	case JobCompleted, JobFailed:
		return 2
	}
	return -1
}

// Job identifies one website-generation task.
type Job struct {
	ID                 string    `json:"id"`
	CompanyName        string    `json:"company_name"`
	Status             JobStatus `json:"status"`
	ProgressPercentage int       `json:"progress_percentage"`
	CurrentStep        string    `json:"current_step,omitempty"`
	DeploymentURL      *string   `json:"railway_deployment_url,omitempty"`
	RepoURL            *string   `json:"github_repo_url,omitempty"`
	ErrorMessage       *string   `json:"error_message,omitempty"`
	CreatedAt          Timestamp `json:"created_at"`
	UpdatedAt          Timestamp `json:"updated_at"`
}

// Clone returns a deep copy so callers can hand jobs across goroutines.
func (j Job) Clone() Job {
	out := j
	out.DeploymentURL = cloneString(j.DeploymentURL)
	out.RepoURL = cloneString(j.RepoURL)
	out.ErrorMessage = cloneString(j.ErrorMessage)
	return out
}

// HasDeploymentURL reports whether a non-empty deployment URL is known.
func (j Job) HasDeploymentURL() bool {
	return j.DeploymentURL != nil && *j.DeploymentURL != ""
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns *s or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// ClampPercentage keeps a reported percentage inside 0..100.
func ClampPercentage(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// JobListFilter scopes a job listing.
type JobListFilter struct {
	Status JobStatus
	Limit  int
	Offset int
}

// JobList is one page of jobs.
type JobList struct {
	Jobs   []Job `json:"jobs"`
	Total  int   `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}
