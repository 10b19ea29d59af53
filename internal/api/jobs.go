package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/raysh454/sitegen/internal/apperr"
	"github.com/raysh454/sitegen/internal/logging"
	"github.com/raysh454/sitegen/internal/model"
)

// GenerateWebsite submits a generation request. It is the one call allowed
// to run for the full generate timeout.
func (c *Client) GenerateWebsite(ctx context.Context, req model.GenerateRequest) (*model.GenerateResponse, error) {
	if req.BusinessInfo.CompanyName == "" {
		return nil, apperr.NewInvalidInput("Company name is required.", nil)
	}

	var out model.GenerateResponse
	if err := c.do(ctx, c.generateTimeout, http.MethodPost, "/api/jobs/generate", nil, req, &out); err != nil {
		return nil, err
	}
	if out.JobID == "" {
		return nil, fmt.Errorf("generate: backend response carried no job id")
	}
	c.logger.Info("generation submitted",
		logging.Field{Key: "job_id", Value: out.JobID},
		logging.Field{Key: "company", Value: req.BusinessInfo.CompanyName})
	return &out, nil
}

// jobWire accepts both "id" and "job_id" for the job identifier.
type jobWire struct {
	model.Job
	JobID string `json:"job_id"`
}

func (w jobWire) job() model.Job {
	j := w.Job
	if j.ID == "" {
		j.ID = w.JobID
	}
	return j
}

// GetJob fetches the current snapshot of one job.
func (c *Client) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	if jobID == "" {
		return nil, apperr.NewInvalidInput("job id is required", nil)
	}
	var w jobWire
	if err := c.do(ctx, c.requestTimeout, http.MethodGet, "/api/jobs/"+url.PathEscape(jobID), nil, nil, &w); err != nil {
		return nil, err
	}
	j := w.job()
	if j.ID == "" {
		j.ID = jobID
	}
	return &j, nil
}

// GetJobProgress fetches the full step history of a job. The backend returns
// either a bare array or an object with a "steps" field.
func (c *Client) GetJobProgress(ctx context.Context, jobID string) ([]model.ProgressStep, error) {
	if jobID == "" {
		return nil, apperr.NewInvalidInput("job id is required", nil)
	}
	var raw json.RawMessage
	if err := c.do(ctx, c.requestTimeout, http.MethodGet, "/api/jobs/"+url.PathEscape(jobID)+"/progress", nil, nil, &raw); err != nil {
		return nil, err
	}
	return decodeSteps(raw)
}

func decodeSteps(raw json.RawMessage) ([]model.ProgressStep, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var steps []model.ProgressStep
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &steps); err != nil {
			return nil, fmt.Errorf("decoding progress steps: %w", err)
		}
		return steps, nil
	}
	var wrapped struct {
		Steps         []model.ProgressStep `json:"steps"`
		ProgressSteps []model.ProgressStep `json:"progress_steps"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decoding progress steps: %w", err)
	}
	if len(wrapped.Steps) > 0 {
		return wrapped.Steps, nil
	}
	return wrapped.ProgressSteps, nil
}

func listQuery(f model.JobListFilter) url.Values {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}
	return q
}

// ListJobs lists the caller's jobs.
func (c *Client) ListJobs(ctx context.Context, f model.JobListFilter) (*model.JobList, error) {
	return c.listJobs(ctx, "/api/jobs", f)
}

func (c *Client) listJobs(ctx context.Context, path string, f model.JobListFilter) (*model.JobList, error) {
	var raw json.RawMessage
	if err := c.do(ctx, c.requestTimeout, http.MethodGet, path, listQuery(f), nil, &raw); err != nil {
		return nil, err
	}
	return decodeJobList(raw, f)
}

func decodeJobList(raw json.RawMessage, f model.JobListFilter) (*model.JobList, error) {
	out := &model.JobList{Limit: f.Limit, Offset: f.Offset}
	if len(raw) == 0 || string(raw) == "null" {
		return out, nil
	}
	var wires []jobWire
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &wires); err != nil {
			return nil, fmt.Errorf("decoding job list: %w", err)
		}
		out.Total = len(wires)
	} else {
		var page struct {
			Jobs   []jobWire `json:"jobs"`
			Total  int       `json:"total"`
			Limit  int       `json:"limit"`
			Offset int       `json:"offset"`
		}
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, fmt.Errorf("decoding job list: %w", err)
		}
		wires = page.Jobs
		out.Total = page.Total
		if page.Limit > 0 {
			out.Limit = page.Limit
		}
		out.Offset = page.Offset
	}
	out.Jobs = make([]model.Job, 0, len(wires))
	for _, w := range wires {
		out.Jobs = append(out.Jobs, w.job())
	}
	return out, nil
}

// DeleteJob removes a job from the caller's dashboard.
func (c *Client) DeleteJob(ctx context.Context, jobID string) error {
	if jobID == "" {
		return apperr.NewInvalidInput("job id is required", nil)
	}
	return c.do(ctx, c.requestTimeout, http.MethodDelete, "/api/jobs/"+url.PathEscape(jobID), nil, nil, nil)
}
