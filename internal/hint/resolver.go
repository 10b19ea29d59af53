package hint

import (
	"context"
	"errors"
	"fmt"

	"github.com/raysh454/sitegen/internal/apperr"
	"github.com/raysh454/sitegen/internal/logging"
	"github.com/raysh454/sitegen/internal/model"
)

// JobLookup is the server side of hint confirmation.
type JobLookup interface {
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	ListJobs(ctx context.Context, f model.JobListFilter) (*model.JobList, error)
}

// Resolver turns a local hint into a server-confirmed active job.
type Resolver struct {
	store  *Store
	api    JobLookup
	logger logging.Logger
}

// NewResolver returns a Resolver over store and api.
func NewResolver(store *Store, api JobLookup, logger logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Resolver{store: store, api: api, logger: logger.With(logging.Field{Key: "component", Value: "hint"})}
}

// Resume finds the user's active job. The local hint is checked first but
// only trusted once GetJob confirms it is still queued or processing; a
// stale hint is cleared and the server's own job listing decides. It
// returns (nil, nil) when no job is active.
func (r *Resolver) Resume(ctx context.Context, userKey string) (*model.Job, error) {
	h, err := r.store.Get(ctx, userKey)
	switch {
	case errors.Is(err, ErrNoHint):
	case err != nil:
		r.logger.Warn("could not read active job hint", logging.Err(err))
	default:
		job, err := r.api.GetJob(ctx, h.JobID)
		switch {
		case err == nil && job.Status.IsActive():
			return job, nil
		case err == nil || apperr.IsNotFound(err):
			r.logger.Info("discarding stale active job hint", logging.Field{Key: "job_id", Value: h.JobID})
			if err := r.store.Clear(ctx, userKey); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("confirming job %s: %w", h.JobID, err)
		}
	}

	for _, status := range []model.JobStatus{model.JobProcessing, model.JobQueued} {
		list, err := r.api.ListJobs(ctx, model.JobListFilter{Status: status, Limit: 1})
		if err != nil {
			return nil, fmt.Errorf("listing %s jobs: %w", status, err)
		}
		if len(list.Jobs) == 0 {
			continue
		}
		job := list.Jobs[0]
		if err := r.store.Set(ctx, userKey, job.ID); err != nil {
			r.logger.Warn("could not record active job hint", logging.Err(err))
		}
		return &job, nil
	}
	return nil, nil
}
