package hint

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raysh454/sitegen/internal/apperr"
	"github.com/raysh454/sitegen/internal/model"
	"github.com/raysh454/sitegen/internal/testutil"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state", "hints.db"), &testutil.DummyLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// ─── Store ─────────────────────────────────────────────────────────────

func TestStore_SetGetClear(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	s.now = func() time.Time { return time.UnixMilli(1_700_000_000_123) }
	ctx := context.Background()

	_, err := s.Get(ctx, "alice")
	assert.ErrorIs(t, err, ErrNoHint)

	require.NoError(t, s.Set(ctx, "alice", "job-1"))
	require.NoError(t, s.Set(ctx, "alice", "job-2"))
	h, err := s.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "job-2", h.JobID)
	assert.Equal(t, int64(1_700_000_000_123), h.RecordedAt.UnixMilli())

	require.NoError(t, s.Clear(ctx, "alice"))
	require.NoError(t, s.Clear(ctx, "alice"))
	_, err = s.Get(ctx, "alice")
	assert.ErrorIs(t, err, ErrNoHint)
}

func TestStore_BlankUserKeyIsDefault(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "  ", "job-9"))
	h, err := s.Get(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "job-9", h.JobID)
	assert.Error(t, s.Set(ctx, "bob", ""))
}

func TestStore_ForgetJobRemovesEveryUser(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "alice", "shared"))
	require.NoError(t, s.Set(ctx, "bob", "shared"))
	require.NoError(t, s.Set(ctx, "carol", "other"))

	require.NoError(t, s.ForgetJob(ctx, "shared"))
	_, err := s.Get(ctx, "alice")
	assert.ErrorIs(t, err, ErrNoHint)
	_, err = s.Get(ctx, "bob")
	assert.ErrorIs(t, err, ErrNoHint)
	h, err := s.Get(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, "other", h.JobID)
}

func TestStore_PersistsAcrossOpen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "hints.db")
	s, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Set(context.Background(), "alice", "job-1"))
	require.NoError(t, s.Close())

	s, err = Open(path, nil)
	require.NoError(t, err)
	defer s.Close()
	h, err := s.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "job-1", h.JobID)
}

// ─── Resolver ──────────────────────────────────────────────────────────

type fakeLookup struct {
	mu      sync.Mutex
	jobs    map[string]model.Job
	getErr  error
	listErr error
	lists   []model.JobListFilter
	gets    []string
}

func (f *fakeLookup) GetJob(_ context.Context, id string) (*model.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets = append(f.gets, id)
	if f.getErr != nil {
		return nil, f.getErr
	}
	j, ok := f.jobs[id]
	if !ok {
		return nil, apperr.NewNotFound("job not found", nil)
	}
	return &j, nil
}

func (f *fakeLookup) ListJobs(_ context.Context, flt model.JobListFilter) (*model.JobList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists = append(f.lists, flt)
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := &model.JobList{Limit: flt.Limit}
	for _, j := range f.jobs {
		if j.Status == flt.Status {
			out.Jobs = append(out.Jobs, j)
			break
		}
	}
	out.Total = len(out.Jobs)
	return out, nil
}

func TestResume_ConfirmedHintWins(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "alice", "job-1"))
	api := &fakeLookup{jobs: map[string]model.Job{"job-1": {ID: "job-1", Status: model.JobProcessing}}}

	job, err := NewResolver(s, api, nil).Resume(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "job-1", job.ID)
	assert.Empty(t, api.lists, "server listing not needed once the hint is confirmed")
}

func TestResume_StaleHintIsSupersededByServer(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "alice", "old"))
	api := &fakeLookup{jobs: map[string]model.Job{
		"old": {ID: "old", Status: model.JobCompleted},
		"new": {ID: "new", Status: model.JobQueued},
	}}

	job, err := NewResolver(s, api, nil).Resume(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "new", job.ID)
	require.Len(t, api.lists, 2)
	assert.Equal(t, model.JobProcessing, api.lists[0].Status)
	assert.Equal(t, model.JobQueued, api.lists[1].Status)

	h, err := s.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "new", h.JobID)
}

func TestResume_MissingJobClearsHint(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "alice", "gone"))

	job, err := NewResolver(s, &fakeLookup{jobs: map[string]model.Job{}}, nil).Resume(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, job)
	_, err = s.Get(ctx, "alice")
	assert.ErrorIs(t, err, ErrNoHint)
}

func TestResume_UnconfirmableHintIsAnError(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "alice", "job-1"))
	api := &fakeLookup{getErr: apperr.NewUnavailable("backend down", errors.New("refused"))}

	_, err := NewResolver(s, api, nil).Resume(ctx, "alice")
	require.Error(t, err)
	assert.True(t, apperr.IsUnavailable(err))

	h, err := s.Get(ctx, "alice")
	require.NoError(t, err, "hint kept when the server could not answer")
	assert.Equal(t, "job-1", h.JobID)
}
