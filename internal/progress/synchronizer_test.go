package progress_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/raysh454/sitegen/internal/apperr"
	"github.com/raysh454/sitegen/internal/model"
	"github.com/raysh454/sitegen/internal/progress"
	"github.com/raysh454/sitegen/internal/stream"
	"github.com/raysh454/sitegen/internal/testutil"
)

const jobID = "job-123"

type harness struct {
	sync   *progress.Synchronizer
	api    *testutil.FakeJobAPI
	dialer *testutil.FakeDialer
	clock  *testutil.FakeClock
	nav    *testutil.DummyNavigator
	hints  *testutil.DummyHints
	logger *testutil.DummyLogger
}

func newHarness(t *testing.T, api *testutil.FakeJobAPI, delays progress.Delays) *harness {
	t.Helper()
	h := &harness{
		api:    api,
		dialer: &testutil.FakeDialer{},
		clock:  testutil.NewFakeClock(time.Unix(1_700_000_000, 0)),
		nav:    &testutil.DummyNavigator{},
		hints:  &testutil.DummyHints{},
		logger: &testutil.DummyLogger{},
	}
	s, err := progress.New(jobID, progress.Deps{
		API:       api,
		Dialer:    h.dialer,
		Tokens:    oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "session-token"}),
		Navigator: h.nav,
		Hints:     h.hints,
		Clock:     h.clock,
		Logger:    h.logger,
	}, progress.WithDelays(delays), progress.WithUpdateBuffer(256))
	require.NoError(t, err)
	h.sync = s
	t.Cleanup(func() { _ = s.Close() })
	return h
}

func noRedirect() progress.Delays {
	d := progress.DefaultDelays()
	d.CompletionRedirect = 0
	return d
}

func processingJob() model.Job {
	return model.Job{ID: jobID, CompanyName: "Acme Exports", Status: model.JobProcessing, ProgressPercentage: 20, CurrentStep: "business_analysis"}
}

func pct(p int) *int { return &p }

// waitFor polls the synchronizer view until cond holds.
func (h *harness) waitFor(t *testing.T, cond func(progress.View) bool) progress.View {
	t.Helper()
	var last progress.View
	require.Eventually(t, func() bool {
		last = h.sync.View()
		return cond(last)
	}, 2*time.Second, 5*time.Millisecond)
	return last
}

func (h *harness) start(t *testing.T) *testutil.FakeStream {
	t.Helper()
	require.NoError(t, h.sync.Start(context.Background()))
	s := h.dialer.Stream(0)
	require.NotNil(t, s)
	return s
}

// ─── Initialization ────────────────────────────────────────────────────

func TestStart_SeedsSnapshotHistoryAndDials(t *testing.T) {
	t.Parallel()
	api := &testutil.FakeJobAPI{
		Jobs:  []model.Job{processingJob()},
		Steps: []model.ProgressStep{step(model.StepBusinessAnalysis, model.StepCompleted, "Analyzed", 1)},
	}
	h := newHarness(t, api, noRedirect())
	h.start(t)

	v := h.sync.View()
	assert.Equal(t, model.JobProcessing, v.Job.Status)
	assert.Equal(t, 20, v.Job.ProgressPercentage)
	assert.Equal(t, "Acme Exports", v.Job.CompanyName)
	require.Len(t, v.Steps, 1)
	assert.True(t, v.Live)

	require.Equal(t, 1, h.dialer.DialCount())
	assert.Equal(t, testutil.DialCall{JobID: jobID, Token: "session-token"}, h.dialer.Calls[0])
}

func TestStart_HistoryFailureIsNotFatal(t *testing.T) {
	t.Parallel()
	api := &testutil.FakeJobAPI{Jobs: []model.Job{processingJob()}, StepsErr: errors.New("boom")}
	h := newHarness(t, api, noRedirect())
	h.start(t)
	assert.Empty(t, h.sync.View().Steps)
	assert.Equal(t, 1, h.dialer.DialCount())
}

func TestStart_NotFoundClearsHintAndGoesToDashboard(t *testing.T) {
	t.Parallel()
	api := &testutil.FakeJobAPI{JobErr: apperr.NewNotFound("job not found", nil)}
	h := newHarness(t, api, noRedirect())

	err := h.sync.Start(context.Background())
	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))
	assert.Equal(t, []string{jobID}, h.hints.Forgotten)
	assert.Equal(t, []progress.Destination{{Kind: progress.Dashboard, JobID: jobID}}, h.nav.Destinations())
	assert.Zero(t, h.dialer.DialCount())
	assert.Empty(t, h.sync.View().Job.ErrorMessage)
}

func TestStart_TerminalSnapshotDoesNotDial(t *testing.T) {
	t.Parallel()
	job := processingJob()
	job.Status = model.JobFailed
	job.ErrorMessage = model.StringPtr("GitHub push rejected")
	h := newHarness(t, &testutil.FakeJobAPI{Jobs: []model.Job{job}}, noRedirect())

	require.NoError(t, h.sync.Start(context.Background()))
	assert.Zero(t, h.dialer.DialCount())

	h.clock.Advance(2 * time.Second)
	dests := h.nav.Destinations()
	require.Len(t, dests, 1)
	assert.Equal(t, progress.ErrorScreen, dests[0].Kind)
	assert.Equal(t, "GitHub push rejected", dests[0].Message)
}

func TestStart_Twice(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &testutil.FakeJobAPI{Jobs: []model.Job{processingJob()}}, noRedirect())
	h.start(t)
	assert.Error(t, h.sync.Start(context.Background()))
}

// ─── Step deduplication through the stream ─────────────────────────────

func TestStream_DedupExample(t *testing.T) {
	t.Parallel()
	api := &testutil.FakeJobAPI{
		Jobs:  []model.Job{processingJob()},
		Steps: []model.ProgressStep{step(model.StepBusinessAnalysis, model.StepCompleted, "Analyzed", 1)},
	}
	h := newHarness(t, api, noRedirect())
	s := h.start(t)

	s.Send(stream.Event{Type: stream.EventStepCompleted, StepName: model.StepBusinessAnalysis, StepStatus: model.StepCompleted, Message: "Analyzed", Timestamp: ts(1)})
	s.Send(stream.Event{Type: stream.EventProgressUpdate, ProgressPercentage: pct(70), StepName: model.StepGithubIntegration, StepStatus: model.StepStarted, Message: "Pushing", Timestamp: ts(2)})
	v := h.waitFor(t, func(v progress.View) bool { return len(v.Steps) == 2 })
	assert.Equal(t, 70, v.Job.ProgressPercentage)
	assert.Equal(t, "github_integration", v.Job.CurrentStep)

	s.Send(stream.Event{Type: stream.EventStepCompleted, ProgressPercentage: pct(80), StepName: model.StepGithubIntegration, StepStatus: model.StepCompleted, Message: "Pushed", Timestamp: ts(3)})
	v = h.waitFor(t, func(v progress.View) bool { return v.Job.ProgressPercentage == 80 })
	require.Len(t, v.Steps, 2)
	assert.Equal(t, model.StepCompleted, v.Steps[1].StepStatus)
}

func TestStream_EventBeforeSnapshotDoesNotRegress(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &testutil.FakeJobAPI{Jobs: []model.Job{processingJob()}}, noRedirect())

	h.sync.HandleEvent(stream.Event{Type: stream.EventProgressUpdate, ProgressPercentage: pct(55), StepName: model.StepCodeGeneration, StepStatus: model.StepStarted, Timestamp: ts(9)})
	h.sync.ApplySnapshot(model.Job{ID: jobID, Status: model.JobQueued, ProgressPercentage: 10})
	h.sync.ApplyHistory([]model.ProgressStep{step(model.StepCodeGeneration, model.StepPending, "", 2)})

	v := h.sync.View()
	assert.Equal(t, model.JobProcessing, v.Job.Status)
	assert.Equal(t, 55, v.Job.ProgressPercentage)
	require.Len(t, v.Steps, 1)
	assert.Equal(t, model.StepStarted, v.Steps[0].StepStatus)
}

func TestStream_MissingTimestampIsStampedOnReceipt(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &testutil.FakeJobAPI{Jobs: []model.Job{processingJob()}}, noRedirect())
	h.sync.HandleEvent(stream.Event{Type: stream.EventProgressUpdate, StepName: model.StepDeployment, StepStatus: model.StepStarted})
	h.clock.Advance(time.Second)
	h.sync.HandleEvent(stream.Event{Type: stream.EventProgressUpdate, StepName: model.StepDeployment, StepStatus: model.StepInProgress})

	steps := h.sync.View().Steps
	require.Len(t, steps, 1)
	assert.Equal(t, model.StepInProgress, steps[0].StepStatus)
}

// ─── Status state machine ──────────────────────────────────────────────

func TestStatus_TerminalIsFinal(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &testutil.FakeJobAPI{Jobs: []model.Job{processingJob()}}, noRedirect())
	h.sync.ApplySnapshot(processingJob())

	h.sync.HandleEvent(stream.Event{Type: stream.EventJobCompleted, Result: &stream.Result{RailwayDeploymentURL: "https://acme.up.railway.app"}})
	h.sync.HandleEvent(stream.Event{Type: stream.EventError, Message: "late failure"})
	h.sync.ApplySnapshot(model.Job{ID: jobID, Status: model.JobProcessing, ProgressPercentage: 40})
	h.sync.HandleEvent(stream.Event{Type: stream.EventProgressUpdate, ProgressPercentage: pct(30)})

	v := h.sync.View()
	assert.Equal(t, model.JobCompleted, v.Job.Status)
	assert.Equal(t, 100, v.Job.ProgressPercentage)
	assert.Nil(t, v.Job.ErrorMessage)
}

func TestStatus_UpdatesObservedInOrder(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &testutil.FakeJobAPI{Jobs: []model.Job{{ID: jobID, Status: model.JobQueued}}}, noRedirect())
	s := h.start(t)

	var seen []model.JobStatus
	s.Send(stream.Event{Type: stream.EventProgressUpdate, ProgressPercentage: pct(10), StepName: model.StepBusinessAnalysis, StepStatus: model.StepStarted, Timestamp: ts(1)})
	s.Send(stream.Event{Type: stream.EventJobCompleted, Result: &stream.Result{RailwayDeploymentURL: "https://x.up.railway.app"}})
	h.waitFor(t, func(v progress.View) bool { return v.Job.Status == model.JobCompleted })
	require.NoError(t, h.sync.Close())

	for v := range h.sync.Updates() {
		if n := len(seen); n == 0 || seen[n-1] != v.Job.Status {
			seen = append(seen, v.Job.Status)
		}
	}
	assert.Equal(t, []model.JobStatus{model.JobQueued, model.JobProcessing, model.JobCompleted}, seen)
}

// ─── Completion ────────────────────────────────────────────────────────

func TestCompletion_MissingDeploymentURLTriggersOneCorrection(t *testing.T) {
	t.Parallel()
	final := processingJob()
	final.Status = model.JobCompleted
	final.ProgressPercentage = 100
	final.DeploymentURL = model.StringPtr("https://acme.up.railway.app")
	final.RepoURL = model.StringPtr("https://github.com/acme/site")
	api := &testutil.FakeJobAPI{Jobs: []model.Job{processingJob(), final}}
	h := newHarness(t, api, noRedirect())
	s := h.start(t)
	require.Equal(t, 1, api.GetJobCalls())

	s.Send(stream.Event{Type: stream.EventJobCompleted, Result: &stream.Result{GithubRepoURL: "https://github.com/acme/site"}})
	s.Send(stream.Event{Type: stream.EventJobCompleted})
	v := h.waitFor(t, func(v progress.View) bool { return v.Job.Status == model.JobCompleted })
	assert.Equal(t, 100, v.Job.ProgressPercentage)
	assert.Nil(t, v.Job.DeploymentURL)

	h.clock.Advance(1 * time.Second)
	assert.Equal(t, 1, api.GetJobCalls(), "correction waits for its delay")

	h.clock.Advance(1 * time.Second)
	assert.Equal(t, 2, api.GetJobCalls())
	v = h.sync.View()
	require.NotNil(t, v.Job.DeploymentURL)
	assert.Equal(t, "https://acme.up.railway.app", *v.Job.DeploymentURL)

	h.clock.Advance(time.Minute)
	assert.Equal(t, 2, api.GetJobCalls(), "exactly one correction")
}

func TestCompletion_WithDeploymentURLSkipsCorrection(t *testing.T) {
	t.Parallel()
	api := &testutil.FakeJobAPI{Jobs: []model.Job{processingJob()}}
	h := newHarness(t, api, noRedirect())
	h.sync.ApplySnapshot(processingJob())
	h.sync.HandleEvent(stream.Event{Type: stream.EventJobCompleted, Result: &stream.Result{RailwayDeploymentURL: "https://acme.up.railway.app"}})

	h.clock.Advance(time.Minute)
	assert.Zero(t, api.GetJobCalls())
	assert.Zero(t, h.clock.Pending())
}

func TestCompletion_SettledWaitsForCorrection(t *testing.T) {
	t.Parallel()
	final := processingJob()
	final.Status = model.JobCompleted
	final.DeploymentURL = model.StringPtr("https://acme.up.railway.app")
	api := &testutil.FakeJobAPI{Jobs: []model.Job{final}}
	h := newHarness(t, api, noRedirect())
	h.sync.ApplySnapshot(processingJob())
	assert.False(t, h.sync.View().Settled)

	h.sync.HandleEvent(stream.Event{Type: stream.EventJobCompleted})
	v := h.sync.View()
	assert.Equal(t, model.JobCompleted, v.Job.Status)
	assert.False(t, v.Settled, "re-fetch still outstanding")

	h.clock.Advance(2 * time.Second)
	v = h.sync.View()
	assert.True(t, v.Settled)
	assert.Equal(t, "https://acme.up.railway.app", model.Deref(v.Job.DeploymentURL))
}

func TestCompletion_FailedCorrectionStillSettles(t *testing.T) {
	t.Parallel()
	api := &testutil.FakeJobAPI{JobErr: apperr.NewUnavailable("backend down", nil)}
	h := newHarness(t, api, noRedirect())
	h.sync.ApplySnapshot(processingJob())
	h.sync.HandleEvent(stream.Event{Type: stream.EventJobCompleted})
	require.False(t, h.sync.View().Settled)

	h.clock.Advance(2 * time.Second)
	assert.Equal(t, 1, api.GetJobCalls())
	v := h.sync.View()
	assert.True(t, v.Settled)
	assert.Nil(t, v.Job.DeploymentURL)
}

func TestCompletion_WithURLIsSettledImmediately(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &testutil.FakeJobAPI{Jobs: []model.Job{processingJob()}}, noRedirect())
	h.sync.ApplySnapshot(processingJob())
	h.sync.HandleEvent(stream.Event{Type: stream.EventJobCompleted, Result: &stream.Result{RailwayDeploymentURL: "https://acme.up.railway.app"}})
	assert.True(t, h.sync.View().Settled)
}

func TestCompletion_RedirectsToResultOnce(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &testutil.FakeJobAPI{Jobs: []model.Job{processingJob()}}, progress.DefaultDelays())
	h.sync.ApplySnapshot(processingJob())
	h.sync.HandleEvent(stream.Event{Type: stream.EventJobCompleted, Result: &stream.Result{RailwayDeploymentURL: "https://acme.up.railway.app"}})

	h.clock.Advance(2 * time.Second)
	assert.Empty(t, h.nav.Destinations())
	h.clock.Advance(time.Second)
	h.clock.Advance(time.Minute)
	assert.Equal(t, []progress.Destination{{Kind: progress.Result, JobID: jobID}}, h.nav.Destinations())
}

// ─── Failure ───────────────────────────────────────────────────────────

func TestFailure_ErrorEventRedirectsOnce(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &testutil.FakeJobAPI{Jobs: []model.Job{processingJob()}}, noRedirect())
	s := h.start(t)

	s.Send(stream.Event{Type: stream.EventError, Message: "Deployment failed"})
	v := h.waitFor(t, func(v progress.View) bool { return v.Job.Status == model.JobFailed })
	require.NotNil(t, v.Job.ErrorMessage)
	assert.Equal(t, "Deployment failed", *v.Job.ErrorMessage)

	s.Send(stream.Event{Type: stream.EventError, Error: "again"})
	h.clock.Advance(1500 * time.Millisecond)
	assert.Empty(t, h.nav.Destinations(), "redirect waits so the failure is visible")

	h.clock.Advance(500 * time.Millisecond)
	h.clock.Advance(time.Minute)
	assert.Equal(t, []progress.Destination{{Kind: progress.ErrorScreen, JobID: jobID, Message: "Deployment failed"}}, h.nav.Destinations())
}

func TestFailure_SnapshotStatusFailed(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &testutil.FakeJobAPI{}, noRedirect())
	h.sync.ApplySnapshot(processingJob())
	h.sync.ApplySnapshot(model.Job{ID: jobID, Status: model.JobFailed})

	v := h.sync.View()
	assert.Equal(t, model.JobFailed, v.Job.Status)
	assert.Equal(t, "Website generation failed", model.Deref(v.Job.ErrorMessage))
	h.clock.Advance(2 * time.Second)
	assert.Len(t, h.nav.Destinations(), 1)
}

// ─── Reconnection ──────────────────────────────────────────────────────

func TestReconnect_OneAttemptAfterCloseWhileProcessing(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &testutil.FakeJobAPI{Jobs: []model.Job{processingJob()}}, noRedirect())
	s := h.start(t)

	s.End(apperr.NewTransport("live updates connection lost", errors.New("EOF")))
	h.waitFor(t, func(v progress.View) bool { return !v.Live })
	require.Equal(t, 1, h.clock.Pending())

	h.clock.Advance(2 * time.Second)
	assert.Equal(t, 1, h.dialer.DialCount())
	h.clock.Advance(time.Second)
	assert.Equal(t, 2, h.dialer.DialCount())
	assert.True(t, h.sync.View().Live)
	assert.Zero(t, h.clock.Pending())

	// The new connection gets its own single retry when it drops.
	h.dialer.Stream(1).End(nil)
	h.waitFor(t, func(v progress.View) bool { return !v.Live })
	h.clock.Advance(3 * time.Second)
	assert.Equal(t, 3, h.dialer.DialCount())
}

func TestReconnect_FailedAttemptIsNotRetried(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &testutil.FakeJobAPI{Jobs: []model.Job{processingJob()}}, noRedirect())
	h.dialer.Errs = []error{nil, apperr.NewTransport("dial", errors.New("refused"))}
	s := h.start(t)

	s.End(nil)
	h.waitFor(t, func(v progress.View) bool { return !v.Live })
	h.clock.Advance(3 * time.Second)
	assert.Equal(t, 2, h.dialer.DialCount())

	h.clock.Advance(time.Minute)
	assert.Equal(t, 2, h.dialer.DialCount())
	assert.Equal(t, model.JobProcessing, h.sync.View().Job.Status, "socket errors never fail the job")
}

func TestReconnect_InitialDialFailureRetriesOnce(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &testutil.FakeJobAPI{Jobs: []model.Job{processingJob()}}, noRedirect())
	h.dialer.Errs = []error{errors.New("refused")}

	require.NoError(t, h.sync.Start(context.Background()))
	assert.False(t, h.sync.View().Live)
	h.clock.Advance(3 * time.Second)
	assert.Equal(t, 2, h.dialer.DialCount())
	assert.True(t, h.sync.View().Live)
}

func TestReconnect_NotAttemptedOnceTerminal(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &testutil.FakeJobAPI{Jobs: []model.Job{processingJob()}}, noRedirect())
	s := h.start(t)

	s.Send(stream.Event{Type: stream.EventJobCompleted, Result: &stream.Result{RailwayDeploymentURL: "https://acme.up.railway.app"}})
	s.End(nil)
	h.waitFor(t, func(v progress.View) bool { return v.Job.Status == model.JobCompleted && !v.Live })

	assert.Zero(t, h.clock.Pending())
	h.clock.Advance(time.Minute)
	assert.Equal(t, 1, h.dialer.DialCount())
}

// ─── Teardown ──────────────────────────────────────────────────────────

func TestClose_ReleasesConnectionAndStopsTimers(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &testutil.FakeJobAPI{Jobs: []model.Job{processingJob()}}, noRedirect())
	s := h.start(t)

	s.Send(stream.Event{Type: stream.EventError, Message: "boom"})
	h.waitFor(t, func(v progress.View) bool { return v.Job.Status == model.JobFailed })

	require.NoError(t, h.sync.Close())
	require.NoError(t, h.sync.Close())
	assert.True(t, s.Closed())

	h.clock.Advance(time.Minute)
	assert.Empty(t, h.nav.Destinations())

	before := h.sync.View()
	h.sync.ApplySnapshot(model.Job{ID: jobID, Status: model.JobCompleted})
	h.sync.HandleEvent(stream.Event{Type: stream.EventProgressUpdate, StepName: model.StepDeployment, Timestamp: ts(99)})
	assert.Equal(t, before, h.sync.View())

	_, open := <-h.sync.Updates()
	for open {
		_, open = <-h.sync.Updates()
	}
	assert.Error(t, h.sync.Start(context.Background()))
}

func TestClose_DuringReconnectWait(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &testutil.FakeJobAPI{Jobs: []model.Job{processingJob()}}, noRedirect())
	s := h.start(t)
	s.End(nil)
	h.waitFor(t, func(v progress.View) bool { return !v.Live })

	require.NoError(t, h.sync.Close())
	h.clock.Advance(time.Minute)
	assert.Equal(t, 1, h.dialer.DialCount())
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	_, err := progress.New("", progress.Deps{})
	assert.True(t, apperr.IsInvalidInput(err))
	_, err = progress.New(jobID, progress.Deps{})
	assert.Error(t, err)
}
