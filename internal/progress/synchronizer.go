// Package progress reconciles a job's REST snapshot, its step history and
// its live event stream into one monotonically advancing view.
package progress

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/raysh454/sitegen/internal/apperr"
	"github.com/raysh454/sitegen/internal/logging"
	"github.com/raysh454/sitegen/internal/model"
	"github.com/raysh454/sitegen/internal/stream"
)

// JobAPI is the pull side of the synchronizer.
type JobAPI interface {
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	GetJobProgress(ctx context.Context, jobID string) ([]model.ProgressStep, error)
}

// StreamDialer opens the push side.
type StreamDialer interface {
	Dial(ctx context.Context, jobID, token string) (stream.Stream, error)
}

// HintClearer forgets a locally cached active-job hint.
type HintClearer interface {
	ForgetJob(ctx context.Context, jobID string) error
}

// Deps are the synchronizer's collaborators. API and Dialer are required.
type Deps struct {
	API       JobAPI
	Dialer    StreamDialer
	Tokens    oauth2.TokenSource
	Navigator Navigator
	Hints     HintClearer
	Clock     Clock
	Logger    logging.Logger
}

// Delays are the fixed waits of the progress view.
type Delays struct {
	Reconnect          time.Duration
	Correction         time.Duration
	FailureRedirect    time.Duration
	CompletionRedirect time.Duration // 0 disables the completion redirect
}

// DefaultDelays mirror the browser client.
func DefaultDelays() Delays {
	return Delays{
		Reconnect:          3 * time.Second,
		Correction:         2 * time.Second,
		FailureRedirect:    2 * time.Second,
		CompletionRedirect: 3 * time.Second,
	}
}

// Option customizes a Synchronizer.
type Option func(*Synchronizer)

// WithDelays replaces all delays.
func WithDelays(d Delays) Option {
	return func(s *Synchronizer) { s.delays = d }
}

// WithUpdateBuffer sets the capacity of the Updates channel.
func WithUpdateBuffer(n int) Option {
	return func(s *Synchronizer) {
		if n > 0 {
			s.updates = make(chan View, n)
		}
	}
}

// View is a consistent copy of the synchronizer state.
type View struct {
	Job   model.Job
	Steps []model.ProgressStep
	Live  bool

	// Settled is set once the job is terminal and no re-fetch is still
	// outstanding, so Job will not change again.
	Settled bool
}

// Synchronizer owns one job-viewing session.
type Synchronizer struct {
	jobID  string
	api    JobAPI
	dialer StreamDialer
	tokens oauth2.TokenSource
	nav    Navigator
	hints  HintClearer
	clock  Clock
	logger logging.Logger
	delays Delays

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	closed  bool
	job     model.Job
	steps   *StepLog
	conn    stream.Stream
	updates chan View

	reconnectTimer  Timer
	correctionTimer Timer
	redirectTimer   Timer

	correctionScheduled bool
	correctionPending   bool
	redirectScheduled   bool
}

// New builds a synchronizer for jobID. Nothing happens until Start.
func New(jobID string, deps Deps, opts ...Option) (*Synchronizer, error) {
	if jobID == "" {
		return nil, apperr.NewInvalidInput("job id is required", nil)
	}
	if deps.API == nil || deps.Dialer == nil {
		return nil, errors.New("progress: API and Dialer are required")
	}
	s := &Synchronizer{
		jobID:   jobID,
		api:     deps.API,
		dialer:  deps.Dialer,
		tokens:  deps.Tokens,
		nav:     deps.Navigator,
		hints:   deps.Hints,
		clock:   deps.Clock,
		logger:  deps.Logger,
		delays:  DefaultDelays(),
		job:     model.Job{ID: jobID},
		steps:   NewStepLog(),
		updates: make(chan View, 16),
	}
	if s.clock == nil {
		s.clock = RealClock{}
	}
	if s.logger == nil {
		s.logger = logging.Nop()
	}
	if s.nav == nil {
		s.nav = NavigatorFunc(func(Destination) {})
	}
	s.logger = s.logger.With(
		logging.Field{Key: "component", Value: "progress"},
		logging.Field{Key: "job_id", Value: jobID},
	)
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

// Start fetches the job snapshot and step history, then opens the live
// connection. A missing job clears the active-job hint, navigates to the
// dashboard and returns a not-found error.
func (s *Synchronizer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("progress: synchronizer is closed")
	}
	if s.started {
		s.mu.Unlock()
		return errors.New("progress: already started")
	}
	s.started = true
	s.mu.Unlock()

	ctx, stop := s.sessionContext(ctx)
	defer stop()

	job, err := s.api.GetJob(ctx, s.jobID)
	if err != nil {
		if apperr.IsNotFound(err) {
			s.jobGone(ctx)
		}
		return fmt.Errorf("loading job %s: %w", s.jobID, err)
	}
	s.ApplySnapshot(*job)

	history, err := s.api.GetJobProgress(ctx, s.jobID)
	if err != nil {
		s.logger.Warn("could not load step history", logging.Err(err))
	} else {
		s.ApplyHistory(history)
	}

	s.mu.Lock()
	terminal := s.job.Status.IsTerminal()
	s.mu.Unlock()
	if terminal {
		s.logger.Debug("job already finished; not opening live updates")
		return nil
	}
	s.connect(true)
	return nil
}

// sessionContext ties a caller context to the session lifetime so Close
// aborts in-flight fetches.
func (s *Synchronizer) sessionContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// ApplySnapshot merges a REST job record. Status only moves forward, the
// percentage never decreases, and a terminal job is left untouched.
func (s *Synchronizer) ApplySnapshot(job model.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.job.Status.IsTerminal() {
		return
	}

	if job.CompanyName != "" {
		s.job.CompanyName = job.CompanyName
	}
	if !job.CreatedAt.IsZero() {
		s.job.CreatedAt = job.CreatedAt
	}
	if job.UpdatedAt.After(s.job.UpdatedAt) {
		s.job.UpdatedAt = job.UpdatedAt
	}
	if job.CurrentStep != "" {
		s.job.CurrentStep = job.CurrentStep
	}
	s.raisePercentage(job.ProgressPercentage)
	if job.DeploymentURL != nil {
		s.job.DeploymentURL = model.StringPtr(*job.DeploymentURL)
	}
	if job.RepoURL != nil {
		s.job.RepoURL = model.StringPtr(*job.RepoURL)
	}
	if job.ErrorMessage != nil {
		s.job.ErrorMessage = model.StringPtr(*job.ErrorMessage)
	}

	switch {
	case job.Status == model.JobFailed:
		s.fail(model.Deref(job.ErrorMessage))
	case job.Status == model.JobCompleted:
		s.complete()
	case s.job.Status.CanTransitionTo(job.Status):
		s.job.Status = job.Status
	}
	s.publish()
}

// ApplyHistory merges a fetched step list by the keyed timestamp rule.
func (s *Synchronizer) ApplyHistory(steps []model.ProgressStep) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	changed := false
	for _, st := range steps {
		if s.steps.Merge(st) {
			changed = true
		}
	}
	if changed {
		s.publish()
	}
}

// HandleEvent applies one live event.
func (s *Synchronizer) HandleEvent(ev stream.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	switch ev.Type {
	case stream.EventProgressUpdate, stream.EventStepCompleted:
		if step, ok := ev.Step(); ok {
			if step.Timestamp.IsZero() {
				step.Timestamp = model.At(s.clock.Now())
			}
			s.steps.Ingest(step)
		}
		if s.job.Status.IsTerminal() {
			break
		}
		if ev.ProgressPercentage != nil {
			s.raisePercentage(*ev.ProgressPercentage)
		}
		if ev.StepName != "" {
			s.job.CurrentStep = string(ev.StepName)
		}
		if s.job.Status == "" || s.job.Status == model.JobQueued {
			s.job.Status = model.JobProcessing
		}

	case stream.EventJobCompleted:
		if s.job.Status.IsTerminal() {
			break
		}
		if ev.Result != nil {
			if ev.Result.RailwayDeploymentURL != "" {
				s.job.DeploymentURL = model.StringPtr(ev.Result.RailwayDeploymentURL)
			}
			if ev.Result.GithubRepoURL != "" {
				s.job.RepoURL = model.StringPtr(ev.Result.GithubRepoURL)
			}
		}
		s.complete()
		if !s.job.HasDeploymentURL() {
			s.scheduleCorrection()
		}

	case stream.EventError:
		if s.job.Status.IsTerminal() {
			break
		}
		s.fail(ev.FailureMessage())

	default:
		return
	}
	s.publish()
}

// View returns a copy of the current state.
func (s *Synchronizer) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Updates delivers a View after every change. Slow readers miss
// intermediate views; the channel is closed by Close.
func (s *Synchronizer) Updates() <-chan View { return s.updates }

// Close tears down the live connection and pending timers. No state change
// is applied afterwards. Safe to call more than once.
func (s *Synchronizer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for _, t := range []Timer{s.reconnectTimer, s.correctionTimer, s.redirectTimer} {
		if t != nil {
			t.Stop()
		}
	}
	conn := s.conn
	s.conn = nil
	close(s.updates)
	s.mu.Unlock()

	s.cancel()
	var err error
	if conn != nil {
		err = conn.Close()
	}
	s.wg.Wait()
	s.logger.Debug("progress session closed")
	return err
}

// ─── Internal state transitions (s.mu held) ────────────────────────────

func (s *Synchronizer) raisePercentage(p int) {
	if p = model.ClampPercentage(p); p > s.job.ProgressPercentage {
		s.job.ProgressPercentage = p
	}
}

func (s *Synchronizer) complete() {
	s.job.Status = model.JobCompleted
	s.job.ProgressPercentage = 100
	s.logger.Info("job completed", logging.Field{Key: "deployment_url", Value: model.Deref(s.job.DeploymentURL)})
	if s.delays.CompletionRedirect > 0 {
		s.scheduleRedirect(Result, s.delays.CompletionRedirect, "")
	}
}

func (s *Synchronizer) fail(msg string) {
	if msg == "" {
		msg = model.Deref(s.job.ErrorMessage)
	}
	if msg == "" {
		msg = "Website generation failed"
	}
	s.job.Status = model.JobFailed
	s.job.ErrorMessage = model.StringPtr(msg)
	s.logger.Warn("job failed", logging.Field{Key: "error", Value: msg})
	s.scheduleRedirect(ErrorScreen, s.delays.FailureRedirect, msg)
}

func (s *Synchronizer) scheduleRedirect(kind DestinationKind, delay time.Duration, msg string) {
	if s.redirectScheduled {
		return
	}
	s.redirectScheduled = true
	dest := Destination{Kind: kind, JobID: s.jobID, Message: msg}
	s.redirectTimer = s.clock.AfterFunc(delay, func() {
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}
		s.nav.Navigate(dest)
	})
}

func (s *Synchronizer) scheduleCorrection() {
	if s.correctionScheduled {
		return
	}
	s.correctionScheduled = true
	s.correctionPending = true
	s.logger.Debug("completion lacks deployment url; scheduling re-fetch")
	s.correctionTimer = s.clock.AfterFunc(s.delays.Correction, s.correct)
}

// correct re-fetches the authoritative job record after a completion event
// and applies its URLs and error text even though the job is terminal.
func (s *Synchronizer) correct() {
	job, err := s.api.GetJob(s.ctx, s.jobID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.correctionPending = false
	if err != nil {
		s.logger.Warn("completion re-fetch failed", logging.Err(err))
		s.publish()
		return
	}
	if job.DeploymentURL != nil {
		s.job.DeploymentURL = model.StringPtr(*job.DeploymentURL)
	}
	if job.RepoURL != nil {
		s.job.RepoURL = model.StringPtr(*job.RepoURL)
	}
	if job.ErrorMessage != nil {
		s.job.ErrorMessage = model.StringPtr(*job.ErrorMessage)
	}
	if job.UpdatedAt.After(s.job.UpdatedAt) {
		s.job.UpdatedAt = job.UpdatedAt
	}
	s.publish()
}

func (s *Synchronizer) publish() {
	select {
	case s.updates <- s.viewLocked():
	default:
	}
}

func (s *Synchronizer) viewLocked() View {
	return View{
		Job:     s.job.Clone(),
		Steps:   s.steps.Steps(),
		Live:    s.conn != nil,
		Settled: s.job.Status.IsTerminal() && !s.correctionPending,
	}
}

// ─── Live connection ───────────────────────────────────────────────────

// connect dials the stream. When retry is set a failed dial schedules the
// single reconnect attempt; otherwise the failure is only logged.
func (s *Synchronizer) connect(retry bool) {
	token := ""
	if s.tokens != nil {
		tok, err := s.tokens.Token()
		if err != nil {
			s.logger.Warn("no session token for live updates", logging.Err(err))
		} else {
			token = tok.AccessToken
		}
	}

	conn, err := s.dialer.Dial(s.ctx, s.jobID, token)
	if err != nil {
		s.logger.Warn("live updates unavailable", logging.Err(err))
		if retry {
			s.mu.Lock()
			s.scheduleReconnect()
			s.mu.Unlock()
		}
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.conn = conn
	s.wg.Add(1)
	s.publish()
	s.mu.Unlock()

	go s.watch(conn)
}

func (s *Synchronizer) watch(conn stream.Stream) {
	defer s.wg.Done()
	for ev := range conn.Events() {
		s.HandleEvent(ev)
	}
	<-conn.Done()
	s.streamClosed(conn, conn.Err())
}

func (s *Synchronizer) streamClosed(conn stream.Stream, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.conn != conn {
		return
	}
	s.conn = nil
	if err != nil {
		s.logger.Warn("live updates connection lost", logging.Err(err))
	}
	if !s.job.Status.IsActive() {
		s.logger.Debug("live updates closed after job finished")
		s.publish()
		return
	}
	s.scheduleReconnect()
	s.publish()
}

func (s *Synchronizer) scheduleReconnect() {
	if s.closed || s.reconnectTimer != nil {
		return
	}
	s.logger.Info("scheduling live updates reconnect", logging.Field{Key: "delay", Value: s.delays.Reconnect.String()})
	s.reconnectTimer = s.clock.AfterFunc(s.delays.Reconnect, func() {
		s.mu.Lock()
		s.reconnectTimer = nil
		skip := s.closed || s.conn != nil || s.job.Status.IsTerminal()
		s.mu.Unlock()
		if skip {
			return
		}
		s.connect(false)
	})
}

func (s *Synchronizer) jobGone(ctx context.Context) {
	s.logger.Info("job not found; returning to dashboard")
	if s.hints != nil {
		if err := s.hints.ForgetJob(ctx, s.jobID); err != nil {
			s.logger.Warn("could not clear active job hint", logging.Err(err))
		}
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if !closed {
		s.nav.Navigate(Destination{Kind: Dashboard, JobID: s.jobID})
	}
}
