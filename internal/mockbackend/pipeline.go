package mockbackend

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/raysh454/sitegen/internal/logging"
	"github.com/raysh454/sitegen/internal/model"
	"github.com/raysh454/sitegen/internal/progress"
	"github.com/raysh454/sitegen/internal/stream"
)

type mockJob struct {
	job        model.Job
	owner      string
	steps      *progress.StepLog
	subs       map[chan stream.Event]struct{}
	final      *stream.Event
	finishedAt time.Time
}

// Pipeline simulates the generation backend: each job walks the fixed step
// set on a ticker and broadcasts progress events to its subscribers.
type Pipeline struct {
	cfg    Config
	logger logging.Logger
	now    func() time.Time

	mu      sync.Mutex
	jobs    map[string]*mockJob
	order   []string
	cancels map[string]context.CancelFunc
	users   map[string]model.User
	closed  bool
	wg      sync.WaitGroup
}

// NewPipeline returns an idle pipeline.
func NewPipeline(cfg Config, logger logging.Logger) *Pipeline {
	if logger == nil {
		logger = logging.Nop()
	}
	if cfg.StepInterval <= 0 {
		cfg.StepInterval = DefaultConfig().StepInterval
	}
	return &Pipeline{
		cfg:     cfg,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		jobs:    make(map[string]*mockJob),
		cancels: make(map[string]context.CancelFunc),
		users:   make(map[string]model.User),
	}
}

// Touch records owner as a known user.
func (p *Pipeline) Touch(owner string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.touchLocked(owner)
}

func (p *Pipeline) touchLocked(owner string) model.User {
	u, ok := p.users[owner]
	if !ok {
		name := slug(owner)
		u = model.User{
			ID:        uuid.NewString(),
			Email:     name + "@sitegen.local",
			Name:      name,
			Role:      "user",
			CreatedAt: model.At(p.now()),
		}
		if p.cfg.AdminToken != "" && owner == p.cfg.AdminToken {
			u.Role = "admin"
		}
		p.users[owner] = u
	}
	return u
}

// StartJob queues a job for owner and starts simulating it.
func (p *Pipeline) StartJob(req model.GenerateRequest, owner string) (model.Job, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return model.Job{}, fmt.Errorf("pipeline is closed")
	}
	now := p.now()
	mj := &mockJob{
		job: model.Job{
			ID:          uuid.NewString(),
			CompanyName: req.BusinessInfo.CompanyName,
			Status:      model.JobQueued,
			CreatedAt:   model.At(now),
			UpdatedAt:   model.At(now),
		},
		owner: owner,
		steps: progress.NewStepLog(),
		subs:  make(map[chan stream.Event]struct{}),
	}
	p.touchLocked(owner)
	p.jobs[mj.job.ID] = mj
	p.order = append(p.order, mj.job.ID)

	ctx, cancel := context.WithCancel(context.Background())
	p.cancels[mj.job.ID] = cancel
	p.wg.Add(1)
	job := mj.job.Clone()
	p.mu.Unlock()

	p.logger.Info("mock job queued", logging.Field{Key: "job_id", Value: job.ID}, logging.Field{Key: "company", Value: job.CompanyName})
	go p.run(ctx, job.ID, job.CompanyName)
	return job, nil
}

func (p *Pipeline) run(ctx context.Context, jobID, company string) {
	defer p.wg.Done()
	defer func() {
		p.mu.Lock()
		delete(p.cancels, jobID)
		p.mu.Unlock()
	}()

	t := time.NewTicker(p.cfg.StepInterval)
	defer t.Stop()
	wait := func() bool {
		select {
		case <-ctx.Done():
			return false
		case <-t.C:
			return true
		}
	}

	if !wait() {
		return
	}
	n := len(model.PipelineSteps)
	for i, name := range model.PipelineSteps {
		p.emit(jobID, stream.Event{
			Type:               stream.EventProgressUpdate,
			ProgressPercentage: intPtr(i * 100 / n),
			StepName:           name,
			StepStatus:         model.StepStarted,
			Message:            name.Title() + " started",
			Timestamp:          model.At(p.now()),
		})
		if !wait() {
			return
		}
		if name == p.cfg.FailAtStep {
			p.fail(jobID, name)
			return
		}
		p.emit(jobID, stream.Event{
			Type:               stream.EventStepCompleted,
			ProgressPercentage: intPtr(min((i+1)*100/n, 99)),
			StepName:           name,
			StepStatus:         model.StepCompleted,
			Message:            name.Title() + " completed",
			Timestamp:          model.At(p.now()),
		})
	}
	p.complete(jobID, company)
}

// emit applies a progress event to the job record and broadcasts it.
func (p *Pipeline) emit(jobID string, ev stream.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	mj, ok := p.jobs[jobID]
	if !ok {
		return
	}
	mj.job.Status = model.JobProcessing
	if ev.ProgressPercentage != nil {
		mj.job.ProgressPercentage = *ev.ProgressPercentage
	}
	if step, ok := ev.Step(); ok {
		mj.job.CurrentStep = string(step.StepName)
		mj.steps.Merge(step)
	}
	mj.job.UpdatedAt = model.At(p.now())
	p.broadcastLocked(mj, ev)
}

func (p *Pipeline) fail(jobID string, at model.StepName) {
	p.mu.Lock()
	defer p.mu.Unlock()
	mj, ok := p.jobs[jobID]
	if !ok {
		return
	}
	msg := p.cfg.FailMessage
	if msg == "" {
		msg = at.Title() + " failed"
	}
	now := p.now()
	mj.steps.Merge(model.ProgressStep{StepName: at, StepStatus: model.StepFailed, Message: msg, Timestamp: model.At(now)})
	mj.job.Status = model.JobFailed
	mj.job.ErrorMessage = model.StringPtr(msg)
	mj.job.UpdatedAt = model.At(now)
	mj.finishedAt = now
	ev := stream.Event{Type: stream.EventError, Message: msg, Timestamp: model.At(now)}
	p.finishLocked(mj, ev)
	p.logger.Info("mock job failed", logging.Field{Key: "job_id", Value: jobID}, logging.Field{Key: "step", Value: string(at)})
}

func (p *Pipeline) complete(jobID, company string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	mj, ok := p.jobs[jobID]
	if !ok {
		return
	}
	name := slug(company)
	deployURL := fmt.Sprintf("https://%s.up.railway.app", name)
	repoURL := fmt.Sprintf("https://github.com/sitegen-mock/%s", name)

	now := p.now()
	mj.job.Status = model.JobCompleted
	mj.job.ProgressPercentage = 100
	mj.job.DeploymentURL = model.StringPtr(deployURL)
	mj.job.RepoURL = model.StringPtr(repoURL)
	mj.job.UpdatedAt = model.At(now)
	mj.finishedAt = now

	result := &stream.Result{GithubRepoURL: repoURL, RailwayDeploymentURL: deployURL}
	if p.cfg.OmitDeploymentURL {
		result.RailwayDeploymentURL = ""
	}
	p.finishLocked(mj, stream.Event{Type: stream.EventJobCompleted, Result: result, Timestamp: model.At(now)})
	p.logger.Info("mock job completed", logging.Field{Key: "job_id", Value: jobID})
}

// finishLocked delivers the terminal event and ends every subscription.
func (p *Pipeline) finishLocked(mj *mockJob, ev stream.Event) {
	mj.final = &ev
	p.broadcastLocked(mj, ev)
	for ch := range mj.subs {
		close(ch)
		delete(mj.subs, ch)
	}
}

func (p *Pipeline) broadcastLocked(mj *mockJob, ev stream.Event) {
	for ch := range mj.subs {
		// Non-blocking send; drop if the subscriber is behind.
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe returns the live events of jobID. A finished job yields its
// terminal event and a closed channel. The returned func unsubscribes and
// is safe to call more than once.
func (p *Pipeline) Subscribe(jobID, owner string) (<-chan stream.Event, func(), bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	mj, ok := p.jobs[jobID]
	if !ok || !p.visible(mj, owner) {
		return nil, nil, false
	}
	ch := make(chan stream.Event, 32)
	if mj.final != nil {
		ch <- *mj.final
		close(ch)
		return ch, func() {}, true
	}
	mj.subs[ch] = struct{}{}
	unsubscribe := func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if _, ok := mj.subs[ch]; ok {
			delete(mj.subs, ch)
			close(ch)
		}
	}
	return ch, unsubscribe, true
}

func (p *Pipeline) visible(mj *mockJob, owner string) bool {
	return owner == "" || mj.owner == owner
}

// Get returns a snapshot of jobID as seen by owner ("" sees every job).
func (p *Pipeline) Get(jobID, owner string) (model.Job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	mj, ok := p.jobs[jobID]
	if !ok || !p.visible(mj, owner) {
		return model.Job{}, false
	}
	return mj.job.Clone(), true
}

// Steps returns the recorded step history of jobID.
func (p *Pipeline) Steps(jobID, owner string) ([]model.ProgressStep, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	mj, ok := p.jobs[jobID]
	if !ok || !p.visible(mj, owner) {
		return nil, false
	}
	return mj.steps.Steps(), true
}

// List pages through owner's jobs, newest first.
func (p *Pipeline) List(owner string, f model.JobListFilter) model.JobList {
	p.mu.Lock()
	defer p.mu.Unlock()
	var matched []model.Job
	for i := len(p.order) - 1; i >= 0; i-- {
		mj := p.jobs[p.order[i]]
		if mj == nil || !p.visible(mj, owner) {
			continue
		}
		if f.Status != "" && mj.job.Status != f.Status {
			continue
		}
		matched = append(matched, mj.job.Clone())
	}
	out := model.JobList{Total: len(matched), Limit: f.Limit, Offset: f.Offset}
	start := min(max(f.Offset, 0), len(matched))
	end := len(matched)
	if f.Limit > 0 {
		end = min(start+f.Limit, end)
	}
	out.Jobs = append([]model.Job{}, matched[start:end]...)
	return out
}

// Delete cancels and forgets jobID.
func (p *Pipeline) Delete(jobID, owner string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	mj, ok := p.jobs[jobID]
	if !ok || !p.visible(mj, owner) {
		return false
	}
	if cancel := p.cancels[jobID]; cancel != nil {
		cancel()
	}
	for ch := range mj.subs {
		close(ch)
		delete(mj.subs, ch)
	}
	delete(p.jobs, jobID)
	for i, id := range p.order {
		if id == jobID {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return true
}

// Users pages through known users ordered by creation.
func (p *Pipeline) Users(limit, offset int) model.UserList {
	p.mu.Lock()
	defer p.mu.Unlock()
	counts := make(map[string]int)
	for _, mj := range p.jobs {
		counts[mj.owner]++
	}
	users := make([]model.User, 0, len(p.users))
	for owner, u := range p.users {
		u.JobCount = counts[owner]
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt.Time) {
			return users[i].Email < users[j].Email
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt.Time)
	})
	out := model.UserList{Total: len(users), Limit: limit, Offset: offset}
	start := min(max(offset, 0), len(users))
	end := len(users)
	if limit > 0 {
		end = min(start+limit, end)
	}
	out.Users = append([]model.User{}, users[start:end]...)
	return out
}

// Stats summarises every job.
func (p *Pipeline) Stats() model.AdminStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := model.AdminStats{
		TotalUsers:   len(p.users),
		TotalJobs:    len(p.jobs),
		JobsByStatus: map[string]int{},
	}
	dayAgo := p.now().Add(-24 * time.Hour)
	var finished, completed int
	var durations time.Duration
	for _, mj := range p.jobs {
		st.JobsByStatus[string(mj.job.Status)]++
		if mj.job.CreatedAt.Time.After(dayAgo) {
			st.JobsLast24h++
		}
		if mj.job.Status.IsActive() {
			st.ActiveJobs++
		}
		if !mj.finishedAt.IsZero() {
			finished++
			durations += mj.finishedAt.Sub(mj.job.CreatedAt.Time)
			if mj.job.Status == model.JobCompleted {
				completed++
			}
		}
	}
	if finished > 0 {
		st.SuccessRate = float64(completed) / float64(finished) * 100
		st.AvgDurationSec = durations.Seconds() / float64(finished)
	}
	return st
}

// Close cancels running jobs and waits for their goroutines.
func (p *Pipeline) Close() {
	p.mu.Lock()
	p.closed = true
	for _, cancel := range p.cancels {
		cancel()
	}
	for _, mj := range p.jobs {
		for ch := range mj.subs {
			close(ch)
			delete(mj.subs, ch)
		}
	}
	p.mu.Unlock()
	p.wg.Wait()
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// slug turns a company name into a subdomain-safe label. Accents are folded
// ("Café" becomes "cafe") before anything non-alphanumeric collapses to "-".
func slug(s string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err == nil {
		s = folded
	}
	s = strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "-"), "-")
	if s == "" {
		return "site"
	}
	if len(s) > 40 {
		s = strings.TrimRight(s[:40], "-")
	}
	return s
}

func intPtr(v int) *int { return &v }
