// Package testutil provides shared test doubles for use across package tests.
// All dummies implement the corresponding interfaces from the production code,
// allowing injection into components under test without real I/O or side effects.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/raysh454/sitegen/internal/apperr"
	"github.com/raysh454/sitegen/internal/logging"
	"github.com/raysh454/sitegen/internal/model"
	"github.com/raysh454/sitegen/internal/progress"
	"github.com/raysh454/sitegen/internal/stream"
	"github.com/raysh454/sitegen/internal/webclient"
)

// ─── Logger ────────────────────────────────────────────────────────────

// DummyLogger implements logging.Logger with in-memory recording.
type DummyLogger struct {
	mu     sync.Mutex
	Errors []string
	Infos  []string
	Debugs []string
	Warns  []string
}

func (l *DummyLogger) Debug(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Debugs = append(l.Debugs, msg)
}

func (l *DummyLogger) Info(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Infos = append(l.Infos, msg)
}

func (l *DummyLogger) Warn(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Warns = append(l.Warns, msg)
}

func (l *DummyLogger) Error(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Errors = append(l.Errors, msg)
}

func (l *DummyLogger) With(_ ...logging.Field) logging.Logger { return l }

// WarnCount returns how many warnings were recorded.
func (l *DummyLogger) WarnCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Warns)
}

// ─── WebClient ─────────────────────────────────────────────────────────

// DummyWebClient implements webclient.WebClient.
// By default it returns an empty body with status 200.
// Set FailURLs[url] = true to force an error for a specific URL, or
// Status to return a different code.
type DummyWebClient struct {
	ResponseDelay time.Duration
	FailURLs      map[string]bool
	Status        int
	Body          []byte

	mu       sync.Mutex
	Requests []*webclient.Request
}

func (d *DummyWebClient) Do(ctx context.Context, req *webclient.Request) (*webclient.Response, error) {
	if d.ResponseDelay > 0 {
		select {
		case <-time.After(d.ResponseDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	d.Requests = append(d.Requests, req)
	d.mu.Unlock()

	if d.FailURLs != nil && d.FailURLs[req.URL] {
		return nil, &errString{"dummy request fail for " + req.URL}
	}

	status := d.Status
	if status == 0 {
		status = 200
	}
	return &webclient.Response{
		Request:    req,
		Body:       d.Body,
		StatusCode: status,
		FetchedAt:  time.Now(),
	}, nil
}

func (d *DummyWebClient) Close() error { return nil }

// Recorded returns a copy of the requests seen so far.
func (d *DummyWebClient) Recorded() []*webclient.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*webclient.Request(nil), d.Requests...)
}

// ─── Clock ─────────────────────────────────────────────────────────────

// FakeClock implements progress.Clock. Timers fire only from Advance, in
// deadline order, on the caller's goroutine.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *FakeClock
	at      time.Time
	seq     int
	f       func()
	stopped bool
	fired   bool
}

// NewFakeClock starts at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) AfterFunc(d time.Duration, f func()) progress.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{clock: c, at: c.now.Add(d), seq: c.seq, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward by d and runs every timer that came due,
// including timers scheduled by the callbacks themselves.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next := c.nextDueLocked(target)
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		next.fired = true
		if next.at.After(c.now) {
			c.now = next.at
		}
		c.mu.Unlock()
		next.f()
	}
}

func (c *FakeClock) nextDueLocked(limit time.Time) *fakeTimer {
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(limit) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].at.Equal(due[j].at) {
			return due[i].seq < due[j].seq
		}
		return due[i].at.Before(due[j].at)
	})
	return due[0]
}

// Pending reports how many timers are waiting to fire.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// ─── Stream ────────────────────────────────────────────────────────────

// FakeStream implements stream.Stream. Tests push events with Send and end
// the connection from the server side with End.
type FakeStream struct {
	events chan stream.Event
	done   chan struct{}
	once   sync.Once

	mu     sync.Mutex
	err    error
	closed bool
}

// NewFakeStream returns an open stream.
func NewFakeStream() *FakeStream {
	return &FakeStream{
		events: make(chan stream.Event, 64),
		done:   make(chan struct{}),
	}
}

// Send delivers ev to the reader.
func (s *FakeStream) Send(ev stream.Event) { s.events <- ev }

// End finishes the stream as if the server closed it with err.
func (s *FakeStream) End(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.events)
		close(s.done)
	})
}

func (s *FakeStream) Events() <-chan stream.Event { return s.events }
func (s *FakeStream) Done() <-chan struct{}       { return s.done }

func (s *FakeStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *FakeStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.End(nil)
	return nil
}

// Closed reports whether the client closed the stream.
func (s *FakeStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// DialCall records one Dial.
type DialCall struct {
	JobID string
	Token string
}

// FakeDialer implements progress.StreamDialer. Each Dial returns a fresh
// FakeStream unless Errs holds an error at the attempt's index.
type FakeDialer struct {
	mu      sync.Mutex
	Errs    []error
	Calls   []DialCall
	streams []*FakeStream
}

func (d *FakeDialer) Dial(_ context.Context, jobID, token string) (stream.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	idx := len(d.Calls)
	d.Calls = append(d.Calls, DialCall{JobID: jobID, Token: token})
	if idx < len(d.Errs) && d.Errs[idx] != nil {
		return nil, d.Errs[idx]
	}
	s := NewFakeStream()
	d.streams = append(d.streams, s)
	return s, nil
}

// DialCount is the number of Dial attempts.
func (d *FakeDialer) DialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Calls)
}

// Stream returns the i-th successfully opened stream, or nil.
func (d *FakeDialer) Stream(i int) *FakeStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 || i >= len(d.streams) {
		return nil
	}
	return d.streams[i]
}

// ─── Job API ───────────────────────────────────────────────────────────

// FakeJobAPI implements progress.JobAPI. GetJob returns Jobs[n] for the
// n-th call, repeating the last entry; JobErr overrides everything.
type FakeJobAPI struct {
	mu       sync.Mutex
	Jobs     []model.Job
	JobErr   error
	Steps    []model.ProgressStep
	StepsErr error

	getJobCalls int
}

func (f *FakeJobAPI) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.getJobCalls
	f.getJobCalls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.JobErr != nil {
		return nil, f.JobErr
	}
	if len(f.Jobs) == 0 {
		return nil, apperr.NewNotFound("job not found", nil)
	}
	if n >= len(f.Jobs) {
		n = len(f.Jobs) - 1
	}
	job := f.Jobs[n].Clone()
	if job.ID == "" {
		job.ID = jobID
	}
	return &job, nil
}

func (f *FakeJobAPI) GetJobProgress(_ context.Context, _ string) ([]model.ProgressStep, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StepsErr != nil {
		return nil, f.StepsErr
	}
	return append([]model.ProgressStep(nil), f.Steps...), nil
}

// GetJobCalls is the number of GetJob calls so far.
func (f *FakeJobAPI) GetJobCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getJobCalls
}

// ─── Navigation & hints ────────────────────────────────────────────────

// DummyNavigator records requested destinations.
type DummyNavigator struct {
	mu   sync.Mutex
	Seen []progress.Destination
}

func (n *DummyNavigator) Navigate(d progress.Destination) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Seen = append(n.Seen, d)
}

// Destinations returns a copy of what was requested.
func (n *DummyNavigator) Destinations() []progress.Destination {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]progress.Destination(nil), n.Seen...)
}

// DummyHints implements progress.HintClearer.
type DummyHints struct {
	mu        sync.Mutex
	Forgotten []string
	Err       error
}

func (h *DummyHints) ForgetJob(_ context.Context, jobID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Forgotten = append(h.Forgotten, jobID)
	return h.Err
}

// ─── helpers ───────────────────────────────────────────────────────────

type errString struct{ s string }

func (e *errString) Error() string { return e.s }
