package progress

import "github.com/raysh454/sitegen/internal/model"

// StepLog is the displayed step timeline of one job: at most one entry per
// step name, kept in first-seen order. It is not safe for concurrent use;
// the Synchronizer guards it.
type StepLog struct {
	order  []model.StepName
	byName map[model.StepName]model.ProgressStep
}

// NewStepLog returns a log seeded with steps via Merge.
func NewStepLog(steps ...model.ProgressStep) *StepLog {
	l := &StepLog{byName: make(map[model.StepName]model.ProgressStep)}
	for _, s := range steps {
		l.Merge(s)
	}
	return l
}

// Merge records step keyed by its name. A new name is appended; an existing
// entry is replaced only when step's timestamp is strictly later. It reports
// whether the log changed.
func (l *StepLog) Merge(step model.ProgressStep) bool {
	if step.StepName == "" {
		return false
	}
	cur, ok := l.byName[step.StepName]
	if !ok {
		l.order = append(l.order, step.StepName)
		l.byName[step.StepName] = step
		return true
	}
	if !step.Timestamp.After(cur.Timestamp) {
		return false
	}
	l.byName[step.StepName] = step
	return true
}

// Ingest is Merge for raw stream events: a step whose (name, status,
// message) matches a stored entry is dropped before the keyed merge.
func (l *StepLog) Ingest(step model.ProgressStep) bool {
	if cur, ok := l.byName[step.StepName]; ok && cur.SameReport(step) {
		return false
	}
	return l.Merge(step)
}

// Get returns the stored entry for name.
func (l *StepLog) Get(name model.StepName) (model.ProgressStep, bool) {
	s, ok := l.byName[name]
	return s, ok
}

// Len is the number of distinct steps.
func (l *StepLog) Len() int { return len(l.order) }

// Steps returns a copy of the timeline in first-seen order.
func (l *StepLog) Steps() []model.ProgressStep {
	out := make([]model.ProgressStep, 0, len(l.order))
	for _, name := range l.order {
		out = append(out, l.byName[name])
	}
	return out
}
