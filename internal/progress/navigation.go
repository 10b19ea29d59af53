package progress

// DestinationKind names where the progress view sends the user.
type DestinationKind string

const (
	// Dashboard is used when the job no longer exists.
	Dashboard DestinationKind = "dashboard"
	// ErrorScreen follows a failed job.
	ErrorScreen DestinationKind = "error"
	// Result follows a completed job.
	Result DestinationKind = "result"
)

// Destination is a navigation side effect requested by the synchronizer.
type Destination struct {
	Kind    DestinationKind
	JobID   string
	Message string
}

// Navigator performs navigation side effects. Navigate is called from timer
// goroutines and must not block for long.
type Navigator interface {
	Navigate(Destination)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(Destination)

func (f NavigatorFunc) Navigate(d Destination) { f(d) }
