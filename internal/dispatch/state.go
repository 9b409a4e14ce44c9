package dispatch

// State is a step of one collection's backup or restore.
type State int

const (
	// Submitted: an attempt is being sent to the cluster.
	Submitted State = iota
	// Polling: the cluster accepted the attempt; waiting for a terminal status.
	Polling
	// Succeeded: the cluster reported the attempt completed.
	Succeeded
	// Failed: the attempt was refused, failed remotely or timed out.
	Failed
	// Exhausted: every allowed attempt failed.
	Exhausted
)

func (s State) String() string {
	switch s {
	case Submitted:
		return "submitted"
	case Polling:
		return "polling"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Transition describes a state change, reported to Dispatcher.Observe.
type Transition struct {
	Collection string
	Attempt    int
	Name       string
	RequestID  string
	From       State
	To         State
	Err        error
}
