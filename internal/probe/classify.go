package probe

import "v6probe/internal/model"

// State is where a slot is in its lifecycle.
type State int

const (
	Unset State = iota
	Pending
	Settled
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Settled:
		return "settled"
	}
	return "unset"
}

// Result is a slot's state and, once settled, its outcome.
type Result struct {
	State   State
	Outcome Outcome
}

// Classify maps a slot result to its report value. It never recomputes
// timing: the fetcher's own success/timeout verdict is authoritative. A slot
// that has not settled has no outcome and classifies as not attempted.
func Classify(r Result) model.Value {
	if r.State != Settled {
		return model.NotAttempted()
	}
	if r.Outcome.TimedOut || !r.Outcome.Success {
		return model.NotSupported()
	}
	return model.Latency(r.Outcome.Elapsed.Milliseconds())
}
