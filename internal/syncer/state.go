package syncer

// State is the phase of the sync state machine:
// Idle → Fetching → Merging → Pushing → Idle, and Aborted from any phase.
type State int32

const (
	StateIdle State = iota
	StateFetching
	StateMerging
	StatePushing
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateMerging:
		return "merging"
	case StatePushing:
		return "pushing"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}
