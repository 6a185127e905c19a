package pipeline

// State tracks where a source is in its run. Transitions are linear:
// Pending -> Reading -> [Flattening] -> Normalizing -> Batching -> Loading,
// ending in Done or Failed. Flattening only happens for hierarchical
// sources; a failure freezes the state at the stage that failed.
type State int

const (
	StatePending State = iota
	StateReading
	StateFlattening
	StateNormalizing
	StateBatching
	StateLoading
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateReading:
		return "READING"
	case StateFlattening:
		return "FLATTENING"
	case StateNormalizing:
		return "NORMALIZING"
	case StateBatching:
		return "BATCHING"
	case StateLoading:
		return "LOADING"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}
