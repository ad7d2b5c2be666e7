package core

// Status is the state of one pipeline stage for a record.
type Status uint8

const (
	// StatusNone means the stage was never requested. Only the embedding stage uses it.
	StatusNone Status = iota
	StatusPending
	StatusProcessing
	StatusCompleted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusNone:
		return "NONE"
	case StatusPending:
		return "PENDING"
	case StatusProcessing:
		return "PROCESSING"
	case StatusCompleted:
		return "COMPLETED"
	case StatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether a run in this status has finished.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsActive reports whether a task may own the stage in this status.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusProcessing
}

// transitions lists the legal moves of each stage's state machine.
var transitions = map[Stage]map[Status][]Status{
	StageAnalysis: {
		StatusPending:    {StatusPending, StatusProcessing, StatusFailed},
		StatusProcessing: {StatusPending, StatusCompleted, StatusFailed},
		StatusFailed:     {StatusPending},
	},
	StageEmbedding: {
		StatusNone:       {StatusPending},
		StatusPending:    {StatusProcessing, StatusFailed},
		StatusProcessing: {StatusPending, StatusCompleted, StatusFailed},
		StatusCompleted:  {StatusPending},
		StatusFailed:     {StatusPending},
	},
}

// CanTransition reports whether a stage may move from one status to another.
// Processing may fall back to Pending only when a crashed task is recovered.
func CanTransition(stage Stage, from, to Status) bool {
	for _, next := range transitions[stage][from] {
		if next == to {
			return true
		}
	}
	return false
}
