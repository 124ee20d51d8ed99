package lifecycle

// Phase classifies a job's lifecycle from the orchestration system's
// raw status string.
type Phase int

const (
	PhasePending Phase = iota
	PhaseRunning
	PhaseTerminal
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseRunning:
		return "running"
	default:
		return "terminal"
	}
}

// Raw status values the orchestration API reports while a job is still alive.
// The continue-set is closed: any status outside it classifies as terminal so
// the poll loop always has a bounded lifetime, even on status values this
// build has never seen.
const (
	StatusQueued     = "queued"
	StatusWaiting    = "waiting"
	StatusPending    = "pending"
	StatusRequested  = "requested"
	StatusInProgress = "in_progress"
	StatusRunning    = "running"
)

// Classify maps a raw status to a Phase. The second return reports whether
// the status was a recognized value; callers should warn on unrecognized
// statuses so an early stop is diagnosable rather than silent.
func Classify(rawStatus string) (Phase, bool) {
	switch rawStatus {
	case StatusQueued, StatusWaiting, StatusPending, StatusRequested:
		return PhasePending, true
	case StatusInProgress, StatusRunning:
		return PhaseRunning, true
	case "completed", "succeeded", "failed", "cancelled":
		return PhaseTerminal, true
	default:
		return PhaseTerminal, false
	}
}
