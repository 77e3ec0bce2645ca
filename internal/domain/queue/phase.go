package queue

// Phase is the per-track lifecycle of the session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhasePlaying
	PhasePaused
	PhaseCompleted
	PhaseAdvancing
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhasePlaying:
		return "playing"
	case PhasePaused:
		return "paused"
	case PhaseCompleted:
		return "completed"
	case PhaseAdvancing:
		return "advancing"
	default:
		return "idle"
	}
}
