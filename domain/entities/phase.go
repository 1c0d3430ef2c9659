package entities

// Phase selects the disclosure directive for a turn. It is always derived from
// the fragment and the turn history and is never persisted.
type Phase int

const (
	PhaseCollection Phase = iota
	PhaseReason
	PhaseDepth
	PhaseSimpleRemedy
	PhaseFullSolution
)

func (p Phase) String() string {
	switch p {
	case PhaseCollection:
		return "collection"
	case PhaseReason:
		return "reason"
	case PhaseDepth:
		return "depth"
	case PhaseSimpleRemedy:
		return "simple_remedy"
	case PhaseFullSolution:
		return "full_solution"
	}
	return "unknown"
}

// Number returns the numeric phase (0 for collection).
func (p Phase) Number() int {
	return int(p)
}

// ComputePhase maps profile completion and the number of post-profile user
// turns (including the one being answered) to a phase.
func ComputePhase(complete bool, postProfileTurns int) Phase {
	switch {
	case !complete:
		return PhaseCollection
	case postProfileTurns <= 1:
		return PhaseReason
	case postProfileTurns == 2:
		return PhaseDepth
	case postProfileTurns == 3:
		return PhaseSimpleRemedy
	default:
		return PhaseFullSolution
	}
}
