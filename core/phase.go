package core

// Phase is one stage in the fixed ordered deliberation sequence.
type Phase string

const (
	PhaseInitialization       Phase = "initialization"
	PhaseInitialPositions     Phase = "initial_positions"
	PhaseEvidencePresentation Phase = "evidence_presentation"
	PhaseSocraticQuestioning  Phase = "socratic_questioning"
	PhaseCoalitionBuilding    Phase = "coalition_building"
	PhaseSynthesis            Phase = "synthesis"
	PhaseCompleted            Phase = "completed"
)

var phaseOrder = []Phase{
	PhaseInitialization,
	PhaseInitialPositions,
	PhaseEvidencePresentation,
	PhaseSocraticQuestioning,
	PhaseCoalitionBuilding,
	PhaseSynthesis,
	PhaseCompleted,
}

// Phases returns the ordered phase sequence.
func Phases() []Phase {
	out := make([]Phase, len(phaseOrder))
	copy(out, phaseOrder)
	return out
}

// Index returns the position of p in the sequence or -1 for unknown phases.
func (p Phase) Index() int {
	for i, ph := range phaseOrder {
		if ph == p {
			return i
		}
	}
	return -1
}

// Valid reports whether p belongs to the fixed sequence.
func (p Phase) Valid() bool { return p.Index() >= 0 }

// Terminal reports whether p is the completed phase.
func (p Phase) Terminal() bool { return p == PhaseCompleted }

// Next returns the following phase. Completed (and unknown phases) map to themselves.
func (p Phase) Next() Phase {
	i := p.Index()
	if i < 0 || i == len(phaseOrder)-1 {
		return p
	}
	return phaseOrder[i+1]
}

// ShouldAdvance evaluates the automatic progression table for the given phase.
//
//	initialization                               immediately
//	initial_positions                            turns >= n
//	evidence_presentation, socratic_questioning  turns >= 3n
//	coalition_building                           consensus > 60 or turns >= 5n
//	synthesis                                    consensus > 80 or turns >= 7n
func ShouldAdvance(p Phase, turnCount, participantCount, consensus int) bool {
	n := participantCount
	switch p {
	case PhaseInitialization:
		return true
	case PhaseInitialPositions:
		return turnCount >= n
	case PhaseEvidencePresentation, PhaseSocraticQuestioning:
		return turnCount >= n*3
	case PhaseCoalitionBuilding:
		return consensus > 60 || turnCount >= n*5
	case PhaseSynthesis:
		return consensus > 80 || turnCount >= n*7
	default:
		return false
	}
}
