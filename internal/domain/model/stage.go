package model

// Stage is the narrative progression marker of a session. It only moves
// forward and is independent of turn counting.
type Stage string

const (
	StageInitial      Stage = "initial"
	StageResistance   Stage = "resistance"
	StageBreakthrough Stage = "breakthrough"
)

func (s Stage) Valid() bool {
	switch s {
	case StageInitial, StageResistance, StageBreakthrough:
		return true
	}
	return false
}

// Next returns the following stage. Breakthrough is terminal and returns itself.
func (s Stage) Next() Stage {
	switch s {
	case StageInitial:
		return StageResistance
	case StageResistance:
		return StageBreakthrough
	default:
		return StageBreakthrough
	}
}

func (s Stage) Terminal() bool { return s == StageBreakthrough }
