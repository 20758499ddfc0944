package usecase

import "dialogue-orchestrator/internal/domain/model"

const (
	DefaultIndividualTurnThreshold = 7
	DefaultGroupRoundThreshold     = 5
)

// EvaluationTrigger decides when the evaluator must speak. Individual
// sessions count turns, group sessions count rounds, since a group round
// already holds several utterances.
type EvaluationTrigger struct {
	IndividualTurns int
	GroupRounds     int
}

func DefaultEvaluationTrigger() EvaluationTrigger {
	return EvaluationTrigger{
		IndividualTurns: DefaultIndividualTurnThreshold,
		GroupRounds:     DefaultGroupRoundThreshold,
	}
}

func (t EvaluationTrigger) normalized() EvaluationTrigger {
	if t.IndividualTurns <= 0 {
		t.IndividualTurns = DefaultIndividualTurnThreshold
	}
	if t.GroupRounds <= 0 {
		t.GroupRounds = DefaultGroupRoundThreshold
	}
	return t
}

// Due reports whether the clock has reached the evaluation threshold.
func (t EvaluationTrigger) Due(kind model.SessionKind, clock model.TurnClock) bool {
	t = t.normalized()
	switch kind {
	case model.KindIndividual:
		return clock.TurnCount >= t.IndividualTurns
	case model.KindGroup:
		return clock.RoundCount >= t.GroupRounds
	}
	return false
}
