package usecase

import (
	"dialogue-orchestrator/internal/domain"
	"dialogue-orchestrator/internal/domain/model"
)

// TurnPlan is the ordered list of speakers for one Advance call.
type TurnPlan struct {
	Turn     int
	Speakers []model.Participant
	// CompletesRound is set on respondent turns; the round counter moves once
	// the whole batch has been attempted.
	CompletesRound bool
}

// PlanTurn decides who speaks next. Odd turns belong to the facilitator. On
// even turns the single respondent speaks in individual mode, and every
// respondent speaks once, in roster order, in group mode.
func PlanTurn(kind model.SessionKind, clock model.TurnClock, facilitator model.Participant, respondents []model.Participant) (TurnPlan, error) {
	if len(respondents) == 0 {
		return TurnPlan{}, domain.ErrNoRespondents
	}
	turn := clock.NextTurn()
	if turn%2 == 1 {
		return TurnPlan{Turn: turn, Speakers: []model.Participant{facilitator}}, nil
	}

	switch kind {
	case model.KindIndividual:
		return TurnPlan{Turn: turn, Speakers: respondents[:1:1], CompletesRound: true}, nil
	case model.KindGroup:
		batch := make([]model.Participant, len(respondents))
		copy(batch, respondents)
		return TurnPlan{Turn: turn, Speakers: batch, CompletesRound: true}, nil
	default:
		return TurnPlan{}, domain.ErrConfiguration
	}
}
