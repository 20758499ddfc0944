package usecase

import (
	"testing"

	"dialogue-orchestrator/internal/domain/model"
)

func TestEvaluationTrigger_Due(t *testing.T) {
	trig := DefaultEvaluationTrigger()
	tests := []struct {
		name  string
		kind  model.SessionKind
		clock model.TurnClock
		want  bool
	}{
		{"individual below", model.KindIndividual, model.TurnClock{TurnCount: 6, RoundCount: 3}, false},
		{"individual at", model.KindIndividual, model.TurnClock{TurnCount: 7}, true},
		{"individual ignores rounds", model.KindIndividual, model.TurnClock{TurnCount: 2, RoundCount: 9}, false},
		{"group below", model.KindGroup, model.TurnClock{TurnCount: 20, RoundCount: 4}, false},
		{"group at", model.KindGroup, model.TurnClock{TurnCount: 10, RoundCount: 5}, true},
		{"unknown kind", model.SessionKind("duo"), model.TurnClock{TurnCount: 99, RoundCount: 99}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := trig.Due(tc.kind, tc.clock); got != tc.want {
				t.Errorf("Due = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEvaluationTrigger_ZeroValueUsesDefaults(t *testing.T) {
	var trig EvaluationTrigger
	if !trig.Due(model.KindIndividual, model.TurnClock{TurnCount: DefaultIndividualTurnThreshold}) {
		t.Error("zero trigger should fall back to the individual default")
	}
	if trig.Due(model.KindGroup, model.TurnClock{RoundCount: DefaultGroupRoundThreshold - 1}) {
		t.Error("zero trigger fired early for group")
	}
	custom := EvaluationTrigger{IndividualTurns: 3, GroupRounds: 2}
	if !custom.Due(model.KindGroup, model.TurnClock{RoundCount: 2}) {
		t.Error("custom group threshold ignored")
	}
}
