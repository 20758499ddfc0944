package model

import "time"

// Verdict is the structured part of an evaluation ruling consumed by the
// reward/consequence system. Values are not interpreted here.
type Verdict struct {
	Risk    string `json:"risk"`
	Quality string `json:"quality"`
	Score   int    `json:"score"`
}

// EvaluationRuling is the terminal artifact produced by the evaluator.
type EvaluationRuling struct {
	SessionID   string    `json:"session_id"`
	Room        string    `json:"room"`
	EvaluatorID string    `json:"evaluator_id"`
	Turn        int       `json:"turn"`
	Commentary  string    `json:"commentary"`
	Verdict     Verdict   `json:"verdict"`
	CreatedAt   time.Time `json:"created_at"`
}

// BreakthroughEvent is raised once per session when the stage reaches
// breakthrough.
type BreakthroughEvent struct {
	SessionID string    `json:"session_id"`
	Room      string    `json:"room"`
	Turn      int       `json:"turn"`
	At        time.Time `json:"at"`
}
