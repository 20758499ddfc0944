package model

import (
	"fmt"
	"time"

	"dialogue-orchestrator/internal/domain"
)

type SessionKind string

const (
	KindIndividual SessionKind = "individual"
	KindGroup      SessionKind = "group"
)

func (k SessionKind) Valid() bool { return k == KindIndividual || k == KindGroup }

type SessionStatus string

const (
	StatusActive             SessionStatus = "active"
	StatusPaused             SessionStatus = "paused"
	StatusAwaitingEvaluation SessionStatus = "awaiting_evaluation"
	StatusEnded              SessionStatus = "ended"
	StatusEvaluationFailed   SessionStatus = "evaluation_failed"
)

// Closed reports whether no further turn can be produced. evaluation_failed is
// closed for turns but still accepts an evaluator retry.
func (s SessionStatus) Closed() bool {
	return s == StatusEnded || s == StatusEvaluationFailed
}

// Message is one utterance in the transcript. Messages are immutable once
// appended to a session.
type Message struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	SpeakerID   string    `json:"speaker_id"`
	SpeakerName string    `json:"speaker_name"`
	SpeakerRole Role      `json:"speaker_role"`
	Text        string    `json:"text"`
	TurnNumber  int       `json:"turn_number"`
	Timestamp   time.Time `json:"timestamp"`
}

// Session is the aggregate root of one facilitator-led dialogue in a room.
type Session struct {
	ID           string            `json:"id"`
	Room         string            `json:"room"`
	Kind         SessionKind       `json:"kind"`
	Facilitator  Participant       `json:"facilitator"`
	Participants []Participant     `json:"participants"`
	Evaluator    *Participant      `json:"evaluator,omitempty"`
	Stage        Stage             `json:"stage"`
	Clock        TurnClock         `json:"clock"`
	History      []Message         `json:"history"`
	Status       SessionStatus     `json:"status"`
	Ruling       *EvaluationRuling `json:"ruling,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// NewSession validates the roster and returns a fresh active session. The
// respondent order given here is part of the session identity and is kept.
func NewSession(id, room string, kind SessionKind, facilitator Participant, respondents []Participant, stage Stage) (*Session, error) {
	if id == "" || room == "" {
		return nil, fmt.Errorf("%w: session id and room are required", domain.ErrConfiguration)
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown session kind %q", domain.ErrConfiguration, kind)
	}
	if facilitator.IsZero() || facilitator.Name == "" {
		return nil, fmt.Errorf("%w: facilitator is required", domain.ErrConfiguration)
	}
	if stage == "" {
		stage = StageInitial
	}
	if !stage.Valid() || stage.Terminal() {
		return nil, fmt.Errorf("%w: invalid stage seed %q", domain.ErrConfiguration, stage)
	}
	if err := validateRoster(kind, facilitator, respondents); err != nil {
		return nil, err
	}

	facilitator.Role = RoleFacilitator
	roster := make([]Participant, len(respondents))
	for i, p := range respondents {
		p.Role = RoleRespondent
		roster[i] = p
	}

	now := time.Now()
	return &Session{
		ID:           id,
		Room:         room,
		Kind:         kind,
		Facilitator:  facilitator,
		Participants: roster,
		Stage:        stage,
		History:      make([]Message, 0, 16),
		Status:       StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func validateRoster(kind SessionKind, facilitator Participant, respondents []Participant) error {
	if len(respondents) == 0 {
		return domain.ErrNoRespondents
	}
	if kind == KindIndividual && len(respondents) != 1 {
		return fmt.Errorf("%w: individual session needs exactly one respondent, got %d", domain.ErrConfiguration, len(respondents))
	}
	if kind == KindGroup && len(respondents) < 2 {
		return fmt.Errorf("%w: group session needs at least two respondents, got %d", domain.ErrConfiguration, len(respondents))
	}
	seen := map[string]struct{}{facilitator.ID: {}}
	for _, p := range respondents {
		if p.ID == "" || p.Name == "" {
			return fmt.Errorf("%w: respondent id and name are required", domain.ErrConfiguration)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("%w: duplicate participant id %q", domain.ErrConfiguration, p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	return nil
}

// Respondents returns the respondents in their original order.
func (s *Session) Respondents() []Participant {
	out := make([]Participant, len(s.Participants))
	copy(out, s.Participants)
	return out
}

// Append adds a message to the transcript. It never edits earlier entries.
func (s *Session) Append(m Message) {
	m.SessionID = s.ID
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	s.History = append(s.History, m)
	s.UpdatedAt = m.Timestamp
}

// Clone returns a deep copy safe to hand out while the session keeps changing.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Participants = append([]Participant(nil), s.Participants...)
	cp.History = append([]Message(nil), s.History...)
	if s.Evaluator != nil {
		ev := *s.Evaluator
		cp.Evaluator = &ev
	}
	if s.Ruling != nil {
		r := *s.Ruling
		cp.Ruling = &r
	}
	return &cp
}
