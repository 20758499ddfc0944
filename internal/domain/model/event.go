package model

import (
	"time"

	"dialogue-orchestrator/internal/domain"
)

// EventType identifies a session stream message.
type EventType string

const (
	EventMessage      EventType = "message"
	EventStatus       EventType = "status"
	EventStage        EventType = "stage"
	EventFault        EventType = "fault"
	EventRuling       EventType = "ruling"
	EventBreakthrough EventType = "breakthrough"
	EventClosed       EventType = "closed"
)

// Event is published to session subscribers. Only the field matching Type is set.
type Event struct {
	Type      EventType         `json:"type"`
	SessionID string            `json:"session_id"`
	Room      string            `json:"room"`
	Message   *Message          `json:"message,omitempty"`
	Status    SessionStatus     `json:"status,omitempty"`
	Stage     Stage             `json:"stage,omitempty"`
	Fault     *domain.Fault     `json:"fault,omitempty"`
	Ruling    *EvaluationRuling `json:"ruling,omitempty"`
	At        time.Time         `json:"at"`
}

// TurnResult describes what one Advance call appended.
type TurnResult struct {
	SessionID string            `json:"session_id"`
	Turn      int               `json:"turn"`
	Round     int               `json:"round"`
	Messages  []Message         `json:"messages"`
	Faults    []domain.Fault    `json:"faults,omitempty"`
	Ruling    *EvaluationRuling `json:"ruling,omitempty"`
	Status    SessionStatus     `json:"status"`
}
