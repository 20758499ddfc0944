package adapter

import (
	"context"

	"dialogue-orchestrator/internal/domain/model"
)

// GenerateRequest carries everything the utterance generator needs for one
// utterance attributed to one speaker for one turn.
type GenerateRequest struct {
	SessionID string
	Room      string
	Kind      model.SessionKind
	Speaker   model.Participant
	Role      model.Role
	Stage     model.Stage
	Turn      int
	History   []model.Message
	Roster    []model.Participant
	Extra     map[string]string
}

// UtteranceGenerator is the external collaborator that owns persona, tone and
// content. It may be slow and it may fail; timeouts are its own concern.
type UtteranceGenerator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// GeneratorFunc adapts a plain function to UtteranceGenerator.
type GeneratorFunc func(ctx context.Context, req GenerateRequest) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	return f(ctx, req)
}
