package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dialogue-orchestrator/internal/domain"
	"dialogue-orchestrator/internal/domain/model"
	"dialogue-orchestrator/internal/domain/ports/adapter"
)

func TestSession_CancelledBatchDoesNotCountTurn(t *testing.T) {
	h := newHarness()
	_, err := h.uc.Start(context.Background(), room, groupParams(3))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.gen.setOnCall(func(req adapter.GenerateRequest) {
		if req.Speaker.ID == "r2" {
			cancel()
		}
	})

	_, err = h.uc.Advance(ctx, room)
	require.ErrorIs(t, err, context.Canceled)

	s, err := h.uc.Get(context.Background(), room)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Clock.TurnCount, "turn must not tick")
	assert.Equal(t, 0, s.Clock.RoundCount, "round must not complete")
	assert.False(t, s.Clock.InFlight)
	assert.Equal(t, model.StatusActive, s.Status)
	require.Len(t, s.History, 2, "r1 spoke before the cancel")
	assert.Equal(t, "r1", s.History[1].SpeakerID)

	// The next advance finishes the same turn with the speakers left over.
	h.gen.setOnCall(nil)
	res, err := h.uc.Advance(context.Background(), room)
	require.NoError(t, err)
	assert.Empty(t, res.Faults)
	require.Len(t, res.Messages, 2)
	assert.Equal(t, "r2", res.Messages[0].SpeakerID)
	assert.Equal(t, "r3", res.Messages[1].SpeakerID)
	assert.Equal(t, 2, res.Turn)
	assert.Equal(t, 1, res.Round)

	s, _ = h.uc.Get(context.Background(), room)
	require.Len(t, s.History, 4)
	for _, m := range s.History[1:] {
		assert.Equal(t, 2, m.TurnNumber)
	}
	assert.Equal(t, 2, s.Clock.TurnCount)
}

func TestSession_AdvanceWithDoneContextGeneratesNothing(t *testing.T) {
	h := newHarness()
	_, err := h.uc.Start(context.Background(), room, individualParams())
	require.NoError(t, err)
	before := h.gen.callCount()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h.uc.Advance(ctx, room)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, before, h.gen.callCount())

	s, _ := h.uc.Get(context.Background(), room)
	assert.Equal(t, 1, s.Clock.TurnCount)
	assert.False(t, s.Clock.InFlight)
	assert.Len(t, s.History, 1)

	advanceN(t, h, 1)
}

func TestSession_CancelledEvaluationStaysDue(t *testing.T) {
	h := newHarness()
	_, err := h.uc.Start(context.Background(), room, individualParams())
	require.NoError(t, err)
	advanceN(t, h, 5)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.gen.setOnCall(func(req adapter.GenerateRequest) {
		if req.Role == model.RoleEvaluator {
			cancel()
		}
	})
	_, err = h.uc.Advance(ctx, room)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, domain.ErrEvaluationFailed))

	s, _ := h.uc.Get(context.Background(), room)
	assert.Equal(t, model.StatusAwaitingEvaluation, s.Status)
	assert.False(t, s.Clock.InFlight)
	assert.Nil(t, s.Ruling)
	assert.Len(t, s.History, 6)
	rulings, _ := h.sink.counts()
	assert.Zero(t, rulings)

	h.gen.setOnCall(nil)
	res, err := h.uc.Advance(context.Background(), room)
	require.NoError(t, err)
	require.NotNil(t, res.Ruling)
	assert.Equal(t, 7, res.Turn)
	assert.Equal(t, model.StatusEnded, res.Status)
}

func TestSession_CancelledRetryKeepsEvaluationFailed(t *testing.T) {
	h := newHarness()
	_, err := h.uc.Start(context.Background(), room, individualParams())
	require.NoError(t, err)
	advanceN(t, h, 5)

	h.gen.setFail(evaluator.ID, errors.New("judge offline"))
	_, err = h.uc.Advance(context.Background(), room)
	require.ErrorIs(t, err, domain.ErrEvaluationFailed)
	h.gen.setFail(evaluator.ID, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.gen.setOnCall(func(adapter.GenerateRequest) { cancel() })
	_, err = h.uc.RetryEvaluation(ctx, room)
	require.ErrorIs(t, err, context.Canceled)

	s, _ := h.uc.Get(context.Background(), room)
	assert.Equal(t, model.StatusEvaluationFailed, s.Status)
	assert.False(t, s.Clock.InFlight)

	h.gen.setOnCall(nil)
	res, err := h.uc.RetryEvaluation(context.Background(), room)
	require.NoError(t, err)
	require.NotNil(t, res.Ruling)
	assert.Equal(t, 7, res.Turn)
}

func TestSession_BreakthroughAfterEndIsNotDelivered(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	_, err := h.uc.Start(ctx, room, individualParams())
	require.NoError(t, err)
	ls, ok := h.uc.reg.get(room)
	require.True(t, ok)

	stage, err := h.uc.AdvanceStage(ctx, room)
	require.NoError(t, err)
	require.Equal(t, model.StageResistance, stage)

	// End lands after AdvanceStage checked the session but before the engine moves.
	require.NoError(t, h.uc.End(ctx, room))
	stage, fired := ls.stage.Advance()
	assert.Equal(t, model.StageBreakthrough, stage)
	assert.True(t, fired)

	_, breakthroughs := h.sink.counts()
	assert.Zero(t, breakthroughs)
	assert.False(t, h.snaps.has(ls.s.ID))
}
