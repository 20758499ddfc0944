package usecase

import (
	"sync"

	"dialogue-orchestrator/internal/domain/model"
)

// StageEngine moves a session through initial -> resistance -> breakthrough.
// It is driven only by explicit Advance calls, never by turn counting.
// onBreakthrough runs at most once, outside the engine lock.
type StageEngine struct {
	mu             sync.Mutex
	stage          model.Stage
	fired          bool
	onBreakthrough func()
}

func NewStageEngine(seed model.Stage, onBreakthrough func()) *StageEngine {
	if !seed.Valid() {
		seed = model.StageInitial
	}
	return &StageEngine{
		stage:          seed,
		fired:          seed.Terminal(),
		onBreakthrough: onBreakthrough,
	}
}

func (e *StageEngine) Current() model.Stage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stage
}

// Advance moves one stage forward. fired is true only for the call that
// reached breakthrough; later calls are no-ops.
func (e *StageEngine) Advance() (stage model.Stage, fired bool) {
	e.mu.Lock()
	e.stage = e.stage.Next()
	if e.stage.Terminal() && !e.fired {
		e.fired = true
		fired = true
	}
	stage = e.stage
	hook := e.onBreakthrough
	e.mu.Unlock()

	if fired && hook != nil {
		hook()
	}
	return stage, fired
}
