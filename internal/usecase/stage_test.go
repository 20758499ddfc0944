package usecase

import (
	"sync"
	"testing"

	"dialogue-orchestrator/internal/domain/model"
)

func TestStageEngine_ForwardOnlyAndFiresOnce(t *testing.T) {
	fired := 0
	e := NewStageEngine(model.StageInitial, func() { fired++ })

	if s, f := e.Advance(); s != model.StageResistance || f {
		t.Fatalf("first advance = %s fired=%v", s, f)
	}
	if s, f := e.Advance(); s != model.StageBreakthrough || !f {
		t.Fatalf("second advance = %s fired=%v", s, f)
	}
	for i := 0; i < 5; i++ {
		if s, f := e.Advance(); s != model.StageBreakthrough || f {
			t.Fatalf("advance past terminal = %s fired=%v", s, f)
		}
	}
	if fired != 1 {
		t.Fatalf("hook fired %d times, want 1", fired)
	}
}

func TestStageEngine_ConcurrentAdvanceFiresOnce(t *testing.T) {
	var mu sync.Mutex
	fired := 0
	e := NewStageEngine(model.StageResistance, func() {
		mu.Lock()
		fired++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Advance()
		}()
	}
	wg.Wait()
	if fired != 1 {
		t.Fatalf("hook fired %d times, want 1", fired)
	}
	if e.Current() != model.StageBreakthrough {
		t.Fatalf("stage = %s", e.Current())
	}
}

func TestStageEngine_HookMayReadEngine(t *testing.T) {
	var seen model.Stage
	var e *StageEngine
	e = NewStageEngine(model.StageResistance, func() { seen = e.Current() })
	e.Advance()
	if seen != model.StageBreakthrough {
		t.Fatalf("hook saw %q", seen)
	}
}
