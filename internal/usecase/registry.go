package usecase

import (
	"sync"
	"time"

	"dialogue-orchestrator/internal/domain/model"
)

// liveSession is the in-memory state of one running session. mu guards every
// field; the generator is never called while it is held.
type liveSession struct {
	mu        sync.Mutex
	s         *model.Session
	stage     *StageEngine
	events    *broadcaster
	evaluated bool // a ruling was produced; set only on evaluator success
	closed    bool // torn down; late results are discarded
	lockToken string
	lastTouch time.Time
	evalTurn  int
	extra     map[string]string
}

func (ls *liveSession) touch() { ls.lastTouch = time.Now() }

// registry maps a room to at most one live session. Starts on the same room
// are serialized through a per-room gate so two callers cannot both install.
type registry struct {
	mu    sync.Mutex
	live  map[string]*liveSession
	gates map[string]*gate
}

type gate struct {
	mu   sync.Mutex
	refs int
}

func newRegistry() *registry {
	return &registry{live: make(map[string]*liveSession), gates: make(map[string]*gate)}
}

// gate blocks until the caller owns the room's critical section and returns
// the release func.
func (r *registry) gate(room string) func() {
	r.mu.Lock()
	g, ok := r.gates[room]
	if !ok {
		g = &gate{}
		r.gates[room] = g
	}
	g.refs++
	r.mu.Unlock()

	g.mu.Lock()
	return func() {
		g.mu.Unlock()
		r.mu.Lock()
		g.refs--
		if g.refs == 0 {
			delete(r.gates, room)
		}
		r.mu.Unlock()
	}
}

func (r *registry) get(room string) (*liveSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ls, ok := r.live[room]
	return ls, ok
}

// install puts ls under room and returns whatever was there before.
func (r *registry) install(room string, ls *liveSession) (prev *liveSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev = r.live[room]
	r.live[room] = ls
	return prev
}

func (r *registry) detach(room string) (*liveSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ls, ok := r.live[room]
	if ok {
		delete(r.live, room)
	}
	return ls, ok
}

// detachIf removes room only while it still maps to ls.
func (r *registry) detachIf(room string, ls *liveSession) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.live[room] != ls {
		return false
	}
	delete(r.live, room)
	return true
}

func (r *registry) all() map[string]*liveSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]*liveSession, len(r.live))
	for k, v := range r.live {
		out[k] = v
	}
	return out
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}
