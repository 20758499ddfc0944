package model

// TurnClock is the counting state of a session. It is a value type: every
// transition returns a new clock and never touches I/O.
//
// InFlight is true for the whole duration of a generation batch and must be
// false before a new batch is planned. RoundCount only moves after every
// respondent has been given its turn since the last facilitator turn.
type TurnClock struct {
	TurnCount  int  `json:"turn_count"`
	RoundCount int  `json:"round_count"`
	Paused     bool `json:"paused"`
	InFlight   bool `json:"in_flight"`
}

// NextTurn is the number the next produced turn will carry (1-based).
func (c TurnClock) NextTurn() int { return c.TurnCount + 1 }

// Begin marks a batch as in flight. ok is false when one already is.
func (c TurnClock) Begin() (next TurnClock, ok bool) {
	if c.InFlight {
		return c, false
	}
	c.InFlight = true
	return c, true
}

// Tick records that turn NextTurn() has been taken.
func (c TurnClock) Tick() TurnClock {
	c.TurnCount++
	return c
}

// CompleteRound records one full pass through the respondents.
func (c TurnClock) CompleteRound() TurnClock {
	c.RoundCount++
	return c
}

// Finish clears the in-flight guard.
func (c TurnClock) Finish() TurnClock {
	c.InFlight = false
	return c
}

func (c TurnClock) WithPaused(p bool) TurnClock {
	c.Paused = p
	return c
}
