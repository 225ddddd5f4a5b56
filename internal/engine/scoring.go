package engine

import (
	"math"
	"time"
)

const (
	// BasePoints is the gain for a correct answer before any multiplier.
	BasePoints = 100

	// ComboContinueWindow is the max gap between correct answers for the
	// streak to keep counting.
	ComboContinueWindow = 7 * time.Second

	// Combo window countdowns: how long the streak survives with no
	// correct answer at all (skips included).
	ComboWindowActive = 10 * time.Second
	ComboWindowIdle   = 20 * time.Second

	maxMultiplier = 2.00
)

// ComboState is the per-player streak, reset at match boundaries.
type ComboState struct {
	Count          int       `json:"comboCount"`
	Active         bool      `json:"isComboActive"`
	WindowDeadline time.Time `json:"-"`
}

// Multiplier returns the score multiplier in effect at a given streak count.
// The 2nd consecutive correct answer starts at 1.10 and each further one
// adds 0.05, capped at 2.00.
func Multiplier(count int) float64 {
	if count < 2 {
		return 1.00
	}
	return math.Min(1.10+0.05*float64(count-2), maxMultiplier)
}

// ScoreAnswer computes the score delta and next combo state for one answer.
// sinceLastCorrect is only consulted when a streak exists. Wrong answers
// cost round(25 × min(multiplier, 1.5)) against the multiplier that was in
// effect before the answer, and always clear the streak. Combo window
// expiry is the caller's concern; pass an already-reset state when lapsed.
func ScoreAnswer(cs ComboState, correct bool, sinceLastCorrect time.Duration) (int, ComboState) {
	if !correct {
		penalty := math.Round(25 * math.Min(Multiplier(cs.Count), 1.5))
		return -int(penalty), ComboState{}
	}

	next := ComboState{Count: 1}
	if cs.Count > 0 && sinceLastCorrect <= ComboContinueWindow {
		next.Count = cs.Count + 1
	}
	next.Active = next.Count >= 2

	gain := math.Round(BasePoints * Multiplier(next.Count))
	return int(gain), next
}

// comboWindow is the countdown applied after an answer that kept a streak.
func comboWindow(cs ComboState) time.Duration {
	if cs.Active {
		return ComboWindowActive
	}
	return ComboWindowIdle
}
