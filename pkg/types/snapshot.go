package types

import "github.com/mathrush/mathrush-backend/internal/engine"

// PlayerSnapshot is the client-facing view of a lobby member.
type PlayerSnapshot struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	IsHost  bool   `json:"isHost"`
	IsReady bool   `json:"isReady"`
	Score   int    `json:"score"`
}

// LobbySnapshot is broadcast on every lobby-updated event.
type LobbySnapshot struct {
	Code     string              `json:"code"`
	Players  []PlayerSnapshot    `json:"players"`
	Settings engine.GameSettings `json:"settings"`
	Host     string              `json:"host"`
	Phase    engine.Phase        `json:"phase"`
}

// GameStateSnapshot accompanies game-started.
type GameStateSnapshot struct {
	Phase         engine.Phase        `json:"phase"`
	TimeRemaining int                 `json:"timeRemaining"`
	Settings      engine.GameSettings `json:"settings"`
	Players       []PlayerSnapshot    `json:"players"`
}

type ComboSnapshot struct {
	Count  int  `json:"comboCount"`
	Active bool `json:"isComboActive"`
}
