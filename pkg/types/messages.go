package types

import "github.com/mathrush/mathrush-backend/internal/engine"

// Client -> Server
//
// create-lobby:    name, seq
// join-lobby:      code, name, seq
// leave-lobby:     {}
// toggle-ready:    seq
// update-settings: settings (partial, host only)
// start-game:      {} (host only, host must be ready)
// submit-answer:   questionId, answer, timeTaken
// return-to-lobby: {} (host only)
//
// seq is the client's request number; mutating requests that expect a
// direct response get exactly one "ack" back carrying the same seq.
type ClientMessage struct {
	Type       string                `json:"type"`
	Seq        int                   `json:"seq,omitempty"`
	Code       string                `json:"code,omitempty"`
	Name       string                `json:"name,omitempty"`
	Settings   *engine.SettingsPatch `json:"settings,omitempty"`
	QuestionID int                   `json:"questionId,omitempty"`
	Answer     string                `json:"answer,omitempty"`
	TimeTaken  float64               `json:"timeTaken,omitempty"`
}

const (
	MsgCreateLobby    = "create-lobby"
	MsgJoinLobby      = "join-lobby"
	MsgLeaveLobby     = "leave-lobby"
	MsgToggleReady    = "toggle-ready"
	MsgUpdateSettings = "update-settings"
	MsgStartGame      = "start-game"
	MsgSubmitAnswer   = "submit-answer"
	MsgReturnToLobby  = "return-to-lobby"
)

// Server -> Client event names. Everything except "ack", "error" and
// "question-updated" is broadcast to the whole lobby room.
const (
	EvtAck             = "ack"
	EvtError           = "error"
	EvtLobbyUpdated    = "lobby-updated"
	EvtGameStarted     = "game-started"
	EvtQuestionUpdated = "question-updated"
	EvtPlayerAnswered  = "player-answered"
	EvtTimerUpdate     = "timer-update"
	EvtGameEnded       = "game-ended"
	EvtReturnToLobby   = "return-to-lobby"
)

type ServerMessage struct {
	Type string `json:"type"`

	// ack fields
	Seq     int    `json:"seq,omitempty"`
	Success bool   `json:"success,omitempty"`
	IsReady *bool  `json:"isReady,omitempty"`
	Error   string `json:"error,omitempty"`

	// payloads
	Lobby         *LobbySnapshot     `json:"lobby,omitempty"`
	GameState     *GameStateSnapshot `json:"gameState,omitempty"`
	Question      *engine.Question   `json:"question,omitempty"`
	PlayerID      string             `json:"playerId,omitempty"`
	IsCorrect     *bool              `json:"isCorrect,omitempty"`
	NewScore      *int               `json:"newScore,omitempty"`
	TimeRemaining *int               `json:"timeRemaining,omitempty"`
	Combo         *ComboSnapshot     `json:"combo,omitempty"`
	FinalScores   []PlayerSnapshot   `json:"finalScores,omitempty"`
}
