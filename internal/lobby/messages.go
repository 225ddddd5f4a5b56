package lobby

import (
	"errors"

	"github.com/mathrush/mathrush-backend/internal/engine"
	"github.com/mathrush/mathrush-backend/pkg/types"
)

var ErrLobbyFull = errors.New("lobby is full")
var ErrMatchInProgress = errors.New("match in progress")
var ErrNotHost = errors.New("only the host can do that")
var ErrHostNotReady = errors.New("host must be ready to start")
var ErrNotMember = errors.New("not a member of this lobby")

type Msg interface{ isLobbyMsg() }

// Join attaches a connection to the lobby. The first member becomes host.
type Join struct {
	PlayerID string
	Name     string
	Outbox   chan types.ServerMessage // where this client receives events
	Reply    chan JoinResult
}

func (Join) isLobbyMsg() {}

type JoinResult struct {
	Snapshot types.LobbySnapshot
	Err      error
}

type Leave struct{ PlayerID string }

func (Leave) isLobbyMsg() {}

type ToggleReady struct {
	PlayerID string
	Reply    chan ToggleReadyResult
}

func (ToggleReady) isLobbyMsg() {}

type ToggleReadyResult struct {
	IsReady bool
	Err     error
}

// UpdateSettings is host-only and valid only while idle. There is no ack;
// failures come back as a sender-scoped error event.
type UpdateSettings struct {
	PlayerID string
	Patch    engine.SettingsPatch
}

func (UpdateSettings) isLobbyMsg() {}

type StartGame struct{ PlayerID string }

func (StartGame) isLobbyMsg() {}

type SubmitAnswer struct {
	PlayerID   string
	QuestionID int
	Answer     string
	TimeTaken  float64 // client-reported, informational only
}

func (SubmitAnswer) isLobbyMsg() {}

type ReturnToLobby struct{ PlayerID string }

func (ReturnToLobby) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

// GetState reflects internal state without data races; test-only.
type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

type View struct {
	Code       string
	NumPlayers int
	Snapshot   types.LobbySnapshot
	State      engine.State
}

// Internal timer messages. gen guards against stale fires from a phase the
// lobby has already left.
type matchTick struct{ gen int }

func (matchTick) isLobbyMsg() {}

type answerTimeout struct {
	playerID   string
	questionID int
	gen        int
}

func (answerTimeout) isLobbyMsg() {}

// idleReap fires once if nobody ever joined after creation.
type idleReap struct{}

func (idleReap) isLobbyMsg() {}
