package engine

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidPhase = errors.New("action not valid in current phase")
var ErrUnknownPlayer = errors.New("unknown player")
var ErrStaleQuestion = errors.New("not the player's current question")
var ErrUnsupportedCommand = errors.New("unsupported command")

type Phase string

const (
	PhaseIdle   Phase = "idle"
	PhaseActive Phase = "active"
	PhaseEnded  Phase = "ended"
)

// AnswerTimeout is the fixed per-question window before a player's pointer
// is advanced as an automatic skip.
const AnswerTimeout = 20 * time.Second

// PlayerState is a player's match-scoped progress. Each player walks the
// shared question pool at their own pace.
type PlayerState struct {
	Score             int
	QuestionIndex     int
	Combo             ComboState
	LastCorrectAt     time.Time
	QuestionStartedAt time.Time
}

type State struct {
	Phase         Phase
	Settings      GameSettings
	Questions     []Question // append-only, shared across players
	TimeRemaining int        // seconds
	Players       map[string]PlayerState
}

type CommandType string

const (
	CmdStartGame       CommandType = "StartGame"
	CmdSubmitAnswer    CommandType = "SubmitAnswer"
	CmdQuestionTimeout CommandType = "QuestionTimeout"
	CmdTick            CommandType = "Tick"
	CmdReturnToLobby   CommandType = "ReturnToLobby"
	CmdRemovePlayer    CommandType = "RemovePlayer"
)

type Command struct {
	Type       CommandType
	PlayerID   string
	PlayerIDs  []string // StartGame: the roster at match start
	QuestionID int
	Answer     string
	Now        time.Time
}

type EventType string

const (
	EvtGameStarted      EventType = "GameStarted"
	EvtTimerUpdate      EventType = "TimerUpdate"
	EvtPlayerAnswered   EventType = "PlayerAnswered"
	EvtQuestionAdvanced EventType = "QuestionAdvanced"
	EvtGameEnded        EventType = "GameEnded"
	EvtReturnedToLobby  EventType = "ReturnedToLobby"
)

type Event struct {
	Type          EventType
	PlayerID      string
	Correct       bool
	Score         int
	TimeRemaining int
	Question      Question // QuestionAdvanced: PlayerID's next question
	Combo         ComboState
}

func NewIdleState(settings GameSettings) State {
	return State{
		Phase:    PhaseIdle,
		Settings: settings,
		Players:  map[string]PlayerState{},
	}
}

// Apply runs one command against the match state machine and returns the
// events to broadcast plus the next state. The input state is not mutated.
func Apply(s State, cmd Command) ([]Event, State, error) {
	switch cmd.Type {
	case CmdStartGame:
		if s.Phase != PhaseIdle {
			return nil, s, ErrInvalidPhase
		}
		ns := s
		ns.Phase = PhaseActive
		ns.Questions = Generate(s.Settings.Operations, s.Settings.Difficulty, QuestionBatchSize, 1)
		ns.TimeRemaining = s.Settings.Duration
		ns.Players = make(map[string]PlayerState, len(cmd.PlayerIDs))
		events := []Event{{Type: EvtGameStarted, TimeRemaining: ns.TimeRemaining}}
		for _, id := range cmd.PlayerIDs {
			ns.Players[id] = PlayerState{QuestionStartedAt: cmd.Now}
			events = append(events, Event{Type: EvtQuestionAdvanced, PlayerID: id, Question: ns.Questions[0]})
		}
		return events, ns, nil

	case CmdTick:
		if s.Phase != PhaseActive {
			return nil, s, ErrInvalidPhase
		}
		ns := s
		ns.TimeRemaining--
		events := []Event{{Type: EvtTimerUpdate, TimeRemaining: ns.TimeRemaining}}
		if ns.TimeRemaining <= 0 {
			ns.TimeRemaining = 0
			ns.Phase = PhaseEnded
			events = append(events, Event{Type: EvtGameEnded})
		}
		return events, ns, nil

	case CmdSubmitAnswer:
		if s.Phase != PhaseActive {
			return nil, s, ErrInvalidPhase
		}
		p, ok := s.Players[cmd.PlayerID]
		if !ok {
			return nil, s, ErrUnknownPlayer
		}
		current := s.Questions[p.QuestionIndex]
		if cmd.QuestionID != current.ID {
			return nil, s, ErrStaleQuestion
		}

		combo := p.Combo
		if combo.Count > 0 && cmd.Now.After(combo.WindowDeadline) {
			// The window lapsed before this answer; the streak silently
			// restarts from scratch.
			combo = ComboState{}
		}
		correct := answerMatches(cmd.Answer, current.Answer)
		delta, next := ScoreAnswer(combo, correct, cmd.Now.Sub(p.LastCorrectAt))

		np := p
		np.Score += delta
		if np.Score < 0 {
			np.Score = 0
		}
		np.Combo = next
		if correct {
			np.LastCorrectAt = cmd.Now
		}
		if next.Count > 0 {
			np.Combo.WindowDeadline = cmd.Now.Add(comboWindow(next))
		}
		np.QuestionIndex++
		np.QuestionStartedAt = cmd.Now

		ns := s
		ns.Questions = ensureQuestions(s.Questions, np.QuestionIndex, s.Settings)
		ns.Players = clonePlayers(s.Players)
		ns.Players[cmd.PlayerID] = np

		events := []Event{
			{Type: EvtPlayerAnswered, PlayerID: cmd.PlayerID, Correct: correct, Score: np.Score, Combo: np.Combo},
			{Type: EvtQuestionAdvanced, PlayerID: cmd.PlayerID, Question: ns.Questions[np.QuestionIndex], Combo: np.Combo},
		}
		return events, ns, nil

	case CmdQuestionTimeout:
		if s.Phase != PhaseActive {
			return nil, s, ErrInvalidPhase
		}
		p, ok := s.Players[cmd.PlayerID]
		if !ok {
			return nil, s, ErrUnknownPlayer
		}
		if cmd.QuestionID != s.Questions[p.QuestionIndex].ID {
			// Stale timer fire racing an answer; nothing to do.
			return nil, s, nil
		}

		// An unanswered question is an automatic wrong answer without the
		// score penalty: streak cleared, pointer advanced.
		np := p
		np.Combo = ComboState{}
		np.QuestionIndex++
		np.QuestionStartedAt = cmd.Now

		ns := s
		ns.Questions = ensureQuestions(s.Questions, np.QuestionIndex, s.Settings)
		ns.Players = clonePlayers(s.Players)
		ns.Players[cmd.PlayerID] = np

		events := []Event{
			{Type: EvtQuestionAdvanced, PlayerID: cmd.PlayerID, Question: ns.Questions[np.QuestionIndex], Combo: np.Combo},
		}
		return events, ns, nil

	case CmdRemovePlayer:
		if _, ok := s.Players[cmd.PlayerID]; !ok {
			return nil, s, nil
		}
		ns := s
		ns.Players = clonePlayers(s.Players)
		delete(ns.Players, cmd.PlayerID)
		return nil, ns, nil

	case CmdReturnToLobby:
		if s.Phase != PhaseEnded {
			return nil, s, ErrInvalidPhase
		}
		return []Event{{Type: EvtReturnedToLobby}}, NewIdleState(s.Settings), nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

// CurrentQuestion returns the question a player is facing, if the match has
// one for them.
func CurrentQuestion(s State, playerID string) (Question, bool) {
	p, ok := s.Players[playerID]
	if !ok || p.QuestionIndex >= len(s.Questions) {
		return Question{}, false
	}
	return s.Questions[p.QuestionIndex], true
}

func ensureQuestions(qs []Question, index int, settings GameSettings) []Question {
	if index < len(qs) {
		return qs
	}
	batch := Generate(settings.Operations, settings.Difficulty, QuestionBatchSize, len(qs)+1)
	return append(qs, batch...)
}

func clonePlayers(players map[string]PlayerState) map[string]PlayerState {
	next := make(map[string]PlayerState, len(players))
	for id, p := range players {
		next[id] = p
	}
	return next
}

func answerMatches(raw string, want int) bool {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	return err == nil && n == want
}
