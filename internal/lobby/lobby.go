package lobby

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/mathrush/mathrush-backend/internal/engine"
	"github.com/mathrush/mathrush-backend/internal/history"
	"github.com/mathrush/mathrush-backend/pkg/types"
)

// MaxPlayers is the default roster cap.
const MaxPlayers = 20

// idleGrace is how long a freshly created lobby may sit with no members
// before it reaps itself. Covers the create/attach race without a sweeper.
const idleGrace = 60 * time.Second

type player struct {
	id      string
	name    string
	isHost  bool
	isReady bool
	outbox  chan types.ServerMessage
}

type Options struct {
	MaxPlayers int
	Recorder   history.Recorder
	Logger     *zap.Logger
	// OnEmpty is called (from the lobby goroutine) when the last player
	// leaves, right before the lobby shuts down. Typically wired to the
	// hub's RemoveLobby.
	OnEmpty func(code string)
}

// Lobby is a single-goroutine actor: all mutation happens on the loop, so
// handlers never race and need no locks.
type Lobby struct {
	code    string
	inbox   chan Msg
	players []*player // insertion order; players[0] after promotion is host
	state   engine.State

	timerGen     int
	tickTimer    *time.Timer
	answerTimers map[string]*time.Timer
	reapTimer    *time.Timer

	maxPlayers int
	recorder   history.Recorder
	log        *zap.Logger
	onEmpty    func(code string)

	ctx    context.Context
	cancel context.CancelFunc
}

func NewLobby(parent context.Context, code string, opts Options) *Lobby {
	ctx, cancel := context.WithCancel(parent)

	if opts.MaxPlayers <= 0 {
		opts.MaxPlayers = MaxPlayers
	}
	if opts.Recorder == nil {
		opts.Recorder = history.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	l := &Lobby{
		code:         code,
		inbox:        make(chan Msg, 64),
		state:        engine.NewIdleState(engine.DefaultSettings()),
		answerTimers: make(map[string]*time.Timer),
		maxPlayers:   opts.MaxPlayers,
		recorder:     opts.Recorder,
		log:          opts.Logger.With(zap.String("lobby", code)),
		onEmpty:      opts.OnEmpty,
		ctx:          ctx,
		cancel:       cancel,
	}
	l.reapTimer = time.AfterFunc(idleGrace, func() { l.post(idleReap{}) })

	go l.loop()
	return l
}

func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

func (l *Lobby) Code() string { return l.code }

// post delivers an internal timer message without wedging the firing
// goroutine if the lobby has already shut down.
func (l *Lobby) post(m Msg) {
	select {
	case l.inbox <- m:
	case <-l.ctx.Done():
	}
}

func (l *Lobby) loop() {
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Join:
				l.handleJoin(msg)

			case Leave:
				if l.handleLeave(msg.PlayerID) {
					l.shutdown()
					return
				}

			case ToggleReady:
				l.handleToggleReady(msg)

			case UpdateSettings:
				l.handleUpdateSettings(msg)

			case StartGame:
				l.handleStartGame(msg)

			case SubmitAnswer:
				l.handleSubmitAnswer(msg)

			case ReturnToLobby:
				l.handleReturnToLobby(msg)

			case matchTick:
				l.handleMatchTick(msg)

			case answerTimeout:
				l.handleAnswerTimeout(msg)

			case idleReap:
				if len(l.players) == 0 {
					l.log.Info("reaping never-joined lobby")
					if l.onEmpty != nil {
						l.onEmpty(l.code)
					}
					l.shutdown()
					return
				}

			case GetState:
				msg.Reply <- View{
					Code:       l.code,
					NumPlayers: len(l.players),
					Snapshot:   l.snapshot(),
					State:      l.state,
				}

			case Shutdown:
				l.shutdown()
				return
			}
		}
	}
}

func (l *Lobby) handleJoin(msg Join) {
	if l.state.Phase != engine.PhaseIdle {
		msg.Reply <- JoinResult{Err: ErrMatchInProgress}
		return
	}
	if len(l.players) >= l.maxPlayers {
		msg.Reply <- JoinResult{Err: ErrLobbyFull}
		return
	}

	p := &player{
		id:     msg.PlayerID,
		name:   msg.Name,
		isHost: len(l.players) == 0,
		outbox: msg.Outbox,
	}
	l.players = append(l.players, p)
	l.reapTimer.Stop()

	l.log.Info("player joined", zap.String("player", p.id), zap.String("name", p.name), zap.Bool("host", p.isHost))
	msg.Reply <- JoinResult{Snapshot: l.snapshot()}
	l.broadcastLobbyUpdated()
}

// handleLeave removes a player and reports whether the lobby is now empty.
func (l *Lobby) handleLeave(playerID string) bool {
	idx := -1
	for i, p := range l.players {
		if p.id == playerID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}

	wasHost := l.players[idx].isHost
	l.stopAnswerTimer(playerID)
	l.players = append(l.players[:idx], l.players[idx+1:]...)

	// A departing player doesn't pause the match for anyone else; their
	// combo and timers are simply discarded.
	if _, ns, err := engine.Apply(l.state, engine.Command{Type: engine.CmdRemovePlayer, PlayerID: playerID}); err == nil {
		l.state = ns
	}

	if len(l.players) == 0 {
		l.log.Info("last player left, removing lobby")
		if l.onEmpty != nil {
			l.onEmpty(l.code)
		}
		return true
	}

	if wasHost {
		l.players[0].isHost = true
		l.log.Info("host left, promoting earliest member", zap.String("player", l.players[0].id))
	}
	l.broadcastLobbyUpdated()
	return false
}

func (l *Lobby) handleToggleReady(msg ToggleReady) {
	p := l.find(msg.PlayerID)
	if p == nil {
		msg.Reply <- ToggleReadyResult{Err: ErrNotMember}
		return
	}
	if l.state.Phase != engine.PhaseIdle {
		msg.Reply <- ToggleReadyResult{IsReady: p.isReady, Err: engine.ErrInvalidPhase}
		return
	}
	p.isReady = !p.isReady
	msg.Reply <- ToggleReadyResult{IsReady: p.isReady}
	l.broadcastLobbyUpdated()
}

func (l *Lobby) handleUpdateSettings(msg UpdateSettings) {
	p := l.find(msg.PlayerID)
	if p == nil {
		return
	}
	if !p.isHost {
		l.sendError(p, ErrNotHost)
		return
	}
	if l.state.Phase != engine.PhaseIdle {
		l.sendError(p, engine.ErrInvalidPhase)
		return
	}
	next, err := l.state.Settings.Merge(msg.Patch)
	if err != nil {
		l.sendError(p, err)
		return
	}
	l.state.Settings = next
	l.broadcastLobbyUpdated()
}

func (l *Lobby) handleStartGame(msg StartGame) {
	p := l.find(msg.PlayerID)
	if p == nil {
		return
	}
	if !p.isHost {
		l.sendError(p, ErrNotHost)
		return
	}
	if !p.isReady {
		l.sendError(p, ErrHostNotReady)
		return
	}

	ids := make([]string, len(l.players))
	for i, pl := range l.players {
		ids[i] = pl.id
	}
	events, ns, err := engine.Apply(l.state, engine.Command{
		Type:      engine.CmdStartGame,
		PlayerIDs: ids,
		Now:       time.Now(),
	})
	if err != nil {
		l.sendError(p, err)
		return
	}
	l.state = ns
	l.log.Info("match started",
		zap.Int("players", len(ids)),
		zap.String("difficulty", string(ns.Settings.Difficulty)),
		zap.Int("duration", ns.Settings.Duration))
	l.dispatch(events)
}

func (l *Lobby) handleSubmitAnswer(msg SubmitAnswer) {
	p := l.find(msg.PlayerID)
	if p == nil {
		return
	}
	events, ns, err := engine.Apply(l.state, engine.Command{
		Type:       engine.CmdSubmitAnswer,
		PlayerID:   msg.PlayerID,
		QuestionID: msg.QuestionID,
		Answer:     msg.Answer,
		Now:        time.Now(),
	})
	if err != nil {
		l.sendError(p, err)
		return
	}
	l.state = ns
	l.dispatch(events)
}

func (l *Lobby) handleReturnToLobby(msg ReturnToLobby) {
	p := l.find(msg.PlayerID)
	if p == nil {
		return
	}
	if !p.isHost {
		l.sendError(p, ErrNotHost)
		return
	}
	events, ns, err := engine.Apply(l.state, engine.Command{Type: engine.CmdReturnToLobby})
	if err != nil {
		l.sendError(p, err)
		return
	}
	l.state = ns
	l.dispatch(events)
}

func (l *Lobby) handleMatchTick(msg matchTick) {
	if msg.gen != l.timerGen {
		return // tick from a match that already moved on
	}
	events, ns, err := engine.Apply(l.state, engine.Command{Type: engine.CmdTick})
	if err != nil {
		return
	}
	l.state = ns
	l.dispatch(events)
	if l.state.Phase == engine.PhaseActive {
		l.armTick()
	}
}

func (l *Lobby) handleAnswerTimeout(msg answerTimeout) {
	if msg.gen != l.timerGen {
		return
	}
	events, ns, err := engine.Apply(l.state, engine.Command{
		Type:       engine.CmdQuestionTimeout,
		PlayerID:   msg.playerID,
		QuestionID: msg.questionID,
		Now:        time.Now(),
	})
	if err != nil {
		return
	}
	l.state = ns
	l.dispatch(events)
}

// dispatch turns engine events into wire traffic and timer updates. Must
// run after the state mutation is fully applied, never interleaved.
func (l *Lobby) dispatch(events []engine.Event) {
	for _, ev := range events {
		switch ev.Type {
		case engine.EvtGameStarted:
			gs := l.gameStateSnapshot()
			l.broadcast(types.ServerMessage{Type: types.EvtGameStarted, GameState: &gs})
			l.armTick()

		case engine.EvtTimerUpdate:
			tr := ev.TimeRemaining
			l.broadcast(types.ServerMessage{Type: types.EvtTimerUpdate, TimeRemaining: &tr})

		case engine.EvtPlayerAnswered:
			correct, score := ev.Correct, ev.Score
			l.broadcast(types.ServerMessage{
				Type:      types.EvtPlayerAnswered,
				PlayerID:  ev.PlayerID,
				IsCorrect: &correct,
				NewScore:  &score,
			})

		case engine.EvtQuestionAdvanced:
			q := ev.Question
			combo := types.ComboSnapshot{Count: ev.Combo.Count, Active: ev.Combo.Active}
			l.sendTo(ev.PlayerID, types.ServerMessage{
				Type:     types.EvtQuestionUpdated,
				Question: &q,
				Combo:    &combo,
			})
			l.armAnswerTimer(ev.PlayerID, q.ID)

		case engine.EvtGameEnded:
			l.finishMatch()

		case engine.EvtReturnedToLobby:
			for _, p := range l.players {
				p.isReady = false
			}
			l.broadcast(types.ServerMessage{Type: types.EvtReturnToLobby})
			l.broadcastLobbyUpdated()
		}
	}
}

func (l *Lobby) finishMatch() {
	l.cancelMatchTimers()

	final := l.finalScores()
	l.broadcast(types.ServerMessage{Type: types.EvtGameEnded, FinalScores: final})
	l.log.Info("match ended", zap.Int("players", len(final)))

	result := history.MatchResult{
		LobbyCode:  l.code,
		Difficulty: string(l.state.Settings.Difficulty),
		Duration:   l.state.Settings.Duration,
		EndedAt:    time.Now(),
	}
	for _, s := range final {
		result.Scores = append(result.Scores, history.PlayerScore{PlayerID: s.ID, Name: s.Name, Score: s.Score})
	}
	rec, log := l.recorder, l.log
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rec.RecordMatch(ctx, result); err != nil {
			log.Warn("failed to record match result", zap.Error(err))
		}
	}()
}

// Timers

func (l *Lobby) armTick() {
	gen := l.timerGen
	if l.tickTimer != nil {
		l.tickTimer.Stop()
	}
	l.tickTimer = time.AfterFunc(time.Second, func() { l.post(matchTick{gen: gen}) })
}

func (l *Lobby) armAnswerTimer(playerID string, questionID int) {
	l.stopAnswerTimer(playerID)
	gen := l.timerGen
	l.answerTimers[playerID] = time.AfterFunc(engine.AnswerTimeout, func() {
		l.post(answerTimeout{playerID: playerID, questionID: questionID, gen: gen})
	})
}

func (l *Lobby) stopAnswerTimer(playerID string) {
	if t, ok := l.answerTimers[playerID]; ok {
		t.Stop()
		delete(l.answerTimers, playerID)
	}
}

// cancelMatchTimers invalidates every scheduled fire for the current phase.
// Called on every phase transition so a stale tick can never resurrect a
// finished match.
func (l *Lobby) cancelMatchTimers() {
	l.timerGen++
	if l.tickTimer != nil {
		l.tickTimer.Stop()
		l.tickTimer = nil
	}
	for id, t := range l.answerTimers {
		t.Stop()
		delete(l.answerTimers, id)
	}
}

// Broadcast plumbing

func (l *Lobby) find(playerID string) *player {
	for _, p := range l.players {
		if p.id == playerID {
			return p
		}
	}
	return nil
}

func (l *Lobby) sendError(p *player, err error) {
	l.sendTo(p.id, types.ServerMessage{Type: types.EvtError, Error: err.Error()})
}

func (l *Lobby) sendTo(playerID string, msg types.ServerMessage) {
	p := l.find(playerID)
	if p == nil {
		return
	}
	select {
	case p.outbox <- msg:
	default:
		l.dropSlow([]*player{p})
	}
}

func (l *Lobby) broadcast(msg types.ServerMessage) {
	var slow []*player
	for _, p := range l.players {
		select {
		case p.outbox <- msg:
		default:
			slow = append(slow, p)
		}
	}
	l.dropSlow(slow)
}

// dropSlow evicts clients whose outboxes are full. The ws layer notices the
// closed channel and tears the connection down. Eviction runs the leave
// path, whose own broadcasts may evict further players from this same
// batch; the roster check keeps an already-evicted outbox from being
// closed twice.
func (l *Lobby) dropSlow(players []*player) {
	for _, p := range players {
		if l.find(p.id) == nil {
			continue
		}
		l.log.Warn("dropping slow client", zap.String("player", p.id))
		close(p.outbox)
		if l.handleLeave(p.id) {
			l.cancel()
		}
	}
}

func (l *Lobby) broadcastLobbyUpdated() {
	snap := l.snapshot()
	l.broadcast(types.ServerMessage{Type: types.EvtLobbyUpdated, Lobby: &snap})
}

// Snapshots

func (l *Lobby) snapshot() types.LobbySnapshot {
	host := ""
	players := make([]types.PlayerSnapshot, 0, len(l.players))
	for _, p := range l.players {
		if p.isHost {
			host = p.id
		}
		players = append(players, types.PlayerSnapshot{
			ID:      p.id,
			Name:    p.name,
			IsHost:  p.isHost,
			IsReady: p.isReady,
			Score:   l.state.Players[p.id].Score,
		})
	}
	return types.LobbySnapshot{
		Code:     l.code,
		Players:  players,
		Settings: l.state.Settings,
		Host:     host,
		Phase:    l.state.Phase,
	}
}

func (l *Lobby) gameStateSnapshot() types.GameStateSnapshot {
	snap := l.snapshot()
	return types.GameStateSnapshot{
		Phase:         l.state.Phase,
		TimeRemaining: l.state.TimeRemaining,
		Settings:      l.state.Settings,
		Players:       snap.Players,
	}
}

func (l *Lobby) finalScores() []types.PlayerSnapshot {
	scores := l.snapshot().Players
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })
	return scores
}

func (l *Lobby) shutdown() {
	l.cancelMatchTimers()
	l.reapTimer.Stop()
	for _, p := range l.players {
		close(p.outbox)
	}
	l.players = nil
	l.cancel()
}
