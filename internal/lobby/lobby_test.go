package lobby

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/mathrush/mathrush-backend/internal/engine"
	"github.com/mathrush/mathrush-backend/pkg/types"
)

func newTestLobby(t *testing.T, opts Options) *Lobby {
	t.Helper()
	l := NewLobby(context.Background(), "ABCD", opts)
	t.Cleanup(func() {
		select {
		case l.inbox <- Shutdown{}:
		default:
		}
	})
	return l
}

func joinPlayer(t *testing.T, l *Lobby, id, name string) (chan types.ServerMessage, JoinResult) {
	t.Helper()
	out := make(chan types.ServerMessage, 32)
	reply := make(chan JoinResult, 1)
	l.Inbox() <- Join{PlayerID: id, Name: name, Outbox: out, Reply: reply}
	select {
	case res := <-reply:
		return out, res
	case <-time.After(2 * time.Second):
		t.Fatal("join timed out")
		return nil, JoinResult{}
	}
}

func mustJoin(t *testing.T, l *Lobby, id, name string) chan types.ServerMessage {
	t.Helper()
	out, res := joinPlayer(t, l, id, name)
	if res.Err != nil {
		t.Fatalf("join %s: %v", id, res.Err)
	}
	return out
}

// recvType drains the outbox until a message of the wanted type arrives.
func recvType(t *testing.T, out chan types.ServerMessage, typ string) types.ServerMessage {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case m, ok := <-out:
			if !ok {
				t.Fatalf("outbox closed waiting for %q", typ)
			}
			if m.Type == typ {
				return m
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", typ)
		}
	}
}

func toggleReady(t *testing.T, l *Lobby, id string) bool {
	t.Helper()
	reply := make(chan ToggleReadyResult, 1)
	l.Inbox() <- ToggleReady{PlayerID: id, Reply: reply}
	select {
	case res := <-reply:
		if res.Err != nil {
			t.Fatalf("toggle ready %s: %v", id, res.Err)
		}
		return res.IsReady
	case <-time.After(2 * time.Second):
		t.Fatal("toggle ready timed out")
		return false
	}
}

// startMatch readies the host, starts the match and returns the host's first
// question.
func startMatch(t *testing.T, l *Lobby, hostID string, hostOut chan types.ServerMessage) *engine.Question {
	t.Helper()
	toggleReady(t, l, hostID)
	l.Inbox() <- StartGame{PlayerID: hostID}
	msg := recvType(t, hostOut, types.EvtQuestionUpdated)
	if msg.Question == nil {
		t.Fatal("question-updated carried no question")
	}
	return msg.Question
}

func TestJoinFirstPlayerIsHost(t *testing.T) {
	l := newTestLobby(t, Options{})

	aliceOut, res := joinPlayer(t, l, "alice", "Alice")
	if res.Err != nil {
		t.Fatalf("join: %v", res.Err)
	}
	if res.Snapshot.Host != "alice" {
		t.Errorf("host = %q, want alice", res.Snapshot.Host)
	}

	_, res = joinPlayer(t, l, "bob", "Bob")
	if res.Err != nil {
		t.Fatalf("join: %v", res.Err)
	}
	if res.Snapshot.Host != "alice" {
		t.Errorf("host changed to %q on second join", res.Snapshot.Host)
	}
	if len(res.Snapshot.Players) != 2 {
		t.Errorf("players = %d, want 2", len(res.Snapshot.Players))
	}

	// Existing members hear about the new arrival.
	for {
		msg := recvType(t, aliceOut, types.EvtLobbyUpdated)
		if len(msg.Lobby.Players) == 2 {
			break
		}
	}
}

func TestJoinWhileMatchRunning(t *testing.T) {
	l := newTestLobby(t, Options{})
	aliceOut := mustJoin(t, l, "alice", "Alice")
	startMatch(t, l, "alice", aliceOut)

	_, res := joinPlayer(t, l, "carol", "Carol")
	if !errors.Is(res.Err, ErrMatchInProgress) {
		t.Fatalf("err = %v, want ErrMatchInProgress", res.Err)
	}

	reply := make(chan View, 1)
	l.Inbox() <- GetState{Reply: reply}
	if v := <-reply; v.NumPlayers != 1 {
		t.Errorf("roster grew on rejected join: %d players", v.NumPlayers)
	}
}

func TestJoinFullLobby(t *testing.T) {
	l := newTestLobby(t, Options{MaxPlayers: 2})
	mustJoin(t, l, "alice", "Alice")
	mustJoin(t, l, "bob", "Bob")

	_, res := joinPlayer(t, l, "carol", "Carol")
	if !errors.Is(res.Err, ErrLobbyFull) {
		t.Fatalf("err = %v, want ErrLobbyFull", res.Err)
	}
}

func TestHostPromotionOnLeave(t *testing.T) {
	l := newTestLobby(t, Options{})
	mustJoin(t, l, "alice", "Alice")
	bobOut := mustJoin(t, l, "bob", "Bob")

	l.Inbox() <- Leave{PlayerID: "alice"}

	for {
		msg := recvType(t, bobOut, types.EvtLobbyUpdated)
		if len(msg.Lobby.Players) == 1 {
			if msg.Lobby.Host != "bob" {
				t.Fatalf("host = %q, want bob", msg.Lobby.Host)
			}
			return
		}
	}
}

func TestToggleReadyRoundTrip(t *testing.T) {
	l := newTestLobby(t, Options{})
	mustJoin(t, l, "alice", "Alice")

	if !toggleReady(t, l, "alice") {
		t.Error("first toggle should report ready")
	}
	if toggleReady(t, l, "alice") {
		t.Error("second toggle should report not ready")
	}
}

func TestUpdateSettingsHostOnly(t *testing.T) {
	l := newTestLobby(t, Options{})
	aliceOut := mustJoin(t, l, "alice", "Alice")
	bobOut := mustJoin(t, l, "bob", "Bob")

	hard := engine.DifficultyHard
	l.Inbox() <- UpdateSettings{PlayerID: "bob", Patch: engine.SettingsPatch{Difficulty: &hard}}
	if msg := recvType(t, bobOut, types.EvtError); msg.Error != ErrNotHost.Error() {
		t.Errorf("error = %q, want %q", msg.Error, ErrNotHost.Error())
	}

	l.Inbox() <- UpdateSettings{PlayerID: "alice", Patch: engine.SettingsPatch{Difficulty: &hard}}
	for {
		msg := recvType(t, aliceOut, types.EvtLobbyUpdated)
		if msg.Lobby.Settings.Difficulty == engine.DifficultyHard {
			return
		}
	}
}

func TestUpdateSettingsRejectsInvalid(t *testing.T) {
	l := newTestLobby(t, Options{})
	aliceOut := mustJoin(t, l, "alice", "Alice")

	bad := 42
	l.Inbox() <- UpdateSettings{PlayerID: "alice", Patch: engine.SettingsPatch{Duration: &bad}}
	if msg := recvType(t, aliceOut, types.EvtError); msg.Error != engine.ErrInvalidSettings.Error() {
		t.Errorf("error = %q, want %q", msg.Error, engine.ErrInvalidSettings.Error())
	}
}

func TestStartGameRequiresReadyHost(t *testing.T) {
	l := newTestLobby(t, Options{})
	aliceOut := mustJoin(t, l, "alice", "Alice")

	l.Inbox() <- StartGame{PlayerID: "alice"}
	if msg := recvType(t, aliceOut, types.EvtError); msg.Error != ErrHostNotReady.Error() {
		t.Errorf("error = %q, want %q", msg.Error, ErrHostNotReady.Error())
	}
}

func TestStartGameBroadcasts(t *testing.T) {
	l := newTestLobby(t, Options{})
	aliceOut := mustJoin(t, l, "alice", "Alice")
	bobOut := mustJoin(t, l, "bob", "Bob")

	toggleReady(t, l, "alice")
	l.Inbox() <- StartGame{PlayerID: "alice"}

	for _, out := range []chan types.ServerMessage{aliceOut, bobOut} {
		started := recvType(t, out, types.EvtGameStarted)
		if started.GameState == nil || started.GameState.Phase != engine.PhaseActive {
			t.Fatalf("game-started payload = %+v", started.GameState)
		}
		if started.GameState.TimeRemaining != 120 {
			t.Errorf("time remaining = %d, want 120", started.GameState.TimeRemaining)
		}
		q := recvType(t, out, types.EvtQuestionUpdated)
		if q.Question == nil || q.Question.ID != 1 {
			t.Fatalf("first question = %+v", q.Question)
		}
	}
}

func TestSubmitAnswerBroadcastsResult(t *testing.T) {
	l := newTestLobby(t, Options{})
	aliceOut := mustJoin(t, l, "alice", "Alice")
	bobOut := mustJoin(t, l, "bob", "Bob")

	q := startMatch(t, l, "alice", aliceOut)
	l.Inbox() <- SubmitAnswer{PlayerID: "alice", QuestionID: q.ID, Answer: strconv.Itoa(q.Answer)}

	// Everyone sees the result.
	answered := recvType(t, bobOut, types.EvtPlayerAnswered)
	if answered.PlayerID != "alice" {
		t.Errorf("player = %q, want alice", answered.PlayerID)
	}
	if answered.IsCorrect == nil || !*answered.IsCorrect {
		t.Error("correct answer reported incorrect")
	}
	if answered.NewScore == nil || *answered.NewScore != 100 {
		t.Errorf("score = %v, want 100", answered.NewScore)
	}

	// Only the answerer gets the next question.
	next := recvType(t, aliceOut, types.EvtQuestionUpdated)
	if next.Question.ID != q.ID+1 {
		t.Errorf("next question ID = %d, want %d", next.Question.ID, q.ID+1)
	}
}

func TestMatchTickBroadcasts(t *testing.T) {
	l := newTestLobby(t, Options{})
	aliceOut := mustJoin(t, l, "alice", "Alice")
	startMatch(t, l, "alice", aliceOut)

	tick := recvType(t, aliceOut, types.EvtTimerUpdate)
	if tick.TimeRemaining == nil || *tick.TimeRemaining != 119 {
		t.Errorf("first tick = %v, want 119", tick.TimeRemaining)
	}
}

func TestLastLeaveTriggersOnEmpty(t *testing.T) {
	emptied := make(chan string, 1)
	l := newTestLobby(t, Options{OnEmpty: func(code string) { emptied <- code }})
	mustJoin(t, l, "alice", "Alice")

	l.Inbox() <- Leave{PlayerID: "alice"}

	select {
	case code := <-emptied:
		if code != "ABCD" {
			t.Errorf("emptied code = %q, want ABCD", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnEmpty never fired")
	}
}

func TestBroadcastEvictsMultipleSlowClients(t *testing.T) {
	emptied := make(chan string, 1)
	l := newTestLobby(t, Options{OnEmpty: func(code string) { emptied <- code }})

	joinWithCap := func(id, name string, size int) chan types.ServerMessage {
		t.Helper()
		out := make(chan types.ServerMessage, size)
		reply := make(chan JoinResult, 1)
		l.Inbox() <- Join{PlayerID: id, Name: name, Outbox: out, Reply: reply}
		if res := <-reply; res.Err != nil {
			t.Fatalf("join %s: %v", id, res.Err)
		}
		return out
	}

	// After both joins each outbox holds exactly its capacity in
	// lobby-updated broadcasts, so the next broadcast finds both full.
	aliceOut := joinWithCap("alice", "Alice", 2)
	bobOut := joinWithCap("bob", "Bob", 1)

	reply := make(chan ToggleReadyResult, 1)
	l.Inbox() <- ToggleReady{PlayerID: "alice", Reply: reply}
	<-reply

	// Both clients get evicted, the lobby empties out and the loop
	// survives to report it.
	select {
	case code := <-emptied:
		if code != "ABCD" {
			t.Errorf("emptied code = %q, want ABCD", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("slow clients were not evicted")
	}

	for _, out := range []chan types.ServerMessage{aliceOut, bobOut} {
		drainUntilClosed(t, out)
	}
}

func drainUntilClosed(t *testing.T, out chan types.ServerMessage) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-out:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("outbox never closed")
		}
	}
}

func TestGetState(t *testing.T) {
	l := newTestLobby(t, Options{})
	mustJoin(t, l, "alice", "Alice")

	reply := make(chan View, 1)
	l.Inbox() <- GetState{Reply: reply}
	select {
	case v := <-reply:
		if v.Code != "ABCD" || v.NumPlayers != 1 || v.State.Phase != engine.PhaseIdle {
			t.Errorf("view = %+v", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("GetState timed out")
	}
}
