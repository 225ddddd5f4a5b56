package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mathrush/mathrush-backend/internal/hub"
	"github.com/mathrush/mathrush-backend/internal/lobby"
	"github.com/mathrush/mathrush-backend/pkg/types"
)

// Handler upgrades the connection and runs the event router: inbound client
// messages become lobby messages, the outbox channel carries everything the
// lobby wants this client to see.
func Handler(h *hub.Hub, logger *zap.Logger, origins []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: origins,
		})
		if err != nil {
			logger.Warn("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		s := &session{
			id:   uuid.NewString(),
			out:  make(chan types.ServerMessage, 16),
			hub:  h,
			conn: conn,
		}
		s.log = logger.With(zap.String("player", s.id))

		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go writePump(writeCtx, conn, s.out)

		// Disconnect mid-anything is just a leave.
		defer s.leaveCurrent()

		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					s.log.Debug("read loop ended", zap.Error(err))
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				s.trySend(types.ServerMessage{Type: types.EvtError, Error: "bad json"})
				continue
			}
			s.handle(cm)
		}
	}
}

// writePump drains the outbox onto the socket. If the lobby closes the
// outbox (slow-client drop or lobby shutdown) the socket goes with it.
func writePump(ctx context.Context, conn *websocket.Conn, out <-chan types.ServerMessage) {
	for msg := range out {
		payload, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		wctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err = conn.Write(wctx, websocket.MessageText, payload)
		cancel()
		if err != nil {
			return
		}
	}
	conn.Close(websocket.StatusGoingAway, "lobby closed")
}

// ackTimeout bounds how long an ack may wait on a congested outbox before
// the client is considered gone.
const ackTimeout = 3 * time.Second

// session is one connection's routing state. Only the read loop touches it.
type session struct {
	id   string
	out  chan types.ServerMessage
	hub  *hub.Hub
	cur  *lobby.Lobby
	conn *websocket.Conn
	log  *zap.Logger
}

func (s *session) handle(m types.ClientMessage) {
	switch m.Type {
	case types.MsgCreateLobby:
		s.createLobby(m)

	case types.MsgJoinLobby:
		s.joinLobby(m)

	case types.MsgLeaveLobby:
		s.leaveCurrent()

	case types.MsgToggleReady:
		s.toggleReady(m)

	case types.MsgUpdateSettings:
		if !s.requireLobby() {
			return
		}
		if m.Settings == nil {
			s.trySend(types.ServerMessage{Type: types.EvtError, Error: "missing settings"})
			return
		}
		s.cur.Inbox() <- lobby.UpdateSettings{PlayerID: s.id, Patch: *m.Settings}

	case types.MsgStartGame:
		if !s.requireLobby() {
			return
		}
		s.cur.Inbox() <- lobby.StartGame{PlayerID: s.id}

	case types.MsgSubmitAnswer:
		if !s.requireLobby() {
			return
		}
		s.cur.Inbox() <- lobby.SubmitAnswer{
			PlayerID:   s.id,
			QuestionID: m.QuestionID,
			Answer:     m.Answer,
			TimeTaken:  m.TimeTaken,
		}

	case types.MsgReturnToLobby:
		if !s.requireLobby() {
			return
		}
		s.cur.Inbox() <- lobby.ReturnToLobby{PlayerID: s.id}

	default:
		s.trySend(types.ServerMessage{Type: types.EvtError, Error: "unknown message type"})
	}
}

func (s *session) createLobby(m types.ClientMessage) {
	name := strings.TrimSpace(m.Name)
	if name == "" {
		s.ackErr(m.Seq, "name required")
		return
	}
	if s.cur != nil {
		s.ackErr(m.Seq, "already in a lobby")
		return
	}

	reply := make(chan hub.CreateResult, 1)
	s.hub.Inbox() <- hub.CreateLobby{Reply: reply}
	res := <-reply
	if res.Err != nil {
		s.ackErr(m.Seq, res.Err.Error())
		return
	}
	s.attach(res.Lobby, name, m.Seq)
}

func (s *session) joinLobby(m types.ClientMessage) {
	name := strings.TrimSpace(m.Name)
	if name == "" {
		s.ackErr(m.Seq, "name required")
		return
	}
	if s.cur != nil {
		s.ackErr(m.Seq, "already in a lobby")
		return
	}

	reply := make(chan *lobby.Lobby, 1)
	s.hub.Inbox() <- hub.GetLobby{Code: m.Code, Reply: reply}
	lb := <-reply
	if lb == nil {
		s.ackErr(m.Seq, "lobby not found")
		return
	}
	s.attach(lb, name, m.Seq)
}

// attach joins a lobby and resolves the create/join ack exactly once.
func (s *session) attach(lb *lobby.Lobby, name string, seq int) {
	join := lobby.Join{
		PlayerID: s.id,
		Name:     name,
		Outbox:   s.out,
		Reply:    make(chan lobby.JoinResult, 1),
	}
	lb.Inbox() <- join
	res := <-join.Reply
	if res.Err != nil {
		s.ackErr(seq, res.Err.Error())
		return
	}
	s.cur = lb
	snap := res.Snapshot
	s.ack(types.ServerMessage{Type: types.EvtAck, Seq: seq, Success: true, Lobby: &snap})
	s.log.Info("attached to lobby", zap.String("code", lb.Code()))
}

func (s *session) toggleReady(m types.ClientMessage) {
	if s.cur == nil {
		s.ackErr(m.Seq, "not in a lobby")
		return
	}
	reply := make(chan lobby.ToggleReadyResult, 1)
	s.cur.Inbox() <- lobby.ToggleReady{PlayerID: s.id, Reply: reply}
	res := <-reply
	if res.Err != nil {
		s.ackErr(m.Seq, res.Err.Error())
		return
	}
	ready := res.IsReady
	s.ack(types.ServerMessage{Type: types.EvtAck, Seq: m.Seq, Success: true, IsReady: &ready})
}

func (s *session) leaveCurrent() {
	if s.cur == nil {
		return
	}
	// The lobby may already be gone (shutdown closed our outbox first);
	// don't wedge the reader on a dead inbox.
	select {
	case s.cur.Inbox() <- lobby.Leave{PlayerID: s.id}:
	case <-time.After(time.Second):
	}
	s.cur = nil
}

// requireLobby reports whether the session is attached, raising a
// sender-scoped error when it is not.
func (s *session) requireLobby() bool {
	if s.cur == nil {
		s.trySend(types.ServerMessage{Type: types.EvtError, Error: "not in a lobby"})
		return false
	}
	return true
}

func (s *session) ackErr(seq int, msg string) {
	s.ack(types.ServerMessage{Type: types.EvtAck, Seq: seq, Success: false, Error: msg})
}

// ack delivers a request acknowledgement. Acks are never dropped: if the
// outbox stays full past the timeout the connection is torn down instead,
// matching the lobby's slow-client policy.
func (s *session) ack(msg types.ServerMessage) {
	defer func() { _ = recover() }()
	select {
	case s.out <- msg:
	case <-time.After(ackTimeout):
		s.log.Warn("client too slow for ack, dropping connection")
		if s.conn != nil {
			s.conn.Close(websocket.StatusPolicyViolation, "client too slow")
		}
	}
}

// trySend is non-blocking, for advisory error events only: a wedged client
// loses them rather than wedging the reader. The outbox may be closed by a
// slow-client drop racing this goroutine, hence the recover.
func (s *session) trySend(msg types.ServerMessage) {
	defer func() { _ = recover() }()
	select {
	case s.out <- msg:
	default:
	}
}
