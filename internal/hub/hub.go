package hub

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"strings"

	"go.uber.org/zap"

	"github.com/mathrush/mathrush-backend/internal/history"
	"github.com/mathrush/mathrush-backend/internal/lobby"
)

var ErrCodeSpaceExhausted = errors.New("no free lobby codes")

const codeLength = 4
const codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// maxCodeAttempts bounds the collision retry loop. With 26^4 codes the
// bound is unreachable until the registry is nearly full.
const maxCodeAttempts = 1000

type HubMsg interface{ isHubMsg() }

type CreateLobby struct {
	Reply chan CreateResult
}

type CreateResult struct {
	Lobby *lobby.Lobby
	Code  string
	Err   error
}

type GetLobby struct {
	Code  string // matched case-insensitively
	Reply chan *lobby.Lobby
}

type RemoveLobby struct {
	Code string
}

type ShutdownHub struct{}

func (CreateLobby) isHubMsg() {}
func (GetLobby) isHubMsg()    {}
func (RemoveLobby) isHubMsg() {}
func (ShutdownHub) isHubMsg() {}

type Hub struct {
	inbox   chan HubMsg
	lobbies map[string]*lobby.Lobby

	maxPlayers int
	recorder   history.Recorder
	log        *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

type Options struct {
	MaxPlayersPerLobby int
	Recorder           history.Recorder
	Logger             *zap.Logger
}

func NewHub(parent context.Context, opts Options) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	h := &Hub{
		inbox:      make(chan HubMsg, 64),
		lobbies:    make(map[string]*lobby.Lobby),
		maxPlayers: opts.MaxPlayersPerLobby,
		recorder:   opts.Recorder,
		log:        opts.Logger,
		ctx:        ctx,
		cancel:     cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateLobby:
				code, err := h.freeCode()
				if err != nil {
					msg.Reply <- CreateResult{Err: err}
					break
				}
				lb := lobby.NewLobby(h.ctx, code, lobby.Options{
					MaxPlayers: h.maxPlayers,
					Recorder:   h.recorder,
					Logger:     h.log,
					OnEmpty:    h.removeWhenEmpty,
				})
				h.lobbies[code] = lb
				h.log.Info("lobby created", zap.String("code", code))
				msg.Reply <- CreateResult{Lobby: lb, Code: code}

			case GetLobby:
				msg.Reply <- h.lobbies[strings.ToUpper(msg.Code)] // may be nil

			case RemoveLobby:
				delete(h.lobbies, strings.ToUpper(msg.Code))

			case ShutdownHub:
				for _, lb := range h.lobbies {
					lb.Inbox() <- lobby.Shutdown{}
				}
				clear(h.lobbies)
				h.cancel()
			}
		}
	}
}

// removeWhenEmpty is handed to each lobby as its OnEmpty callback. It runs
// on the lobby goroutine, so it posts back to the hub loop instead of
// touching the map directly.
func (h *Hub) removeWhenEmpty(code string) {
	select {
	case h.inbox <- RemoveLobby{Code: code}:
	case <-h.ctx.Done():
	}
}

// freeCode draws 4-letter codes until one misses the live set.
func (h *Hub) freeCode() (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := generateCode()
		if err != nil {
			return "", err
		}
		if _, taken := h.lobbies[code]; !taken {
			return code, nil
		}
		h.log.Debug("lobby code collision, regenerating", zap.String("code", code))
	}
	return "", ErrCodeSpaceExhausted
}

func generateCode() (string, error) {
	code := make([]byte, codeLength)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeCharset))))
		if err != nil {
			return "", err
		}
		code[i] = codeCharset[num.Int64()]
	}
	return string(code), nil
}
