package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mathrush/mathrush-backend/internal/hub"
	"github.com/mathrush/mathrush-backend/internal/lobby"
)

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type lobbyInfo struct {
	Code        string `json:"code"`
	Phase       string `json:"phase"`
	PlayerCount int    `json:"playerCount"`
}

// lobbyPeek is a read-only view for join screens: does the code exist,
// and is the match already running.
func lobbyPeek(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")

		found := make(chan *lobby.Lobby, 1)
		h.Inbox() <- hub.GetLobby{Code: code, Reply: found}
		lb := <-found
		if lb == nil {
			http.Error(w, "lobby not found", http.StatusNotFound)
			return
		}

		reply := make(chan lobby.View, 1)
		lb.Inbox() <- lobby.GetState{Reply: reply}

		// The lobby can shut down between lookup and query, in which
		// case the reply never arrives.
		select {
		case v := <-reply:
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(lobbyInfo{
				Code:        v.Code,
				Phase:       string(v.State.Phase),
				PlayerCount: v.NumPlayers,
			})
		case <-time.After(2 * time.Second):
			http.Error(w, "lobby unavailable", http.StatusServiceUnavailable)
		}
	}
}
