package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/mathrush/mathrush-backend/internal/hub"
	"github.com/mathrush/mathrush-backend/internal/ws"
)

func NewRouter(h *hub.Hub, logger *zap.Logger, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", healthz)
	r.Get("/lobbies/{code}", lobbyPeek(h))
	r.Get("/ws", ws.Handler(h, logger, allowedOrigins))

	return r
}
