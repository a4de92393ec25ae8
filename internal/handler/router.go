package handler

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/kb-chat/backend/internal/config"
	"github.com/zhouzirui/kb-chat/backend/internal/handler/chat"
	"github.com/zhouzirui/kb-chat/backend/internal/handler/socket"
	"github.com/zhouzirui/kb-chat/backend/internal/handler/stream"
	"github.com/zhouzirui/kb-chat/backend/internal/handler/web"
	middlewarePkg "github.com/zhouzirui/kb-chat/backend/internal/middleware"
	chatService "github.com/zhouzirui/kb-chat/backend/internal/service/chat"
	"github.com/zhouzirui/kb-chat/backend/internal/service/conversation"
	"github.com/zhouzirui/kb-chat/backend/internal/view"
	"github.com/zhouzirui/kb-chat/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(cfg *config.Config, chatSvc *chatService.Service, convSvc *conversation.Service) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	limiter := middlewarePkg.NewAskLimiter(cfg.Limits)

	// Create handlers
	webHandler := web.New(chatSvc, convSvc, view.NewRenderer(), cfg.UI, cfg.Server.SessionCookie, limiter)
	chatHandler := chat.New(chatSvc, convSvc, limiter)
	streamHandler := stream.New(convSvc)
	socketHandler := socket.NewWebSocketHandler(chatSvc, convSvc, limiter)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	webHandler.RegisterRoutes(r)

	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
		socketHandler.RegisterRoutes(api)

		api.With(middlewarePkg.Limit(limiter)).Get("/stream/{sessionID}", func(w http.ResponseWriter, r *http.Request) {
			sessionID := chi.URLParam(r, "sessionID")
			question := r.URL.Query().Get("message")

			if _, err := chatSvc.GetSession(r.Context(), sessionID); err != nil {
				utils.RespondError(w, http.StatusNotFound, err.Error())
				return
			}
			if question == "" {
				utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
				return
			}

			// Errors are already delivered to the client as an SSE error event.
			if err := streamHandler.HandleStreamRequest(r.Context(), w, sessionID, question); err != nil {
				log.Printf("[stream] error handling request: %v", err)
			}
		})
	})

	return r
}
