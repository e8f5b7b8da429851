package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/placement-gpt/backend/internal/handler/chat"
	"github.com/zhouzirui/placement-gpt/backend/internal/handler/stream"
	"github.com/zhouzirui/placement-gpt/backend/internal/handler/suggestion"
	"github.com/zhouzirui/placement-gpt/backend/internal/handler/ws"
	"github.com/zhouzirui/placement-gpt/backend/internal/logging"
	suggestionModel "github.com/zhouzirui/placement-gpt/backend/internal/model/suggestion"
	chatService "github.com/zhouzirui/placement-gpt/backend/internal/service/chat"
	"github.com/zhouzirui/placement-gpt/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(suggestions suggestionModel.Store, chatSvc *chatService.Service, events stream.Subscriber, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.HTTP(logger)...)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization", "X-Request-Id"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"sessions": chatSvc.Len(),
		})
	})

	r.Route("/api", func(api chi.Router) {
		suggestion.New(suggestions).RegisterRoutes(api)
		chat.New(chatSvc).RegisterRoutes(api)

		// Live session events for browsers
		stream.New(chatSvc, events).RegisterRoutes(api)
		ws.New(chatSvc, events).RegisterRoutes(api)
	})

	return r
}
