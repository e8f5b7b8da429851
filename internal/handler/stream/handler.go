package stream

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/zhouzirui/placement-gpt/backend/internal/model/chat"
	chatService "github.com/zhouzirui/placement-gpt/backend/internal/service/chat"
	"github.com/zhouzirui/placement-gpt/backend/pkg/utils"
)

// DefaultHeartbeat is the idle interval between heartbeat frames.
const DefaultHeartbeat = 8 * time.Second

// Subscriber delivers the events of one session until ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context, sessionID string) (<-chan chat.Event, error)
}

// Handler streams session events to browsers via Server-Sent Events
type Handler struct {
	chatSvc   *chatService.Service
	events    Subscriber
	heartbeat time.Duration
}

// New creates a new stream handler
func New(chatSvc *chatService.Service, events Subscriber) *Handler {
	return &Handler{
		chatSvc:   chatSvc,
		events:    events,
		heartbeat: DefaultHeartbeat,
	}
}

// WithHeartbeat overrides the heartbeat interval.
func (h *Handler) WithHeartbeat(d time.Duration) *Handler {
	if d > 0 {
		h.heartbeat = d
	}
	return h
}

// StatusFrame is the first frame of every stream.
type StatusFrame struct {
	Event     string `json:"event"`
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
	Composing bool   `json:"composing"`
	Messages  int    `json:"messages"`
}

// RegisterRoutes registers the SSE endpoint
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{sessionID}", h.handleStream)
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	logger := hlog.FromRequest(r).With().Str("session_id", sessionID).Logger()

	session, err := h.chatSvc.GetSession(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx := r.Context()
	// Subscribe before the status frame so nothing published after it is missed.
	events, err := h.events.Subscribe(ctx, sessionID)
	if err != nil {
		logger.Error().Err(err).Msg("subscribe session events")
		utils.RespondError(w, http.StatusInternalServerError, "stream unavailable")
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	snap := session.Snapshot()
	if err := utils.SendSSEChunk(w, flusher, StatusFrame{
		Event:     "status",
		Message:   "stream established",
		SessionID: sessionID,
		Composing: snap.Composing,
		Messages:  len(snap.Messages),
	}); err != nil {
		return
	}
	logger.Info().Msg("opened session stream")

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("closing session stream")
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := utils.SendSSEEvent(w, flusher, string(event.Type), event); err != nil {
				logger.Debug().Err(err).Msg("client went away")
				return
			}
		case t := <-ticker.C:
			if err := utils.SendSSEChunk(w, flusher, map[string]any{
				"event": "heartbeat",
				"time":  t.UTC().Format(time.RFC3339),
			}); err != nil {
				return
			}
		}
	}
}
