package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/zhouzirui/placement-gpt/backend/internal/model/chat"
	chatService "github.com/zhouzirui/placement-gpt/backend/internal/service/chat"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
)

// EventSource 按会话订阅事件
type EventSource interface {
	Subscribe(ctx context.Context, sessionID string) (<-chan chat.Event, error)
}

// Handler WebSocket聊天处理器
type Handler struct {
	chatSvc  *chatService.Service
	events   EventSource
	upgrader websocket.Upgrader
}

// New 创建WebSocket处理器
func New(chatSvc *chatService.Service, events EventSource) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		events:  events,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

// InboundMessage 客户端发来的指令
type InboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// SubmitMessage 提交文本
type SubmitMessage struct {
	Text string `json:"text"`
}

// SuggestMessage 选择推荐问题
type SuggestMessage struct {
	SuggestionID string `json:"suggestionId"`
}

// ClearMessage 清空会话
type ClearMessage struct {
	Confirm *bool `json:"confirm"`
}

// CopyMessage 复制消息
type CopyMessage struct {
	MessageID string `json:"messageId"`
}

// OutgoingMessage 服务端推送的消息
type OutgoingMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// conn 串行化写操作，gorilla 连接不支持并发写
type conn struct {
	ws        *websocket.Conn
	sessionID string
	logger    zerolog.Logger
	mu        sync.Mutex
}

func (c *conn) write(msg OutgoingMessage) {
	msg.Timestamp = time.Now().Unix()
	if msg.SessionID == "" {
		msg.SessionID = c.sessionID
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.ws.WriteJSON(msg); err != nil {
		c.logger.Debug().Err(err).Str("type", msg.Type).Msg("websocket write failed")
	}
}

func (c *conn) sendResult(data map[string]any) {
	c.write(OutgoingMessage{Type: "result", Data: data})
}

func (c *conn) sendError(message string) {
	c.write(OutgoingMessage{Type: "error", Data: map[string]string{"message": message}})
}

func (c *conn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

// handleWebSocket 处理WebSocket连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	logger := hlog.FromRequest(r).With().Str("session_id", sessionID).Logger()

	session, err := h.chatSvc.GetSession(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer socket.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := &conn{ws: socket, sessionID: sessionID, logger: logger}

	events, err := h.events.Subscribe(ctx, sessionID)
	if err != nil {
		logger.Error().Err(err).Msg("subscribe session events")
		c.sendError("event stream unavailable")
		return
	}

	_ = socket.SetReadDeadline(time.Now().Add(readTimeout))
	socket.SetPongHandler(func(string) error {
		return socket.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go forwardEvents(ctx, c, events)
	go pingLoop(ctx, c)

	c.sendResult(map[string]any{
		"type":     "connected",
		"snapshot": session.Snapshot(),
	})
	logger.Info().Msg("websocket connected")

	for {
		var msg InboundMessage
		if err := socket.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn().Err(err).Msg("websocket read error")
			}
			return
		}
		_ = socket.SetReadDeadline(time.Now().Add(readTimeout))

		h.handleMessage(ctx, c, session, &msg)
	}
}

func (h *Handler) handleMessage(ctx context.Context, c *conn, session *chatService.Session, msg *InboundMessage) {
	switch msg.Type {
	case "submit":
		var payload SubmitMessage
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			c.sendError("invalid submit payload")
			return
		}
		handle, err := session.Submit(ctx, payload.Text)
		h.respondSubmit(c, handle, err)
	case "suggest":
		var payload SuggestMessage
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			c.sendError("invalid suggest payload")
			return
		}
		handle, err := session.SubmitSuggestion(ctx, payload.SuggestionID)
		h.respondSubmit(c, handle, err)
	case "clear":
		var payload ClearMessage
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &payload); err != nil {
				c.sendError("invalid clear payload")
				return
			}
		}
		var confirmer chatService.Confirmer
		if payload.Confirm != nil {
			confirmer = chatService.StaticConfirmer(*payload.Confirm)
		}
		cleared, err := session.Clear(ctx, confirmer)
		if err != nil {
			c.sendError(errors.Cause(err).Error())
			return
		}
		c.sendResult(map[string]any{"type": "clear", "cleared": cleared})
	case "copy":
		var payload CopyMessage
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			c.sendError("invalid copy payload")
			return
		}
		text, err := session.Copy(ctx, payload.MessageID)
		if err != nil {
			c.sendError(errors.Cause(err).Error())
			return
		}
		c.sendResult(map[string]any{"type": "copy", "messageId": payload.MessageID, "text": text})
	case "snapshot":
		c.sendResult(map[string]any{"type": "snapshot", "snapshot": session.Snapshot()})
	default:
		c.sendError("unsupported message type: " + msg.Type)
	}
}

func (h *Handler) respondSubmit(c *conn, handle *chatService.ReplyHandle, err error) {
	switch {
	case errors.Is(err, chatService.ErrEmptyInput):
		c.sendResult(map[string]any{"type": "submit", "accepted": false})
	case err != nil:
		c.sendError(errors.Cause(err).Error())
	default:
		c.sendResult(map[string]any{
			"type":       "submit",
			"accepted":   true,
			"replyId":    handle.ID,
			"replyDueAt": handle.DueAt,
			"message":    handle.Prompt,
		})
	}
}

func forwardEvents(ctx context.Context, c *conn, events <-chan chat.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			c.write(OutgoingMessage{Type: "event", Data: event})
		}
	}
}

// pingLoop 定期发送ping消息
func pingLoop(ctx context.Context, c *conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}
