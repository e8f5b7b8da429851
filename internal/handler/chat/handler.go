package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/hlog"

	"github.com/zhouzirui/placement-gpt/backend/internal/model/suggestion"
	chatService "github.com/zhouzirui/placement-gpt/backend/internal/service/chat"
	"github.com/zhouzirui/placement-gpt/backend/pkg/utils"
)

// Handler 聊天服务的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Route("/session/{sessionID}", func(r chi.Router) {
		r.Get("/", h.handleGetSession)
		r.Get("/suggestions", h.handleListSuggestions)
		r.Post("/suggestions/{suggestionID}", h.handleSubmitSuggestion)
		r.Post("/messages", h.handleSubmitMessage)
		r.Delete("/messages", h.handleClearMessages)
		r.Post("/messages/{messageID}/copy", h.handleCopyMessage)
		r.Get("/export", h.handleExport)
	})
}

// SubmitResponse 描述已受理的提交
type SubmitResponse struct {
	Status     string    `json:"status"`
	ReplyID    string    `json:"replyId"`
	ReplyDueAt time.Time `json:"replyDueAt"`
	Message    any       `json:"message"`
}

// StatusFor 将服务层错误映射为HTTP状态码
func StatusFor(err error) int {
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound),
		errors.Is(err, chatService.ErrMessageNotFound),
		errors.Is(err, chatService.ErrSuggestionNotFound):
		return http.StatusNotFound
	case errors.Is(err, chatService.ErrBusy),
		errors.Is(err, chatService.ErrSuggestionsClosed):
		return http.StatusConflict
	case errors.Is(err, chatService.ErrConfirmationRequired):
		return http.StatusPreconditionRequired
	case errors.Is(err, chatService.ErrEmptyInput):
		return http.StatusNoContent
	default:
		return http.StatusInternalServerError
	}
}

// handleCreateSession 创建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.CreateSession(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, session.Snapshot())
}

// handleGetSession 返回会话快照
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, session.Snapshot())
}

// handleListSuggestions 空会话时返回推荐问题
func (h *Handler) handleListSuggestions(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	items := session.Suggestions()
	if items == nil {
		items = []suggestion.Suggestion{}
	}
	utils.RespondJSON(w, http.StatusOK, items)
}

// handleSubmitSuggestion 以推荐问题提交
func (h *Handler) handleSubmitSuggestion(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	handle, err := session.SubmitSuggestion(r.Context(), chi.URLParam(r, "suggestionID"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondAccepted(w, handle)
}

// handleSubmitMessage 提交用户消息
func (h *Handler) handleSubmitMessage(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	handle, err := session.Submit(r.Context(), payload.Text)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondAccepted(w, handle)
}

// handleClearMessages 确认后清空会话
func (h *Handler) handleClearMessages(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	confirmer, err := queryConfirmer(r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	cleared, err := session.Clear(r.Context(), confirmer)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"cleared": cleared})
}

// handleCopyMessage 复制消息内容
func (h *Handler) handleCopyMessage(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	text, err := session.Copy(r.Context(), chi.URLParam(r, "messageID"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"text": text})
}

// handleExport 以附件形式下载聊天记录
func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	if _, err := session.Download(r.Context(), responseDownloader{w: w}); err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("session_id", session.ID()).Msg("export failed")
	}
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*chatService.Session, bool) {
	session, err := h.chatSvc.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return nil, false
	}
	return session, true
}

func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	switch {
	case status == http.StatusNoContent:
		w.WriteHeader(status)
		return
	case status >= http.StatusInternalServerError:
		hlog.FromRequest(r).Error().Err(err).Msg("chat request failed")
		utils.RespondError(w, status, "internal error")
		return
	}
	utils.RespondError(w, status, errors.Cause(err).Error())
}

func respondAccepted(w http.ResponseWriter, handle *chatService.ReplyHandle) {
	utils.RespondJSON(w, http.StatusAccepted, SubmitResponse{
		Status:     "composing",
		ReplyID:    handle.ID,
		ReplyDueAt: handle.DueAt,
		Message:    handle.Prompt,
	})
}

// queryConfirmer 读取 ?confirm= 参数作为确认结果
func queryConfirmer(r *http.Request) (chatService.Confirmer, error) {
	raw := r.URL.Query().Get("confirm")
	if raw == "" {
		return nil, nil
	}
	ok, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, errors.Errorf("invalid confirm value %q", raw)
	}
	return chatService.StaticConfirmer(ok), nil
}

// responseDownloader 将导出内容作为HTTP附件写回
type responseDownloader struct {
	w http.ResponseWriter
}

func (d responseDownloader) Save(_ context.Context, filename string, payload []byte) error {
	d.w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	d.w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	d.w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
	d.w.WriteHeader(http.StatusOK)
	_, err := d.w.Write(payload)
	return err
}
