package suggestion

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/placement-gpt/backend/internal/model/suggestion"
	"github.com/zhouzirui/placement-gpt/backend/pkg/utils"
)

// Handler 推荐问题的HTTP处理器
type Handler struct {
	suggestions suggestion.Store
}

// New 创建推荐问题处理器
func New(suggestions suggestion.Store) *Handler {
	return &Handler{
		suggestions: suggestions,
	}
}

// RegisterRoutes 注册推荐问题相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/suggestions", h.handleListSuggestions)
}

// handleListSuggestions 列出全部推荐问题
func (h *Handler) handleListSuggestions(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.suggestions.List())
}
