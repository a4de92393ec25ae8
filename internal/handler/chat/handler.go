package chat

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/zhouzirui/kb-chat/backend/internal/middleware"
	"github.com/zhouzirui/kb-chat/backend/internal/model/chat"
	"github.com/zhouzirui/kb-chat/backend/internal/model/rag"
	chatService "github.com/zhouzirui/kb-chat/backend/internal/service/chat"
	"github.com/zhouzirui/kb-chat/backend/internal/service/conversation"
	ragService "github.com/zhouzirui/kb-chat/backend/internal/service/rag"
	"github.com/zhouzirui/kb-chat/backend/pkg/utils"
)

// Handler 聊天服务的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
	convSvc *conversation.Service
	limiter *rate.Limiter
}

// New 创建聊天处理器，limiter 为 nil 时不限流
func New(chatSvc *chatService.Service, convSvc *conversation.Service, limiter *rate.Limiter) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		convSvc: convSvc,
		limiter: limiter,
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Get("/sessions/{sessionID}/turns", h.handleListTurns)
	r.With(middleware.Limit(h.limiter)).Post("/sessions/{sessionID}/questions", h.handleAsk)
	r.Delete("/sessions/{sessionID}", h.handleEndSession)
}

type turnsResponse struct {
	SessionID string      `json:"sessionId"`
	Turns     []chat.Turn `json:"turns"`
}

type answerResponse struct {
	SessionID   string                `json:"sessionId"`
	Answer      string                `json:"answer"`
	Provenance  []rag.ProvenanceEntry `json:"provenance"`
	NoContext   bool                  `json:"noContext"`
	ContextLine string                `json:"contextLine,omitempty"`
	SourceLine  string                `json:"sourceLine,omitempty"`
	Lines       []string              `json:"lines"`
}

// newAnswerResponse 将展示块拆成与页面一致的文本行
func newAnswerResponse(sessionID string, result rag.AnswerResult) answerResponse {
	block := result.Block()
	resp := answerResponse{
		SessionID:  sessionID,
		Answer:     result.AnswerText,
		Provenance: result.Provenance,
		NoContext:  block.NoContext,
		Lines:      block.Lines(),
	}
	if !block.NoContext {
		resp.ContextLine = resp.Lines[0]
		resp.SourceLine = resp.Lines[1]
	}
	return resp
}

// handleCreateSession 创建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.CreateSession(r.Context())
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusCreated, session)
}

// handleListTurns 返回完整的会话历史
func (h *Handler) handleListTurns(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	turns, err := h.chatSvc.All(r.Context(), sessionID)
	if err != nil {
		respondTurnError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, turnsResponse{SessionID: sessionID, Turns: turns})
}

// handleAsk 提交一个问题并返回答案与出处
func (h *Handler) handleAsk(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var payload struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	outcome, err := h.convSvc.Ask(r.Context(), sessionID, payload.Question)
	if err != nil {
		respondTurnError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, newAnswerResponse(sessionID, outcome.Result))
}

// handleEndSession 结束会话并丢弃历史
func (h *Handler) handleEndSession(w http.ResponseWriter, r *http.Request) {
	if err := h.convSvc.End(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		respondTurnError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func respondTurnError(w http.ResponseWriter, err error) {
	var upstream *ragService.UpstreamError
	switch {
	case errors.Is(err, conversation.ErrInputRejected):
		utils.RespondErrorCode(w, http.StatusBadRequest, "input_rejected", err.Error())
	case errors.Is(err, chatService.ErrSessionNotFound):
		utils.RespondErrorCode(w, http.StatusNotFound, "session_not_found", err.Error())
	case errors.As(err, &upstream) && upstream.Throttled():
		w.Header().Set("Retry-After", "1")
		utils.RespondErrorCode(w, http.StatusServiceUnavailable, "upstream_throttled", "the knowledge base is busy, please retry shortly")
	case errors.Is(err, ragService.ErrUpstream):
		utils.RespondErrorCode(w, http.StatusBadGateway, "upstream_error", "the knowledge base could not answer the question")
	default:
		utils.RespondErrorCode(w, http.StatusInternalServerError, "internal", err.Error())
	}
}
