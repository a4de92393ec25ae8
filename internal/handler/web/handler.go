package web

import (
	"bytes"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/zhouzirui/kb-chat/backend/internal/config"
	"github.com/zhouzirui/kb-chat/backend/internal/middleware"
	chatModel "github.com/zhouzirui/kb-chat/backend/internal/model/chat"
	chatService "github.com/zhouzirui/kb-chat/backend/internal/service/chat"
	"github.com/zhouzirui/kb-chat/backend/internal/service/conversation"
	"github.com/zhouzirui/kb-chat/backend/internal/view"
)

const (
	upstreamFailureText = "The assistant could not answer this question. Please try again."
	rejectedInputText   = "Please type a question first."
)

// Handler serves the browser chat page. The session is bound to a cookie and
// is created on first visit.
type Handler struct {
	chatSvc    *chatService.Service
	convSvc    *conversation.Service
	renderer   *view.Renderer
	ui         config.UIConfig
	cookieName string
	limiter    *rate.Limiter
}

// New creates the page handler.
func New(chatSvc *chatService.Service, convSvc *conversation.Service, renderer *view.Renderer, ui config.UIConfig, cookieName string, limiter *rate.Limiter) *Handler {
	return &Handler{
		chatSvc:    chatSvc,
		convSvc:    convSvc,
		renderer:   renderer,
		ui:         ui,
		cookieName: cookieName,
		limiter:    limiter,
	}
}

// RegisterRoutes registers the page routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.handleIndex)
	r.With(middleware.Limit(h.limiter)).Post("/ask", h.handleAsk)
	r.Post("/reset", h.handleReset)
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	sessionID := h.ensureSession(w, r)

	turns, err := h.chatSvc.All(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "failed to load conversation", http.StatusInternalServerError)
		return
	}

	h.render(w, http.StatusOK, h.page(turns))
}

func (h *Handler) handleAsk(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	sessionID := h.ensureSession(w, r)
	question := r.PostForm.Get("question")

	outcome, err := h.convSvc.Ask(r.Context(), sessionID, question)
	if err == nil {
		page := h.page(outcome.History)
		block := outcome.Result.Block()
		page.Block = &block
		h.render(w, http.StatusOK, page)
		return
	}

	turns, loadErr := h.chatSvc.All(r.Context(), sessionID)
	if loadErr != nil {
		http.Error(w, "failed to load conversation", http.StatusInternalServerError)
		return
	}
	page := h.page(turns)

	switch {
	case errors.Is(err, conversation.ErrInputRejected):
		page.Notice = rejectedInputText
		h.render(w, http.StatusBadRequest, page)
	default:
		page.Error = upstreamFailureText
		h.render(w, http.StatusBadGateway, page)
	}
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(h.cookieName); err == nil && cookie.Value != "" {
		if err := h.convSvc.End(r.Context(), cookie.Value); err != nil && !errors.Is(err, chatService.ErrSessionNotFound) {
			log.Printf("[web] failed to end session=%s: %v", cookie.Value, err)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// ensureSession returns the cookie's session, creating it when the cookie
// is absent or refers to a session this process does not know.
func (h *Handler) ensureSession(w http.ResponseWriter, r *http.Request) string {
	var sessionID string
	if cookie, err := r.Cookie(h.cookieName); err == nil {
		if _, err := h.chatSvc.GetSession(r.Context(), cookie.Value); err == nil {
			sessionID = cookie.Value
		}
	}

	session, created := h.chatSvc.InitIfAbsent(r.Context(), sessionID)
	if created {
		log.Printf("[web] started session=%s", session.ID)
		http.SetCookie(w, &http.Cookie{
			Name:     h.cookieName,
			Value:    session.ID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return session.ID
}

func (h *Handler) page(turns []chatModel.Turn) view.Page {
	return view.Page{
		Title:       h.ui.Title,
		Heading:     h.ui.Heading,
		Placeholder: h.ui.Placeholder,
		Turns:       turns,
	}
}

func (h *Handler) render(w http.ResponseWriter, status int, page view.Page) {
	var buf bytes.Buffer
	if err := h.renderer.Render(&buf, page); err != nil {
		log.Printf("[web] render failed: %v", err)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		log.Printf("[web] write failed: %v", err)
	}
}
