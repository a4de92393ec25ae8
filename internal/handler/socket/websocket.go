package socket

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	chatService "github.com/zhouzirui/kb-chat/backend/internal/service/chat"
	"github.com/zhouzirui/kb-chat/backend/internal/service/conversation"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 25 * time.Second
	writeTimeout = 10 * time.Second
)

// WebSocketHandler answers questions received over a WebSocket, one turn per
// inbound frame. Frames are processed in order.
type WebSocketHandler struct {
	chatSvc  *chatService.Service
	convSvc  *conversation.Service
	limiter  *rate.Limiter
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates the WebSocket handler.
func NewWebSocketHandler(chatSvc *chatService.Service, convSvc *conversation.Service, limiter *rate.Limiter) *WebSocketHandler {
	return &WebSocketHandler{
		chatSvc: chatSvc,
		convSvc: convSvc,
		limiter: limiter,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes registers the WebSocket route.
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, err := h.chatSvc.GetSession(r.Context(), sessionID); err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("[websocket] new connection for session: %s", sessionID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	go h.pingLoop(ctx, conn)

	h.send(conn, sessionID, "connected", nil)

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[websocket] read error: %v", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		if msg.SessionID != "" && msg.SessionID != sessionID {
			h.sendError(conn, sessionID, "session mismatch")
			continue
		}

		switch msg.Type {
		case "question":
			if !h.handleQuestion(ctx, conn, sessionID, msg.Text) {
				h.closeEnded(conn, sessionID)
				return
			}
		default:
			h.sendError(conn, sessionID, "unsupported message type: "+msg.Type)
		}
	}
}

// handleQuestion runs one turn and reports false once the session is gone.
func (h *WebSocketHandler) handleQuestion(ctx context.Context, conn *websocket.Conn, sessionID, question string) bool {
	if h.limiter != nil && !h.limiter.Allow() {
		h.sendError(conn, sessionID, "too many questions, please retry shortly")
		return true
	}

	outcome, err := h.convSvc.Ask(ctx, sessionID, question)
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound):
		return false
	case errors.Is(err, conversation.ErrInputRejected):
		h.sendError(conn, sessionID, err.Error())
		return true
	}

	h.send(conn, sessionID, "user", map[string]string{"text": question})
	if err != nil {
		h.sendError(conn, sessionID, "the knowledge base could not answer the question")
		return true
	}

	h.send(conn, sessionID, "answer", map[string]string{"text": outcome.Result.AnswerText})

	block := outcome.Result.Block()
	kind := "provenance"
	if block.NoContext {
		kind = "no_context"
	}
	h.send(conn, sessionID, kind, map[string]any{
		"display": block,
		"lines":   block.Lines(),
	})
	return true
}

func (h *WebSocketHandler) closeEnded(conn *websocket.Conn, sessionID string) {
	log.Printf("[websocket] session ended, closing: %s", sessionID)
	h.sendError(conn, sessionID, "session ended")
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended")
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout)); err != nil {
		log.Printf("[websocket] close failed: %v", err)
	}
}

func (h *WebSocketHandler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				log.Printf("[websocket] ping failed: %v", err)
				return
			}
		}
	}
}

func (h *WebSocketHandler) send(conn *websocket.Conn, sessionID, kind string, data interface{}) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	msg := outgoingMessage{
		Type:      kind,
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("[websocket] write %s failed: %v", kind, err)
	}
}

func (h *WebSocketHandler) sendError(conn *websocket.Conn, sessionID, message string) {
	h.send(conn, sessionID, "error", map[string]string{"message": message})
}
