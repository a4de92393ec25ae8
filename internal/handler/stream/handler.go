package stream

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/zhouzirui/kb-chat/backend/internal/model/rag"
	"github.com/zhouzirui/kb-chat/backend/internal/service/conversation"
	"github.com/zhouzirui/kb-chat/backend/pkg/utils"
)

// Handler delivers a single question/answer turn via Server-Sent Events
type Handler struct {
	convSvc *conversation.Service
}

// New creates a new stream handler
func New(convSvc *conversation.Service) *Handler {
	return &Handler{convSvc: convSvc}
}

// StreamResponse represents a streaming response chunk
type StreamResponse struct {
	Event     string     `json:"event"`
	Content   string     `json:"content,omitempty"`
	SessionID string     `json:"sessionId,omitempty"`
	Display   *rag.Block `json:"display,omitempty"`
	Lines     []string   `json:"lines,omitempty"`
	Finished  bool       `json:"finished,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// HandleStreamRequest runs one turn for the session and streams its events:
// start, message, provenance or no_context, end. Failures are sent as an
// error event.
func (h *Handler) HandleStreamRequest(ctx context.Context, w http.ResponseWriter, sessionID string, question string) error {
	sse, err := utils.NewSSEWriter(w)
	if err != nil {
		return err
	}

	h.send(sse, StreamResponse{Event: "start", SessionID: sessionID})

	outcome, err := h.convSvc.Ask(ctx, sessionID, question)
	if err != nil {
		h.send(sse, StreamResponse{
			Event:     "error",
			SessionID: sessionID,
			Error:     fmt.Sprintf("answer failed: %v", err),
		})
		return err
	}

	h.send(sse, StreamResponse{
		Event:     "message",
		SessionID: sessionID,
		Content:   outcome.Result.AnswerText,
	})

	block := outcome.Result.Block()
	event := "provenance"
	if block.NoContext {
		event = "no_context"
	}
	h.send(sse, StreamResponse{
		Event:     event,
		SessionID: sessionID,
		Display:   &block,
		Lines:     block.Lines(),
	})

	h.send(sse, StreamResponse{
		Event:     "end",
		SessionID: sessionID,
		Finished:  true,
	})

	log.Printf("[stream] completed response for session=%s", sessionID)
	return nil
}

func (h *Handler) send(sse *utils.SSEWriter, response StreamResponse) {
	if err := sse.Send(response); err != nil {
		log.Printf("[stream] failed to send %s event: %v", response.Event, err)
	}
}
