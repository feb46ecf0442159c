package server

import (
	"log"
	"net/http"

	"github.com/tutord/tutor-runtime/internal/agentrunner"
	"github.com/tutord/tutor-runtime/internal/apperr"
	"github.com/tutord/tutor-runtime/internal/sse"
)

type chatStreamMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatStreamRequest struct {
	UserID   string              `json:"user_id"`
	ChatID   string              `json:"chat_id"`
	Messages []chatStreamMessage `json:"messages"`
}

// handleChatStream drives one streamed turn (spec §4.5/§6). Errors that
// occur before the writer is established are reported as a normal JSON
// error response; once streaming starts, failures are reported as an
// `error` SSE event per spec §7 (no trailing `done`).
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req chatStreamRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.UserID == "" {
		respondError(w, apperr.New(apperr.InvalidInput, "user_id is required"))
		return
	}

	messages := make([]agentrunner.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, agentrunner.Message{Role: m.Role, Content: m.Content})
	}

	writer, err := sse.NewWriter(w)
	if err != nil {
		respondError(w, apperr.Wrap(apperr.Internal, "establish event stream", err))
		return
	}

	emit := func(event sse.Event) {
		if err := writer.Send(event); err != nil {
			log.Printf("[server] write sse event for %s failed: %v", req.UserID, err)
		}
	}

	input := agentrunner.TurnInput{UserID: req.UserID, ChatID: req.ChatID, Message: messages}
	if err := s.runner.RunTurn(r.Context(), input, emit); err != nil {
		log.Printf("[server] chat turn for %s failed: %v", req.UserID, err)
	}
}
