package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"brightthread/internal/agent"
	"brightthread/internal/order"
	"brightthread/internal/session"
)

// chatRequest is the OpenAI chat-completion request shape plus the two
// extension fields that anchor a conversation to an order.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	User     string        `json:"user"`

	SessionID string `json:"session_id,omitempty"`
	OrderID   string `json:"order_id,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID        string       `json:"id"`
	Object    string       `json:"object"`
	Created   int64        `json:"created"`
	Model     string       `json:"model"`
	Choices   []chatChoice `json:"choices"`
	Usage     chatUsage    `json:"usage"`
	SessionID string       `json:"session_id"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (s *Server) handleChatCompletion(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}

	message := lastUserMessage(req.Messages)
	if message == "" {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "messages must contain a user message")
		return
	}

	result, err := s.coordinator.HandleTurn(r.Context(), agent.TurnRequest{
		UserID:    req.User,
		SessionID: req.SessionID,
		OrderID:   req.OrderID,
		Message:   message,
	})
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "not_found_error", "unknown session_id")
		return
	case errors.Is(err, order.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "not_found_error", "unknown order")
		return
	case err != nil:
		s.logger.Error("turn failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to process message")
		return
	}

	model := req.Model
	if model == "" {
		model = "brightthread-order-agent"
	}

	writeJSON(w, http.StatusOK, chatResponse{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []chatChoice{{
			Message:      chatMessage{Role: "assistant", Content: result.Response},
			FinishReason: "stop",
		}},
		Usage:     usageFor(message, result.Response),
		SessionID: result.SessionID,
	})
}

func lastUserMessage(messages []chatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return strings.TrimSpace(messages[i].Content)
		}
	}
	return ""
}

// usageFor approximates token counts by whitespace splitting. The engine has
// no visibility into provider tokenization; these numbers only need to be
// monotonic with message size.
func usageFor(prompt, completion string) chatUsage {
	p := len(strings.Fields(prompt))
	c := len(strings.Fields(completion))
	return chatUsage{PromptTokens: p, CompletionTokens: c, TotalTokens: p + c}
}
