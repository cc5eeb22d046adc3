package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"brightthread/internal/order"
	"brightthread/internal/session"
)

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "user_id query parameter is required")
		return
	}

	summaries, err := s.sessions.ListByUser(r.Context(), userID)
	if err != nil {
		s.logger.Error("failed to list conversations", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list conversations")
		return
	}
	if summaries == nil {
		summaries = []session.Summary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": summaries})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	st, err := s.sessions.Load(r.Context(), sessionID)
	if errors.Is(err, session.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "not_found_error", "unknown session_id")
		return
	}
	if err != nil {
		s.logger.Error("failed to load conversation", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load conversation")
		return
	}

	messages, err := s.sessions.Messages(r.Context(), sessionID, 200)
	if err != nil {
		s.logger.Error("failed to load messages", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load conversation")
		return
	}
	if messages == nil {
		messages = []session.Message{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": st.SessionID,
		"order_id":   st.OrderID,
		"state":      st,
		"messages":   messages,
	})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	o, err := s.orders.GetOrder(r.Context(), orderID)
	if errors.Is(err, order.ErrOrderNotFound) {
		writeError(w, http.StatusNotFound, "not_found_error", "unknown order")
		return
	}
	if err != nil {
		s.logger.Error("failed to load order", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load order")
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
