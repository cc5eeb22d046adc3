package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"brightthread/internal/session"
)

// TurnRequest is one inbound customer message plus the identifiers that
// anchor it to a conversation and an order.
type TurnRequest struct {
	UserID    string
	SessionID string // empty starts a new conversation
	OrderID   string // required when SessionID is empty
	Message   string
}

// TurnResult is the agent's reply for one turn.
type TurnResult struct {
	SessionID string
	Response  string
}

// Coordinator ties the dialogue engine to the session store: it resolves or
// creates the session, serializes turns per session, and checkpoints the
// state after every turn.
type Coordinator struct {
	agent    *Agent
	sessions *session.Store
	logger   *zap.Logger
}

// NewCoordinator creates a turn coordinator.
func NewCoordinator(agent *Agent, sessions *session.Store, logger *zap.Logger) *Coordinator {
	return &Coordinator{agent: agent, sessions: sessions, logger: logger.Named("turns")}
}

// HandleTurn runs one full turn: load-or-create the session under its lock,
// step the dialogue engine, persist the checkpoint, log both messages.
func (c *Coordinator) HandleTurn(ctx context.Context, req TurnRequest) (TurnResult, error) {
	if req.Message == "" {
		return TurnResult{}, fmt.Errorf("message is required")
	}

	sessionID := req.SessionID
	if sessionID == "" {
		if req.OrderID == "" {
			return TurnResult{}, fmt.Errorf("order_id is required to start a conversation")
		}
		sessionID = "session-" + uuid.NewString()
	}

	release := c.sessions.Lock(sessionID)
	defer release()

	st, err := c.sessions.Load(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, session.ErrSessionNotFound) || req.SessionID != "" {
			// Unknown but explicitly supplied ids are the caller's error.
			return TurnResult{}, err
		}
		st = &session.State{
			SessionID: sessionID,
			UserID:    req.UserID,
			OrderID:   req.OrderID,
		}
		if err := c.sessions.Create(ctx, st); err != nil {
			return TurnResult{}, err
		}
	}

	response, err := c.agent.Step(ctx, st, req.Message)
	if err != nil {
		return TurnResult{}, err
	}

	if err := c.sessions.Save(ctx, st); err != nil {
		// The order mutation may already be committed; losing the
		// checkpoint now would allow a re-execution on replay.
		return TurnResult{}, fmt.Errorf("failed to checkpoint session %s: %w", sessionID, err)
	}

	if err := c.sessions.AppendMessage(ctx, sessionID, "user", req.Message); err != nil {
		c.logger.Warn("failed to log user message", zap.String("session_id", sessionID), zap.Error(err))
	}
	if err := c.sessions.AppendMessage(ctx, sessionID, "assistant", response); err != nil {
		c.logger.Warn("failed to log assistant message", zap.String("session_id", sessionID), zap.Error(err))
	}

	return TurnResult{SessionID: sessionID, Response: response}, nil
}
