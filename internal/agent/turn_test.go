package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"brightthread/internal/session"
)

func newCoordinator(f *fixture) *Coordinator {
	return NewCoordinator(f.agent, f.sessions, zap.NewNop())
}

func TestHandleTurnCreatesSessionAndCheckpoints(t *testing.T) {
	f := newFixture(t)
	c := newCoordinator(f)
	ctx := context.Background()

	f.client.intent = `{"intent":"ORDER_CHANGE"}`
	f.client.modification = modifyPoloQty75
	result, err := c.HandleTurn(ctx, TurnRequest{
		UserID:  "user-1",
		OrderID: f.order.ID,
		Message: "change the polos to 75",
	})
	if err != nil {
		t.Fatalf("turn failed: %v", err)
	}
	if !strings.HasPrefix(result.SessionID, "session-") {
		t.Errorf("session id = %q, want session- prefix", result.SessionID)
	}

	// The checkpoint holds the pending modification; a new turn on the same
	// session resumes from it.
	st, err := f.sessions.Load(ctx, result.SessionID)
	if err != nil {
		t.Fatalf("failed to load checkpoint: %v", err)
	}
	if !st.HasPending() {
		t.Fatal("checkpoint lost the pending modification")
	}

	f.client.intent = `{"intent":"CONFIRMATION"}`
	f.client.confirmation = confirmed
	f.client.policyEval = allowedEval
	result2, err := c.HandleTurn(ctx, TurnRequest{
		UserID:    "user-1",
		SessionID: result.SessionID,
		Message:   "yes",
	})
	if err != nil {
		t.Fatalf("second turn failed: %v", err)
	}
	if !strings.Contains(result2.Response, "quantity to 75") {
		t.Errorf("expected execution on the resumed session, got %q", result2.Response)
	}

	messages, err := f.sessions.Messages(ctx, result.SessionID, 0)
	if err != nil {
		t.Fatalf("failed to load messages: %v", err)
	}
	if len(messages) != 4 {
		t.Fatalf("messages = %d, want 4 (two turns)", len(messages))
	}
	if messages[0].Role != "user" || messages[1].Role != "assistant" {
		t.Errorf("unexpected message roles: %q, %q", messages[0].Role, messages[1].Role)
	}
}

func TestHandleTurnRejectsUnknownSession(t *testing.T) {
	f := newFixture(t)
	c := newCoordinator(f)

	_, err := c.HandleTurn(context.Background(), TurnRequest{
		UserID:    "user-1",
		SessionID: "session-does-not-exist",
		Message:   "hello",
	})
	if !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestHandleTurnRequiresOrderForNewSession(t *testing.T) {
	f := newFixture(t)
	c := newCoordinator(f)

	if _, err := c.HandleTurn(context.Background(), TurnRequest{UserID: "user-1", Message: "hi"}); err == nil {
		t.Fatal("expected an error for a new session without an order id")
	}
	if _, err := c.HandleTurn(context.Background(), TurnRequest{UserID: "user-1", OrderID: f.order.ID}); err == nil {
		t.Fatal("expected an error for an empty message")
	}
}
