// Package session owns the durable per-conversation state. The dialogue
// engine receives a State at the start of a turn and hands the updated value
// back; the store is the only place that holds it between turns.
package session

import (
	"brightthread/internal/order"
	"brightthread/internal/policy"
	"brightthread/internal/understanding"
)

// ModificationStatus tracks the lifecycle of the current pending
// modification. Empty means no modification has been proposed.
type ModificationStatus string

const (
	ModificationPending   ModificationStatus = "pending"
	ModificationExecuted  ModificationStatus = "executed"
	ModificationCancelled ModificationStatus = "cancelled"
)

// PolicyConfirmationStatus gates execution of a CONDITIONAL policy decision
// on the customer accepting its conditions.
type PolicyConfirmationStatus string

const (
	PolicyConfirmationPending  PolicyConfirmationStatus = "pending"
	PolicyConfirmationAccepted PolicyConfirmationStatus = "accepted"
	PolicyConfirmationRejected PolicyConfirmationStatus = "rejected"
)

// State is the checkpoint for one conversation. It is serialized whole at
// the end of every turn; no partial updates.
type State struct {
	SessionID   string `json:"session_id"`
	UserID      string `json:"user_id"`
	OrderID     string `json:"order_id"`
	LastMessage string `json:"last_message"`

	OrderDetails *order.Order `json:"order_details,omitempty"`

	PendingModification       *understanding.Modification `json:"pending_modification,omitempty"`
	PendingModificationID     string                      `json:"pending_modification_id,omitempty"`
	PendingModificationStatus ModificationStatus          `json:"pending_modification_status,omitempty"`

	PolicyEvaluation         *policy.Evaluation       `json:"policy_evaluation,omitempty"`
	PolicyConfirmationStatus PolicyConfirmationStatus `json:"policy_confirmation_status,omitempty"`

	// per-turn flag, reset at the start of every step
	UnderstandingConfirmed bool `json:"-"`
}

// ClearPending drops the pending modification, recording why in the status.
// The policy confirmation status is left alone: an accepted or rejected
// negotiation stays on the checkpoint, and proposing the next modification
// resets it.
func (s *State) ClearPending(status ModificationStatus) {
	s.PendingModification = nil
	s.PendingModificationStatus = status
	s.PolicyEvaluation = nil
}

// HasPending reports whether a modification is awaiting confirmation or
// execution.
func (s *State) HasPending() bool {
	return s.PendingModification != nil && s.PendingModificationStatus == ModificationPending
}
