// Package agent implements the order-support dialogue engine: a turn-based
// state machine that classifies intent, confirms its understanding of a
// requested change, clears it with the change policy, and executes it against
// the order and inventory stores.
//
// The "state" is not a single enum but the conjunction of the pending
// modification status and the policy confirmation status carried in
// session.State; every turn re-derives its route from those flags.
package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"brightthread/internal/llm"
	"brightthread/internal/order"
	"brightthread/internal/policy"
	"brightthread/internal/prompt"
	"brightthread/internal/session"
	"brightthread/internal/understanding"
)

// Agent drives one dialogue turn at a time. It holds no per-session state;
// everything lives in the session.State passed through Step.
type Agent struct {
	oracle  *understanding.Oracle
	policy  *policy.Engine
	orders  *order.Store
	client  llm.Client
	prompts *prompt.Service
	logger  *zap.Logger
}

// New creates the dialogue engine.
func New(oracle *understanding.Oracle, policyEngine *policy.Engine, orders *order.Store, client llm.Client, prompts *prompt.Service, logger *zap.Logger) *Agent {
	return &Agent{
		oracle:  oracle,
		policy:  policyEngine,
		orders:  orders,
		client:  client,
		prompts: prompts,
		logger:  logger.Named("agent"),
	}
}

// Step processes one inbound message against the session state and returns
// the response text. The caller persists the mutated state afterwards;
// exactly one response is produced per message.
func (a *Agent) Step(ctx context.Context, st *session.State, message string) (string, error) {
	timer := prometheus.NewTimer(turnDuration)
	defer timer.ObserveDuration()

	st.LastMessage = message
	st.UnderstandingConfirmed = false

	intent := a.routeIntent(ctx, st, message)
	turnsTotal.WithLabelValues(string(intent)).Inc()
	a.logger.Info("turn routed",
		zap.String("session_id", st.SessionID),
		zap.String("intent", string(intent)))

	switch intent {
	case understanding.IntentOrderInquiry:
		return a.orderSummary(ctx, st, message)

	case understanding.IntentOffTopic:
		return a.offTopicResponse(ctx, message), nil

	case understanding.IntentOrderChange:
		return a.handleOrderChange(ctx, st, message)

	case understanding.IntentConfirmation:
		response, proceed := a.handleConfirmation(ctx, st, message)
		if !proceed {
			return response, nil
		}
		return a.evaluatePolicy(ctx, st)

	case understanding.IntentPolicyConfirmation:
		response, proceed := a.handlePolicyConfirmation(ctx, st, message)
		if !proceed {
			return response, nil
		}
		return a.execute(ctx, st), nil

	default: // UNCLEAR
		return msgUnclearIntent, nil
	}
}

// routeIntent forces POLICY_CONFIRMATION while a previous turn is
// mid-negotiation; otherwise it asks the oracle.
func (a *Agent) routeIntent(ctx context.Context, st *session.State, message string) understanding.Intent {
	if st.PolicyConfirmationStatus == session.PolicyConfirmationPending {
		a.logger.Debug("routing to policy confirmation (pending)",
			zap.String("session_id", st.SessionID))
		return understanding.IntentPolicyConfirmation
	}
	return a.oracle.ClassifyIntent(ctx, message)
}

// orderSummary answers an inquiry. No state change beyond refreshing the
// order snapshot.
func (a *Agent) orderSummary(ctx context.Context, st *session.State, message string) (string, error) {
	o, err := a.orders.GetOrder(ctx, st.OrderID)
	if err != nil {
		return "", fmt.Errorf("failed to fetch order for summary: %w", err)
	}
	st.OrderDetails = &o

	orderJSON, _ := json.Marshal(o)
	user := fmt.Sprintf("Order Details: %s\n\nUser Question: %s", orderJSON, message)
	return a.generate(ctx, "order_summary", user, fallbackSummary(o)), nil
}

func (a *Agent) offTopicResponse(ctx context.Context, message string) string {
	return a.generate(ctx, "off_topic_response", message, msgOffTopicFallback)
}

// handleOrderChange extracts a modification from the request and asks the
// customer to confirm it. The turn always ends here; the yes/no arrives as a
// new message.
func (a *Agent) handleOrderChange(ctx context.Context, st *session.State, message string) (string, error) {
	o, err := a.orders.GetOrder(ctx, st.OrderID)
	if err != nil {
		return "", fmt.Errorf("failed to fetch order for change request: %w", err)
	}
	st.OrderDetails = &o

	orderJSON, _ := json.Marshal(o)
	mod := a.oracle.ExtractModification(ctx, string(orderJSON), message)
	if mod == nil {
		// Extraction failed even after the repair attempt. Never guess.
		st.PendingModification = nil
		st.PendingModificationID = ""
		st.PendingModificationStatus = ""
		return msgExtractionFailed, nil
	}

	if mod.Action == understanding.ActionUnsupported {
		st.PendingModification = nil
		st.PendingModificationID = ""
		st.PendingModificationStatus = ""
		return msgUnsupportedChange, nil
	}

	st.PendingModification = mod
	st.PendingModificationID = uuid.NewString()
	st.PendingModificationStatus = session.ModificationPending
	st.PolicyEvaluation = nil
	st.PolicyConfirmationStatus = ""

	user := fmt.Sprintf("Order Details: %s\n\nUser Request: %s", orderJSON, message)
	return a.generate(ctx, "confirm_understanding", user, fallbackConfirmQuestion(mod)), nil
}

// handleConfirmation interprets a reply to the understanding question. It
// returns proceed=true when the turn should continue into policy evaluation.
func (a *Agent) handleConfirmation(ctx context.Context, st *session.State, message string) (string, bool) {
	// Idempotent re-entry: a repeated "yes" after the fact must not
	// re-execute anything.
	switch st.PendingModificationStatus {
	case session.ModificationExecuted:
		return msgAlreadyApplied, false
	case session.ModificationCancelled:
		return msgAlreadyCancelled, false
	}

	if !st.HasPending() {
		return msgNothingPending, false
	}

	result := a.oracle.InterpretConfirmation(ctx, st.PendingModification, message)
	a.logger.Info("confirmation interpreted",
		zap.String("session_id", st.SessionID),
		zap.String("interpretation", string(result.Interpretation)))

	switch result.Interpretation {
	case understanding.Confirmed:
		st.UnderstandingConfirmed = true
		return "", true

	case understanding.Correction:
		applyCorrections(st.PendingModification, result)
		st.UnderstandingConfirmed = true
		a.logger.Info("applied corrections to pending modification",
			zap.String("session_id", st.SessionID))
		return "", true

	case understanding.Rejected:
		st.ClearPending(session.ModificationCancelled)
		return msgChangeCancelled, false

	default: // UNCLEAR
		return msgConfirmUnclear, false
	}
}

// applyCorrections merges non-null corrected values into the pending
// modification; everything else is kept.
func applyCorrections(mod *understanding.Modification, result understanding.ConfirmationResult) {
	if result.CorrectedQuantity != nil {
		mod.NewQuantity = result.CorrectedQuantity
	}
	if result.CorrectedSize != nil && *result.CorrectedSize != "" {
		mod.NewSize = result.CorrectedSize
	}
	if result.CorrectedColor != nil && *result.CorrectedColor != "" {
		mod.NewColor = result.CorrectedColor
	}
}

// evaluatePolicy runs after a confirmed understanding and branches on the
// policy decision, possibly executing in the same turn.
func (a *Agent) evaluatePolicy(ctx context.Context, st *session.State) (string, error) {
	if st.PendingModification == nil {
		return msgNothingPending, nil
	}
	mod := st.PendingModification

	o, err := a.currentOrder(ctx, st)
	if err != nil {
		return "", err
	}

	changeType := determineChangeType(mod, o)
	affectedAmount := affectedLineAmount(mod, o)

	evaluation := a.policy.Evaluate(ctx, string(o.Status), changeType, affectedAmount, o.TotalAmount)
	st.PolicyEvaluation = &evaluation
	policyDecisionsTotal.WithLabelValues(string(evaluation.Decision)).Inc()

	switch evaluation.Decision {
	case policy.Denied:
		response := a.policyContextResponse(ctx, "policy_denial", st, fallbackDenial(evaluation))
		st.ClearPending(session.ModificationCancelled)
		return response, nil

	case policy.Conditional:
		st.PolicyConfirmationStatus = session.PolicyConfirmationPending
		return a.policyContextResponse(ctx, "policy_response", st, fallbackConditions(evaluation)), nil

	default: // ALLOWED
		return a.execute(ctx, st), nil
	}
}

// handlePolicyConfirmation interprets the accept/decline reply to stated
// conditions. CORRECTION makes no sense here and is treated as unclear.
func (a *Agent) handlePolicyConfirmation(ctx context.Context, st *session.State, message string) (string, bool) {
	if st.PendingModification == nil {
		st.PolicyConfirmationStatus = ""
		return msgNothingPendingShort, false
	}

	result := a.oracle.InterpretConfirmation(ctx, st.PendingModification, message)

	switch result.Interpretation {
	case understanding.Confirmed:
		st.PolicyConfirmationStatus = session.PolicyConfirmationAccepted
		return "", true

	case understanding.Rejected:
		st.PolicyConfirmationStatus = session.PolicyConfirmationRejected
		st.ClearPending(session.ModificationCancelled)
		return msgChangeCancelled, false

	default: // UNCLEAR or CORRECTION
		return msgPolicyConfirmUnclear, false
	}
}

// determineChangeType diffs the modification against the order's current
// line item. A quantity edit wins over size/color; unknown or unchanged
// quantities default to DECREASE, the more restrictive branch.
func determineChangeType(mod *understanding.Modification, o *order.Order) policy.ChangeType {
	if mod.Action == understanding.ActionRemoveItem {
		return policy.RemoveItem
	}

	if mod.NewQuantity != nil {
		if item, ok := o.FindLineItem(mod.LineItemID, mod.ProductName, mod.SizeName, mod.ColorName); ok {
			if *mod.NewQuantity > item.Quantity {
				return policy.QuantityIncrease
			}
		}
		return policy.QuantityDecrease
	}

	if mod.NewSize != nil {
		return policy.SizeChange
	}
	if mod.NewColor != nil {
		return policy.ColorChange
	}
	return policy.QuantityDecrease
}

// affectedLineAmount is the current quantity x unit price of the matched
// line item, the base for percentage fee rules.
func affectedLineAmount(mod *understanding.Modification, o *order.Order) float64 {
	item, ok := o.FindLineItem(mod.LineItemID, mod.ProductName, mod.SizeName, mod.ColorName)
	if !ok {
		return 0
	}
	return float64(item.Quantity) * item.UnitPrice
}

// currentOrder returns the cached order snapshot, refetching when a turn
// arrives without one (e.g. after a process restart mid-negotiation).
func (a *Agent) currentOrder(ctx context.Context, st *session.State) (*order.Order, error) {
	if st.OrderDetails != nil {
		return st.OrderDetails, nil
	}
	o, err := a.orders.GetOrder(ctx, st.OrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch order: %w", err)
	}
	st.OrderDetails = &o
	return &o, nil
}

// policyContextResponse renders a denial or condition explanation with the
// full evaluation context.
func (a *Agent) policyContextResponse(ctx context.Context, promptName string, st *session.State, fallback string) string {
	contextJSON, _ := json.Marshal(map[string]any{
		"order_details":        st.OrderDetails,
		"pending_modification": st.PendingModification,
		"policy_evaluation":    st.PolicyEvaluation,
	})
	return a.generate(ctx, promptName, "Context:\n"+string(contextJSON), fallback)
}

// generate produces free-form response text via a prompt template. Unlike
// the structured oracles there is nothing to validate, so a transport
// failure degrades to the templated fallback instead of an error.
func (a *Agent) generate(ctx context.Context, promptName, userContent, fallback string) string {
	system, err := a.prompts.SystemPrompt(promptName)
	if err != nil {
		a.logger.Error("failed to load prompt", zap.String("prompt", promptName), zap.Error(err))
		return fallback
	}
	response, err := a.client.CompleteWithSystem(ctx, system, userContent)
	if err != nil || response == "" {
		a.logger.Warn("response generation failed, using fallback",
			zap.String("prompt", promptName), zap.Error(err))
		return fallback
	}
	return response
}
