// Package policy decides whether a requested order change is allowed at the
// order's current lifecycle stage. The rules live in a markdown document that
// an LLM interprets; unparseable model output fails safe to DENIED with a
// support escalation.
package policy

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"brightthread/internal/llm"
	"brightthread/internal/prompt"
)

//go:embed change-policies.md
var policyDocument string

// ChangeType classifies what a modification does to an order.
type ChangeType string

const (
	QuantityIncrease ChangeType = "quantity_increase"
	QuantityDecrease ChangeType = "quantity_decrease"
	SizeChange       ChangeType = "size_change"
	ColorChange      ChangeType = "color_change"
	RemoveItem       ChangeType = "remove_item"
	Cancellation     ChangeType = "cancellation"
)

// Decision is the outcome of a policy evaluation.
type Decision string

const (
	Allowed     Decision = "allowed"
	Conditional Decision = "conditional"
	Denied      Decision = "denied"
)

// Evaluation is the structured result of evaluating one change request.
type Evaluation struct {
	Decision             Decision   `json:"decision"`
	ChangeType           ChangeType `json:"change_type"`
	OrderStatus          string     `json:"order_status"`
	CostImpact           *float64   `json:"cost_impact"`
	CostDescription      string     `json:"cost_description"`
	DeliveryImpactDays   *int       `json:"delivery_impact_days"`
	DeliveryDescription  string     `json:"delivery_description"`
	DenialReason         string     `json:"denial_reason"`
	RequiresConfirmation bool       `json:"requires_confirmation"`
	EscalateToSupport    bool       `json:"escalate_to_support"`
}

// HasConditions reports whether the evaluation attaches a cost or delay.
func (e Evaluation) HasConditions() bool {
	return e.CostImpact != nil || e.DeliveryImpactDays != nil
}

// Engine evaluates change requests against the policy document.
type Engine struct {
	client  llm.Client
	prompts *prompt.Service
	logger  *zap.Logger
}

// NewEngine creates a policy engine.
func NewEngine(client llm.Client, prompts *prompt.Service, logger *zap.Logger) *Engine {
	return &Engine{client: client, prompts: prompts, logger: logger.Named("policy")}
}

// Evaluate asks the model to apply the policy document to one change request.
// Amounts feed the document's percentage-based fee rules.
func (e *Engine) Evaluate(ctx context.Context, orderStatus string, changeType ChangeType, affectedAmount, orderTotal float64) Evaluation {
	status := strings.ToUpper(orderStatus)

	system, err := e.prompts.Format("policy_evaluation", map[string]string{
		"policy_document": policyDocument,
		"order_status":    status,
		"change_type":     string(changeType),
		"affected_amount": fmt.Sprintf("%.2f", affectedAmount),
		"order_total":     fmt.Sprintf("%.2f", orderTotal),
	})
	if err != nil {
		e.logger.Error("failed to render policy prompt", zap.Error(err))
		return e.failSafe(status, changeType)
	}

	user := fmt.Sprintf("Evaluate the %s request for an order in %s status.", changeType, status)

	raw, err := e.client.CompleteWithSystem(ctx, system, user)
	if err != nil {
		e.logger.Error("policy evaluation call failed", zap.Error(err))
		return e.failSafe(status, changeType)
	}

	evaluation, err := parseEvaluation(raw)
	if err != nil {
		e.logger.Error("failed to parse policy evaluation",
			zap.String("raw", raw), zap.Error(err))
		return e.failSafe(status, changeType)
	}

	evaluation.ChangeType = changeType
	evaluation.OrderStatus = status
	e.logger.Info("policy evaluated",
		zap.String("status", status),
		zap.String("change_type", string(changeType)),
		zap.String("decision", string(evaluation.Decision)))
	return evaluation
}

func (e *Engine) failSafe(status string, changeType ChangeType) Evaluation {
	return Evaluation{
		Decision:          Denied,
		ChangeType:        changeType,
		OrderStatus:       status,
		DenialReason:      "Unable to evaluate policy - please contact support",
		EscalateToSupport: true,
	}
}

func parseEvaluation(raw string) (Evaluation, error) {
	jsonStr := ExtractJSON(raw)
	if jsonStr == "" {
		return Evaluation{}, fmt.Errorf("no JSON object in response")
	}

	var evaluation Evaluation
	if err := json.Unmarshal([]byte(jsonStr), &evaluation); err != nil {
		return Evaluation{}, fmt.Errorf("JSON parse failed: %w", err)
	}

	switch evaluation.Decision {
	case Allowed, Conditional, Denied:
	default:
		return Evaluation{}, fmt.Errorf("unknown decision %q", evaluation.Decision)
	}
	return evaluation, nil
}

// Summary returns the policy section for an order status, for operators and
// the order-summary prompt context.
func Summary(orderStatus string) string {
	status := strings.ToUpper(orderStatus)
	marker := "### " + status + " State"

	start := strings.Index(policyDocument, marker)
	if start == -1 {
		return fmt.Sprintf("No policy information found for %s orders.", status)
	}

	rest := policyDocument[start:]
	if next := strings.Index(rest[1:], "\n### "); next != -1 {
		rest = rest[:next+1]
	} else if next := strings.Index(rest[1:], "\n## "); next != -1 {
		rest = rest[:next+1]
	}
	return strings.TrimSpace(rest)
}

// ExtractJSON pulls the first balanced JSON object out of a model response,
// tolerating markdown fences and trailing commentary.
func ExtractJSON(response string) string {
	if idx := strings.Index(response, "```json"); idx != -1 {
		rest := response[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end != -1 {
			response = rest[:end]
		}
	}

	start := strings.Index(response, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(response); i++ {
		c := response[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return response[start : i+1]
			}
		}
	}
	return ""
}
