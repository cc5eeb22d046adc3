// Package understanding wraps the LLM as a text-to-structure oracle for the
// support agent: intent classification, modification extraction, and
// confirmation interpretation. The model is untrusted input; every output is
// validated, repaired at most once, and otherwise degraded to a safe default.
package understanding

import "fmt"

// Intent is the top-level routing decision for a customer message.
type Intent string

const (
	IntentOrderInquiry       Intent = "ORDER_INQUIRY"
	IntentOrderChange        Intent = "ORDER_CHANGE"
	IntentConfirmation       Intent = "CONFIRMATION"
	IntentPolicyConfirmation Intent = "POLICY_CONFIRMATION"
	IntentOffTopic           Intent = "OFF_TOPIC"
	IntentUnclear            Intent = "UNCLEAR"
)

// ParseIntent maps a token onto the closed intent set.
func ParseIntent(s string) (Intent, bool) {
	switch Intent(s) {
	case IntentOrderInquiry, IntentOrderChange, IntentConfirmation,
		IntentPolicyConfirmation, IntentOffTopic, IntentUnclear:
		return Intent(s), true
	}
	return IntentUnclear, false
}

// Action is what a modification does.
type Action string

const (
	ActionModify      Action = "modify"
	ActionRemoveItem  Action = "remove_item"
	ActionUnsupported Action = "unsupported"
)

// Modification is the structured representation of the change a customer
// asked for, awaiting confirmation and policy clearance.
type Modification struct {
	Action          Action  `json:"action"`
	LineItemID      string  `json:"line_item_id,omitempty"`
	ProductName     string  `json:"product_name"`
	SizeName        string  `json:"size_name"`
	ColorName       string  `json:"color_name"`
	CurrentQuantity *int    `json:"current_quantity,omitempty"`
	NewQuantity     *int    `json:"new_quantity,omitempty"`
	NewSize         *string `json:"new_size,omitempty"`
	NewColor        *string `json:"new_color,omitempty"`
	Reason          string  `json:"reason,omitempty"`
}

// Validate rejects a modification that could not be acted on. An invalid
// modification never enters the session state.
func (m *Modification) Validate() error {
	switch m.Action {
	case ActionUnsupported:
		return nil
	case ActionModify, ActionRemoveItem:
	default:
		return fmt.Errorf("unknown action %q", m.Action)
	}

	if m.ProductName == "" {
		return fmt.Errorf("product_name is required for supported modifications")
	}
	if m.SizeName == "" {
		return fmt.Errorf("size_name is required for supported modifications")
	}
	if m.ColorName == "" {
		return fmt.Errorf("color_name is required for supported modifications")
	}

	if m.Action == ActionModify {
		if m.NewQuantity == nil && m.NewSize == nil && m.NewColor == nil {
			return fmt.Errorf("at least one of new_quantity/new_size/new_color is required for modify")
		}
	} else if m.NewQuantity != nil || m.NewSize != nil || m.NewColor != nil {
		return fmt.Errorf("remove_item must not include new_* fields")
	}

	return nil
}

// Interpretation classifies a reply to a confirmation question.
type Interpretation string

const (
	Confirmed  Interpretation = "CONFIRMED"
	Rejected   Interpretation = "REJECTED"
	Correction Interpretation = "CORRECTION"
	Unclear    Interpretation = "UNCLEAR"
)

// ConfirmationResult is the interpreted confirmation reply, with corrected
// values when the customer adjusted the pending change.
type ConfirmationResult struct {
	Interpretation    Interpretation `json:"interpretation"`
	CorrectedQuantity *int           `json:"corrected_quantity,omitempty"`
	CorrectedSize     *string        `json:"corrected_size,omitempty"`
	CorrectedColor    *string        `json:"corrected_color,omitempty"`
	Reasoning         string         `json:"reasoning,omitempty"`
}
