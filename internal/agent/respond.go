package agent

import (
	"fmt"
	"strings"

	"brightthread/internal/order"
	"brightthread/internal/policy"
	"brightthread/internal/understanding"
)

// supportPhone is quoted verbatim in every escalation message.
const supportPhone = "888-888-8888"

// Canned responses for the deterministic branches. These are fixed text, not
// generated, so the state machine behaves the same with any model behind it.
const (
	msgUnclearIntent = "I'm not sure I understood that. You can ask me about your order or request a change, " +
		"like updating a quantity, size, or color."

	msgOffTopicFallback = "I can only help with questions about your order. " +
		"Is there anything about your order I can help you with?"

	msgExtractionFailed = "I couldn't quite work out which change you'd like to make. Could you rephrase it? " +
		"For example: \"change the medium navy polos to 75\" or \"remove the small red t-shirts\"."

	msgUnsupportedChange = "I'm sorry, I can't make that kind of change to your order myself. " +
		"Please contact our customer service team at " + supportPhone + " and they'll be happy to help."

	msgAlreadyApplied = "That change was already applied. Is there anything else you want to update?"

	msgAlreadyCancelled = "That change was already cancelled. Would you like to request a different change?"

	msgNothingPending = "I don't have a pending change for this order. " +
		"What would you like to update?"

	msgNothingPendingShort = "I don't have a pending change. What would you like to do?"

	msgChangeCancelled = "No problem, I've cancelled that change. Is there anything else I can help you with?"

	msgConfirmUnclear = "Sorry, I want to be sure I get this right. Should I go ahead with that change? " +
		"A simple yes or no works."

	msgPolicyConfirmUnclear = "I need a clear yes or no before I apply this change with the conditions I described. " +
		"Would you like to proceed?"
)

// fallbackSummary is the non-generated order summary used when the model is
// unavailable.
func fallbackSummary(o order.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Here's your order %s (status: %s, total: $%.2f):\n", o.ID, o.Status, o.TotalAmount)
	for _, item := range o.LineItems {
		fmt.Fprintf(&b, "- %d x %s %s %s at $%.2f each\n",
			item.Quantity, item.Size, item.Color, item.ProductName, item.UnitPrice)
	}
	b.WriteString("Is there anything you'd like to change?")
	return b.String()
}

// fallbackConfirmQuestion restates the pending modification as a yes/no
// question.
func fallbackConfirmQuestion(mod *understanding.Modification) string {
	item := fmt.Sprintf("%s %s %s", strings.ToLower(mod.SizeName), strings.ToLower(mod.ColorName), mod.ProductName)
	if mod.Action == understanding.ActionRemoveItem {
		return fmt.Sprintf("Just to confirm: you'd like me to remove the %s from your order. Is that right?", item)
	}
	return fmt.Sprintf("Just to confirm: you'd like me to update the %s (%s). Is that right?",
		item, strings.Join(describeChanges(mod, nil), ", "))
}

func fallbackDenial(eval policy.Evaluation) string {
	reason := eval.DenialReason
	if reason == "" {
		reason = "this change isn't allowed at the order's current stage"
	}
	return fmt.Sprintf("I'm sorry, I can't make that change: %s. "+
		"If you'd like to discuss options, please contact our customer service team at %s.",
		reason, supportPhone)
}

func fallbackConditions(eval policy.Evaluation) string {
	var conditions []string
	if eval.CostImpact != nil {
		c := fmt.Sprintf("an additional fee of $%.2f", *eval.CostImpact)
		if eval.CostDescription != "" {
			c += " (" + eval.CostDescription + ")"
		}
		conditions = append(conditions, c)
	}
	if eval.DeliveryImpactDays != nil {
		d := fmt.Sprintf("a delivery delay of %d days", *eval.DeliveryImpactDays)
		if eval.DeliveryDescription != "" {
			d += " (" + eval.DeliveryDescription + ")"
		}
		conditions = append(conditions, d)
	}
	if len(conditions) == 0 {
		conditions = append(conditions, "additional conditions apply")
	}
	return fmt.Sprintf("I can make that change, but it comes with %s. Would you like to proceed?",
		joinNatural(conditions))
}

// describeChanges lists what the modification alters, in quantity, size,
// color order. The previous line item fills in the "from" values when known.
func describeChanges(mod *understanding.Modification, prev *order.LineItem) []string {
	var changes []string
	if mod.NewQuantity != nil {
		changes = append(changes, fmt.Sprintf("quantity to %d", *mod.NewQuantity))
	}
	if mod.NewSize != nil {
		if prev != nil {
			changes = append(changes, fmt.Sprintf("size from %s to %s", prev.Size, *mod.NewSize))
		} else {
			changes = append(changes, fmt.Sprintf("size to %s", *mod.NewSize))
		}
	}
	if mod.NewColor != nil {
		if prev != nil {
			changes = append(changes, fmt.Sprintf("color from %s to %s", prev.Color, *mod.NewColor))
		} else {
			changes = append(changes, fmt.Sprintf("color to %s", *mod.NewColor))
		}
	}
	return changes
}

// joinNatural joins phrases with English conjunctions: "a", "a and b",
// "a, b, and c".
func joinNatural(parts []string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	case 2:
		return parts[0] + " and " + parts[1]
	default:
		return strings.Join(parts[:len(parts)-1], ", ") + ", and " + parts[len(parts)-1]
	}
}

// successMessage confirms an executed modification, naming the product and
// every field that changed.
func successMessage(mod *understanding.Modification, prev order.LineItem) string {
	if mod.Action == understanding.ActionRemoveItem {
		return fmt.Sprintf("Done! I've removed the %s %s %s from your order. Is there anything else I can help you with?",
			strings.ToLower(prev.Size), strings.ToLower(prev.Color), prev.ProductName)
	}
	changes := describeChanges(mod, &prev)
	return fmt.Sprintf("Done! I've updated the %s: %s. Is there anything else I can help you with?",
		prev.ProductName, joinNatural(changes))
}

// executionFailureMessage turns a domain error into an apologetic response
// with a support referral. Validation errors carry customer-safe text.
func executionFailureMessage(err error) string {
	return fmt.Sprintf("I wasn't able to complete that change: %s Please contact our customer service team at %s if you need further assistance.",
		ensureSentence(err.Error()), supportPhone)
}

func ensureSentence(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	if !strings.HasSuffix(s, ".") && !strings.HasSuffix(s, "!") && !strings.HasSuffix(s, "?") {
		s += "."
	}
	return s
}
