package policy

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"brightthread/internal/prompt"
)

type stubClient struct {
	response string
	err      error
	system   string
}

func (c *stubClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

func (c *stubClient) CompleteWithSystem(ctx context.Context, system, user string) (string, error) {
	c.system = system
	return c.response, c.err
}

func newTestEngine(client *stubClient) *Engine {
	return NewEngine(client, prompt.NewService(""), zap.NewNop())
}

func TestEvaluateParsesConditionalDecision(t *testing.T) {
	client := &stubClient{response: `{
		"decision": "conditional",
		"cost_impact": 125.0,
		"cost_description": "10% of the affected line",
		"delivery_impact_days": 3,
		"requires_confirmation": true
	}`}
	engine := newTestEngine(client)

	eval := engine.Evaluate(context.Background(), "in_production", SizeChange, 1250, 1400)

	if eval.Decision != Conditional {
		t.Fatalf("decision = %q, want conditional", eval.Decision)
	}
	if eval.CostImpact == nil || *eval.CostImpact != 125.0 {
		t.Errorf("cost impact = %v, want 125.0", eval.CostImpact)
	}
	if eval.DeliveryImpactDays == nil || *eval.DeliveryImpactDays != 3 {
		t.Errorf("delivery impact = %v, want 3", eval.DeliveryImpactDays)
	}
	if !eval.HasConditions() {
		t.Error("expected HasConditions")
	}
	if eval.OrderStatus != "IN_PRODUCTION" || eval.ChangeType != SizeChange {
		t.Errorf("context not attached: %+v", eval)
	}

	// The rendered prompt carries the policy document and the amounts.
	for _, want := range []string{"IN_PRODUCTION", "size_change", "$1250.00", "$1400.00", "## Policies by Order Status"} {
		if !strings.Contains(client.system, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
}

func TestEvaluateAcceptsFencedJSON(t *testing.T) {
	client := &stubClient{response: "Here you go:\n```json\n{\"decision\": \"allowed\"}\n```"}
	engine := newTestEngine(client)

	eval := engine.Evaluate(context.Background(), "CREATED", QuantityDecrease, 100, 500)
	if eval.Decision != Allowed {
		t.Fatalf("decision = %q, want allowed", eval.Decision)
	}
}

func TestEvaluateFailsSafeOnGarbage(t *testing.T) {
	client := &stubClient{response: "sounds good to me!"}
	engine := newTestEngine(client)

	eval := engine.Evaluate(context.Background(), "APPROVED", ColorChange, 100, 500)
	if eval.Decision != Denied {
		t.Fatalf("decision = %q, want denied fail-safe", eval.Decision)
	}
	if !eval.EscalateToSupport {
		t.Error("fail-safe must escalate to support")
	}
	if !strings.Contains(eval.DenialReason, "Unable to evaluate policy") {
		t.Errorf("denial reason = %q", eval.DenialReason)
	}
}

func TestEvaluateFailsSafeOnTransportError(t *testing.T) {
	client := &stubClient{err: errors.New("connection refused")}
	engine := newTestEngine(client)

	eval := engine.Evaluate(context.Background(), "APPROVED", Cancellation, 100, 500)
	if eval.Decision != Denied || !eval.EscalateToSupport {
		t.Fatalf("expected denied fail-safe, got %+v", eval)
	}
}

func TestEvaluateRejectsUnknownDecision(t *testing.T) {
	client := &stubClient{response: `{"decision": "probably"}`}
	engine := newTestEngine(client)

	eval := engine.Evaluate(context.Background(), "CREATED", QuantityIncrease, 100, 500)
	if eval.Decision != Denied {
		t.Fatalf("decision = %q, want denied fail-safe", eval.Decision)
	}
}

func TestSummaryExtractsStatusSection(t *testing.T) {
	section := Summary("in_production")
	if !strings.Contains(section, "IN_PRODUCTION State") {
		t.Errorf("section does not name the status: %q", section)
	}
	if strings.Contains(section, "READY_TO_SHIP State") {
		t.Error("section bleeds into the next status")
	}

	if missing := Summary("UNKNOWN"); !strings.Contains(missing, "No policy information") {
		t.Errorf("missing status should produce a fallback, got %q", missing)
	}
}

func TestExtractJSONHandlesNestedAndStrings(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"bare", `{"a": 1}`, `{"a": 1}`},
		{"nested", `prefix {"a": {"b": 2}} suffix`, `{"a": {"b": 2}}`},
		{"brace in string", `{"a": "close } brace"}`, `{"a": "close } brace"}`},
		{"fenced", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"none", "no json here", ""},
		{"unbalanced", `{"a": 1`, ""},
	}
	for _, tc := range cases {
		if got := ExtractJSON(tc.in); got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}
