package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSystemPromptAppendsJSONWrapper(t *testing.T) {
	s := NewService("")

	text, err := s.SystemPrompt("intent_classification")
	if err != nil {
		t.Fatalf("failed to load prompt: %v", err)
	}
	if !strings.Contains(text, "ONLY valid JSON") {
		t.Error("json prompts must carry the strict JSON wrapper")
	}

	text, err = s.SystemPrompt("order_summary")
	if err != nil {
		t.Fatalf("failed to load prompt: %v", err)
	}
	if strings.Contains(text, "ONLY valid JSON") {
		t.Error("text prompts must not carry the JSON wrapper")
	}
}

func TestFormatSubstitutesPlaceholders(t *testing.T) {
	s := NewService("")

	text, err := s.Format("policy_evaluation", map[string]string{
		"policy_document": "THE-POLICY",
		"order_status":    "IN_PRODUCTION",
		"change_type":     "size_change",
		"affected_amount": "1250.00",
		"order_total":     "1400.00",
	})
	if err != nil {
		t.Fatalf("format failed: %v", err)
	}
	for _, want := range []string{"THE-POLICY", "IN_PRODUCTION", "size_change", "$1250.00", "$1400.00"} {
		if !strings.Contains(text, want) {
			t.Errorf("rendered prompt missing %q", want)
		}
	}
	if strings.Contains(text, "{policy_document}") {
		t.Error("placeholder left unsubstituted")
	}
}

func TestUnknownPromptErrors(t *testing.T) {
	s := NewService("")
	if _, err := s.SystemPrompt("does_not_exist"); err == nil {
		t.Fatal("expected an error for an unknown prompt")
	}
}

func TestOverrideDirWinsOverEmbedded(t *testing.T) {
	dir := t.TempDir()
	override := "name: order_summary\ndescription: test override\ninstructions:\n  - \"OVERRIDDEN TEXT\"\n"
	if err := os.WriteFile(filepath.Join(dir, "order_summary.yml"), []byte(override), 0o644); err != nil {
		t.Fatalf("failed to write override: %v", err)
	}

	s := NewService(dir)
	text, err := s.SystemPrompt("order_summary")
	if err != nil {
		t.Fatalf("failed to load prompt: %v", err)
	}
	if text != "OVERRIDDEN TEXT" {
		t.Errorf("text = %q, want the override", text)
	}

	// Prompts absent from the override dir still resolve from the embed.
	if _, err := s.SystemPrompt("intent_classification"); err != nil {
		t.Errorf("embedded fallback failed: %v", err)
	}
}

func TestListCoversAllTemplates(t *testing.T) {
	s := NewService("")
	summaries, err := s.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(summaries) != 9 {
		t.Fatalf("templates = %d, want 9", len(summaries))
	}
	for _, sum := range summaries {
		if sum.Name == "" || sum.Description == "" {
			t.Errorf("template missing name or description: %+v", sum)
		}
	}
}
