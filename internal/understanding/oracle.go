package understanding

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"brightthread/internal/llm"
	"brightthread/internal/prompt"
)

// Oracle runs the three structured LLM calls the dialogue engine depends on.
type Oracle struct {
	client  llm.Client
	prompts *prompt.Service
	logger  *zap.Logger
}

// NewOracle creates an oracle over the given client and prompt service.
func NewOracle(client llm.Client, prompts *prompt.Service, logger *zap.Logger) *Oracle {
	return &Oracle{client: client, prompts: prompts, logger: logger.Named("understanding")}
}

// ClassifyIntent maps a customer message onto the closed intent set. Anything
// that does not parse cleanly is UNCLEAR, never an error.
func (o *Oracle) ClassifyIntent(ctx context.Context, message string) Intent {
	system, err := o.prompts.SystemPrompt("intent_classification")
	if err != nil {
		o.logger.Error("failed to load intent prompt", zap.Error(err))
		return IntentUnclear
	}

	raw, err := o.client.CompleteWithSystem(ctx, system, message)
	if err != nil {
		o.logger.Error("intent classification call failed", zap.Error(err))
		return IntentUnclear
	}

	content := stripCodeFences(raw)

	// Bare intent tokens are accepted without JSON wrapping.
	if intent, ok := ParseIntent(content); ok {
		return intent
	}

	var out struct {
		Intent string `json:"intent"`
	}
	if jsonStr := extractJSON(content); jsonStr != "" {
		if err := json.Unmarshal([]byte(jsonStr), &out); err == nil {
			if intent, ok := ParseIntent(out.Intent); ok {
				return intent
			}
		}
	}

	o.logger.Warn("unclear intent classification output", zap.String("raw", raw))
	return IntentUnclear
}

const modificationSchema = `{"action":"modify|remove_item|unsupported","line_item_id":"string|null","product_name":"string","size_name":"string","color_name":"string","current_quantity":"number|null","new_quantity":"number|null","new_size":"string|null","new_color":"string|null","reason":"string|null"}`

// ExtractModification parses a change request against the order into a
// validated Modification. It attempts one repair round-trip on malformed
// output; after that it returns nil and the agent asks for clarification.
func (o *Oracle) ExtractModification(ctx context.Context, orderDetails, message string) *Modification {
	system, err := o.prompts.SystemPrompt("parse_modification")
	if err != nil {
		o.logger.Error("failed to load parse prompt", zap.Error(err))
		return nil
	}

	user := fmt.Sprintf("Order Details: %s\n\nUser Request: %s", orderDetails, message)
	raw, err := o.client.CompleteWithSystem(ctx, system, user)
	if err != nil {
		o.logger.Error("modification extraction call failed", zap.Error(err))
		return nil
	}

	content := stripCodeFences(raw)
	if mod, err := decodeModification(content); err == nil {
		return mod
	}

	repaired, err := o.repairJSONOnce(ctx, "Modification", modificationSchema, content)
	if err != nil {
		o.logger.Error("modification repair call failed", zap.Error(err))
		return nil
	}
	mod, err := decodeModification(repaired)
	if err != nil {
		o.logger.Error("failed to parse/repair modification output",
			zap.String("raw", raw), zap.Error(err))
		return nil
	}
	return mod
}

// rawModification tolerates the key aliases the model tends to emit.
type rawModification struct {
	Action          string  `json:"action"`
	LineItemID      string  `json:"line_item_id"`
	ProductName     string  `json:"product_name"`
	SizeName        string  `json:"size_name"`
	Size            string  `json:"size"`
	ColorName       string  `json:"color_name"`
	Color           string  `json:"color"`
	CurrentQuantity *int    `json:"current_quantity"`
	NewQuantity     *int    `json:"new_quantity"`
	NewSize         *string `json:"new_size"`
	NewColor        *string `json:"new_color"`
	Reason          string  `json:"reason"`
}

func decodeModification(content string) (*Modification, error) {
	jsonStr := extractJSON(content)
	if jsonStr == "" {
		return nil, fmt.Errorf("no JSON object in output")
	}

	var raw rawModification
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return nil, fmt.Errorf("JSON parse failed: %w", err)
	}

	action := raw.Action
	switch action {
	case "modify_quantity", "modify_size", "modify_color":
		action = string(ActionModify)
	case "":
		action = string(ActionUnsupported)
	}

	sizeName := raw.SizeName
	if sizeName == "" {
		sizeName = raw.Size
	}
	colorName := raw.ColorName
	if colorName == "" {
		colorName = raw.Color
	}

	mod := &Modification{
		Action:          Action(action),
		LineItemID:      raw.LineItemID,
		ProductName:     raw.ProductName,
		SizeName:        sizeName,
		ColorName:       colorName,
		CurrentQuantity: raw.CurrentQuantity,
		NewQuantity:     raw.NewQuantity,
		NewSize:         raw.NewSize,
		NewColor:        raw.NewColor,
		Reason:          raw.Reason,
	}
	if err := mod.Validate(); err != nil {
		return nil, err
	}
	return mod, nil
}

const confirmationSchema = `{"interpretation":"CONFIRMED|REJECTED|CORRECTION|UNCLEAR","corrected_quantity":"number|null","corrected_size":"string|null","corrected_color":"string|null","reasoning":"string"}`

// InterpretConfirmation reads a free-form reply to a confirmation question.
// Malformed output gets one repair attempt, then falls back to UNCLEAR.
func (o *Oracle) InterpretConfirmation(ctx context.Context, pending *Modification, message string) ConfirmationResult {
	unclear := ConfirmationResult{
		Interpretation: Unclear,
		Reasoning:      "Failed to parse LLM response",
	}

	system, err := o.prompts.SystemPrompt("interpret_confirmation")
	if err != nil {
		o.logger.Error("failed to load interpret prompt", zap.Error(err))
		return unclear
	}

	pendingJSON, err := json.Marshal(pending)
	if err != nil {
		o.logger.Error("failed to encode pending modification", zap.Error(err))
		return unclear
	}

	user := fmt.Sprintf("Pending change: %s\n\nUser response: %s", pendingJSON, message)
	raw, err := o.client.CompleteWithSystem(ctx, system, user)
	if err != nil {
		o.logger.Error("confirmation interpretation call failed", zap.Error(err))
		return unclear
	}

	content := stripCodeFences(raw)
	if result, err := decodeConfirmation(content); err == nil {
		return result
	}

	repaired, err := o.repairJSONOnce(ctx, "ConfirmationResult", confirmationSchema, content)
	if err != nil {
		o.logger.Error("confirmation repair call failed", zap.Error(err))
		return unclear
	}
	result, err := decodeConfirmation(repaired)
	if err != nil {
		o.logger.Error("failed to parse/repair confirmation interpretation",
			zap.String("raw", raw), zap.Error(err))
		return unclear
	}
	return result
}

func decodeConfirmation(content string) (ConfirmationResult, error) {
	jsonStr := extractJSON(content)
	if jsonStr == "" {
		return ConfirmationResult{}, fmt.Errorf("no JSON object in output")
	}

	// "type" is a common alias the model uses for "interpretation".
	var raw struct {
		Interpretation    string  `json:"interpretation"`
		Type              string  `json:"type"`
		CorrectedQuantity *int    `json:"corrected_quantity"`
		CorrectedSize     *string `json:"corrected_size"`
		CorrectedColor    *string `json:"corrected_color"`
		Reasoning         string  `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return ConfirmationResult{}, fmt.Errorf("JSON parse failed: %w", err)
	}

	interpretation := raw.Interpretation
	if interpretation == "" {
		interpretation = raw.Type
	}
	switch Interpretation(interpretation) {
	case Confirmed, Rejected, Correction, Unclear:
	default:
		return ConfirmationResult{}, fmt.Errorf("unknown interpretation %q", interpretation)
	}

	return ConfirmationResult{
		Interpretation:    Interpretation(interpretation),
		CorrectedQuantity: raw.CorrectedQuantity,
		CorrectedSize:     raw.CorrectedSize,
		CorrectedColor:    raw.CorrectedColor,
		Reasoning:         raw.Reasoning,
	}, nil
}

// repairJSONOnce re-presents malformed output together with the target
// schema. Exactly one attempt; callers fall back to the safe default after.
func (o *Oracle) repairJSONOnce(ctx context.Context, schemaName, schema, badOutput string) (string, error) {
	system := fmt.Sprintf("You are a JSON repair assistant. Produce ONLY valid JSON for schema '%s'. "+
		"Do not include markdown, explanations, or any surrounding text. Schema: %s", schemaName, schema)
	repaired, err := o.client.CompleteWithSystem(ctx, system, "Malformed output:\n"+badOutput)
	if err != nil {
		return "", err
	}
	return stripCodeFences(repaired), nil
}

// stripCodeFences removes a surrounding markdown code fence if present.
func stripCodeFences(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	lines := strings.Split(content, "\n")
	if len(lines) < 2 {
		return content
	}
	lines = lines[1:]
	if strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// extractJSON finds the first balanced JSON object in a response.
func extractJSON(response string) string {
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
