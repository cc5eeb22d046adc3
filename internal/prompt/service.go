// Package prompt loads the YAML prompt templates that drive the support
// agent's LLM calls. Templates ship embedded in the binary; a directory
// override exists so operators can tune wording without a rebuild.
package prompt

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed templates/*.yml
var templates embed.FS

// jsonOutputWrapper is appended to prompts declaring output_type: json so the
// model returns a bare JSON object instead of prose or fenced markdown.
const jsonOutputWrapper = "CRITICAL: Your response must be ONLY valid JSON. " +
	"Do NOT include markdown code blocks (```), explanations, or any other text. " +
	"Output the raw JSON object directly."

// Template is the on-disk shape of a prompt file.
type Template struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	Instructions []string `yaml:"instructions"`
	OutputType   string   `yaml:"output_type"`
}

// Summary identifies a prompt without its body.
type Summary struct {
	Name        string
	Description string
}

// Service resolves prompt names to rendered system-prompt text.
type Service struct {
	overrideDir string
	cache       map[string]Template
}

// NewService creates a prompt service. overrideDir may be empty, in which
// case only the embedded templates are used.
func NewService(overrideDir string) *Service {
	return &Service{
		overrideDir: overrideDir,
		cache:       make(map[string]Template),
	}
}

func (s *Service) load(name string) (Template, error) {
	if tpl, ok := s.cache[name]; ok {
		return tpl, nil
	}

	var data []byte
	var err error
	if s.overrideDir != "" {
		data, err = os.ReadFile(filepath.Join(s.overrideDir, name+".yml"))
	}
	if s.overrideDir == "" || err != nil {
		data, err = templates.ReadFile("templates/" + name + ".yml")
	}
	if err != nil {
		return Template{}, fmt.Errorf("prompt %q not found: %w", name, err)
	}

	var tpl Template
	if err := yaml.Unmarshal(data, &tpl); err != nil {
		return Template{}, fmt.Errorf("prompt %q is not valid YAML: %w", name, err)
	}
	if len(tpl.Instructions) == 0 {
		return Template{}, fmt.Errorf("prompt %q has no instructions", name)
	}

	s.cache[name] = tpl
	return tpl, nil
}

// SystemPrompt returns the joined instruction text for a prompt. Prompts
// declaring output_type json get the strict JSON wrapper appended.
func (s *Service) SystemPrompt(name string) (string, error) {
	tpl, err := s.load(name)
	if err != nil {
		return "", err
	}

	base := strings.Join(tpl.Instructions, " ")
	if tpl.OutputType == "json" {
		return base + " " + jsonOutputWrapper, nil
	}
	return base, nil
}

// Format renders a prompt and substitutes {placeholder} occurrences with the
// provided params.
func (s *Service) Format(name string, params map[string]string) (string, error) {
	text, err := s.SystemPrompt(name)
	if err != nil {
		return "", err
	}
	for key, value := range params {
		text = strings.ReplaceAll(text, "{"+key+"}", value)
	}
	return text, nil
}

// List returns summaries for every embedded prompt, sorted by name.
func (s *Service) List() ([]Summary, error) {
	entries, err := templates.ReadDir("templates")
	if err != nil {
		return nil, err
	}

	var out []Summary
	for _, entry := range entries {
		name := strings.TrimSuffix(entry.Name(), ".yml")
		tpl, err := s.load(name)
		if err != nil {
			return nil, err
		}
		out = append(out, Summary{Name: tpl.Name, Description: tpl.Description})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
