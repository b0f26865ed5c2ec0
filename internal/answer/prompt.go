package answer

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompt.tmpl
var promptText string

//go:embed examples.yaml
var examplesYAML []byte

// Example is one few-shot demonstration included in every prompt.
type Example struct {
	Context        string `yaml:"context"`
	Query          string `yaml:"query"`
	ExpectedAnswer string `yaml:"expected_answer"`
}

// Prompt renders the question-answering prompt.
type Prompt struct {
	tmpl     *template.Template
	examples []Example
}

// DefaultPrompt returns the built-in prompt with its bundled examples.
func DefaultPrompt() (*Prompt, error) {
	examples, err := ParseExamples(examplesYAML)
	if err != nil {
		return nil, err
	}
	return NewPrompt(examples)
}

// ParseExamples reads a YAML document with a top-level "examples" list.
func ParseExamples(data []byte) ([]Example, error) {
	var doc struct {
		Examples []Example `yaml:"examples"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse examples: %w", err)
	}
	return doc.Examples, nil
}

func NewPrompt(examples []Example) (*Prompt, error) {
	tmpl, err := template.New("prompt").
		Funcs(template.FuncMap{"inc": func(i int) int { return i + 1 }}).
		Parse(promptText)
	if err != nil {
		return nil, fmt.Errorf("parse prompt template: %w", err)
	}
	return &Prompt{tmpl: tmpl, examples: examples}, nil
}

func (p *Prompt) Render(query, context string) (string, error) {
	var b strings.Builder
	err := p.tmpl.Execute(&b, map[string]any{
		"Examples": p.examples,
		"Context":  context,
		"Query":    query,
		"NotFound": NotFoundAnswer,
	})
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
