// Package outparse turns free-form model output into typed values validated
// against a JSON schema, with one model-assisted repair attempt.
package outparse

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	apperrors "order-analyst/errors"
	"order-analyst/llmclient"
	"order-analyst/prompts"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"
)

type Parser struct {
	name   string
	raw    string
	schema *jsonschema.Schema
	fixer  llmclient.Model
	logger *zap.Logger
}

// New compiles schemaJSON. fixer may be nil, in which case Parse never
// attempts a repair.
func New(name, schemaJSON string, fixer llmclient.Model, logger *zap.Logger) (*Parser, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("parse %s schema: %w", name, err)
	}
	resource := name + ".schema.json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(resource, doc); err != nil {
		return nil, fmt.Errorf("add %s schema resource: %w", name, err)
	}
	schema, err := compiler.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("compile %s schema: %w", name, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{name: name, raw: schemaJSON, schema: schema, fixer: fixer, logger: logger}, nil
}

// MustNew is New for package-level schemas known to be valid.
func MustNew(name, schemaJSON string, fixer llmclient.Model, logger *zap.Logger) *Parser {
	p, err := New(name, schemaJSON, fixer, logger)
	if err != nil {
		panic(err)
	}
	return p
}

// WithFixer returns a copy of p that repairs with fixer.
func (p *Parser) WithFixer(fixer llmclient.Model) *Parser {
	cp := *p
	cp.fixer = fixer
	return &cp
}

// FormatInstructions is the text appended to prompts to request output
// matching the schema.
func (p *Parser) FormatInstructions() string {
	return "The output should be formatted as a JSON instance that conforms to the JSON schema below.\n\n" +
		"Here is the output schema:\n```\n" + strings.TrimSpace(p.raw) + "\n```\n" +
		"Return only the JSON object, wrapped in a ```json code block."
}

// ParseStrict validates raw and decodes it into out without any repair.
func (p *Parser) ParseStrict(raw string, out any) error {
	body, ok := ExtractJSON(raw)
	if !ok {
		return apperrors.WrapErrorf(apperrors.ErrMalformedOutput, "%s: no JSON object found", p.name)
	}
	inst, err := jsonschema.UnmarshalJSON(strings.NewReader(body))
	if err != nil {
		return apperrors.WrapErrorf(apperrors.ErrMalformedOutput, "%s: %v", p.name, err)
	}
	if err := p.schema.Validate(inst); err != nil {
		return apperrors.WrapErrorf(apperrors.ErrMalformedOutput, "%s: %v", p.name, err)
	}
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return apperrors.WrapErrorf(apperrors.ErrMalformedOutput, "%s: %v", p.name, err)
	}
	return nil
}

// Parse is ParseStrict followed, on failure, by one repair prompt to the
// fixer model. The result of the repair is parsed strictly.
func (p *Parser) Parse(ctx context.Context, raw string, out any) error {
	firstErr := p.ParseStrict(raw, out)
	if firstErr == nil {
		return nil
	}
	if p.fixer == nil {
		return firstErr
	}
	p.logger.Debug("Output failed validation, asking model to repair",
		zap.String("parser", p.name), zap.Error(firstErr))

	prompt := prompts.Render(prompts.FixOutput(), map[string]string{
		"instructions": p.FormatInstructions(),
		"completion":   raw,
		"error":        firstErr.Error(),
	})
	resp, err := p.fixer.Complete(ctx, llmclient.Prompt("", prompt))
	if err != nil {
		return apperrors.WrapErrorf(apperrors.ErrMalformedOutput, "%s: repair request failed: %v", p.name, err)
	}
	if err := p.ParseStrict(resp.Content, out); err != nil {
		return apperrors.WrapError(err, "after repair")
	}
	return nil
}

// ExtractJSON returns the outermost JSON object in text, ignoring code fences
// and surrounding prose.
func ExtractJSON(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if i := strings.Index(text, "```"); i != -1 {
		rest := text[i+3:]
		// skip the language tag
		if nl := strings.IndexByte(rest, '\n'); nl != -1 {
			rest = rest[nl+1:]
		}
		if j := strings.Index(rest, "```"); j != -1 {
			if inner := strings.TrimSpace(rest[:j]); strings.HasPrefix(inner, "{") {
				text = inner
			}
		}
	}
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start == -1 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}
