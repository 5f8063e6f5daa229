// Package tools defines the callable tools offered to the orchestrating
// agent. A tool never fails: every outcome, including errors, is a textual
// observation the agent can read.
package tools

import (
	"context"
	"fmt"
	"strings"

	apperrors "order-analyst/errors"

	"github.com/agnivade/levenshtein"
)

// Descriptor is what the agent and the plan validator know about a tool.
// ProgressLabel is the phrase reported when the tool is invoked; empty means
// the tool is not announced.
type Descriptor struct {
	Name          string
	Description   string
	InputContract string
	ProgressLabel string
}

type Tool interface {
	Descriptor() Descriptor
	Run(ctx context.Context, input string) string
}

// Registry is an ordered set of tools with unique names.
type Registry struct {
	tools []Tool
	index map[string]Tool
}

func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{index: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(t Tool) error {
	name := t.Descriptor().Name
	if _, dup := r.index[name]; dup {
		return apperrors.WrapErrorf(apperrors.ErrInvalidInput, "tool %q registered twice", name)
	}
	r.tools = append(r.tools, t)
	r.index[name] = t
	return nil
}

func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.index[strings.TrimSpace(name)]
	return t, ok
}

// Descriptors returns descriptors in registration order.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, len(r.tools))
	for i, t := range r.tools {
		out[i] = t.Descriptor()
	}
	return out
}

func (r *Registry) Names() []string {
	out := make([]string, len(r.tools))
	for i, t := range r.tools {
		out[i] = t.Descriptor().Name
	}
	return out
}

// Catalog renders descriptors as "- name: description" lines.
func Catalog(descs []Descriptor) string {
	lines := make([]string, len(descs))
	for i, d := range descs {
		lines[i] = fmt.Sprintf("- %s: %s", d.Name, d.Description)
	}
	return strings.Join(lines, "\n")
}

// Suggest returns the registered name closest to name, or "" when nothing is
// reasonably close.
func (r *Registry) Suggest(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	best, bestDist := "", -1
	for _, t := range r.tools {
		candidate := t.Descriptor().Name
		d := levenshtein.ComputeDistance(name, strings.ToLower(candidate))
		if bestDist == -1 || d < bestDist {
			best, bestDist = candidate, d
		}
	}
	if bestDist == -1 || bestDist > max(3, len(best)/3) {
		return ""
	}
	return best
}
