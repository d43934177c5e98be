package resource

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Binding names exposed to predicate scripts.
const (
	BindingName        = "resourceName"
	BindingDescription = "resourceDescription"
	BindingLabels      = "resourceLabels"
	BindingNote        = "resourceNote"
)

// LabelList splits the label string on runs of whitespace.
func (r *Resource) LabelList() []string {
	return strings.Fields(r.labels)
}

// LabelsContain reports whether candidate is one of the label tokens.
// Matching is exact: no substring or pattern matching.
func (r *Resource) LabelsContain(candidate string) bool {
	return slices.Contains(r.LabelList(), candidate)
}

// IsValidLabel reports whether the resource carries the label candidate.
// params are accepted for parity with script matching and are unused.
func (r *Resource) IsValidLabel(candidate string, params map[string]any) bool {
	return r.LabelsContain(candidate)
}

// Bindings returns the variables a predicate script can see: caller params
// overlaid with the resource's own fields.
func (r *Resource) Bindings(params map[string]any) map[string]any {
	bindings := make(map[string]any, len(params)+4)
	for k, v := range params {
		bindings[k] = v
	}
	bindings[BindingName] = r.name
	bindings[BindingDescription] = r.description
	bindings[BindingLabels] = r.LabelList()
	bindings[BindingNote] = r.note
	return bindings
}

// ScriptMatches evaluates script against the resource's bindings.
// Any evaluation failure, including a non-boolean result, is reported as a
// *MatchEvaluationError rather than as a non-match.
func (r *Resource) ScriptMatches(ctx context.Context, script Script, params map[string]any) (bool, error) {
	if script == nil {
		return false, &MatchEvaluationError{Resource: r.name, Err: errors.New("no script")}
	}
	result, err := script.Evaluate(ctx, r.Bindings(params))
	if err != nil {
		return false, &MatchEvaluationError{Resource: r.name, Script: script.Source(), Err: err}
	}
	matched, ok := result.(bool)
	if !ok {
		return false, &MatchEvaluationError{
			Resource: r.name,
			Script:   script.Source(),
			Err:      fmt.Errorf("result %v (%T) is not a boolean", result, result),
		}
	}
	return matched, nil
}
