package pool

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/relicta-tech/lockable/internal/domain/resource"
	lrerrors "github.com/relicta-tech/lockable/internal/errors"
)

// Selector picks resources by explicit names, by label, or by predicate
// script. A label prefixed with resource.ScriptMarker is treated as a script.
type Selector struct {
	Names  []string
	Label  string
	Script string
	Params map[string]any
	// Quantity is how many resources a request needs. Zero means all
	// selected resources.
	Quantity int
}

func (s Selector) script() string {
	if s.Script != "" {
		return s.Script
	}
	if rest, ok := strings.CutPrefix(s.Label, resource.ScriptMarker); ok {
		return strings.TrimSpace(rest)
	}
	return ""
}

func (s Selector) validate(op string) error {
	set := 0
	if len(s.Names) > 0 {
		set++
	}
	if s.Label != "" {
		set++
	}
	if s.Script != "" {
		set++
	}
	if set != 1 {
		return lrerrors.Validation(op, "exactly one of names, label or script must be given")
	}
	if s.Quantity < 0 {
		return lrerrors.Validation(op, "quantity must not be negative")
	}
	return nil
}

// Select returns the resources matching sel, sorted by name, regardless of
// ownership. Unknown explicit names are an error.
func (m *Manager) Select(ctx context.Context, sel Selector) (out []*resource.Resource, err error) {
	const op = "pool.Select"
	ctx, span := m.inst.Start(ctx, "Select", attribute.String("lockres.label", sel.Label))
	defer func() { span.End(ctx, err) }()

	if err := sel.validate(op); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(sel.Names) > 0 {
		return m.lookupLocked(op, sel.Names)
	}
	out, err = m.matchLocked(ctx, sel)
	m.publishLocked(ctx)
	return out, err
}

// matchLocked evaluates a label or script selector against every resource.
func (m *Manager) matchLocked(ctx context.Context, sel Selector) ([]*resource.Resource, error) {
	candidates := m.sortedLocked()
	script := sel.script()
	if script == "" {
		var out []*resource.Resource
		for _, r := range candidates {
			if r.IsValidLabel(sel.Label, sel.Params) {
				out = append(out, r)
			}
		}
		return out, nil
	}

	matched := make([]bool, len(candidates))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(m.matchWorkers)
	for i, r := range candidates {
		g.Go(func() error {
			ok, err := m.evaluator.Match(gCtx, r, script, sel.Params)
			if err != nil {
				return err
			}
			matched[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, lrerrors.EvaluationWrap(err, "pool.Select", "predicate evaluation failed")
	}

	var out []*resource.Resource
	for i, r := range candidates {
		if matched[i] {
			out = append(out, r)
		}
	}
	return out, nil
}
