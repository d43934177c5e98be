package predicate

import (
	"context"
	"io"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/relicta-tech/lockable/internal/domain/resource"
)

// Evaluator compiles predicates once per distinct source and matches them
// against resources.
type Evaluator struct {
	programs sync.Map // source -> *Program
	logger   *log.Logger
}

// NewEvaluator creates an evaluator. A nil logger discards output.
func NewEvaluator(logger *log.Logger) *Evaluator {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Evaluator{logger: logger}
}

// Compile returns the cached program for source, compiling it on first use.
// Failed compilations are not cached.
func (e *Evaluator) Compile(source string) (*Program, error) {
	if p, ok := e.programs.Load(source); ok {
		return p.(*Program), nil
	}
	p, err := Compile(source)
	if err != nil {
		return nil, err
	}
	actual, _ := e.programs.LoadOrStore(source, p)
	return actual.(*Program), nil
}

// Match evaluates source against r. Compilation failures are reported as
// match evaluation errors, like any other evaluation failure.
func (e *Evaluator) Match(ctx context.Context, r *resource.Resource, source string, params map[string]any) (bool, error) {
	p, err := e.Compile(source)
	if err != nil {
		return false, &resource.MatchEvaluationError{Resource: r.Name(), Script: source, Err: err}
	}
	matched, err := r.ScriptMatches(ctx, p, params)
	if err != nil {
		e.logger.Debug("predicate evaluation failed", "resource", r.Name(), "script", source, "error", err)
		return false, err
	}
	e.logger.Debug("evaluated predicate", "resource", r.Name(), "script", source, "matched", matched)
	return matched, nil
}
