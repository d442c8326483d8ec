package pattern

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/google/cel-go/cel"
)

const (
	defaultCostLimit = 1000

	programCacheCounters = 2048
	programCacheMaxCost  = 256
	programCacheBuffer   = 64
)

// Evaluator compiles and runs boolean CEL predicates against the fixed
// pattern environment: `query` (lowercased user query), `entities` (map of
// recognized spans by kind) and `attachment_count`. Compiled programs are
// cached so hot-path evaluation does not re-parse expressions.
type Evaluator struct {
	env       *cel.Env
	costLimit uint64
	programs  *ristretto.Cache[string, cel.Program]
}

// EvaluatorOption customizes evaluator construction.
type EvaluatorOption func(*Evaluator)

// WithCostLimit overrides the per-evaluation CEL cost ceiling.
func WithCostLimit(limit uint64) EvaluatorOption {
	return func(e *Evaluator) {
		e.costLimit = limit
	}
}

// NewEvaluator builds the shared predicate evaluator.
func NewEvaluator(opts ...EvaluatorOption) (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("query", cel.StringType),
		cel.Variable("entities", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("attachment_count", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, cel.Program]{
		NumCounters: programCacheCounters,
		MaxCost:     programCacheMaxCost,
		BufferItems: programCacheBuffer,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program cache: %w", err)
	}
	e := &Evaluator{env: env, costLimit: defaultCostLimit, programs: cache}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Evaluate runs one predicate and requires a boolean outcome.
func (e *Evaluator) Evaluate(ctx context.Context, expression string, data map[string]any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	program, err := e.program(expression)
	if err != nil {
		return false, err
	}
	out, _, err := program.ContextEval(ctx, data)
	if err != nil {
		return false, fmt.Errorf("CEL evaluation failed: %w", err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression %q must produce a boolean, got %T", expression, out.Value())
	}
	return result, nil
}

// Check compiles an expression without evaluating it, so table loading can
// reject broken predicates before a turn ever runs them.
func (e *Evaluator) Check(expression string) error {
	_, err := e.program(expression)
	return err
}

func (e *Evaluator) program(expression string) (cel.Program, error) {
	if cached, ok := e.programs.Get(expression); ok {
		return cached, nil
	}
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compilation failed for %q: %w", expression, issues.Err())
	}
	program, err := e.env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(e.costLimit),
	)
	if err != nil {
		return nil, fmt.Errorf("CEL program build failed for %q: %w", expression, err)
	}
	e.programs.Set(expression, program, 1)
	return program, nil
}
