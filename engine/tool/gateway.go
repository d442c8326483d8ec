package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/slok/goresilience"
	"github.com/slok/goresilience/circuitbreaker"
	goresilienceerrors "github.com/slok/goresilience/errors"
	"github.com/slok/goresilience/timeout"

	"github.com/roundslab/rounds/engine/core"
	"github.com/roundslab/rounds/pkg/logger"
)

const defaultToolTimeout = 10 * time.Second

// Gateway runs invocations through validation, a per-tool resilience
// chain (timeout then circuit breaker; retries belong to the recovery
// layer, not here), failure mapping, and rendering.
type Gateway struct {
	catalog        *Catalog
	renderer       *Renderer
	defaultTimeout time.Duration
	runners        sync.Map // tool name -> goresilience.Runner
}

// NewGateway builds a gateway over the catalog. A non-positive timeout
// falls back to the 10s default.
func NewGateway(catalog *Catalog, renderer *Renderer, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = defaultToolTimeout
	}
	return &Gateway{
		catalog:        catalog,
		renderer:       renderer,
		defaultTimeout: timeout,
	}
}

// Invoke runs one tool call and always returns a complete Result
// envelope; failures are categorized and rendered, never raw. The handler
// runs on a context detached from the caller's cancellation with its own
// deadline, so a dropped client cannot tear down a side-effecting call
// mid-flight.
func (g *Gateway) Invoke(ctx context.Context, name string, args map[string]any) *Result {
	log := logger.FromContext(ctx)
	if args == nil {
		args = map[string]any{}
	}
	result := &Result{
		CallID:    uuid.NewString(),
		ToolName:  name,
		Arguments: args,
	}
	def, err := g.catalog.Get(name)
	if err != nil {
		result.ToolLabel = "unknown tool"
		result.Outcome = OutcomeError
		result.ErrorCategory = ErrorInvalidArgs
		result.RenderedText = "The requested tool is not available."
		log.Warn("invocation of unregistered tool", "tool", name, "call_id", result.CallID)
		return result
	}
	result.ToolLabel = def.Label
	result.Category = def.Category

	if err := g.catalog.Registry().ValidateValue(ctx, def.Args.Name, args); err != nil {
		field := ""
		if missing := def.MissingRequiredArgs(args); len(missing) > 0 {
			field = missing[0]
		}
		result.Outcome = OutcomeError
		result.ErrorCategory = ErrorInvalidArgs
		result.RenderedText = g.renderer.RenderError(ctx, def.Label, ErrorInvalidArgs, nil, field)
		log.Debug("tool arguments failed validation",
			"tool", name, "call_id", result.CallID, "missing", field, "error", core.RedactError(err))
		return result
	}

	payload, catErr, duration, runErr := g.run(ctx, def, args)
	result.Duration = duration
	switch {
	case runErr != nil:
		category, candidates, field := categorize(runErr)
		result.Outcome = OutcomeError
		result.ErrorCategory = category
		result.Candidates = candidates
		result.RenderedText = g.renderer.RenderError(ctx, def.Label, category, candidates, field)
		log.Info("tool invocation failed",
			"tool", name, "call_id", result.CallID, "category", string(category),
			"duration", duration, "error", core.RedactError(runErr))
	case catErr != nil:
		result.Outcome = OutcomeError
		result.ErrorCategory = catErr.Category
		result.Candidates = catErr.Candidates
		result.RenderedText = g.renderer.RenderError(ctx, def.Label, catErr.Category, catErr.Candidates, catErr.Field)
		log.Info("tool invocation returned a domain failure",
			"tool", name, "call_id", result.CallID, "category", string(catErr.Category),
			"duration", duration)
	case isEmptyPayload(payload):
		result.Outcome = OutcomeEmpty
		result.RenderedText = g.renderer.RenderEmpty(ctx, def.Label)
		log.Debug("tool invocation returned no data",
			"tool", name, "call_id", result.CallID, "duration", duration)
	default:
		result.Outcome = OutcomeSuccess
		result.RawPayload = payload
		text, fmtErr := def.Format(def.Label, payload)
		if fmtErr != nil {
			log.Error("tool formatter failed; using fallback text",
				"tool", name, "call_id", result.CallID, "error", core.RedactError(fmtErr))
			text = fmt.Sprintf("The %s returned data that could not be summarized.", def.Label)
		}
		result.RenderedText = text
		log.Debug("tool invocation succeeded",
			"tool", name, "call_id", result.CallID, "duration", duration)
	}
	return result
}

// run executes the handler inside the tool's resilience chain on a
// detached context. Domain failures that say nothing about service health
// (not_found, ambiguous_match, invalid_args) are captured without feeding
// the circuit breaker; health failures pass through as errors.
func (g *Gateway) run(ctx context.Context, def *Definition, args map[string]any) (json.RawMessage, *CategoryError, time.Duration, error) {
	runner := g.runnerFor(def)
	callCtx := context.WithoutCancel(ctx)
	var payload json.RawMessage
	var domainErr *CategoryError
	start := time.Now()
	err := runner.Run(callCtx, func(ctx context.Context) (runErr error) {
		defer func() {
			if r := recover(); r != nil {
				runErr = fmt.Errorf("handler panic recovered: %v", r)
			}
		}()
		p, handlerErr := def.Handler(ctx, args)
		if handlerErr != nil {
			var catErr *CategoryError
			if errors.As(handlerErr, &catErr) && catErr.Category.Valid() && !catErr.Category.Retryable() {
				domainErr = catErr
				return nil
			}
			return handlerErr
		}
		payload = p
		return nil
	})
	return payload, domainErr, time.Since(start), err
}

func (g *Gateway) runnerFor(def *Definition) goresilience.Runner {
	if existing, ok := g.runners.Load(def.Name); ok {
		return existing.(goresilience.Runner)
	}
	callTimeout := g.defaultTimeout
	if def.Timeout > 0 {
		callTimeout = def.Timeout
	}
	runner := goresilience.RunnerChain(
		timeout.NewMiddleware(timeout.Config{Timeout: callTimeout}),
		circuitbreaker.NewMiddleware(circuitbreaker.Config{
			ErrorPercentThresholdToOpen:        50,
			MinimumRequestToOpen:               10,
			SuccessfulRequiredOnHalfOpen:       1,
			WaitDurationInOpenState:            5 * time.Second,
			MetricsSlidingWindowBucketQuantity: 10,
			MetricsBucketDuration:              1 * time.Second,
		}),
	)
	actual, _ := g.runners.LoadOrStore(def.Name, runner)
	return actual.(goresilience.Runner)
}

// categorize maps a resilience-chain failure onto the closed taxonomy.
func categorize(err error) (ErrorCategory, []string, string) {
	var catErr *CategoryError
	if errors.As(err, &catErr) && catErr.Category.Valid() {
		return catErr.Category, catErr.Candidates, catErr.Field
	}
	if errors.Is(err, goresilienceerrors.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorTimeout, nil, ""
	}
	if errors.Is(err, goresilienceerrors.ErrCircuitOpen) {
		return ErrorServerError, nil, ""
	}
	return ErrorServerError, nil, ""
}

func isEmptyPayload(payload json.RawMessage) bool {
	if len(payload) == 0 {
		return true
	}
	switch string(payload) {
	case "null", "{}", "[]", `""`:
		return true
	}
	return false
}
