package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/linuxmatters/sigtrace/internal/results"
)

// Declaration is one method entry in a category of the protocol.
type Declaration struct {
	Name   string `json:"name" yaml:"name"`
	Params Params `json:"params,omitempty" yaml:"params"`
}

// CategoryPlan is an enabled category with its declared methods in order.
type CategoryPlan struct {
	Category string        `json:"category"`
	Methods  []Declaration `json:"methods"`
}

// Invocation is a resolved method call with its effective parameters.
type Invocation struct {
	Category string
	Method   string
	Params   Params
	entry    Entry
	pos      int
}

// EventKind identifies a progress event.
type EventKind int

const (
	EventStarted EventKind = iota
	EventCompleted
	EventFailed
	EventSkipped
)

// Event reports progress of a single invocation.
type Event struct {
	Kind     EventKind
	Category string
	Method   string
	Index    int // 1-based position in the plan
	Total    int
	Elapsed  time.Duration
	Failure  *results.Failure
}

// Stats summarises a finished run.
type Stats struct {
	Executed int
	Failed   int
	Skipped  []results.Skipped
	Elapsed  time.Duration
	// Timings holds per-invocation wall time in plan order. Timing is kept out of the
	// record so identical inputs give identical records.
	Timings []Timing
}

// Timing is one invocation's wall time.
type Timing struct {
	Category string
	Method   string
	Elapsed  time.Duration
	Failed   bool
}

// Engine executes plans against a registry.
type Engine struct {
	registry *Registry
	logger   *slog.Logger
	workers  int
	onEvent  func(Event)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithWorkers bounds concurrent invocations. Zero or less uses every CPU; one runs
// methods sequentially in declaration order.
func WithWorkers(n int) Option {
	return func(e *Engine) { e.workers = n }
}

// WithEventHandler receives progress events. The handler may be called concurrently.
func WithEventHandler(fn func(Event)) Option {
	return func(e *Engine) { e.onEvent = fn }
}

// New returns an engine. Defaults are sequential execution and a discarding logger.
func New(reg *Registry, opts ...Option) *Engine {
	e := &Engine{
		registry: reg,
		logger:   slog.New(slog.DiscardHandler),
		workers:  1,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.workers <= 0 {
		e.workers = runtime.NumCPU()
	}
	return e
}

// Resolve turns a plan into invocations. Declarations without a name or with an
// unknown identifier are logged and returned as skipped; they never abort the run.
func (e *Engine) Resolve(plan []CategoryPlan) ([]Invocation, []results.Skipped) {
	var invs []Invocation
	var skipped []results.Skipped
	for _, cat := range plan {
		for _, decl := range cat.Methods {
			if decl.Name == "" {
				e.logger.Warn("method declaration missing name, skipping", "category", cat.Category)
				skipped = append(skipped, results.Skipped{Category: cat.Category, Reason: "missing name"})
				continue
			}
			entry, err := e.registry.Resolve(decl.Name)
			if err != nil {
				e.logger.Warn("method not found in registry, skipping", "category", cat.Category, "method", decl.Name)
				skipped = append(skipped, results.Skipped{Category: cat.Category, Method: decl.Name, Reason: "unknown method"})
				continue
			}
			invs = append(invs, Invocation{
				Category: cat.Category,
				Method:   decl.Name,
				Params:   decl.Params.Merge(entry.Defaults),
				entry:    entry,
			})
		}
	}
	return invs, skipped
}

// Run executes every resolvable method in plan against actx and stores each outcome
// in agg at its declaration position. A failing or panicking method is recorded as a
// failure and never stops the others. Cancelling ctx records the remaining methods
// as Cancelled. Run only returns an error for aggregator misuse.
func (e *Engine) Run(ctx context.Context, actx *Context, plan []CategoryPlan, agg *results.Aggregator) (Stats, error) {
	start := time.Now()
	invs, skipped := e.Resolve(plan)
	for _, s := range skipped {
		if err := agg.Skip(s); err != nil {
			return Stats{}, err
		}
		e.emit(Event{Kind: EventSkipped, Category: s.Category, Method: s.Method})
	}
	for i := range invs {
		invs[i].pos = agg.Declare(invs[i].Category, invs[i].Method)
	}

	stats := Stats{Skipped: skipped, Timings: make([]Timing, len(invs))}
	outcomes := make([]results.AnalysisResult, len(invs))

	var g errgroup.Group
	g.SetLimit(e.workers)
	for i := range invs {
		g.Go(func() error {
			inv := invs[i]
			e.emit(Event{Kind: EventStarted, Category: inv.Category, Method: inv.Method, Index: i + 1, Total: len(invs)})

			t0 := time.Now()
			res := e.invoke(ctx, actx, inv)
			elapsed := time.Since(t0)

			outcomes[i] = res
			stats.Timings[i] = Timing{Category: inv.Category, Method: inv.Method, Elapsed: elapsed, Failed: res.Failed()}

			ev := Event{Kind: EventCompleted, Category: inv.Category, Method: inv.Method, Index: i + 1, Total: len(invs), Elapsed: elapsed}
			if res.Failed() {
				ev.Kind = EventFailed
				ev.Failure = res.Failure
				e.logger.Error("method failed", "category", inv.Category, "method", inv.Method,
					"kind", res.Failure.Kind, "error", res.Failure.Message)
			} else {
				e.logger.Info("method completed", "category", inv.Category, "method", inv.Method, "elapsed", elapsed)
			}
			e.emit(ev)

			return agg.Set(inv.pos, res)
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	for _, res := range outcomes {
		stats.Executed++
		if res.Failed() {
			stats.Failed++
		}
	}
	stats.Elapsed = time.Since(start)
	return stats, nil
}

// invoke runs one method behind a recover boundary.
func (e *Engine) invoke(ctx context.Context, actx *Context, inv Invocation) (res results.AnalysisResult) {
	params := inv.Params.Map()
	if err := ctx.Err(); err != nil {
		return results.FailedWith(inv.Category, inv.Method, params, describe(err))
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Debug("method panic", "method", inv.Method, "stack", string(debug.Stack()))
			err := &MethodExecutionError{Category: inv.Category, Method: inv.Method, Err: fmt.Errorf("panic: %v", r)}
			res = results.FailedWith(inv.Category, inv.Method, params, describe(err))
		}
	}()

	e.logger.Debug("executing method", "category", inv.Category, "method", inv.Method)
	out, err := inv.entry.Func(actx, inv.Params.Merge(nil))
	if err != nil {
		if !errors.Is(err, ErrResourceLimitExceeded) {
			err = &MethodExecutionError{Category: inv.Category, Method: inv.Method, Err: err}
		}
		return results.FailedWith(inv.Category, inv.Method, params, describe(err))
	}
	return results.Succeeded(inv.Category, inv.Method, params, out)
}

func (e *Engine) emit(ev Event) {
	if e.onEvent != nil {
		e.onEvent(ev)
	}
}
