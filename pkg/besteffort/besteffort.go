// Package besteffort runs side effects whose failure is logged and counted but
// never propagated to the caller.
package besteffort

import (
	"context"
	"fmt"

	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/metrics"
)

// Outcome reports how a step ended.
type Outcome struct {
	Step     string
	OK       bool
	Err      error
	Panicked bool
}

func (o Outcome) label() string {
	switch {
	case o.Panicked:
		return "panic"
	case o.OK:
		return "ok"
	default:
		return "failed"
	}
}

// Runner executes best-effort steps.
type Runner struct {
	logg    *logger.Logger
	metrics *metrics.BestEffortMetrics
}

// New builds a Runner. A nil metrics recorder disables counting.
func New(logg *logger.Logger, m *metrics.BestEffortMetrics) *Runner {
	return &Runner{logg: logg, metrics: m}
}

// Run executes fn, recovering panics. Failures are logged with the step name and
// whatever fields ctx already carries.
func (r *Runner) Run(ctx context.Context, step string, fn func(context.Context) error) (out Outcome) {
	out.Step = step
	if ctx == nil {
		ctx = context.Background()
	}
	defer func() {
		if rec := recover(); rec != nil {
			out.OK = false
			out.Panicked = true
			out.Err = fmt.Errorf("panic in %s: %v", step, rec)
		}
		r.record(ctx, out)
	}()

	if err := fn(ctx); err != nil {
		out.Err = err
		return out
	}
	out.OK = true
	return out
}

func (r *Runner) record(ctx context.Context, out Outcome) {
	if r == nil {
		return
	}
	r.metrics.Inc(out.Step, out.label())
	if out.OK || r.logg == nil {
		return
	}
	logCtx := r.logg.WithStep(ctx, out.Step)
	if out.Panicked {
		r.logg.Error(logCtx, "best-effort step panicked", out.Err)
		return
	}
	r.logg.WarnErr(logCtx, "best-effort step failed", out.Err)
}
