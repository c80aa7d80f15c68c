// Package stage runs the checks belonging to one pipeline stage.
package stage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/seolens/ai-visibility/internal/analysis"
	"github.com/seolens/ai-visibility/internal/registry"
)

// Orchestrator executes every check of a stage concurrently, each under its
// own timeout, and collects results in completion order. A check that times
// out, errors, or panics produces a synthetic failing result; it never aborts
// its siblings.
type Orchestrator struct {
	registry *registry.Registry
	logger   *zap.Logger
}

// NewOrchestrator builds an Orchestrator over the given check registry.
func NewOrchestrator(reg *registry.Registry, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{registry: reg, logger: logger}
}

type checkReturn struct {
	result  analysis.CheckResult
	faulted bool
}

// RunStage runs all checks for the stage against the fetched page. It returns
// once every check has resolved; the per-check timeout bounds the wait. The
// outer ctx cancels the whole stage, which also resolves every remaining
// check as a synthetic failure.
func (o *Orchestrator) RunStage(ctx context.Context, stage analysis.Stage, page *analysis.PageContext) analysis.StageOutcome {
	defs := o.registry.ChecksForStage(stage)
	timeout := analysis.CheckTimeout(stage)
	start := time.Now()

	returns := make(chan checkReturn, len(defs))
	var wg sync.WaitGroup
	for _, def := range defs {
		wg.Add(1)
		go func(def registry.Definition) {
			defer wg.Done()
			returns <- o.runOne(ctx, def, timeout, page)
		}(def)
	}
	wg.Wait()
	close(returns)

	outcome := analysis.StageOutcome{Stage: stage}
	for ret := range returns {
		outcome.Results = append(outcome.Results, ret.result)
		if ret.faulted {
			outcome.Faulted = append(outcome.Faulted, ret.result.Name)
		}
	}
	outcome.Elapsed = time.Since(start)

	o.logger.Debug("stage complete",
		zap.String("stage", string(stage)),
		zap.Int("checks", len(outcome.Results)),
		zap.Int("faulted", len(outcome.Faulted)),
		zap.Duration("elapsed", outcome.Elapsed))
	return outcome
}

// runOne executes a single check under its timeout with panic isolation.
func (o *Orchestrator) runOne(ctx context.Context, def registry.Definition, timeout time.Duration, page *analysis.PageContext) checkReturn {
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan analysis.CheckResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				o.logger.Error("check panicked",
					zap.String("check", def.Name),
					zap.Any("panic", r))
				done <- o.syntheticFail(def, fmt.Sprintf("internal error: %v", r))
			}
		}()
		done <- def.Check.Run(checkCtx, page)
	}()

	select {
	case result := <-done:
		// Checks never fill in their own identity; the orchestrator stamps
		// it so results always match their definition.
		result.Name = def.Name
		result.Category = def.Category
		if isSynthetic(result) {
			return checkReturn{result: result, faulted: true}
		}
		return checkReturn{result: result}
	case <-checkCtx.Done():
		o.logger.Warn("check timed out",
			zap.String("check", def.Name),
			zap.Duration("timeout", timeout))
		return checkReturn{
			result:  o.syntheticFail(def, "check did not finish within its time budget"),
			faulted: true,
		}
	}
}

// syntheticFail builds the stand-in result for a check that could not run to
// completion. It is a resolved failure, not a gap: downstream scoring and
// gating treat it like any other result.
func (o *Orchestrator) syntheticFail(def registry.Definition, reason string) analysis.CheckResult {
	return analysis.CheckResult{
		Name:     def.Name,
		Category: def.Category,
		Status:   analysis.CheckFail,
		Score:    0,
		Details: map[string]any{
			"error":     reason,
			"synthetic": true,
		},
		Recommendation: "This check could not complete. Re-run the analysis; if the problem persists the target may be slow or unstable.",
		Impact:         analysis.ImpactHigh,
		FixDifficulty:  analysis.FixMedium,
	}
}

func isSynthetic(result analysis.CheckResult) bool {
	v, ok := result.Details["synthetic"].(bool)
	return ok && v
}
