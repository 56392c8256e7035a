// Package pipeline executes the declared build/publish/apply lifecycle:
// checkout, registry authentication, image builds, image pushes, and the
// remote pull-then-recreate step. Execution is strictly sequential and
// fail-fast: the first failing step leaves the run in a failed terminal
// state, with no retry and no rollback of already-pushed images or
// already-applied remote state.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Step is one unit of pipeline work.
type Step interface {
	Name() string
	Run(ctx context.Context) error
}

// Runner executes steps in order.
type Runner struct {
	steps []Step
	log   zerolog.Logger
}

// NewRunner creates a Runner over the given steps.
func NewRunner(log zerolog.Logger, steps ...Step) *Runner {
	return &Runner{steps: steps, log: log}
}

// Run executes every step in order. The first error halts the run; steps
// after a failed step never execute.
func (r *Runner) Run(ctx context.Context) error {
	for i, step := range r.steps {
		stepLog := r.log.With().
			Int("step", i+1).
			Int("of", len(r.steps)).
			Str("name", step.Name()).
			Logger()

		stepLog.Info().Msg("step started")
		start := time.Now()

		if err := step.Run(ctx); err != nil {
			stepLog.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("step failed")
			return fmt.Errorf("step %d (%s) failed: %w", i+1, step.Name(), err)
		}

		stepLog.Info().Dur("elapsed", time.Since(start)).Msg("step finished")
	}

	return nil
}
