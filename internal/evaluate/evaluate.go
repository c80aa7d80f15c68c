// Package evaluate holds clients for the external AI-evaluation service.
package evaluate

import (
	"context"
	"errors"

	"github.com/seolens/ai-visibility/internal/analysis"
)

// ErrNotConfigured is returned when no evaluation backend has been set up.
var ErrNotConfigured = errors.New("evaluate: no evaluation service configured")

// Unconfigured is the fallback Evaluator used when the service has no
// evaluation backend. Every call fails with ErrNotConfigured, which the
// AI-evaluation checks surface as failing results rather than aborting the
// job.
type Unconfigured struct{}

// Evaluate always fails.
func (Unconfigured) Evaluate(context.Context, string, []byte) (analysis.Judgment, error) {
	return analysis.Judgment{}, ErrNotConfigured
}
