// Package progress exposes live and point-in-time reads over job state.
package progress

import (
	"github.com/seolens/ai-visibility/internal/analysis"
)

// FreePreviewLimit is how many check results the free tier may see.
const FreePreviewLimit = 3

// Snapshot is one observable state of a job, gated for a specific tier.
type Snapshot struct {
	JobID        string                 `json:"id"`
	Status       analysis.JobStatus     `json:"status"`
	Progress     int                    `json:"progress"`
	OverallScore *int                   `json:"overall_score,omitempty"`
	Results      []analysis.CheckResult `json:"results"`
	TotalChecks  int                    `json:"total_checks_run"`
	TotalIssues  int                    `json:"total_issues_found"`
	ErrorText    string                 `json:"error_text,omitempty"`
}

// IsTerminal reports whether the snapshot's status is final.
func (s Snapshot) IsTerminal() bool {
	return s.Status.IsTerminal()
}

// Gate applies tier gating to a result sequence. Free callers get at most the
// first FreePreviewLimit entries by completion order; paid callers get the
// full sequence. The input is never mutated.
func Gate(tier analysis.Tier, results []analysis.CheckResult) []analysis.CheckResult {
	n := len(results)
	if tier != analysis.TierPaid && n > FreePreviewLimit {
		n = FreePreviewLimit
	}
	out := make([]analysis.CheckResult, n)
	copy(out, results[:n])
	return out
}

// FromJob builds a tier-gated snapshot of a job. The overall score and the
// true issue count are always exposed in full; only the per-check detail is
// the gated asset.
func FromJob(job analysis.Job, tier analysis.Tier) Snapshot {
	var score *int
	if job.OverallScore != nil {
		v := *job.OverallScore
		score = &v
	}
	return Snapshot{
		JobID:        job.ID,
		Status:       job.Status,
		Progress:     job.Progress,
		OverallScore: score,
		Results:      Gate(tier, job.Results),
		TotalChecks:  job.TotalChecks,
		TotalIssues:  job.TotalIssues,
		ErrorText:    job.ErrorText,
	}
}
