// Package scoring turns accumulated check results into category and overall
// scores.
package scoring

import (
	"math"

	"github.com/seolens/ai-visibility/internal/analysis"
	"github.com/seolens/ai-visibility/internal/registry"
)

// Summary holds the computed scores for one snapshot of results.
type Summary struct {
	Overall     int
	PerCategory map[analysis.Category]int
}

// Score computes the weighted category sub-scores and the overall score for
// the results accumulated so far. Checks that have not run yet simply do not
// appear in results and contribute nothing; their category's mean is taken
// over the checks that did resolve. The overall score is the category-weighted
// sum renormalized over the categories with at least one resolved result, so
// a partially complete job still yields a meaningful 0-100 value. The
// function is pure: the same inputs always produce the same Summary.
func Score(results []analysis.CheckResult, reg *registry.Registry) Summary {
	type bucket struct {
		weighted float64
		weight   float64
	}
	buckets := make(map[analysis.Category]*bucket)

	for _, r := range results {
		w := reg.CheckWeight(r.Name)
		if w <= 0 {
			continue
		}
		b := buckets[r.Category]
		if b == nil {
			b = &bucket{}
			buckets[r.Category] = b
		}
		b.weighted += float64(r.Score) * float64(w)
		b.weight += float64(w)
	}

	summary := Summary{PerCategory: make(map[analysis.Category]int)}
	var overall, totalShare float64
	for category, b := range buckets {
		if b.weight == 0 {
			continue
		}
		sub := b.weighted / b.weight
		summary.PerCategory[category] = clamp(int(math.Round(sub)))
		share := float64(registry.CategoryWeight(category))
		overall += sub * share
		totalShare += share
	}
	if totalShare > 0 {
		summary.Overall = clamp(int(math.Round(overall / totalShare)))
	}
	return summary
}

// TotalIssues counts results whose status is warn or fail. Synthetic failures
// count like any other failure.
func TotalIssues(results []analysis.CheckResult) int {
	n := 0
	for _, r := range results {
		if r.Status == analysis.CheckWarn || r.Status == analysis.CheckFail {
			n++
		}
	}
	return n
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
