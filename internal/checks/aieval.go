package checks

import (
	"context"

	"github.com/seolens/ai-visibility/internal/analysis"
)

// sampleLimit bounds the content sample shipped to the evaluation service.
const sampleLimit = 16 * 1024

// ChatGPTOptimization asks the external evaluation service how well the page
// would surface in ChatGPT answers. Evaluator failures (timeout, quota) fail
// this check only; the orchestrator's isolation contract keeps siblings alive.
func ChatGPTOptimization(eval analysis.Evaluator) analysis.CheckFunc {
	return func(ctx context.Context, page *analysis.PageContext) analysis.CheckResult {
		const name = "chatgpt_optimization"

		judgment, err := eval.Evaluate(ctx, page.URL, contentSample(page))
		if err != nil {
			return evaluatorFailure(name, err)
		}

		result := analysis.CheckResult{
			Name:     name,
			Category: analysis.CategoryAIAccess,
			Score:    judgment.Score,
			Details: map[string]any{
				"compatibility_score": judgment.Score,
				"engine_scores":       judgment.EngineScores,
			},
			Impact: analysis.ImpactLow,
		}
		switch {
		case judgment.Score >= 70:
			result.Status = analysis.CheckPass
		case judgment.Score >= 40:
			result.Status = analysis.CheckWarn
			result.Recommendation = "Optimize for ChatGPT by adding more Q&A content"
			result.Impact = analysis.ImpactMedium
			result.FixDifficulty = analysis.FixMedium
			result.FixTimeEstimate = "2 hours"
		default:
			result.Status = analysis.CheckFail
			result.Recommendation = "Restructure content into direct question/answer blocks"
			result.Impact = analysis.ImpactHigh
			result.FixDifficulty = analysis.FixHard
			result.FixTimeEstimate = "1 day"
		}
		return result
	}
}

// PerplexityReadiness asks the evaluation service for a citation-readiness
// judgment of the page content.
func PerplexityReadiness(eval analysis.Evaluator) analysis.CheckFunc {
	return func(ctx context.Context, page *analysis.PageContext) analysis.CheckResult {
		const name = "perplexity_readiness"

		judgment, err := eval.Evaluate(ctx, page.URL, contentSample(page))
		if err != nil {
			return evaluatorFailure(name, err)
		}

		result := analysis.CheckResult{
			Name:     name,
			Category: analysis.CategoryAIAccess,
			Score:    judgment.Score,
			Details:  map[string]any{"compatibility_score": judgment.Score},
			Impact:   analysis.ImpactLow,
		}
		if judgment.Score >= 60 {
			result.Status = analysis.CheckPass
		} else {
			result.Status = analysis.CheckWarn
			result.Recommendation = "Add citable facts and source references for answer engines"
			result.Impact = analysis.ImpactMedium
			result.FixDifficulty = analysis.FixMedium
			result.FixTimeEstimate = "2 hours"
		}
		return result
	}
}

func contentSample(page *analysis.PageContext) []byte {
	if len(page.Body) <= sampleLimit {
		return page.Body
	}
	return page.Body[:sampleLimit]
}

func evaluatorFailure(name string, err error) analysis.CheckResult {
	return analysis.CheckResult{
		Name:           name,
		Category:       analysis.CategoryAIAccess,
		Status:         analysis.CheckFail,
		Score:          0,
		Details:        map[string]any{"error": err.Error()},
		Recommendation: "AI evaluation could not complete; re-run the analysis",
		Impact:         analysis.ImpactMedium,
		FixDifficulty:  analysis.FixEasy,
	}
}
