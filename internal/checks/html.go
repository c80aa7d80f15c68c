package checks

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/seolens/ai-visibility/internal/analysis"
)

// parseDoc builds a goquery document from the fetched page body. Checks that
// need the DOM parse it independently so a malformed body poisons only the
// checks that touch it.
func parseDoc(page *analysis.PageContext) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
}

// isQuestionHeading reports whether a heading reads like a question, which AI
// answer engines favor as snippet anchors.
func isQuestionHeading(text string) bool {
	if strings.Contains(text, "?") {
		return true
	}
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, prefix := range []string{"how", "what", "why", "when", "where", "who"} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// unableResult is the generic verdict for a check whose page parsing failed.
func unableResult(name string, category analysis.Category, err error) analysis.CheckResult {
	return analysis.CheckResult{
		Name:           name,
		Category:       category,
		Status:         analysis.CheckFail,
		Score:          0,
		Details:        map[string]any{"error": err.Error()},
		Recommendation: "Unable to analyze the page for this check",
		Impact:         analysis.ImpactMedium,
		FixDifficulty:  analysis.FixMedium,
	}
}
