package checks

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/seolens/ai-visibility/internal/analysis"
)

// ContentStructure grades paragraph length, content volume, and list usage.
func ContentStructure(_ context.Context, page *analysis.PageContext) analysis.CheckResult {
	const name = "content_structure"

	doc, err := parseDoc(page)
	if err != nil {
		return unableResult(name, analysis.CategoryContent, err)
	}

	paragraphs := doc.Find("p")
	if paragraphs.Length() == 0 {
		return analysis.CheckResult{
			Name:            name,
			Category:        analysis.CategoryContent,
			Status:          analysis.CheckFail,
			Score:           0,
			Details:         map[string]any{"message": "No paragraph content found"},
			Recommendation:  "Add structured content with clear paragraphs",
			Impact:          analysis.ImpactCritical,
			FixDifficulty:   analysis.FixMedium,
			FixTimeEstimate: "2 hours",
		}
	}

	totalParaWords := 0
	countedParas := 0
	paragraphs.Each(func(_ int, s *goquery.Selection) {
		words := len(strings.Fields(s.Text()))
		if words > 0 {
			totalParaWords += words
			countedParas++
		}
	})
	avgParaLen := 0
	if countedParas > 0 {
		avgParaLen = totalParaWords / countedParas
	}

	lists := doc.Find("ul, ol").Length()
	tables := doc.Find("table").Length()
	wordCount := len(strings.Fields(doc.Text()))

	score := 100
	var issues []string
	if avgParaLen > 100 {
		score -= 30
		issues = append(issues, "Paragraphs too long (aim for 40-60 words)")
	}
	if wordCount < 300 {
		score -= 40
		issues = append(issues, "Content too thin (<300 words)")
	}
	if lists == 0 {
		score -= 20
		issues = append(issues, "No lists found (add bullet points)")
	}

	details := map[string]any{
		"word_count":           wordCount,
		"avg_paragraph_length": avgParaLen,
		"lists":                lists,
		"tables":               tables,
	}

	if len(issues) == 0 {
		return analysis.CheckResult{
			Name:     name,
			Category: analysis.CategoryContent,
			Status:   analysis.CheckPass,
			Score:    score,
			Details:  details,
			Impact:   analysis.ImpactLow,
		}
	}

	details["issues"] = issues
	status := analysis.CheckWarn
	impact := analysis.ImpactMedium
	if score <= 50 {
		status = analysis.CheckFail
		impact = analysis.ImpactHigh
	}
	return analysis.CheckResult{
		Name:            name,
		Category:        analysis.CategoryContent,
		Status:          status,
		Score:           max(0, score),
		Details:         details,
		Recommendation:  "Improve content structure: " + strings.Join(issues, "; "),
		Impact:          impact,
		FixDifficulty:   analysis.FixMedium,
		FixTimeEstimate: "1 hour",
	}
}

// DirectAnswers looks for question headings followed by a 40-60 word answer
// paragraph, the shape answer engines quote directly.
func DirectAnswers(_ context.Context, page *analysis.PageContext) analysis.CheckResult {
	const name = "direct_answers"

	doc, err := parseDoc(page)
	if err != nil {
		return unableResult(name, analysis.CategoryContent, err)
	}

	totalQuestions := 0
	withAnswers := 0
	doc.Find("h1, h2, h3, h4").Each(func(_ int, heading *goquery.Selection) {
		if !isQuestionHeading(heading.Text()) {
			return
		}
		totalQuestions++
		next := heading.Next()
		if next.Length() == 0 || !next.Is("p") {
			return
		}
		words := len(strings.Fields(next.Text()))
		if words >= 40 && words <= 60 {
			withAnswers++
		}
	})

	switch {
	case totalQuestions == 0:
		return analysis.CheckResult{
			Name:            name,
			Category:        analysis.CategoryContent,
			Status:          analysis.CheckFail,
			Score:           0,
			Details:         map[string]any{"message": "No question-based headings found"},
			Recommendation:  "Add question headings with 40-60 word answers for AI snippets",
			Impact:          analysis.ImpactCritical,
			FixDifficulty:   analysis.FixMedium,
			FixTimeEstimate: "1 hour",
		}
	case withAnswers == totalQuestions:
		return analysis.CheckResult{
			Name:     name,
			Category: analysis.CategoryContent,
			Status:   analysis.CheckPass,
			Score:    100,
			Details:  map[string]any{"questions_with_answers": withAnswers},
			Impact:   analysis.ImpactLow,
		}
	case withAnswers > 0:
		return analysis.CheckResult{
			Name:     name,
			Category: analysis.CategoryContent,
			Status:   analysis.CheckWarn,
			Score:    60,
			Details: map[string]any{
				"total_questions":     totalQuestions,
				"with_direct_answers": withAnswers,
			},
			Recommendation:  fmt.Sprintf("Add 40-60 word answers after %d questions", totalQuestions-withAnswers),
			Impact:          analysis.ImpactHigh,
			FixDifficulty:   analysis.FixEasy,
			FixTimeEstimate: "30 minutes",
		}
	default:
		return analysis.CheckResult{
			Name:            name,
			Category:        analysis.CategoryContent,
			Status:          analysis.CheckFail,
			Score:           20,
			Details:         map[string]any{"questions_without_answers": totalQuestions},
			Recommendation:  "Add 40-60 word direct answers after each question heading",
			Impact:          analysis.ImpactCritical,
			FixDifficulty:   analysis.FixMedium,
			FixTimeEstimate: "1 hour",
		}
	}
}

// InternalLinking counts internal vs external anchors.
func InternalLinking(_ context.Context, page *analysis.PageContext) analysis.CheckResult {
	const name = "internal_linking"

	doc, err := parseDoc(page)
	if err != nil {
		return unableResult(name, analysis.CategoryContent, err)
	}

	var host string
	if u, parseErr := url.Parse(page.URL); parseErr == nil {
		host = u.Host
	}

	internal, external := 0, 0
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		switch {
		case strings.HasPrefix(href, "/"):
			internal++
		case strings.HasPrefix(href, "http"):
			if host != "" && strings.Contains(href, host) {
				internal++
			} else {
				external++
			}
		}
	})

	details := map[string]any{"internal_links": internal, "external_links": external}
	if internal < 3 {
		return analysis.CheckResult{
			Name:            name,
			Category:        analysis.CategoryContent,
			Status:          analysis.CheckFail,
			Score:           30,
			Details:         details,
			Recommendation:  "Add more internal links to help AI understand site structure",
			Impact:          analysis.ImpactHigh,
			FixDifficulty:   analysis.FixEasy,
			FixTimeEstimate: "30 minutes",
		}
	}
	return analysis.CheckResult{
		Name:     name,
		Category: analysis.CategoryContent,
		Status:   analysis.CheckPass,
		Score:    100,
		Details:  details,
		Impact:   analysis.ImpactLow,
	}
}
