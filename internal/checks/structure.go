package checks

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/seolens/ai-visibility/internal/analysis"
)

// HeadingStructure grades the H1 hierarchy and question-based headings.
func HeadingStructure(_ context.Context, page *analysis.PageContext) analysis.CheckResult {
	const name = "heading_structure"

	doc, err := parseDoc(page)
	if err != nil {
		return unableResult(name, analysis.CategoryStructure, err)
	}

	h1s := doc.Find("h1")
	questions := 0
	doc.Find("h1, h2, h3").Each(func(_ int, s *goquery.Selection) {
		if isQuestionHeading(s.Text()) {
			questions++
		}
	})

	switch {
	case h1s.Length() == 0:
		return analysis.CheckResult{
			Name:            name,
			Category:        analysis.CategoryStructure,
			Status:          analysis.CheckFail,
			Score:           0,
			Details:         map[string]any{"message": "No H1 tag found"},
			Recommendation:  "Add a clear H1 tag to define your page topic",
			Impact:          analysis.ImpactHigh,
			FixDifficulty:   analysis.FixEasy,
			FixTimeEstimate: "5 minutes",
		}
	case h1s.Length() > 1:
		return analysis.CheckResult{
			Name:            name,
			Category:        analysis.CategoryStructure,
			Status:          analysis.CheckWarn,
			Score:           70,
			Details:         map[string]any{"message": fmt.Sprintf("Multiple H1 tags found (%d)", h1s.Length())},
			Recommendation:  "Use only one H1 tag per page",
			Impact:          analysis.ImpactMedium,
			FixDifficulty:   analysis.FixEasy,
			FixTimeEstimate: "10 minutes",
		}
	case questions == 0:
		return analysis.CheckResult{
			Name:            name,
			Category:        analysis.CategoryStructure,
			Status:          analysis.CheckWarn,
			Score:           60,
			Details:         map[string]any{"h1_count": 1, "question_headings": 0},
			Recommendation:  "Add more question-based headings for better AI optimization",
			Impact:          analysis.ImpactMedium,
			FixDifficulty:   analysis.FixEasy,
			FixTimeEstimate: "15 minutes",
		}
	default:
		return analysis.CheckResult{
			Name:     name,
			Category: analysis.CategoryStructure,
			Status:   analysis.CheckPass,
			Score:    80,
			Details:  map[string]any{"h1_count": 1, "question_headings": questions},
			Impact:   analysis.ImpactLow,
		}
	}
}

// SchemaMarkup detects JSON-LD structured data.
func SchemaMarkup(_ context.Context, page *analysis.PageContext) analysis.CheckResult {
	const name = "schema_markup"

	doc, err := parseDoc(page)
	if err != nil {
		return unableResult(name, analysis.CategoryStructure, err)
	}

	var schemaTypes []string
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var payload map[string]any
		if err := json.Unmarshal([]byte(s.Text()), &payload); err != nil {
			return
		}
		if t, ok := payload["@type"].(string); ok {
			schemaTypes = append(schemaTypes, t)
		}
	})

	if len(schemaTypes) > 0 {
		return analysis.CheckResult{
			Name:     name,
			Category: analysis.CategoryStructure,
			Status:   analysis.CheckPass,
			Score:    100,
			Details:  map[string]any{"schema_types": schemaTypes},
			Impact:   analysis.ImpactLow,
		}
	}
	return analysis.CheckResult{
		Name:            name,
		Category:        analysis.CategoryStructure,
		Status:          analysis.CheckWarn,
		Score:           50,
		Details:         map[string]any{"message": "No structured data found"},
		Recommendation:  "Add schema.org markup (FAQ, HowTo, Article) to improve AI understanding",
		Impact:          analysis.ImpactHigh,
		FixDifficulty:   analysis.FixMedium,
		FixTimeEstimate: "1 hour",
	}
}

// MetaTags grades the title and description tags.
func MetaTags(_ context.Context, page *analysis.PageContext) analysis.CheckResult {
	const name = "meta_tags"

	doc, err := parseDoc(page)
	if err != nil {
		return unableResult(name, analysis.CategoryStructure, err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	description, _ := doc.Find(`meta[name="description"]`).Attr("content")
	description = strings.TrimSpace(description)

	score := 100
	var issues []string
	switch {
	case title == "":
		issues = append(issues, "Missing title tag")
		score -= 40
	case len(title) > 60:
		issues = append(issues, "Title too long (>60 chars)")
		score -= 20
	}
	switch {
	case description == "":
		issues = append(issues, "Missing meta description")
		score -= 30
	case len(description) > 160:
		issues = append(issues, "Meta description too long (>160 chars)")
		score -= 15
	}

	if len(issues) == 0 {
		return analysis.CheckResult{
			Name:     name,
			Category: analysis.CategoryStructure,
			Status:   analysis.CheckPass,
			Score:    100,
			Details:  map[string]any{"message": "Meta tags properly configured"},
			Impact:   analysis.ImpactLow,
		}
	}

	status := analysis.CheckWarn
	impact := analysis.ImpactMedium
	if score <= 50 {
		status = analysis.CheckFail
		impact = analysis.ImpactHigh
	}
	return analysis.CheckResult{
		Name:            name,
		Category:        analysis.CategoryStructure,
		Status:          status,
		Score:           max(0, score),
		Details:         map[string]any{"issues": issues},
		Recommendation:  "Fix meta tag issues: " + strings.Join(issues, ", "),
		Impact:          impact,
		FixDifficulty:   analysis.FixEasy,
		FixTimeEstimate: "15 minutes",
	}
}
