package checks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/seolens/ai-visibility/internal/analysis"
)

// SSLCertificate verifies the target is served over HTTPS.
func SSLCertificate(_ context.Context, page *analysis.PageContext) analysis.CheckResult {
	const name = "ssl_certificate"

	if !strings.HasPrefix(strings.ToLower(page.URL), "https://") {
		return analysis.CheckResult{
			Name:            name,
			Category:        analysis.CategoryTechnical,
			Status:          analysis.CheckFail,
			Score:           0,
			Details:         map[string]any{"message": "Site not using HTTPS"},
			Recommendation:  "Enable HTTPS to secure your website",
			Impact:          analysis.ImpactCritical,
			FixDifficulty:   analysis.FixMedium,
			FixTimeEstimate: "1 hour",
		}
	}
	return analysis.CheckResult{
		Name:     name,
		Category: analysis.CategoryTechnical,
		Status:   analysis.CheckPass,
		Score:    100,
		Details:  map[string]any{"message": "Valid SSL certificate"},
		Impact:   analysis.ImpactLow,
	}
}

// PageSpeed grades the measured load time of the target page.
func PageSpeed(_ context.Context, page *analysis.PageContext) analysis.CheckResult {
	const name = "page_speed"

	load := page.LoadTime
	details := map[string]any{"load_time": fmt.Sprintf("%.2f seconds", load.Seconds())}

	switch {
	case load < 2500*time.Millisecond:
		return analysis.CheckResult{
			Name:     name,
			Category: analysis.CategoryTechnical,
			Status:   analysis.CheckPass,
			Score:    100,
			Details:  details,
			Impact:   analysis.ImpactLow,
		}
	case load < 4*time.Second:
		return analysis.CheckResult{
			Name:            name,
			Category:        analysis.CategoryTechnical,
			Status:          analysis.CheckWarn,
			Score:           70,
			Details:         details,
			Recommendation:  "Optimize page load time to under 2.5 seconds",
			Impact:          analysis.ImpactMedium,
			FixDifficulty:   analysis.FixMedium,
			FixTimeEstimate: "2 hours",
		}
	default:
		return analysis.CheckResult{
			Name:            name,
			Category:        analysis.CategoryTechnical,
			Status:          analysis.CheckFail,
			Score:           30,
			Details:         details,
			Recommendation:  "Page loads too slowly. Optimize images, minify CSS/JS, and enable caching",
			Impact:          analysis.ImpactHigh,
			FixDifficulty:   analysis.FixMedium,
			FixTimeEstimate: "2 hours",
		}
	}
}

// MobileViewport looks for a device-width viewport meta tag.
func MobileViewport(_ context.Context, page *analysis.PageContext) analysis.CheckResult {
	const name = "mobile_viewport"

	doc, err := parseDoc(page)
	if err != nil {
		return unableResult(name, analysis.CategoryTechnical, err)
	}

	content, _ := doc.Find(`meta[name="viewport"]`).Attr("content")
	if strings.Contains(content, "width=device-width") {
		return analysis.CheckResult{
			Name:     name,
			Category: analysis.CategoryTechnical,
			Status:   analysis.CheckPass,
			Score:    100,
			Details:  map[string]any{"message": "Mobile viewport configured"},
			Impact:   analysis.ImpactLow,
		}
	}
	return analysis.CheckResult{
		Name:            name,
		Category:        analysis.CategoryTechnical,
		Status:          analysis.CheckFail,
		Score:           0,
		Details:         map[string]any{"message": "No mobile viewport found"},
		Recommendation:  `Add a viewport meta tag: <meta name="viewport" content="width=device-width, initial-scale=1">`,
		Impact:          analysis.ImpactHigh,
		FixDifficulty:   analysis.FixEasy,
		FixTimeEstimate: "5 minutes",
	}
}

// Sitemap checks for a /sitemap.xml the crawlers can discover pages through.
func Sitemap(_ context.Context, page *analysis.PageContext) analysis.CheckResult {
	const name = "sitemap"

	if page.Sitemap {
		return analysis.CheckResult{
			Name:     name,
			Category: analysis.CategoryTechnical,
			Status:   analysis.CheckPass,
			Score:    100,
			Details:  map[string]any{"message": "sitemap.xml found"},
			Impact:   analysis.ImpactLow,
		}
	}
	return analysis.CheckResult{
		Name:            name,
		Category:        analysis.CategoryTechnical,
		Status:          analysis.CheckWarn,
		Score:           60,
		Details:         map[string]any{"message": "sitemap.xml not found"},
		Recommendation:  "Create a sitemap.xml file to help AI bots discover all your pages",
		Impact:          analysis.ImpactMedium,
		FixDifficulty:   analysis.FixEasy,
		FixTimeEstimate: "30 minutes",
	}
}
