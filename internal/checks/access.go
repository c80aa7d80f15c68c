package checks

import (
	"context"
	"strings"

	"github.com/temoto/robotstxt"

	"github.com/seolens/ai-visibility/internal/analysis"
)

// aiBots are the crawler user agents whose robots.txt access determines AI
// search visibility.
var aiBots = []string{
	"GPTBot", "ChatGPT-User", "Claude-Web", "anthropic-ai",
	"Bard", "Gemini", "Bingbot", "msnbot", "facebookexternalhit",
	"PerplexityBot", "CCBot", "YouBot", "Diffbot",
}

// criticalBots are the agents whose blocking alone fails the check outright.
var criticalBots = map[string]bool{
	"GPTBot":       true,
	"ChatGPT-User": true,
}

// AIBotAccess checks whether robots.txt lets AI crawlers reach the site.
func AIBotAccess(_ context.Context, page *analysis.PageContext) analysis.CheckResult {
	const name = "ai_bot_access"

	if page.RobotsTxt == nil {
		return analysis.CheckResult{
			Name:            name,
			Category:        analysis.CategoryAIAccess,
			Status:          analysis.CheckWarn,
			Score:           50,
			Details:         map[string]any{"message": "robots.txt not found"},
			Recommendation:  "Create a robots.txt file to control AI bot access",
			Impact:          analysis.ImpactHigh,
			FixDifficulty:   analysis.FixEasy,
			FixTimeEstimate: "5 minutes",
		}
	}

	robots, err := robotstxt.FromBytes(page.RobotsTxt)
	if err != nil {
		return analysis.CheckResult{
			Name:           name,
			Category:       analysis.CategoryAIAccess,
			Status:         analysis.CheckWarn,
			Score:          50,
			Details:        map[string]any{"error": err.Error()},
			Recommendation: "robots.txt could not be parsed; verify its syntax",
			Impact:         analysis.ImpactMedium,
			FixDifficulty:  analysis.FixEasy,
		}
	}

	var blocked []string
	criticalBlocked := false
	for _, bot := range aiBots {
		group := robots.FindGroup(bot)
		if group != nil && !group.Test("/") {
			blocked = append(blocked, bot)
			if criticalBots[bot] {
				criticalBlocked = true
			}
		}
	}

	switch {
	case criticalBlocked:
		return analysis.CheckResult{
			Name:     name,
			Category: analysis.CategoryAIAccess,
			Status:   analysis.CheckFail,
			Score:    0,
			Details: map[string]any{
				"blocked_bots": blocked,
				"message":      "ChatGPT cannot access this website",
			},
			Recommendation:  robotsFixInstructions(blocked),
			Impact:          analysis.ImpactCritical,
			FixDifficulty:   analysis.FixEasy,
			FixTimeEstimate: "5 minutes",
		}
	case len(blocked) > 0:
		return analysis.CheckResult{
			Name:            name,
			Category:        analysis.CategoryAIAccess,
			Status:          analysis.CheckWarn,
			Score:           60,
			Details:         map[string]any{"blocked_bots": blocked},
			Recommendation:  "Some AI bots are blocked: " + strings.Join(blocked, ", "),
			Impact:          analysis.ImpactHigh,
			FixDifficulty:   analysis.FixEasy,
			FixTimeEstimate: "5 minutes",
		}
	default:
		return analysis.CheckResult{
			Name:     name,
			Category: analysis.CategoryAIAccess,
			Status:   analysis.CheckPass,
			Score:    100,
			Details:  map[string]any{"message": "All AI bots have access"},
			Impact:   analysis.ImpactLow,
		}
	}
}

func robotsFixInstructions(blocked []string) string {
	var b strings.Builder
	b.WriteString("AI crawlers are blocked by robots.txt. Allow them explicitly:\n")
	for _, bot := range blocked {
		b.WriteString("\nUser-agent: ")
		b.WriteString(bot)
		b.WriteString("\nAllow: /\n")
	}
	return b.String()
}

// LLMSTxt checks for the /llms.txt context file.
func LLMSTxt(_ context.Context, page *analysis.PageContext) analysis.CheckResult {
	const name = "llms_txt"

	if page.LLMsTxt {
		return analysis.CheckResult{
			Name:     name,
			Category: analysis.CategoryAIAccess,
			Status:   analysis.CheckPass,
			Score:    100,
			Details:  map[string]any{"message": "llms.txt file found"},
			Impact:   analysis.ImpactLow,
		}
	}
	return analysis.CheckResult{
		Name:            name,
		Category:        analysis.CategoryAIAccess,
		Status:          analysis.CheckWarn,
		Score:           70,
		Details:         map[string]any{"message": "llms.txt file not found"},
		Recommendation:  "Create an llms.txt file to provide context for AI systems",
		Impact:          analysis.ImpactMedium,
		FixDifficulty:   analysis.FixEasy,
		FixTimeEstimate: "10 minutes",
	}
}
