package checks

import (
	"github.com/seolens/ai-visibility/internal/analysis"
	"github.com/seolens/ai-visibility/internal/registry"
)

// Defaults returns the full production check table. Weights are each check's
// share within its category and must sum to 100 per category; registry.New
// enforces that at startup.
func Defaults(eval analysis.Evaluator) []registry.Definition {
	return []registry.Definition{
		// Stage 1: instant checks, the fast killer insights.
		{
			Name:        "ai_bot_access",
			Stage:       analysis.StageInstant,
			Category:    analysis.CategoryAIAccess,
			Weight:      40,
			Description: "Whether robots.txt lets AI crawlers access the site",
			Check:       analysis.CheckFunc(AIBotAccess),
		},
		{
			Name:        "llms_txt",
			Stage:       analysis.StageInstant,
			Category:    analysis.CategoryAIAccess,
			Weight:      20,
			Description: "Presence of an llms.txt context file",
			Check:       analysis.CheckFunc(LLMSTxt),
		},
		{
			Name:        "ssl_certificate",
			Stage:       analysis.StageInstant,
			Category:    analysis.CategoryTechnical,
			Weight:      25,
			Description: "HTTPS availability for the target",
			Check:       analysis.CheckFunc(SSLCertificate),
		},
		{
			Name:        "heading_structure",
			Stage:       analysis.StageInstant,
			Category:    analysis.CategoryStructure,
			Weight:      40,
			Description: "H1 hierarchy and question-based headings",
			Check:       analysis.CheckFunc(HeadingStructure),
		},

		// Stage 2: technical analysis.
		{
			Name:        "page_speed",
			Stage:       analysis.StageTechnical,
			Category:    analysis.CategoryTechnical,
			Weight:      30,
			Description: "Measured page load time",
			Check:       analysis.CheckFunc(PageSpeed),
		},
		{
			Name:        "mobile_viewport",
			Stage:       analysis.StageTechnical,
			Category:    analysis.CategoryTechnical,
			Weight:      20,
			Description: "Mobile viewport configuration",
			Check:       analysis.CheckFunc(MobileViewport),
		},
		{
			Name:        "sitemap",
			Stage:       analysis.StageTechnical,
			Category:    analysis.CategoryTechnical,
			Weight:      25,
			Description: "Presence of sitemap.xml",
			Check:       analysis.CheckFunc(Sitemap),
		},
		{
			Name:        "schema_markup",
			Stage:       analysis.StageTechnical,
			Category:    analysis.CategoryStructure,
			Weight:      30,
			Description: "JSON-LD structured data",
			Check:       analysis.CheckFunc(SchemaMarkup),
		},
		{
			Name:        "meta_tags",
			Stage:       analysis.StageTechnical,
			Category:    analysis.CategoryStructure,
			Weight:      30,
			Description: "Title and description tag quality",
			Check:       analysis.CheckFunc(MetaTags),
		},

		// Stage 3: content analysis.
		{
			Name:        "content_structure",
			Stage:       analysis.StageContent,
			Category:    analysis.CategoryContent,
			Weight:      40,
			Description: "Paragraph length, content volume, and list usage",
			Check:       analysis.CheckFunc(ContentStructure),
		},
		{
			Name:        "direct_answers",
			Stage:       analysis.StageContent,
			Category:    analysis.CategoryContent,
			Weight:      35,
			Description: "Question headings followed by 40-60 word answers",
			Check:       analysis.CheckFunc(DirectAnswers),
		},
		{
			Name:        "internal_linking",
			Stage:       analysis.StageContent,
			Category:    analysis.CategoryContent,
			Weight:      25,
			Description: "Internal vs external link balance",
			Check:       analysis.CheckFunc(InternalLinking),
		},

		// Stage 4: AI-powered evaluation via the external service.
		{
			Name:        "chatgpt_optimization",
			Stage:       analysis.StageAIEval,
			Category:    analysis.CategoryAIAccess,
			Weight:      20,
			Description: "ChatGPT answer-surface compatibility",
			Check:       ChatGPTOptimization(eval),
		},
		{
			Name:        "perplexity_readiness",
			Stage:       analysis.StageAIEval,
			Category:    analysis.CategoryAIAccess,
			Weight:      20,
			Description: "Perplexity citation readiness",
			Check:       PerplexityReadiness(eval),
		},
	}
}
