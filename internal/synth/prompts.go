package synth

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"newsroom/internal/core"
)

// Placeholders understood by the prompt templates. The learning loop rewrites
// template text but must preserve these markers.
const (
	PlaceholderKeyword      = "{{keyword}}"
	PlaceholderItems        = "{{items}}"
	PlaceholderSources      = "{{sources}}"
	PlaceholderArticle      = "{{article}}"
	PlaceholderImprovements = "{{improvements}}"
)

// maxExcerpts caps how many member excerpts are included in a generation
// prompt.
const maxExcerpts = 8

// DefaultGenerationTemplate is the bootstrap generation template.
const DefaultGenerationTemplate = `You are a technology writer for an automated publication.

Write a complete article about the trending topic "{{keyword}}", grounded in
these collected signals from {{sources}}:

{{items}}

Respond with a single JSON object and nothing else:
{
  "title": "...",
  "body": "... (600-1000 words, markdown allowed)",
  "summary": "... (2-3 sentences)",
  "keywords": ["...", "..."],
  "reading_minutes": 4
}`

// DefaultEvaluationTemplate is the bootstrap evaluation template.
const DefaultEvaluationTemplate = `You are a strict content quality reviewer.

Evaluate this article on five axes, each 0-100:

{{article}}

Respond with a single JSON object and nothing else:
{
  "total": 0,
  "seo": 0,
  "readability": 0,
  "accuracy": 0,
  "originality": 0,
  "engagement": 0,
  "improvements": ["...", "..."],
  "strengths": ["...", "..."]
}`

// DefaultImprovementInstructions is appended to a generation prompt on the
// single automatic improvement retry.
const DefaultImprovementInstructions = `

A previous draft of this article scored below the quality bar. Rewrite it,
addressing these specific review findings:

{{improvements}}

Previous draft:

{{article}}`

// DefaultTemplates returns the bootstrap template pair seeded at first start.
func DefaultTemplates() map[core.TemplateType]core.PromptTemplate {
	now := time.Now().UTC()
	return map[core.TemplateType]core.PromptTemplate{
		core.TemplateGeneration: {
			ID:        uuid.NewString(),
			Type:      core.TemplateGeneration,
			Template:  DefaultGenerationTemplate,
			IsActive:  true,
			CreatedAt: now,
		},
		core.TemplateEvaluation: {
			ID:        uuid.NewString(),
			Type:      core.TemplateEvaluation,
			Template:  DefaultEvaluationTemplate,
			IsActive:  true,
			CreatedAt: now,
		},
	}
}

// buildGenerationPrompt expands a generation template for one cluster.
func buildGenerationPrompt(tmpl string, cluster core.TopicCluster) string {
	var items strings.Builder
	for i, member := range cluster.Members {
		if i >= maxExcerpts {
			break
		}
		items.WriteString(fmt.Sprintf("- [%s] %s", member.Source, member.Title))
		if member.Body != "" {
			items.WriteString(": " + excerpt(member.Body, 200))
		}
		items.WriteString("\n")
	}

	prompt := strings.ReplaceAll(tmpl, PlaceholderKeyword, cluster.Keyword)
	prompt = strings.ReplaceAll(prompt, PlaceholderSources, strings.Join(cluster.Sources, ", "))
	prompt = strings.ReplaceAll(prompt, PlaceholderItems, items.String())
	return prompt
}

// buildEvaluationPrompt expands an evaluation template for one draft.
func buildEvaluationPrompt(tmpl string, draft core.Draft) string {
	article := fmt.Sprintf("# %s\n\n%s", draft.Title, draft.Body)
	return strings.ReplaceAll(tmpl, PlaceholderArticle, article)
}

// buildImprovementPrompt expands the retry instructions for a rejected draft.
func buildImprovementPrompt(generationPrompt string, draft core.Draft, improvements []string) string {
	var list strings.Builder
	for _, imp := range improvements {
		list.WriteString("- " + imp + "\n")
	}

	suffix := strings.ReplaceAll(DefaultImprovementInstructions, PlaceholderImprovements, list.String())
	suffix = strings.ReplaceAll(suffix, PlaceholderArticle,
		fmt.Sprintf("# %s\n\n%s", draft.Title, draft.Body))
	return generationPrompt + suffix
}

// excerpt truncates s to at most n runes.
func excerpt(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
