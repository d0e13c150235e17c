// Package learn closes the feedback loop: it mines engagement metrics from
// recently published articles and rewrites the active prompt templates when a
// proposed replacement evaluates well enough.
package learn

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"newsroom/internal/core"
	"newsroom/internal/logger"
	"newsroom/internal/synth"
)

// ApplyThreshold is the minimum self-evaluated improvement score for proposed
// templates to replace the active pair. Proposals below it are kept inactive
// for manual confirmation.
const ApplyThreshold = 60

// Store is the persistence surface the learning loop needs.
type Store interface {
	GetPublishedSince(cutoff time.Time) ([]core.Article, error)
	GetActiveTemplate(t core.TemplateType) (*core.PromptTemplate, error)
	ActivateTemplate(tmpl core.PromptTemplate) error
	SaveInactiveTemplate(tmpl core.PromptTemplate) error
}

// TextService is the deterministic LLM surface used for pattern extraction
// and proposal self-evaluation.
type TextService interface {
	Evaluate(ctx context.Context, prompt string) (string, error)
}

// Outcome summarizes one learning pass.
type Outcome struct {
	Sampled  int    // Published articles in the window
	Proposed bool   // Whether replacement templates were produced
	Applied  bool   // Whether the replacements were activated
	Reason   string // Why the pass stopped where it did
}

// proposal is the parsed shape of a template-rewrite response.
type proposal struct {
	GenerationTemplate string `json:"generation_template"`
	EvaluationTemplate string `json:"evaluation_template"`
}

// Loop runs learning passes.
type Loop struct {
	store Store
	svc   TextService
	cfg   core.SchedulerConfig
	log   *slog.Logger
}

// NewLoop creates a learning loop.
func NewLoop(store Store, svc TextService, cfg core.SchedulerConfig) *Loop {
	return &Loop{store: store, svc: svc, cfg: cfg, log: logger.Get()}
}

// Run executes one learning pass at the given instant. External-service
// failures degrade to a logged no-op; only storage failures return an error.
func (l *Loop) Run(ctx context.Context, now time.Time) (Outcome, error) {
	cutoff := now.AddDate(0, 0, -l.cfg.LearningWindowDays)
	articles, err := l.store.GetPublishedSince(cutoff)
	if err != nil {
		return Outcome{}, fmt.Errorf("loading published articles: %w", err)
	}

	outcome := Outcome{Sampled: len(articles)}
	if len(articles) < l.cfg.MinLearningSample {
		outcome.Reason = fmt.Sprintf("sample too small: %d < %d", len(articles), l.cfg.MinLearningSample)
		l.log.Info("Skipping learning pass", "sampled", len(articles), "required", l.cfg.MinLearningSample)
		return outcome, nil
	}

	activeGen, err := l.store.GetActiveTemplate(core.TemplateGeneration)
	if err != nil {
		return Outcome{}, fmt.Errorf("loading active generation template: %w", err)
	}
	activeEval, err := l.store.GetActiveTemplate(core.TemplateEvaluation)
	if err != nil {
		return Outcome{}, fmt.Errorf("loading active evaluation template: %w", err)
	}
	if activeGen == nil || activeEval == nil {
		outcome.Reason = "active templates missing"
		l.log.Warn("Skipping learning pass: active templates missing")
		return outcome, nil
	}

	proposed, err := l.proposeTemplates(ctx, *activeGen, *activeEval, articles)
	if err != nil {
		outcome.Reason = "proposal failed: " + err.Error()
		l.log.Warn("Learning proposal failed", "error", err)
		return outcome, nil
	}
	outcome.Proposed = true

	score, err := l.evaluateProposal(ctx, activeGen.Template, proposed.GenerationTemplate)
	if err != nil {
		outcome.Reason = "proposal evaluation failed: " + err.Error()
		l.log.Warn("Learning proposal evaluation failed", "error", err)
		return outcome, nil
	}

	genTmpl := core.PromptTemplate{
		ID:               uuid.NewString(),
		Type:             core.TemplateGeneration,
		Template:         proposed.GenerationTemplate,
		PerformanceScore: score,
		CreatedAt:        now.UTC(),
	}
	evalTmpl := core.PromptTemplate{
		ID:               uuid.NewString(),
		Type:             core.TemplateEvaluation,
		Template:         proposed.EvaluationTemplate,
		PerformanceScore: score,
		CreatedAt:        now.UTC(),
	}

	if score > ApplyThreshold {
		genTmpl.IsActive = true
		evalTmpl.IsActive = true
		if err := l.store.ActivateTemplate(genTmpl); err != nil {
			return Outcome{}, fmt.Errorf("activating generation template: %w", err)
		}
		if err := l.store.ActivateTemplate(evalTmpl); err != nil {
			return Outcome{}, fmt.Errorf("activating evaluation template: %w", err)
		}
		outcome.Applied = true
		outcome.Reason = fmt.Sprintf("applied: improvement score %.0f", score)
		l.log.Info("Activated improved templates",
			"generation_id", genTmpl.ID, "evaluation_id", evalTmpl.ID, "score", score)
		return outcome, nil
	}

	if err := l.store.SaveInactiveTemplate(genTmpl); err != nil {
		return Outcome{}, fmt.Errorf("saving inactive generation template: %w", err)
	}
	if err := l.store.SaveInactiveTemplate(evalTmpl); err != nil {
		return Outcome{}, fmt.Errorf("saving inactive evaluation template: %w", err)
	}
	outcome.Reason = fmt.Sprintf("proposal below apply threshold: %.0f <= %d", score, ApplyThreshold)
	l.log.Info("Kept proposed templates inactive, awaiting manual confirmation",
		"generation_id", genTmpl.ID, "score", score)
	return outcome, nil
}

// proposeTemplates asks the model for rewritten templates based on the
// contrast between the best and worst performing articles in the window.
func (l *Loop) proposeTemplates(ctx context.Context, activeGen, activeEval core.PromptTemplate, articles []core.Article) (proposal, error) {
	top, bottom := splitByEngagement(articles)

	var b strings.Builder
	b.WriteString("You maintain the prompt templates of an automated article pipeline.\n\n")
	b.WriteString("Current generation template:\n---\n")
	b.WriteString(activeGen.Template)
	b.WriteString("\n---\n\nCurrent evaluation template:\n---\n")
	b.WriteString(activeEval.Template)
	b.WriteString("\n---\n\nHigh-engagement articles:\n")
	writeArticleLines(&b, top)
	b.WriteString("\nLow-engagement articles:\n")
	writeArticleLines(&b, bottom)
	b.WriteString(`
Extract what separates the high-engagement group from the low-engagement
group, then rewrite both templates so future articles resemble the
high-engagement group. Keep every {{placeholder}} marker intact.
Respond with a single JSON object:
{"generation_template": "...", "evaluation_template": "..."}`)

	raw, err := l.svc.Evaluate(ctx, b.String())
	if err != nil {
		return proposal{}, err
	}

	var parsed proposal
	if err := json.Unmarshal([]byte(stripFences(raw)), &parsed); err != nil {
		return proposal{}, fmt.Errorf("parsing proposal: %w", err)
	}
	if err := validateProposal(parsed); err != nil {
		return proposal{}, err
	}
	return parsed, nil
}

// evaluateProposal asks the model to score the proposed generation template
// against the current one, 0-100.
func (l *Loop) evaluateProposal(ctx context.Context, current, proposed string) (float64, error) {
	prompt := fmt.Sprintf(`Compare two prompt templates for an automated article pipeline.

Current:
---
%s
---

Proposed:
---
%s
---

Score how much of an improvement the proposed template is, 0-100, where 50
means no change. Respond with a single JSON object: {"score": 0}`, current, proposed)

	raw, err := l.svc.Evaluate(ctx, prompt)
	if err != nil {
		return 0, err
	}

	var parsed struct {
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), &parsed); err != nil {
		return 0, fmt.Errorf("parsing proposal score: %w", err)
	}
	if parsed.Score < 0 || parsed.Score > 100 {
		return 0, fmt.Errorf("proposal score %f out of range", parsed.Score)
	}
	return parsed.Score, nil
}

// validateProposal rejects proposals that lost the placeholders the
// synthesizer substitutes.
func validateProposal(p proposal) error {
	if strings.TrimSpace(p.GenerationTemplate) == "" || strings.TrimSpace(p.EvaluationTemplate) == "" {
		return fmt.Errorf("proposal is missing a template")
	}
	for _, marker := range []string{synth.PlaceholderKeyword, synth.PlaceholderItems} {
		if !strings.Contains(p.GenerationTemplate, marker) {
			return fmt.Errorf("proposed generation template dropped the %s marker", marker)
		}
	}
	if !strings.Contains(p.EvaluationTemplate, synth.PlaceholderArticle) {
		return fmt.Errorf("proposed evaluation template dropped the %s marker", synth.PlaceholderArticle)
	}
	return nil
}

// engagementScore folds the performance metrics and the stored quality score
// into one rankable value.
func engagementScore(a core.Article) float64 {
	p := a.Performance
	return float64(p.Views) + p.DwellSeconds*0.5 + float64(p.Shares)*5 -
		p.BounceRate*50 + float64(a.Score.Total)*0.5
}

// splitByEngagement returns the top and bottom thirds of the articles by
// engagement score, at least one article each.
func splitByEngagement(articles []core.Article) (top, bottom []core.Article) {
	sorted := make([]core.Article, len(articles))
	copy(sorted, articles)
	sort.Slice(sorted, func(i, j int) bool {
		return engagementScore(sorted[i]) > engagementScore(sorted[j])
	})

	n := len(sorted) / 3
	if n < 1 {
		n = 1
	}
	return sorted[:n], sorted[len(sorted)-n:]
}

func writeArticleLines(b *strings.Builder, articles []core.Article) {
	for _, a := range articles {
		fmt.Fprintf(b, "- %q (quality=%d, views=%d, dwell=%.0fs, bounce=%.2f, shares=%d)\n",
			a.Title, a.Score.Total, a.Performance.Views, a.Performance.DwellSeconds,
			a.Performance.BounceRate, a.Performance.Shares)
	}
}

// stripFences removes a markdown code fence wrapper from a model response.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
