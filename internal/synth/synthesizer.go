// Package synth turns candidate topic clusters into scored article drafts via
// the generative-text service. Every external failure degrades to a usable
// result: a placeholder draft or a conservative score, never an aborted run.
package synth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"newsroom/internal/core"
	"newsroom/internal/logger"
)

// TextService is the generative-text surface the synthesizer depends on.
// Generate uses creative sampling, Evaluate deterministic sampling.
type TextService interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Evaluate(ctx context.Context, prompt string) (string, error)
}

// UsageRecorder persists per-template usage counts. May be nil.
type UsageRecorder interface {
	IncrementTemplateUsage(id string) error
}

// Synthesizer produces scored drafts from topic clusters.
type Synthesizer struct {
	svc   TextService
	usage UsageRecorder
	log   *slog.Logger
}

// NewSynthesizer creates a Synthesizer. usage may be nil when usage counting
// is not wanted (tests, one-off CLI runs).
func NewSynthesizer(svc TextService, usage UsageRecorder) *Synthesizer {
	return &Synthesizer{
		svc:   svc,
		usage: usage,
		log:   logger.Get(),
	}
}

// Synthesize generates a draft for the cluster and scores it. Generation
// failures fall back to a deterministic placeholder draft; evaluation
// failures fall back to a conservative mid-range report. Neither aborts.
func (s *Synthesizer) Synthesize(ctx context.Context, cluster core.TopicCluster, genTmpl, evalTmpl core.PromptTemplate) (core.Draft, core.ScoreReport) {
	prompt := buildGenerationPrompt(genTmpl.Template, cluster)
	s.recordUsage(genTmpl)

	draft := s.generateDraft(ctx, prompt, cluster)
	report := s.Score(ctx, draft, evalTmpl)
	return draft, report
}

// Improve makes one corrective generation pass over a below-threshold draft,
// feeding the reviewer's findings back into the prompt, then rescores the
// result. When the retry itself fails, the original draft is returned with a
// fresh evaluation so the caller can re-rule on stable input.
func (s *Synthesizer) Improve(ctx context.Context, cluster core.TopicCluster, draft core.Draft, report core.ScoreReport, genTmpl, evalTmpl core.PromptTemplate) (core.Draft, core.ScoreReport) {
	base := buildGenerationPrompt(genTmpl.Template, cluster)
	prompt := buildImprovementPrompt(base, draft, report.Improvements)
	s.recordUsage(genTmpl)

	raw, err := s.svc.Generate(ctx, prompt)
	if err != nil {
		s.log.Warn("Improvement generation failed, keeping original draft",
			"keyword", cluster.Keyword, "error", err)
		return draft, s.Score(ctx, draft, evalTmpl)
	}

	improved, err := parseDraft(raw)
	if err != nil {
		s.log.Warn("Improvement response unparseable, keeping original draft",
			"keyword", cluster.Keyword, "error", err)
		return draft, s.Score(ctx, draft, evalTmpl)
	}

	return improved, s.Score(ctx, improved, evalTmpl)
}

// Score evaluates a draft against the active evaluation template.
func (s *Synthesizer) Score(ctx context.Context, draft core.Draft, evalTmpl core.PromptTemplate) core.ScoreReport {
	prompt := buildEvaluationPrompt(evalTmpl.Template, draft)
	s.recordUsage(evalTmpl)

	raw, err := s.svc.Evaluate(ctx, prompt)
	if err != nil {
		s.log.Warn("Evaluation call failed, using conservative default score", "error", err)
		return defaultScoreReport()
	}

	report, err := parseScoreReport(raw)
	if err != nil {
		s.log.Warn("Evaluation response unparseable, using conservative default score",
			"error", err)
		return defaultScoreReport()
	}
	return report
}

func (s *Synthesizer) generateDraft(ctx context.Context, prompt string, cluster core.TopicCluster) core.Draft {
	raw, err := s.svc.Generate(ctx, prompt)
	if err != nil {
		s.log.Warn("Generation call failed, using placeholder draft",
			"keyword", cluster.Keyword, "error", err)
		return fallbackDraft(cluster)
	}

	draft, err := parseDraft(raw)
	if err != nil {
		s.log.Warn("Generation response unparseable, using placeholder draft",
			"keyword", cluster.Keyword, "error", err)
		return fallbackDraft(cluster)
	}
	return draft
}

func (s *Synthesizer) recordUsage(tmpl core.PromptTemplate) {
	if s.usage == nil || tmpl.ID == "" {
		return
	}
	if err := s.usage.IncrementTemplateUsage(tmpl.ID); err != nil {
		s.log.Warn("Failed to record template usage", "template_id", tmpl.ID, "error", err)
	}
}

// fallbackDraft builds a deterministic placeholder from the cluster's keyword
// and member titles. It will score low and land in needs_improvement rather
// than losing the topic entirely.
func fallbackDraft(cluster core.TopicCluster) core.Draft {
	var body strings.Builder
	body.WriteString(fmt.Sprintf("Several sources are discussing %q right now.\n\n", cluster.Keyword))
	for i, member := range cluster.Members {
		if i >= maxExcerpts {
			break
		}
		body.WriteString(fmt.Sprintf("- %s (%s)\n", member.Title, member.Source))
	}
	body.WriteString(fmt.Sprintf("\nCollected %s across %d sources.",
		time.Now().UTC().Format("2006-01-02"), len(cluster.Sources)))

	title := fmt.Sprintf("Trending: %s", cluster.Keyword)
	return core.Draft{
		Title:          title,
		Body:           body.String(),
		Summary:        fmt.Sprintf("A roundup of current discussion about %s.", cluster.Keyword),
		Keywords:       []string{cluster.Keyword},
		ReadingMinutes: 1,
	}
}

// defaultScoreReport is the conservative stand-in used when evaluation fails.
// Mid-range on every axis keeps the article out of auto-publish without
// discarding it.
func defaultScoreReport() core.ScoreReport {
	return core.ScoreReport{
		Total:        50,
		SEO:          50,
		Readability:  50,
		Accuracy:     50,
		Originality:  50,
		Engagement:   50,
		Improvements: []string{"automated evaluation unavailable, manual review recommended"},
	}
}
