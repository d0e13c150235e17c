// Package gate rules on scored drafts and persists the resulting articles.
// It owns the article lifecycle entry points: auto-publish, pending review,
// and the single automatic improvement attempt.
package gate

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"newsroom/internal/core"
	"newsroom/internal/dedup"
	"newsroom/internal/logger"
)

// DuplicateTitleThreshold is the normalized title similarity above which an
// auto-publish is downgraded to pending review.
const DuplicateTitleThreshold = 0.8

// maxSlugLen caps generated slugs.
const maxSlugLen = 100

// Store is the persistence surface the gate needs.
type Store interface {
	SaveArticle(article *core.Article) error
	GetPublishedTitles() ([]string, error)
}

// Improver makes one corrective pass over a rejected draft. Implemented by
// synth.Synthesizer.
type Improver interface {
	Improve(ctx context.Context, cluster core.TopicCluster, draft core.Draft, report core.ScoreReport, genTmpl, evalTmpl core.PromptTemplate) (core.Draft, core.ScoreReport)
}

// Gate applies the quality thresholds to scored drafts.
type Gate struct {
	store    Store
	improver Improver
	cfg      core.SchedulerConfig
	log      *slog.Logger
}

// NewGate creates a Gate. improver may be nil, in which case below-threshold
// drafts go straight to needs_improvement.
func NewGate(store Store, improver Improver, cfg core.SchedulerConfig) *Gate {
	return &Gate{
		store:    store,
		improver: improver,
		cfg:      cfg,
		log:      logger.Get(),
	}
}

// Admit rules on a scored draft and persists the resulting article. Exactly
// one article row is written per call. The returned article reflects the
// final status.
//
// Ruling, by total score s:
//   - s >= auto-publish threshold: published, unless the title is too close
//     to an already-published one, which downgrades to pending_review.
//   - quality threshold <= s < auto-publish threshold: pending_review.
//   - s < quality threshold: one improvement attempt, then the same ruling
//     on the new score; a second miss lands in needs_improvement.
func (g *Gate) Admit(ctx context.Context, cluster core.TopicCluster, draft core.Draft, report core.ScoreReport, genTmpl, evalTmpl core.PromptTemplate) (*core.Article, error) {
	if report.Total < g.cfg.QualityThreshold && g.improver != nil {
		g.log.Info("Draft below quality threshold, attempting improvement",
			"keyword", cluster.Keyword, "score", report.Total)
		draft, report = g.improver.Improve(ctx, cluster, draft, report, genTmpl, evalTmpl)
	}

	article := &core.Article{
		ID:        uuid.NewString(),
		Title:     draft.Title,
		Slug:      Slugify(draft.Title),
		Content:   draft.Body,
		Score:     report,
		CreatedAt: time.Now().UTC(),
	}

	switch {
	case report.Total >= g.cfg.AutoPublishThreshold:
		g.ruleAutoPublish(article)
	case report.Total >= g.cfg.QualityThreshold:
		article.Status = core.StatusPendingReview
	default:
		article.Status = core.StatusNeedsImprovement
	}

	if err := g.store.SaveArticle(article); err != nil {
		return nil, fmt.Errorf("saving article %q: %w", article.Title, err)
	}

	g.log.Info("Article admitted",
		"title", article.Title, "status", article.Status, "score", report.Total)
	return article, nil
}

// ruleAutoPublish applies the pre-publish duplicate guard and sets the final
// published state. Guard failures (store errors) downgrade to pending_review
// rather than publishing unchecked.
func (g *Gate) ruleAutoPublish(article *core.Article) {
	titles, err := g.store.GetPublishedTitles()
	if err != nil {
		g.log.Warn("Duplicate guard unavailable, downgrading to pending review",
			"title", article.Title, "error", err)
		article.Status = core.StatusPendingReview
		return
	}

	for _, published := range titles {
		if sim := dedup.Similarity(article.Title, published); sim > DuplicateTitleThreshold {
			g.log.Warn("Duplicate content detected, downgrading to pending review",
				"title", article.Title, "existing", published, "similarity", sim)
			article.Status = core.StatusPendingReview
			return
		}
	}

	now := time.Now().UTC()
	article.Status = core.StatusPublished
	article.PublishedAt = &now
}

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives a url-safe slug from a title: lower-cased, runs of
// non-alphanumerics collapsed to single hyphens, trimmed, capped at 100
// characters.
func Slugify(title string) string {
	slug := strings.ToLower(title)
	slug = slugStrip.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > maxSlugLen {
		slug = strings.Trim(slug[:maxSlugLen], "-")
	}
	return slug
}
