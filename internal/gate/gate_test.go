package gate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"newsroom/internal/core"
)

type mockStore struct {
	saved           []*core.Article
	publishedTitles []string
	saveErr         error
	titlesErr       error
}

func (m *mockStore) SaveArticle(article *core.Article) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, article)
	return nil
}

func (m *mockStore) GetPublishedTitles() ([]string, error) {
	return m.publishedTitles, m.titlesErr
}

type mockImprover struct {
	draft  core.Draft
	report core.ScoreReport
	calls  int
}

func (m *mockImprover) Improve(ctx context.Context, cluster core.TopicCluster, draft core.Draft, report core.ScoreReport, genTmpl, evalTmpl core.PromptTemplate) (core.Draft, core.ScoreReport) {
	m.calls++
	return m.draft, m.report
}

func scored(title string, total int) (core.Draft, core.ScoreReport) {
	return core.Draft{Title: title, Body: "Body text."}, core.ScoreReport{Total: total}
}

func admit(t *testing.T, g *Gate, title string, total int) *core.Article {
	t.Helper()
	draft, report := scored(title, total)
	article, err := g.Admit(context.Background(), core.TopicCluster{Keyword: "test"}, draft, report,
		core.PromptTemplate{}, core.PromptTemplate{})
	if err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	return article
}

func TestAdmit_HighScoreAutoPublishes(t *testing.T) {
	store := &mockStore{}
	g := NewGate(store, nil, core.DefaultSchedulerConfig())

	article := admit(t, g, "Rust async runtimes compared", 92)
	if article.Status != core.StatusPublished {
		t.Errorf("Expected published, got %s", article.Status)
	}
	if article.PublishedAt == nil {
		t.Error("Published article must carry PublishedAt")
	}
	if len(store.saved) != 1 {
		t.Errorf("Expected exactly one saved article, got %d", len(store.saved))
	}
}

func TestAdmit_DuplicateTitleDowngrades(t *testing.T) {
	store := &mockStore{publishedTitles: []string{"Rust Async Runtimes Compared!"}}
	g := NewGate(store, nil, core.DefaultSchedulerConfig())

	article := admit(t, g, "Rust async runtimes compared", 92)
	if article.Status != core.StatusPendingReview {
		t.Errorf("Expected pending_review for near-duplicate title, got %s", article.Status)
	}
	if article.PublishedAt != nil {
		t.Error("Downgraded article must not carry PublishedAt")
	}
}

func TestAdmit_MidScoreGoesToPendingReview(t *testing.T) {
	store := &mockStore{}
	g := NewGate(store, nil, core.DefaultSchedulerConfig())

	article := admit(t, g, "Kubernetes cost tuning", 85)
	if article.Status != core.StatusPendingReview {
		t.Errorf("Expected pending_review, got %s", article.Status)
	}
	if article.PublishedAt != nil {
		t.Error("Pending article must not carry PublishedAt")
	}
}

func TestAdmit_ImprovementRecovers(t *testing.T) {
	store := &mockStore{}
	improver := &mockImprover{
		draft:  core.Draft{Title: "Improved article", Body: "Better body."},
		report: core.ScoreReport{Total: 83},
	}
	g := NewGate(store, improver, core.DefaultSchedulerConfig())

	article := admit(t, g, "Weak article", 72)
	if improver.calls != 1 {
		t.Fatalf("Expected exactly one improvement attempt, got %d", improver.calls)
	}
	if article.Status != core.StatusPendingReview {
		t.Errorf("Expected pending_review after recovery to 83, got %s", article.Status)
	}
	if article.Title != "Improved article" {
		t.Errorf("Expected improved draft persisted, got %q", article.Title)
	}
}

func TestAdmit_ImprovementStillFailingLandsNeedsImprovement(t *testing.T) {
	store := &mockStore{}
	improver := &mockImprover{
		draft:  core.Draft{Title: "Still weak", Body: "Body."},
		report: core.ScoreReport{Total: 74},
	}
	g := NewGate(store, improver, core.DefaultSchedulerConfig())

	article := admit(t, g, "Weak article", 72)
	if improver.calls != 1 {
		t.Fatalf("Expected exactly one improvement attempt, got %d", improver.calls)
	}
	if article.Status != core.StatusNeedsImprovement {
		t.Errorf("Expected needs_improvement, got %s", article.Status)
	}
	if len(store.saved) != 1 {
		t.Errorf("Expected the failed draft persisted once, got %d saves", len(store.saved))
	}
}

func TestAdmit_NoImproverSkipsRetry(t *testing.T) {
	store := &mockStore{}
	g := NewGate(store, nil, core.DefaultSchedulerConfig())

	article := admit(t, g, "Weak article", 60)
	if article.Status != core.StatusNeedsImprovement {
		t.Errorf("Expected needs_improvement without improver, got %s", article.Status)
	}
}

func TestAdmit_GuardFailureDowngrades(t *testing.T) {
	store := &mockStore{titlesErr: errors.New("database locked")}
	g := NewGate(store, nil, core.DefaultSchedulerConfig())

	article := admit(t, g, "Great article", 95)
	if article.Status != core.StatusPendingReview {
		t.Errorf("Expected pending_review when guard is unavailable, got %s", article.Status)
	}
}

func TestAdmit_SaveFailurePropagates(t *testing.T) {
	store := &mockStore{saveErr: errors.New("disk full")}
	g := NewGate(store, nil, core.DefaultSchedulerConfig())

	draft, report := scored("Article", 85)
	if _, err := g.Admit(context.Background(), core.TopicCluster{}, draft, report,
		core.PromptTemplate{}, core.PromptTemplate{}); err == nil {
		t.Error("Expected save failure to propagate")
	}
}

func TestSlugify(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Rust Async Runtimes Compared!", "rust-async-runtimes-compared"},
		{"  Spaces   and---dashes  ", "spaces-and-dashes"},
		{"C++ vs. Go: A 2026 Benchmark", "c-vs-go-a-2026-benchmark"},
	}
	for _, tc := range cases {
		if got := Slugify(tc.in); got != tc.want {
			t.Errorf("Slugify(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}

	long := Slugify(strings.Repeat("word ", 40))
	if len(long) > 100 {
		t.Errorf("Slug should be capped at 100 chars, got %d", len(long))
	}
}
