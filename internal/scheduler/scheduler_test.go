package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"newsroom/internal/batch"
	"newsroom/internal/collect"
	"newsroom/internal/core"
	"newsroom/internal/dedup"
	"newsroom/internal/learn"
	"newsroom/internal/store"
	"newsroom/internal/synth"
)

type stubSynth struct {
	calls int
}

func (s *stubSynth) Synthesize(ctx context.Context, cluster core.TopicCluster, genTmpl, evalTmpl core.PromptTemplate) (core.Draft, core.ScoreReport) {
	s.calls++
	return core.Draft{Title: "About " + cluster.Keyword, Body: "Body."},
		core.ScoreReport{Total: 85}
}

type stubGate struct {
	total    int
	admitted []*core.Article
}

func (g *stubGate) Admit(ctx context.Context, cluster core.TopicCluster, draft core.Draft, report core.ScoreReport, genTmpl, evalTmpl core.PromptTemplate) (*core.Article, error) {
	article := &core.Article{
		ID:     uuid.NewString(),
		Title:  draft.Title,
		Score:  core.ScoreReport{Total: g.total},
		Status: core.StatusPublished,
	}
	g.admitted = append(g.admitted, article)
	return article, nil
}

type stubLearner struct {
	calls int
}

func (l *stubLearner) Run(ctx context.Context, now time.Time) (learn.Outcome, error) {
	l.calls++
	return learn.Outcome{Sampled: 0, Reason: "stub"}, nil
}

type fixture struct {
	scheduler *Scheduler
	store     *store.Store
	gate      *stubGate
	learner   *stubLearner
}

func newFixture(t *testing.T, adapters []collect.Adapter, gateTotal int) *fixture {
	t.Helper()
	st, err := store.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	if err := st.EnsureActiveTemplates(synth.DefaultTemplates()); err != nil {
		t.Fatalf("Failed to bootstrap templates: %v", err)
	}

	gate := &stubGate{total: gateTotal}
	learner := &stubLearner{}
	sched := New(st,
		collect.NewCollector(adapters),
		batch.NewBatcher(batch.DefaultOptions(), nil),
		dedup.NewFilter(0),
		&stubSynth{},
		gate,
		learner,
		core.DefaultSchedulerConfig(),
	)
	return &fixture{scheduler: sched, store: st, gate: gate, learner: learner}
}

func staticItems(n int, source, topic string) []core.RawItem {
	items := make([]core.RawItem, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, core.RawItem{
			ID:          uuid.NewString(),
			Source:      source,
			Title:       fmt.Sprintf("%s discussion part %d", topic, i),
			CollectedAt: time.Now().UTC(),
		})
	}
	return items
}

func TestRunCollection_StoresItems(t *testing.T) {
	adapter := collect.NewStaticAdapter("static:test", staticItems(5, "static:test", "caching"))
	f := newFixture(t, []collect.Adapter{adapter}, 85)

	if err := f.scheduler.RunCollection(context.Background()); err != nil {
		t.Fatalf("RunCollection failed: %v", err)
	}

	count, err := f.store.CountUnprocessed()
	if err != nil {
		t.Fatalf("CountUnprocessed failed: %v", err)
	}
	if count != 5 {
		t.Errorf("Expected 5 unprocessed items, got %d", count)
	}

	stats, err := f.store.GetRunStatsSince(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("GetRunStatsSince failed: %v", err)
	}
	if len(stats) != 1 || stats[0].Kind != "collection" {
		t.Errorf("Expected one collection stats row, got %+v", stats)
	}

	if f.scheduler.State().LastCollectionRun.IsZero() {
		t.Error("LastCollectionRun should be set")
	}
}

func TestRunCollection_BurstTriggersGeneration(t *testing.T) {
	// 60 distinct items crosses the default burst threshold of 50, so the
	// collection run chains straight into a generation run, which consumes
	// the backlog even when nothing clusters.
	adapter := collect.NewStaticAdapter("static:burst", staticItems(60, "static:burst", "various"))
	f := newFixture(t, []collect.Adapter{adapter}, 85)

	if err := f.scheduler.RunCollection(context.Background()); err != nil {
		t.Fatalf("RunCollection failed: %v", err)
	}

	count, err := f.store.CountUnprocessed()
	if err != nil {
		t.Fatalf("CountUnprocessed failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Burst-triggered generation should consume the backlog, %d left", count)
	}
	if f.scheduler.State().LastGenerationRun.IsZero() {
		t.Error("LastGenerationRun should be set after the burst trigger")
	}
}

func TestRunCollection_AtBurstThresholdDoesNotTrigger(t *testing.T) {
	// Exactly 50 new items meets the default burst threshold but does not
	// exceed it, so the collection run ends without chaining into generation.
	adapter := collect.NewStaticAdapter("static:burst", staticItems(50, "static:burst", "various"))
	f := newFixture(t, []collect.Adapter{adapter}, 85)

	if err := f.scheduler.RunCollection(context.Background()); err != nil {
		t.Fatalf("RunCollection failed: %v", err)
	}

	count, err := f.store.CountUnprocessed()
	if err != nil {
		t.Fatalf("CountUnprocessed failed: %v", err)
	}
	if count != 50 {
		t.Errorf("Backlog should be untouched at the threshold, got %d unprocessed", count)
	}
	if !f.scheduler.State().LastGenerationRun.IsZero() {
		t.Error("Generation must not run when the threshold is only met")
	}
}

func TestRunGeneration_BelowMinimumIsNoOp(t *testing.T) {
	f := newFixture(t, nil, 85)
	if _, err := f.store.SaveRawItems(staticItems(2, "static:few", "caching")); err != nil {
		t.Fatalf("SaveRawItems failed: %v", err)
	}

	if err := f.scheduler.RunGeneration(context.Background()); err != nil {
		t.Fatalf("RunGeneration failed: %v", err)
	}

	count, _ := f.store.CountUnprocessed()
	if count != 2 {
		t.Errorf("Items below the minimum must stay unprocessed, got %d left", count)
	}
	if len(f.gate.admitted) != 0 {
		t.Errorf("No articles expected, got %d", len(f.gate.admitted))
	}
}

func TestRunGeneration_ConsumesItemsExactlyOnce(t *testing.T) {
	f := newFixture(t, nil, 85)
	items := make([]core.RawItem, 0, 12)
	sources := []string{"rss:a", "rss:b", "rss:c"}
	for i := 0; i < 12; i++ {
		items = append(items, core.RawItem{
			ID:          uuid.NewString(),
			Source:      sources[i%3],
			Title:       fmt.Sprintf("Transformer models attention research part %d", i),
			Body:        "Discussion of transformer scaling behavior.",
			CollectedAt: time.Now().UTC(),
		})
	}
	if _, err := f.store.SaveRawItems(items); err != nil {
		t.Fatalf("SaveRawItems failed: %v", err)
	}

	if err := f.scheduler.RunGeneration(context.Background()); err != nil {
		t.Fatalf("RunGeneration failed: %v", err)
	}
	if len(f.gate.admitted) != 1 {
		t.Fatalf("Expected 1 admitted article, got %d", len(f.gate.admitted))
	}

	count, _ := f.store.CountUnprocessed()
	if count != 0 {
		t.Errorf("All consumed items should be marked processed, %d left", count)
	}

	// A second run sees an empty backlog and admits nothing new.
	if err := f.scheduler.RunGeneration(context.Background()); err != nil {
		t.Fatalf("Second RunGeneration failed: %v", err)
	}
	if len(f.gate.admitted) != 1 {
		t.Errorf("Second run must not re-consume items, got %d articles", len(f.gate.admitted))
	}
}

func TestRunGeneration_LowAverageTriggersLearning(t *testing.T) {
	f := newFixture(t, nil, 60) // admitted articles score below the default trigger of 75
	items := make([]core.RawItem, 0, 12)
	sources := []string{"rss:a", "rss:b", "rss:c"}
	for i := 0; i < 12; i++ {
		items = append(items, core.RawItem{
			ID:          uuid.NewString(),
			Source:      sources[i%3],
			Title:       fmt.Sprintf("Transformer models attention research part %d", i),
			Body:        "Discussion of transformer scaling behavior.",
			CollectedAt: time.Now().UTC(),
		})
	}
	if _, err := f.store.SaveRawItems(items); err != nil {
		t.Fatalf("SaveRawItems failed: %v", err)
	}

	if err := f.scheduler.RunGeneration(context.Background()); err != nil {
		t.Fatalf("RunGeneration failed: %v", err)
	}
	if f.learner.calls != 1 {
		t.Errorf("Expected one score-triggered learning pass, got %d", f.learner.calls)
	}
}

func TestRunLearning_RecordsStats(t *testing.T) {
	f := newFixture(t, nil, 85)

	if err := f.scheduler.RunLearning(context.Background()); err != nil {
		t.Fatalf("RunLearning failed: %v", err)
	}
	if f.learner.calls != 1 {
		t.Errorf("Expected one learner call, got %d", f.learner.calls)
	}

	stats, err := f.store.GetRunStatsSince(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("GetRunStatsSince failed: %v", err)
	}
	if len(stats) != 1 || stats[0].Kind != "learning" {
		t.Errorf("Expected one learning stats row, got %+v", stats)
	}
}

// blockingAdapter parks its fetch until released and records the context
// error it saw, so a test can observe what a stop request does to an
// in-flight run.
type blockingAdapter struct {
	started chan struct{}
	release chan struct{}
	ctxErr  error
}

func (a *blockingAdapter) Name() string { return "static:blocking" }

func (a *blockingAdapter) Fetch(ctx context.Context) ([]core.RawItem, error) {
	close(a.started)
	<-a.release
	a.ctxErr = ctx.Err()
	return staticItems(3, "static:blocking", "caching"), nil
}

func TestStop_LetsInFlightRunFinish(t *testing.T) {
	adapter := &blockingAdapter{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	f := newFixture(t, []collect.Adapter{adapter}, 85)

	f.scheduler.Start(context.Background())
	<-adapter.started

	stopped := make(chan struct{})
	go func() {
		f.scheduler.Stop()
		close(stopped)
	}()
	time.Sleep(50 * time.Millisecond) // let Stop cancel and begin waiting
	close(adapter.release)
	<-stopped

	if adapter.ctxErr != nil {
		t.Errorf("In-flight fetch must not be cancelled by Stop, saw %v", adapter.ctxErr)
	}

	count, err := f.store.CountUnprocessed()
	if err != nil {
		t.Fatalf("CountUnprocessed failed: %v", err)
	}
	if count != 3 {
		t.Errorf("In-flight collection should persist its items, got %d unprocessed", count)
	}

	// The stop request landed between collection and generation, so the
	// immediate pass must not start new work on the backlog.
	if !f.scheduler.State().LastGenerationRun.IsZero() {
		t.Error("No generation run should start after a stop request")
	}
	if f.scheduler.State().IsRunning {
		t.Error("Scheduler should report stopped")
	}
}

func TestStartStop_Idempotent(t *testing.T) {
	f := newFixture(t, nil, 85)

	ctx := context.Background()
	f.scheduler.Start(ctx)
	f.scheduler.Start(ctx) // no-op

	if !f.scheduler.State().IsRunning {
		t.Error("Scheduler should report running after Start")
	}

	f.scheduler.Stop()
	f.scheduler.Stop() // no-op

	if f.scheduler.State().IsRunning {
		t.Error("Scheduler should report stopped after Stop")
	}
}
