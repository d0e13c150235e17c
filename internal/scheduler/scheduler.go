// Package scheduler drives the pipeline with three independent,
// self-rescheduling timers: collection, generation, and learning. Each timer
// rearms only after its run completes, so slow runs stretch the cadence
// instead of piling up. Runs of the same kind never overlap; runs of
// different kinds may.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"newsroom/internal/batch"
	"newsroom/internal/collect"
	"newsroom/internal/core"
	"newsroom/internal/dedup"
	"newsroom/internal/learn"
	"newsroom/internal/logger"
	"newsroom/internal/store"
)

// unprocessedBatchLimit caps how many raw items one generation run loads.
const unprocessedBatchLimit = 500

// Store is the persistence surface the scheduler needs.
type Store interface {
	SaveRawItems(items []core.RawItem) (int, error)
	GetUnprocessedItems(limit int) ([]core.RawItem, error)
	MarkItemsProcessed(ids []string) error
	GetPublishedSince(cutoff time.Time) ([]core.Article, error)
	GetActiveTemplate(t core.TemplateType) (*core.PromptTemplate, error)
	AppendLog(level, component, message, detail string) error
	RecordRunStats(stats store.RunStats) error
}

// Synthesizer produces a scored draft for one cluster.
type Synthesizer interface {
	Synthesize(ctx context.Context, cluster core.TopicCluster, genTmpl, evalTmpl core.PromptTemplate) (core.Draft, core.ScoreReport)
}

// Admitter rules on a scored draft and persists the article.
type Admitter interface {
	Admit(ctx context.Context, cluster core.TopicCluster, draft core.Draft, report core.ScoreReport, genTmpl, evalTmpl core.PromptTemplate) (*core.Article, error)
}

// Learner runs one learning pass.
type Learner interface {
	Run(ctx context.Context, now time.Time) (learn.Outcome, error)
}

// Scheduler owns the pipeline control loop.
type Scheduler struct {
	store     Store
	collector *collect.Collector
	batcher   *batch.Batcher
	filter    *dedup.Filter
	synth     Synthesizer
	gate      Admitter
	learner   Learner
	cfg       core.SchedulerConfig
	log       *slog.Logger

	collectionBusy atomic.Bool
	generationBusy atomic.Bool
	learningBusy   atomic.Bool

	mu     sync.Mutex
	state  core.SchedulerState
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Scheduler over fully wired pipeline components.
func New(st Store, collector *collect.Collector, batcher *batch.Batcher, filter *dedup.Filter, synth Synthesizer, gate Admitter, learner Learner, cfg core.SchedulerConfig) *Scheduler {
	return &Scheduler{
		store:     st,
		collector: collector,
		batcher:   batcher,
		filter:    filter,
		synth:     synth,
		gate:      gate,
		learner:   learner,
		cfg:       cfg,
		log:       logger.Get(),
		state:     core.SchedulerState{Config: cfg},
	}
}

// Start launches the three timer loops and kicks off an immediate collection
// and generation pass. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.state.IsRunning {
		s.mu.Unlock()
		s.log.Warn("Scheduler already running, ignoring Start")
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.state.IsRunning = true
	s.mu.Unlock()

	s.log.Info("Scheduler starting",
		"collection_interval", s.cfg.CollectionInterval,
		"generation_interval", s.cfg.GenerationInterval,
		"learning_interval", s.cfg.LearningInterval)

	s.wg.Add(4)
	go func() {
		defer s.wg.Done()
		// Run bodies are detached from the stop signal: a stop request
		// prevents new work but never aborts an in-flight run.
		runCtx := context.WithoutCancel(ctx)
		if err := s.RunCollection(runCtx); err != nil {
			s.log.Error("Initial collection run failed", "error", err)
		}
		if ctx.Err() != nil {
			return
		}
		if err := s.RunGeneration(runCtx); err != nil {
			s.log.Error("Initial generation run failed", "error", err)
		}
	}()
	go s.loop(ctx, s.cfg.CollectionInterval, "collection", s.RunCollection)
	go s.loop(ctx, s.cfg.GenerationInterval, "generation", s.RunGeneration)
	go s.loop(ctx, s.cfg.LearningInterval, "learning", s.RunLearning)
}

// Stop cancels the loops and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.state.IsRunning {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()

	s.mu.Lock()
	s.state.IsRunning = false
	s.mu.Unlock()
	s.log.Info("Scheduler stopped")
}

// State returns a snapshot of the control loop state.
func (s *Scheduler) State() core.SchedulerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// loop rearms a timer after each completed run so intervals measure gaps, not
// wall-clock ticks.
func (s *Scheduler) loop(ctx context.Context, interval time.Duration, kind string, run func(context.Context) error) {
	defer s.wg.Done()
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			// The stop signal gates scheduling only; a run that has
			// already started finishes with external calls intact.
			if err := run(context.WithoutCancel(ctx)); err != nil {
				s.log.Error("Scheduled run failed", "kind", kind, "error", err)
			}
			timer.Reset(interval)
		}
	}
}

// RunCollection performs one collection pass: fan out to every adapter, store
// what came back, and trigger an early generation run when the newly
// collected items exceed the burst threshold. Overlapping calls are skipped.
func (s *Scheduler) RunCollection(ctx context.Context) error {
	if !s.collectionBusy.CompareAndSwap(false, true) {
		s.log.Warn("Collection run already in progress, skipping")
		return nil
	}
	defer s.collectionBusy.Store(false)

	start := time.Now()
	result := s.collector.CollectAll(ctx)

	inserted, err := s.store.SaveRawItems(result.Items)
	if err != nil {
		s.appendLog("error", "collection", "storing collected items failed", err.Error())
		return fmt.Errorf("storing collected items: %w", err)
	}

	s.markRun(func(st *core.SchedulerState) { st.LastCollectionRun = time.Now().UTC() })
	s.recordStats(store.RunStats{
		Kind:     "collection",
		ItemsIn:  len(result.Items),
		ItemsOut: inserted,
		Duration: time.Since(start),
	})
	s.appendLog("info", "collection",
		fmt.Sprintf("collected %d items, %d new", len(result.Items), inserted), "")
	s.log.Info("Collection run complete",
		"collected", len(result.Items), "new", inserted, "source_errors", len(result.Errors))

	if inserted > s.cfg.BurstThreshold {
		s.log.Info("Burst threshold exceeded, triggering early generation",
			"new_items", inserted, "threshold", s.cfg.BurstThreshold)
		if err := s.RunGeneration(ctx); err != nil {
			s.log.Error("Burst-triggered generation failed", "error", err)
		}
	}
	return nil
}

// RunGeneration performs one generation pass: cluster the unprocessed
// backlog, drop duplicate topics, synthesize the top candidates, and rule on
// each through the quality gate. Consumed items are marked processed whatever
// the article outcomes were. Overlapping calls are skipped.
func (s *Scheduler) RunGeneration(ctx context.Context) error {
	if !s.generationBusy.CompareAndSwap(false, true) {
		s.log.Warn("Generation run already in progress, skipping")
		return nil
	}
	defer s.generationBusy.Store(false)

	if s.synth == nil || s.gate == nil {
		s.log.Warn("No text service wired, skipping generation run")
		return nil
	}

	start := time.Now()
	items, err := s.store.GetUnprocessedItems(unprocessedBatchLimit)
	if err != nil {
		return fmt.Errorf("loading unprocessed items: %w", err)
	}

	if len(items) < s.cfg.MinDataPoints {
		s.log.Info("Not enough unprocessed items for a generation run",
			"items", len(items), "required", s.cfg.MinDataPoints)
		s.appendLog("info", "generation",
			fmt.Sprintf("skipped: %d items below minimum %d", len(items), s.cfg.MinDataPoints), "")
		return nil
	}

	clusters := s.batcher.Batch(ctx, items)
	candidates := make([]core.TopicCluster, 0, len(clusters))
	for _, c := range clusters {
		if c.IsCandidate {
			candidates = append(candidates, c)
		}
	}

	now := time.Now().UTC()
	recent, err := s.store.GetPublishedSince(now.Add(-dedup.DefaultWindow))
	if err != nil {
		return fmt.Errorf("loading recent articles: %w", err)
	}
	survivors := s.filter.Apply(candidates, recent, now)
	if len(survivors) > s.cfg.TopK {
		survivors = survivors[:s.cfg.TopK]
	}

	published, totalScore := 0, 0
	if len(survivors) > 0 {
		genTmpl, evalTmpl, err := s.activeTemplates()
		if err != nil {
			return err
		}
		for _, cluster := range survivors {
			draft, report := s.synth.Synthesize(ctx, cluster, genTmpl, evalTmpl)
			article, err := s.gate.Admit(ctx, cluster, draft, report, genTmpl, evalTmpl)
			if err != nil {
				s.log.Error("Admitting article failed", "keyword", cluster.Keyword, "error", err)
				s.appendLog("error", "generation", "admitting article failed", err.Error())
				continue
			}
			published++
			totalScore += article.Score.Total
		}
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	if err := s.store.MarkItemsProcessed(ids); err != nil {
		return fmt.Errorf("marking items processed: %w", err)
	}

	s.markRun(func(st *core.SchedulerState) { st.LastGenerationRun = time.Now().UTC() })
	s.recordStats(store.RunStats{
		Kind:     "generation",
		ItemsIn:  len(items),
		ItemsOut: published,
		Duration: time.Since(start),
	})
	s.appendLog("info", "generation",
		fmt.Sprintf("consumed %d items, admitted %d articles", len(items), published), "")
	s.log.Info("Generation run complete",
		"items", len(items), "clusters", len(clusters), "admitted", published)

	if published > 0 {
		avg := totalScore / published
		if avg < s.cfg.LearningTrigger {
			s.log.Info("Batch average below learning trigger, running learning pass",
				"average", avg, "trigger", s.cfg.LearningTrigger)
			if err := s.RunLearning(ctx); err != nil {
				s.log.Error("Score-triggered learning failed", "error", err)
			}
		}
	}
	return nil
}

// RunLearning performs one learning pass. Overlapping calls are skipped.
func (s *Scheduler) RunLearning(ctx context.Context) error {
	if !s.learningBusy.CompareAndSwap(false, true) {
		s.log.Warn("Learning run already in progress, skipping")
		return nil
	}
	defer s.learningBusy.Store(false)

	if s.learner == nil {
		s.log.Warn("No learner wired, skipping learning run")
		return nil
	}

	start := time.Now()
	outcome, err := s.learner.Run(ctx, start)
	if err != nil {
		s.appendLog("error", "learning", "learning pass failed", err.Error())
		return fmt.Errorf("learning pass: %w", err)
	}

	applied := 0
	if outcome.Applied {
		applied = 1
	}
	s.markRun(func(st *core.SchedulerState) { st.LastLearningRun = time.Now().UTC() })
	s.recordStats(store.RunStats{
		Kind:     "learning",
		ItemsIn:  outcome.Sampled,
		ItemsOut: applied,
		Duration: time.Since(start),
	})
	s.appendLog("info", "learning", outcome.Reason, "")
	s.log.Info("Learning run complete",
		"sampled", outcome.Sampled, "proposed", outcome.Proposed, "applied", outcome.Applied)
	return nil
}

func (s *Scheduler) activeTemplates() (core.PromptTemplate, core.PromptTemplate, error) {
	genTmpl, err := s.store.GetActiveTemplate(core.TemplateGeneration)
	if err != nil {
		return core.PromptTemplate{}, core.PromptTemplate{}, fmt.Errorf("loading generation template: %w", err)
	}
	evalTmpl, err := s.store.GetActiveTemplate(core.TemplateEvaluation)
	if err != nil {
		return core.PromptTemplate{}, core.PromptTemplate{}, fmt.Errorf("loading evaluation template: %w", err)
	}
	if genTmpl == nil || evalTmpl == nil {
		return core.PromptTemplate{}, core.PromptTemplate{}, fmt.Errorf("active prompt templates missing, store not bootstrapped")
	}
	return *genTmpl, *evalTmpl, nil
}

func (s *Scheduler) markRun(update func(*core.SchedulerState)) {
	s.mu.Lock()
	update(&s.state)
	s.mu.Unlock()
}

// recordStats and appendLog are best-effort: a failed bookkeeping write is
// logged but never fails the run that produced it.
func (s *Scheduler) recordStats(stats store.RunStats) {
	if err := s.store.RecordRunStats(stats); err != nil {
		s.log.Warn("Failed to record run stats", "kind", stats.Kind, "error", err)
	}
}

func (s *Scheduler) appendLog(level, component, message, detail string) {
	if err := s.store.AppendLog(level, component, message, detail); err != nil {
		s.log.Warn("Failed to append system log", "component", component, "error", err)
	}
}
