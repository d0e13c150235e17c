package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/viper"

	"newsroom/internal/batch"
	"newsroom/internal/collect"
	"newsroom/internal/core"
	"newsroom/internal/dedup"
	"newsroom/internal/gate"
	"newsroom/internal/learn"
	"newsroom/internal/llm"
	"newsroom/internal/scheduler"
	"newsroom/internal/store"
	"newsroom/internal/synth"
)

// sourceConfig is one entry under the "sources" config key.
type sourceConfig struct {
	Type          string `mapstructure:"type"` // rss or html
	Name          string `mapstructure:"name"`
	URL           string `mapstructure:"url"`
	ItemSelector  string `mapstructure:"item_selector"`
	TitleSelector string `mapstructure:"title_selector"`
	BodySelector  string `mapstructure:"body_selector"`
}

// pipeline bundles the wired components plus the handles that need closing.
type pipeline struct {
	store     *store.Store
	llm       *llm.Client
	scheduler *scheduler.Scheduler
}

// buildPipeline wires every component from viper configuration. withLLM
// controls whether the Gemini client is created; collection-only commands
// work without an API key.
func buildPipeline(ctx context.Context, withLLM bool) (*pipeline, error) {
	cfg := loadSchedulerConfig()

	st, err := store.NewStore(viper.GetString("data.dir"))
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	if err := st.EnsureActiveTemplates(synth.DefaultTemplates()); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("bootstrapping templates: %w", err)
	}

	var client *llm.Client
	var confirmer batch.Confirmer
	if withLLM {
		client, err = llm.NewClient(ctx, viper.GetString("gemini.model"))
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("creating text service client: %w", err)
		}
		confirmer = client
	}

	adapters, err := buildAdapters()
	if err != nil {
		if client != nil {
			_ = client.Close()
		}
		_ = st.Close()
		return nil, err
	}

	batcher := batch.NewBatcher(batch.Options{
		MinDataPoints:      cfg.MinDataPoints,
		CandidateThreshold: cfg.CandidateThreshold,
	}, confirmer)

	var synthesizer scheduler.Synthesizer
	var admitGate scheduler.Admitter
	var learner scheduler.Learner
	if withLLM {
		sz := synth.NewSynthesizer(client, st)
		synthesizer = sz
		admitGate = gate.NewGate(st, sz, cfg)
		learner = learn.NewLoop(st, client, cfg)
	}

	sched := scheduler.New(st,
		collect.NewCollector(adapters),
		batcher,
		dedup.NewFilter(0),
		synthesizer,
		admitGate,
		learner,
		cfg,
	)

	return &pipeline{store: st, llm: client, scheduler: sched}, nil
}

func (p *pipeline) Close() {
	if p.llm != nil {
		_ = p.llm.Close()
	}
	_ = p.store.Close()
}

// loadSchedulerConfig reads every interval and threshold from viper; defaults
// are registered in initConfig.
func loadSchedulerConfig() core.SchedulerConfig {
	return core.SchedulerConfig{
		CollectionInterval:   viper.GetDuration("scheduler.collection_interval"),
		GenerationInterval:   viper.GetDuration("scheduler.generation_interval"),
		LearningInterval:     viper.GetDuration("scheduler.learning_interval"),
		BurstThreshold:       viper.GetInt("scheduler.burst_threshold"),
		MinDataPoints:        viper.GetInt("scheduler.min_data_points"),
		CandidateThreshold:   viper.GetFloat64("scheduler.candidate_threshold"),
		TopK:                 viper.GetInt("scheduler.top_k"),
		QualityThreshold:     viper.GetInt("scheduler.quality_threshold"),
		AutoPublishThreshold: viper.GetInt("scheduler.auto_publish_threshold"),
		LearningTrigger:      viper.GetInt("scheduler.learning_trigger"),
		LearningWindowDays:   viper.GetInt("scheduler.learning_window_days"),
		MinLearningSample:    viper.GetInt("scheduler.min_learning_sample"),
	}
}

// buildAdapters constructs one collection adapter per configured source.
func buildAdapters() ([]collect.Adapter, error) {
	var sources []sourceConfig
	if err := viper.UnmarshalKey("sources", &sources); err != nil {
		return nil, fmt.Errorf("parsing sources config: %w", err)
	}

	adapters := make([]collect.Adapter, 0, len(sources))
	for _, src := range sources {
		switch src.Type {
		case "rss":
			adapters = append(adapters, collect.NewRSSAdapter(src.Name, src.URL))
		case "html":
			adapters = append(adapters, collect.NewHTMLAdapter(
				src.Name, src.URL, src.ItemSelector, src.TitleSelector, src.BodySelector))
		default:
			return nil, fmt.Errorf("unknown source type %q for source %q", src.Type, src.Name)
		}
	}
	return adapters, nil
}
