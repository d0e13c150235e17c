package core

import "time"

// RawItem represents one collected signal from an external source.
// Items are append-only: the only mutation after creation is the Processed flag.
type RawItem struct {
	ID          string    `json:"id"`           // Unique identifier for the item
	Source      string    `json:"source"`       // Source tag (e.g., "rss:hnrss", "forum:lobsters")
	Title       string    `json:"title"`        // Item title
	Body        string    `json:"body"`         // Optional body text
	CollectedAt time.Time `json:"collected_at"` // Timestamp when the item was collected
	Processed   bool      `json:"processed"`    // Whether the item has been consumed by a generation run
	TrendScore  float64   `json:"trend_score"`  // Optional numeric hint from the adapter (0 if unknown)
}

// TopicCluster is an ephemeral, in-memory grouping of RawItems sharing salient terms.
// Clusters are rebuilt from the current unprocessed set on every run and never persisted.
type TopicCluster struct {
	Keyword        string    `json:"keyword"`         // Most frequent salient term across members
	Members        []RawItem `json:"members"`         // Member items (read-only view, owned by the store)
	AggregateScore float64   `json:"aggregate_score"` // Derived score, clamped to 0-100
	Sources        []string  `json:"sources"`         // Distinct source tags represented in the cluster
	IsCandidate    bool      `json:"is_candidate"`    // Whether the cluster is worth generating an article for
}

// Draft is the unscored output of the generative-text service for one cluster.
type Draft struct {
	Title          string   `json:"title"`           // Article title
	Body           string   `json:"body"`            // Full article body text
	Summary        string   `json:"summary"`         // Short summary
	Keywords       []string `json:"keywords"`        // Extracted keywords
	ReadingMinutes int      `json:"reading_minutes"` // Estimated reading time in minutes
}

// ScoreReport is a multi-axis quality evaluation of a Draft. All axes are 0-100.
type ScoreReport struct {
	Total        int      `json:"total"`        // Overall score
	SEO          int      `json:"seo"`          // Search optimization score
	Readability  int      `json:"readability"`  // Readability score
	Accuracy     int      `json:"accuracy"`     // Factual accuracy score
	Originality  int      `json:"originality"`  // Originality score
	Engagement   int      `json:"engagement"`   // Engagement potential score
	Improvements []string `json:"improvements"` // Free-text improvement suggestions
	Strengths    []string `json:"strengths"`    // Free-text strengths
}

// ArticleStatus represents the lifecycle state of an Article.
type ArticleStatus string

const (
	StatusDraft            ArticleStatus = "draft"
	StatusPendingReview    ArticleStatus = "pending_review"
	StatusApproved         ArticleStatus = "approved"
	StatusPublished        ArticleStatus = "published"
	StatusRejected         ArticleStatus = "rejected"
	StatusNeedsImprovement ArticleStatus = "needs_improvement"
)

// Article is the persisted artifact produced by the quality gate.
// Invariant: PublishedAt is non-nil iff Status == StatusPublished.
type Article struct {
	ID          string        `json:"id"`           // Unique identifier for the article
	Title       string        `json:"title"`        // Article title
	Slug        string        `json:"slug"`         // URL-safe slug derived from the title (<=100 chars)
	Content     string        `json:"content"`      // Full article content
	Score       ScoreReport   `json:"score"`        // Embedded quality evaluation
	Status      ArticleStatus `json:"status"`       // Current lifecycle status
	CreatedAt   time.Time     `json:"created_at"`   // Timestamp when the article was created
	PublishedAt *time.Time    `json:"published_at"` // Set only on entry to the published state
	Performance Performance   `json:"performance"`  // Engagement metrics, written by the serving layer
}

// Performance holds post-publication engagement metrics for an article.
// These are written by the (out-of-scope) serving layer and read by the learning loop.
type Performance struct {
	Views        int     `json:"views"`         // Page views
	DwellSeconds float64 `json:"dwell_seconds"` // Average dwell time in seconds
	BounceRate   float64 `json:"bounce_rate"`   // Bounce rate (0.0 to 1.0)
	Shares       int     `json:"shares"`        // Share count
}

// TemplateType distinguishes the two prompt template roles.
type TemplateType string

const (
	TemplateGeneration TemplateType = "generation"
	TemplateEvaluation TemplateType = "evaluation"
)

// PromptTemplate is a named, versioned text template consumed by the synthesizer.
// Invariant: exactly one active template per type at any time.
type PromptTemplate struct {
	ID               string       `json:"id"`                // Unique identifier for the template
	Type             TemplateType `json:"type"`              // generation or evaluation
	Template         string       `json:"template"`          // Template text
	PerformanceScore float64      `json:"performance_score"` // Rolling performance score, reset on update
	UsageCount       int          `json:"usage_count"`       // How many times this template has been used
	IsActive         bool         `json:"is_active"`         // Whether this is the active template for its type
	CreatedAt        time.Time    `json:"created_at"`        // Timestamp when the template was created
}

// SchedulerConfig holds the intervals and thresholds driving the control loop.
type SchedulerConfig struct {
	CollectionInterval   time.Duration `json:"collection_interval"`    // Default 30m
	GenerationInterval   time.Duration `json:"generation_interval"`    // Default 3h
	LearningInterval     time.Duration `json:"learning_interval"`      // Default 24h
	BurstThreshold       int           `json:"burst_threshold"`        // Collected-items count that triggers an early generation run
	MinDataPoints        int           `json:"min_data_points"`        // Minimum cluster size
	CandidateThreshold   float64       `json:"candidate_threshold"`    // Minimum aggregate score for a candidate cluster (0-100)
	TopK                 int           `json:"top_k"`                  // Max candidates synthesized per generation run
	QualityThreshold     int           `json:"quality_threshold"`      // Minimum score to leave needs_improvement
	AutoPublishThreshold int           `json:"auto_publish_threshold"` // Minimum score for auto-publish
	LearningTrigger      int           `json:"learning_trigger"`       // Batch average score below this triggers a learning run
	LearningWindowDays   int           `json:"learning_window_days"`   // Trailing window for performance aggregation
	MinLearningSample    int           `json:"min_learning_sample"`    // Minimum published articles required for a learning run
}

// DefaultSchedulerConfig returns the documented default configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		CollectionInterval:   30 * time.Minute,
		GenerationInterval:   3 * time.Hour,
		LearningInterval:     24 * time.Hour,
		BurstThreshold:       50,
		MinDataPoints:        3,
		CandidateThreshold:   70,
		TopK:                 3,
		QualityThreshold:     80,
		AutoPublishThreshold: 90,
		LearningTrigger:      75,
		LearningWindowDays:   7,
		MinLearningSample:    5,
	}
}

// SchedulerState is the process-wide, in-memory state of the control loop.
// It is created at process start and discarded at shutdown; a restart forgets
// timing history but not stored articles.
type SchedulerState struct {
	IsRunning         bool            `json:"is_running"`
	LastCollectionRun time.Time       `json:"last_collection_run"`
	LastGenerationRun time.Time       `json:"last_generation_run"`
	LastLearningRun   time.Time       `json:"last_learning_run"`
	Config            SchedulerConfig `json:"config"`
}
