// Package batch groups raw collected items into topic clusters by lexical
// similarity. Clusters are ephemeral: rebuilt on every generation run from the
// current unprocessed set and discarded afterwards.
package batch

import (
	"context"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"newsroom/internal/core"
	"newsroom/internal/logger"
)

const (
	// RelatednessThreshold is the minimum term-overlap ratio for two items to
	// be considered related.
	RelatednessThreshold = 0.3
	// recencyWindow is the age under which an item earns a recency bonus.
	recencyWindow = 24 * time.Hour
)

// Confirmer optionally double-checks a numeric candidate decision with the
// external evaluation service. An error means "no opinion": the batcher falls
// back to the numeric decision and never blocks on this call.
type Confirmer interface {
	ConfirmCandidate(ctx context.Context, keyword string, titles []string) (bool, error)
}

// Options configures the batcher.
type Options struct {
	MinDataPoints      int     // Minimum members to materialize a cluster
	CandidateThreshold float64 // Minimum aggregate score (0-100) for candidacy
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		MinDataPoints:      3,
		CandidateThreshold: 70,
	}
}

// Batcher clusters raw items into topic candidates.
type Batcher struct {
	opts      Options
	confirmer Confirmer // nil disables semantic confirmation
	stopWords map[string]bool
	log       *slog.Logger
}

// NewBatcher creates a batcher. confirmer may be nil.
func NewBatcher(opts Options, confirmer Confirmer) *Batcher {
	if opts.MinDataPoints <= 0 {
		opts.MinDataPoints = DefaultOptions().MinDataPoints
	}
	if opts.CandidateThreshold <= 0 {
		opts.CandidateThreshold = DefaultOptions().CandidateThreshold
	}
	return &Batcher{
		opts:      opts,
		confirmer: confirmer,
		stopWords: commonStopWords(),
		log:       logger.Get(),
	}
}

// Batch groups the given items into topic clusters. Items smaller than the
// minimum cluster size never surface; an empty input yields an empty output.
// Returned clusters are sorted by aggregate score descending.
func (b *Batcher) Batch(ctx context.Context, items []core.RawItem) []core.TopicCluster {
	if len(items) == 0 {
		return nil
	}

	terms := make([][]string, len(items))
	for i, item := range items {
		terms[i] = b.salientTerms(item.Title + " " + item.Body)
	}

	now := time.Now().UTC()
	assigned := make([]bool, len(items))
	var clusters []core.TopicCluster

	for i := range items {
		if assigned[i] {
			continue
		}

		// Seed a cluster and pull in every remaining item related to the seed.
		// Pairwise against the seed only, not full transitive closure.
		memberIdx := []int{i}
		assigned[i] = true
		for j := i + 1; j < len(items); j++ {
			if assigned[j] {
				continue
			}
			if overlapRatio(terms[i], terms[j]) > RelatednessThreshold {
				memberIdx = append(memberIdx, j)
				assigned[j] = true
			}
		}

		if len(memberIdx) < b.opts.MinDataPoints {
			continue
		}

		cluster := b.materialize(items, terms, memberIdx, now)
		cluster.IsCandidate = b.decideCandidate(ctx, cluster)
		clusters = append(clusters, cluster)
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		return clusters[i].AggregateScore > clusters[j].AggregateScore
	})

	b.log.Debug("Batched items into clusters", "items", len(items), "clusters", len(clusters))
	return clusters
}

// materialize builds a TopicCluster from member indexes.
func (b *Batcher) materialize(items []core.RawItem, terms [][]string, memberIdx []int, now time.Time) core.TopicCluster {
	members := make([]core.RawItem, 0, len(memberIdx))
	freq := make(map[string]int)
	sourceSet := make(map[string]bool)
	recentCount := 0

	for _, idx := range memberIdx {
		item := items[idx]
		members = append(members, item)
		sourceSet[item.Source] = true
		if now.Sub(item.CollectedAt) <= recencyWindow {
			recentCount++
		}
		for _, term := range terms[idx] {
			freq[term]++
		}
	}

	sources := make([]string, 0, len(sourceSet))
	for src := range sourceSet {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	return core.TopicCluster{
		Keyword:        topTerm(freq),
		Members:        members,
		AggregateScore: aggregateScore(len(members), len(sources), recentCount),
		Sources:        sources,
	}
}

// decideCandidate applies the numeric threshold, then optionally asks the
// evaluation service for semantic confirmation. Service failure falls back
// silently to the numeric decision.
func (b *Batcher) decideCandidate(ctx context.Context, cluster core.TopicCluster) bool {
	numeric := cluster.AggregateScore >= b.opts.CandidateThreshold &&
		len(cluster.Members) >= b.opts.MinDataPoints
	if !numeric || b.confirmer == nil {
		return numeric
	}

	titles := make([]string, 0, len(cluster.Members))
	for _, m := range cluster.Members {
		titles = append(titles, m.Title)
	}

	confirmed, err := b.confirmer.ConfirmCandidate(ctx, cluster.Keyword, titles)
	if err != nil {
		b.log.Warn("Semantic confirmation unavailable, using numeric decision",
			"keyword", cluster.Keyword, "error", err)
		return numeric
	}
	return confirmed
}

// aggregateScore combines member count, source diversity and recency into a
// 0-100 score. Each contribution is capped so no single factor dominates.
func aggregateScore(memberCount, sourceCount, recentCount int) float64 {
	base := float64(memberCount) * 10
	if base > 50 {
		base = 50
	}
	sourceBonus := float64(sourceCount) * 10
	if sourceBonus > 30 {
		sourceBonus = 30
	}
	recencyBonus := float64(recentCount) * 5
	if recencyBonus > 20 {
		recencyBonus = 20
	}

	total := base + sourceBonus + recencyBonus
	if total > 100 {
		total = 100
	}
	if total < 0 {
		total = 0
	}
	return total
}

// overlapRatio computes |a ∩ b| / max(|a|, |b|) over term sets.
func overlapRatio(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	shared := 0
	seen := make(map[string]bool, len(b))
	for _, t := range b {
		if set[t] && !seen[t] {
			shared++
			seen[t] = true
		}
	}
	maxLen := len(uniqueTerms(a))
	if ub := len(uniqueTerms(b)); ub > maxLen {
		maxLen = ub
	}
	return float64(shared) / float64(maxLen)
}

func uniqueTerms(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	var out []string
	for _, t := range terms {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// topTerm returns the most frequent term, breaking ties alphabetically so the
// result is deterministic.
func topTerm(freq map[string]int) string {
	best, bestCount := "", 0
	for term, count := range freq {
		if count > bestCount || (count == bestCount && (best == "" || term < best)) {
			best, bestCount = term, count
		}
	}
	return best
}

var nonWord = regexp.MustCompile(`[^\w\s]`)

// salientTerms extracts lower-cased tokens longer than 3 characters with stop
// words removed.
func (b *Batcher) salientTerms(text string) []string {
	cleaned := nonWord.ReplaceAllString(text, " ")
	words := strings.Fields(cleaned)

	var terms []string
	for _, word := range words {
		word = strings.ToLower(strings.TrimSpace(word))
		if len(word) > 3 && !b.stopWords[word] {
			terms = append(terms, word)
		}
	}
	return terms
}

// commonStopWords returns a set of common English stop words.
func commonStopWords() map[string]bool {
	stopWords := []string{
		"about", "after", "again", "been", "before", "being", "between",
		"both", "could", "does", "doing", "down", "during", "each", "from",
		"further", "have", "having", "here", "into", "just", "more", "most",
		"only", "other", "over", "same", "should", "some", "such", "than",
		"that", "their", "them", "then", "there", "these", "they", "this",
		"those", "through", "under", "until", "very", "were", "what", "when",
		"where", "which", "while", "will", "with", "would", "your",
	}

	stopWordsMap := make(map[string]bool)
	for _, word := range stopWords {
		stopWordsMap[word] = true
	}
	return stopWordsMap
}
