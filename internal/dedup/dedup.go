// Package dedup provides the two duplicate-topic guards used by the pipeline:
// a cheap keyword-substring check before generation and a Levenshtein-based
// title similarity check before auto-publish. The two guards are deliberately
// asymmetric; see DESIGN.md.
package dedup

import (
	"log/slog"
	"strings"
	"time"
	"unicode"

	"newsroom/internal/core"
	"newsroom/internal/logger"
)

// DefaultWindow is how far back the pre-generation check looks for colliding titles.
const DefaultWindow = 7 * 24 * time.Hour

// Normalize lower-cases a string and strips every non-alphanumeric rune.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Similarity returns a normalized-title similarity in [0, 1].
// It equals 1 for identical normalized strings and is symmetric.
// Distance and length are both measured in runes so multi-byte titles
// are not skewed toward 1.
func Similarity(a, b string) float64 {
	na, nb := []rune(Normalize(a)), []rune(Normalize(b))
	maxLen := len(na)
	if len(nb) > maxLen {
		maxLen = len(nb)
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(levenshtein(na, nb))/float64(maxLen)
}

// levenshtein computes the edit distance between two rune slices using the
// two-row dynamic programming formulation.
func levenshtein(ra, rb []rune) int {
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := 0; j <= len(rb); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// Filter rejects candidate clusters whose topic collides with a recently
// published article title. The check favors recall: a narrow, case-insensitive
// substring match on the cluster keyword, so over-rejection stays rare.
type Filter struct {
	window time.Duration
	log    *slog.Logger
}

// NewFilter creates a duplicate filter with the given lookback window.
// A zero window falls back to DefaultWindow.
func NewFilter(window time.Duration) *Filter {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Filter{window: window, log: logger.Get()}
}

// Apply returns the candidates that do not collide with any recent published
// article, preserving their relative input order. Each rejection is logged
// with the colliding title.
func (f *Filter) Apply(candidates []core.TopicCluster, recent []core.Article, now time.Time) []core.TopicCluster {
	if len(candidates) == 0 {
		return nil
	}
	cutoff := now.Add(-f.window)

	survivors := make([]core.TopicCluster, 0, len(candidates))
	for _, cand := range candidates {
		if title, dup := f.collision(cand.Keyword, recent, cutoff); dup {
			f.log.Warn("Rejected duplicate topic",
				"keyword", cand.Keyword,
				"colliding_title", title,
				"members", len(cand.Members),
			)
			continue
		}
		survivors = append(survivors, cand)
	}
	return survivors
}

// collision reports whether any article published after cutoff contains the
// keyword in its title.
func (f *Filter) collision(keyword string, recent []core.Article, cutoff time.Time) (string, bool) {
	kw := strings.ToLower(keyword)
	if kw == "" {
		return "", false
	}
	for _, art := range recent {
		if art.PublishedAt == nil || art.PublishedAt.Before(cutoff) {
			continue
		}
		if strings.Contains(strings.ToLower(art.Title), kw) {
			return art.Title, true
		}
	}
	return "", false
}
