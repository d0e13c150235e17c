package synth

import (
	"encoding/json"
	"fmt"
	"strings"

	"newsroom/internal/core"
)

// parseDraft extracts a Draft from raw model output. The model is asked for
// bare JSON but frequently wraps it in markdown fences or commentary, so the
// parse is tolerant: strip fences, then fall back to the largest balanced
// object in the text.
func parseDraft(raw string) (core.Draft, error) {
	var draft core.Draft
	if err := unmarshalLenient(raw, &draft); err != nil {
		return core.Draft{}, err
	}
	if strings.TrimSpace(draft.Title) == "" || strings.TrimSpace(draft.Body) == "" {
		return core.Draft{}, fmt.Errorf("draft missing title or body")
	}
	if draft.ReadingMinutes <= 0 {
		draft.ReadingMinutes = estimateReadingMinutes(draft.Body)
	}
	return draft, nil
}

// scoreReportPayload mirrors core.ScoreReport with pointer fields so an
// absent score can be told apart from a legitimate zero.
type scoreReportPayload struct {
	Total        *int     `json:"total"`
	SEO          *int     `json:"seo"`
	Readability  *int     `json:"readability"`
	Accuracy     *int     `json:"accuracy"`
	Originality  *int     `json:"originality"`
	Engagement   *int     `json:"engagement"`
	Improvements []string `json:"improvements"`
	Strengths    []string `json:"strengths"`
}

// parseScoreReport extracts a ScoreReport from raw model output. Axes are
// clamped to 0-100; a missing total is derived from the mean of the axes
// that were present. Zero is a valid score on every axis, so the parse only
// fails when the object carries no score fields at all.
func parseScoreReport(raw string) (core.ScoreReport, error) {
	var payload scoreReportPayload
	if err := unmarshalLenient(raw, &payload); err != nil {
		return core.ScoreReport{}, err
	}

	if payload.Total == nil && payload.SEO == nil && payload.Readability == nil &&
		payload.Accuracy == nil && payload.Originality == nil && payload.Engagement == nil {
		return core.ScoreReport{}, fmt.Errorf("score report has no usable scores")
	}

	report := core.ScoreReport{
		SEO:          clampScore(scoreOrZero(payload.SEO)),
		Readability:  clampScore(scoreOrZero(payload.Readability)),
		Accuracy:     clampScore(scoreOrZero(payload.Accuracy)),
		Originality:  clampScore(scoreOrZero(payload.Originality)),
		Engagement:   clampScore(scoreOrZero(payload.Engagement)),
		Improvements: payload.Improvements,
		Strengths:    payload.Strengths,
	}
	if payload.Total != nil {
		report.Total = clampScore(*payload.Total)
	} else {
		report.Total = (report.SEO + report.Readability + report.Accuracy +
			report.Originality + report.Engagement) / 5
	}
	return report, nil
}

func scoreOrZero(n *int) int {
	if n == nil {
		return 0
	}
	return *n
}

// unmarshalLenient tries the cleaned text first and falls back to the largest
// balanced JSON object embedded in it.
func unmarshalLenient(raw string, v any) error {
	cleaned := stripMarkdownFences(raw)
	if err := json.Unmarshal([]byte(cleaned), v); err == nil {
		return nil
	}
	fragment := extractJSONObject(cleaned)
	if fragment == "" {
		return fmt.Errorf("no JSON object found in response")
	}
	if err := json.Unmarshal([]byte(fragment), v); err != nil {
		return fmt.Errorf("parsing extracted JSON object: %w", err)
	}
	return nil
}

// stripMarkdownFences removes a ```json ... ``` (or bare ```) wrapper.
func stripMarkdownFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// extractJSONObject returns the largest balanced {...} fragment in s, or ""
// when none exists. Brace counting is string-aware so braces inside values do
// not break the balance.
func extractJSONObject(s string) string {
	best := ""
	for start := 0; start < len(s); start++ {
		if s[start] != '{' {
			continue
		}
		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(s); i++ {
			c := s[i]
			if escaped {
				escaped = false
				continue
			}
			switch {
			case c == '\\' && inString:
				escaped = true
			case c == '"':
				inString = !inString
			case inString:
			case c == '{':
				depth++
			case c == '}':
				depth--
				if depth == 0 {
					candidate := s[start : i+1]
					if len(candidate) > len(best) && json.Valid([]byte(candidate)) {
						best = candidate
					}
					i = len(s)
				}
			}
		}
	}
	return best
}

func clampScore(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}

// estimateReadingMinutes assumes ~200 words per minute.
func estimateReadingMinutes(body string) int {
	words := len(strings.Fields(body))
	minutes := (words + 199) / 200
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}
