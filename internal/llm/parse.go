package llm

import (
	"strconv"
	"strings"

	"github.com/ahrav/go-promptloop/internal/domain"
)

// Section headers of the evaluator output.
const (
	scoreHeader       = "SCORE:"
	feedbackHeader    = "FEEDBACK:"
	suggestionsHeader = "SUGGESTIONS:"
)

// ParseEvaluation turns evaluator output into an Evaluation.
//
// The expected layout is
//
//	SCORE: 850
//	FEEDBACK:
//	- Clarity: 180 - precise wording
//	SUGGESTIONS:
//	- add an example
//
// The first SCORE line is authoritative; its leading integer is clamped into
// [0, 1000] and anything unparsable reads as 0. Feedback bullets without a
// parsable category score keep their note with score 0. Lines outside a
// section are ignored. Malformed output never fails: missing pieces fall
// back to score 0, no feedback and no suggestions.
func ParseEvaluation(text string) domain.Evaluation {
	eval := domain.Evaluation{
		CategoryFeedback: map[string]domain.CategoryFeedback{},
		Suggestions:      []string{},
	}

	const (
		none = iota
		feedback
		suggestions
	)
	section := none
	sawScore := false

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case strings.HasPrefix(line, scoreHeader):
			if !sawScore {
				eval.Score = domain.ClampScore(leadingInt(line[len(scoreHeader):]))
				sawScore = true
			}
			section = none
			continue
		case strings.HasPrefix(line, feedbackHeader):
			section = feedback
			continue
		case strings.HasPrefix(line, suggestionsHeader):
			section = suggestions
			continue
		}

		if !strings.HasPrefix(line, "-") {
			continue
		}
		item := strings.TrimSpace(line[1:])
		switch section {
		case feedback:
			if name, fb, ok := parseCategory(item); ok {
				eval.CategoryFeedback[name] = fb
			}
		case suggestions:
			if item != "" {
				eval.Suggestions = append(eval.Suggestions, item)
			}
		}
	}

	return eval
}

// parseCategory splits "Clarity: 180 - precise wording".
func parseCategory(item string) (string, domain.CategoryFeedback, bool) {
	name, rest, ok := strings.Cut(item, ":")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", domain.CategoryFeedback{}, false
	}
	scorePart, note, ok := strings.Cut(rest, "-")
	if !ok {
		return "", domain.CategoryFeedback{}, false
	}
	score, err := strconv.Atoi(strings.TrimSpace(scorePart))
	if err != nil {
		score = 0
	}
	return name, domain.CategoryFeedback{Score: score, Note: strings.TrimSpace(note)}, true
}

// leadingInt parses the optionally signed integer at the start of s,
// ignoring leading spaces and trailing text such as "/1000". It returns 0
// when there is none.
func leadingInt(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		// Overflow: the sign still decides which bound to clamp to.
		if s[0] == '-' {
			return domain.MinScore
		}
		return domain.MaxScore
	}
	return n
}
