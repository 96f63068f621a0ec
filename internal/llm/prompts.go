package llm

import (
	"fmt"
	"strings"

	"github.com/ahrav/go-promptloop/internal/domain"
)

// Category scores are on a 0-200 scale; five categories sum to the overall
// 0-1000 score.
const categoryScale = 200

const architectSystem = `You are a prompt architect. Write a system prompt that satisfies the requirements below.
Reply with the system prompt only.

Requirements:
%s

Feedback on the previous version:
%s`

const judgeSystem = `You are a strict reviewer of system prompts. Score the prompt below from 0 to 1000.
Rate five categories (clarity, completeness, specificity, safety, robustness) from 0 to 200 each.
Answer in exactly this format:

SCORE: <0-1000>
FEEDBACK:
- <category>: <0-200> - <note>
SUGGESTIONS:
- <suggestion>

Prompt to evaluate:
%s`

const judgeUser = "Please evaluate this system prompt and provide your score and feedback."

func initialMessages(requirements string) []Message {
	return []Message{
		{Role: "system", Content: fmt.Sprintf(architectSystem, requirements, "No previous feedback available.")},
	}
}

func refineMessages(artifact string, eval domain.Evaluation, requirements string) []Message {
	return []Message{
		{Role: "system", Content: fmt.Sprintf(architectSystem, requirements, formatFeedback(eval))},
		{Role: "user", Content: fmt.Sprintf("Here's the current prompt that received a score of %d/%d:\n\n%s",
			eval.Score, domain.MaxScore, artifact)},
	}
}

func evaluateMessages(artifact string) []Message {
	return []Message{
		{Role: "system", Content: fmt.Sprintf(judgeSystem, artifact)},
		{Role: "user", Content: judgeUser},
	}
}

// formatFeedback renders category feedback in a stable order followed by
// the suggestions.
func formatFeedback(eval domain.Evaluation) string {
	var b strings.Builder
	for _, name := range eval.Categories() {
		fb := eval.CategoryFeedback[name]
		fmt.Fprintf(&b, "- %s: %s (Score: %d/%d)\n", name, fb.Note, fb.Score, categoryScale)
	}
	if len(eval.Suggestions) > 0 {
		b.WriteString("\nSuggestions for improvement:\n")
		for _, s := range eval.Suggestions {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}
	if b.Len() == 0 {
		return "No specific feedback was given."
	}
	return strings.TrimRight(b.String(), "\n")
}
