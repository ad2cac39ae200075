package ai

import (
	"regexp"
	"strings"
)

var (
	reasoningBlocks = []*regexp.Regexp{
		regexp.MustCompile(`(?is)<thinking>.*?</thinking>`),
		regexp.MustCompile(`(?is)<think>.*?</think>`),
		regexp.MustCompile(`(?is)<reasoning>.*?</reasoning>`),
		regexp.MustCompile(`(?is)<thought>.*?</thought>`),
	}
	blankRuns = regexp.MustCompile(`\n\s*\n+`)
)

// StripReasoning removes <thinking>, <think>, <reasoning> and <thought> blocks
// emitted by reasoning models, collapses blank-line runs and trims the result.
func StripReasoning(text string) string {
	if text == "" {
		return text
	}
	out := text
	for _, re := range reasoningBlocks {
		out = re.ReplaceAllString(out, "")
	}
	out = blankRuns.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}
