package pipeline

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Chunking defaults.
const (
	DefaultMaxFragmentLength = 100
	DefaultSuffixBudget      = 6
)

// ResponseChunk is one numbered fragment of a response.
type ResponseChunk struct {
	Index int
	Total int
	Text  string
}

// Delivered is the text sent to the chat: the fragment followed directly by
// "index/total".
func (c ResponseChunk) Delivered() string {
	return fmt.Sprintf("%s%d/%d", c.Text, c.Index, c.Total)
}

// SplitResponse packs the words of text greedily into fragments of at most
// maxLen-suffixBudget characters, keeping word order. A single word longer
// than that budget is emitted alone and exceeds the limit. Lengths are counted
// in runes. Text with no words yields no chunks.
func SplitResponse(text string, maxLen, suffixBudget int) []ResponseChunk {
	budget := maxLen - suffixBudget
	var parts []string
	current := ""
	for _, word := range strings.Fields(text) {
		switch {
		case current == "":
			current = word
		case utf8.RuneCountInString(current)+1+utf8.RuneCountInString(word) <= budget:
			current += " " + word
		default:
			parts = append(parts, current)
			current = word
		}
	}
	if current != "" {
		parts = append(parts, current)
	}

	chunks := make([]ResponseChunk, len(parts))
	for i, p := range parts {
		chunks[i] = ResponseChunk{Index: i + 1, Total: len(parts), Text: p}
	}
	return chunks
}
