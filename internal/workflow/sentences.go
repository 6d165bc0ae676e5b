package workflow

import (
	"regexp"
	"strings"

	"github.com/raaihank/pdn-sentinel/internal/privacy"
)

var terminators = regexp.MustCompile(`[.!?]+`)

// SplitSentences splits text on every run of terminal punctuation, trims
// each piece and drops empty ones. Punctuation inside a protected span,
// such as a detected e-mail address or coordinate, does not end a sentence.
func SplitSentences(text string, protected ...privacy.Span) []string {
	var sentences []string
	start := 0
	for _, loc := range terminators.FindAllStringIndex(text, -1) {
		i, j := loc[0], loc[1]
		for _, sp := range protected {
			if sp.Start < j && i < sp.End {
				i = max(i, sp.End)
			}
		}
		if i >= j {
			continue
		}
		if s := strings.TrimSpace(text[start:i]); s != "" {
			sentences = append(sentences, s)
		}
		start = j
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// JoinSentences rebuilds text from kept sentences, ensuring a final period
func JoinSentences(sentences []string) string {
	if len(sentences) == 0 {
		return ""
	}
	text := strings.Join(sentences, ". ")
	if !strings.HasSuffix(text, ".") {
		text += "."
	}
	return text
}
