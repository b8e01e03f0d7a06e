package transcription

import (
	"regexp"
	"strings"
)

// FillerWords is both the word-boost vocabulary sent with each job and the
// lexicon counted in the finished transcript.
var FillerWords = []string{"um", "uh", "like", "you know", "so", "actually", "basically"}

var fillerPatterns = compileFillers(FillerWords)

func compileFillers(words []string) []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, 0, len(words))
	for _, w := range words {
		patterns = append(patterns, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(w)+`\b`))
	}
	return patterns
}

// CountFillers returns the number of whole-word, case-insensitive lexicon
// matches in text. "like" inside "unlike" does not count.
func CountFillers(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	n := 0
	for _, re := range fillerPatterns {
		n += len(re.FindAllStringIndex(text, -1))
	}
	return n
}
