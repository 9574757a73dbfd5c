package invoker

import (
	"regexp"
	"strings"
)

// MaxCitations caps the citations attached to a single statement.
const MaxCitations = 5

var citationTriggers = []string{
	"according to",
	"studies show",
	"research indicates",
	"data suggests",
	"evidence shows",
	"as reported by",
}

var (
	citationPattern = regexp.MustCompile(`(?i)\b(` + strings.Join(citationTriggers, "|") + `)\b`)
	sentenceSplit   = regexp.MustCompile(`[^.!?]+[.!?]*`)
)

// ExtractCitations returns the sentences containing a citation trigger
// phrase, in order of appearance, capped at MaxCitations.
func ExtractCitations(text string) []string {
	var out []string
	for _, sentence := range sentenceSplit.FindAllString(text, -1) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" || !citationPattern.MatchString(sentence) {
			continue
		}
		out = append(out, sentence)
		if len(out) == MaxCitations {
			break
		}
	}
	return out
}
