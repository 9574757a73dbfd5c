package engine

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"

	"github.com/hupe1980/agora/core"
)

// agreementMarkers introduce the participant a speaker aligns with.
var agreementMarkers = []string{
	"i agree with",
	"agree with",
	"agreeing with",
	"building on what",
	"building on",
	"i side with",
	"echoing",
	"in line with",
}

var honorifics = map[string]bool{"dr": true, "prof": true, "mr": true, "ms": true, "mrs": true, "the": true}

const positionRunes = 120

// DetectAgreement returns the participant that content explicitly agrees
// with. Names are matched case-insensitively against participant ids and
// names, tolerating small misspellings.
func DetectAgreement(content, speakerID string, participants []core.Participant) (string, bool) {
	lower := strings.ToLower(content)
	for _, marker := range agreementMarkers {
		from := 0
		for {
			i := strings.Index(lower[from:], marker)
			if i < 0 {
				break
			}
			rest := lower[from+i+len(marker):]
			from += i + len(marker)
			if id, ok := matchName(words(rest, 4), speakerID, participants); ok {
				return id, true
			}
		}
	}
	return "", false
}

func matchName(tokens []string, speakerID string, participants []core.Participant) (string, bool) {
	for len(tokens) > 0 && honorifics[tokens[0]] {
		tokens = tokens[1:]
	}
	if len(tokens) == 0 {
		return "", false
	}
	parts := make(map[string]int)
	for _, p := range participants {
		for _, part := range nameParts(p) {
			parts[part]++
		}
	}
	// Exact before fuzzy; full names and ids before name parts unique to
	// one participant.
	for _, fuzzy := range []bool{false, true} {
		for _, p := range participants {
			if p.ID == speakerID {
				continue
			}
			for _, cand := range [][]string{fullName(p), {strings.ToLower(p.ID)}} {
				if n := len(cand); n > 0 && n <= len(tokens) && similar(strings.Join(tokens[:n], " "), strings.Join(cand, " "), fuzzy) {
					return p.ID, true
				}
			}
		}
		for _, p := range participants {
			if p.ID == speakerID {
				continue
			}
			for _, part := range nameParts(p) {
				if parts[part] == 1 && similar(tokens[0], part, fuzzy) {
					return p.ID, true
				}
			}
		}
	}
	return "", false
}

func fullName(p core.Participant) []string {
	name := words(strings.ToLower(p.Name), 8)
	for len(name) > 0 && honorifics[name[0]] {
		name = name[1:]
	}
	return name
}

// nameParts lists the distinctive words of a multi word name.
func nameParts(p core.Participant) []string {
	name := fullName(p)
	if len(name) < 2 {
		return nil
	}
	var out []string
	for _, part := range name {
		if len(part) >= 4 {
			out = append(out, part)
		}
	}
	return out
}

func similar(a, b string, fuzzy bool) bool {
	if a == b {
		return true
	}
	if !fuzzy {
		return false
	}
	var allowed int
	switch n := len(b); {
	case n < 5:
		return false
	case n < 9:
		allowed = 1
	default:
		allowed = 2
	}
	return levenshtein.ComputeDistance(a, b) <= allowed
}

func words(s string, limit int) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_'
	})
	if len(fields) > limit {
		fields = fields[:limit]
	}
	return fields
}

// positionOf summarizes a statement as its first sentence.
func positionOf(content string) string {
	content = strings.TrimSpace(content)
	end := len(content)
	for i, r := range content {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if f := words(strings.ToLower(content[:i]), 1<<10); r == '.' && len(f) > 0 && honorifics[f[len(f)-1]] {
			continue
		}
		end = i + 1
		break
	}
	r := []rune(content[:end])
	if len(r) > positionRunes {
		return string(r[:positionRunes-3]) + "..."
	}
	return string(r)
}
