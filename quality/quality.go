// Package quality derives the four 0-100 debate health scores (evidence,
// diversity, engagement, constructiveness) from a session's statements.
package quality

import (
	"math"
	"time"
	"unicode/utf8"

	"github.com/hupe1980/agora/core"
)

// DefaultInterval is the statement cadence at which metrics are recomputed.
const DefaultInterval = 5

// minConstructiveLength is the content length a statement must exceed to count as constructive.
const minConstructiveLength = 50

// Due reports whether metrics should be recomputed after turnCount statements.
func Due(turnCount, interval int) bool {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return turnCount > 0 && turnCount%interval == 0
}

// Analyze scores the statements against the roster. Moderator statements are
// excluded. With no participant statements all scores are zero.
//
//	evidence         = min(100, avg(citations or tools per statement) / 2 * 100)
//	diversity        = 50 * unique/active + 0.5 * max(0, 100 - 10 * stddev(counts))
//	engagement       = share of roster with >= 2 statements * 100
//	constructiveness = share of statements with evidence and > 50 chars * 100
func Analyze(statements []core.Statement, roster []string, now time.Time) core.QualityMetrics {
	sts := make([]core.Statement, 0, len(statements))
	for _, st := range statements {
		if !st.IsModerator() {
			sts = append(sts, st)
		}
	}
	m := core.QualityMetrics{ComputedAt: now, StatementCount: len(sts)}
	if len(sts) == 0 || len(roster) == 0 {
		return m
	}

	counts := make(map[string]int, len(roster))
	for _, id := range roster {
		counts[id] = 0
	}
	evidenceTotal := 0
	constructive := 0
	for _, st := range sts {
		if _, ok := counts[st.ParticipantID]; ok {
			counts[st.ParticipantID]++
		}
		evidenceTotal += evidenceUnits(st)
		if st.HasEvidence() && utf8.RuneCountInString(st.Content) > minConstructiveLength {
			constructive++
		}
	}

	n := float64(len(sts))
	m.Evidence = round2(math.Min(100, float64(evidenceTotal)/n/2*100))

	unique, engaged := 0, 0
	values := make([]float64, 0, len(counts))
	for _, c := range counts {
		if c > 0 {
			unique++
		}
		if c >= 2 {
			engaged++
		}
		values = append(values, float64(c))
	}
	active := float64(len(counts))
	m.Diversity = round2(50*float64(unique)/active + 0.5*math.Max(0, 100-10*stddev(values)))
	m.Engagement = round2(float64(engaged) / active * 100)
	m.Constructiveness = round2(float64(constructive) / n * 100)
	return m
}

// evidenceUnits counts citations, falling back to tools when no citations were extracted.
func evidenceUnits(st core.Statement) int {
	if len(st.Citations) > 0 {
		return len(st.Citations)
	}
	return len(st.ToolsUsed)
}

func stddev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return math.Sqrt(variance / float64(len(values)))
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
