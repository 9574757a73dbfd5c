package core

import "time"

// QualityMetrics holds the four 0-100 debate health scores.
type QualityMetrics struct {
	Evidence         float64   `json:"evidence"`
	Diversity        float64   `json:"diversity"`
	Engagement       float64   `json:"engagement"`
	Constructiveness float64   `json:"constructiveness"`
	ComputedAt       time.Time `json:"computed_at,omitempty"`
	StatementCount   int       `json:"statement_count"`
}

// Outcome is the synthesized result of a completed session.
type Outcome struct {
	SessionID          string            `json:"session_id"`
	Topic              string            `json:"topic"`
	Consensus          int               `json:"consensus"`
	ThresholdMet       bool              `json:"threshold_met"`
	StrongestCoalition *Coalition        `json:"strongest_coalition,omitempty"`
	Positions          map[string]string `json:"positions"`
	TurnCount          int               `json:"turn_count"`
	Quality            QualityMetrics    `json:"quality"`
	CompletedAt        time.Time         `json:"completed_at"`
}
