// Package moderator implements the debate health check. AssessState is a
// pure function of a session snapshot and the current time; ExecuteAction
// carries out exactly the one action it returned.
package moderator

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/agora/core"
	"github.com/hupe1980/agora/logging"
)

// ActionType names a corrective action.
type ActionType string

const (
	ActionAllocateTurn ActionType = "allocate_turn"
	ActionInterject    ActionType = "interject"
	ActionAdvancePhase ActionType = "advance_phase"
)

// Rule identifies which check produced an action.
type Rule string

const (
	RuleTurnBudget   Rule = "turn_budget"
	RuleStall        Rule = "stall"
	RuleCadence      Rule = "cadence"
	RuleDominance    Rule = "dominance"
	RuleCircularity  Rule = "circularity"
	RuleEarlyTimeout Rule = "early_phase_timeout"
)

// Action is the single corrective step chosen for a tick.
type Action struct {
	Type ActionType `json:"type"`
	Rule Rule       `json:"rule"`
	// Message is the moderator statement for interject actions.
	Message string `json:"message,omitempty"`
	// Target is the participant the action concerns, if any.
	Target string `json:"target,omitempty"`
}

// Config holds the moderator thresholds.
type Config struct {
	StallThreshold           time.Duration `mapstructure:"stall_threshold"`
	TurnInterval             time.Duration `mapstructure:"turn_interval"`
	DominanceFactor          float64       `mapstructure:"dominance_factor"`
	CircularityMinStatements int           `mapstructure:"circularity_min_statements"`
	CircularityMaxConsensus  int           `mapstructure:"circularity_max_consensus"`
	InitializationMaxTurns   int           `mapstructure:"initialization_max_turns"`
	// ModeratorWindow is how long an interjection protects the moderator's
	// claim on the floor.
	ModeratorWindow time.Duration `mapstructure:"moderator_window"`
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		StallThreshold:           12 * time.Second,
		TurnInterval:             8 * time.Second,
		DominanceFactor:          2.0,
		CircularityMinStatements: 15,
		CircularityMaxConsensus:  30,
		InitializationMaxTurns:   8,
		ModeratorWindow:          DefaultModeratorWindow,
	}
}

// Options configures a Moderator.
type Options struct {
	Config Config
	Policy InterruptionPolicy
	Logger logging.Logger
}

// Moderator assesses sessions and executes corrective actions.
type Moderator struct {
	cfg    Config
	policy InterruptionPolicy
	logger logging.Logger
}

// New creates a moderator with DefaultConfig and the probabilistic
// interruption policy unless overridden.
func New(optFns ...func(o *Options)) *Moderator {
	opts := Options{Config: DefaultConfig()}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Config.ModeratorWindow <= 0 {
		opts.Config.ModeratorWindow = DefaultModeratorWindow
	}
	if opts.Policy == nil {
		p := NewProbabilisticPolicy()
		p.ModeratorWindow = opts.Config.ModeratorWindow
		opts.Policy = p
	}
	return &Moderator{cfg: opts.Config, policy: opts.Policy, logger: logging.OrNoOp(opts.Logger)}
}

// Config returns the active thresholds.
func (m *Moderator) Config() Config { return m.cfg }

// Policy returns the interruption policy.
func (m *Moderator) Policy() InterruptionPolicy { return m.policy }

// AssessState returns the first rule that fires for snap at now, or nil.
func (m *Moderator) AssessState(snap core.Snapshot, now time.Time) *Action {
	return Assess(m.cfg, snap, now)
}

// Assess evaluates the rules in priority order and returns the first match.
func Assess(cfg Config, snap core.Snapshot, now time.Time) *Action {
	if snap.Closed || snap.Phase == core.PhaseCompleted {
		return nil
	}

	if limit := snap.Protocol.MaxTurns; limit > 0 && snap.TurnCount >= limit {
		return &Action{Type: ActionAdvancePhase, Rule: RuleTurnBudget}
	}
	if now.Sub(snap.LastStatementAt) > cfg.StallThreshold {
		return &Action{Type: ActionAllocateTurn, Rule: RuleStall}
	}
	if now.Sub(snap.LastAllocationAt) > cfg.TurnInterval {
		return &Action{Type: ActionAllocateTurn, Rule: RuleCadence}
	}

	if interventionAllowed(snap) {
		if id, ok := dominant(snap, cfg.DominanceFactor); ok {
			name := id
			if p, found := snap.Participant(id); found {
				name = p.DisplayName()
			}
			return &Action{
				Type:    ActionInterject,
				Rule:    RuleDominance,
				Target:  id,
				Message: fmt.Sprintf("Thank you, %s. Let us hear from the others before we continue; who has not spoken on this yet?", name),
			}
		}
		if snap.TurnCount > cfg.CircularityMinStatements && snap.Consensus < cfg.CircularityMaxConsensus {
			return &Action{
				Type:    ActionInterject,
				Rule:    RuleCircularity,
				Message: fmt.Sprintf("We are going in circles. Let us refocus on %s: what is the one point we still disagree on?", snap.Topic),
			}
		}
	}

	if snap.Phase == core.PhaseInitialization && snap.TurnCount > cfg.InitializationMaxTurns {
		return &Action{Type: ActionAdvancePhase, Rule: RuleEarlyTimeout}
	}
	return nil
}

// interventionAllowed suppresses interjections right after one and in
// passive sessions.
func interventionAllowed(snap core.Snapshot) bool {
	if snap.Protocol.InterventionStyle == core.InterventionPassive {
		return false
	}
	if last, ok := snap.LastStatement(); ok && last.IsModerator() {
		return false
	}
	return true
}

func dominant(snap core.Snapshot, factor float64) (string, bool) {
	mean := snap.MeanStatements()
	if mean == 0 {
		return "", false
	}
	counts := snap.StatementCounts()
	for _, id := range snap.Roster() {
		if float64(counts[id]) > factor*mean {
			return id, true
		}
	}
	return "", false
}

// Executor performs moderator actions against a session.
type Executor interface {
	AllocateTurn(ctx context.Context, sessionID string) error
	Interject(ctx context.Context, sessionID, message string) error
	AdvancePhase(ctx context.Context, sessionID string) error
}

// ExecuteAction performs exactly one action. A nil action is a no-op.
func (m *Moderator) ExecuteAction(ctx context.Context, exec Executor, sessionID string, a *Action) error {
	if a == nil {
		return nil
	}
	m.logger.Debug("moderator.action", "session", sessionID, "type", a.Type, "rule", a.Rule, "target", a.Target)

	var err error
	switch a.Type {
	case ActionAllocateTurn:
		err = exec.AllocateTurn(ctx, sessionID)
	case ActionInterject:
		err = exec.Interject(ctx, sessionID, a.Message)
	case ActionAdvancePhase:
		err = exec.AdvancePhase(ctx, sessionID)
	default:
		err = fmt.Errorf("unknown moderator action %q", a.Type)
	}
	if err != nil {
		return fmt.Errorf("moderator %s: %w", a.Type, err)
	}
	return nil
}

// Tick assesses snap and executes the resulting action, returning it.
func (m *Moderator) Tick(ctx context.Context, exec Executor, snap core.Snapshot, now time.Time) (*Action, error) {
	a := m.AssessState(snap, now)
	return a, m.ExecuteAction(ctx, exec, snap.ID, a)
}
