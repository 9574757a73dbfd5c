package moderator

import (
	"math/rand/v2"
	"time"

	"github.com/hupe1980/agora/core"
)

// InterruptionPolicy decides whether a challenger may take the floor from
// the current speaker. confidence is the challenger's normalized bid in [0,1].
type InterruptionPolicy interface {
	ShouldInterrupt(speaker core.Speaker, confidence float64, protocol core.Protocol, now time.Time) bool
}

// InterruptionPolicyFunc adapts a function to InterruptionPolicy.
type InterruptionPolicyFunc func(speaker core.Speaker, confidence float64, protocol core.Protocol, now time.Time) bool

// ShouldInterrupt implements InterruptionPolicy.
func (f InterruptionPolicyFunc) ShouldInterrupt(speaker core.Speaker, confidence float64, protocol core.Protocol, now time.Time) bool {
	return f(speaker, confidence, protocol, now)
}

// NeverInterrupt lets every speaker finish.
var NeverInterrupt = InterruptionPolicyFunc(func(core.Speaker, float64, core.Protocol, time.Time) bool { return false })

// DefaultModeratorWindow is the stock moderator protection window.
const DefaultModeratorWindow = 6 * time.Second

// ProbabilisticPolicy interrupts when confidence plus a monopoly bonus beats
// a uniform random draw. The bonus applies once the speaker has held the
// floor longer than the protocol turn duration. The moderator is never
// interrupted within ModeratorWindow.
type ProbabilisticPolicy struct {
	MonopolyBonus   float64
	ModeratorWindow time.Duration
	Rand            func() float64
}

// NewProbabilisticPolicy creates the default policy.
func NewProbabilisticPolicy() *ProbabilisticPolicy {
	return &ProbabilisticPolicy{MonopolyBonus: 0.2, ModeratorWindow: DefaultModeratorWindow, Rand: rand.Float64}
}

// ShouldInterrupt implements InterruptionPolicy.
func (p *ProbabilisticPolicy) ShouldInterrupt(speaker core.Speaker, confidence float64, protocol core.Protocol, now time.Time) bool {
	if speaker.ParticipantID == "" {
		return true
	}
	held := now.Sub(speaker.StartedAt)
	if speaker.ParticipantID == core.ModeratorID && held < p.moderatorWindow() {
		return false
	}
	window := time.Duration(protocol.WithDefaults().TurnDurationSeconds) * time.Second
	score := confidence
	if held > window {
		score += p.MonopolyBonus
	}
	return score > p.Rand()
}

func (p *ProbabilisticPolicy) moderatorWindow() time.Duration {
	if p.ModeratorWindow > 0 {
		return p.ModeratorWindow
	}
	return DefaultModeratorWindow
}

var _ InterruptionPolicy = (*ProbabilisticPolicy)(nil)
