package engine

import (
	"context"

	"github.com/hupe1980/agora/core"
	"github.com/hupe1980/agora/quality"
)

// Synthesize builds the outcome of a session from its final state. Positions
// hold each participant's strongest contribution from memory.
func (e *Engine) Synthesize(snap core.Snapshot) core.Outcome {
	now := e.now()
	o := core.Outcome{
		SessionID:    snap.ID,
		Topic:        snap.Topic,
		Consensus:    snap.Consensus,
		ThresholdMet: snap.Consensus >= snap.Protocol.WithDefaults().ConsensusThresholdPercent,
		Positions:    make(map[string]string, len(snap.Participants)),
		TurnCount:    snap.TurnCount,
		Quality:      quality.Analyze(snap.Statements, snap.Roster(), now),
		CompletedAt:  now,
	}
	if c, ok := snap.StrongestCoalition(); ok {
		o.StrongestCoalition = &c
	}
	for _, p := range snap.Participants {
		if digest := e.memory.Summarize(snap.ID, p.ID, 1, e.config.DigestBudget); digest != "" {
			o.Positions[p.ID] = digest
		}
	}
	return o
}

// conclude stores the outcome once, records it and broadcasts the final state.
func (e *Engine) conclude(ctx context.Context, sess *core.Session) {
	o := e.Synthesize(sess.Snapshot())
	if !sess.SetOutcome(o) {
		return
	}
	sess.SetQuality(o.Quality)
	e.logger.Info("engine.session.concluded", "session", o.SessionID, "consensus", o.Consensus, "threshold_met", o.ThresholdMet, "turns", o.TurnCount)
	e.recordLedger(o.SessionID, core.LedgerOutcome, o)
	e.notify(ctx, CallbackOnOutcome, &CallbackContext{SessionID: o.SessionID, Outcome: &o})
	e.broadcast(ctx, core.NewEvent(core.EventStateSync, o.SessionID, sess.Snapshot()))
}
