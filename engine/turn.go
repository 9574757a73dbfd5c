package engine

import (
	"context"
	"fmt"

	"github.com/hupe1980/agora/core"
	"github.com/hupe1980/agora/invoker"
	"github.com/hupe1980/agora/quality"
	"github.com/hupe1980/agora/scheduler"
)

// maxBidScore normalizes bid scores into interruption confidence.
const maxBidScore = scheduler.MaxScore * scheduler.MaxScore

// runTurn polls bids, commits to a speaker and records its contribution.
// Once a speaker is committed a statement is always produced.
func (e *Engine) runTurn(ctx context.Context, sess *core.Session) error {
	snap := sess.Snapshot()
	bids := e.scheduler.PollBids(ctx, snap.Participants, scheduler.BidContext{Snapshot: snap, Limiter: sess.Limiter()})
	speakerID, ok := scheduler.Allocate(bids, snap.LastSpeaker())
	if !ok {
		return nil
	}

	holder := snap.Speaker
	interrupting := holder.ParticipantID != speakerID && holder.Holding(e.now(), e.moderator.Config().ModeratorWindow)
	if interrupting {
		confidence := bidScore(bids, speakerID) / maxBidScore
		if !e.moderator.Policy().ShouldInterrupt(holder, confidence, snap.Protocol, e.now()) {
			e.logger.Debug("engine.turn.deferred", "session", snap.ID, "holder", holder.ParticipantID, "candidate", speakerID)
			return nil
		}
	}

	participant, ok := snap.Participant(speakerID)
	if !ok {
		return fmt.Errorf("allocate turn: %w", core.ErrParticipantNotFound)
	}
	if err := e.callbacks.Execute(ctx, CallbackBeforeTurn, &CallbackContext{SessionID: snap.ID, ParticipantID: speakerID, Snapshot: &snap}); err != nil {
		e.logger.Info("engine.turn.vetoed", "session", snap.ID, "participant", speakerID, "reason", err)
		return nil
	}

	if interrupting {
		sp := sess.Interrupt()
		e.logger.Debug("engine.turn.interrupt", "session", snap.ID, "holder", holder.ParticipantID, "interruptions", sp.Interruptions)
	}
	if err := sess.BeginTurn(speakerID); err != nil {
		return err
	}
	e.logger.Info("engine.turn.start", "session", snap.ID, "participant", speakerID, "turn", snap.TurnCount+1)

	res := e.invoker.Invoke(ctx, invoker.Request{
		Snapshot:     snap,
		Participant:  participant,
		MemoryDigest: e.memory.Summarize(snap.ID, speakerID, e.config.DigestTopN, e.config.DigestBudget),
		Limiter:      sess.Limiter(),
	})
	if ctx.Err() != nil && sess.Closed() {
		return core.ErrSessionClosed
	}

	_, err := e.record(ctx, sess, core.Statement{
		ParticipantID: speakerID,
		Content:       res.Statement,
		ToolsUsed:     res.ToolsUsed,
		Citations:     res.Citations,
		Confidence:    res.Confidence,
	})
	if err != nil {
		return err
	}
	e.logger.Info("engine.turn.done", "session", snap.ID, "participant", speakerID, "tier", res.Tier)
	return nil
}

func bidScore(bids []scheduler.TurnBid, participantID string) float64 {
	for _, b := range bids {
		if b.ParticipantID == participantID {
			return b.Score()
		}
	}
	return 0
}

// record appends st and applies every follow-up: memory, ledger,
// agreement-driven coalitions, quality and phase progression. Each event is
// broadcast after its mutation.
func (e *Engine) record(ctx context.Context, sess *core.Session, st core.Statement) (core.RecordResult, error) {
	res, err := sess.RecordStatement(st)
	if err != nil {
		return res, err
	}
	id := sess.ID()
	e.memory.Ingest(res.Statement)
	e.broadcast(ctx, core.NewEvent(core.EventStatementAdded, id, core.StatementAddedPayload{
		Statement: res.Statement,
		TurnCount: res.TurnCount,
	}))
	e.recordLedger(id, core.LedgerStatement, res.Statement)
	e.notify(ctx, CallbackAfterStatement, &CallbackContext{SessionID: id, ParticipantID: res.Statement.ParticipantID, Statement: &res.Statement})

	if res.PhaseChanged {
		e.phaseChanged(ctx, sess, res.From, res.To)
	}
	if !res.Statement.IsModerator() {
		e.detectAgreement(ctx, sess, res.Statement)
	}
	if quality.Due(res.TurnCount, e.config.QualityInterval) {
		e.updateQuality(ctx, sess)
	}
	return res, nil
}

func (e *Engine) detectAgreement(ctx context.Context, sess *core.Session, st core.Statement) {
	snap := sess.Snapshot()
	leader, ok := DetectAgreement(st.Content, st.ParticipantID, snap.Participants)
	if !ok {
		return
	}
	c, changed, err := sess.AlignWith(st.ParticipantID, leader, positionOf(st.Content))
	if err != nil || !changed {
		return
	}
	e.logger.Info("engine.coalition.aligned", "session", snap.ID, "member", st.ParticipantID, "leader", leader, "size", len(c.Members))
	e.coalitionChanged(ctx, sess, c)
}

func (e *Engine) coalitionChanged(ctx context.Context, sess *core.Session, c core.Coalition) {
	id := sess.ID()
	e.memory.RecordCoalition(id, c)
	e.broadcast(ctx, core.NewEvent(core.EventCoalitionFormed, id, core.CoalitionFormedPayload{
		Coalition: c,
		Consensus: sess.Consensus(),
	}))
	if from, to, changed := sess.CheckProgression(); changed {
		e.phaseChanged(ctx, sess, from, to)
	}
}

func (e *Engine) updateQuality(ctx context.Context, sess *core.Session) {
	snap := sess.Snapshot()
	m := quality.Analyze(snap.Statements, snap.Roster(), e.now())
	sess.SetQuality(m)
	e.broadcast(ctx, core.NewEvent(core.EventQualityUpdated, snap.ID, core.QualityUpdatedPayload{Metrics: m}))
}

func (e *Engine) phaseChanged(ctx context.Context, sess *core.Session, from, to core.Phase) {
	id := sess.ID()
	e.logger.Info("engine.phase.changed", "session", id, "from", from, "to", to)
	e.broadcast(ctx, core.NewEvent(core.EventPhaseChanged, id, core.PhaseChangedPayload{From: from, To: to}))
	e.notify(ctx, CallbackOnPhaseChange, &CallbackContext{SessionID: id, From: from, To: to})
	if to.Terminal() {
		e.conclude(ctx, sess)
	}
}
