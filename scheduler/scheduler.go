// Package scheduler implements competitive turn allocation: every
// participant bids for the floor, bids are ranked by urgency times
// relevance, and the previous speaker is excluded from the next turn.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/tidwall/gjson"

	"github.com/hupe1980/agora/core"
	"github.com/hupe1980/agora/internal/cache"
	"github.com/hupe1980/agora/logging"
	"github.com/hupe1980/agora/model"
)

// Heuristic bid constants.
const (
	MaxScore          = 10
	BaseRelevance     = 3
	KeywordBonus      = 2
	BaseUrgency       = 5
	RecentTurnsWindow = 10
	DefaultBidTTL     = 15 * time.Second
)

// TurnBid is a participant's self-reported claim to speak next.
type TurnBid struct {
	ParticipantID string  `json:"participant_id"`
	Urgency       float64 `json:"urgency"`
	Relevance     float64 `json:"relevance"`
	Reasoning     string  `json:"reasoning,omitempty"`
}

// Score is the ranking key.
func (b TurnBid) Score() float64 { return b.Urgency * b.Relevance }

// BidContext is the state a bid is computed against.
type BidContext struct {
	Snapshot core.Snapshot
	Limiter  *core.ModelLimiter
}

// Options configures a Scheduler.
type Options struct {
	// Model, when set, is asked for a structured bid before the heuristic.
	Model     model.Model
	Logger    logging.Logger
	BidTTL    time.Duration
	Now       func() time.Time
	MaxTokens int
}

// Scheduler computes and ranks bids. Safe for concurrent use.
type Scheduler struct {
	model  model.Model
	logger logging.Logger
	bids   *cache.TTL[string, TurnBid]
	tokens int
}

// New creates a scheduler.
func New(optFns ...func(o *Options)) *Scheduler {
	opts := Options{BidTTL: DefaultBidTTL, MaxTokens: 120}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Scheduler{
		model:  opts.Model,
		logger: logging.OrNoOp(opts.Logger),
		bids:   cache.NewTTL[string, TurnBid](opts.BidTTL, opts.Now),
		tokens: opts.MaxTokens,
	}
}

func bidKey(sessionID, participantID string, turn int) string {
	return fmt.Sprintf("%s|%s|%d", sessionID, participantID, turn)
}

// BidForTurn returns p's bid. The model path is tried first; any failure
// falls back to HeuristicBid. Bids are cached per (session, participant,
// turn count).
func (s *Scheduler) BidForTurn(ctx context.Context, p core.Participant, bc BidContext) TurnBid {
	key := bidKey(bc.Snapshot.ID, p.ID, bc.Snapshot.TurnCount)
	if bid, ok := s.bids.Get(key); ok {
		return bid
	}

	bid, err := s.modelBid(ctx, p, bc)
	if err != nil {
		if s.model != nil {
			s.logger.Debug("scheduler.bid.heuristic", "participant", p.ID, "reason", err)
		}
		bid = HeuristicBid(p, bc.Snapshot)
	}
	s.bids.Set(key, bid)
	return bid
}

// PollBids gathers bids from every participant concurrently and returns
// them sorted descending by score. Equal scores keep roster order.
func (s *Scheduler) PollBids(ctx context.Context, participants []core.Participant, bc BidContext) []TurnBid {
	bids := make([]TurnBid, len(participants))
	var wg conc.WaitGroup
	for i, p := range participants {
		wg.Go(func() {
			bids[i] = s.BidForTurn(ctx, p, bc)
		})
	}
	wg.Wait()
	return Rank(bids)
}

// Forget drops cached bids of a session.
func (s *Scheduler) Forget(sessionID string) {
	prefix := sessionID + "|"
	s.bids.DeleteFunc(func(k string) bool { return strings.HasPrefix(k, prefix) })
}

// Rank sorts bids descending by score, stable.
func Rank(bids []TurnBid) []TurnBid {
	out := make([]TurnBid, len(bids))
	copy(out, bids)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score() > out[j].Score() })
	return out
}

// Allocate picks the next speaker from ranked bids. previousSpeaker is
// skipped unless it is the only candidate. It returns false for no bids.
func Allocate(bids []TurnBid, previousSpeaker string) (string, bool) {
	if len(bids) == 0 {
		return "", false
	}
	for _, b := range bids {
		if b.ParticipantID != previousSpeaker {
			return b.ParticipantID, true
		}
	}
	return bids[0].ParticipantID, true
}

// HeuristicBid scores topical keyword overlap and how little p has spoken
// among the most recent turns.
func HeuristicBid(p core.Participant, snap core.Snapshot) TurnBid {
	matches := KeywordOverlap(p.Keywords, snap.Topic)
	relevance := min(MaxScore, BaseRelevance+KeywordBonus*matches)
	recent := snap.RecentTurns(p.ID, RecentTurnsWindow)
	urgency := min(MaxScore, BaseUrgency+(RecentTurnsWindow-recent))
	return TurnBid{
		ParticipantID: p.ID,
		Urgency:       float64(urgency),
		Relevance:     float64(relevance),
		Reasoning:     fmt.Sprintf("%d topic keyword(s), %d of the last %d turns", matches, recent, RecentTurnsWindow),
	}
}

// KeywordOverlap counts keywords that occur in topic, case-insensitively.
func KeywordOverlap(keywords []string, topic string) int {
	topic = strings.ToLower(topic)
	n := 0
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(topic, kw) {
			n++
		}
	}
	return n
}

const bidPrompt = `Rate how strongly you want to speak next in the debate on %q.
Current phase: %s. Last speaker: %s.
Reply with JSON only: {"urgency": 0-10, "relevance": 0-10, "reasoning": "<one sentence>"}`

func (s *Scheduler) modelBid(ctx context.Context, p core.Participant, bc BidContext) (TurnBid, error) {
	if s.model == nil {
		return TurnBid{}, errors.New("no model")
	}
	if err := bc.Limiter.Acquire(); err != nil {
		return TurnBid{}, err
	}
	last := bc.Snapshot.LastSpeaker()
	if last == "" {
		last = "nobody"
	}
	req := model.Request{
		Instructions: fmt.Sprintf("You are %s. %s", p.DisplayName(), p.Persona),
		Messages: []model.Message{{
			Role:    model.RoleUser,
			Content: fmt.Sprintf(bidPrompt, bc.Snapshot.Topic, bc.Snapshot.Phase, last),
		}},
		MaxTokens: s.tokens,
	}
	text, err := model.Collect(ctx, s.model, req)
	if err != nil {
		return TurnBid{}, err
	}
	return ParseBid(p.ID, text)
}

// ParseBid extracts a bid from model output, tolerating prose around the
// JSON object. Scores are clamped to [0,10].
func ParseBid(participantID, text string) (TurnBid, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return TurnBid{}, errors.New("no JSON object in bid")
	}
	raw := text[start : end+1]
	if !gjson.Valid(raw) {
		return TurnBid{}, errors.New("invalid bid JSON")
	}
	res := gjson.GetMany(raw, "urgency", "relevance", "reasoning")
	if !res[0].Exists() || !res[1].Exists() {
		return TurnBid{}, errors.New("bid missing urgency or relevance")
	}
	return TurnBid{
		ParticipantID: participantID,
		Urgency:       clamp(res[0].Float()),
		Relevance:     clamp(res[1].Float()),
		Reasoning:     res[2].String(),
	}, nil
}

func clamp(v float64) float64 {
	return max(0, min(MaxScore, v))
}
