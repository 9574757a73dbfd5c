package invoker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/agora/core"
	"github.com/hupe1980/agora/internal/cache"
	"github.com/hupe1980/agora/logging"
)

// Tier names reported in Result.Tier.
const (
	TierDelegate   = "delegate"
	TierCompletion = "completion"
	TierStatic     = "static"
)

// Request carries everything a strategy needs to produce one contribution.
type Request struct {
	Snapshot     core.Snapshot
	Participant  core.Participant
	MemoryDigest string
	Limiter      *core.ModelLimiter
}

func (r Request) cacheKey() string {
	return fmt.Sprintf("%s|%s|%d", r.Participant.ID, r.Snapshot.ID, r.Snapshot.TurnCount)
}

// Result is the uniform output of every fallback tier.
type Result struct {
	Statement  string   `json:"statement"`
	ToolsUsed  []string `json:"tools_used,omitempty"`
	Citations  []string `json:"citations,omitempty"`
	Confidence float64  `json:"confidence"`
	Tier       string   `json:"tier"`
}

// Strategy is one tier of the fallback chain. Attempt returns an error when
// the tier cannot produce a contribution; the next tier is then tried.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, req Request) (Result, error)
}

// StrategyFunc adapts a function to the Strategy interface.
type StrategyFunc struct {
	ID string
	Fn func(ctx context.Context, req Request) (Result, error)
}

// Name implements Strategy.
func (f StrategyFunc) Name() string { return f.ID }

// Attempt implements Strategy.
func (f StrategyFunc) Attempt(ctx context.Context, req Request) (Result, error) { return f.Fn(ctx, req) }

// Options configures an Invoker.
type Options struct {
	Logger   logging.Logger
	CacheTTL time.Duration
	Now      func() time.Time
	// Fallback is used when every strategy failed. It must not fail.
	Fallback Strategy
}

// Invoker runs an ordered chain of strategies until one succeeds. Results
// are cached per (participant, session, turn count) so repeated calls within
// the same turn are idempotent.
type Invoker struct {
	strategies []Strategy
	fallback   Strategy
	cache      *cache.TTL[string, Result]
	logger     logging.Logger
}

// New creates an invoker over the given chain.
func New(strategies []Strategy, optFns ...func(o *Options)) *Invoker {
	opts := Options{CacheTTL: 30 * time.Second}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Fallback == nil {
		opts.Fallback = NewStaticStrategy()
	}
	return &Invoker{
		strategies: strategies,
		fallback:   opts.Fallback,
		cache:      cache.NewTTL[string, Result](opts.CacheTTL, opts.Now),
		logger:     logging.OrNoOp(opts.Logger),
	}
}

// Invoke produces a contribution for req.Participant. It never fails: when
// every strategy errors the fallback tier answers.
func (i *Invoker) Invoke(ctx context.Context, req Request) Result {
	key := req.cacheKey()
	if res, ok := i.cache.Get(key); ok {
		i.logger.Debug("invoker.cache.hit", "participant", req.Participant.ID, "session", req.Snapshot.ID)
		return res
	}

	for _, s := range i.strategies {
		if ctx.Err() != nil {
			break
		}
		start := time.Now()
		res, err := s.Attempt(ctx, req)
		if err == nil && strings.TrimSpace(res.Statement) != "" {
			res = finalize(res, s.Name())
			i.logger.Debug("invoker.tier.success", "tier", res.Tier, "participant", req.Participant.ID, "duration", time.Since(start))
			i.cache.Set(key, res)
			return res
		}
		if err == nil {
			err = fmt.Errorf("empty statement")
		}
		i.logger.Warn("invoker.tier.failed", "tier", s.Name(), "participant", req.Participant.ID, "error", err)
	}

	// The fallback ignores ctx cancellation so a committed turn always resolves.
	res, err := i.fallback.Attempt(context.WithoutCancel(ctx), req)
	if err != nil || strings.TrimSpace(res.Statement) == "" {
		res = Result{Statement: fmt.Sprintf("%s has nothing further to add on %s.", req.Participant.DisplayName(), req.Snapshot.Topic), Confidence: StaticConfidence}
	}
	res = finalize(res, i.fallback.Name())
	i.cache.Set(key, res)
	return res
}

// Forget drops cached results of a session.
func (i *Invoker) Forget(sessionID string) {
	i.cache.DeleteFunc(func(k string) bool {
		parts := strings.SplitN(k, "|", 3)
		return len(parts) == 3 && parts[1] == sessionID
	})
}

func finalize(res Result, tier string) Result {
	res.Statement = strings.TrimSpace(res.Statement)
	if res.Tier == "" {
		res.Tier = tier
	}
	if len(res.Citations) == 0 {
		res.Citations = ExtractCitations(res.Statement)
	}
	if len(res.Citations) > MaxCitations {
		res.Citations = append([]string(nil), res.Citations[:MaxCitations]...)
	}
	return res
}
