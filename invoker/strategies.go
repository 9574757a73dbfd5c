package invoker

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/hupe1980/agora/core"
	"github.com/hupe1980/agora/internal/util"
	"github.com/hupe1980/agora/logging"
	"github.com/hupe1980/agora/model"
	"github.com/hupe1980/agora/tool"
)

// Confidence reported by each tier.
const (
	DelegateConfidence   = 0.9
	CompletionConfidence = 0.8
	StaticConfidence     = 0.3
)

// DelegateStrategy hands the prompt and recent context to the remote
// delegate named by the participant profile.
type DelegateStrategy struct {
	registry *tool.Registry
	window   int
	logger   logging.Logger
}

// NewDelegateStrategy creates the delegate tier. Delegate calls are reported
// to logger when it implements logging.CallLogger.
func NewDelegateStrategy(registry *tool.Registry, logger logging.Logger) *DelegateStrategy {
	return &DelegateStrategy{registry: registry, window: DefaultHistoryWindow, logger: logging.OrNoOp(logger)}
}

// Name implements Strategy.
func (s *DelegateStrategy) Name() string { return TierDelegate }

// Attempt implements Strategy.
func (s *DelegateStrategy) Attempt(ctx context.Context, req Request) (Result, error) {
	d, err := s.registry.Get(req.Participant.Delegate)
	if err != nil {
		return Result{}, err
	}
	if !d.Available(ctx) {
		return Result{}, fmt.Errorf("%w: %s unreachable", core.ErrDelegateUnavailable, d.Name())
	}

	mreq, err := BuildRequest(req, NewInstructionsProcessor())
	if err != nil {
		return Result{}, err
	}
	start := time.Now()
	resp, err := d.Invoke(ctx, tool.Request{
		SessionID:     req.Snapshot.ID,
		ParticipantID: req.Participant.ID,
		Topic:         req.Snapshot.Topic,
		Phase:         req.Snapshot.Phase,
		Prompt:        mreq.Instructions,
		Messages:      transcript(req.Snapshot, s.window),
	})
	if cl, ok := s.logger.(logging.CallLogger); ok {
		cl.LogDelegateCall(d.Name(), req.Participant.ID, time.Since(start), err)
	}
	if err != nil {
		return Result{}, err
	}
	tools := resp.ToolsUsed
	if len(tools) == 0 {
		tools = []string{d.Name()}
	}
	return Result{
		Statement:  resp.Content,
		ToolsUsed:  tools,
		Citations:  resp.Citations,
		Confidence: DelegateConfidence,
		Tier:       TierDelegate,
	}, nil
}

// CompletionOptions configures the completion tier.
type CompletionOptions struct {
	// MaxAttempts bounds total model calls per invocation.
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxTokens       int
	Processors      []RequestProcessor
	Logger          logging.Logger
}

// CompletionStrategy asks the generative model for the statement, retrying
// transient failures with exponential backoff.
type CompletionStrategy struct {
	model model.Model
	opts  CompletionOptions
}

// NewCompletionStrategy creates the completion tier.
func NewCompletionStrategy(m model.Model, optFns ...func(o *CompletionOptions)) *CompletionStrategy {
	opts := CompletionOptions{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     4 * time.Second,
		MaxTokens:       400,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if len(opts.Processors) == 0 {
		opts.Processors = []RequestProcessor{NewInstructionsProcessor(), NewContentsProcessor()}
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	return &CompletionStrategy{model: m, opts: opts}
}

// Name implements Strategy.
func (s *CompletionStrategy) Name() string { return TierCompletion }

func (s *CompletionStrategy) newBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.InitialInterval
	b.MaxInterval = s.opts.MaxInterval
	b.MaxElapsedTime = 0
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.opts.MaxAttempts-1)), ctx)
}

// Attempt implements Strategy.
func (s *CompletionStrategy) Attempt(ctx context.Context, req Request) (Result, error) {
	if s.model == nil {
		return Result{}, errors.New("no model configured")
	}
	mreq, err := BuildRequest(req, s.opts.Processors...)
	if err != nil {
		return Result{}, err
	}
	mreq.MaxTokens = s.opts.MaxTokens

	var (
		text     string
		attempts int
		start    = time.Now()
	)
	op := func() error {
		if err := req.Limiter.Acquire(); err != nil {
			return backoff.Permanent(err)
		}
		attempts++
		out, err := model.Collect(ctx, s.model, mreq)
		if err != nil {
			if model.IsRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if strings.TrimSpace(out) == "" {
			return backoff.Permanent(errors.New("empty completion"))
		}
		text = out
		return nil
	}
	notify := func(err error, wait time.Duration) {
		s.opts.Logger.Warn("invoker.completion.retry", "participant", req.Participant.ID, "attempt", attempts, "wait", wait, "error", err)
	}

	err = backoff.RetryNotify(op, s.newBackoff(ctx), notify)
	if cl, ok := s.opts.Logger.(logging.CallLogger); ok {
		cl.LogModelCall(s.model.Info().Name, attempts, time.Since(start), err)
	}
	if err != nil {
		return Result{}, fmt.Errorf("completion after %d attempt(s): %w", attempts, err)
	}
	return Result{
		Statement:  text,
		Confidence: CompletionConfidence,
		Tier:       TierCompletion,
	}, nil
}

var staticTemplates = []string{
	"I think we need to look more carefully at what {{.Topic}} means in practice.",
	"There are trade-offs around {{.Topic}} that we have not weighed yet.",
	"{{if .Prior}}I hear {{.Prior}}, but {{else}}Still, {{end}}I am not convinced we have the full picture on {{.Topic}}.",
	"{{if .Prior}}Building on what {{.Prior}} said, we{{else}}We{{end}} should ask who bears the cost of {{.Topic}}.",
	"Before we go further on {{.Topic}}, let us agree on what success would look like.",
}

type staticData struct {
	Topic string
	Prior string
}

// StaticStrategy picks a template statement at random. It cannot fail.
type StaticStrategy struct {
	templates []string
	intn      func(n int) int
}

// NewStaticStrategy creates the static tier. intn may be overridden in tests
// through WithPicker.
func NewStaticStrategy() *StaticStrategy {
	return &StaticStrategy{templates: staticTemplates, intn: rand.IntN}
}

// WithPicker replaces the random index source.
func (s *StaticStrategy) WithPicker(intn func(n int) int) *StaticStrategy {
	s.intn = intn
	return s
}

// Name implements Strategy.
func (s *StaticStrategy) Name() string { return TierStatic }

// Attempt implements Strategy.
func (s *StaticStrategy) Attempt(_ context.Context, req Request) (Result, error) {
	data := staticData{Topic: req.Snapshot.Topic}
	if prior := req.Snapshot.LastSpeaker(); prior != "" && prior != req.Participant.ID {
		data.Prior = speakerName(req.Snapshot, prior)
	}
	if data.Topic == "" {
		data.Topic = "this question"
	}

	tmpl := s.templates[s.intn(len(s.templates))]
	text, err := util.RenderTemplate(tmpl, data)
	if err != nil {
		text = fmt.Sprintf("I would like to hear more about %s.", data.Topic)
	}
	return Result{
		Statement:  text,
		Confidence: StaticConfidence,
		Tier:       TierStatic,
	}, nil
}

var (
	_ Strategy = (*DelegateStrategy)(nil)
	_ Strategy = (*CompletionStrategy)(nil)
	_ Strategy = (*StaticStrategy)(nil)
)
