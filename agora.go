// Package agora provides a high-level façade over the deliberation engine.
// Most applications interact with this package by:
//  1. Creating an Agora via New() or FromConfig()
//  2. Starting sessions from the participant registry (CreateSession)
//  3. Either running the moderator loop in the background (Start) or
//     driving one debate to completion (Deliberate)
//
// The façade owns the event bus, the ledger recorder and the engine and
// releases them in Close.
package agora

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"

	"github.com/hupe1980/agora/config"
	"github.com/hupe1980/agora/core"
	"github.com/hupe1980/agora/engine"
	"github.com/hupe1980/agora/event"
	"github.com/hupe1980/agora/invoker"
	"github.com/hupe1980/agora/ledger"
	"github.com/hupe1980/agora/logging"
	"github.com/hupe1980/agora/memory"
	"github.com/hupe1980/agora/model"
	"github.com/hupe1980/agora/moderator"
	"github.com/hupe1980/agora/pool"
	"github.com/hupe1980/agora/registry"
	"github.com/hupe1980/agora/runner"
	"github.com/hupe1980/agora/scheduler"
	"github.com/hupe1980/agora/tool"
)

// Options configures the Agora instance.
type Options struct {
	// Config holds every tunable. Defaults to config.Default().
	Config *config.Config
	// Registry is the closed set of participants. Defaults to the built in panel.
	Registry *registry.Registry
	// Model enables the completion tier and, with Config.Scheduler.ModelBids,
	// model bids. Nil leaves only the static tier.
	Model model.Model
	// Delegates enables the delegate tier.
	Delegates *tool.Registry
	// Ledger receives statements and outcomes. Nil disables recording.
	Ledger core.Ledger
	// Policy overrides the interruption policy.
	Policy moderator.InterruptionPolicy
	Logger logging.Logger
}

// Agora is the high-level façade aggregating the engine and its services.
type Agora struct {
	opts     Options
	engine   *engine.Engine
	bus      *event.Bus
	recorder *ledger.Recorder
	runner   *runner.Runner
	closers  []io.Closer
}

// New creates an Agora with optional overrides.
func New(optFns ...func(o *Options)) *Agora {
	opts := Options{
		Config:   config.Default(),
		Registry: registry.Default(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	cfg := opts.Config

	bus := event.NewBus(func(o *event.Options) { o.Logger = opts.Logger })

	var recorder *ledger.Recorder
	if opts.Ledger != nil {
		recorder = ledger.NewRecorder(opts.Ledger, func(o *ledger.RecorderOptions) { o.Logger = opts.Logger })
	}

	var strategies []invoker.Strategy
	if opts.Delegates != nil {
		strategies = append(strategies, invoker.NewDelegateStrategy(opts.Delegates, opts.Logger))
	}
	if opts.Model != nil {
		strategies = append(strategies, invoker.NewCompletionStrategy(opts.Model, func(o *invoker.CompletionOptions) {
			o.MaxAttempts = cfg.Invoker.MaxAttempts
			o.InitialInterval = cfg.Invoker.InitialInterval
			o.MaxInterval = cfg.Invoker.MaxInterval
			o.MaxTokens = cfg.Invoker.MaxTokens
			o.Logger = opts.Logger
		}))
	}

	eng := engine.New(func(o *engine.Options) {
		o.Config = cfg.Engine
		o.Pool = pool.New(func(po *pool.Options) {
			po.Capacity = cfg.Pool.Capacity
			po.IdleTimeout = cfg.Pool.IdleTimeout
			po.ModelCallBudget = cfg.Pool.ModelCallBudget
			po.Logger = opts.Logger
		})
		o.Scheduler = scheduler.New(func(so *scheduler.Options) {
			if cfg.Scheduler.ModelBids {
				so.Model = opts.Model
			}
			so.BidTTL = cfg.Scheduler.BidTTL
			so.Logger = opts.Logger
		})
		o.Invoker = invoker.New(strategies, func(vo *invoker.Options) {
			vo.CacheTTL = cfg.Invoker.CacheTTL
			vo.Logger = opts.Logger
		})
		o.Moderator = moderator.New(func(mo *moderator.Options) {
			mo.Config = cfg.Moderator
			mo.Policy = opts.Policy
			mo.Logger = opts.Logger
		})
		o.Memory = memory.NewInMemoryStore(memory.DefaultHistoryCap)
		o.Broadcaster = bus
		o.Recorder = recorder
		o.Logger = opts.Logger
	})

	return &Agora{
		opts:     opts,
		engine:   eng,
		bus:      bus,
		recorder: recorder,
		runner: runner.New(eng, bus, func(o *runner.Options) {
			o.TickInterval = cfg.Engine.TickInterval
			o.Logger = opts.Logger
		}),
	}
}

// FromConfig wires an Agora from cfg: the participant registry, the model
// provider, MCP delegates and the JSON lines ledger.
func FromConfig(cfg *config.Config, fsys afero.Fs, logger logging.Logger) (*Agora, error) {
	reg := registry.Default()
	if cfg.Participants.Glob != "" {
		loaded, err := registry.Load(fsys, cfg.Participants.Glob)
		if err != nil {
			return nil, err
		}
		reg = loaded
	}

	m, err := NewModel(cfg.Model)
	if err != nil {
		return nil, err
	}

	var closers []io.Closer
	var delegates *tool.Registry
	if len(cfg.Delegates) > 0 {
		delegates = tool.NewRegistry()
		for _, d := range NewDelegates(cfg.Delegates) {
			delegates.Register(d)
			closers = append(closers, d)
		}
	}

	var l core.Ledger
	if cfg.Ledger.Path != "" {
		f, err := fsys.OpenFile(cfg.Ledger.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open ledger: %w", err)
		}
		closers = append(closers, f)
		l = ledger.NewWriterLedger(f)
	}

	a := New(func(o *Options) {
		o.Config = cfg
		o.Registry = reg
		o.Model = m
		o.Delegates = delegates
		o.Ledger = l
		o.Logger = logger
	})
	a.closers = closers
	return a, nil
}

// Engine returns the underlying engine.
func (a *Agora) Engine() *engine.Engine { return a.engine }

// Bus returns the event bus.
func (a *Agora) Bus() *event.Bus { return a.bus }

// Registry returns the participant registry.
func (a *Agora) Registry() *registry.Registry { return a.opts.Registry }

// Config returns the active configuration.
func (a *Agora) Config() *config.Config { return a.opts.Config }

// CreateSession starts a session with the given participant ids (all
// registered participants when empty). Zero protocol fields take the
// configured defaults.
func (a *Agora) CreateSession(ctx context.Context, topic string, participantIDs []string, protocol core.Protocol) (core.Snapshot, error) {
	participants, err := a.opts.Registry.Resolve(participantIDs)
	if err != nil {
		return core.Snapshot{}, err
	}
	return a.engine.CreateSession(ctx, topic, a.protocol(protocol), participants)
}

// Deliberate runs one debate to completion and returns its final snapshot
// and every event it produced. It must not be combined with Start.
func (a *Agora) Deliberate(ctx context.Context, topic string, participantIDs []string, protocol core.Protocol) (core.Snapshot, []event.Envelope, error) {
	participants, err := a.opts.Registry.Resolve(participantIDs)
	if err != nil {
		return core.Snapshot{}, nil, err
	}
	return a.runner.RunSync(ctx, topic, a.protocol(protocol), participants)
}

// Stream starts a debate like Deliberate but streams its events.
func (a *Agora) Stream(ctx context.Context, topic string, participantIDs []string, protocol core.Protocol) (string, <-chan event.Envelope, <-chan error, error) {
	participants, err := a.opts.Registry.Resolve(participantIDs)
	if err != nil {
		return "", nil, nil, err
	}
	return a.runner.Run(ctx, topic, a.protocol(protocol), participants)
}

// Start runs the moderator loop until ctx is done.
func (a *Agora) Start(ctx context.Context) error {
	err := a.engine.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close stops in-flight turns, flushes the ledger and closes the bus.
func (a *Agora) Close(ctx context.Context) error {
	var errs []error
	if err := a.engine.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.recorder != nil {
		if err := a.recorder.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.bus.Close(); err != nil {
		errs = append(errs, err)
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *Agora) protocol(p core.Protocol) core.Protocol {
	d := a.opts.Config.Protocol
	if p.TurnDurationSeconds <= 0 {
		p.TurnDurationSeconds = d.TurnDurationSeconds
	}
	if p.MaxTurns <= 0 {
		p.MaxTurns = d.MaxTurns
	}
	if p.ConsensusThresholdPercent <= 0 {
		p.ConsensusThresholdPercent = d.ConsensusThresholdPercent
	}
	if p.InterventionStyle == "" {
		p.InterventionStyle = d.InterventionStyle
	}
	return p.WithDefaults()
}
