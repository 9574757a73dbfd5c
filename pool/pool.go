package pool

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/agora/core"
	"github.com/hupe1980/agora/logging"
)

// Defaults.
const (
	DefaultCapacity    = 10
	DefaultIdleTimeout = 30 * time.Minute
)

// EvictReason tells hooks why a session left the pool.
type EvictReason string

const (
	ReasonIdle    EvictReason = "idle"
	ReasonDeleted EvictReason = "deleted"
)

// EvictFunc is called after a session has been removed and closed.
type EvictFunc func(s *core.Session, reason EvictReason)

// Stats describes one live session for observability.
type Stats struct {
	ID           string        `json:"id"`
	Topic        string        `json:"topic"`
	Phase        core.Phase    `json:"phase"`
	Participants int           `json:"participants"`
	Size         int           `json:"size"`
	Consensus    int           `json:"consensus"`
	Age          time.Duration `json:"age"`
	Idle         time.Duration `json:"idle"`
}

// Options configures a Pool.
type Options struct {
	Capacity    int
	IdleTimeout time.Duration
	// ModelCallBudget is applied to every new session (0 = unlimited).
	ModelCallBudget int
	Now             func() time.Time
	NewID           func() string
	Logger          logging.Logger
}

// Pool is a bounded, concurrency safe registry of live sessions.
type Pool struct {
	opts Options

	mu       sync.RWMutex
	sessions map[string]*core.Session
	hooks    []EvictFunc
}

// New creates an empty pool.
func New(optFns ...func(o *Options)) *Pool {
	opts := Options{
		Capacity:    DefaultCapacity,
		IdleTimeout: DefaultIdleTimeout,
		Now:         time.Now,
		NewID:       uuid.NewString,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	return &Pool{opts: opts, sessions: make(map[string]*core.Session)}
}

// OnEvict registers a hook run after idle eviction or deletion.
func (p *Pool) OnEvict(fn EvictFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hooks = append(p.hooks, fn)
}

// Capacity returns the configured maximum number of live sessions.
func (p *Pool) Capacity() int { return p.opts.Capacity }

// Create starts a session. At capacity, idle sessions are evicted first; if
// the pool is still full ErrCapacityExceeded is returned.
func (p *Pool) Create(topic string, protocol core.Protocol, participants []core.Participant) (*core.Session, error) {
	if len(participants) == 0 {
		return nil, fmt.Errorf("session requires at least one participant")
	}

	p.mu.Lock()
	var evicted []*core.Session
	if len(p.sessions) >= p.opts.Capacity {
		evicted = p.sweepLocked()
	}
	if len(p.sessions) >= p.opts.Capacity {
		p.mu.Unlock()
		p.notify(evicted, ReasonIdle)
		return nil, fmt.Errorf("%w: %d live sessions", core.ErrCapacityExceeded, p.opts.Capacity)
	}

	id := p.opts.NewID()
	for _, exists := p.sessions[id]; exists; _, exists = p.sessions[id] {
		id = p.opts.NewID()
	}
	sess := core.NewSession(id, topic, protocol, participants, func(o *core.SessionOptions) {
		o.Now = p.opts.Now
		o.ModelCallBudget = p.opts.ModelCallBudget
	})
	p.sessions[id] = sess
	p.mu.Unlock()

	p.notify(evicted, ReasonIdle)
	p.opts.Logger.Info("pool.session.created", "session", id, "topic", topic, "participants", len(participants))
	return sess, nil
}

// Get returns a live session and refreshes its last activity.
func (p *Pool) Get(id string) (*core.Session, error) {
	sess, err := p.Peek(id)
	if err != nil {
		return nil, err
	}
	sess.Touch()
	return sess, nil
}

// Peek returns a live session without refreshing its last activity.
func (p *Pool) Peek(id string) (*core.Session, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	sess, ok := p.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, id)
	}
	return sess, nil
}

// Delete removes and closes a session.
func (p *Pool) Delete(id string) error {
	p.mu.Lock()
	sess, ok := p.sessions[id]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", core.ErrSessionNotFound, id)
	}
	delete(p.sessions, id)
	p.mu.Unlock()

	sess.Close()
	p.notify([]*core.Session{sess}, ReasonDeleted)
	return nil
}

// Sweep evicts every session idle beyond the timeout and returns how many
// were removed.
func (p *Pool) Sweep() int {
	p.mu.Lock()
	evicted := p.sweepLocked()
	p.mu.Unlock()
	p.notify(evicted, ReasonIdle)
	return len(evicted)
}

// sweepLocked removes and closes idle sessions; caller must hold the write lock.
func (p *Pool) sweepLocked() []*core.Session {
	now := p.opts.Now()
	var evicted []*core.Session
	for id, sess := range p.sessions {
		if now.Sub(sess.LastActivity()) > p.opts.IdleTimeout {
			delete(p.sessions, id)
			sess.Close()
			evicted = append(evicted, sess)
		}
	}
	return evicted
}

func (p *Pool) notify(sessions []*core.Session, reason EvictReason) {
	if len(sessions) == 0 {
		return
	}
	p.mu.RLock()
	hooks := append([]EvictFunc(nil), p.hooks...)
	p.mu.RUnlock()
	for _, sess := range sessions {
		p.opts.Logger.Info("pool.session.evicted", "session", sess.ID(), "reason", reason)
		for _, h := range hooks {
			h(sess, reason)
		}
	}
}

// Len returns the number of live sessions.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.sessions)
}

// List returns live sessions ordered by creation time.
func (p *Pool) List() []*core.Session {
	p.mu.RLock()
	out := make([]*core.Session, 0, len(p.sessions))
	for _, s := range p.sessions {
		out = append(out, s)
	}
	p.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt().Equal(out[j].CreatedAt()) {
			return out[i].ID() < out[j].ID()
		}
		return out[i].CreatedAt().Before(out[j].CreatedAt())
	})
	return out
}

// Stats reports age, idle time and size for every live session.
func (p *Pool) Stats() []Stats {
	now := p.opts.Now()
	sessions := p.List()
	out := make([]Stats, 0, len(sessions))
	for _, s := range sessions {
		snap := s.Snapshot()
		out = append(out, Stats{
			ID:           snap.ID,
			Topic:        snap.Topic,
			Phase:        snap.Phase,
			Participants: len(snap.Participants),
			Size:         snap.TurnCount,
			Consensus:    snap.Consensus,
			Age:          snap.Age(now),
			Idle:         snap.Idle(now),
		})
	}
	return out
}
