package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hupe1980/agora/core"
	"github.com/hupe1980/agora/logging"
)

// RecorderOptions configures a Recorder.
type RecorderOptions struct {
	QueueSize     int
	AppendTimeout time.Duration
	Logger        logging.Logger
	Now           func() time.Time
}

// Recorder appends entries to a core.Ledger from a background goroutine.
// Record never blocks: when the queue is full the entry is dropped and
// logged.
type Recorder struct {
	ledger core.Ledger
	opts   RecorderOptions
	queue  chan core.LedgerEntry

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewRecorder starts a recorder for l.
func NewRecorder(l core.Ledger, optFns ...func(o *RecorderOptions)) *Recorder {
	opts := RecorderOptions{QueueSize: 256, AppendTimeout: 5 * time.Second, Now: time.Now}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	r := &Recorder{
		ledger: l,
		opts:   opts,
		queue:  make(chan core.LedgerEntry, opts.QueueSize),
		done:   make(chan struct{}),
	}
	go r.loop()
	return r
}

func (r *Recorder) loop() {
	defer close(r.done)
	for entry := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), r.opts.AppendTimeout)
		if err := r.ledger.Append(ctx, entry); err != nil {
			r.opts.Logger.Warn("ledger.append.failed", "session", entry.SessionID, "kind", entry.Kind, "entry", entry.ID, "error", err)
		}
		cancel()
	}
}

// Record encodes v as JSON and queues it.
func (r *Recorder) Record(sessionID string, kind core.LedgerKind, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode ledger %s: %w", kind, err)
	}
	entry := core.LedgerEntry{
		ID:        ulid.Make().String(),
		SessionID: sessionID,
		Kind:      kind,
		Data:      data,
		CreatedAt: r.opts.Now(),
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrRecorderClosed
	}
	select {
	case r.queue <- entry:
		return nil
	default:
		r.opts.Logger.Warn("ledger.queue.full", "session", sessionID, "kind", kind)
		return ErrQueueFull
	}
}

// Close stops accepting entries and waits until queued ones are appended
// or ctx is done.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
