package engine

import (
	"context"
	"sync"

	"github.com/hupe1980/agora/core"
	"github.com/hupe1980/agora/logging"
)

// CallbackType defines the lifecycle points where callbacks run.
type CallbackType string

const (
	// CallbackBeforeTurn runs after a speaker was chosen and before the
	// floor is handed over. An error vetoes the turn.
	CallbackBeforeTurn CallbackType = "before_turn"

	// CallbackAfterStatement runs after a statement was recorded and broadcast.
	CallbackAfterStatement CallbackType = "after_statement"

	// CallbackOnPhaseChange runs after every phase transition.
	CallbackOnPhaseChange CallbackType = "on_phase_change"

	// CallbackOnOutcome runs once when a session concludes.
	CallbackOnOutcome CallbackType = "on_outcome"

	// CallbackOnError runs when a moderator action or turn fails.
	CallbackOnError CallbackType = "on_error"
)

// CallbackContext carries the data relevant to one callback invocation.
// Fields not related to the callback type are zero.
type CallbackContext struct {
	SessionID     string
	ParticipantID string
	Snapshot      *core.Snapshot
	Statement     *core.Statement
	From, To      core.Phase
	Outcome       *core.Outcome
	Err           error
}

// Callback is a lifecycle hook.
type Callback interface {
	Type() CallbackType
	Execute(ctx context.Context, cc *CallbackContext) error
}

// FunctionCallback adapts a function to the Callback interface.
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, cc *CallbackContext) error
}

// NewFunctionCallback creates a callback of the given type.
func NewFunctionCallback(callbackType CallbackType, fn func(ctx context.Context, cc *CallbackContext) error) *FunctionCallback {
	return &FunctionCallback{callbackType: callbackType, fn: fn}
}

// Type implements Callback.
func (c *FunctionCallback) Type() CallbackType { return c.callbackType }

// Execute implements Callback.
func (c *FunctionCallback) Execute(ctx context.Context, cc *CallbackContext) error {
	return c.fn(ctx, cc)
}

// CallbackManager keeps callbacks per type and runs them in registration
// order. Safe for concurrent use.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates an empty manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{callbacks: make(map[CallbackType][]Callback)}
}

// RegisterCallback adds a callback.
func (cm *CallbackManager) RegisterCallback(cb Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks[cb.Type()] = append(cm.callbacks[cb.Type()], cb)
}

// Execute runs the callbacks of callbackType, stopping at the first error.
func (cm *CallbackManager) Execute(ctx context.Context, callbackType CallbackType, cc *CallbackContext) error {
	cm.mu.RLock()
	callbacks := append([]Callback(nil), cm.callbacks[callbackType]...)
	cm.mu.RUnlock()

	for _, cb := range callbacks {
		if err := cb.Execute(ctx, cc); err != nil {
			return err
		}
	}
	return nil
}

// LoggingCallback writes one debug line per callback invocation.
type LoggingCallback struct {
	callbackType CallbackType
	logger       logging.Logger
}

// NewLoggingCallback creates a logging callback for callbackType.
func NewLoggingCallback(callbackType CallbackType, logger logging.Logger) *LoggingCallback {
	return &LoggingCallback{callbackType: callbackType, logger: logging.OrNoOp(logger)}
}

// Type implements Callback.
func (c *LoggingCallback) Type() CallbackType { return c.callbackType }

// Execute implements Callback.
func (c *LoggingCallback) Execute(_ context.Context, cc *CallbackContext) error {
	args := []any{"session", cc.SessionID}
	if cc.ParticipantID != "" {
		args = append(args, "participant", cc.ParticipantID)
	}
	if cc.From != "" || cc.To != "" {
		args = append(args, "from", cc.From, "to", cc.To)
	}
	if cc.Err != nil {
		args = append(args, "error", cc.Err)
	}
	c.logger.Debug("engine.callback."+string(c.callbackType), args...)
	return nil
}
