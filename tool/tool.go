// Package tool implements the remote delegate capability: an external tool
// that may speak on behalf of a participant. Delegates are looked up by name
// in a Registry and may be unavailable at any time.
package tool

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/agora/core"
	"github.com/hupe1980/agora/internal/util"
	"github.com/hupe1980/agora/model"
)

// Request is the payload handed to a delegate: the rendered prompt plus the
// recent conversation.
type Request struct {
	SessionID     string          `json:"session_id"`
	ParticipantID string          `json:"participant_id"`
	Topic         string          `json:"topic"`
	Phase         core.Phase      `json:"phase"`
	Prompt        string          `json:"prompt"`
	Messages      []model.Message `json:"messages,omitempty"`
}

// Response is a delegate's contribution.
type Response struct {
	Content   string   `json:"content"`
	ToolsUsed []string `json:"tools_used,omitempty"`
	Citations []string `json:"citations,omitempty"`
}

// Args is the flat argument shape sent to remote delegate tools.
type Args struct {
	SessionID     string `json:"session_id" description:"Deliberation session id"`
	ParticipantID string `json:"participant_id" description:"Participant the delegate speaks for"`
	Topic         string `json:"topic" description:"Debate topic"`
	Phase         string `json:"phase" description:"Current debate phase"`
	Prompt        string `json:"prompt" description:"Rendered participant prompt"`
	Transcript    string `json:"transcript,omitempty" description:"Recent statements, one per line"`
}

// ArgsSchema is the JSON schema describing Args.
var ArgsSchema = util.CreateSchema(Args{})

// ToArgs flattens a request into the argument map sent to remote tools and
// validates it against ArgsSchema.
func ToArgs(req Request) (map[string]any, error) {
	transcript := ""
	for i, m := range req.Messages {
		if i > 0 {
			transcript += "\n"
		}
		if m.Name != "" {
			transcript += m.Name + ": "
		}
		transcript += m.Content
	}
	args := map[string]any{
		"session_id":     req.SessionID,
		"participant_id": req.ParticipantID,
		"topic":          req.Topic,
		"phase":          string(req.Phase),
		"prompt":         req.Prompt,
	}
	if transcript != "" {
		args["transcript"] = transcript
	}
	if err := util.ValidateParameters(args, ArgsSchema); err != nil {
		return nil, err
	}
	return args, nil
}

// Delegate is a remote tool able to produce a participant contribution.
//
// Implementations should:
//   - report reachability cheaply from Available
//   - honor context cancellation in Invoke
//   - be safe for concurrent use
type Delegate interface {
	// Name returns the unique identifier for this delegate.
	Name() string
	// Available reports whether the delegate can currently be reached.
	Available(ctx context.Context) bool
	// Invoke produces a contribution for the request.
	Invoke(ctx context.Context, req Request) (Response, error)
}

// DelegateError represents errors that occur during delegate execution.
type DelegateError struct {
	Delegate string `json:"delegate"` // Name of the delegate that failed
	Message  string `json:"message"`  // Error message
	Code     string `json:"code"`     // Error code for categorization
}

func (e *DelegateError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("delegate error [%s] in %s: %s", e.Code, e.Delegate, e.Message)
	}
	return fmt.Sprintf("delegate error in %s: %s", e.Delegate, e.Message)
}

// NewDelegateError creates a new DelegateError with the specified details.
func NewDelegateError(delegate, message, code string) *DelegateError {
	return &DelegateError{Delegate: delegate, Message: message, Code: code}
}

// Registry holds delegates by name. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	delegates map[string]Delegate
}

// NewRegistry creates a registry pre-populated with the given delegates.
func NewRegistry(delegates ...Delegate) *Registry {
	r := &Registry{delegates: make(map[string]Delegate, len(delegates))}
	for _, d := range delegates {
		r.Register(d)
	}
	return r
}

// Register adds or replaces a delegate.
func (r *Registry) Register(d Delegate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delegates[d.Name()] = d
}

// Get returns the named delegate or ErrDelegateUnavailable.
func (r *Registry) Get(name string) (Delegate, error) {
	if r == nil || name == "" {
		return nil, core.ErrDelegateUnavailable
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.delegates[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrDelegateUnavailable, name)
	}
	return d, nil
}

// Names returns registered delegate names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.delegates))
	for n := range r.delegates {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Func adapts a function to the Delegate interface. It is always available.
type Func struct {
	ID string
	Fn func(ctx context.Context, req Request) (Response, error)
}

// Name implements Delegate.
func (f Func) Name() string { return f.ID }

// Available implements Delegate.
func (f Func) Available(context.Context) bool { return f.Fn != nil }

// Invoke implements Delegate.
func (f Func) Invoke(ctx context.Context, req Request) (Response, error) { return f.Fn(ctx, req) }
