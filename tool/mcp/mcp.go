// Package mcp provides a tool.Delegate backed by a Model Context Protocol
// server. The delegate connects lazily over streamable HTTP (or a local
// command over stdio) and calls a single named tool per invocation.
package mcp

import (
	"context"
	"fmt"
	"net/http"
	"os/exec"
	"strings"
	"sync"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hupe1980/agora/tool"
)

// Options configures a Delegate.
type Options struct {
	// Endpoint is the streamable HTTP endpoint of the server.
	Endpoint string
	// Command starts a local server over stdio when Endpoint is empty.
	Command []string
	// Transport, when set, is used as is (in-process pipes, custom transports).
	Transport sdkmcp.Transport
	// ToolName is the remote tool to call. Defaults to the delegate name.
	ToolName string
	// HTTPClient overrides the HTTP client used for Endpoint.
	HTTPClient *http.Client
	// ConnectTimeout bounds connection and tool discovery.
	ConnectTimeout time.Duration
	// RetryAfter is how long a failed connection is remembered before retrying.
	RetryAfter time.Duration
}

// Delegate calls a tool on an MCP server.
type Delegate struct {
	name   string
	opts   Options
	client *sdkmcp.Client

	mu         sync.Mutex
	session    *sdkmcp.ClientSession
	lastFailed time.Time
}

var _ tool.Delegate = (*Delegate)(nil)

// New creates a delegate. No connection is made until first use.
func New(name string, optFns ...func(o *Options)) *Delegate {
	opts := Options{
		ToolName:       name,
		ConnectTimeout: 10 * time.Second,
		RetryAfter:     30 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "agora", Version: "1.0.0"}, nil)
	return &Delegate{name: name, opts: opts, client: client}
}

// Name implements tool.Delegate.
func (d *Delegate) Name() string { return d.name }

// Available connects if needed and checks that the remote tool is listed.
func (d *Delegate) Available(ctx context.Context) bool {
	session, err := d.connect(ctx)
	if err != nil {
		return false
	}
	listCtx, cancel := context.WithTimeout(ctx, d.opts.ConnectTimeout)
	defer cancel()
	result, err := session.ListTools(listCtx, nil)
	if err != nil {
		d.reset()
		return false
	}
	for _, t := range result.Tools {
		if t.Name == d.opts.ToolName {
			return true
		}
	}
	return false
}

// Invoke calls the remote tool with the flattened request arguments.
func (d *Delegate) Invoke(ctx context.Context, req tool.Request) (tool.Response, error) {
	session, err := d.connect(ctx)
	if err != nil {
		return tool.Response{}, err
	}
	args, err := tool.ToArgs(req)
	if err != nil {
		return tool.Response{}, fmt.Errorf("invalid delegate arguments: %w", err)
	}

	result, err := session.CallTool(ctx, &sdkmcp.CallToolParams{Name: d.opts.ToolName, Arguments: args})
	if err != nil {
		d.reset()
		return tool.Response{}, fmt.Errorf("call %s: %w", d.opts.ToolName, err)
	}

	var out strings.Builder
	for _, content := range result.Content {
		if text, ok := content.(*sdkmcp.TextContent); ok {
			out.WriteString(text.Text)
		}
	}
	if result.IsError {
		msg := out.String()
		if msg == "" {
			msg = "tool execution failed"
		}
		return tool.Response{}, tool.NewDelegateError(d.name, msg, "remote")
	}
	return tool.Response{Content: strings.TrimSpace(out.String()), ToolsUsed: []string{d.opts.ToolName}}, nil
}

// Close terminates the session if one is open.
func (d *Delegate) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session == nil {
		return nil
	}
	err := d.session.Close()
	d.session = nil
	return err
}

func (d *Delegate) connect(ctx context.Context) (*sdkmcp.ClientSession, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session != nil {
		return d.session, nil
	}
	if !d.lastFailed.IsZero() && time.Since(d.lastFailed) < d.opts.RetryAfter {
		return nil, tool.NewDelegateError(d.name, "recently unreachable", "unavailable")
	}

	var transport sdkmcp.Transport
	switch {
	case d.opts.Transport != nil:
		transport = d.opts.Transport
	case d.opts.Endpoint != "":
		transport = &sdkmcp.StreamableClientTransport{Endpoint: d.opts.Endpoint, HTTPClient: d.opts.HTTPClient}
	case len(d.opts.Command) > 0:
		transport = &sdkmcp.CommandTransport{Command: exec.Command(d.opts.Command[0], d.opts.Command[1:]...)}
	default:
		return nil, tool.NewDelegateError(d.name, "no endpoint or command configured", "config")
	}

	connectCtx, cancel := context.WithTimeout(ctx, d.opts.ConnectTimeout)
	defer cancel()
	session, err := d.client.Connect(connectCtx, transport, nil)
	if err != nil {
		d.lastFailed = time.Now()
		return nil, fmt.Errorf("connect %s: %w", d.name, err)
	}
	d.session = session
	d.lastFailed = time.Time{}
	return session, nil
}

func (d *Delegate) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session != nil {
		_ = d.session.Close()
		d.session = nil
	}
	d.lastFailed = time.Now()
}
