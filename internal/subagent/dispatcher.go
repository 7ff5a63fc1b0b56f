package subagent

import (
	"context"
	"fmt"
	"time"

	"cronhub/internal/logging"
)

// Fallbacks when neither the request nor the configuration sets a value.
const (
	fallbackTimeout  = 300 * time.Second
	fallbackMaxTurns = 10
)

// Runner executes a fully-resolved request in one mode. Both executors
// implement it.
type Runner interface {
	Run(ctx context.Context, req Request) Result
}

// Availability gates automatic CLI selection.
type Availability interface {
	Available() bool
}

// Defaults carries the configured fallback values applied to requests that
// leave fields unset.
type Defaults struct {
	Mode     string
	Timeout  time.Duration
	MaxTurns int
	Model    string
}

// Dispatcher routes requests to the right executor and applies defaults.
// Mode resolution: an explicit mode always wins; auto picks mcp when tool
// servers are named, cli when only allowed tools are named and the binary
// resolves, and otherwise mcp with the default server set.
type Dispatcher struct {
	mcp      Runner
	cli      Runner
	cliReady Availability
	defaults Defaults
	logger   logging.Logger
	observer Observer
}

// Option customizes dispatcher construction.
type Option func(*Dispatcher)

// WithObserver attaches a run observer. Nil observers are ignored.
func WithObserver(observer Observer) Option {
	return func(d *Dispatcher) {
		if observer != nil {
			d.observer = observer
		}
	}
}

// NewDispatcher wires both executors. cliReady is consulted for automatic
// mode selection; passing the CLIExecutor itself is the usual setup.
func NewDispatcher(mcp Runner, cli Runner, cliReady Availability, defaults Defaults, logger logging.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		mcp:      mcp,
		cli:      cli,
		cliReady: cliReady,
		defaults: defaults,
		logger:   logging.OrNop(logger),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run resolves mode and defaults, enforces the depth cap and executes.
func (d *Dispatcher) Run(ctx context.Context, req Request) Result {
	if req.Depth < 0 {
		return failure("", "negative recursion depth")
	}
	if req.Depth >= MaxDepth {
		return failure("", fmt.Sprintf("maximum recursion depth %d exceeded", MaxDepth))
	}

	d.applyDefaults(&req)
	mode := d.resolveMode(req)

	d.logger.Info("Subagent run: mode=%s depth=%d turns=%d timeout=%s",
		mode, req.Depth, req.MaxTurns, req.Timeout)
	d.observer.RunStarted(mode, req)

	var result Result
	switch mode {
	case ModeCLI:
		result = d.cli.Run(ctx, req)
	default:
		result = d.mcp.Run(ctx, req)
	}
	if result.ModeUsed == "" {
		result.ModeUsed = mode
	}

	d.observer.RunFinished(mode, req, result)
	return result
}

func (d *Dispatcher) applyDefaults(req *Request) {
	if req.Timeout <= 0 {
		req.Timeout = d.defaults.Timeout
	}
	if req.Timeout <= 0 {
		req.Timeout = fallbackTimeout
	}
	if req.MaxTurns <= 0 {
		req.MaxTurns = d.defaults.MaxTurns
	}
	if req.MaxTurns <= 0 {
		req.MaxTurns = fallbackMaxTurns
	}
	if req.Model == "" {
		req.Model = d.defaults.Model
	}
}

func (d *Dispatcher) resolveMode(req Request) string {
	mode := req.Mode
	if mode == "" || mode == ModeAuto {
		mode = d.defaults.Mode
	}
	switch mode {
	case ModeMCP, ModeCLI:
		return mode
	}

	// Automatic selection.
	if len(req.ToolServers) > 0 {
		return ModeMCP
	}
	if len(req.AllowedTools) > 0 && d.cliReady != nil && d.cliReady.Available() {
		return ModeCLI
	}
	return ModeMCP
}
