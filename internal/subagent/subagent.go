// Package subagent runs AI subagent tasks in one of two modes: a direct
// agentic loop against the model API with MCP tools (mcp), or a delegated
// run through the claude CLI binary (cli).
package subagent

import (
	"time"

	"cronhub/internal/store"
)

// Execution modes.
const (
	ModeAuto = "auto"
	ModeMCP  = "mcp"
	ModeCLI  = "cli"
)

// MaxDepth caps nested subagent spawning. A run entered at depth MaxDepth
// fails immediately instead of starting another level.
const MaxDepth = 3

// Request describes one subagent run. Zero values fall back to configured
// defaults inside the dispatcher.
type Request struct {
	Prompt       string
	Mode         string
	ToolServers  []string
	AllowedTools []string
	SystemPrompt string
	MaxTurns     int
	Timeout      time.Duration
	Model        string

	// ExcludeTools withholds additional tool names from the model on top
	// of the always-excluded guard-prefixed tools. Never mutated.
	ExcludeTools []string

	// Depth is the current nesting level, 0 for a top-level run. Callers
	// spawning nested runs pass their own depth plus one.
	Depth int
}

// Result is the normalized outcome of a run in either mode.
type Result struct {
	Success   bool
	Output    string
	Error     string
	ModeUsed  string
	ToolCalls []store.ToolCallEntry
	TurnsUsed int
}

func failure(mode, message string) Result {
	return Result{Success: false, Error: message, ModeUsed: mode}
}
