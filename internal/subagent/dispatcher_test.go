package subagent

import (
	"context"
	"strings"
	"testing"
	"time"
)

type recordingRunner struct {
	calls  int
	last   Request
	result Result
}

func (r *recordingRunner) Run(_ context.Context, req Request) Result {
	r.calls++
	r.last = req
	return r.result
}

type availability bool

func (a availability) Available() bool { return bool(a) }

func newTestDispatcher(mcp, cli *recordingRunner, cliReady bool, defaults Defaults) *Dispatcher {
	return NewDispatcher(mcp, cli, availability(cliReady), defaults, nil)
}

func TestDispatcherExplicitModeWins(t *testing.T) {
	mcp := &recordingRunner{result: Result{Success: true, ModeUsed: ModeMCP}}
	cli := &recordingRunner{result: Result{Success: true, ModeUsed: ModeCLI}}
	d := newTestDispatcher(mcp, cli, true, Defaults{Mode: ModeAuto})

	// Explicit cli even though tool servers are set.
	result := d.Run(context.Background(), Request{
		Prompt: "p", Mode: ModeCLI, ToolServers: []string{"email"},
	})
	if result.ModeUsed != ModeCLI || cli.calls != 1 || mcp.calls != 0 {
		t.Fatalf("explicit cli not honored: %+v", result)
	}
}

func TestDispatcherAutoPrefersServers(t *testing.T) {
	mcp := &recordingRunner{result: Result{Success: true}}
	cli := &recordingRunner{result: Result{Success: true}}
	d := newTestDispatcher(mcp, cli, true, Defaults{Mode: ModeAuto})

	d.Run(context.Background(), Request{Prompt: "p", ToolServers: []string{"email"}, AllowedTools: []string{"Bash"}})
	if mcp.calls != 1 || cli.calls != 0 {
		t.Fatal("tool servers should select mcp mode")
	}
}

func TestDispatcherAutoUsesCLIForAllowedTools(t *testing.T) {
	mcp := &recordingRunner{result: Result{Success: true}}
	cli := &recordingRunner{result: Result{Success: true}}
	d := newTestDispatcher(mcp, cli, true, Defaults{Mode: ModeAuto})

	d.Run(context.Background(), Request{Prompt: "p", AllowedTools: []string{"Bash"}})
	if cli.calls != 1 || mcp.calls != 0 {
		t.Fatal("allowed tools with available binary should select cli mode")
	}
}

func TestDispatcherAutoFallsBackToMCPWithoutBinary(t *testing.T) {
	mcp := &recordingRunner{result: Result{Success: true}}
	cli := &recordingRunner{result: Result{Success: true}}
	d := newTestDispatcher(mcp, cli, false, Defaults{Mode: ModeAuto})

	d.Run(context.Background(), Request{Prompt: "p", AllowedTools: []string{"Bash"}})
	if mcp.calls != 1 || cli.calls != 0 {
		t.Fatal("missing binary should fall back to mcp")
	}

	// Nothing specified at all: mcp with the default server set.
	d.Run(context.Background(), Request{Prompt: "p"})
	if mcp.calls != 2 {
		t.Fatal("bare request should select mcp")
	}
}

func TestDispatcherAppliesDefaults(t *testing.T) {
	mcp := &recordingRunner{result: Result{Success: true}}
	d := newTestDispatcher(mcp, &recordingRunner{}, false, Defaults{
		Mode:     ModeAuto,
		Timeout:  42 * time.Second,
		MaxTurns: 7,
		Model:    "claude-sonnet-4-20250514",
	})

	d.Run(context.Background(), Request{Prompt: "p"})
	if mcp.last.Timeout != 42*time.Second || mcp.last.MaxTurns != 7 {
		t.Fatalf("defaults not applied: %+v", mcp.last)
	}
	if mcp.last.Model != "claude-sonnet-4-20250514" {
		t.Fatalf("model default not applied: %q", mcp.last.Model)
	}

	// Request values beat configured defaults.
	d.Run(context.Background(), Request{Prompt: "p", MaxTurns: 2, Timeout: time.Second, Model: "other"})
	if mcp.last.MaxTurns != 2 || mcp.last.Timeout != time.Second || mcp.last.Model != "other" {
		t.Fatalf("request overrides lost: %+v", mcp.last)
	}
}

func TestDispatcherHardcodedFallbacks(t *testing.T) {
	mcp := &recordingRunner{result: Result{Success: true}}
	d := newTestDispatcher(mcp, &recordingRunner{}, false, Defaults{Mode: ModeAuto})

	d.Run(context.Background(), Request{Prompt: "p"})
	if mcp.last.Timeout != fallbackTimeout || mcp.last.MaxTurns != fallbackMaxTurns {
		t.Fatalf("hardcoded fallbacks not applied: %+v", mcp.last)
	}
}

func TestDispatcherDepthCap(t *testing.T) {
	mcp := &recordingRunner{result: Result{Success: true}}
	d := newTestDispatcher(mcp, &recordingRunner{}, false, Defaults{Mode: ModeAuto})

	result := d.Run(context.Background(), Request{Prompt: "p", Depth: MaxDepth})
	if result.Success {
		t.Fatal("run at max depth should fail")
	}
	if !strings.Contains(result.Error, "recursion depth") {
		t.Fatalf("unexpected error: %q", result.Error)
	}
	if mcp.calls != 0 {
		t.Fatal("executor should not run past the depth cap")
	}
}

// nestingRunner simulates a tool that spawns a nested subagent on every run.
type nestingRunner struct {
	d       *Dispatcher
	started int
	ended   int
}

func (r *nestingRunner) Run(ctx context.Context, req Request) Result {
	r.started++
	defer func() { r.ended++ }()

	nested := r.d.Run(ctx, Request{Prompt: req.Prompt, Mode: ModeMCP, Depth: req.Depth + 1})
	if !nested.Success {
		return Result{Success: true, Output: "stopped at depth boundary: " + nested.Error}
	}
	return Result{Success: true, Output: nested.Output}
}

func TestDispatcherNestedRunsStopAtDepthAndUnwind(t *testing.T) {
	runner := &nestingRunner{}
	d := NewDispatcher(runner, &recordingRunner{}, availability(false), Defaults{Mode: ModeAuto}, nil)
	runner.d = d

	result := d.Run(context.Background(), Request{Prompt: "spawn", Mode: ModeMCP, Depth: 0})

	if !result.Success {
		t.Fatalf("top-level run should succeed: %+v", result)
	}
	// Depths 0, 1, 2 execute; the attempt at depth 3 is rejected.
	if runner.started != MaxDepth {
		t.Fatalf("expected %d nested executions, got %d", MaxDepth, runner.started)
	}
	if runner.ended != runner.started {
		t.Fatalf("nesting did not unwind cleanly: started=%d ended=%d", runner.started, runner.ended)
	}
	if !strings.Contains(result.Output, "depth boundary") {
		t.Fatalf("depth rejection not propagated: %q", result.Output)
	}
}

type countingObserver struct {
	started, finished int
	lastMode          string
}

func (o *countingObserver) RunStarted(mode string, _ Request) { o.started++; o.lastMode = mode }
func (o *countingObserver) RunFinished(string, Request, Result) {
	o.finished++
}

func TestDispatcherObserver(t *testing.T) {
	mcp := &recordingRunner{result: Result{Success: true}}
	obs := &countingObserver{}
	d := NewDispatcher(mcp, &recordingRunner{}, availability(false), Defaults{Mode: ModeAuto}, nil, WithObserver(obs))

	d.Run(context.Background(), Request{Prompt: "p"})
	if obs.started != 1 || obs.finished != 1 || obs.lastMode != ModeMCP {
		t.Fatalf("observer not invoked: %+v", obs)
	}
}
