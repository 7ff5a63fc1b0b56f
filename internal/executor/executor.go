// Package executor runs a single task end to end: history record, shell or
// subagent execution, finalization and best-effort notification.
package executor

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"cronhub/internal/async"
	"cronhub/internal/logging"
	"cronhub/internal/store"
	"cronhub/internal/subagent"
)

// defaultShellTimeout is the hard limit for shell tasks. On expiry the
// process is killed and the execution fails.
const defaultShellTimeout = 300 * time.Second

// TaskStore is the persistence slice the executor needs.
type TaskStore interface {
	GetTask(ctx context.Context, id string) (*store.Task, error)
	InsertExecution(ctx context.Context, taskID string) (*store.Execution, error)
	FinalizeExecution(ctx context.Context, exec *store.Execution) error
}

// SubagentRunner dispatches subagent requests.
type SubagentRunner interface {
	Run(ctx context.Context, req subagent.Request) subagent.Result
}

// Notifier delivers completion notifications. Implementations swallow their
// own errors.
type Notifier interface {
	Notify(ctx context.Context, task *store.Task, exec *store.Execution)
}

// Executor runs tasks. Safe for concurrent use.
type Executor struct {
	store        TaskStore
	subagents    SubagentRunner
	notifier     Notifier
	logger       logging.Logger
	shellTimeout time.Duration
}

// New builds an executor. notifier may be nil.
func New(st TaskStore, subagents SubagentRunner, notifier Notifier, logger logging.Logger) *Executor {
	return &Executor{
		store:        st,
		subagents:    subagents,
		notifier:     notifier,
		logger:       logging.OrNop(logger),
		shellTimeout: defaultShellTimeout,
	}
}

// Execute runs the task once and returns its finalized execution record.
// An error is returned only when the task cannot be loaded or the history
// record cannot be written; task-level failures land in the record itself.
func (e *Executor) Execute(ctx context.Context, taskID string) (*store.Execution, error) {
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	record, err := e.store.InsertExecution(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("record execution start: %w", err)
	}
	e.logger.Info("Executing task %s (%s, type=%s)", task.Name, task.ID, task.Type)

	switch task.Type {
	case store.TaskTypeShell:
		e.runShell(ctx, task, record)
	case store.TaskTypeSubagent:
		e.runSubagent(ctx, task, record)
	default:
		record.Status = store.ExecStatusFailed
		record.Error = fmt.Sprintf("unknown task type %q", task.Type)
	}

	now := time.Now().UTC()
	record.FinishedAt = &now
	if err := e.store.FinalizeExecution(ctx, record); err != nil {
		return nil, fmt.Errorf("finalize execution: %w", err)
	}
	e.logger.Info("Task %s finished: %s", task.Name, record.Status)

	if e.notifier != nil {
		notifyCtx := context.WithoutCancel(ctx)
		async.Go(e.logger, "notify-"+task.ID, func() {
			e.notifier.Notify(notifyCtx, task, record)
		})
	}
	return record, nil
}

// runShell executes the task command under sh -c with a hard timeout.
func (e *Executor) runShell(ctx context.Context, task *store.Task, record *store.Execution) {
	runCtx, cancel := context.WithTimeout(ctx, e.shellTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", task.Command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = 5 * time.Second

	err := cmd.Run()
	record.Output = strings.TrimRight(stdout.String(), "\n")
	record.Error = strings.TrimRight(stderr.String(), "\n")

	switch {
	case runCtx.Err() == context.DeadlineExceeded:
		record.Status = store.ExecStatusFailed
		record.Error = joinNonEmpty(record.Error, fmt.Sprintf("killed after %s timeout", e.shellTimeout))
	case err != nil:
		record.Status = store.ExecStatusFailed
		record.Error = joinNonEmpty(record.Error, err.Error())
	default:
		record.Status = store.ExecStatusSuccess
	}
}

// runSubagent delegates to the dispatcher and copies the normalized result
// into the record.
func (e *Executor) runSubagent(ctx context.Context, task *store.Task, record *store.Execution) {
	result := e.subagents.Run(ctx, subagent.Request{
		Prompt:       task.Prompt,
		Mode:         task.SubagentMode,
		ToolServers:  task.ToolServers,
		AllowedTools: task.AllowedTools,
		SystemPrompt: task.SystemPrompt,
		MaxTurns:     task.MaxTurns,
		Depth:        0,
	})

	record.Output = result.Output
	record.Error = result.Error
	record.ToolCalls = result.ToolCalls
	record.TurnsUsed = result.TurnsUsed
	record.ModeUsed = result.ModeUsed
	if result.Success {
		record.Status = store.ExecStatusSuccess
		record.Output = joinNonEmpty(record.Output, toolCallSummary(result.ToolCalls))
	} else {
		record.Status = store.ExecStatusFailed
	}
}

// toolCallSummary renders one line per tool call for the execution output.
func toolCallSummary(calls []store.ToolCallEntry) string {
	if len(calls) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Tool calls:")
	for _, call := range calls {
		b.WriteString("\n- ")
		b.WriteString(call.Tool)
		if call.Success {
			b.WriteString(" (ok)")
		} else if call.Error != "" {
			fmt.Fprintf(&b, " (failed: %s)", call.Error)
		} else {
			b.WriteString(" (failed)")
		}
	}
	return b.String()
}

func joinNonEmpty(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	return a + "\n" + b
}
