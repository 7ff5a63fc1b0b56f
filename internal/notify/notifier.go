// Package notify sends task completion emails through the tool hub. Every
// failure is logged and swallowed: notification problems must never change
// an execution's outcome.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cronhub/internal/hub"
	"cronhub/internal/logging"
	"cronhub/internal/store"
)

// emailTool is the hub tool used for delivery. Any connected server may
// provide it.
const emailTool = "imap_send_email"

// outputLimit caps how much task output is inlined into an email body.
const outputLimit = 4000

// ServerResolver supplies the connection configs for the default server set.
type ServerResolver interface {
	Resolve(ctx context.Context, names []string) ([]hub.ServerConfig, error)
}

// Notifier delivers completion notifications according to each task's policy.
type Notifier struct {
	resolver   ServerResolver
	logger     logging.Logger
	httpClient *http.Client
	timeout    time.Duration
}

// New builds a notifier. httpClient may be nil.
func New(resolver ServerResolver, httpClient *http.Client, logger logging.Logger) *Notifier {
	return &Notifier{
		resolver:   resolver,
		logger:     logging.OrNop(logger),
		httpClient: httpClient,
		timeout:    30 * time.Second,
	}
}

// Notify applies the task's policy and sends at most one email. It never
// returns an error.
func (n *Notifier) Notify(ctx context.Context, task *store.Task, exec *store.Execution) {
	policy := task.Notify
	if policy == nil || policy.Email == "" {
		return
	}
	switch exec.Status {
	case store.ExecStatusSuccess:
		if !policy.OnSuccess {
			return
		}
	case store.ExecStatusFailed:
		if !policy.OnFailure {
			return
		}
	default:
		return
	}

	subject, body := composeEmail(task, exec, policy)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()

	configs, err := n.resolver.Resolve(ctx, nil)
	if err != nil || len(configs) == 0 {
		n.logger.Warn("Notification for task %s skipped: no tool servers (%v)", task.ID, err)
		return
	}

	toolHub := hub.New(n.httpClient, n.logger)
	if err := toolHub.Connect(ctx, configs); err != nil {
		n.logger.Warn("Notification for task %s skipped: %v", task.ID, err)
		return
	}
	defer toolHub.Close(ctx)

	_, isError, err := toolHub.CallTool(ctx, emailTool, map[string]any{
		"to":      policy.Email,
		"subject": subject,
		"body":    body,
	})
	if err != nil || isError {
		n.logger.Warn("Notification for task %s failed: isError=%v err=%v", task.ID, isError, err)
		return
	}
	n.logger.Info("Notified %s about task %s (%s)", policy.Email, task.Name, exec.Status)
}

func composeEmail(task *store.Task, exec *store.Execution, policy *store.NotifyPolicy) (subject, body string) {
	subject = fmt.Sprintf("[cronhub] Task %q %s", task.Name, exec.Status)

	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s (%s)\n", task.Name, task.ID)
	fmt.Fprintf(&b, "Status: %s\n", exec.Status)
	fmt.Fprintf(&b, "Started: %s\n", exec.StartedAt.Format(time.RFC3339))
	if exec.FinishedAt != nil {
		fmt.Fprintf(&b, "Finished: %s\n", exec.FinishedAt.Format(time.RFC3339))
		fmt.Fprintf(&b, "Duration: %s\n", exec.FinishedAt.Sub(exec.StartedAt).Round(time.Millisecond))
	}
	if exec.ModeUsed != "" {
		fmt.Fprintf(&b, "Mode: %s\n", exec.ModeUsed)
	}
	if exec.Error != "" {
		fmt.Fprintf(&b, "\nError:\n%s\n", exec.Error)
	}
	if policy.IncludeOutput && exec.Output != "" {
		output := exec.Output
		if len(output) > outputLimit {
			output = output[:outputLimit] + "\n... (truncated)"
		}
		fmt.Fprintf(&b, "\nOutput:\n%s\n", output)
	}
	if policy.IncludeToolCalls && len(exec.ToolCalls) > 0 {
		fmt.Fprintf(&b, "\nTool calls (%d):\n", len(exec.ToolCalls))
		for _, call := range exec.ToolCalls {
			status := "ok"
			if !call.Success {
				status = "failed"
			}
			fmt.Fprintf(&b, "  %s: %s\n", call.Tool, status)
		}
	}
	return subject, b.String()
}
