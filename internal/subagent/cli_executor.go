package subagent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kaptinlin/jsonrepair"

	"cronhub/internal/logging"
)

// defaultBinary is looked up on PATH when no explicit path is configured.
const defaultBinary = "claude"

// CLIExecutor delegates a run to the claude CLI binary in print mode.
type CLIExecutor struct {
	explicitPath string
	logger       logging.Logger

	// Binary resolution is cached: PATH and the configured path do not
	// change while the process runs.
	once       sync.Once
	cachedPath string
	cachedErr  error
}

// NewCLIExecutor builds the executor. explicitPath may be empty, in which
// case the binary is looked up on PATH.
func NewCLIExecutor(explicitPath string, logger logging.Logger) *CLIExecutor {
	return &CLIExecutor{
		explicitPath: explicitPath,
		logger:       logging.OrNop(logger),
	}
}

// Available reports whether the CLI binary can be resolved. Used by the
// dispatcher's automatic mode selection.
func (e *CLIExecutor) Available() bool {
	_, err := e.binary()
	return err == nil
}

func (e *CLIExecutor) binary() (string, error) {
	e.once.Do(func() {
		if e.explicitPath != "" {
			info, err := os.Stat(e.explicitPath)
			if err != nil {
				e.cachedErr = fmt.Errorf("claude binary at %s: %w", e.explicitPath, err)
				return
			}
			if info.IsDir() || info.Mode()&0o111 == 0 {
				e.cachedErr = fmt.Errorf("claude binary at %s is not executable", e.explicitPath)
				return
			}
			e.cachedPath = e.explicitPath
			return
		}
		path, err := exec.LookPath(defaultBinary)
		if err != nil {
			e.cachedErr = fmt.Errorf("claude binary not found on PATH: %w", err)
			return
		}
		e.cachedPath = path
	})
	return e.cachedPath, e.cachedErr
}

// Run invokes the binary once and parses its JSON output. The timeout is a
// hard limit: on expiry the process is killed and the run fails.
func (e *CLIExecutor) Run(ctx context.Context, req Request) Result {
	path, err := e.binary()
	if err != nil {
		return failure(ModeCLI, err.Error())
	}

	args := []string{"-p", req.Prompt}
	if len(req.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(req.AllowedTools, ","))
	}
	args = append(args, "--max-turns", strconv.Itoa(req.MaxTurns))
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	if req.SystemPrompt != "" {
		args = append(args, "--system-prompt", req.SystemPrompt)
	}
	args = append(args, "--output-format", "json")

	runCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Do not linger after the deadline waiting for output pipes.
	cmd.WaitDelay = 5 * time.Second

	e.logger.Debug("Running %s with %d args, timeout %s", path, len(args), req.Timeout)
	runErr := cmd.Run()

	if runCtx.Err() == context.DeadlineExceeded {
		return failure(ModeCLI, fmt.Sprintf("timed out after %s", req.Timeout))
	}
	if runErr != nil {
		message := strings.TrimSpace(stderr.String())
		if message == "" {
			message = runErr.Error()
		}
		return failure(ModeCLI, fmt.Sprintf("claude CLI failed: %s", message))
	}

	return parseCLIOutput(stdout.String())
}

// parseCLIOutput extracts the result text from the CLI's JSON output,
// repairing slightly malformed JSON before giving up and using the raw text.
// The CLI runs its own loop, so tool calls stay empty and turns stay zero.
func parseCLIOutput(raw string) Result {
	result := Result{Success: true, ModeUsed: ModeCLI}

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		result.Success = false
		result.Error = "claude CLI produced no output"
		return result
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(trimmed)
		if repairErr != nil || json.Unmarshal([]byte(repaired), &payload) != nil {
			// Not JSON at all. Treat the raw text as the answer.
			result.Output = trimmed
			return result
		}
	}

	if isError, ok := payload["is_error"].(bool); ok && isError {
		result.Success = false
	}

	switch {
	case stringField(payload, "result") != "":
		result.Output = stringField(payload, "result")
	case stringField(payload, "content") != "":
		result.Output = stringField(payload, "content")
	default:
		result.Output = trimmed
	}
	if !result.Success && result.Error == "" {
		result.Error = result.Output
	}
	return result
}

func stringField(payload map[string]any, key string) string {
	value, _ := payload[key].(string)
	return value
}
