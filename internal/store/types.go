package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// TaskType discriminates the two task variants.
type TaskType string

const (
	TaskTypeShell    TaskType = "shell"
	TaskTypeSubagent TaskType = "subagent"
)

// ExecStatus represents the lifecycle state of an execution record.
type ExecStatus string

const (
	ExecStatusRunning ExecStatus = "running"
	ExecStatusSuccess ExecStatus = "success"
	ExecStatusFailed  ExecStatus = "failed"
)

// Sentinel errors surfaced by store lookups.
var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrExecutionNotFound = errors.New("execution not found")
	ErrServerNotFound    = errors.New("tool server not found")
)

// cronParser accepts standard 5-field cron expressions.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseCron parses a 5-field cron expression.
func ParseCron(expr string) (cron.Schedule, error) {
	return cronParser.Parse(expr)
}

// NotifyPolicy controls when and how execution results are delivered.
type NotifyPolicy struct {
	Email            string `json:"email,omitempty"`
	OnSuccess        bool   `json:"on_success"`
	OnFailure        bool   `json:"on_failure"`
	IncludeOutput    bool   `json:"include_output"`
	IncludeToolCalls bool   `json:"include_tool_calls"`
}

// Task is a persisted automation unit: either a shell command or a subagent
// prompt, optionally bound to a cron schedule. Schedule == "" means the task
// only runs on demand.
type Task struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Type     TaskType `json:"type"`
	Schedule string   `json:"schedule,omitempty"`
	Enabled  bool     `json:"enabled"`

	// Shell variant.
	Command string `json:"command,omitempty"`

	// Subagent variant.
	Prompt       string   `json:"prompt,omitempty"`
	SubagentMode string   `json:"subagent_mode,omitempty"`
	ToolServers  []string `json:"tool_servers,omitempty"`
	AllowedTools []string `json:"allowed_tools,omitempty"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
	MaxTurns     int      `json:"max_turns,omitempty"`

	Notify *NotifyPolicy `json:"notify,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the task shape before persistence: type-specific required
// fields and a parseable cron expression when a schedule is present.
func (t *Task) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("task: name is required")
	}
	switch t.Type {
	case TaskTypeShell:
		if strings.TrimSpace(t.Command) == "" {
			return fmt.Errorf("task: command is required for shell type")
		}
	case TaskTypeSubagent:
		if strings.TrimSpace(t.Prompt) == "" {
			return fmt.Errorf("task: prompt is required for subagent type")
		}
	default:
		return fmt.Errorf("task: type must be %q or %q", TaskTypeShell, TaskTypeSubagent)
	}
	if t.Schedule != "" {
		if _, err := ParseCron(t.Schedule); err != nil {
			return fmt.Errorf("task: invalid cron expression %q: %w", t.Schedule, err)
		}
	}
	return nil
}

// NextRun computes the earliest cron-matching instant strictly after base.
// Returns the zero time when the task has no schedule or the expression does
// not parse.
func (t *Task) NextRun(base time.Time) time.Time {
	if t.Schedule == "" {
		return time.Time{}
	}
	schedule, err := ParseCron(t.Schedule)
	if err != nil {
		return time.Time{}
	}
	return schedule.Next(base)
}

// ToolCallEntry is one entry of an execution's ordered tool-call log.
type ToolCallEntry struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
	Result    any            `json:"result"`
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
}

// Execution is one run of a task. It is created with status running and
// finalized exactly once by the owning execution; records are never mutated
// afterwards.
type Execution struct {
	ID         string          `json:"id"`
	TaskID     string          `json:"task_id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Status     ExecStatus      `json:"status"`
	Output     string          `json:"output,omitempty"`
	Error      string          `json:"error,omitempty"`
	ToolCalls  []ToolCallEntry `json:"tool_calls,omitempty"`
	TurnsUsed  int             `json:"turns_used"`
	ModeUsed   string          `json:"mode_used,omitempty"`
}

// ToolServer is a named endpoint exposing callable tools. Upserted by name.
type ToolServer struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	URL             string          `json:"url"`
	Transport       string          `json:"transport"`
	AuthType        string          `json:"auth_type,omitempty"`
	AuthToken       string          `json:"auth_token,omitempty"`
	Description     string          `json:"description,omitempty"`
	Enabled         bool            `json:"enabled"`
	HealthStatus    string          `json:"health_status"`
	LastHealthCheck *time.Time      `json:"last_health_check,omitempty"`
	ToolsCache      json.RawMessage `json:"tools_cache,omitempty"`
	ToolsUpdatedAt  *time.Time      `json:"tools_updated_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// ValidateServerURL requires an absolute http or https URL with a host.
func ValidateServerURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("url is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("url %q: scheme must be http or https", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("url %q: missing host", raw)
	}
	return nil
}
