package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cronhub/internal/store"
)

// toolDef is one entry of the tool surface exposed over /mcp.
type toolDef struct {
	Name        string
	Description string
	InputSchema map[string]any
	Handler     func(ctx context.Context, args map[string]any) (string, error)
}

// decodeArgs maps loosely-typed tool arguments onto a typed struct.
func decodeArgs(args map[string]any, target any) error {
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode arguments: %w", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func prettyJSON(value any) (string, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(data), nil
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func (s *Server) toolDefs() []toolDef {
	return []toolDef{
		{
			Name:        "cronhub_add_task",
			Description: "Create a scheduled or on-demand task. Type shell runs a command; type subagent runs an AI prompt with tools.",
			InputSchema: objectSchema(map[string]any{
				"name":     stringProp("Human-readable task name"),
				"type":     map[string]any{"type": "string", "enum": []string{"shell", "subagent"}},
				"schedule": stringProp("5-field cron expression; omit for on-demand tasks"),
				"command":  stringProp("Shell command (shell type)"),
				"prompt":   stringProp("Subagent prompt (subagent type)"),
				"enabled":  map[string]any{"type": "boolean", "default": true},
				"subagent_mode": map[string]any{"type": "string",
					"enum": []string{"auto", "mcp", "cli"}},
				"tool_servers":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"allowed_tools": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"system_prompt": stringProp("System prompt for subagent runs"),
				"max_turns":     map[string]any{"type": "integer"},
				"notify": objectSchema(map[string]any{
					"email":              stringProp("Recipient address"),
					"on_success":         map[string]any{"type": "boolean"},
					"on_failure":         map[string]any{"type": "boolean"},
					"include_output":     map[string]any{"type": "boolean"},
					"include_tool_calls": map[string]any{"type": "boolean"},
				}),
			}, "name", "type"),
			Handler: s.toolAddTask,
		},
		{
			Name:        "cronhub_list_tasks",
			Description: "List tasks with their schedules, state and computed next run time.",
			InputSchema: objectSchema(map[string]any{
				"status": map[string]any{"type": "string",
					"enum": []string{"all", "enabled", "disabled"}, "default": "all"},
			}),
			Handler: s.toolListTasks,
		},
		{
			Name:        "cronhub_run_task",
			Description: "Run a task immediately and return its execution record.",
			InputSchema: objectSchema(map[string]any{
				"task_id": stringProp("Task ID"),
			}, "task_id"),
			Handler: s.toolRunTask,
		},
		{
			Name:        "cronhub_toggle_task",
			Description: "Enable or disable a task.",
			InputSchema: objectSchema(map[string]any{
				"task_id": stringProp("Task ID"),
				"enabled": map[string]any{"type": "boolean"},
			}, "task_id", "enabled"),
			Handler: s.toolToggleTask,
		},
		{
			Name:        "cronhub_delete_task",
			Description: "Delete a task and its execution history.",
			InputSchema: objectSchema(map[string]any{
				"task_id": stringProp("Task ID"),
			}, "task_id"),
			Handler: s.toolDeleteTask,
		},
		{
			Name:        "cronhub_get_history",
			Description: "List execution records, newest first.",
			InputSchema: objectSchema(map[string]any{
				"task_id": stringProp("Filter by task ID"),
				"status":  map[string]any{"type": "string", "enum": []string{"running", "success", "failed"}},
				"limit":   map[string]any{"type": "integer", "default": 50},
			}),
			Handler: s.toolGetHistory,
		},
		{
			Name:        "cronhub_add_server",
			Description: "Register or update a tool server by name.",
			InputSchema: objectSchema(map[string]any{
				"name":        stringProp("Unique server name"),
				"url":         stringProp("Absolute http(s) endpoint URL"),
				"auth_type":   stringProp("Authentication type, e.g. bearer"),
				"auth_token":  stringProp("Authentication token"),
				"description": stringProp("What this server provides"),
				"enabled":     map[string]any{"type": "boolean", "default": true},
			}, "name", "url"),
			Handler: s.toolAddServer,
		},
		{
			Name:        "cronhub_remove_server",
			Description: "Remove a tool server by name.",
			InputSchema: objectSchema(map[string]any{
				"name": stringProp("Server name"),
			}, "name"),
			Handler: s.toolRemoveServer,
		},
		{
			Name:        "cronhub_list_servers",
			Description: "List registered tool servers and their health.",
			InputSchema: objectSchema(map[string]any{}),
			Handler:     s.toolListServers,
		},
	}
}

func (s *Server) toolAddTask(ctx context.Context, args map[string]any) (string, error) {
	input := struct {
		Name         string              `json:"name"`
		Type         string              `json:"type"`
		Schedule     string              `json:"schedule"`
		Command      string              `json:"command"`
		Prompt       string              `json:"prompt"`
		Enabled      *bool               `json:"enabled"`
		SubagentMode string              `json:"subagent_mode"`
		ToolServers  []string            `json:"tool_servers"`
		AllowedTools []string            `json:"allowed_tools"`
		SystemPrompt string              `json:"system_prompt"`
		MaxTurns     int                 `json:"max_turns"`
		Notify       *store.NotifyPolicy `json:"notify"`
	}{}
	if err := decodeArgs(args, &input); err != nil {
		return "", err
	}

	enabled := true
	if input.Enabled != nil {
		enabled = *input.Enabled
	}
	task := &store.Task{
		Name:         input.Name,
		Type:         store.TaskType(input.Type),
		Schedule:     input.Schedule,
		Command:      input.Command,
		Prompt:       input.Prompt,
		Enabled:      enabled,
		SubagentMode: input.SubagentMode,
		ToolServers:  input.ToolServers,
		AllowedTools: input.AllowedTools,
		SystemPrompt: input.SystemPrompt,
		MaxTurns:     input.MaxTurns,
		Notify:       input.Notify,
	}
	if err := s.deps.Store.CreateTask(ctx, task); err != nil {
		return "", err
	}
	return prettyJSON(task)
}

// taskView is a listed task plus its computed next run time.
type taskView struct {
	*store.Task
	NextRun *time.Time `json:"next_run,omitempty"`
}

func (s *Server) toolListTasks(ctx context.Context, args map[string]any) (string, error) {
	input := struct {
		Status string `json:"status"`
	}{}
	if err := decodeArgs(args, &input); err != nil {
		return "", err
	}
	filter := store.TaskFilter{}
	switch input.Status {
	case "", "all":
	case "enabled":
		enabled := true
		filter.Enabled = &enabled
	case "disabled":
		enabled := false
		filter.Enabled = &enabled
	default:
		return "", fmt.Errorf("status must be all, enabled or disabled, got %q", input.Status)
	}
	tasks, err := s.deps.Store.ListTasks(ctx, filter)
	if err != nil {
		return "", err
	}
	now := time.Now()
	views := make([]taskView, 0, len(tasks))
	for _, task := range tasks {
		view := taskView{Task: task}
		if next := task.NextRun(now); !next.IsZero() {
			view.NextRun = &next
		}
		views = append(views, view)
	}
	return prettyJSON(views)
}

func (s *Server) toolRunTask(ctx context.Context, args map[string]any) (string, error) {
	input := struct {
		TaskID string `json:"task_id"`
	}{}
	if err := decodeArgs(args, &input); err != nil {
		return "", err
	}
	if input.TaskID == "" {
		return "", fmt.Errorf("task_id is required")
	}
	record, err := s.deps.Runner.Execute(ctx, input.TaskID)
	if err != nil {
		return "", err
	}
	return prettyJSON(record)
}

func (s *Server) toolToggleTask(ctx context.Context, args map[string]any) (string, error) {
	input := struct {
		TaskID  string `json:"task_id"`
		Enabled bool   `json:"enabled"`
	}{}
	if err := decodeArgs(args, &input); err != nil {
		return "", err
	}
	if input.TaskID == "" {
		return "", fmt.Errorf("task_id is required")
	}
	if err := s.deps.Store.SetTaskEnabled(ctx, input.TaskID, input.Enabled); err != nil {
		return "", err
	}
	state := "disabled"
	if input.Enabled {
		state = "enabled"
	}
	return fmt.Sprintf("Task %s %s", input.TaskID, state), nil
}

func (s *Server) toolDeleteTask(ctx context.Context, args map[string]any) (string, error) {
	input := struct {
		TaskID string `json:"task_id"`
	}{}
	if err := decodeArgs(args, &input); err != nil {
		return "", err
	}
	if input.TaskID == "" {
		return "", fmt.Errorf("task_id is required")
	}
	if err := s.deps.Store.DeleteTask(ctx, input.TaskID); err != nil {
		return "", err
	}
	return fmt.Sprintf("Task %s deleted", input.TaskID), nil
}

func (s *Server) toolGetHistory(ctx context.Context, args map[string]any) (string, error) {
	input := struct {
		TaskID string `json:"task_id"`
		Status string `json:"status"`
		Limit  int    `json:"limit"`
	}{}
	if err := decodeArgs(args, &input); err != nil {
		return "", err
	}
	records, err := s.deps.Store.ListHistory(ctx, store.HistoryFilter{
		TaskID: input.TaskID,
		Status: store.ExecStatus(input.Status),
		Limit:  input.Limit,
	})
	if err != nil {
		return "", err
	}
	if records == nil {
		records = []*store.Execution{}
	}
	return prettyJSON(records)
}

func (s *Server) toolAddServer(ctx context.Context, args map[string]any) (string, error) {
	input := struct {
		Name        string `json:"name"`
		URL         string `json:"url"`
		AuthType    string `json:"auth_type"`
		AuthToken   string `json:"auth_token"`
		Description string `json:"description"`
		Enabled     *bool  `json:"enabled"`
	}{}
	if err := decodeArgs(args, &input); err != nil {
		return "", err
	}
	enabled := true
	if input.Enabled != nil {
		enabled = *input.Enabled
	}
	server := &store.ToolServer{
		Name:        input.Name,
		URL:         input.URL,
		AuthType:    input.AuthType,
		AuthToken:   input.AuthToken,
		Description: input.Description,
		Enabled:     enabled,
	}
	if err := s.deps.Registry.Add(ctx, server); err != nil {
		return "", err
	}
	return fmt.Sprintf("Tool server %s registered at %s", server.Name, server.URL), nil
}

func (s *Server) toolRemoveServer(ctx context.Context, args map[string]any) (string, error) {
	input := struct {
		Name string `json:"name"`
	}{}
	if err := decodeArgs(args, &input); err != nil {
		return "", err
	}
	if input.Name == "" {
		return "", fmt.Errorf("name is required")
	}
	removed, err := s.deps.Registry.Remove(ctx, input.Name)
	if err != nil {
		return "", err
	}
	if !removed {
		return "", fmt.Errorf("%w: %s", store.ErrServerNotFound, input.Name)
	}
	return fmt.Sprintf("Tool server %s removed", input.Name), nil
}

func (s *Server) toolListServers(ctx context.Context, _ map[string]any) (string, error) {
	servers, err := s.deps.Registry.List(ctx)
	if err != nil {
		return "", err
	}
	// Auth tokens stay out of tool output.
	views := make([]map[string]any, 0, len(servers))
	for _, server := range servers {
		views = append(views, map[string]any{
			"name":              server.Name,
			"url":               server.URL,
			"transport":         server.Transport,
			"auth_type":         server.AuthType,
			"description":       server.Description,
			"enabled":           server.Enabled,
			"health_status":     server.HealthStatus,
			"last_health_check": server.LastHealthCheck,
		})
	}
	return prettyJSON(views)
}
