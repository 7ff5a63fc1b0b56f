package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cronhub.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestTaskRoundTripPreservesLists(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	task := &Task{
		Name:         "digest",
		Type:         TaskTypeSubagent,
		Schedule:     "0 9 * * *",
		Prompt:       "summarize inbox",
		Enabled:      true,
		SubagentMode: "mcp",
		ToolServers:  []string{"email", "calendar"},
		AllowedTools: []string{"Bash", "Read"},
		SystemPrompt: "be brief",
		MaxTurns:     5,
		Notify: &NotifyPolicy{
			Email:         "ops@example.com",
			OnFailure:     true,
			IncludeOutput: true,
		},
	}
	if err := s.CreateTask(ctx, task); err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.ID == "" {
		t.Fatal("expected generated task id")
	}

	got, err := s.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Name != "digest" || got.Type != TaskTypeSubagent {
		t.Fatalf("unexpected task: %+v", got)
	}
	if len(got.ToolServers) != 2 || got.ToolServers[0] != "email" || got.ToolServers[1] != "calendar" {
		t.Fatalf("tool servers not preserved: %v", got.ToolServers)
	}
	if len(got.AllowedTools) != 2 || got.AllowedTools[0] != "Bash" {
		t.Fatalf("allowed tools not preserved: %v", got.AllowedTools)
	}
	if got.Notify == nil || got.Notify.Email != "ops@example.com" || !got.Notify.OnFailure {
		t.Fatalf("notify policy not preserved: %+v", got.Notify)
	}
	if got.MaxTurns != 5 || got.SystemPrompt != "be brief" {
		t.Fatalf("subagent fields not preserved: %+v", got)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetTask(context.Background(), "missing")
	if !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestToggleTaskIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	task := &Task{Name: "t", Type: TaskTypeShell, Command: "echo hi", Enabled: true}
	if err := s.CreateTask(ctx, task); err != nil {
		t.Fatalf("create task: %v", err)
	}

	// Disabling twice lands in the same state as disabling once.
	for i := 0; i < 2; i++ {
		if err := s.SetTaskEnabled(ctx, task.ID, false); err != nil {
			t.Fatalf("disable #%d: %v", i+1, err)
		}
		got, err := s.GetTask(ctx, task.ID)
		if err != nil {
			t.Fatalf("get task: %v", err)
		}
		if got.Enabled {
			t.Fatalf("task still enabled after disable #%d", i+1)
		}
	}

	if err := s.SetTaskEnabled(ctx, task.ID, true); err != nil {
		t.Fatalf("enable: %v", err)
	}
	got, err := s.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if !got.Enabled {
		t.Fatal("task not enabled after toggle")
	}

	if err := s.SetTaskEnabled(ctx, "missing", true); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestListTasksFilter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	enabled := &Task{Name: "on", Type: TaskTypeShell, Command: "true", Schedule: "* * * * *", Enabled: true}
	disabled := &Task{Name: "off", Type: TaskTypeShell, Command: "true", Enabled: false}
	for _, task := range []*Task{enabled, disabled} {
		if err := s.CreateTask(ctx, task); err != nil {
			t.Fatalf("create task %s: %v", task.Name, err)
		}
	}

	all, err := s.ListTasks(ctx, TaskFilter{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(all))
	}

	on := true
	scheduled, err := s.ListTasks(ctx, TaskFilter{Enabled: &on, Scheduled: true})
	if err != nil {
		t.Fatalf("list scheduled: %v", err)
	}
	if len(scheduled) != 1 || scheduled[0].Name != "on" {
		t.Fatalf("expected only the enabled scheduled task, got %d", len(scheduled))
	}
}

func TestDeleteTaskCascadesHistory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	task := &Task{Name: "t", Type: TaskTypeShell, Command: "true", Enabled: true}
	if err := s.CreateTask(ctx, task); err != nil {
		t.Fatalf("create task: %v", err)
	}
	if _, err := s.InsertExecution(ctx, task.ID); err != nil {
		t.Fatalf("insert execution: %v", err)
	}

	if err := s.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("delete task: %v", err)
	}

	records, err := s.ListHistory(ctx, HistoryFilter{TaskID: task.ID})
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("history not cascaded, %d rows remain", len(records))
	}
	if _, err := s.GetTask(ctx, task.ID); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound after delete, got %v", err)
	}
}

func TestExecutionLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	task := &Task{Name: "t", Type: TaskTypeSubagent, Prompt: "hi", Enabled: true}
	if err := s.CreateTask(ctx, task); err != nil {
		t.Fatalf("create task: %v", err)
	}

	exec, err := s.InsertExecution(ctx, task.ID)
	if err != nil {
		t.Fatalf("insert execution: %v", err)
	}
	if exec.Status != ExecStatusRunning {
		t.Fatalf("expected running status, got %s", exec.Status)
	}

	last, ok, err := s.LastRunTime(ctx, task.ID)
	if err != nil || !ok {
		t.Fatalf("last run time: ok=%v err=%v", ok, err)
	}
	if !last.Equal(exec.StartedAt) {
		t.Fatalf("last run %v != started %v", last, exec.StartedAt)
	}

	exec.Status = ExecStatusSuccess
	exec.Output = "done"
	exec.ModeUsed = "mcp"
	exec.TurnsUsed = 3
	exec.ToolCalls = []ToolCallEntry{{Tool: "email_search", Success: true, Result: "2 messages"}}
	if err := s.FinalizeExecution(ctx, exec); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	records, err := s.ListHistory(ctx, HistoryFilter{TaskID: task.ID})
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	got := records[0]
	if got.Status != ExecStatusSuccess || got.Output != "done" || got.ModeUsed != "mcp" {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.TurnsUsed != 3 || len(got.ToolCalls) != 1 || got.ToolCalls[0].Tool != "email_search" {
		t.Fatalf("subagent fields not preserved: %+v", got)
	}
	if got.FinishedAt == nil {
		t.Fatal("finished_at not set")
	}
}

func TestLastRunTimeEmpty(t *testing.T) {
	s := openTestStore(t)

	_, ok, err := s.LastRunTime(context.Background(), "never-ran")
	if err != nil {
		t.Fatalf("last run time: %v", err)
	}
	if ok {
		t.Fatal("expected no last run for unknown task")
	}
}

func TestLastRunTimeOrdersSubsecondStarts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	task := &Task{Name: "t", Type: TaskTypeShell, Command: "true", Enabled: true}
	if err := s.CreateTask(ctx, task); err != nil {
		t.Fatalf("create task: %v", err)
	}

	// A whole-second start followed by a sub-second one in the same second.
	// The stored strings must still sort in time order.
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	later := base.Add(500 * time.Millisecond)
	for _, start := range []time.Time{base, later} {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO history (id, task_id, started_at, status) VALUES (?, ?, ?, ?)`,
			start.String(), task.ID, formatTime(start), string(ExecStatusSuccess))
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	got, ok, err := s.LastRunTime(ctx, task.ID)
	if err != nil || !ok {
		t.Fatalf("last run time: ok=%v err=%v", ok, err)
	}
	if !got.Equal(later) {
		t.Fatalf("last run %s, want %s", got, later)
	}
}

func TestHistoryFilterStatusAndLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	task := &Task{Name: "t", Type: TaskTypeShell, Command: "true", Enabled: true}
	if err := s.CreateTask(ctx, task); err != nil {
		t.Fatalf("create task: %v", err)
	}
	for i := 0; i < 3; i++ {
		exec, err := s.InsertExecution(ctx, task.ID)
		if err != nil {
			t.Fatalf("insert execution: %v", err)
		}
		if i < 2 {
			exec.Status = ExecStatusFailed
			exec.Error = "boom"
		} else {
			exec.Status = ExecStatusSuccess
		}
		if err := s.FinalizeExecution(ctx, exec); err != nil {
			t.Fatalf("finalize: %v", err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	failed, err := s.ListHistory(ctx, HistoryFilter{TaskID: task.ID, Status: ExecStatusFailed})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(failed) != 2 {
		t.Fatalf("expected 2 failed records, got %d", len(failed))
	}

	limited, err := s.ListHistory(ctx, HistoryFilter{TaskID: task.ID, Limit: 1})
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected 1 record with limit, got %d", len(limited))
	}
}

func TestServerUpsertRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	server := &ToolServer{
		Name:        "email",
		URL:         "http://localhost:9000/mcp",
		Transport:   "http",
		AuthType:    "bearer",
		AuthToken:   "secret",
		Description: "imap bridge",
		Enabled:     true,
	}
	if err := s.UpsertServer(ctx, server); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.GetServerByName(ctx, "email")
	if err != nil {
		t.Fatalf("get server: %v", err)
	}
	if got.URL != server.URL || got.AuthToken != "secret" || !got.Enabled {
		t.Fatalf("unexpected server: %+v", got)
	}
	if got.HealthStatus != "unknown" {
		t.Fatalf("expected unknown health, got %q", got.HealthStatus)
	}

	// Upsert by name replaces the URL without creating a second row.
	server.URL = "https://mail.internal/mcp"
	if err := s.UpsertServer(ctx, server); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	servers, err := s.ListServers(ctx, false)
	if err != nil {
		t.Fatalf("list servers: %v", err)
	}
	if len(servers) != 1 || servers[0].URL != "https://mail.internal/mcp" {
		t.Fatalf("upsert did not replace: %+v", servers)
	}
}

func TestServerURLValidationOnUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	bad := []string{"", "localhost:9000", "ftp://host/mcp", "http://"}
	for _, url := range bad {
		err := s.UpsertServer(ctx, &ToolServer{Name: "x", URL: url, Enabled: true})
		if err == nil {
			t.Fatalf("expected error for url %q", url)
		}
	}
}

func TestServerHealthAndToolsCache(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	server := &ToolServer{Name: "email", URL: "http://localhost:9000/mcp", Enabled: true}
	if err := s.UpsertServer(ctx, server); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := s.UpdateServerHealth(ctx, "email", "healthy"); err != nil {
		t.Fatalf("update health: %v", err)
	}
	tools := json.RawMessage(`[{"name":"imap_send_email"}]`)
	if err := s.UpdateToolsCache(ctx, "email", tools); err != nil {
		t.Fatalf("update cache: %v", err)
	}

	got, err := s.GetServerByName(ctx, "email")
	if err != nil {
		t.Fatalf("get server: %v", err)
	}
	if got.HealthStatus != "healthy" || got.LastHealthCheck == nil {
		t.Fatalf("health not recorded: %+v", got)
	}
	if string(got.ToolsCache) != string(tools) || got.ToolsUpdatedAt == nil {
		t.Fatalf("tools cache not recorded: %+v", got)
	}
}

func TestRemoveServer(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertServer(ctx, &ToolServer{Name: "email", URL: "http://localhost:9000/mcp", Enabled: true}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	removed, err := s.RemoveServer(ctx, "email")
	if err != nil || !removed {
		t.Fatalf("remove: removed=%v err=%v", removed, err)
	}
	removed, err = s.RemoveServer(ctx, "email")
	if err != nil {
		t.Fatalf("second remove: %v", err)
	}
	if removed {
		t.Fatal("second remove reported a deleted row")
	}

	if _, err := s.GetServerByName(ctx, "email"); !errors.Is(err, ErrServerNotFound) {
		t.Fatalf("expected ErrServerNotFound, got %v", err)
	}
}

func TestMigrationIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cronhub.db")

	s1, err := Open(path, nil)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	task := &Task{Name: "t", Type: TaskTypeShell, Command: "true", Enabled: true}
	if err := s1.CreateTask(context.Background(), task); err != nil {
		t.Fatalf("create task: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := Open(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = s2.Close() }()

	got, err := s2.GetTask(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("get task after reopen: %v", err)
	}
	if got.Name != "t" {
		t.Fatalf("unexpected task after reopen: %+v", got)
	}
}
