package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"cronhub/internal/logging"
)

// Store is the SQLite-backed persistence layer for tasks, execution history
// and tool server configs. Every statement commits independently; callers
// must tolerate read-after-write staleness of a few milliseconds across
// separate statements.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

// Open opens (creating if needed) the SQLite database at path and applies
// the schema, including additive column migrations for older databases.
func Open(path string, logger logging.Logger) (*Store, error) {
	logger = logging.OrNop(logger)

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// SQLite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY churn under concurrent task finalization.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logger}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("Store opened: %s", path)
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies store reachability for health reporting.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) init() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			schedule TEXT,
			command TEXT,
			prompt TEXT,
			enabled INTEGER DEFAULT 1,
			subagent_mode TEXT,
			tool_servers TEXT,
			allowed_tools TEXT,
			system_prompt TEXT,
			max_turns INTEGER,
			notify TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS history (
			id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			status TEXT NOT NULL,
			output TEXT,
			error TEXT,
			tool_calls TEXT,
			turns_used INTEGER,
			mode_used TEXT,
			FOREIGN KEY (task_id) REFERENCES tasks(id)
		)`,
		`CREATE TABLE IF NOT EXISTS tool_servers (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			url TEXT NOT NULL,
			transport TEXT DEFAULT 'http',
			auth_type TEXT,
			auth_token TEXT,
			description TEXT,
			enabled INTEGER DEFAULT 1,
			health_status TEXT DEFAULT 'unknown',
			last_health_check TEXT,
			tools_cache TEXT,
			tools_updated_at TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_task_started ON history (task_id, started_at DESC)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return s.migrate()
}

// migrate applies additive migrations: new nullable columns only, so older
// databases keep working without a rewrite.
func (s *Store) migrate() error {
	additions := []struct {
		table  string
		column string
		ddl    string
	}{
		{"tasks", "subagent_mode", "ALTER TABLE tasks ADD COLUMN subagent_mode TEXT"},
		{"tasks", "tool_servers", "ALTER TABLE tasks ADD COLUMN tool_servers TEXT"},
		{"tasks", "allowed_tools", "ALTER TABLE tasks ADD COLUMN allowed_tools TEXT"},
		{"tasks", "system_prompt", "ALTER TABLE tasks ADD COLUMN system_prompt TEXT"},
		{"tasks", "max_turns", "ALTER TABLE tasks ADD COLUMN max_turns INTEGER"},
		{"tasks", "notify", "ALTER TABLE tasks ADD COLUMN notify TEXT"},
		{"history", "tool_calls", "ALTER TABLE history ADD COLUMN tool_calls TEXT"},
		{"history", "turns_used", "ALTER TABLE history ADD COLUMN turns_used INTEGER"},
		{"history", "mode_used", "ALTER TABLE history ADD COLUMN mode_used TEXT"},
	}
	for _, add := range additions {
		exists, err := s.columnExists(add.table, add.column)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := s.db.Exec(add.ddl); err != nil {
			return fmt.Errorf("migrate %s.%s: %w", add.table, add.column, err)
		}
		s.logger.Info("Store: added column %s.%s", add.table, add.column)
	}
	return nil
}

func (s *Store) columnExists(table, column string) (bool, error) {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("table_info %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			cid       int
			name, typ string
			notNull   int
			dflt      sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// ---------------------------------------------------------------------------
// Tasks
// ---------------------------------------------------------------------------

// CreateTask validates and persists a new task, assigning an ID and
// timestamps when missing.
func (s *Store) CreateTask(ctx context.Context, task *Task) error {
	if err := task.Validate(); err != nil {
		return err
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now

	notifyJSON, err := marshalNullable(task.Notify)
	if err != nil {
		return fmt.Errorf("encode notify policy: %w", err)
	}
	serversJSON, err := marshalNullable(task.ToolServers)
	if err != nil {
		return fmt.Errorf("encode tool servers: %w", err)
	}
	toolsJSON, err := marshalNullable(task.AllowedTools)
	if err != nil {
		return fmt.Errorf("encode allowed tools: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO tasks (id, name, type, schedule, command, prompt, enabled,
	subagent_mode, tool_servers, allowed_tools, system_prompt, max_turns,
	notify, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.Name, string(task.Type),
		nullString(task.Schedule), nullString(task.Command), nullString(task.Prompt),
		boolToInt(task.Enabled),
		nullString(task.SubagentMode), serversJSON, toolsJSON,
		nullString(task.SystemPrompt), nullInt(task.MaxTurns), notifyJSON,
		formatTime(task.CreatedAt), formatTime(task.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// GetTask loads a task by id, returning ErrTaskNotFound when absent.
func (s *Store) GetTask(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, taskSelect+` WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return task, err
}

// TaskFilter narrows ListTasks results.
type TaskFilter struct {
	// Enabled filters on the enabled flag when non-nil.
	Enabled *bool
	// Scheduled restricts to tasks with a non-empty schedule.
	Scheduled bool
}

// ListTasks returns tasks newest-first, optionally filtered.
func (s *Store) ListTasks(ctx context.Context, filter TaskFilter) ([]*Task, error) {
	query := taskSelect
	var conds []string
	var args []any
	if filter.Enabled != nil {
		conds = append(conds, "enabled = ?")
		args = append(args, boolToInt(*filter.Enabled))
	}
	if filter.Scheduled {
		conds = append(conds, "schedule IS NOT NULL AND schedule != ''")
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// SetTaskEnabled flips the enabled flag. Idempotent: repeating the same value
// leaves the persisted state unchanged apart from updated_at.
func (s *Store) SetTaskEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET enabled = ?, updated_at = ? WHERE id = ?`,
		boolToInt(enabled), formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("toggle task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return nil
}

// DeleteTask removes the task and cascades to its execution history.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE task_id = ?`, id); err != nil {
		return fmt.Errorf("delete history: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return nil
}

const taskSelect = `
SELECT id, name, type, schedule, command, prompt, enabled, subagent_mode,
	tool_servers, allowed_tools, system_prompt, max_turns, notify,
	created_at, updated_at
FROM tasks`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var (
		task                                  Task
		taskType                              string
		schedule, command, prompt             sql.NullString
		mode, servers, tools, sysPrompt       sql.NullString
		maxTurns                              sql.NullInt64
		notify, createdAt, updatedAt          sql.NullString
		enabled                               int
	)
	err := row.Scan(&task.ID, &task.Name, &taskType, &schedule, &command,
		&prompt, &enabled, &mode, &servers, &tools, &sysPrompt, &maxTurns,
		&notify, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	task.Type = TaskType(taskType)
	task.Schedule = schedule.String
	task.Command = command.String
	task.Prompt = prompt.String
	task.Enabled = enabled != 0
	task.SubagentMode = mode.String
	task.SystemPrompt = sysPrompt.String
	task.MaxTurns = int(maxTurns.Int64)
	if servers.Valid && servers.String != "" {
		if err := json.Unmarshal([]byte(servers.String), &task.ToolServers); err != nil {
			return nil, fmt.Errorf("decode tool servers: %w", err)
		}
	}
	if tools.Valid && tools.String != "" {
		if err := json.Unmarshal([]byte(tools.String), &task.AllowedTools); err != nil {
			return nil, fmt.Errorf("decode allowed tools: %w", err)
		}
	}
	if notify.Valid && notify.String != "" {
		var policy NotifyPolicy
		if err := json.Unmarshal([]byte(notify.String), &policy); err != nil {
			return nil, fmt.Errorf("decode notify policy: %w", err)
		}
		task.Notify = &policy
	}
	task.CreatedAt = parseTime(createdAt.String)
	task.UpdatedAt = parseTime(updatedAt.String)
	return &task, nil
}

// ---------------------------------------------------------------------------
// Execution history
// ---------------------------------------------------------------------------

// InsertExecution creates a running execution record for a task and returns it.
func (s *Store) InsertExecution(ctx context.Context, taskID string) (*Execution, error) {
	exec := &Execution{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		StartedAt: time.Now().UTC(),
		Status:    ExecStatusRunning,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO history (id, task_id, started_at, status) VALUES (?, ?, ?, ?)`,
		exec.ID, exec.TaskID, formatTime(exec.StartedAt), string(exec.Status))
	if err != nil {
		return nil, fmt.Errorf("insert execution: %w", err)
	}
	return exec, nil
}

// FinalizeExecution records the terminal state of an execution. Only the
// owning execution calls this, exactly once.
func (s *Store) FinalizeExecution(ctx context.Context, exec *Execution) error {
	if exec.FinishedAt == nil {
		now := time.Now().UTC()
		exec.FinishedAt = &now
	}
	toolCallsJSON, err := marshalNullable(exec.ToolCalls)
	if err != nil {
		return fmt.Errorf("encode tool calls: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE history
SET finished_at = ?, status = ?, output = ?, error = ?, tool_calls = ?,
	turns_used = ?, mode_used = ?
WHERE id = ?`,
		formatTime(*exec.FinishedAt), string(exec.Status),
		nullString(exec.Output), nullString(exec.Error), toolCallsJSON,
		exec.TurnsUsed, nullString(exec.ModeUsed), exec.ID)
	if err != nil {
		return fmt.Errorf("finalize execution: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrExecutionNotFound, exec.ID)
	}
	return nil
}

// LastRunTime returns the start time of the most recent execution of a task.
// The second return value is false when the task has never run.
func (s *Store) LastRunTime(ctx context.Context, taskID string) (time.Time, bool, error) {
	var startedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT started_at FROM history WHERE task_id = ? ORDER BY started_at DESC LIMIT 1`,
		taskID).Scan(&startedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("last run time: %w", err)
	}
	parsed := parseTime(startedAt)
	if parsed.IsZero() {
		return time.Time{}, false, nil
	}
	return parsed, true, nil
}

// HistoryFilter narrows ListHistory results.
type HistoryFilter struct {
	TaskID string
	Status ExecStatus // empty means all
	Limit  int        // <= 0 means default 50
}

// ListHistory returns execution records newest-first.
func (s *Store) ListHistory(ctx context.Context, filter HistoryFilter) ([]*Execution, error) {
	query := `
SELECT id, task_id, started_at, finished_at, status, output, error,
	tool_calls, turns_used, mode_used
FROM history WHERE 1=1`
	var args []any
	if filter.TaskID != "" {
		query += " AND task_id = ?"
		args = append(args, filter.TaskID)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " ORDER BY started_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*Execution
	for rows.Next() {
		var (
			exec                          Execution
			startedAt                     string
			finishedAt                    sql.NullString
			status                        string
			output, errText, toolCalls    sql.NullString
			turnsUsed                     sql.NullInt64
			modeUsed                      sql.NullString
		)
		if err := rows.Scan(&exec.ID, &exec.TaskID, &startedAt, &finishedAt,
			&status, &output, &errText, &toolCalls, &turnsUsed, &modeUsed); err != nil {
			return nil, err
		}
		exec.StartedAt = parseTime(startedAt)
		if finishedAt.Valid && finishedAt.String != "" {
			t := parseTime(finishedAt.String)
			exec.FinishedAt = &t
		}
		exec.Status = ExecStatus(status)
		exec.Output = output.String
		exec.Error = errText.String
		exec.TurnsUsed = int(turnsUsed.Int64)
		exec.ModeUsed = modeUsed.String
		if toolCalls.Valid && toolCalls.String != "" {
			if err := json.Unmarshal([]byte(toolCalls.String), &exec.ToolCalls); err != nil {
				return nil, fmt.Errorf("decode tool calls: %w", err)
			}
		}
		records = append(records, &exec)
	}
	return records, rows.Err()
}

// ---------------------------------------------------------------------------
// Tool servers
// ---------------------------------------------------------------------------

// UpsertServer inserts a tool server or updates the existing row with the
// same name. The URL must be a valid absolute http(s) URL.
func (s *Store) UpsertServer(ctx context.Context, server *ToolServer) error {
	if strings.TrimSpace(server.Name) == "" {
		return fmt.Errorf("server name is required")
	}
	if err := ValidateServerURL(server.URL); err != nil {
		return fmt.Errorf("server %q: %w", server.Name, err)
	}
	if server.ID == "" {
		server.ID = uuid.NewString()
	}
	if server.Transport == "" {
		server.Transport = "http"
	}
	if server.HealthStatus == "" {
		server.HealthStatus = "unknown"
	}
	now := formatTime(time.Now().UTC())

	_, err := s.db.ExecContext(ctx, `
INSERT INTO tool_servers (id, name, url, transport, auth_type, auth_token,
	description, enabled, health_status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET
	url = excluded.url,
	transport = excluded.transport,
	auth_type = excluded.auth_type,
	auth_token = excluded.auth_token,
	description = excluded.description,
	enabled = excluded.enabled,
	updated_at = excluded.updated_at`,
		server.ID, server.Name, server.URL, server.Transport,
		nullString(server.AuthType), nullString(server.AuthToken),
		nullString(server.Description), boolToInt(server.Enabled),
		server.HealthStatus, now, now)
	if err != nil {
		return fmt.Errorf("upsert server: %w", err)
	}
	return nil
}

// GetServerByName loads a server config, returning ErrServerNotFound when absent.
func (s *Store) GetServerByName(ctx context.Context, name string) (*ToolServer, error) {
	row := s.db.QueryRowContext(ctx, serverSelect+` WHERE name = ?`, name)
	server, err := scanServer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrServerNotFound, name)
	}
	return server, err
}

// ListServers returns all persisted servers, optionally enabled only.
func (s *Store) ListServers(ctx context.Context, enabledOnly bool) ([]*ToolServer, error) {
	query := serverSelect
	if enabledOnly {
		query += " WHERE enabled = 1"
	}
	query += " ORDER BY name"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var servers []*ToolServer
	for rows.Next() {
		server, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		servers = append(servers, server)
	}
	return servers, rows.Err()
}

// RemoveServer deletes a server by name. Returns false when no row matched.
func (s *Store) RemoveServer(ctx context.Context, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tool_servers WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("remove server: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// UpdateServerHealth records the latest health probe result for a server.
func (s *Store) UpdateServerHealth(ctx context.Context, name, status string) error {
	now := formatTime(time.Now().UTC())
	_, err := s.db.ExecContext(ctx, `
UPDATE tool_servers
SET health_status = ?, last_health_check = ?, updated_at = ?
WHERE name = ?`, status, now, now, name)
	if err != nil {
		return fmt.Errorf("update server health: %w", err)
	}
	return nil
}

// UpdateToolsCache stores the serialized tool descriptor list for a server.
func (s *Store) UpdateToolsCache(ctx context.Context, name string, tools json.RawMessage) error {
	now := formatTime(time.Now().UTC())
	_, err := s.db.ExecContext(ctx, `
UPDATE tool_servers
SET tools_cache = ?, tools_updated_at = ?, updated_at = ?
WHERE name = ?`, string(tools), now, now, name)
	if err != nil {
		return fmt.Errorf("update tools cache: %w", err)
	}
	return nil
}

const serverSelect = `
SELECT id, name, url, transport, auth_type, auth_token, description, enabled,
	health_status, last_health_check, tools_cache, tools_updated_at,
	created_at, updated_at
FROM tool_servers`

func scanServer(row rowScanner) (*ToolServer, error) {
	var (
		server                               ToolServer
		authType, authToken, description     sql.NullString
		lastCheck, toolsCache, toolsUpdated  sql.NullString
		createdAt, updatedAt                 sql.NullString
		enabled                              int
	)
	err := row.Scan(&server.ID, &server.Name, &server.URL, &server.Transport,
		&authType, &authToken, &description, &enabled, &server.HealthStatus,
		&lastCheck, &toolsCache, &toolsUpdated, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	server.AuthType = authType.String
	server.AuthToken = authToken.String
	server.Description = description.String
	server.Enabled = enabled != 0
	if lastCheck.Valid && lastCheck.String != "" {
		t := parseTime(lastCheck.String)
		server.LastHealthCheck = &t
	}
	if toolsCache.Valid && toolsCache.String != "" {
		server.ToolsCache = json.RawMessage(toolsCache.String)
	}
	if toolsUpdated.Valid && toolsUpdated.String != "" {
		t := parseTime(toolsUpdated.String)
		server.ToolsUpdatedAt = &t
	}
	server.CreatedAt = parseTime(createdAt.String)
	server.UpdatedAt = parseTime(updatedAt.String)
	return &server, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// timeLayout keeps fractional seconds fixed-width so the TEXT columns sort
// lexicographically in time order. RFC3339Nano drops trailing zeros, which
// would sort "...:00Z" after "...:00.5Z" within the same second.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullInt(value int) any {
	if value == 0 {
		return nil
	}
	return value
}

// marshalNullable encodes a value to JSON, mapping nils and empty slices to
// SQL NULL.
func marshalNullable(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case *NotifyPolicy:
		if v == nil {
			return nil, nil
		}
	case []string:
		if len(v) == 0 {
			return nil, nil
		}
	case []ToolCallEntry:
		if len(v) == 0 {
			return nil, nil
		}
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
