package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"cronhub/internal/subagent"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	return rec.Body.String()
}

func TestSchedulerHooks(t *testing.T) {
	m := New()
	m.TickCompleted(2)
	m.TaskStarted()
	m.TaskStarted()
	m.TaskFinished("success")
	m.TaskFinished("failed")

	body := scrape(t, m)
	for _, want := range []string{
		"cronhub_scheduler_ticks_total 1",
		"cronhub_tasks_launched_total 2",
		`cronhub_executions_total{status="success"} 1`,
		`cronhub_executions_total{status="failed"} 1`,
		"cronhub_tasks_in_flight 0",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in exposition:\n%s", want, body)
		}
	}
}

func TestSubagentObserver(t *testing.T) {
	m := New()
	m.RunFinished("mcp", subagent.Request{}, subagent.Result{Success: true})
	m.RunFinished("cli", subagent.Request{}, subagent.Result{Success: false})

	body := scrape(t, m)
	for _, want := range []string{
		`cronhub_subagent_runs_total{mode="mcp",outcome="success"} 1`,
		`cronhub_subagent_runs_total{mode="cli",outcome="failure"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q", want)
		}
	}
}
