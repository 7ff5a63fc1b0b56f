package subagent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// writeFakeCLI puts an executable shell script on disk that prints the given
// stdout and exits with the given code.
func writeFakeCLI(t *testing.T, stdout string, exitCode int, sleep time.Duration) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake CLI scripts require a POSIX shell")
	}
	script := "#!/bin/sh\n"
	if sleep > 0 {
		seconds := int(sleep / time.Second)
		if seconds < 1 {
			seconds = 1
		}
		script += fmt.Sprintf("sleep %d\n", seconds)
	}
	script += "cat <<'EOF'\n" + stdout + "\nEOF\n"
	if exitCode != 0 {
		script += "exit 1\n"
	}
	path := filepath.Join(t.TempDir(), "claude")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake cli: %v", err)
	}
	return path
}

func TestCLIRunParsesResultField(t *testing.T) {
	path := writeFakeCLI(t, `{"result":"all done","num_turns":3,"is_error":false}`, 0, 0)
	exec := NewCLIExecutor(path, nil)

	result := exec.Run(context.Background(), Request{Prompt: "p", MaxTurns: 10, Timeout: 10 * time.Second})

	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}
	if result.Output != "all done" || result.ModeUsed != ModeCLI {
		t.Fatalf("unexpected result: %+v", result)
	}
	// The CLI drives its own loop, so the normalized result carries no
	// turn count or tool calls even when stdout reports num_turns.
	if result.TurnsUsed != 0 || len(result.ToolCalls) != 0 {
		t.Fatalf("CLI result not normalized: %+v", result)
	}
}

func TestCLIRunNonZeroExit(t *testing.T) {
	path := writeFakeCLI(t, "boom", 1, 0)
	exec := NewCLIExecutor(path, nil)

	result := exec.Run(context.Background(), Request{Prompt: "p", MaxTurns: 5, Timeout: 10 * time.Second})

	if result.Success {
		t.Fatal("expected failure on non-zero exit")
	}
	if !strings.Contains(result.Error, "claude CLI failed") {
		t.Fatalf("unexpected error: %q", result.Error)
	}
}

func TestCLIRunTimeout(t *testing.T) {
	path := writeFakeCLI(t, `{"result":"late"}`, 0, 3*time.Second)
	exec := NewCLIExecutor(path, nil)

	start := time.Now()
	result := exec.Run(context.Background(), Request{Prompt: "p", MaxTurns: 5, Timeout: 200 * time.Millisecond})

	if result.Success {
		t.Fatal("expected timeout failure")
	}
	if !strings.Contains(result.Error, "timed out") {
		t.Fatalf("unexpected error: %q", result.Error)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("process was not killed at the deadline")
	}
}

func TestCLIAvailability(t *testing.T) {
	path := writeFakeCLI(t, "{}", 0, 0)
	if !NewCLIExecutor(path, nil).Available() {
		t.Fatal("expected fake binary to be available")
	}
	if NewCLIExecutor("/nonexistent/claude", nil).Available() {
		t.Fatal("nonexistent binary reported available")
	}
}

func TestParseCLIOutputFallbacks(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		output  string
		success bool
	}{
		{"result field", `{"result":"hi"}`, "hi", true},
		{"content field", `{"content":"hello"}`, "hello", true},
		{"plain text", "just some text", "just some text", true},
		{"repairable json", `{"result":"fixed",}`, "fixed", true},
		{"error flag", `{"result":"bad","is_error":true}`, "bad", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := parseCLIOutput(tc.raw)
			if result.Output != tc.output {
				t.Fatalf("output %q, want %q", result.Output, tc.output)
			}
			if result.Success != tc.success {
				t.Fatalf("success %v, want %v", result.Success, tc.success)
			}
		})
	}

	empty := parseCLIOutput("   ")
	if empty.Success || empty.Error == "" {
		t.Fatalf("empty output should fail: %+v", empty)
	}
}
