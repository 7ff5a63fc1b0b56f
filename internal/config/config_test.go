package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SubagentTimeout != 300*time.Second {
		t.Fatalf("expected 300s timeout, got %s", cfg.SubagentTimeout)
	}
	if cfg.SubagentMaxTurns != 10 {
		t.Fatalf("expected 10 max turns, got %d", cfg.SubagentMaxTurns)
	}
	if cfg.SubagentDefaultMode != "auto" {
		t.Fatalf("expected auto mode, got %q", cfg.SubagentDefaultMode)
	}
	if cfg.Port != DefaultPort || cfg.DBPath != DefaultDBPath {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SUBAGENT_TIMEOUT", "30")
	t.Setenv("SUBAGENT_MAX_TURNS", "4")
	t.Setenv("SUBAGENT_DEFAULT_MODE", "MCP")
	t.Setenv("CLAUDE_MODEL", "claude-opus-4-20250514")
	t.Setenv("CRONHUB_DB_PATH", "/tmp/test.db")
	t.Setenv("PORT", "9191")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SubagentTimeout != 30*time.Second {
		t.Fatalf("expected 30s timeout, got %s", cfg.SubagentTimeout)
	}
	if cfg.SubagentMaxTurns != 4 {
		t.Fatalf("expected 4 max turns, got %d", cfg.SubagentMaxTurns)
	}
	if cfg.SubagentDefaultMode != "mcp" {
		t.Fatalf("mode not normalized: %q", cfg.SubagentDefaultMode)
	}
	if cfg.Model != "claude-opus-4-20250514" || cfg.DBPath != "/tmp/test.db" || cfg.Port != 9191 {
		t.Fatalf("env values not applied: %+v", cfg)
	}
}

func TestEnvWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cronhub.yaml")
	data := "subagent_timeout: 60\nport: 8000\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("SUBAGENT_TIMEOUT", "15")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SubagentTimeout != 15*time.Second {
		t.Fatalf("env should win over file, got %s", cfg.SubagentTimeout)
	}
	if cfg.Port != 8000 {
		t.Fatalf("file value not applied, got %d", cfg.Port)
	}
}

func TestLoadRejectsInvalidMode(t *testing.T) {
	t.Setenv("SUBAGENT_DEFAULT_MODE", "turbo")

	if _, err := Load(""); err == nil {
		t.Fatal("expected error for invalid mode")
	}
}

func TestLoadRejectsNonPositiveTimeout(t *testing.T) {
	t.Setenv("SUBAGENT_TIMEOUT", "0")

	if _, err := Load(""); err == nil {
		t.Fatal("expected error for zero timeout")
	}
}
