package logging

import "testing"

func TestOrNopHandlesNil(t *testing.T) {
	logger := OrNop(nil)
	if logger == nil {
		t.Fatal("OrNop(nil) returned nil")
	}
	// Must not panic.
	logger.Debug("debug %d", 1)
	logger.Info("info")
	logger.Warn("warn")
	logger.Error("error")
}

func TestOrNopHandlesTypedNil(t *testing.T) {
	var typed *componentLogger
	logger := OrNop(typed)
	if IsNil(logger) {
		t.Fatal("expected non-nil logger from OrNop")
	}
	logger.Info("should not panic")
}

func TestOrNopPassesThrough(t *testing.T) {
	base := NewComponentLogger("test")
	if got := OrNop(base); got != base {
		t.Fatalf("expected OrNop to return the original logger, got %v", got)
	}
}

func TestLevelString(t *testing.T) {
	cases := map[Level]string{
		LevelDebug: "DEBUG",
		LevelInfo:  "INFO",
		LevelWarn:  "WARN",
		LevelError: "ERROR",
		Level(99):  "UNKNOWN",
	}
	for level, want := range cases {
		if got := level.String(); got != want {
			t.Errorf("Level(%d).String() = %q, want %q", level, got, want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"DEBUG":   LevelDebug,
		"info":    LevelInfo,
		"warn":    LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"":        LevelInfo,
		"bogus":   LevelInfo,
	}
	for name, want := range cases {
		if got := ParseLevel(name); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", name, got, want)
		}
	}
}
