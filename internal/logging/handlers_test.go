package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewFanoutHandlerNilHandlers(t *testing.T) {
	h := newFanoutHandler(nil, nil)
	if _, ok := h.(NoopHandler); !ok {
		t.Errorf("expected NoopHandler for all nil handlers, got %T", h)
	}
}

func TestNewFanoutHandlerSingleHandler(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	if h := newFanoutHandler(nil, inner); h != inner {
		t.Error("expected single non-nil handler to be returned unwrapped")
	}
}

func TestTeeLoggerRespectsPerHandlerLevels(t *testing.T) {
	var infoBuf, debugBuf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	logger := TeeLogger(base, NewJSONFileHandler(&debugBuf))

	logger.Debug("debug only")
	logger.Info("both")

	if strings.Contains(infoBuf.String(), "debug only") {
		t.Errorf("info handler received debug record: %s", infoBuf.String())
	}
	if !strings.Contains(debugBuf.String(), "debug only") || !strings.Contains(debugBuf.String(), "both") {
		t.Errorf("debug handler missing records: %s", debugBuf.String())
	}
	if !strings.Contains(infoBuf.String(), "both") {
		t.Errorf("info handler missing record: %s", infoBuf.String())
	}
}

func TestRunIDHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newRunIDHandler(slog.NewJSONHandler(&buf, nil), "run-abc")).With("extra", "value")
	logger.Info("test message")

	output := buf.String()
	if !strings.Contains(output, `"run_id":"run-abc"`) {
		t.Errorf("expected run_id in output, got: %s", output)
	}
	if !strings.Contains(output, `"extra":"value"`) {
		t.Errorf("expected extra attr in output, got: %s", output)
	}
	if _, ok := newRunIDHandler(nil, "x").(NoopHandler); !ok {
		t.Error("expected NoopHandler when base is nil")
	}
}

func TestLevelOverrideHandler(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	logger := WithLevelOverride(base, slog.LevelWarn)
	if logger.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("expected info disabled by override")
	}
	logger.Warn("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Fatalf("expected warn to pass override, got %s", buf.String())
	}
}

func TestSelectInfoFieldsPrioritizesHighlights(t *testing.T) {
	attrs := []kv{{key: "a", value: slog.IntValue(1)}, {key: FieldEventType, value: slog.StringValue("x")}}
	for i := 0; i < infoAttrLimit; i++ {
		attrs = append(attrs, kv{key: "extra" + string(rune('a'+i)), value: slog.IntValue(i)})
	}
	fields, hidden := selectInfoFields(attrs)
	if fields[0].key != FieldEventType {
		t.Fatalf("expected event_type first, got %q", fields[0].key)
	}
	if len(fields) != infoAttrLimit || hidden != 2 {
		t.Fatalf("unexpected trim: %d fields, %d hidden", len(fields), hidden)
	}
}

func TestFormatValueQuotes(t *testing.T) {
	if got := formatValue(slog.StringValue("")); got != `""` {
		t.Fatalf("expected quoted empty string, got %s", got)
	}
	if got := formatValue(slog.StringValue("plain value")); got != "plain value" {
		t.Fatalf("unexpected formatting: %s", got)
	}
	if got := formatValue(slog.StringValue("a\nb")); got != `"a\nb"` {
		t.Fatalf("expected escaped newline, got %s", got)
	}
}

func TestCleanupOldLogs(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "rdesktopd-old.log")
	fresh := filepath.Join(dir, "rdesktopd-new.log")
	keep := filepath.Join(dir, "rdesktopd-current.log")
	other := filepath.Join(dir, "notes.txt")
	for _, path := range []string{old, fresh, keep, other} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	stale := time.Now().AddDate(0, 0, -10)
	for _, path := range []string{old, keep, other} {
		if err := os.Chtimes(path, stale, stale); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	removed := CleanupOldLogs(nil, 3, RetentionTarget{Dir: dir, Pattern: "rdesktopd-*.log", Exclude: []string{keep}})
	if removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("expected old log removed, stat err=%v", err)
	}
	for _, path := range []string{fresh, keep, other} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s kept: %v", path, err)
		}
	}
	if CleanupOldLogs(nil, 0, RetentionTarget{Dir: dir}) != 0 {
		t.Fatal("expected retention 0 to disable pruning")
	}
}
