package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewJSONFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: WarnLevel, Stdout: &buf})
	if err != nil {
		t.Fatal(err)
	}
	l.Info("dropped")
	l.Warn("kept", String("scene", "Nebula"), Int("index", 3))
	_ = l.Sync()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("want one entry, got %q", buf.String())
	}
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("entry is not json: %v", err)
	}
	if entry["msg"] != "kept" || entry["level"] != "warn" || entry["scene"] != "Nebula" {
		t.Fatalf("unexpected entry %v", entry)
	}
	if entry["index"] != float64(3) {
		t.Fatalf("index = %v", entry["index"])
	}
}

func TestNewConsoleEncoder(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: DebugLevel, Console: true, Stdout: &buf})
	if err != nil {
		t.Fatal(err)
	}
	l.Debug("tick", Bool("stable", true))
	_ = l.Sync()
	out := buf.String()
	if strings.HasPrefix(out, "{") || !strings.Contains(out, "tick") {
		t.Fatalf("expected console line, got %q", out)
	}
}

func TestNewWritesFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "director.log")
	var buf bytes.Buffer
	l, err := New(Config{Level: InfoLevel, OutputPath: path, MaxSize: 1, Stdout: &buf})
	if err != nil {
		t.Fatal(err)
	}
	l.Info("export ready", Int64("size", 42))
	_ = l.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file: %v", err)
	}
	if !strings.Contains(string(data), `"export ready"`) {
		t.Fatalf("file sink missing entry: %s", data)
	}
	if buf.Len() == 0 {
		t.Fatal("console sink missing entry")
	}
}

func TestParseLevelDefaultsToInfo(t *testing.T) {
	if got := parseLevel("verbose"); got.String() != "info" {
		t.Fatalf("level = %v", got)
	}
}
