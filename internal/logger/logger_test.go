package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestNewLogger_ConsoleText(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Console = &buf

	log, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	log.Info("✓ photo.jpg: 10.00 KB → 5.00 KB (50.0% saved)")
	log.Debug("hidden at info level")

	if got := buf.String(); got != "✓ photo.jpg: 10.00 KB → 5.00 KB (50.0% saved)\n" {
		t.Errorf("Unexpected console output %q", got)
	}
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Level = "loud"
	if _, err := NewLogger(cfg); err == nil {
		t.Error("Expected error for invalid level")
	}
}

func TestNewLogger_FileReceivesJSON(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "logs", "optimize.log")

	var console bytes.Buffer
	cfg := DefaultConfig()
	cfg.Console = &console
	cfg.FilePath = logPath

	log, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	WithFileOperation(log, "/in/a.png", "transcode").Info("optimized")
	CloseHooks(log)

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Log file not created: %v", err)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(data), &entry); err != nil {
		t.Fatalf("Log file line is not JSON: %v\n%s", err, data)
	}
	if entry["message"] != "optimized" || entry["file"] != "/in/a.png" || entry["operation"] != "transcode" {
		t.Errorf("Unexpected log entry %v", entry)
	}
	if console.String() != "optimized\n" {
		t.Errorf("Unexpected console output %q", console.String())
	}
}

func TestNewLogger_NilConsoleDiscards(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Console = nil
	log, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	log.Info("nowhere")
}

func TestNewLogger_ConcurrentLinesDoNotTear(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Console = &buf

	log, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	line := strings.Repeat("x", 200)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info(line)
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 50 {
		t.Fatalf("Expected 50 lines, got %d", len(lines))
	}
	for _, l := range lines {
		if l != line {
			t.Fatalf("Torn line: %q", l)
		}
	}
}
