package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ticketflow/pkg/config"
)

func TestInit(t *testing.T) {
	tempDir := t.TempDir()
	serverLog := filepath.Join(tempDir, "server.log")
	requestLog := filepath.Join(tempDir, "requests.log")

	cfg := &config.LogConfig{
		Server: config.LogSettings{
			Path:  serverLog,
			Level: "DEBUG",
		},
		Requests: config.LogSettings{
			Path:  requestLog,
			Level: "INFO",
		},
		Outcomes: config.LogSettings{
			Path: filepath.Join(tempDir, "outcomes.log"),
		},
	}

	cleanup, err := Init(cfg)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer cleanup()

	if _, err := os.Stat(serverLog); os.IsNotExist(err) {
		t.Error("Server log file not created")
	}
	if _, err := os.Stat(requestLog); os.IsNotExist(err) {
		t.Error("Request log file not created")
	}
	if RequestLogger == nil {
		t.Error("RequestLogger was not initialized")
	}
}

func TestRotatePaths(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "server.log")

	if err := os.WriteFile(logPath, []byte("previous run\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	rotatePaths(logPath)

	data, err := os.ReadFile(logPath + ".old")
	if err != nil {
		t.Fatalf("rotated file missing: %v", err)
	}
	if string(data) != "previous run\n" {
		t.Errorf("rotated content = %q", data)
	}
	if _, err := os.Stat(logPath); !os.IsNotExist(err) {
		t.Error("current log should have been moved away")
	}
}

func TestLogOutcome(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "outcomes.log")
	SetOutcomeLogPath(path)
	defer SetOutcomeLogPath("")

	LogOutcome("OK", "guid-1", "Иванов И. / Астана")
	LogOutcome("UNMAPPED", "guid-2", "")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("outcome log missing: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, "[OK] guid-1 - Иванов И. / Астана") {
		t.Errorf("missing OK line in %q", text)
	}
	if !strings.Contains(text, "[UNMAPPED] guid-2") {
		t.Errorf("missing UNMAPPED line in %q", text)
	}
	if strings.Contains(text, "guid-2 -") {
		t.Error("empty detail must not produce a trailing dash")
	}
}

func TestLogOutcomeWithoutPath(t *testing.T) {
	SetOutcomeLogPath("")
	// Must be a no-op, not a panic.
	LogOutcome("OK", "guid", "detail")
}
