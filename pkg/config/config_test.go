package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ticketflow.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("config file was not created")
	}
	if cfg.Server.Address != "127.0.0.1:8000" {
		t.Errorf("address = %s", cfg.Server.Address)
	}
	if cfg.NLP.Model != "gemma3:4b" || cfg.NLP.Concurrency != 6 {
		t.Errorf("nlp defaults = %+v", cfg.NLP)
	}
	if time.Duration(cfg.Geocoder.Timeout) != 20*time.Second {
		t.Errorf("geocoder timeout = %v", time.Duration(cfg.Geocoder.Timeout))
	}
	if cfg.Geocoder.RadiusM != 40000 || cfg.Geocoder.MaxConcurrency != 5 {
		t.Errorf("geocoder defaults = %+v", cfg.Geocoder)
	}
	if cfg.Batch.MaxTickets != 50 {
		t.Errorf("max tickets = %d", cfg.Batch.MaxTickets)
	}
	if cfg.Assign.FiftyFiftyFallback {
		t.Error("fifty_fifty_fallback must default to off")
	}
}

func TestLoadMergesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ticketflow.yaml")
	content := `
server:
  address: "0.0.0.0:9000"
nlp:
  model: "gemma3:1b"
geocoder:
  timeout: 5s
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Address != "0.0.0.0:9000" {
		t.Errorf("address = %s", cfg.Server.Address)
	}
	if cfg.NLP.Model != "gemma3:1b" {
		t.Errorf("model = %s", cfg.NLP.Model)
	}
	if time.Duration(cfg.Geocoder.Timeout) != 5*time.Second {
		t.Errorf("timeout = %v", time.Duration(cfg.Geocoder.Timeout))
	}
	// Untouched fields keep their defaults.
	if cfg.Batch.MaxTickets != 50 {
		t.Errorf("max tickets = %d", cfg.Batch.MaxTickets)
	}
}

func TestLoadEnvFallback(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://app@localhost/ticketflow")
	t.Setenv("TWO_GIS_API_KEY", "2gis-key")
	t.Setenv("OLLAMA_BASE_URL", "http://ollama:11434/v1")

	path := filepath.Join(t.TempDir(), "ticketflow.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DB.URL != "postgres://app@localhost/ticketflow" {
		t.Errorf("db url = %s", cfg.DB.URL)
	}
	if cfg.Geocoder.Key != "2gis-key" {
		t.Errorf("geocoder key = %s", cfg.Geocoder.Key)
	}
	if cfg.NLP.BaseURL != "http://ollama:11434/v1" {
		t.Errorf("nlp base url = %s", cfg.NLP.BaseURL)
	}
	if cfg.Agent.BaseURL != "http://ollama:11434/v1" {
		t.Errorf("agent base url = %s", cfg.Agent.BaseURL)
	}
}

func TestLoadFileBeatsEnv(t *testing.T) {
	t.Setenv("TWO_GIS_API_KEY", "env-key")

	path := filepath.Join(t.TempDir(), "ticketflow.yaml")
	content := "geocoder:\n  key: \"file-key\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Geocoder.Key != "file-key" {
		t.Errorf("geocoder key = %s, want file-key", cfg.Geocoder.Key)
	}
}

func TestLoadRejectsBadBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ticketflow.yaml")
	if err := os.WriteFile(path, []byte("batch:\n  max_tickets: -1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected error for negative max_tickets")
	}
}

func TestSaveInjectsComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ticketflow.yaml")
	if err := Save(path, DefaultConfig()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	if !strings.Contains(text, "# Ticketflow Configuration") {
		t.Error("header comment missing")
	}
	if !strings.Contains(text, "# Options: openai (Ollama-compatible), gemini") {
		t.Error("provider options comment missing")
	}
}

func TestGenerateDefaultKeepsExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ticketflow.yaml")
	if err := os.WriteFile(path, []byte("server:\n  address: keep\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := GenerateDefault(path); err != nil {
		t.Fatalf("GenerateDefault failed: %v", err)
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "address: keep") {
		t.Error("existing config was overwritten")
	}
}
