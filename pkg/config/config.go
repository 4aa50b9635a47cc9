package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	DB       DBConfig       `yaml:"db"`
	Log      LogConfig      `yaml:"log"`
	NLP      NLPConfig      `yaml:"nlp"`
	Geocoder GeocoderConfig `yaml:"geocoder"`
	Agent    AgentConfig    `yaml:"agent"`
	Assign   AssignConfig   `yaml:"assign"`
	Batch    BatchConfig    `yaml:"batch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
	// FrontendOrigin is the allowed CORS origin. Empty means the
	// development default http://localhost:3000.
	FrontendOrigin string `yaml:"frontend_origin"`
}

// DBConfig holds database settings. URL switches the store to Postgres;
// otherwise Path names the SQLite file.
type DBConfig struct {
	Path string `yaml:"path"`
	URL  string `yaml:"url"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server   LogSettings `yaml:"server"`
	Requests LogSettings `yaml:"requests"`
	Outcomes LogSettings `yaml:"outcomes"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// NLPConfig holds settings for the Ollama-served analysis model. An
// empty BaseURL means the local Ollama default.
type NLPConfig struct {
	BaseURL     string `yaml:"base_url"`
	Key         string `yaml:"key"`
	Model       string `yaml:"model"`
	Concurrency int64  `yaml:"concurrency"`
}

// GeocoderConfig holds 2GIS settings.
type GeocoderConfig struct {
	Key            string   `yaml:"key"`
	BaseURL        string   `yaml:"base_url"`
	Timeout        Duration `yaml:"timeout"`
	MaxConcurrency int64    `yaml:"max_concurrency"`
	RadiusM        int      `yaml:"radius_m"`
}

// AgentConfig holds settings for the Q&A assistant.
type AgentConfig struct {
	Provider string `yaml:"provider"` // "openai" (Ollama-compatible) or "gemini"
	BaseURL  string `yaml:"base_url"`
	Key      string `yaml:"key"`
	Model    string `yaml:"model"`
}

// AssignConfig holds routing settings.
type AssignConfig struct {
	// FiftyFiftyFallback assigns tickets without coordinates to the two
	// hub offices in alternation instead of leaving them unmapped.
	FiftyFiftyFallback bool `yaml:"fifty_fifty_fallback"`
}

// BatchConfig holds upload limits.
type BatchConfig struct {
	MaxTickets int `yaml:"max_tickets"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:        "127.0.0.1:8000",
			FrontendOrigin: "",
		},
		DB: DBConfig{
			Path: "./data/ticketflow.db",
		},
		Log: LogConfig{
			Server: LogSettings{
				Path:  "./logs/server.log",
				Level: "INFO",
			},
			Requests: LogSettings{
				Path:  "./logs/requests.log",
				Level: "INFO",
			},
			Outcomes: LogSettings{
				Path: "./logs/outcomes.log",
			},
		},
		NLP: NLPConfig{
			BaseURL:     "",
			Key:         "",
			Model:       "gemma3:4b",
			Concurrency: 6,
		},
		Geocoder: GeocoderConfig{
			Key:            "",
			BaseURL:        "",
			Timeout:        Duration(20 * time.Second),
			MaxConcurrency: 5,
			RadiusM:        40000,
		},
		Agent: AgentConfig{
			Provider: "openai",
			BaseURL:  "",
			Key:      "",
			Model:    "gemma3:4b",
		},
		Assign: AssignConfig{
			FiftyFiftyFallback: false,
		},
		Batch: BatchConfig{
			MaxTickets: 50,
		},
	}
}

// Load loads the configuration from the given path.
// A .env file in the working directory is read first; environment
// variables fill fields the file leaves empty.
// If the file does not exist, it is created with default values.
// If the file exists, defaults are merged with existing values but NOT
// saved back to disk (to preserve user formatting and comments).
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else {
		if err := Save(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to save config file: %w", err)
		}
	}

	applyEnv(cfg)

	if cfg.Batch.MaxTickets <= 0 {
		return nil, fmt.Errorf("batch.max_tickets must be positive, got %d", cfg.Batch.MaxTickets)
	}

	return cfg, nil
}

// applyEnv fills empty fields from the environment. File values win.
func applyEnv(cfg *Config) {
	if cfg.DB.URL == "" {
		cfg.DB.URL = os.Getenv("DATABASE_URL")
	}
	if cfg.Geocoder.Key == "" {
		cfg.Geocoder.Key = os.Getenv("TWO_GIS_API_KEY")
	}
	if cfg.NLP.BaseURL == "" {
		cfg.NLP.BaseURL = os.Getenv("OLLAMA_BASE_URL")
	}
	if cfg.Server.FrontendOrigin == "" {
		cfg.Server.FrontendOrigin = os.Getenv("FRONTEND_ORIGIN")
	}
	if cfg.Agent.BaseURL == "" && cfg.Agent.Provider == "openai" {
		cfg.Agent.BaseURL = os.Getenv("OLLAMA_BASE_URL")
	}
	if cfg.Agent.Key == "" && cfg.Agent.Provider == "gemini" {
		cfg.Agent.Key = os.Getenv("GEMINI_API_KEY")
	}
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Ticketflow Configuration
# -----------------------
# Duration units: ns, us, ms, s, m, h, d (day), w (week)
# Empty keys fall back to environment variables:
#   DATABASE_URL, TWO_GIS_API_KEY, OLLAMA_BASE_URL,
#   GEMINI_API_KEY, FRONTEND_ORIGIN

`)
	data = append(header, data...)

	// Inject comments for enum fields so the generated file explains itself.
	reProvider := regexp.MustCompile(`(?m)^(\s+)provider:`)
	data = reProvider.ReplaceAll(data, []byte("${1}# Options: openai (Ollama-compatible), gemini\n${1}provider:"))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return Save(path, DefaultConfig())
}
