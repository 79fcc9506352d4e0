// Package config loads parleyd configuration from a YAML file and the
// environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// StoreBackend selects the durable session store implementation.
type StoreBackend string

const (
	BackendSQLite StoreBackend = "sqlite"
	BackendFile   StoreBackend = "file"
	BackendMemory StoreBackend = "memory"
)

// StoreConfig holds durable store settings.
type StoreConfig struct {
	Backend StoreBackend `yaml:"backend"`
	// Path is the database file for the sqlite backend, or the root
	// directory for the file backend.
	Path string `yaml:"path"`
}

// MemoryConfig holds context-shaping settings.
type MemoryConfig struct {
	// Policy is one of "all", "window", "summary".
	Policy string `yaml:"policy"`
	// WindowTurns caps the turns sent per inference call for the window
	// policy.
	WindowTurns int `yaml:"window_turns"`
	// SummaryThreshold is the transcript length that triggers
	// summarization for the summary policy.
	SummaryThreshold int `yaml:"summary_threshold"`
}

// Config holds the full parleyd configuration.
type Config struct {
	Addr           string   `yaml:"addr"`
	Debug          bool     `yaml:"debug"`
	AllowedOrigins []string `yaml:"allowed_origins"`

	Model        string   `yaml:"model"`
	SystemPrompt string   `yaml:"system_prompt"`
	MaxTokens    int      `yaml:"max_tokens"`
	Temperature  *float64 `yaml:"temperature,omitempty"`

	// TurnTimeout bounds a whole turn: queueing, inference and the
	// durable write.
	TurnTimeout time.Duration `yaml:"turn_timeout"`

	Store  StoreConfig  `yaml:"store"`
	Memory MemoryConfig `yaml:"memory"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Addr:           ":8484",
		AllowedOrigins: []string{"*"},
		Model:          "claude-sonnet-4-20250514",
		SystemPrompt:   "You are a helpful assistant.",
		MaxTokens:      1024,
		TurnTimeout:    2 * time.Minute,
		Store: StoreConfig{
			Backend: BackendSQLite,
			Path:    "./parley.db",
		},
		Memory: MemoryConfig{
			Policy:           "all",
			WindowTurns:      50,
			SummaryThreshold: 20,
		},
	}
}

// Load reads configuration from the YAML file at path (if non-empty) over
// the defaults, then applies environment overrides.
//
// Environment variables:
//
//	PORT                  — listen port (overrides addr)
//	PARLEY_ADDR           — listen address
//	PARLEY_MODEL          — model string
//	PARLEY_SYSTEM_PROMPT  — initial system turn content
//	PARLEY_STORE_BACKEND  — sqlite | file | memory
//	PARLEY_STORE_PATH     — database file or store directory
//	PARLEY_DEBUG          — enable debug logging
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Addr = fmt.Sprintf(":%d", p)
		}
	}
	if addr := os.Getenv("PARLEY_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if model := os.Getenv("PARLEY_MODEL"); model != "" {
		cfg.Model = model
	}
	if prompt := os.Getenv("PARLEY_SYSTEM_PROMPT"); prompt != "" {
		cfg.SystemPrompt = prompt
	}
	if backend := os.Getenv("PARLEY_STORE_BACKEND"); backend != "" {
		cfg.Store.Backend = StoreBackend(backend)
	}
	if path := os.Getenv("PARLEY_STORE_PATH"); path != "" {
		cfg.Store.Path = path
	}
	if debug := os.Getenv("PARLEY_DEBUG"); debug == "1" || debug == "true" {
		cfg.Debug = true
	}
}

// Validate checks the configuration for internally inconsistent values.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr must not be empty")
	}
	if c.Model == "" {
		return fmt.Errorf("model must not be empty")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive, got %d", c.MaxTokens)
	}
	switch c.Store.Backend {
	case BackendSQLite, BackendFile:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the %s backend", c.Store.Backend)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	switch c.Memory.Policy {
	case "all", "window", "summary":
	default:
		return fmt.Errorf("unknown memory policy %q", c.Memory.Policy)
	}
	return nil
}
