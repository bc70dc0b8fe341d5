// Package config loads the callflow TOML configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/callflow/pkg/prompt"
	"github.com/papercomputeco/callflow/pkg/storage"
)

// Storage drivers.
const (
	DriverJSONFile = "jsonfile"
	DriverSQLite   = "sqlite"
)

// Completion providers.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// DefaultPath is read when no --config flag is given.
const DefaultPath = "callflow.toml"

// Config is the full service configuration.
type Config struct {
	// Address to listen on (e.g., ":8000")
	Listen string `toml:"listen"`

	// Debug enables debug logging.
	Debug bool `toml:"debug"`

	Store      StoreConfig      `toml:"store"`
	Completion CompletionConfig `toml:"completion"`
	Persona    PersonaConfig    `toml:"persona"`
}

// StoreConfig selects and configures the turn log.
type StoreConfig struct {
	// Driver is "jsonfile" or "sqlite".
	Driver string `toml:"driver"`

	// Path is the JSON file or SQLite database path.
	Path string `toml:"path"`

	// HistoryLimit is how many recent turns are searched for a call's history.
	HistoryLimit int `toml:"history_limit"`
}

// CompletionConfig selects and configures the completion service.
type CompletionConfig struct {
	// Provider is "openai" or "ollama".
	Provider string `toml:"provider"`

	Model       string  `toml:"model"`
	Temperature float64 `toml:"temperature"`

	// BaseURL overrides the provider endpoint. Required for ollama.
	BaseURL string `toml:"base_url"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `toml:"api_key_env"`
}

// PersonaConfig holds the instruction entry sent ahead of every conversation.
type PersonaConfig struct {
	Prompt string `toml:"prompt"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Listen: ":8000",
		Store: StoreConfig{
			Driver:       DriverJSONFile,
			Path:         "messages.json",
			HistoryLimit: storage.DefaultLimit,
		},
		Completion: CompletionConfig{
			Provider:  ProviderOpenAI,
			Model:     "gpt-4o-mini",
			APIKeyEnv: "OPENAI_API_KEY",
		},
		Persona: PersonaConfig{
			Prompt: prompt.DefaultPersona,
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	md, err := toml.DecodeFile(path, cfg)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not parse config %s: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown config keys in %s: %s", path, strings.Join(keys, ", "))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks enumerated values and required fields.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen address is required")
	}

	switch c.Store.Driver {
	case DriverJSONFile, DriverSQLite:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Store.Path == "" {
		return errors.New("store path is required")
	}
	if c.Store.HistoryLimit <= 0 {
		return fmt.Errorf("history_limit must be positive, got %d", c.Store.HistoryLimit)
	}

	switch c.Completion.Provider {
	case ProviderOpenAI:
	case ProviderOllama:
		if c.Completion.BaseURL == "" {
			return errors.New("completion base_url is required for ollama")
		}
	default:
		return fmt.Errorf("unknown completion provider %q", c.Completion.Provider)
	}

	return nil
}
