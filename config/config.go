package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const dataDirName = ".dedup"

// Config holds all configuration for the dedup tool.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Upload    UploadConfig    `yaml:"upload"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// StoreConfig selects the vector database backend.
type StoreConfig struct {
	Backend    string `yaml:"backend" validate:"oneof=memory bolt sqlite chroma qdrant"`
	Collection string `yaml:"collection" validate:"required"`
	Path       string `yaml:"path"`        // bolt/sqlite file; empty means inside the data dir
	URL        string `yaml:"url"`         // chroma/qdrant server
	APIKeyEnv  string `yaml:"api_key_env"` // qdrant only
	// MatchCandidates is how many nearest documents are checked for exact
	// duplicates. Zero or less checks the whole collection.
	MatchCandidates int           `yaml:"match_candidates"`
	Timeout         time.Duration `yaml:"timeout"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider" validate:"oneof=hash openai ollama jina deepseek"`
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"` // Environment variable for API key
	BaseURL   string `yaml:"base_url"`    // ollama only
	Dimension int    `yaml:"dimension" validate:"gte=0"`
}

// UploadConfig limits what can be uploaded.
type UploadConfig struct {
	Extensions []string `yaml:"extensions" validate:"min=1,dive,required"`
	MaxBytes   int64    `yaml:"max_bytes" validate:"gt=0"`
	Includes   []string `yaml:"includes"`
	Excludes   []string `yaml:"excludes"`
}

// ServerConfig holds web server configuration.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" validate:"oneof=console json"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Backend:         "bolt",
			Collection:      "files",
			APIKeyEnv:       "QDRANT_API_KEY",
			MatchCandidates: 10,
			Timeout:         15 * time.Second,
		},
		Embedding: EmbeddingConfig{
			Provider:  "hash",
			Model:     "text-embedding-3-small",
			APIKeyEnv: "OPENAI_API_KEY",
			Dimension: 256,
		},
		Upload: UploadConfig{
			Extensions: []string{".txt", ".md"},
			MaxBytes:   10 << 20,
			Includes:   []string{"**/*.txt", "**/*.md"},
			Excludes:   []string{"**/.git/**", "**/node_modules/**", "**/vendor/**", "**/.dedup/**"},
		},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate checks field constraints and backend-specific requirements.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	switch c.Store.Backend {
	case "chroma", "qdrant":
		if c.Store.URL == "" {
			return fmt.Errorf("invalid config: store.url is required for the %s backend", c.Store.Backend)
		}
	}
	if c.Embedding.Provider != "hash" && c.Embedding.Model == "" {
		return fmt.Errorf("invalid config: embedding.model is required for the %s provider", c.Embedding.Provider)
	}
	return nil
}

// LoadEnv loads a .env file from dir into the process environment.
// Variables already set are left alone; a missing file is not an error.
func LoadEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for dedup.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "dedup.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, dataDirName, "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// DataDir returns the directory holding local databases for dir.
func DataDir(dir string) string {
	return filepath.Join(dir, dataDirName)
}

// EnsureDataDir ensures the data directory exists.
func EnsureDataDir(dir string) error {
	return os.MkdirAll(DataDir(dir), 0755)
}

// StorePath returns the database file for local backends.
func (c *Config) StorePath(dir string) string {
	if c.Store.Path != "" {
		if filepath.IsAbs(c.Store.Path) {
			return c.Store.Path
		}
		return filepath.Join(dir, c.Store.Path)
	}
	switch c.Store.Backend {
	case "sqlite":
		return filepath.Join(DataDir(dir), "dedup.sqlite")
	default:
		return filepath.Join(DataDir(dir), "dedup.db")
	}
}
