// Package config handles codefusion configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/codefusion/config.yaml, /etc/codefusion/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "codefusion", "config.yaml"))
	}

	paths = append(paths, "/etc/codefusion/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all codefusion configuration.
type Config struct {
	Listen    ListenConfig    `yaml:"listen"`
	PublicURL string          `yaml:"public_url"`
	DataDir   string          `yaml:"data_dir"`
	Database  DatabaseConfig  `yaml:"database"`
	LogLevel  string          `yaml:"log_level"`
	LogFormat string          `yaml:"log_format"`
	LLM       LLMConfig       `yaml:"llm"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Ollama    OllamaConfig    `yaml:"ollama"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	Audio     AudioConfig     `yaml:"audio"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// DatabaseConfig selects the SQL driver and database file.
type DatabaseConfig struct {
	// Driver is "sqlite3" (mattn/go-sqlite3, CGO) or "sqlite"
	// (modernc.org/sqlite, pure Go).
	Driver string `yaml:"driver"`
	// Path defaults to <data_dir>/codefusion.db.
	Path string `yaml:"path"`
}

// LLMConfig controls the chat completion used for each conversation turn.
type LLMConfig struct {
	// Provider is openai, ollama or anthropic.
	Provider       string        `yaml:"provider"`
	Model          string        `yaml:"model"`
	Temperature    float64       `yaml:"temperature"`
	MaxTokens      int           `yaml:"max_tokens"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// OpenAIConfig defines OpenAI-compatible API settings. Transcription and
// speech synthesis always go through this provider.
type OpenAIConfig struct {
	APIKey             string `yaml:"api_key"`
	BaseURL            string `yaml:"base_url"`
	TranscriptionModel string `yaml:"transcription_model"`
	SpeechModel        string `yaml:"speech_model"`
	DefaultVoice       string `yaml:"default_voice"`
}

// Configured reports whether an API key is present.
func (c OpenAIConfig) Configured() bool { return c.APIKey != "" }

// OllamaConfig defines the local Ollama endpoint.
type OllamaConfig struct {
	URL string `yaml:"url"`
}

// AnthropicConfig defines Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
}

// Configured reports whether an API key is present.
func (c AnthropicConfig) Configured() bool { return c.APIKey != "" }

// AudioConfig bounds audio uploads before they reach the transcriber.
type AudioConfig struct {
	MaxUploadBytes int64    `yaml:"max_upload_bytes"`
	AllowedTypes   []string `yaml:"allowed_types"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads configuration from a YAML file, expanding environment
// variables first so secrets can be written as ${OPENAI_API_KEY}.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 8080
	}
	if c.DataDir == "" {
		c.DataDir = "./db"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite3"
	}
	if c.Database.Path == "" {
		c.Database.Path = filepath.Join(c.DataDir, "codefusion.db")
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.Model == "" {
		switch c.LLM.Provider {
		case "ollama":
			c.LLM.Model = "qwen3:4b"
		case "anthropic":
			c.LLM.Model = "claude-sonnet-4-20250514"
		default:
			c.LLM.Model = "gpt-4o"
		}
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.7
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 150
	}
	if c.LLM.RequestTimeout == 0 {
		c.LLM.RequestTimeout = 60 * time.Second
	}
	if c.OpenAI.BaseURL == "" {
		c.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if c.OpenAI.TranscriptionModel == "" {
		c.OpenAI.TranscriptionModel = "whisper-1"
	}
	if c.OpenAI.SpeechModel == "" {
		c.OpenAI.SpeechModel = "tts-1"
	}
	if c.OpenAI.DefaultVoice == "" {
		c.OpenAI.DefaultVoice = "alloy"
	}
	if c.Ollama.URL == "" {
		c.Ollama.URL = "http://localhost:11434"
	}
	if c.Audio.MaxUploadBytes == 0 {
		c.Audio.MaxUploadBytes = 5 << 20
	}
	if len(c.Audio.AllowedTypes) == 0 {
		c.Audio.AllowedTypes = []string{"audio/mpeg", "audio/mp3", "audio/wav", "audio/ogg"}
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate checks the configuration for values that would only fail
// later at runtime.
func (c *Config) Validate() error {
	if c.Listen.Port < 1 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen.port %d out of range", c.Listen.Port)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("log_format %q invalid (valid: text, json)", c.LogFormat)
	}
	switch c.Database.Driver {
	case "sqlite3", "sqlite":
	default:
		return fmt.Errorf("database.driver %q invalid (valid: sqlite3, sqlite)", c.Database.Driver)
	}
	switch c.LLM.Provider {
	case "openai":
		if !c.OpenAI.Configured() {
			return fmt.Errorf("llm.provider is openai but openai.api_key is empty")
		}
	case "anthropic":
		if !c.Anthropic.Configured() {
			return fmt.Errorf("llm.provider is anthropic but anthropic.api_key is empty")
		}
	case "ollama":
	default:
		return fmt.Errorf("llm.provider %q invalid (valid: openai, ollama, anthropic)", c.LLM.Provider)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature %v out of range [0, 2]", c.LLM.Temperature)
	}
	if c.LLM.MaxTokens < 1 {
		return fmt.Errorf("llm.max_tokens must be positive")
	}
	if c.Audio.MaxUploadBytes < 1 {
		return fmt.Errorf("audio.max_upload_bytes must be positive")
	}
	for _, t := range c.Audio.AllowedTypes {
		if !strings.HasPrefix(t, "audio/") {
			return fmt.Errorf("audio.allowed_types: %q is not an audio MIME type", t)
		}
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path %q must start with /", c.Metrics.Path)
	}
	return nil
}
