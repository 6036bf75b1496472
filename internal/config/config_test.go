package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestFindConfig_Explicit(t *testing.T) {
	path := writeConfig(t, "listen:\n  port: 9999\n")

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q) error: %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q, want %q", path, got, path)
	}
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	if _, err := FindConfig("/nonexistent/config.yaml"); err == nil {
		t.Fatal("FindConfig with missing explicit path should error")
	}
}

func TestFindConfig_CWD(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("listen:\n  port: 8080\n"), 0600)

	orig, _ := os.Getwd()
	os.Chdir(dir)
	defer os.Chdir(orig)

	got, err := FindConfig("")
	if err != nil {
		t.Fatalf("FindConfig(\"\") error: %v", err)
	}
	if got != "config.yaml" {
		t.Errorf("FindConfig(\"\") = %q, want %q", got, "config.yaml")
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("CODEFUSION_TEST_KEY", "sk-test-123")
	path := writeConfig(t, "openai:\n  api_key: ${CODEFUSION_TEST_KEY}\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.OpenAI.APIKey != "sk-test-123" {
		t.Errorf("api_key = %q, want %q", cfg.OpenAI.APIKey, "sk-test-123")
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "openai:\n  api_key: sk-test\ndata_dir: /var/lib/codefusion\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Listen.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Listen.Port)
	}
	if cfg.LLM.Model != "gpt-4o" {
		t.Errorf("model = %q, want gpt-4o", cfg.LLM.Model)
	}
	if cfg.LLM.Temperature != 0.7 {
		t.Errorf("temperature = %v, want 0.7", cfg.LLM.Temperature)
	}
	if cfg.LLM.MaxTokens != 150 {
		t.Errorf("max_tokens = %d, want 150", cfg.LLM.MaxTokens)
	}
	if cfg.Database.Path != filepath.Join("/var/lib/codefusion", "codefusion.db") {
		t.Errorf("database.path = %q", cfg.Database.Path)
	}
	if cfg.Audio.MaxUploadBytes != 5*1024*1024 {
		t.Errorf("max_upload_bytes = %d, want 5 MiB", cfg.Audio.MaxUploadBytes)
	}
	if len(cfg.Audio.AllowedTypes) != 4 {
		t.Errorf("allowed_types = %v, want 4 entries", cfg.Audio.AllowedTypes)
	}
	if cfg.OpenAI.DefaultVoice != "alloy" {
		t.Errorf("default_voice = %q, want alloy", cfg.OpenAI.DefaultVoice)
	}
}

func TestLoad_Overrides(t *testing.T) {
	path := writeConfig(t, `
llm:
  provider: ollama
  temperature: 0.2
  max_tokens: 300
  request_timeout: 45s
database:
  driver: sqlite
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.LLM.Model != "qwen3:4b" {
		t.Errorf("model = %q, want ollama default", cfg.LLM.Model)
	}
	if cfg.LLM.RequestTimeout != 45*time.Second {
		t.Errorf("request_timeout = %v, want 45s", cfg.LLM.RequestTimeout)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("driver = %q, want sqlite", cfg.Database.Driver)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"missing openai key", "llm:\n  provider: openai\n", "openai.api_key"},
		{"missing anthropic key", "llm:\n  provider: anthropic\n", "anthropic.api_key"},
		{"unknown provider", "llm:\n  provider: cohere\n", "llm.provider"},
		{"bad driver", "llm:\n  provider: ollama\ndatabase:\n  driver: postgres\n", "database.driver"},
		{"bad log level", "llm:\n  provider: ollama\nlog_level: loud\n", "unknown log level"},
		{"bad log format", "llm:\n  provider: ollama\nlog_format: xml\n", "log_format"},
		{"bad audio type", "llm:\n  provider: ollama\naudio:\n  allowed_types: [video/mp4]\n", "audio.allowed_types"},
		{"bad port", "llm:\n  provider: ollama\nlisten:\n  port: 70000\n", "listen.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			if err == nil {
				t.Fatalf("Load succeeded, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"TRACE", LevelTrace, false},
		{" debug ", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLogLevel(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLogger_TraceName(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LevelTrace, "text")
	logger.Log(t.Context(), LevelTrace, "wire payload")

	if !strings.Contains(buf.String(), "level=TRACE") {
		t.Errorf("log output %q missing level=TRACE", buf.String())
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, slog.LevelInfo, "json").Info("hello", "k", "v")

	if !strings.HasPrefix(buf.String(), "{") {
		t.Errorf("json logger output %q is not JSON", buf.String())
	}
}
