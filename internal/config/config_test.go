package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestDefaultConfig verifies the defaults are complete except for the
// exam identity, which must always be supplied.
func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Monitor.UpstreamURL != "ws://localhost:9000/ws" {
		t.Errorf("Unexpected default upstream: %s", config.Monitor.UpstreamURL)
	}
	if !config.Monitor.ArchiveViolations {
		t.Error("Expected archiving enabled by default")
	}
	if config.HTTP.Port != 8080 {
		t.Errorf("Expected port 8080, got %d", config.HTTP.Port)
	}
	if config.WebSocket.PingInterval != 30*time.Second {
		t.Errorf("Expected 30s ping interval, got %v", config.WebSocket.PingInterval)
	}

	if err := config.Validate(); err == nil {
		t.Error("Defaults without an exam id must not validate")
	}
}

// TestValidate covers each rejection branch.
func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := DefaultConfig()
		c.Monitor.ExamID = "exam1"
		return c
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("Expected valid config, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing exam id", func(c *Config) { c.Monitor.ExamID = "" }, "exam_id"},
		{"missing upstream", func(c *Config) { c.Monitor.UpstreamURL = "" }, "upstream_url"},
		{"nil monitor", func(c *Config) { c.Monitor = nil }, "monitor"},
		{"empty db path", func(c *Config) { c.Database.Path = "" }, "database path"},
		{"zero db timeout", func(c *Config) { c.Database.Timeout = 0 }, "timeout"},
		{"bad port low", func(c *Config) { c.HTTP.Port = 0 }, "port"},
		{"bad port high", func(c *Config) { c.HTTP.Port = 70000 }, "port"},
		{"empty host", func(c *Config) { c.HTTP.Host = "" }, "host"},
		{"zero ping interval", func(c *Config) { c.WebSocket.PingInterval = 0 }, "ping interval"},
		{"zero message size", func(c *Config) { c.WebSocket.MaxMessageSize = 0 }, "message size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

// TestLoadFromEnv verifies environment overlays on the defaults.
func TestLoadFromEnv(t *testing.T) {
	t.Setenv("EXAMWATCH_EXAM_ID", "midterm-cs101")
	t.Setenv("EXAMWATCH_UPSTREAM_URL", "wss://proctor.example.edu/ws")
	t.Setenv("EXAMWATCH_CREDENTIAL", "tok123")
	t.Setenv("EXAMWATCH_ARCHIVE_VIOLATIONS", "false")
	t.Setenv("EXAMWATCH_HTTP_PORT", "9090")
	t.Setenv("EXAMWATCH_WEBSOCKET_PING_INTERVAL", "15s")

	config := LoadFromEnv()

	if config.Monitor.ExamID != "midterm-cs101" {
		t.Errorf("Unexpected exam id: %s", config.Monitor.ExamID)
	}
	if config.Monitor.UpstreamURL != "wss://proctor.example.edu/ws" {
		t.Errorf("Unexpected upstream: %s", config.Monitor.UpstreamURL)
	}
	if config.Monitor.Credential != "tok123" {
		t.Errorf("Unexpected credential: %s", config.Monitor.Credential)
	}
	if config.Monitor.ArchiveViolations {
		t.Error("Expected archiving disabled via env")
	}
	if config.HTTP.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", config.HTTP.Port)
	}
	if config.WebSocket.PingInterval != 15*time.Second {
		t.Errorf("Expected 15s ping interval, got %v", config.WebSocket.PingInterval)
	}
	// Untouched settings keep their defaults.
	if config.Database.Path != "./examwatch.db" {
		t.Errorf("Unexpected db path: %s", config.Database.Path)
	}

	if err := config.Validate(); err != nil {
		t.Errorf("Env config should validate: %v", err)
	}
}

// TestLoadFromEnv_BadValuesIgnored verifies unparseable env values fall
// back to defaults instead of failing startup.
func TestLoadFromEnv_BadValuesIgnored(t *testing.T) {
	t.Setenv("EXAMWATCH_HTTP_PORT", "not-a-port")
	t.Setenv("EXAMWATCH_DATABASE_TIMEOUT", "eleventy")

	config := LoadFromEnv()
	if config.HTTP.Port != 8080 {
		t.Errorf("Expected default port kept, got %d", config.HTTP.Port)
	}
	if config.Database.Timeout != 30*time.Second {
		t.Errorf("Expected default timeout kept, got %v", config.Database.Timeout)
	}
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

// TestLoadFromFile verifies JSON parsing with string durations.
func TestLoadFromFile(t *testing.T) {
	path := writeConfigFile(t, `{
		"monitor": {
			"exam_id": "final-math200",
			"credential": "filetok",
			"archive_violations": false
		},
		"http": {"port": 9191, "read_timeout": "45s"},
		"websocket": {"ping_interval": "20s", "max_message_size": 32768}
	}`)

	config, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if config.Monitor.ExamID != "final-math200" || config.Monitor.Credential != "filetok" {
		t.Errorf("Unexpected monitor config: %+v", config.Monitor)
	}
	if config.Monitor.ArchiveViolations {
		t.Error("Expected archiving disabled via file")
	}
	if config.HTTP.Port != 9191 || config.HTTP.ReadTimeout != 45*time.Second {
		t.Errorf("Unexpected http config: %+v", config.HTTP)
	}
	if config.WebSocket.PingInterval != 20*time.Second || config.WebSocket.MaxMessageSize != 32768 {
		t.Errorf("Unexpected websocket config: %+v", config.WebSocket)
	}
	// Unset sections keep defaults.
	if config.Database.Timeout != 30*time.Second {
		t.Errorf("Unexpected db timeout: %v", config.Database.Timeout)
	}
}

// TestLoadFromFile_Errors verifies missing, malformed and invalid files
// are rejected.
func TestLoadFromFile_Errors(t *testing.T) {
	if _, err := LoadFromFile("/nonexistent/config.json"); err == nil {
		t.Error("Expected error for missing file")
	}

	bad := writeConfigFile(t, `{not json`)
	if _, err := LoadFromFile(bad); err == nil {
		t.Error("Expected error for malformed JSON")
	}

	// Parses but fails validation: no exam id anywhere.
	incomplete := writeConfigFile(t, `{"http": {"port": 9000}}`)
	if _, err := LoadFromFile(incomplete); err == nil {
		t.Error("Expected validation error for config without exam id")
	}
}

// TestLoadConfigWithPrecedence verifies file > env > defaults.
func TestLoadConfigWithPrecedence(t *testing.T) {
	t.Setenv("EXAMWATCH_EXAM_ID", "env-exam")
	t.Setenv("EXAMWATCH_HTTP_PORT", "9090")

	path := writeConfigFile(t, `{"monitor": {"exam_id": "file-exam"}}`)

	config := LoadConfigWithPrecedence(path)
	if config.Monitor.ExamID != "file-exam" {
		t.Errorf("Expected file to win, got %s", config.Monitor.ExamID)
	}
	// File config is rebuilt from defaults, not layered over env.
	if config.HTTP.Port != 8080 {
		t.Errorf("Expected file config defaults, got port %d", config.HTTP.Port)
	}

	// Unreadable file falls back to the env result.
	config = LoadConfigWithPrecedence("/nonexistent/config.json")
	if config.Monitor.ExamID != "env-exam" || config.HTTP.Port != 9090 {
		t.Errorf("Expected env fallback, got %+v", config)
	}

	// No path at all: pure env.
	config = LoadConfigWithPrecedence("")
	if config.Monitor.ExamID != "env-exam" {
		t.Errorf("Expected env config, got %s", config.Monitor.ExamID)
	}
}
