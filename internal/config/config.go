package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the system-wide settings coordinator for the monitor.
type Config struct {
	Monitor   *MonitorConfig   `json:"monitor"`
	Database  *DatabaseConfig  `json:"database"`
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
}

// MonitorConfig identifies the exam being monitored and the upstream
// proctoring gateway delivering its event streams.
type MonitorConfig struct {
	ExamID      string `json:"exam_id"`
	UpstreamURL string `json:"upstream_url"`
	Credential  string `json:"credential"`
	// ArchiveViolations enables the sqlite violation archive.
	ArchiveViolations bool `json:"archive_violations"`
}

// DatabaseConfig covers the metadata store / violation archive.
type DatabaseConfig struct {
	Path    string        `json:"path"`
	Timeout time.Duration `json:"timeout"`
}

// HTTPConfig covers the read-only snapshot API.
type HTTPConfig struct {
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	Host         string        `json:"host"`
}

// WebSocketConfig covers the upstream event connections.
type WebSocketConfig struct {
	HandshakeTimeout time.Duration `json:"handshake_timeout"`
	PingInterval     time.Duration `json:"ping_interval"`
	ReadTimeout      time.Duration `json:"read_timeout"`
	WriteTimeout     time.Duration `json:"write_timeout"`
	MaxMessageSize   int64         `json:"max_message_size"`
}

// DefaultConfig returns working defaults for a locally-run gateway.
// Monitor.ExamID and Credential have no defaults; they must come from the
// environment or a config file.
func DefaultConfig() *Config {
	return &Config{
		Monitor: &MonitorConfig{
			UpstreamURL:       "ws://localhost:9000/ws",
			ArchiveViolations: true,
		},
		Database: &DatabaseConfig{
			Path:    "./examwatch.db",
			Timeout: 30 * time.Second,
		},
		HTTP: &HTTPConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			Host:         "0.0.0.0",
		},
		WebSocket: &WebSocketConfig{
			HandshakeTimeout: 10 * time.Second,
			PingInterval:     30 * time.Second,
			ReadTimeout:      60 * time.Second,
			WriteTimeout:     10 * time.Second,
			MaxMessageSize:   64 * 1024,
		},
	}
}

// Validate rejects configurations that would fail at runtime.
func (c *Config) Validate() error {
	if c.Monitor == nil {
		return fmt.Errorf("monitor configuration is required")
	}
	if c.Monitor.ExamID == "" {
		return fmt.Errorf("monitor exam_id cannot be empty")
	}
	if c.Monitor.UpstreamURL == "" {
		return fmt.Errorf("monitor upstream_url cannot be empty")
	}

	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP write timeout must be positive")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.HandshakeTimeout <= 0 {
		return fmt.Errorf("WebSocket handshake timeout must be positive")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= 0 {
		return fmt.Errorf("WebSocket read timeout must be positive")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.MaxMessageSize <= 0 {
		return fmt.Errorf("WebSocket max message size must be positive")
	}

	return nil
}

// LoadFromEnv overlays EXAMWATCH_* environment variables on the defaults.
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if examID := os.Getenv("EXAMWATCH_EXAM_ID"); examID != "" {
		config.Monitor.ExamID = examID
	}
	if upstream := os.Getenv("EXAMWATCH_UPSTREAM_URL"); upstream != "" {
		config.Monitor.UpstreamURL = upstream
	}
	if credential := os.Getenv("EXAMWATCH_CREDENTIAL"); credential != "" {
		config.Monitor.Credential = credential
	}
	if archive := os.Getenv("EXAMWATCH_ARCHIVE_VIOLATIONS"); archive != "" {
		if enabled, err := strconv.ParseBool(archive); err == nil {
			config.Monitor.ArchiveViolations = enabled
		}
	}

	if port := os.Getenv("EXAMWATCH_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.HTTP.Port = p
		}
	}
	if host := os.Getenv("EXAMWATCH_HTTP_HOST"); host != "" {
		config.HTTP.Host = host
	}
	if readTimeout := os.Getenv("EXAMWATCH_HTTP_READ_TIMEOUT"); readTimeout != "" {
		if timeout, err := time.ParseDuration(readTimeout); err == nil {
			config.HTTP.ReadTimeout = timeout
		}
	}
	if writeTimeout := os.Getenv("EXAMWATCH_HTTP_WRITE_TIMEOUT"); writeTimeout != "" {
		if timeout, err := time.ParseDuration(writeTimeout); err == nil {
			config.HTTP.WriteTimeout = timeout
		}
	}

	if dbPath := os.Getenv("EXAMWATCH_DATABASE_PATH"); dbPath != "" {
		config.Database.Path = dbPath
	}
	if dbTimeout := os.Getenv("EXAMWATCH_DATABASE_TIMEOUT"); dbTimeout != "" {
		if timeout, err := time.ParseDuration(dbTimeout); err == nil {
			config.Database.Timeout = timeout
		}
	}

	if handshake := os.Getenv("EXAMWATCH_WEBSOCKET_HANDSHAKE_TIMEOUT"); handshake != "" {
		if timeout, err := time.ParseDuration(handshake); err == nil {
			config.WebSocket.HandshakeTimeout = timeout
		}
	}
	if pingInterval := os.Getenv("EXAMWATCH_WEBSOCKET_PING_INTERVAL"); pingInterval != "" {
		if interval, err := time.ParseDuration(pingInterval); err == nil {
			config.WebSocket.PingInterval = interval
		}
	}
	if wsReadTimeout := os.Getenv("EXAMWATCH_WEBSOCKET_READ_TIMEOUT"); wsReadTimeout != "" {
		if timeout, err := time.ParseDuration(wsReadTimeout); err == nil {
			config.WebSocket.ReadTimeout = timeout
		}
	}
	if wsWriteTimeout := os.Getenv("EXAMWATCH_WEBSOCKET_WRITE_TIMEOUT"); wsWriteTimeout != "" {
		if timeout, err := time.ParseDuration(wsWriteTimeout); err == nil {
			config.WebSocket.WriteTimeout = timeout
		}
	}
	if maxSize := os.Getenv("EXAMWATCH_WEBSOCKET_MAX_MESSAGE_SIZE"); maxSize != "" {
		if size, err := strconv.ParseInt(maxSize, 10, 64); err == nil {
			config.WebSocket.MaxMessageSize = size
		}
	}

	return config
}

// ConfigFile mirrors Config for JSON parsing, with durations as strings.
type ConfigFile struct {
	Monitor   *MonitorConfigFile   `json:"monitor"`
	Database  *DatabaseConfigFile  `json:"database"`
	HTTP      *HTTPConfigFile      `json:"http"`
	WebSocket *WebSocketConfigFile `json:"websocket"`
}

type MonitorConfigFile struct {
	ExamID            string `json:"exam_id"`
	UpstreamURL       string `json:"upstream_url"`
	Credential        string `json:"credential"`
	ArchiveViolations *bool  `json:"archive_violations"`
}

type DatabaseConfigFile struct {
	Path    string `json:"path"`
	Timeout string `json:"timeout"`
}

type HTTPConfigFile struct {
	Port         int    `json:"port"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	Host         string `json:"host"`
}

type WebSocketConfigFile struct {
	HandshakeTimeout string `json:"handshake_timeout"`
	PingInterval     string `json:"ping_interval"`
	ReadTimeout      string `json:"read_timeout"`
	WriteTimeout     string `json:"write_timeout"`
	MaxMessageSize   int64  `json:"max_message_size"`
}

// LoadFromFile parses a JSON config file over the defaults and validates
// the result.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file ConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config := DefaultConfig()

	if file.Monitor != nil {
		if file.Monitor.ExamID != "" {
			config.Monitor.ExamID = file.Monitor.ExamID
		}
		if file.Monitor.UpstreamURL != "" {
			config.Monitor.UpstreamURL = file.Monitor.UpstreamURL
		}
		if file.Monitor.Credential != "" {
			config.Monitor.Credential = file.Monitor.Credential
		}
		if file.Monitor.ArchiveViolations != nil {
			config.Monitor.ArchiveViolations = *file.Monitor.ArchiveViolations
		}
	}

	if file.Database != nil {
		if file.Database.Path != "" {
			config.Database.Path = file.Database.Path
		}
		if file.Database.Timeout != "" {
			if timeout, err := time.ParseDuration(file.Database.Timeout); err == nil {
				config.Database.Timeout = timeout
			}
		}
	}

	if file.HTTP != nil {
		if file.HTTP.Port > 0 {
			config.HTTP.Port = file.HTTP.Port
		}
		if file.HTTP.Host != "" {
			config.HTTP.Host = file.HTTP.Host
		}
		if file.HTTP.ReadTimeout != "" {
			if timeout, err := time.ParseDuration(file.HTTP.ReadTimeout); err == nil {
				config.HTTP.ReadTimeout = timeout
			}
		}
		if file.HTTP.WriteTimeout != "" {
			if timeout, err := time.ParseDuration(file.HTTP.WriteTimeout); err == nil {
				config.HTTP.WriteTimeout = timeout
			}
		}
	}

	if file.WebSocket != nil {
		if file.WebSocket.MaxMessageSize > 0 {
			config.WebSocket.MaxMessageSize = file.WebSocket.MaxMessageSize
		}
		if file.WebSocket.HandshakeTimeout != "" {
			if timeout, err := time.ParseDuration(file.WebSocket.HandshakeTimeout); err == nil {
				config.WebSocket.HandshakeTimeout = timeout
			}
		}
		if file.WebSocket.PingInterval != "" {
			if interval, err := time.ParseDuration(file.WebSocket.PingInterval); err == nil {
				config.WebSocket.PingInterval = interval
			}
		}
		if file.WebSocket.ReadTimeout != "" {
			if timeout, err := time.ParseDuration(file.WebSocket.ReadTimeout); err == nil {
				config.WebSocket.ReadTimeout = timeout
			}
		}
		if file.WebSocket.WriteTimeout != "" {
			if timeout, err := time.ParseDuration(file.WebSocket.WriteTimeout); err == nil {
				config.WebSocket.WriteTimeout = timeout
			}
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}

	return config, nil
}

// LoadConfigWithPrecedence resolves configuration as file > environment >
// defaults. File errors fall back silently to the environment result.
func LoadConfigWithPrecedence(path string) *Config {
	config := LoadFromEnv()

	if path != "" {
		if fileConfig, err := LoadFromFile(path); err == nil {
			config = fileConfig
		}
	}

	return config
}
