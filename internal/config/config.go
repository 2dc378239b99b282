// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Transport names accepted in TRANSPORTS.
const (
	TransportStreamable = "streamable"
	TransportSSE        = "sse"
	TransportWebSocket  = "websocket"
)

// Config holds all application configuration.
type Config struct {
	Port            string        `yaml:"port"`
	Env             string        `yaml:"env"`
	LogLevel        string        `yaml:"log_level"`
	DBPath          string        `yaml:"db_path"`
	Transports      []string      `yaml:"transports"`
	Stateless       bool          `yaml:"stateless"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	GRPCHealthAddr  string        `yaml:"grpc_health_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Twitter         TwitterConfig `yaml:"twitter"`
	Session         SessionConfig `yaml:"session"`
	SSE             SSEConfig     `yaml:"sse"`
}

// TwitterConfig holds the application-level API settings. Per-caller access
// tokens never live here.
type TwitterConfig struct {
	APIKey    string        `yaml:"api_key"`
	APISecret string        `yaml:"api_secret"`
	BaseURL   string        `yaml:"base_url"`
	UploadURL string        `yaml:"upload_url"`
	Timeout   time.Duration `yaml:"timeout"`
}

// SessionConfig controls idle session eviction.
type SessionConfig struct {
	IdleTTL       time.Duration `yaml:"idle_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// SSEConfig controls server-push streams.
type SSEConfig struct {
	KeepaliveInterval time.Duration `yaml:"keepalive_interval"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
	ReplayBuffer      int           `yaml:"replay_buffer"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:            "3000",
		Env:             "production",
		LogLevel:        "info",
		DBPath:          "./data/twitter-mcp.db",
		Transports:      []string{TransportStreamable, TransportSSE},
		CORSOrigins:     []string{"*"},
		ShutdownTimeout: 10 * time.Second,
		Twitter: TwitterConfig{
			BaseURL:   "https://api.twitter.com/2",
			UploadURL: "https://api.twitter.com/2/media/upload",
			Timeout:   30 * time.Second,
		},
		Session: SessionConfig{
			IdleTTL:       30 * time.Minute,
			SweepInterval: time.Minute,
		},
		SSE: SSEConfig{
			KeepaliveInterval: 10 * time.Second,
			RetryDelay:        5 * time.Second,
			ReplayBuffer:      100,
		},
	}
}

// Load reads configuration from an optional YAML file named by CONFIG_FILE,
// then environment variables.
func Load() (*Config, error) {
	cfg := Default()

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.Env = getEnv("APP_ENV", getEnv("NODE_ENV", c.Env))
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.DBPath = getEnv("DB_PATH", c.DBPath)
	c.Transports = getEnvList("TRANSPORTS", c.Transports)
	c.Stateless = getEnvBool("MCP_STATELESS", c.Stateless)
	c.CORSOrigins = getEnvList("CORS_ORIGINS", c.CORSOrigins)
	c.GRPCHealthAddr = getEnv("GRPC_HEALTH_ADDR", c.GRPCHealthAddr)
	c.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)

	c.Twitter.APIKey = getEnv("TWITTER_API_KEY", c.Twitter.APIKey)
	c.Twitter.APISecret = getEnv("TWITTER_API_SECRET", c.Twitter.APISecret)
	c.Twitter.BaseURL = getEnv("TWITTER_API_BASE_URL", c.Twitter.BaseURL)
	c.Twitter.UploadURL = getEnv("TWITTER_UPLOAD_URL", c.Twitter.UploadURL)
	c.Twitter.Timeout = getEnvDuration("UPSTREAM_TIMEOUT", c.Twitter.Timeout)

	c.Session.IdleTTL = getEnvDuration("SESSION_IDLE_TTL", c.Session.IdleTTL)
	c.Session.SweepInterval = getEnvDuration("SESSION_SWEEP_INTERVAL", c.Session.SweepInterval)

	c.SSE.KeepaliveInterval = getEnvDuration("SSE_KEEPALIVE_INTERVAL", c.SSE.KeepaliveInterval)
	c.SSE.RetryDelay = getEnvDuration("SSE_RETRY_DELAY", c.SSE.RetryDelay)
	c.SSE.ReplayBuffer = getEnvInt("SSE_REPLAY_BUFFER", c.SSE.ReplayBuffer)
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.Twitter.APIKey == "" {
		return fmt.Errorf("TWITTER_API_KEY cannot be empty")
	}
	if c.Twitter.APISecret == "" {
		return fmt.Errorf("TWITTER_API_SECRET cannot be empty")
	}
	if c.Twitter.BaseURL == "" {
		return fmt.Errorf("TWITTER_API_BASE_URL cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if len(c.Transports) == 0 {
		return fmt.Errorf("TRANSPORTS cannot be empty")
	}
	for _, t := range c.Transports {
		switch t {
		case TransportStreamable, TransportSSE, TransportWebSocket:
		default:
			return fmt.Errorf("unknown transport %q", t)
		}
	}
	if c.SSE.ReplayBuffer <= 0 {
		return fmt.Errorf("SSE_REPLAY_BUFFER must be > 0")
	}
	if c.SSE.KeepaliveInterval <= 0 {
		return fmt.Errorf("SSE_KEEPALIVE_INTERVAL must be > 0")
	}
	return nil
}

// HasTransport reports whether the named transport is enabled.
func (c *Config) HasTransport(name string) bool {
	for _, t := range c.Transports {
		if t == name {
			return true
		}
	}
	return false
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Env, "development")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
