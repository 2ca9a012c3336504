// Package config loads server settings from an optional YAML file, then
// lets environment variables override individual keys.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is read when CUETIMER_CONFIG is unset.
const DefaultPath = "config.yaml"

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Room    RoomConfig    `yaml:"room"`
	Gateway GatewayConfig `yaml:"gateway"`
	NATS    NATSConfig    `yaml:"nats"`
	Log     LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

type RoomConfig struct {
	TickInterval     time.Duration `yaml:"tick_interval"`
	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout"`
	DisconnectGrace  time.Duration `yaml:"disconnect_grace"`
	MessageHistory   int           `yaml:"message_history"`
	SubscriberBuffer int           `yaml:"subscriber_buffer"`
	IdleTTL          time.Duration `yaml:"idle_ttl"`
	SweepInterval    time.Duration `yaml:"sweep_interval"`
	CodeLength       int           `yaml:"code_length"`
}

type GatewayConfig struct {
	CommandTimeout time.Duration `yaml:"command_timeout"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	MaxMessageSize int64         `yaml:"max_message_size"`
	SendBuffer     int           `yaml:"send_buffer"`
	RateLimit      float64       `yaml:"rate_limit"`
	RateBurst      int           `yaml:"rate_burst"`
}

// NATSConfig controls the optional JetStream snapshot relay.
type NATSConfig struct {
	Enabled       bool          `yaml:"enabled"`
	URL           string        `yaml:"url"`
	StreamName    string        `yaml:"stream_name"`
	SubjectPrefix string        `yaml:"subject_prefix"`
	MaxAge        time.Duration `yaml:"max_age"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the settings used when neither file nor environment
// says otherwise.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeout:     10 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Room: RoomConfig{
			TickInterval:     250 * time.Millisecond,
			HeartbeatTimeout: 45 * time.Second,
			DisconnectGrace:  2 * time.Minute,
			MessageHistory:   10,
			SubscriberBuffer: 16,
			IdleTTL:          4 * time.Hour,
			SweepInterval:    time.Minute,
			CodeLength:       6,
		},
		Gateway: GatewayConfig{
			CommandTimeout: 5 * time.Second,
			PingInterval:   30 * time.Second,
			MaxMessageSize: 4096,
			SendBuffer:     256,
			RateLimit:      20,
			RateBurst:      40,
		},
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			StreamName:    "CUETIMER_ROOMS",
			SubjectPrefix: "cuetimer.rooms",
			MaxAge:        4 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// Load builds the configuration. A missing file at path is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Path returns the config file location from CUETIMER_CONFIG.
func Path() string {
	return getEnv("CUETIMER_CONFIG", DefaultPath)
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.ShutdownTimeout = getEnvAsDuration("SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		c.Server.AllowedOrigins = splitList(origins)
	}

	c.Room.TickInterval = getEnvAsDuration("ROOM_TICK_INTERVAL", c.Room.TickInterval)
	c.Room.HeartbeatTimeout = getEnvAsDuration("ROOM_HEARTBEAT_TIMEOUT", c.Room.HeartbeatTimeout)
	c.Room.DisconnectGrace = getEnvAsDuration("ROOM_DISCONNECT_GRACE", c.Room.DisconnectGrace)
	c.Room.IdleTTL = getEnvAsDuration("ROOM_IDLE_TTL", c.Room.IdleTTL)
	c.Room.SweepInterval = getEnvAsDuration("ROOM_SWEEP_INTERVAL", c.Room.SweepInterval)
	c.Room.MessageHistory = getEnvAsInt("ROOM_MESSAGE_HISTORY", c.Room.MessageHistory)
	c.Room.CodeLength = getEnvAsInt("ROOM_CODE_LENGTH", c.Room.CodeLength)

	c.Gateway.RateBurst = getEnvAsInt("WS_RATE_BURST", c.Gateway.RateBurst)

	c.NATS.Enabled = getEnvAsBool("NATS_ENABLED", c.NATS.Enabled)
	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.NATS.StreamName = getEnv("NATS_STREAM", c.NATS.StreamName)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Pretty = getEnvAsBool("LOG_PRETTY", c.Log.Pretty)
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return fmt.Errorf("invalid port %q", c.Server.Port)
	}
	if c.Room.TickInterval <= 0 {
		return fmt.Errorf("room.tick_interval must be positive, got %s", c.Room.TickInterval)
	}
	if c.Room.CodeLength < 4 || c.Room.CodeLength > 12 {
		return fmt.Errorf("room.code_length must be between 4 and 12, got %d", c.Room.CodeLength)
	}
	if c.Room.HeartbeatTimeout > 0 && c.Room.HeartbeatTimeout < c.Room.TickInterval {
		return fmt.Errorf("room.heartbeat_timeout %s is shorter than the tick interval", c.Room.HeartbeatTimeout)
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return errors.New("nats.url is required when nats.enabled is set")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
