// Package config loads client and simulator settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/git-eri/smart-lift/internal/model"
)

// Config holds all application configuration.
type Config struct {
	// Controller backend
	Host               string
	Port               int
	UseTLS             bool
	InsecureSkipVerify bool
	WSPath             string
	Codec              string
	HandshakeTimeout   time.Duration

	// Reconnect policy. A MaxReconnectDelay above ReconnectDelay selects
	// exponential backoff, otherwise the delay is fixed.
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration

	// Logging
	LogLevel   string
	LogFormat  string
	Transcript string

	// Panel HTTP API
	PanelAddr    string
	EventHistory int

	// Simulator
	SimLifts      string
	SimPowerState int
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Host:             "localhost",
		WSPath:           "ws",
		Codec:            "json",
		HandshakeTimeout: 10 * time.Second,
		ReconnectDelay:   time.Second,
		LogLevel:         "info",
		LogFormat:        "console",
		PanelAddr:        ":8080",
		EventHistory:     100,
		SimLifts:         "0-4",
		SimPowerState:    -1,
	}
}

// Load reads envFile (if it exists) into the process environment and then
// builds the configuration from it. An empty envFile means ".env".
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}
	return FromEnv()
}

// FromEnv builds the configuration from LIFT_* environment variables.
func FromEnv() (*Config, error) {
	cfg := Default()
	var err error

	cfg.Host = getEnv("LIFT_HOST", cfg.Host)
	if cfg.Port, err = getEnvInt("LIFT_PORT", cfg.Port); err != nil {
		return nil, err
	}
	if cfg.UseTLS, err = getEnvBool("LIFT_USE_TLS", cfg.UseTLS); err != nil {
		return nil, err
	}
	if cfg.InsecureSkipVerify, err = getEnvBool("LIFT_TLS_INSECURE", cfg.InsecureSkipVerify); err != nil {
		return nil, err
	}
	cfg.WSPath = getEnv("LIFT_WS_PATH", cfg.WSPath)
	cfg.Codec = getEnv("LIFT_CODEC", cfg.Codec)
	if cfg.HandshakeTimeout, err = getEnvDuration("LIFT_HANDSHAKE_TIMEOUT", cfg.HandshakeTimeout); err != nil {
		return nil, err
	}
	if cfg.ReconnectDelay, err = getEnvDuration("LIFT_RECONNECT_DELAY", cfg.ReconnectDelay); err != nil {
		return nil, err
	}
	if cfg.MaxReconnectDelay, err = getEnvDuration("LIFT_RECONNECT_MAX_DELAY", cfg.MaxReconnectDelay); err != nil {
		return nil, err
	}
	cfg.LogLevel = getEnv("LIFT_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LIFT_LOG_FORMAT", cfg.LogFormat)
	cfg.Transcript = getEnv("LIFT_TRANSCRIPT", cfg.Transcript)
	cfg.PanelAddr = getEnv("LIFT_PANEL_ADDR", cfg.PanelAddr)
	if cfg.EventHistory, err = getEnvInt("LIFT_EVENT_HISTORY", cfg.EventHistory); err != nil {
		return nil, err
	}
	cfg.SimLifts = getEnv("LIFT_SIM_LIFTS", cfg.SimLifts)
	if cfg.SimPowerState, err = getEnvInt("LIFT_SIM_POWER", cfg.SimPowerState); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if strings.Trim(c.WSPath, "/") == "" {
		return fmt.Errorf("websocket path cannot be empty")
	}
	if c.Codec != "json" && c.Codec != "legacy" {
		return fmt.Errorf("codec must be json or legacy, got %q", c.Codec)
	}
	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("reconnect delay must be positive")
	}
	if c.MaxReconnectDelay < 0 {
		return fmt.Errorf("max reconnect delay cannot be negative")
	}
	if c.EventHistory <= 0 {
		return fmt.Errorf("event history must be positive")
	}
	if c.SimPowerState < -1 || c.SimPowerState > 1 {
		return fmt.Errorf("simulator power state must be -1, 0 or 1")
	}
	return nil
}

// UsesBackoff reports whether reconnects back off exponentially.
func (c *Config) UsesBackoff() bool {
	return c.MaxReconnectDelay > c.ReconnectDelay
}

// ServerURL builds <ws|wss>://<host>[:<port>]/<path>/<sessionID>.
func (c *Config) ServerURL(sessionID string) string {
	scheme := "ws"
	if c.UseTLS {
		scheme = "wss"
	}
	host := c.Host
	if c.Port != 0 {
		host = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	}
	u := url.URL{
		Scheme: scheme,
		Host:   host,
		Path:   "/" + strings.Trim(c.WSPath, "/") + "/" + sessionID,
	}
	return u.String()
}

// ParseLifts expands a lift list such as "0-4" or "1,3,7-9".
func ParseLifts(list string) ([]model.LiftID, error) {
	var lifts []model.LiftID
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		if !isRange {
			lifts = append(lifts, model.LiftID(part))
			continue
		}
		from, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("invalid lift range %q: %w", part, err)
		}
		to, err := strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			return nil, fmt.Errorf("invalid lift range %q: %w", part, err)
		}
		if from < 0 || to < from {
			return nil, fmt.Errorf("invalid lift range %q", part)
		}
		for i := from; i <= to; i++ {
			lifts = append(lifts, model.LiftID(strconv.Itoa(i)))
		}
	}
	if len(lifts) == 0 {
		return nil, fmt.Errorf("no lifts in %q", list)
	}
	return lifts, nil
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
