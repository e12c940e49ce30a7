package krishi

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds session-wide settings. Values come from defaults, then a
// .env file, then the process environment (KRISHI_* variables).
type Config struct {
	AssistEndpoint      string            `json:"assist_endpoint"`
	BackendEndpoint     string            `json:"backend_endpoint"`
	MeterEndpoint       string            `json:"meter_endpoint,omitempty"`
	TokenEndpoint       string            `json:"token_endpoint,omitempty"`
	Headers             map[string]string `json:"headers,omitempty"`
	Language            string            `json:"language"`
	CaptureCeiling      time.Duration     `json:"capture_ceiling"`
	TransportTimeout    time.Duration     `json:"transport_timeout"`
	MeterInterval       time.Duration     `json:"meter_interval"`
	MeterReconnectDelay time.Duration     `json:"meter_reconnect_delay"`
	TokenRefreshBuffer  time.Duration     `json:"token_refresh_buffer"`
	DebugAudio          bool              `json:"debug_audio"`
	DebugMeter          bool              `json:"debug_meter"`
}

func NewConfig() *Config {
	c := &Config{
		AssistEndpoint:      "http://localhost:8000",
		BackendEndpoint:     "http://localhost:5000",
		Language:            "en",
		CaptureCeiling:      8 * time.Second,
		TransportTimeout:    15 * time.Second,
		MeterInterval:       33 * time.Millisecond,
		MeterReconnectDelay: 2 * time.Second,
		TokenRefreshBuffer:  60 * time.Second,
		Headers:             make(map[string]string),
	}

	c.loadFromEnv()

	return c
}

func (c *Config) loadFromEnv() {
	// Load .env if exists
	_ = godotenv.Load()

	if v := os.Getenv("KRISHI_ASSIST_ENDPOINT"); v != "" {
		c.AssistEndpoint = v
	}
	if v := os.Getenv("KRISHI_BACKEND_ENDPOINT"); v != "" {
		c.BackendEndpoint = v
	}
	if v := os.Getenv("KRISHI_METER_ENDPOINT"); v != "" {
		c.MeterEndpoint = v
	}
	if v := os.Getenv("KRISHI_TOKEN_ENDPOINT"); v != "" {
		c.TokenEndpoint = v
	}
	c.Language = getEnvOrDefault("KRISHI_LANGUAGE", c.Language)

	c.CaptureCeiling = getDurationEnv("KRISHI_CAPTURE_CEILING", c.CaptureCeiling)
	c.TransportTimeout = getDurationEnv("KRISHI_TRANSPORT_TIMEOUT", c.TransportTimeout)
	c.MeterInterval = getDurationEnv("KRISHI_METER_INTERVAL", c.MeterInterval)
	c.MeterReconnectDelay = getDurationEnv("KRISHI_METER_RECONNECT_DELAY", c.MeterReconnectDelay)
	c.TokenRefreshBuffer = getDurationEnv("KRISHI_TOKEN_REFRESH_BUFFER", c.TokenRefreshBuffer)

	c.DebugAudio = getBoolEnv("KRISHI_DEBUG_AUDIO", c.DebugAudio)
	c.DebugMeter = getBoolEnv("KRISHI_DEBUG_METER", c.DebugMeter)
}

// Validate returns the list of configuration issues.
func (c *Config) Validate() []string {
	issues := []string{}

	if !strings.HasPrefix(c.AssistEndpoint, "http") {
		issues = append(issues, fmt.Sprintf("invalid assist endpoint: %s", c.AssistEndpoint))
	}
	if !strings.HasPrefix(c.BackendEndpoint, "http") {
		issues = append(issues, fmt.Sprintf("invalid backend endpoint: %s", c.BackendEndpoint))
	}
	if c.MeterEndpoint != "" && !strings.HasPrefix(c.MeterEndpoint, "ws") {
		issues = append(issues, fmt.Sprintf("invalid meter endpoint: %s", c.MeterEndpoint))
	}
	if c.CaptureCeiling <= 0 {
		issues = append(issues, "capture ceiling must be positive")
	}
	if c.TransportTimeout <= 0 {
		issues = append(issues, "transport timeout must be positive")
	}
	if c.MeterInterval <= 0 {
		issues = append(issues, "meter interval must be positive")
	}
	if c.MeterReconnectDelay <= 0 {
		issues = append(issues, "meter reconnect delay must be positive")
	}

	return issues
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
