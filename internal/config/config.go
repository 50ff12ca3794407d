package config

import (
	_ "embed"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed policy.yaml
var policyYAML []byte

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Recognizer RecognizerConfig
	Auth       AuthConfig
	Token      TokenConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type RecognizerConfig struct {
	URL     string // face recognition sidecar base URL (defaults to http://localhost:8000)
	Model   string // model name forwarded to the sidecar (defaults to vggface)
	Timeout time.Duration
}

// AuthConfig is the authentication policy. Values come from the embedded
// policy.yaml and can be overridden through environment variables. Sessions
// snapshot these values at creation, so changing them never affects a
// session already in flight.
type AuthConfig struct {
	RequiredConsecutiveMatches int
	MatchDistanceThreshold     float64
	MaxFrameAttempts           int
	VerifyDistanceThreshold    float64 // single-shot verification threshold
	SessionIdleTimeout         time.Duration
}

type TokenConfig struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// policyFile mirrors the embedded policy.yaml layout.
type policyFile struct {
	Identification struct {
		RequiredConsecutiveMatches int     `yaml:"required_consecutive_matches"`
		MatchDistanceThreshold     float64 `yaml:"match_distance_threshold"`
		MaxFrameAttempts           int     `yaml:"max_frame_attempts"`
	} `yaml:"identification"`
	Verification struct {
		MatchDistanceThreshold float64 `yaml:"match_distance_threshold"`
	} `yaml:"verification"`
	Session struct {
		IdleTimeoutMinutes int `yaml:"idle_timeout_minutes"`
	} `yaml:"session"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a positive float.
// Returns the default value if the env var is unset, empty, or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envString reads an environment variable, falling back to a default when unset.
func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func Load() *Config {
	var policy policyFile
	if err := yaml.Unmarshal(policyYAML, &policy); err != nil {
		// This is an embedded file so this error should never happen in practice.
		panic("failed to unmarshal embedded policy.yaml: " + err.Error())
	}

	return &Config{
		Server: ServerConfig{
			Host: envString("FACEGATE_HOST", "0.0.0.0"),
			Port: envInt("FACEGATE_PORT", 8080),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Recognizer: RecognizerConfig{
			URL:     envString("RECOGNIZER_URL", "http://localhost:8000"),
			Model:   envString("RECOGNIZER_MODEL", "vggface"),
			Timeout: time.Duration(envInt("RECOGNIZER_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		Auth: AuthConfig{
			RequiredConsecutiveMatches: envInt("AUTH_REQUIRED_MATCHES", policy.Identification.RequiredConsecutiveMatches),
			MatchDistanceThreshold:     envFloat("AUTH_DISTANCE_THRESHOLD", policy.Identification.MatchDistanceThreshold),
			MaxFrameAttempts:           envInt("AUTH_MAX_FRAME_ATTEMPTS", policy.Identification.MaxFrameAttempts),
			VerifyDistanceThreshold:    envFloat("AUTH_VERIFY_DISTANCE_THRESHOLD", policy.Verification.MatchDistanceThreshold),
			SessionIdleTimeout:         time.Duration(envInt("AUTH_SESSION_IDLE_MINUTES", policy.Session.IdleTimeoutMinutes)) * time.Minute,
		},
		Token: TokenConfig{
			Secret: os.Getenv("TOKEN_SECRET"),
			Issuer: envString("TOKEN_ISSUER", "facegate"),
			TTL:    time.Duration(envInt("TOKEN_TTL_MINUTES", 60)) * time.Minute,
		},
	}
}
