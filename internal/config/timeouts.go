package config

import (
	"os"
	"strconv"
	"time"
)

// Timeouts holds the polling and connection settings.
// These values can be customized via environment variables.
type Timeouts struct {
	PollAttempts  int           // Readiness probes before giving up
	PollBaseDelay time.Duration // Delay before the first probe, doubled after each
	DialTimeout   time.Duration // SSH TCP connect and handshake
	DialRetries   int           // Extra SSH dial attempts on network errors
	ChartInstall  time.Duration // Helm install or upgrade wait
}

// LoadTimeouts loads timeout configuration from environment variables.
// If an environment variable is not set or invalid, a default value is used.
//
// Environment Variables:
//   - INFRA_POLL_ATTEMPTS (default: 6)
//   - INFRA_POLL_BASE_DELAY (default: 4s)
//   - INFRA_SSH_DIAL_TIMEOUT (default: 10s)
//   - INFRA_SSH_DIAL_RETRIES (default: 0)
//   - INFRA_CHART_TIMEOUT (default: 10m)
func LoadTimeouts() *Timeouts {
	return &Timeouts{
		PollAttempts:  parsePositiveInt("INFRA_POLL_ATTEMPTS", 6),
		PollBaseDelay: parsePositiveDuration("INFRA_POLL_BASE_DELAY", 4*time.Second),
		DialTimeout:   parseDuration("INFRA_SSH_DIAL_TIMEOUT", 10*time.Second),
		DialRetries:   parseInt("INFRA_SSH_DIAL_RETRIES", 0),
		ChartInstall:  parseDuration("INFRA_CHART_TIMEOUT", 10*time.Minute),
	}
}

// parseDuration parses a duration from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseDuration(envVar string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	d, err := time.ParseDuration(val)
	if err != nil || d < 0 {
		return defaultVal
	}

	return d
}

// parsePositiveDuration is parseDuration with zero also falling back to the default.
func parsePositiveDuration(envVar string, defaultVal time.Duration) time.Duration {
	if d := parseDuration(envVar, defaultVal); d > 0 {
		return d
	}
	return defaultVal
}

// parseInt parses an integer from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseInt(envVar string, defaultVal int) int {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	i, err := strconv.Atoi(val)
	if err != nil || i < 0 {
		return defaultVal
	}

	return i
}

func parsePositiveInt(envVar string, defaultVal int) int {
	if i := parseInt(envVar, defaultVal); i > 0 {
		return i
	}
	return defaultVal
}
