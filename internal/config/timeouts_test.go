package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadTimeouts_Defaults(t *testing.T) {
	for _, env := range []string{
		"INFRA_POLL_ATTEMPTS",
		"INFRA_POLL_BASE_DELAY",
		"INFRA_SSH_DIAL_TIMEOUT",
		"INFRA_SSH_DIAL_RETRIES",
		"INFRA_CHART_TIMEOUT",
	} {
		t.Setenv(env, "")
	}

	timeouts := LoadTimeouts()

	assert.Equal(t, 6, timeouts.PollAttempts)
	assert.Equal(t, 4*time.Second, timeouts.PollBaseDelay)
	assert.Equal(t, 10*time.Second, timeouts.DialTimeout)
	assert.Equal(t, 0, timeouts.DialRetries)
	assert.Equal(t, 10*time.Minute, timeouts.ChartInstall)
}

func TestLoadTimeouts_Env(t *testing.T) {
	t.Setenv("INFRA_POLL_ATTEMPTS", "3")
	t.Setenv("INFRA_POLL_BASE_DELAY", "250ms")
	t.Setenv("INFRA_SSH_DIAL_TIMEOUT", "1m")
	t.Setenv("INFRA_SSH_DIAL_RETRIES", "4")
	t.Setenv("INFRA_CHART_TIMEOUT", "90s")

	timeouts := LoadTimeouts()

	assert.Equal(t, 3, timeouts.PollAttempts)
	assert.Equal(t, 250*time.Millisecond, timeouts.PollBaseDelay)
	assert.Equal(t, time.Minute, timeouts.DialTimeout)
	assert.Equal(t, 4, timeouts.DialRetries)
	assert.Equal(t, 90*time.Second, timeouts.ChartInstall)
}

func TestLoadTimeouts_InvalidFallsBack(t *testing.T) {
	t.Setenv("INFRA_POLL_ATTEMPTS", "many")
	t.Setenv("INFRA_POLL_BASE_DELAY", "-1s")
	t.Setenv("INFRA_SSH_DIAL_RETRIES", "-2")

	timeouts := LoadTimeouts()

	assert.Equal(t, 6, timeouts.PollAttempts)
	assert.Equal(t, 4*time.Second, timeouts.PollBaseDelay)
	assert.Equal(t, 0, timeouts.DialRetries)
}

func TestLoadTimeouts_ZeroPollSettingsFallBack(t *testing.T) {
	t.Setenv("INFRA_POLL_ATTEMPTS", "0")
	t.Setenv("INFRA_POLL_BASE_DELAY", "0s")
	t.Setenv("INFRA_CHART_TIMEOUT", "0s")

	timeouts := LoadTimeouts()

	assert.Equal(t, 6, timeouts.PollAttempts)
	assert.Equal(t, 4*time.Second, timeouts.PollBaseDelay)
	assert.Equal(t, time.Duration(0), timeouts.ChartInstall)
}
