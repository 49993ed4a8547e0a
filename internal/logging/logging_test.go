package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"", zapcore.InfoLevel},
		{"info", zapcore.InfoLevel},
		{"DEBUG", zapcore.DebugLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"trace", zapcore.Level(-2)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, "info", FormatJSON)
	require.NoError(t, err)

	log.Info("step applied", "step", "sysctl")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "step applied", entry["msg"])
	assert.Equal(t, "sysctl", entry["step"])
	assert.Equal(t, "info", entry["level"])
}

func TestNew_VerbosityFollowsLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, "info", FormatConsole)
	require.NoError(t, err)

	log.V(1).Info("checking")
	assert.Empty(t, buf.String())

	buf.Reset()
	log, err = New(&buf, "debug", FormatConsole)
	require.NoError(t, err)

	log.V(1).Info("checking", "step", "firewall")
	assert.Contains(t, buf.String(), "checking")
	assert.Contains(t, buf.String(), "firewall")
}

func TestNew_ErrorAlwaysLogged(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, "error", FormatConsole)
	require.NoError(t, err)

	log.Info("hidden")
	log.Error(errors.New("kubeadm init failed"), "step failed")

	out := buf.String()
	assert.False(t, strings.Contains(out, "hidden"))
	assert.Contains(t, out, "kubeadm init failed")
}

func TestNew_BadFormat(t *testing.T) {
	_, err := New(&bytes.Buffer{}, "info", "xml")
	assert.Error(t, err)
}
