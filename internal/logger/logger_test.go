package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"storefront/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_RejectsUnknownSettings(t *testing.T) {
	_, err := New(config.LoggerConfig{Level: "loud"})
	assert.Error(t, err)

	_, err = New(config.LoggerConfig{Format: "xml"})
	assert.Error(t, err)

	_, err = New(config.LoggerConfig{Output: "syslog"})
	assert.Error(t, err)

	_, err = New(config.LoggerConfig{Output: "file"})
	assert.Error(t, err)
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	l, err := New(config.LoggerConfig{Level: "info", Format: "json", Output: "file", FilePath: path})
	require.NoError(t, err)

	l.With(zap.String("order_id", "O1")).Info("payment confirmed")
	l.Debug("dropped below level")
	_ = l.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `"message":"payment confirmed"`)
	assert.Contains(t, out, `"order_id":"O1"`)
	assert.False(t, strings.Contains(out, "dropped below level"))
}

func TestNoop(t *testing.T) {
	l := Noop()
	l.Info("nothing")
	assert.NoError(t, l.With(zap.Int("n", 1)).Sync())
}
