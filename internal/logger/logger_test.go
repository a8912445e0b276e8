package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	l := Setup(Options{Level: "debug", File: path, MaxSizeMB: 1})

	assert.Equal(t, logrus.DebugLevel, l.GetLevel())
	l.WithField("order_id", 7).Info("order confirmed")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"message":"order confirmed"`)
	assert.Contains(t, string(raw), `"order_id":7`)
	assert.Contains(t, string(raw), `"severity":"info"`)
}

func TestSetupUnknownLevel(t *testing.T) {
	l := Setup(Options{Level: "chatty"})
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
}
