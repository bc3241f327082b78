package logger_test

import (
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/spockmay/bainbridge-now/internal/logger"
	"github.com/stretchr/testify/require"
)

func TestPrepareLogger(t *testing.T) {
	t.Cleanup(func() {
		log.SetOutput(os.Stdout)
		log.SetFormatter(&log.TextFormatter{})
		log.SetLevel(log.WarnLevel)
	})

	t.Run("levels", func(t *testing.T) {
		require.NoError(t, logger.PrepareLogger(logger.Config{Level: "WARN"}))
		require.Equal(t, log.WarnLevel, log.GetLevel())
		require.NoError(t, logger.PrepareLogger(logger.Config{Level: "debug", Format: "json"}))
		require.Equal(t, log.DebugLevel, log.GetLevel())
		require.IsType(t, &log.JSONFormatter{}, log.StandardLogger().Formatter)
	})

	t.Run("bad config", func(t *testing.T) {
		require.Error(t, logger.PrepareLogger(logger.Config{Level: "loud"}))
		require.Error(t, logger.PrepareLogger(logger.Config{Level: "info", Format: "xml"}))
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "run.log")
		require.NoError(t, logger.PrepareLogger(logger.Config{Level: "info", File: path}))
		log.Info("ingestion finished")
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Contains(t, string(data), "ingestion finished")
	})
}
