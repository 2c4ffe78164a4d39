package utils

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observeLogs(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)))
	t.Cleanup(func() { SetLogger(zap.NewNop()) })
	return logs
}

func TestLogHelpersReportCallerSite(t *testing.T) {
	logs := observeLogs(t)

	LogInfo("booking %s created", "RB-1")
	LogOperation("RecordPayment", time.Now(), nil)
	LogOperation("RecordPayment", time.Now(), errors.New("conflict"))

	entries := logs.All()
	require.Len(t, entries, 3)
	for _, e := range entries {
		require.True(t, e.Caller.Defined)
		assert.Equal(t, "logger_test.go", filepath.Base(e.Caller.File), e.Message)
	}
	assert.Equal(t, "booking RB-1 created", entries[0].Message)
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Contains(t, entries[2].Message, "Operation RecordPayment failed")
}

func TestInitLoggerRejectsUnknownLevel(t *testing.T) {
	assert.Error(t, InitLogger("loud", false))
}
