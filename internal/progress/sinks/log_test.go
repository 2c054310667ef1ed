package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/web-archive-agent/internal/progress"
)

func TestLogSinkLevelsByStage(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewLogSink(zap.New(core))
	ts := time.Now()

	err := sink.Consume(context.Background(), []progress.Event{
		{TaskID: "a", TS: ts, Stage: progress.StageTaskCreated, TabID: 7, URL: "https://example.com"},
		{TaskID: "a", TS: ts, Stage: progress.StageTaskDone, Dur: time.Second, Bytes: 42},
		{TaskID: "b", TS: ts, Stage: progress.StageTaskFailed, Note: "network down"},
		{TaskID: "c", TS: ts, Stage: progress.StageTaskReconciled, Note: "unexpected shutdown"},
	})
	require.NoError(t, err)
	require.NoError(t, sink.Close(context.Background()))

	entries := logs.All()
	require.Len(t, entries, 4)

	require.Equal(t, zapcore.DebugLevel, entries[0].Level)
	require.Equal(t, "task TASK_CREATED", entries[0].Message)
	require.Equal(t, "a", entries[0].ContextMap()["task_id"])
	require.Equal(t, int64(7), entries[0].ContextMap()["tab_id"])

	require.Equal(t, zapcore.InfoLevel, entries[1].Level)
	require.Equal(t, int64(42), entries[1].ContextMap()["bytes"])

	require.Equal(t, zapcore.WarnLevel, entries[2].Level)
	require.Equal(t, "network down", entries[2].ContextMap()["error"])
	require.Equal(t, zapcore.WarnLevel, entries[3].Level)
}

func TestLogSinkSkipsDisabledLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	sink := NewLogSink(zap.New(core))

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{TaskID: "a", TS: time.Now(), Stage: progress.StageScrapeStart},
		{TaskID: "a", TS: time.Now(), Stage: progress.StageUploadStart},
	}))
	require.Zero(t, logs.Len())
}

func TestNewLogSinkNilLogger(t *testing.T) {
	t.Parallel()

	sink := NewLogSink(nil)
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{{TaskID: "a", Stage: progress.StageTaskCreated}}))
}
