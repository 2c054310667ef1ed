package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/web-archive-agent/internal/progress"
)

func TestPrometheusSinkRecordsTaskLifecycle(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	now := time.Now()
	batch := []progress.Event{
		{TaskID: "a", TS: now, Stage: progress.StageTaskCreated, URL: "https://Example.com/post"},
		{TaskID: "a", TS: now, Stage: progress.StageScrapeStart, URL: "https://Example.com/post"},
		{
			TaskID: "a",
			TS:     now.Add(2 * time.Second),
			Stage:  progress.StageUploadStart,
			URL:    "https://Example.com/post",
			Bytes:  2048,
			Dur:    2 * time.Second,
		},
		{TaskID: "a", TS: now.Add(3 * time.Second), Stage: progress.StageTaskDone, Dur: 3 * time.Second},
		{TaskID: "b", TS: now, Stage: progress.StageTaskCreated},
		{TaskID: "b", TS: now, Stage: progress.StageTaskFailed, Note: "network down", Dur: time.Second},
		{TaskID: "c", TS: now, Stage: progress.StageTaskReconciled, Note: "unexpected shutdown"},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 2.0, testutil.ToFloat64(sink.tasksCreated))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.tasksCompleted.WithLabelValues(resultDone)))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.tasksCompleted.WithLabelValues(resultFailed)))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.tasksCompleted.WithLabelValues(resultReconciled)))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.tasksRunning))
	require.InDelta(t, 2048.0, testutil.ToFloat64(sink.capturedBytes.WithLabelValues("example.com")), 1e-9)
	require.Equal(t, 1, testutil.CollectAndCount(sink.scrapeDuration, "archive_scrape_duration_seconds"))
	require.Equal(t, 2, testutil.CollectAndCount(sink.taskRuntime, "archive_task_runtime_seconds"))
}

func TestPrometheusSinkRunningGauge(t *testing.T) {
	t.Parallel()

	sink, err := NewPrometheusSink(prometheus.NewRegistry())
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{TaskID: "a", TS: now, Stage: progress.StageTaskCreated},
		{TaskID: "a", TS: now, Stage: progress.StageTaskCreated},
		{TaskID: "b", TS: now, Stage: progress.StageTaskCreated},
	}))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.tasksRunning))

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{TaskID: "a", TS: now, Stage: progress.StageTaskDone},
		{TaskID: "a", TS: now, Stage: progress.StageTaskDone},
	}))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.tasksRunning))
}

func TestPrometheusSinkDuplicateRegistrationFails(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
