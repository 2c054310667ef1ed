package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu         sync.Mutex
	batches    [][]Event
	closeCalls int
	err        error
}

func (s *recordingSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]Event(nil), batch...))
	return s.err
}

func (s *recordingSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls++
	return nil
}

func (s *recordingSink) snapshot() ([][]Event, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]Event(nil), s.batches...), s.closeCalls
}

func (s *recordingSink) stages() []Stage {
	batches, _ := s.snapshot()
	var out []Stage
	for _, b := range batches {
		for _, evt := range b {
			out = append(out, evt.Stage)
		}
	}
	return out
}

func taskEvent(stage Stage) Event {
	evt := Event{TaskID: "task-1", TS: time.Now(), Stage: stage, TabID: 3, URL: "https://example.com/a"}
	if stage == StageTaskFailed || stage == StageTaskReconciled {
		evt.Note = "unexpected shutdown"
	}
	return evt
}

func TestHub_FlushesWhenBatchFills(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	hub := NewHub(Config{MaxBatchEvents: 3, MaxBatchWait: time.Hour}, sink)
	t.Cleanup(func() { _ = hub.Close(context.Background()) })

	for _, stage := range []Stage{StageTaskCreated, StageScrapeStart, StageUploadStart} {
		hub.Emit(taskEvent(stage))
	}

	require.Eventually(t, func() bool {
		batches, _ := sink.snapshot()
		return len(batches) == 1 && len(batches[0]) == 3
	}, time.Second, 5*time.Millisecond)
}

func TestHub_FlushesOnTicker(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	hub := NewHub(Config{MaxBatchEvents: 100, MaxBatchWait: 20 * time.Millisecond}, sink)
	t.Cleanup(func() { _ = hub.Close(context.Background()) })

	hub.Emit(taskEvent(StageTaskDone))

	require.Eventually(t, func() bool {
		return len(sink.stages()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestHub_CloseDrainsInOrderAndClosesSinksOnce(t *testing.T) {
	t.Parallel()

	first, second := &recordingSink{}, &recordingSink{}
	hub := NewHub(Config{MaxBatchEvents: 100, MaxBatchWait: time.Hour}, first, nil, second)

	want := []Stage{StageTaskCreated, StageScrapeStart, StageUploadStart, StageTaskDone}
	for _, stage := range want {
		hub.Emit(taskEvent(stage))
	}
	require.NoError(t, hub.Close(context.Background()))
	require.NoError(t, hub.Close(context.Background()))

	for _, sink := range []*recordingSink{first, second} {
		require.Equal(t, want, sink.stages())
		_, closes := sink.snapshot()
		require.Equal(t, 1, closes)
	}

	hub.Emit(taskEvent(StageTaskCreated))
	require.Len(t, first.stages(), len(want))
}

func TestHub_DiscardsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	hub := NewHub(Config{MaxBatchEvents: 1}, sink)

	hub.Emit(Event{Stage: StageTaskCreated, TS: time.Now()})
	hub.Emit(Event{TaskID: "t", Stage: StageTaskFailed, TS: time.Now()})
	hub.Emit(Event{TaskID: "t", Stage: "PAUSED", TS: time.Now()})
	hub.Emit(Event{TaskID: "t", Stage: StageTaskCreated})

	require.NoError(t, hub.Close(context.Background()))
	require.Empty(t, sink.stages())
}

func TestHub_SinkErrorDoesNotStopDelivery(t *testing.T) {
	t.Parallel()

	failing := &recordingSink{err: errors.New("sink unavailable")}
	healthy := &recordingSink{}
	hub := NewHub(Config{MaxBatchEvents: 1}, failing, healthy)

	hub.Emit(taskEvent(StageTaskCreated))
	hub.Emit(taskEvent(StageTaskFailed))
	require.NoError(t, hub.Close(context.Background()))

	require.Equal(t, []Stage{StageTaskCreated, StageTaskFailed}, healthy.stages())
	require.Len(t, failing.stages(), 2)
}

func TestHub_EmitDropsWhenBufferFull(t *testing.T) {
	t.Parallel()

	hub := &Hub{cfg: Config{}.withDefaults(), events: make(chan Event)}

	start := time.Now()
	hub.Emit(taskEvent(StageTaskCreated))
	hub.Emit(taskEvent(StageScrapeStart))

	require.Less(t, time.Since(start), 50*time.Millisecond)
	require.Equal(t, int64(2), hub.Dropped())
}

func TestHub_NilIsSafe(t *testing.T) {
	t.Parallel()

	var hub *Hub
	hub.Emit(taskEvent(StageTaskCreated))
	require.Zero(t, hub.Dropped())
	require.NoError(t, hub.Close(context.Background()))
}

func TestHub_CloseHonoursContext(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	hub := NewHub(Config{MaxBatchEvents: 1}, blockingSink{release: block})
	hub.Emit(taskEvent(StageTaskCreated))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, hub.Close(ctx), context.DeadlineExceeded)

	close(block)
	require.NoError(t, hub.Close(context.Background()))
}

type blockingSink struct {
	release chan struct{}
}

func (s blockingSink) Consume(context.Context, []Event) error {
	<-s.release
	return nil
}

func (blockingSink) Close(context.Context) error { return nil }
