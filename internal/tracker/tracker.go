package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/web-archive-agent/internal/archive"
	"github.com/JakeFAU/web-archive-agent/internal/clock/system"
	"github.com/JakeFAU/web-archive-agent/internal/id/uuid"
	"github.com/JakeFAU/web-archive-agent/internal/progress"
)

const tracerName = "github.com/JakeFAU/web-archive-agent/internal/tracker"

// unknownFailureNote labels TASK_FAILED events whose cause has an empty
// message. The task's errorMessage keeps the empty string.
const unknownFailureNote = "unknown error"

// Tracker holds the in-memory task list and its durable mirror.
type Tracker struct {
	store    archive.TaskStore
	scraper  archive.Scraper
	uploader archive.Uploader
	clock    archive.Clock
	ids      archive.IDGenerator
	emitter  progress.Emitter
	reporter archive.FailureReporter
	logger   *zap.Logger
	tracer   trace.Tracer

	initMu      sync.Mutex
	initialized atomic.Bool

	// mu guards tasks and version. Every mutation bumps version.
	mu      sync.Mutex
	tasks   []archive.Task
	version uint64

	// saveMu serializes writes to the store; lock order is saveMu then mu.
	saveMu       sync.Mutex
	savedVersion uint64

	runs sync.WaitGroup
}

// New constructs a Tracker. Init must succeed before tasks are served; every
// public operation calls it implicitly.
func New(store archive.TaskStore, scraper archive.Scraper, uploader archive.Uploader, opts ...Option) *Tracker {
	t := &Tracker{
		store:    store,
		scraper:  scraper,
		uploader: uploader,
		clock:    system.New(),
		ids:      uuid.New(),
		emitter:  progress.Nop{},
		logger:   zap.NewNop(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Init loads the persisted task list once per process. Tasks found in a
// non-terminal state were interrupted by a shutdown and are marked failed.
// Concurrent callers wait for the same load; a failed load may be retried.
func (t *Tracker) Init(ctx context.Context) error {
	if t.initialized.Load() {
		return nil
	}
	t.initMu.Lock()
	defer t.initMu.Unlock()
	if t.initialized.Load() {
		return nil
	}

	ctx, span := t.tracer.Start(ctx, "tracker.Init")
	defer span.End()

	loaded, found, err := t.store.Load(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("load task list: %w", err)
	}
	if !found || loaded == nil {
		loaded = []archive.Task{}
	}

	now := t.clock.Now()
	var reconciled []archive.Task
	for i := range loaded {
		if loaded[i].Status.IsTerminal() {
			if err := loaded[i].CheckInvariants(); err != nil {
				t.logger.Warn("persisted task is inconsistent", zap.Error(err))
			}
			continue
		}
		markInterrupted(&loaded[i], now.UnixMilli())
		reconciled = append(reconciled, loaded[i].Clone())
	}

	t.mu.Lock()
	t.tasks = loaded
	if len(reconciled) > 0 {
		t.version++
	}
	t.mu.Unlock()

	if len(reconciled) > 0 {
		t.persist(ctx)
	}
	t.initialized.Store(true)

	span.SetAttributes(
		attribute.Int("tasks.loaded", len(loaded)),
		attribute.Int("tasks.reconciled", len(reconciled)),
	)
	for _, task := range reconciled {
		t.logger.Warn("reconciled interrupted task",
			zap.String("task_id", task.ID),
			zap.String("href", task.Href),
			zap.Int("tab_id", task.TabID),
		)
		if t.reporter != nil {
			t.reporter.ReportTaskFailure(task, archive.ErrUnexpectedShutdown)
		}
		t.emit(task, progress.StageTaskReconciled, now, func(evt *progress.Event) {
			evt.Dur = task.Elapsed(now)
			evt.Note = *task.ErrorMessage
		})
	}
	t.logger.Info("task tracker initialized",
		zap.Int("tasks", len(loaded)),
		zap.Int("reconciled", len(reconciled)),
	)
	return nil
}

// markInterrupted forces a stranded task to failed. Unknown statuses are
// treated as in-flight.
func markInterrupted(task *archive.Task, nowMillis int64) {
	msg := archive.ErrorMessage(archive.ErrUnexpectedShutdown)
	end := nowMillis
	task.Status = archive.StatusFailed
	task.EndTimeStamp = &end
	task.ErrorMessage = &msg
}

// CreateAndRun creates a task for opts and drives it to a terminal state.
// Scrape and upload failures are recorded on the task, not returned; the
// error is non-nil only when the task could not be created.
func (t *Tracker) CreateAndRun(ctx context.Context, opts archive.CreateTaskOptions) (archive.Task, error) {
	task, err := t.create(ctx, opts)
	if err != nil {
		return archive.Task{}, err
	}
	return t.run(ctx, task, opts), nil
}

// Ready reports whether Init has completed.
func (t *Tracker) Ready() bool {
	return t.initialized.Load()
}

// Start creates and persists the task, then runs it in the background,
// detached from ctx cancellation. It returns the init snapshot.
func (t *Tracker) Start(ctx context.Context, opts archive.CreateTaskOptions) (archive.Task, error) {
	task, err := t.create(ctx, opts)
	if err != nil {
		return archive.Task{}, err
	}
	runCtx := context.WithoutCancel(ctx)
	t.runs.Add(1)
	go func() {
		defer t.runs.Done()
		t.run(runCtx, task, opts)
	}()
	return task, nil
}

// Wait blocks until every run launched by Start has settled or ctx ends.
func (t *Tracker) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for task runs: %w", ctx.Err())
	}
}

// List returns a deep copy of the task list.
func (t *Tracker) List(ctx context.Context) ([]archive.Task, error) {
	if err := t.Init(ctx); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return archive.CloneTasks(t.tasks), nil
}

// Get returns a snapshot of the task with id.
func (t *Tracker) Get(ctx context.Context, id string) (archive.Task, error) {
	if err := t.Init(ctx); err != nil {
		return archive.Task{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := t.indexOf(id)
	if idx < 0 {
		return archive.Task{}, fmt.Errorf("%w: %s", archive.ErrTaskNotFound, id)
	}
	return t.tasks[idx].Clone(), nil
}

// ClearFinished removes every done task. Failed and in-flight tasks stay.
func (t *Tracker) ClearFinished(ctx context.Context) error {
	if err := t.Init(ctx); err != nil {
		return err
	}
	t.mu.Lock()
	kept := t.tasks[:0:0]
	for _, task := range t.tasks {
		if task.Status != archive.StatusDone {
			kept = append(kept, task)
		}
	}
	removed := len(t.tasks) - len(kept)
	t.tasks = kept
	t.version++
	t.mu.Unlock()

	t.persist(ctx)
	t.logger.Debug("cleared finished tasks", zap.Int("removed", removed))
	return nil
}

func (t *Tracker) create(ctx context.Context, opts archive.CreateTaskOptions) (archive.Task, error) {
	if err := t.Init(ctx); err != nil {
		return archive.Task{}, err
	}
	id, err := t.ids.NewID()
	if err != nil {
		return archive.Task{}, fmt.Errorf("allocate task id: %w", err)
	}
	now := t.clock.Now()
	form := opts.PageForm
	task := archive.Task{
		ID:             id,
		Status:         archive.StatusInit,
		Progress:       0,
		Href:           form.Href,
		TabID:          opts.TabID,
		Title:          form.Title,
		PageDesc:       form.PageDesc,
		FolderID:       form.FolderID,
		BindTags:       append([]string{}, form.BindTags...),
		StartTimeStamp: now.UnixMilli(),
	}

	t.mu.Lock()
	t.tasks = append(t.tasks, task)
	t.version++
	t.mu.Unlock()

	t.persist(ctx)
	t.logger.Info("task created",
		zap.String("task_id", id),
		zap.String("href", task.Href),
		zap.Int("tab_id", task.TabID),
	)
	t.emit(task, progress.StageTaskCreated, now, nil)
	return task.Clone(), nil
}

func (t *Tracker) run(ctx context.Context, task archive.Task, opts archive.CreateTaskOptions) archive.Task {
	ctx, span := t.tracer.Start(ctx, "tracker.run", trace.WithAttributes(
		attribute.String("task.id", task.ID),
		attribute.Int("tab.id", task.TabID),
		attribute.String("page.url", task.Href),
	))
	defer span.End()

	content, scrapeDur, err := t.scrapeStep(ctx, task, opts)
	if err == nil {
		err = t.uploadStep(ctx, task, opts, content, scrapeDur)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return t.fail(ctx, task.ID, err)
	}
	return t.finish(ctx, task.ID)
}

func (t *Tracker) scrapeStep(
	ctx context.Context,
	task archive.Task,
	opts archive.CreateTaskOptions,
) (string, time.Duration, error) {
	started := t.clock.Now()
	snapshot, err := t.advance(task.ID, archive.StatusScraping, "")
	if err != nil {
		return "", 0, err
	}
	t.persist(ctx)
	t.emit(snapshot, progress.StageScrapeStart, started, nil)

	ctx, span := t.tracer.Start(ctx, "tracker.scrape")
	defer span.End()
	content, err := t.safeScrape(ctx, archive.ScrapeRequest{
		TabID:    task.TabID,
		URL:      task.Href,
		Settings: opts.Settings,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", 0, err
	}
	dur := t.clock.Now().Sub(started)
	span.SetAttributes(attribute.Int("content.bytes", len(content)))
	t.logger.Debug("scrape finished",
		zap.String("task_id", task.ID),
		zap.Int("bytes", len(content)),
		zap.Duration("duration", dur),
	)
	return content, dur, nil
}

func (t *Tracker) uploadStep(
	ctx context.Context,
	task archive.Task,
	opts archive.CreateTaskOptions,
	content string,
	scrapeDur time.Duration,
) error {
	now := t.clock.Now()
	snapshot, err := t.advance(task.ID, archive.StatusUploading, "")
	if err != nil {
		return err
	}
	t.persist(ctx)
	t.emit(snapshot, progress.StageUploadStart, now, func(evt *progress.Event) {
		evt.Bytes = int64(len(content))
		evt.Dur = scrapeDur
	})

	ctx, span := t.tracer.Start(ctx, "tracker.upload")
	defer span.End()
	form := opts.PageForm
	err = t.safeUpload(ctx, archive.UploadRequest{
		Href:       task.Href,
		Title:      task.Title,
		PageDesc:   task.PageDesc,
		FolderID:   task.FolderID,
		BindTags:   append([]string{}, task.BindTags...),
		Screenshot: form.Screenshot,
		Content:    content,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (t *Tracker) finish(ctx context.Context, id string) archive.Task {
	now := t.clock.Now()
	snapshot, err := t.advance(id, archive.StatusDone, "")
	if err != nil {
		t.logger.Error("mark task done", zap.String("task_id", id), zap.Error(err))
		return t.current(id)
	}
	t.persist(ctx)
	t.logger.Info("task done",
		zap.String("task_id", id),
		zap.Duration("elapsed", snapshot.Elapsed(now)),
	)
	t.emit(snapshot, progress.StageTaskDone, now, func(evt *progress.Event) {
		evt.Dur = snapshot.Elapsed(now)
	})
	return snapshot
}

func (t *Tracker) fail(ctx context.Context, id string, cause error) archive.Task {
	now := t.clock.Now()
	msg := archive.ErrorMessage(cause)
	snapshot, err := t.advance(id, archive.StatusFailed, msg)
	if err != nil {
		t.logger.Error("mark task failed", zap.String("task_id", id), zap.Error(err))
		return t.current(id)
	}
	t.persist(ctx)
	t.logger.Warn("task failed",
		zap.String("task_id", id),
		zap.String("href", snapshot.Href),
		zap.Error(cause),
	)
	if t.reporter != nil {
		t.reporter.ReportTaskFailure(snapshot.Clone(), cause)
	}
	t.emit(snapshot, progress.StageTaskFailed, now, func(evt *progress.Event) {
		evt.Dur = snapshot.Elapsed(now)
		evt.Note = msg
		if evt.Note == "" {
			evt.Note = unknownFailureNote
		}
	})
	return snapshot
}

// safeScrape converts a collaborator panic into an error so the task still
// reaches a terminal state.
func (t *Tracker) safeScrape(ctx context.Context, req archive.ScrapeRequest) (content string, err error) {
	if t.scraper == nil {
		return "", archive.NewScrapeError(req.TabID, errors.New("no scraper configured"))
	}
	defer func() {
		if r := recover(); r != nil {
			err = archive.NewScrapeError(req.TabID, fmt.Errorf("panic: %v", r))
		}
	}()
	return t.scraper.Scrape(ctx, req)
}

func (t *Tracker) safeUpload(ctx context.Context, req archive.UploadRequest) (err error) {
	if t.uploader == nil {
		return &archive.NetworkError{Op: "upload", Err: errors.New("no uploader configured")}
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return t.uploader.Upload(ctx, req)
}

func (t *Tracker) advance(id string, next archive.Status, errMsg string) (archive.Task, error) {
	nowMillis := t.clock.Now().UnixMilli()
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := t.indexOf(id)
	if idx < 0 {
		return archive.Task{}, fmt.Errorf("%w: %s", archive.ErrTaskNotFound, id)
	}
	if err := t.tasks[idx].Advance(next, nowMillis, errMsg); err != nil {
		return archive.Task{}, err
	}
	t.version++
	return t.tasks[idx].Clone(), nil
}

func (t *Tracker) current(id string) archive.Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	if idx := t.indexOf(id); idx >= 0 {
		return t.tasks[idx].Clone()
	}
	return archive.Task{ID: id}
}

// indexOf must be called with mu held.
func (t *Tracker) indexOf(id string) int {
	for i := range t.tasks {
		if t.tasks[i].ID == id {
			return i
		}
	}
	return -1
}

// persist writes the latest list. The snapshot is taken after saveMu is held,
// so the last write always reflects the newest in-memory state. Save errors
// are logged; the in-memory list stays authoritative until the next write.
func (t *Tracker) persist(ctx context.Context) {
	t.saveMu.Lock()
	defer t.saveMu.Unlock()

	t.mu.Lock()
	version := t.version
	if version == t.savedVersion {
		t.mu.Unlock()
		return
	}
	snapshot := archive.CloneTasks(t.tasks)
	t.mu.Unlock()

	if err := t.store.Save(context.WithoutCancel(ctx), snapshot); err != nil {
		t.logger.Error("persist task list", zap.Uint64("version", version), zap.Error(err))
		return
	}
	t.savedVersion = version
}

func (t *Tracker) emit(task archive.Task, stage progress.Stage, ts time.Time, mutate func(*progress.Event)) {
	evt := progress.Event{
		TaskID: task.ID,
		TS:     ts,
		Stage:  stage,
		TabID:  task.TabID,
		URL:    task.Href,
	}
	if mutate != nil {
		mutate(&evt)
	}
	t.emitter.Emit(evt)
}
