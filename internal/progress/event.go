package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage names a point in a capture task's lifecycle.
type Stage string

// Lifecycle stages, in the order a task passes through them.
const (
	StageTaskCreated    Stage = "TASK_CREATED"
	StageScrapeStart    Stage = "SCRAPE_START"
	StageUploadStart    Stage = "UPLOAD_START"
	StageTaskDone       Stage = "TASK_DONE"
	StageTaskFailed     Stage = "TASK_FAILED"
	StageTaskReconciled Stage = "TASK_RECONCILED"
)

// stageInfo records, per known stage, whether it ends a task and whether it
// must carry a failure note.
var stageInfo = map[Stage]struct{ terminal, needsNote bool }{
	StageTaskCreated:    {},
	StageScrapeStart:    {},
	StageUploadStart:    {},
	StageTaskDone:       {terminal: true},
	StageTaskFailed:     {terminal: true, needsNote: true},
	StageTaskReconciled: {terminal: true, needsNote: true},
}

// Terminal reports whether the stage ends a task.
func (s Stage) Terminal() bool {
	return stageInfo[s].terminal
}

// Failure reports whether the stage ends a task unsuccessfully.
func (s Stage) Failure() bool {
	return stageInfo[s].needsNote
}

// Event is one lifecycle milestone of a task.
type Event struct {
	TaskID string
	// TS is when the tracker recorded the milestone, in UTC.
	TS    time.Time
	Stage Stage
	TabID int
	// URL is the page being captured.
	URL string
	// Bytes is the captured document size, set from UPLOAD_START on.
	Bytes int64
	// Dur is the time spent in the previous step, or in the whole task for
	// terminal stages.
	Dur time.Duration
	// Note holds the failure message for failed and reconciled tasks.
	Note string
}

// Validate rejects events the sinks cannot interpret.
func (e Event) Validate() error {
	info, ok := stageInfo[e.Stage]
	switch {
	case !ok:
		return fmt.Errorf("unknown stage %q", e.Stage)
	case e.TaskID == "":
		return errors.New("task id is required")
	case e.TS.IsZero():
		return errors.New("timestamp is required")
	case info.needsNote && e.Note == "":
		return fmt.Errorf("%s requires a note", e.Stage)
	case e.Dur < 0:
		return errors.New("duration must be >= 0")
	case e.Bytes < 0:
		return errors.New("bytes must be >= 0")
	}
	return nil
}
