package archive

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTaskCloneIsDeep(t *testing.T) {
	t.Parallel()

	end := int64(20)
	msg := "network down"
	task := Task{ID: "t", BindTags: []string{"a", "b"}, EndTimeStamp: &end, ErrorMessage: &msg}
	cp := task.Clone()

	cp.BindTags[0] = "changed"
	*cp.EndTimeStamp = 99
	*cp.ErrorMessage = "other"

	require.Equal(t, "a", task.BindTags[0])
	require.Equal(t, int64(20), *task.EndTimeStamp)
	require.Equal(t, "network down", *task.ErrorMessage)
}

func TestTaskJSONShape(t *testing.T) {
	t.Parallel()

	task := Task{
		ID:             "id-1",
		Status:         StatusInit,
		Href:           "https://example.com",
		TabID:          7,
		FolderID:       "inbox",
		BindTags:       []string{"a"},
		StartTimeStamp: 1000,
	}
	raw, err := json.Marshal(task)
	require.NoError(t, err)
	body := string(raw)
	require.Contains(t, body, `"uuid":"id-1"`)
	require.Contains(t, body, `"tabId":7`)
	require.Contains(t, body, `"startTimeStamp":1000`)
	require.NotContains(t, body, "endTimeStamp")
	require.NotContains(t, body, "errorMessage")
}

func TestTaskElapsed(t *testing.T) {
	t.Parallel()

	now := time.UnixMilli(5000)
	running := Task{StartTimeStamp: 2000}
	require.Equal(t, 3*time.Second, running.Elapsed(now))

	end := int64(2500)
	finished := Task{StartTimeStamp: 2000, EndTimeStamp: &end}
	require.Equal(t, 500*time.Millisecond, finished.Elapsed(now))
}

func TestCloneTasksNilBecomesEmpty(t *testing.T) {
	t.Parallel()

	out := CloneTasks(nil)
	require.NotNil(t, out)
	require.Empty(t, out)
}
