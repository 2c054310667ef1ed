package archive

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusTransitions(t *testing.T) {
	t.Parallel()

	cases := []struct {
		from, to Status
		allowed  bool
	}{
		{StatusInit, StatusScraping, true},
		{StatusScraping, StatusUploading, true},
		{StatusUploading, StatusDone, true},
		{StatusInit, StatusFailed, true},
		{StatusScraping, StatusFailed, true},
		{StatusUploading, StatusFailed, true},
		{StatusInit, StatusUploading, false},
		{StatusInit, StatusDone, false},
		{StatusScraping, StatusDone, false},
		{StatusUploading, StatusScraping, false},
		{StatusDone, StatusFailed, false},
		{StatusFailed, StatusDone, false},
		{StatusDone, StatusInit, false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.allowed, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestAdvanceStampsTerminalFields(t *testing.T) {
	t.Parallel()

	task := Task{ID: "t1", Status: StatusInit, StartTimeStamp: 100}
	require.NoError(t, task.CheckInvariants())

	require.NoError(t, task.Advance(StatusScraping, 110, ""))
	require.Nil(t, task.EndTimeStamp)
	require.NoError(t, task.CheckInvariants())

	require.NoError(t, task.Advance(StatusUploading, 120, ""))
	require.NoError(t, task.CheckInvariants())

	require.NoError(t, task.Advance(StatusDone, 130, ""))
	require.NotNil(t, task.EndTimeStamp)
	require.Equal(t, int64(130), *task.EndTimeStamp)
	require.Nil(t, task.ErrorMessage)
	require.NoError(t, task.CheckInvariants())
}

func TestAdvanceRejectsInvalidTransition(t *testing.T) {
	t.Parallel()

	task := Task{ID: "t2", Status: StatusDone, StartTimeStamp: 1}
	end := int64(2)
	task.EndTimeStamp = &end

	err := task.Advance(StatusFailed, 3, "late failure")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrInvalidTransition))
	require.Equal(t, StatusDone, task.Status)
	require.Nil(t, task.ErrorMessage)
	require.Equal(t, int64(2), *task.EndTimeStamp)
}

func TestAdvanceFailedRecordsMessage(t *testing.T) {
	t.Parallel()

	task := Task{ID: "t3", Status: StatusScraping}
	require.NoError(t, task.Advance(StatusFailed, 50, "tab closed"))
	require.Equal(t, "tab closed", *task.ErrorMessage)
	require.Equal(t, int64(50), *task.EndTimeStamp)
	require.NoError(t, task.CheckInvariants())
}

func TestCheckInvariantsDetectsViolations(t *testing.T) {
	t.Parallel()

	end := int64(10)
	msg := "boom"
	require.Error(t, Task{ID: "a", Status: StatusDone}.CheckInvariants())
	require.Error(t, Task{ID: "b", Status: StatusScraping, EndTimeStamp: &end}.CheckInvariants())
	require.Error(t, Task{ID: "c", Status: StatusDone, EndTimeStamp: &end, ErrorMessage: &msg}.CheckInvariants())
	require.Error(t, Task{ID: "d", Status: StatusFailed, EndTimeStamp: &end}.CheckInvariants())
	require.Error(t, Task{ID: "e", Status: "paused"}.CheckInvariants())
}
