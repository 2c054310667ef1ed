package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/web-archive-agent/internal/archive"
)

func TestTaskStoreRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "agent.db")
	store, err := Open(ctx, Config{Path: path})
	require.NoError(t, err)

	tasks, found, err := store.Load(ctx)
	require.NoError(t, err)
	require.False(t, found)
	require.Nil(t, tasks)

	msg := "unexpected shutdown"
	end := int64(50)
	input := []archive.Task{{
		ID: "t1", Status: archive.StatusFailed, BindTags: []string{"a", "b"},
		StartTimeStamp: 1, EndTimeStamp: &end, ErrorMessage: &msg,
	}}
	require.NoError(t, store.Save(ctx, input))
	require.NoError(t, store.Save(ctx, input))

	tasks, found, err = store.Load(ctx)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, input, tasks)
	require.NoError(t, store.Close())

	reopened, err := Open(ctx, Config{Path: path})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, reopened.Close()) })

	var rows int
	require.NoError(t, reopened.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&rows))
	require.Equal(t, 1, rows)

	tasks, found, err = reopened.Load(ctx)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, input, tasks)
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), Config{})
	require.Error(t, err)
}
