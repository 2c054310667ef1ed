package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/web-archive-agent/internal/archive"
)

func TestTaskStoreLifecycle(t *testing.T) {
	t.Parallel()

	store := NewTaskStore()
	ctx := context.Background()

	tasks, found, err := store.Load(ctx)
	require.NoError(t, err)
	require.False(t, found)
	require.Nil(t, tasks)

	input := []archive.Task{{ID: "t1", Status: archive.StatusInit, BindTags: []string{"a"}}}
	require.NoError(t, store.Save(ctx, input))
	input[0].BindTags[0] = "mutated"

	tasks, found, err = store.Load(ctx)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []string{"a"}, tasks[0].BindTags)

	require.NoError(t, store.Save(ctx, nil))
	tasks, found, err = store.Load(ctx)
	require.NoError(t, err)
	require.True(t, found)
	require.Empty(t, tasks)
	require.Equal(t, 2, store.Saves())
}
