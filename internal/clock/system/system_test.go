package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClockNowIsUTCMillis(t *testing.T) {
	t.Parallel()

	before := time.Now().Add(-time.Second)
	now := New().Now()

	require.Equal(t, time.UTC, now.Location())
	require.Zero(t, now.Nanosecond()%int(time.Millisecond))
	require.True(t, now.After(before))
}
