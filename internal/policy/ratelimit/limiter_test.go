package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterWaitPacesSameDomain(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 10, DefaultBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://test.com/a"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://test.com/b"))
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestLimiterDomainsAreIndependent(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 1, DefaultBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.example"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://b.example"))
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiterDisabledAndOverrides(t *testing.T) {
	t.Parallel()

	l := New(Config{Domains: []DomainLimit{{Domain: "Slow.Example", RPS: 0.001}}})
	ctx := context.Background()
	for range 5 {
		require.NoError(t, l.Wait(ctx, "https://fast.example"))
	}

	require.NoError(t, l.Wait(ctx, "https://slow.example"))
	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	require.Error(t, l.Wait(short, "https://slow.example"))
}

func TestDomainOf(t *testing.T) {
	t.Parallel()

	require.Equal(t, "example.com", domainOf("https://EXAMPLE.com/x"))
	require.Equal(t, "unknown", domainOf("::"))
	require.Equal(t, "unknown", domainOf(""))
}
