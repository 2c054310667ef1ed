package htmlclean

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/web-archive-agent/internal/archive"
)

const page = `<!DOCTYPE html><html><head><title>T</title><script>track()</script></head>
<body onload="init()"><p>visible</p><div hidden>secret</div><div style="display: none">gone</div>
<iframe src="https://ads.example"></iframe><img data-src="/real.png" src="placeholder.gif" loading="lazy">
<noscript>nojs</noscript></body></html>`

var capturedAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestCleanAppliesSettings(t *testing.T) {
	t.Parallel()

	out, err := Clean(page, "https://example.com/a", archive.CaptureSettings{
		RemoveScripts:        true,
		RemoveFrames:         true,
		RemoveHiddenElements: true,
		LoadDeferredImages:   true,
		InsertBaseHref:       true,
	}, capturedAt)
	require.NoError(t, err)

	require.NotContains(t, out, "track()")
	require.NotContains(t, out, "onload")
	require.NotContains(t, out, "nojs")
	require.NotContains(t, out, "iframe")
	require.NotContains(t, out, "secret")
	require.NotContains(t, out, "gone")
	require.Contains(t, out, "visible")
	require.Contains(t, out, `src="/real.png"`)
	require.NotContains(t, out, "loading=")
	require.Contains(t, out, `<base href="https://example.com/a"/>`)
	require.Contains(t, out, "url: https://example.com/a")
	require.Contains(t, out, "saved date: Wed, 01 May 2024 12:00:00 UTC")
	require.True(t, strings.HasPrefix(out, "<!DOCTYPE html><!--"))
}

func TestCleanKeepsContentWithoutSettings(t *testing.T) {
	t.Parallel()

	out, err := Clean(page, "https://example.com/a", archive.CaptureSettings{}, capturedAt)
	require.NoError(t, err)
	require.Contains(t, out, "track()")
	require.Contains(t, out, "iframe")
	require.Contains(t, out, "secret")
	require.NotContains(t, out, "<base")
}

func TestCleanKeepsExistingBase(t *testing.T) {
	t.Parallel()

	doc := `<html><head><base href="https://cdn.example/"></head><body>x</body></html>`
	out, err := Clean(doc, "https://example.com", archive.CaptureSettings{InsertBaseHref: true}, capturedAt)
	require.NoError(t, err)
	require.Equal(t, 1, strings.Count(out, "<base"))
}

func TestCleanRejectsEmptyDocument(t *testing.T) {
	t.Parallel()

	_, err := Clean("  \n", "https://example.com", archive.CaptureSettings{}, capturedAt)
	require.ErrorIs(t, err, ErrEmptyDocument)
}
