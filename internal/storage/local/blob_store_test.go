package local_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/web-archive-agent/internal/hash/sha256"
	"github.com/JakeFAU/web-archive-agent/internal/storage/local"
)

func TestNewValidatesBaseDir(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "plain-file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	tests := []struct {
		name    string
		baseDir string
		wantErr bool
	}{
		{name: "creates missing dir", baseDir: filepath.Join(t.TempDir(), "new", "blobs")},
		{name: "empty base dir", baseDir: "", wantErr: true},
		{name: "base dir is a file", baseDir: file, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store, err := local.New(local.Config{BaseDir: tt.baseDir})
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, store)
			require.DirExists(t, tt.baseDir)
		})
	}
}

func TestNewRejectsReadOnlyDir(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	dir := t.TempDir()
	// #nosec G302 -- read-only directory under test.
	require.NoError(t, os.Chmod(dir, 0o500))
	// #nosec G302 -- restore so TempDir cleanup succeeds.
	t.Cleanup(func() { _ = os.Chmod(dir, 0o700) })

	_, err := local.New(local.Config{BaseDir: dir})
	require.Error(t, err)
}

func TestPutObjectWritesShardedPage(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)

	html := []byte("<html><body>archived</body></html>")
	digest, err := sha256.New().Hash(html)
	require.NoError(t, err)
	rel := sha256.ShardedPath("pages", digest, ".html")

	uri, err := store.PutObject(context.Background(), rel, "text/html", bytes.NewReader(html))
	require.NoError(t, err)
	require.Equal(t, "file://"+filepath.Join(dir, rel), uri)

	// #nosec G304 -- reads from the test's temp directory.
	got, err := os.ReadFile(filepath.Join(dir, rel))
	require.NoError(t, err)
	require.Equal(t, html, got)

	_, err = store.PutObject(context.Background(), rel, "text/html", strings.NewReader("replaced"))
	require.NoError(t, err)
	// #nosec G304 -- reads from the test's temp directory.
	got, err = os.ReadFile(filepath.Join(dir, rel))
	require.NoError(t, err)
	require.Equal(t, "replaced", string(got))
}

func TestPutObjectRejectsBadPaths(t *testing.T) {
	t.Parallel()

	store, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "", "text/plain", strings.NewReader("x"))
	require.Error(t, err)

	_, err = store.PutObject(context.Background(), "../escape.html", "text/html", strings.NewReader("x"))
	require.ErrorContains(t, err, "path traversal")
}
