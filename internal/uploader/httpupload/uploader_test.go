package httpupload

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/web-archive-agent/internal/archive"
)

func sampleRequest() archive.UploadRequest {
	return archive.UploadRequest{
		Href:       "https://example.com/a",
		Title:      "Example",
		PageDesc:   "desc",
		FolderID:   "3",
		BindTags:   []string{"a", "b"},
		Screenshot: "data:image/webp;base64,aGVsbG8=",
		Content:    "<html>ok</html>",
	}
}

func newTestUploader(t *testing.T, handler http.HandlerFunc) *Uploader {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	up, err := New(Config{ServerURL: server.URL + "/", Token: "secret"}, server.Client(), zap.NewNop())
	require.NoError(t, err)
	return up
}

func TestUploadSendsMultipartForm(t *testing.T) {
	t.Parallel()

	up := newTestUploader(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/pages/upload_new_page", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))

		require.Equal(t, "Example", r.FormValue("title"))
		require.Equal(t, "https://example.com/a", r.FormValue("pageUrl"))
		require.Equal(t, "desc", r.FormValue("pageDesc"))
		require.Equal(t, "3", r.FormValue("folderId"))
		require.Equal(t, `["a","b"]`, r.FormValue("bindTags"))

		file, header, err := r.FormFile("pageFile")
		require.NoError(t, err)
		content, err := io.ReadAll(file)
		require.NoError(t, err)
		require.Equal(t, "<html>ok</html>", string(content))
		require.Equal(t, "text/html", header.Header.Get("Content-Type"))

		shot, shotHeader, err := r.FormFile("screenshot")
		require.NoError(t, err)
		shotData, err := io.ReadAll(shot)
		require.NoError(t, err)
		require.Equal(t, "hello", string(shotData))
		require.Equal(t, "image/webp", shotHeader.Header.Get("Content-Type"))

		_, _ = w.Write([]byte(`{"code":200,"message":"ok","data":null}`))
	})

	require.NoError(t, up.Upload(context.Background(), sampleRequest()))
}

func TestUploadOmitsEmptyScreenshot(t *testing.T) {
	t.Parallel()

	up := newTestUploader(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, _, err := r.FormFile("screenshot")
		require.ErrorIs(t, err, http.ErrMissingFile)
		require.Equal(t, "[]", r.FormValue("bindTags"))
		_, _ = w.Write([]byte(`{"code":200}`))
	})

	req := sampleRequest()
	req.Screenshot = ""
	req.BindTags = nil
	require.NoError(t, up.Upload(context.Background(), req))
}

func TestUploadErrorMapping(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		status     int
		body       string
		validation bool
		message    string
	}{
		{"envelope error", http.StatusOK, `{"code":400,"message":"Title is required"}`, true, "Title is required"},
		{"client error", http.StatusUnauthorized, `{"code":401,"message":"Unauthorized"}`, true, "Unauthorized"},
		{"client error without body", http.StatusForbidden, ``, true, "upload rejected: 403 Forbidden"},
		{"server error", http.StatusBadGateway, `bad gateway`, false, "upload page: server returned 502 Bad Gateway"},
		{"garbage reply", http.StatusOK, `<html>`, false, "decode upload response"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			up := newTestUploader(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			err := up.Upload(context.Background(), sampleRequest())
			require.Error(t, err)
			require.Contains(t, archive.ErrorMessage(err), tc.message)

			var validation *archive.ValidationError
			var network *archive.NetworkError
			if tc.validation {
				require.True(t, errors.As(err, &validation))
			} else {
				require.True(t, errors.As(err, &network))
			}
		})
	}
}

func TestUploadTransportFailureIsNetworkError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	endpoint := server.URL
	server.Close()

	up, err := New(Config{ServerURL: endpoint}, nil, nil)
	require.NoError(t, err)
	err = up.Upload(context.Background(), sampleRequest())
	var network *archive.NetworkError
	require.True(t, errors.As(err, &network))
}

func TestUploadInvalidScreenshot(t *testing.T) {
	t.Parallel()

	up, err := New(Config{ServerURL: "http://127.0.0.1:1"}, nil, nil)
	require.NoError(t, err)
	req := sampleRequest()
	req.Screenshot = "%%%"
	err = up.Upload(context.Background(), req)
	var validation *archive.ValidationError
	require.True(t, errors.As(err, &validation))
}

func TestNewRejectsBadURL(t *testing.T) {
	t.Parallel()

	_, err := New(Config{ServerURL: "not a url"}, nil, nil)
	require.Error(t, err)
}
