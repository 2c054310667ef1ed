// Package httpupload sends captured pages to the archive server's
// upload_new_page endpoint as multipart forms.
package httpupload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/web-archive-agent/internal/archive"
	"github.com/JakeFAU/web-archive-agent/internal/metrics"
	"github.com/JakeFAU/web-archive-agent/internal/uploader"
)

const (
	uploaderName = "http"
	uploadPath   = "/api/pages/upload_new_page"
	maxReplySize = 1 << 20
)

// Config locates the archive server.
type Config struct {
	ServerURL string        `mapstructure:"server_url"`
	Token     string        `mapstructure:"token"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

// envelope is the archive server's response wrapper.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Uploader implements archive.Uploader over HTTP.
type Uploader struct {
	cfg      Config
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

// New validates cfg and returns an Uploader. client may be nil.
func New(cfg Config, client *http.Client, logger *zap.Logger) (*Uploader, error) {
	base, err := url.Parse(strings.TrimRight(cfg.ServerURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid server url %q", cfg.ServerURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Uploader{
		cfg:      cfg,
		endpoint: base.String() + uploadPath,
		client:   client,
		logger:   logger,
	}, nil
}

// Upload posts req to the archive server.
func (u *Uploader) Upload(ctx context.Context, req archive.UploadRequest) (err error) {
	defer func() { metrics.ObserveUpload(uploaderName, len(req.Content), err) }()

	body, contentType, err := encodeForm(req)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, body)
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	if u.cfg.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+u.cfg.Token)
	}
	if u.cfg.UserAgent != "" {
		httpReq.Header.Set("User-Agent", u.cfg.UserAgent)
	}

	resp, err := u.client.Do(httpReq)
	if err != nil {
		return &archive.NetworkError{Op: "upload page", Err: err}
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			u.logger.Warn("close upload response body", zap.Error(cerr))
		}
	}()
	reply, err := io.ReadAll(io.LimitReader(resp.Body, maxReplySize))
	if err != nil {
		return &archive.NetworkError{Op: "read upload response", Err: err}
	}
	return interpret(resp.StatusCode, reply)
}

// interpret maps the server reply onto the upload error taxonomy.
func interpret(status int, reply []byte) error {
	if status >= http.StatusInternalServerError {
		return &archive.NetworkError{
			Op:  "upload page",
			Err: fmt.Errorf("server returned %d %s", status, http.StatusText(status)),
		}
	}

	var env envelope
	decodeErr := json.Unmarshal(reply, &env)
	if status >= http.StatusBadRequest {
		msg := env.Message
		if decodeErr != nil || msg == "" {
			msg = fmt.Sprintf("upload rejected: %d %s", status, http.StatusText(status))
		}
		return archive.NewValidationError("", msg)
	}
	if decodeErr != nil {
		return &archive.NetworkError{Op: "decode upload response", Err: decodeErr}
	}
	if env.Code != http.StatusOK {
		msg := env.Message
		if msg == "" {
			msg = fmt.Sprintf("upload rejected with code %d", env.Code)
		}
		return archive.NewValidationError("", msg)
	}
	return nil
}

func encodeForm(req archive.UploadRequest) (*bytes.Buffer, string, error) {
	screenshot, err := uploader.DecodeScreenshot(req.Screenshot)
	if err != nil {
		return nil, "", err
	}
	tags := req.BindTags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return nil, "", fmt.Errorf("encode bind tags: %w", err)
	}

	buf := &bytes.Buffer{}
	form := multipart.NewWriter(buf)
	fields := [][2]string{
		{"title", req.Title},
		{"pageUrl", req.Href},
		{"pageDesc", req.PageDesc},
		{"folderId", req.FolderID},
		{"bindTags", string(tagsJSON)},
	}
	for _, field := range fields {
		if err := form.WriteField(field[0], field[1]); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", field[0], err)
		}
	}
	if err := writeFile(form, "pageFile", "index.html", uploader.ContentTypeHTML, []byte(req.Content)); err != nil {
		return nil, "", err
	}
	if len(screenshot) > 0 {
		if err := writeFile(form, "screenshot", "screenshot.webp", uploader.ContentTypeScreenshot, screenshot); err != nil {
			return nil, "", err
		}
	}
	if err := form.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart form: %w", err)
	}
	return buf, form.FormDataContentType(), nil
}

func writeFile(form *multipart.Writer, field, filename, contentType string, data []byte) error {
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	header.Set("Content-Type", contentType)
	part, err := form.CreatePart(header)
	if err != nil {
		return fmt.Errorf("create %s part: %w", field, err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("write %s part: %w", field, err)
	}
	return nil
}
