// Package gcs stores archived page artifacts in Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// Config selects the bucket and object naming.
type Config struct {
	Bucket string `mapstructure:"bucket"`
	// Prefix is prepended to every object name.
	Prefix       string `mapstructure:"prefix"`
	CacheControl string `mapstructure:"cache_control"`
	// SkipExisting writes with a does-not-exist precondition, so a
	// content-addressed object that is already stored is left untouched.
	SkipExisting bool `mapstructure:"skip_existing"`
}

// BlobStore implements archive.BlobStore on a GCS bucket.
type BlobStore struct {
	bucket *storage.BucketHandle
	cfg    Config
}

// New returns a BlobStore writing to cfg.Bucket.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, errors.New("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")
	return &BlobStore{bucket: client.Bucket(cfg.Bucket), cfg: cfg}, nil
}

func (s *BlobStore) objectName(p string) (string, error) {
	name := strings.TrimPrefix(strings.TrimSpace(p), "/")
	if name == "" {
		return "", errors.New("object path is required")
	}
	if s.cfg.Prefix != "" {
		name = path.Join(s.cfg.Prefix, name)
	}
	return name, nil
}

// PutObject streams r into the bucket and returns the gs:// URI of the
// object.
func (s *BlobStore) PutObject(ctx context.Context, objectPath, contentType string, r io.Reader) (string, error) {
	name, err := s.objectName(objectPath)
	if err != nil {
		return "", err
	}
	uri := fmt.Sprintf("gs://%s/%s", s.cfg.Bucket, name)

	obj := s.bucket.Object(name)
	if s.cfg.SkipExisting {
		obj = obj.If(storage.Conditions{DoesNotExist: true})
	}
	w := obj.NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = s.cfg.CacheControl

	if _, err := io.Copy(w, r); err != nil {
		return "", errors.Join(fmt.Errorf("write %s: %w", uri, err), w.Close())
	}
	if err := w.Close(); err != nil {
		if s.cfg.SkipExisting && preconditionFailed(err) {
			return uri, nil
		}
		return "", fmt.Errorf("finalize %s: %w", uri, err)
	}
	return uri, nil
}

func preconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}
