// Package gcs stores product images in a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/mortasa/storefront/storage/images"
)

// DefaultPrefix is the object name prefix product images are written under.
const DefaultPrefix = "products/"

// Sink writes images as objects in one bucket.
type Sink struct {
	client  *storage.Client
	bucket  *storage.BucketHandle
	prefix  string
	baseURL string
	owned   bool
}

// Options tunes a Sink. Zero values pick DefaultPrefix and the public
// storage.googleapis.com URL of the bucket.
type Options struct {
	Prefix    string
	PublicURL string
}

// New returns a Sink for bucket using an existing client. The caller keeps
// ownership of client.
func New(client *storage.Client, bucket string, opts Options) *Sink {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	base := strings.TrimRight(opts.PublicURL, "/")
	if base == "" {
		base = "https://storage.googleapis.com/" + bucket
	}
	return &Sink{
		client:  client,
		bucket:  client.Bucket(bucket),
		prefix:  prefix,
		baseURL: base,
	}
}

// Open dials Cloud Storage with application default credentials (or
// STORAGE_EMULATOR_HOST) and returns a Sink that owns the client.
func Open(ctx context.Context, bucket string, opts Options, clientOpts ...option.ClientOption) (*Sink, error) {
	if bucket == "" {
		return nil, errors.New("gcs: bucket is required")
	}
	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("gcs: creating client: %w", err)
	}
	s := New(client, bucket, opts)
	s.owned = true
	return s, nil
}

// Save uploads r as prefix+name in a single request. The write is
// conditional on the object not existing yet.
func (s *Sink) Save(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	object := s.prefix + name
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := s.bucket.Object(object).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = contentType
	w.ChunkSize = 0

	if _, err := io.Copy(w, r); err != nil {
		cancel()
		return "", fmt.Errorf("gcs: writing %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
			return "", fmt.Errorf("gcs: %s: %w", object, images.ErrExists)
		}
		return "", fmt.Errorf("gcs: uploading %s: %w", object, err)
	}
	return s.baseURL + "/" + object, nil
}

// Close releases the client when the Sink opened it.
func (s *Sink) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}
