// Package images stores uploaded product images and hands back the URL the
// storefront embeds. Local keeps files on disk and serves them itself; the
// gcs subpackage writes to a Cloud Storage bucket for deployments without a
// persistent disk.
package images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// ErrExists is returned when an object with the requested name is already
// stored. Names are random, so callers treat it as a failure.
var ErrExists = errors.New("image already exists")

// Sink persists one image under name and returns its public URL.
type Sink interface {
	Save(ctx context.Context, name, contentType string, r io.Reader) (string, error)
}

// LocalURLPrefix is the path the Local handler is mounted under.
const LocalURLPrefix = "/uploads/"

// Local stores images in a directory and serves them from LocalURLPrefix.
type Local struct {
	dir string
}

// NewLocal returns a Local sink rooted at dir. The directory is created on
// the first Save.
func NewLocal(dir string) *Local {
	return &Local{dir: dir}
}

// Dir returns the directory images are written to.
func (l *Local) Dir() string { return l.dir }

// Save writes r to dir/name. An existing file is never overwritten.
func (l *Local) Save(_ context.Context, name, _ string, r io.Reader) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid image name %q", name)
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating uploads dir: %w", err)
	}

	path := filepath.Join(l.dir, name)
	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		return "", fmt.Errorf("%s: %w", name, ErrExists)
	}
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", name, err)
	}
	if _, err := io.Copy(dst, r); err != nil {
		dst.Close()
		os.Remove(path)
		return "", fmt.Errorf("writing %s: %w", name, err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("closing %s: %w", name, err)
	}
	return LocalURLPrefix + name, nil
}

// Handler serves stored images, expecting the URL prefix to be stripped
// already. Directory listings are never served.
func (l *Local) Handler() http.Handler {
	fs := http.FileServer(http.Dir(l.dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		fs.ServeHTTP(w, r)
	})
}
