package gcs

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mortasa/storefront/storage/images"
)

type storedObject struct {
	contentType string
	data        []byte
}

// fakeGCS accepts multipart media uploads the way the JSON API does and
// keeps objects in memory.
type fakeGCS struct {
	mu      sync.Mutex
	bucket  string
	objects map[string]storedObject
	queries []string
}

func (f *fakeGCS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || !strings.Contains(r.URL.Path, "/b/"+f.bucket+"/o") {
		http.Error(w, "unexpected request "+r.Method+" "+r.URL.Path, http.StatusNotFound)
		return
	}
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		http.Error(w, "expected multipart upload", http.StatusBadRequest)
		return
	}
	mr := multipart.NewReader(r.Body, params["boundary"])

	metaPart, err := mr.NextPart()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var meta struct {
		Name        string `json:"name"`
		ContentType string `json:"contentType"`
	}
	if err := json.NewDecoder(metaPart).Decode(&meta); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	mediaPart, err := mr.NextPart()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	data, _ := io.ReadAll(mediaPart)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, r.URL.RawQuery)
	if _, ok := f.objects[meta.Name]; ok && r.URL.Query().Get("ifGenerationMatch") == "0" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPreconditionFailed)
		io.WriteString(w, `{"error":{"code":412,"message":"conditionNotMet"}}`)
		return
	}
	f.objects[meta.Name] = storedObject{contentType: meta.ContentType, data: data}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"kind":        "storage#object",
		"bucket":      f.bucket,
		"name":        meta.Name,
		"contentType": meta.ContentType,
		"size":        strconv.Itoa(len(data)),
		"generation":  "1",
	})
}

func newTestSink(t *testing.T, opts Options) (*Sink, *fakeGCS) {
	t.Helper()
	fake := &fakeGCS{bucket: "mortasa-images", objects: map[string]storedObject{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	t.Setenv("STORAGE_EMULATOR_HOST", srv.URL)

	s, err := Open(context.Background(), fake.bucket, opts)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, fake
}

func TestSaveUploadsUnderPrefix(t *testing.T) {
	s, fake := newTestSink(t, Options{})

	url, err := s.Save(context.Background(), "abc.png", "image/png", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "https://storage.googleapis.com/mortasa-images/products/abc.png", url)

	obj, ok := fake.objects["products/abc.png"]
	require.True(t, ok)
	assert.Equal(t, "image/png", obj.contentType)
	assert.Equal(t, "png-bytes", string(obj.data))
	require.Len(t, fake.queries, 1)
	assert.Contains(t, fake.queries[0], "ifGenerationMatch=0")
}

func TestSaveCustomPrefixAndPublicURL(t *testing.T) {
	s, fake := newTestSink(t, Options{Prefix: "shoes/", PublicURL: "https://cdn.example.com/"})

	url, err := s.Save(context.Background(), "x.webp", "image/webp", strings.NewReader("webp"))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/shoes/x.webp", url)
	assert.Contains(t, fake.objects, "shoes/x.webp")
}

func TestSaveRefusesExistingObject(t *testing.T) {
	s, fake := newTestSink(t, Options{})

	_, err := s.Save(context.Background(), "dup.png", "image/png", strings.NewReader("first"))
	require.NoError(t, err)
	_, err = s.Save(context.Background(), "dup.png", "image/png", strings.NewReader("second"))
	assert.ErrorIs(t, err, images.ErrExists)
	assert.Equal(t, "first", string(fake.objects["products/dup.png"].data))
}

func TestOpenRequiresBucket(t *testing.T) {
	_, err := Open(context.Background(), "", Options{})
	assert.Error(t, err)
}

func TestSinkImplementsImageSink(t *testing.T) {
	var _ images.Sink = (*Sink)(nil)
}
