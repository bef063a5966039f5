package api_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mortasa/storefront/api"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), bytes.Repeat([]byte{0}, 64)...)

type formFile struct {
	field, name string
	data        []byte
}

func (e *testEnv) upload(t *testing.T, path, token string, files ...formFile) *http.Response {
	t.Helper()
	return e.uploadForm(t, path, token, nil, files...)
}

func (e *testEnv) uploadForm(t *testing.T, path, token string, values map[string][]string, files ...formFile) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for field, vs := range values {
		for _, v := range vs {
			require.NoError(t, mw.WriteField(field, v))
		}
	}
	for _, f := range files {
		fw, err := mw.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		_, err = fw.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, e.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("X-Admin-Token", token)
	}
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestUploadImage(t *testing.T) {
	env := setupServer(t)
	token := env.masterToken(t)

	resp := env.upload(t, "/api/upload", token, formFile{"image", "shoe.png", pngBytes})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	url := decode[api.UploadResponse](t, resp).URL
	assert.True(t, strings.HasPrefix(url, "/uploads/"))
	assert.True(t, strings.HasSuffix(url, ".png"))

	resp = env.do(t, http.MethodGet, url, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, got)
}

func TestUploadMultiple(t *testing.T) {
	env := setupServer(t)
	token := env.masterToken(t)

	resp := env.upload(t, "/api/upload-multiple", token,
		formFile{"images", "a.png", pngBytes},
		formFile{"images", "b.png", pngBytes},
	)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	urls := decode[api.UploadMultipleResponse](t, resp).URLs
	require.Len(t, urls, 2)
	assert.NotEqual(t, urls[0], urls[1])
}

func TestUploadRejectsNonImage(t *testing.T) {
	env := setupServer(t)
	resp := env.upload(t, "/api/upload", env.masterToken(t), formFile{"image", "evil.png", []byte("#!/bin/sh\necho hi\n")})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "نوع الملف غير مدعوم", decode[api.ErrorResponse](t, resp).Error)
}

func TestUploadMissingFile(t *testing.T) {
	env := setupServer(t)
	token := env.masterToken(t)

	resp := env.upload(t, "/api/upload", token, formFile{"other", "a.png", pngBytes})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "لم يتم رفع أي صورة", decode[api.ErrorResponse](t, resp).Error)

	resp = env.do(t, http.MethodPost, "/api/upload", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.upload(t, "/api/upload-multiple", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"urls":[]}`, string(body))

	resp = env.do(t, http.MethodPost, "/api/upload-multiple", token, map[string]any{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[api.UploadMultipleResponse](t, resp).URLs)
}

func TestUploadImageURLPassthrough(t *testing.T) {
	env := setupServer(t)
	token := env.masterToken(t)
	const hosted = "https://cdn.example.com/shoes/red.png"

	resp := env.do(t, http.MethodPost, "/api/upload", token, map[string]string{"imageUrl": hosted})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, hosted, decode[api.UploadResponse](t, resp).URL)

	resp = env.uploadForm(t, "/api/upload", token, map[string][]string{"imageUrl": {"/uploads/old.png"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/uploads/old.png", decode[api.UploadResponse](t, resp).URL)
}

func TestUploadImagesURLPassthrough(t *testing.T) {
	env := setupServer(t)
	token := env.masterToken(t)
	hosted := []string{"https://cdn.example.com/a.png", "http://cdn.example.com/b.webp"}

	resp := env.do(t, http.MethodPost, "/api/upload-multiple", token, map[string]any{"imageUrls": hosted})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, hosted, decode[api.UploadMultipleResponse](t, resp).URLs)

	resp = env.uploadForm(t, "/api/upload-multiple", token, map[string][]string{"imageUrls": hosted})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, hosted, decode[api.UploadMultipleResponse](t, resp).URLs)

	tooMany := make([]string, 11)
	for i := range tooMany {
		tooMany[i] = hosted[0]
	}
	resp = env.do(t, http.MethodPost, "/api/upload-multiple", token, map[string]any{"imageUrls": tooMany})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUploadFilesWinOverURLs(t *testing.T) {
	env := setupServer(t)
	resp := env.uploadForm(t, "/api/upload-multiple", env.masterToken(t),
		map[string][]string{"imageUrls": {"https://cdn.example.com/a.png"}},
		formFile{"images", "a.png", pngBytes},
	)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	urls := decode[api.UploadMultipleResponse](t, resp).URLs
	require.Len(t, urls, 1)
	assert.True(t, strings.HasPrefix(urls[0], "/uploads/"))
}

func TestUploadRejectsBadImageURL(t *testing.T) {
	env := setupServer(t)
	token := env.masterToken(t)
	for _, bad := range []string{"javascript:alert(1)", "//evil.example.com/x.png", "ftp://host/x.png", "https://", "not a url"} {
		resp := env.do(t, http.MethodPost, "/api/upload", token, map[string]string{"imageUrl": bad})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, bad)
		assert.Equal(t, "رابط الصورة غير صالح", decode[api.ErrorResponse](t, resp).Error, bad)
	}
}

type savedImage struct {
	name, contentType string
	data              []byte
}

// recordingSink keeps uploads in memory and hands out CDN URLs.
type recordingSink struct {
	mu    sync.Mutex
	saved []savedImage
}

func (s *recordingSink) Save(_ context.Context, name, contentType string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, savedImage{name, contentType, data})
	return "https://cdn.example.com/products/" + name, nil
}

func TestUploadToImageSink(t *testing.T) {
	sink := &recordingSink{}
	env := setupServer(t, api.WithImageSink(sink))

	resp := env.upload(t, "/api/upload", env.masterToken(t), formFile{"image", "shoe.png", pngBytes})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	url := decode[api.UploadResponse](t, resp).URL
	assert.True(t, strings.HasPrefix(url, "https://cdn.example.com/products/"))

	require.Len(t, sink.saved, 1)
	assert.Equal(t, "image/png", sink.saved[0].contentType)
	assert.True(t, strings.HasSuffix(sink.saved[0].name, ".png"))
	assert.Equal(t, pngBytes, sink.saved[0].data)

	resp = env.do(t, http.MethodGet, "/uploads/"+sink.saved[0].name, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

type failingSink struct{}

func (failingSink) Save(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("bucket unavailable")
}

func TestUploadSinkFailure(t *testing.T) {
	env := setupServer(t, api.WithImageSink(failingSink{}))
	resp := env.upload(t, "/api/upload", env.masterToken(t), formFile{"image", "shoe.png", pngBytes})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestUploadTooManyFiles(t *testing.T) {
	env := setupServer(t)
	files := make([]formFile, 11)
	for i := range files {
		files[i] = formFile{"images", "x.png", pngBytes}
	}
	resp := env.upload(t, "/api/upload-multiple", env.masterToken(t), files...)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUploadRequiresAdmin(t *testing.T) {
	env := setupServer(t)
	resp := env.upload(t, "/api/upload", "", formFile{"image", "shoe.png", pngBytes})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUploadsNoDirectoryListing(t *testing.T) {
	env := setupServer(t)
	resp := env.do(t, http.MethodGet, "/uploads/", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
