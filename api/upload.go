package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/mortasa/storefront/internal/uuid"
)

const (
	maxUploadFileSize = 10 << 20
	maxUploadFiles    = 10
	// multipartMemory is how much of a form is buffered before spilling to
	// temporary files.
	multipartMemory = 8 << 20
	sniffLen        = 512
)

// allowedImageTypes maps sniffed content types to the stored extension.
var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

var (
	errUnsupportedType = errors.New("unsupported file type")
	errFileTooLarge    = errors.New("file too large")
)

// uploadBody is the JSON alternative to a multipart upload. It passes
// already hosted image URLs straight through.
type uploadBody struct {
	ImageURL  string   `json:"imageUrl"`
	ImageURLs []string `json:"imageUrls"`
}

// pendingUpload is what a request carried: files win over URLs.
type pendingUpload struct {
	files []*multipart.FileHeader
	urls  []string
}

// UploadImage stores the single image in form field "image", or echoes an
// imageUrl given instead.
func (a *API) UploadImage(w http.ResponseWriter, r *http.Request) {
	up, ok := a.readUpload(w, r, "image", "imageUrl", 1)
	if !ok {
		return
	}
	if len(up.files) == 0 && len(up.urls) == 0 {
		writeError(w, http.StatusBadRequest, msgNoImage)
		return
	}
	urls, ok := a.storeUploads(w, r, up)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, UploadResponse{URL: urls[0]})
}

// UploadImages stores up to maxUploadFiles images from form field "images",
// or echoes imageUrls. A request with neither yields an empty list.
func (a *API) UploadImages(w http.ResponseWriter, r *http.Request) {
	up, ok := a.readUpload(w, r, "images", "imageUrls", maxUploadFiles)
	if !ok {
		return
	}
	urls, ok := a.storeUploads(w, r, up)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, UploadMultipleResponse{URLs: urls})
}

// readUpload accepts a multipart form (files in fileField, URLs in
// urlField) or a JSON uploadBody. Any other body carries nothing.
func (a *API) readUpload(w http.ResponseWriter, r *http.Request, fileField, urlField string, limit int) (pendingUpload, bool) {
	var up pendingUpload
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, int64(limit)*maxUploadFileSize+(1<<20))
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, msgFileTooLarge)
				return up, false
			}
			writeError(w, http.StatusBadRequest, msgInvalidBody)
			return up, false
		}
		up.files = r.MultipartForm.File[fileField]
		for _, v := range r.MultipartForm.Value[urlField] {
			if v = strings.TrimSpace(v); v != "" {
				up.urls = append(up.urls, v)
			}
		}
	case "application/json":
		body, ok := decodeJSON[uploadBody](w, r, maxSmallBodySize)
		if !ok {
			return up, false
		}
		if limit == 1 {
			if u := strings.TrimSpace(body.ImageURL); u != "" {
				up.urls = []string{u}
			}
		} else {
			for _, u := range body.ImageURLs {
				if u = strings.TrimSpace(u); u != "" {
					up.urls = append(up.urls, u)
				}
			}
		}
	}

	if len(up.files) > limit || (len(up.files) == 0 && len(up.urls) > limit) {
		a.discardForm(r)
		writeError(w, http.StatusBadRequest, msgTooManyFiles)
		return up, false
	}
	if len(up.files) > 0 {
		up.urls = nil
		return up, true
	}
	for _, u := range up.urls {
		if !validImageURL(u) {
			a.discardForm(r)
			writeError(w, http.StatusBadRequest, msgInvalidImageURL)
			return up, false
		}
	}
	return up, true
}

func (a *API) discardForm(r *http.Request) {
	if r.MultipartForm != nil {
		r.MultipartForm.RemoveAll()
	}
}

// validImageURL accepts absolute http(s) URLs and site-relative paths.
func validImageURL(raw string) bool {
	if strings.HasPrefix(raw, "/") {
		return !strings.HasPrefix(raw, "//") && !strings.ContainsAny(raw, "\\ ")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// storeUploads validates every file before writing any of them. URL-only
// uploads are returned as given.
func (a *API) storeUploads(w http.ResponseWriter, r *http.Request, up pendingUpload) ([]string, bool) {
	defer a.discardForm(r)
	if len(up.files) == 0 {
		if up.urls == nil {
			return []string{}, true
		}
		return up.urls, true
	}

	kinds := make([]imageKind, len(up.files))
	for i, fh := range up.files {
		kind, err := checkImage(fh)
		switch {
		case errors.Is(err, errUnsupportedType):
			writeError(w, http.StatusBadRequest, msgUnsupportedType)
			return nil, false
		case errors.Is(err, errFileTooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, msgFileTooLarge)
			return nil, false
		case err != nil:
			a.serverError(w, r, err, msgInternal)
			return nil, false
		}
		kinds[i] = kind
	}

	session, _ := sessionFromContext(r.Context())
	urls := make([]string, 0, len(up.files))
	for i, fh := range up.files {
		name := uuid.New() + kinds[i].ext
		loc, err := a.saveUpload(r.Context(), fh, name, kinds[i].contentType)
		if err != nil {
			a.serverError(w, r, err, msgInternal)
			return nil, false
		}
		a.audit.logEvent(AuditImageUploaded, r, session,
			slog.String("file", name),
			slog.Int64("size", fh.Size))
		urls = append(urls, loc)
	}
	return urls, true
}

func (a *API) saveUpload(ctx context.Context, fh *multipart.FileHeader, name, contentType string) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("opening upload: %w", err)
	}
	defer src.Close()
	return a.images.Save(ctx, name, contentType, src)
}

type imageKind struct {
	contentType string
	ext         string
}

// checkImage sniffs the file content and returns its type and the extension
// to store it under. The declared content type is not trusted.
func checkImage(fh *multipart.FileHeader) (imageKind, error) {
	if fh.Size > maxUploadFileSize {
		return imageKind{}, errFileTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return imageKind{}, fmt.Errorf("opening upload: %w", err)
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return imageKind{}, fmt.Errorf("reading upload: %w", err)
	}
	contentType := http.DetectContentType(head[:n])
	ext, ok := allowedImageTypes[contentType]
	if !ok {
		return imageKind{}, errUnsupportedType
	}
	return imageKind{contentType: contentType, ext: ext}, nil
}
