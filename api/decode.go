package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

const (
	maxAuthBodySize    = 4 << 10
	maxSmallBodySize   = 16 << 10
	maxProductBodySize = 256 << 10
)

// decodeJSON reads a single JSON value of type T from the request body,
// limited to maxBytes. On failure it writes a 400 response and returns false.
// An empty body decodes to the zero value.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request, maxBytes int64) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	err := json.NewDecoder(r.Body).Decode(&v)
	if err == nil || errors.Is(err, io.EOF) {
		return v, true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, msgInvalidBody)
		return v, false
	}
	writeError(w, http.StatusBadRequest, msgInvalidBody)
	return v, false
}
