package api

import (
	"net/http"

	"github.com/mortasa/storefront/storage"
)

// ListMessages returns the message log in creation order.
func (a *API) ListMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := a.repo.ListMessages(r.Context())
	if err != nil {
		a.serverError(w, r, err, msgInternal)
		return
	}
	if messages == nil {
		messages = []storage.Message{}
	}
	writeJSON(w, http.StatusOK, page(w, r, messages))
}

// CreateMessage appends to the message log.
func (a *API) CreateMessage(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[CreateMessageRequest](w, r, maxSmallBodySize)
	if !ok {
		return
	}
	content := storage.NormalizeText(req.Content)
	if content == "" {
		writeError(w, http.StatusBadRequest, msgMessageRequired)
		return
	}
	m, err := a.repo.CreateMessage(r.Context(), storage.Message{
		Content:  content,
		IsSystem: req.IsSystem,
	})
	if err != nil {
		a.serverError(w, r, err, msgInternal)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}
