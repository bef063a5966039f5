package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mortasa/storefront/storage"
)

// ListProducts returns the catalog in creation order.
func (a *API) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.repo.ListProducts(r.Context())
	if err != nil {
		a.mapProductError(w, r, err)
		return
	}
	if products == nil {
		products = []storage.Product{}
	}
	for i := range products {
		products[i] = withCollections(products[i])
	}
	writeJSON(w, http.StatusOK, page(w, r, products))
}

// GetProduct returns one product.
func (a *API) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := a.repo.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.mapProductError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, withCollections(p))
}

// CreateProduct adds a product to the catalog. Admin only.
func (a *API) CreateProduct(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[CreateProductRequest](w, r, maxProductBodySize)
	if !ok {
		return
	}
	p := req.product()
	p.Normalize()
	if err := p.Validate(); err != nil {
		a.mapProductError(w, r, err)
		return
	}
	created, err := a.repo.CreateProduct(r.Context(), p)
	if err != nil {
		a.mapProductError(w, r, err)
		return
	}
	session, _ := sessionFromContext(r.Context())
	a.audit.logEvent(AuditProductCreated, r, session, slog.String("product_id", created.ID))
	writeJSON(w, http.StatusCreated, withCollections(created))
}

// UpdateProduct applies a partial update. Admin only.
func (a *API) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	patch, ok := decodeJSON[storage.ProductPatch](w, r, maxProductBodySize)
	if !ok {
		return
	}
	if patch.Empty() {
		writeError(w, http.StatusBadRequest, msgNothingToUpdate)
		return
	}
	patch.Normalize()
	if err := patch.Validate(); err != nil {
		a.mapProductError(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	updated, err := a.repo.UpdateProduct(r.Context(), id, patch)
	if err != nil {
		a.mapProductError(w, r, err)
		return
	}
	session, _ := sessionFromContext(r.Context())
	a.audit.logEvent(AuditProductUpdated, r, session, slog.String("product_id", id))
	writeJSON(w, http.StatusOK, withCollections(updated))
}

// DeleteProduct removes a product. Admin only.
func (a *API) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.repo.DeleteProduct(r.Context(), id); err != nil {
		a.mapProductError(w, r, err)
		return
	}
	session, _ := sessionFromContext(r.Context())
	a.audit.logEvent(AuditProductDeleted, r, session, slog.String("product_id", id))
	w.WriteHeader(http.StatusNoContent)
}

// withCollections makes empty images and sizes encode as [] rather than null.
func withCollections(p storage.Product) storage.Product {
	if p.Images == nil {
		p.Images = []string{}
	}
	if p.Sizes == nil {
		p.Sizes = []int{}
	}
	return p
}
