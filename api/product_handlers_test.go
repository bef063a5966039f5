package api_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mortasa/storefront/storage"
)

func validProduct() map[string]any {
	return map[string]any{
		"name":        "حذاء جلد",
		"category":    "رجالي",
		"price":       250,
		"image":       "/uploads/shoe.jpg",
		"description": "حذاء جلد طبيعي",
		"sizes":       []int{40, 41, 42},
	}
}

func TestProductCRUD(t *testing.T) {
	env := setupServer(t)
	token := env.masterToken(t)

	resp := env.do(t, http.MethodPost, "/api/products", token, validProduct())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[storage.Product](t, resp)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, storage.DefaultRating, created.Rating)
	assert.True(t, created.InStock)
	assert.Equal(t, []int{40, 41, 42}, created.Sizes)
	assert.Equal(t, []string{}, created.Images)

	resp = env.do(t, http.MethodGet, "/api/products/"+created.ID, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, created.Name, decode[storage.Product](t, resp).Name)

	resp = env.do(t, http.MethodPut, "/api/products/"+created.ID, token, map[string]any{"price": 199, "inStock": false})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[storage.Product](t, resp)
	assert.Equal(t, 199, updated.Price)
	assert.False(t, updated.InStock)
	assert.Equal(t, created.Name, updated.Name)

	resp = env.do(t, http.MethodGet, "/api/products", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]storage.Product](t, resp), 1)

	resp = env.do(t, http.MethodDelete, "/api/products/"+created.ID, token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/products/"+created.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "المنتج غير موجود", decode[map[string]any](t, resp)["error"])
}

func TestCreateProductExplicitValues(t *testing.T) {
	env := setupServer(t)
	p := validProduct()
	p["rating"] = 3
	p["inStock"] = false
	p["isNew"] = true
	resp := env.do(t, http.MethodPost, "/api/products", env.masterToken(t), p)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[storage.Product](t, resp)
	assert.Equal(t, 3, created.Rating)
	assert.False(t, created.InStock)
	assert.True(t, created.IsNew)
}

func TestCreateProductValidation(t *testing.T) {
	env := setupServer(t)
	token := env.masterToken(t)

	missing := validProduct()
	delete(missing, "name")
	resp := env.do(t, http.MethodPost, "/api/products", token, missing)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	negative := validProduct()
	negative["price"] = -1
	resp = env.do(t, http.MethodPost, "/api/products", token, negative)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProductWritesRequireAdmin(t *testing.T) {
	env := setupServer(t)
	resp := env.do(t, http.MethodPost, "/api/products", "", validProduct())
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp = env.do(t, http.MethodPut, "/api/products/x", "", map[string]any{"price": 1})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp = env.do(t, http.MethodDelete, "/api/products/x", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUpdateProductEdgeCases(t *testing.T) {
	env := setupServer(t)
	token := env.masterToken(t)
	resp := env.do(t, http.MethodPost, "/api/products", token, validProduct())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := decode[storage.Product](t, resp).ID

	resp = env.do(t, http.MethodPut, "/api/products/"+id, token, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "لا توجد بيانات للتحديث", decode[map[string]any](t, resp)["error"])

	resp = env.do(t, http.MethodPut, "/api/products/missing", token, map[string]any{"price": 5})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodPut, "/api/products/"+id, token, map[string]any{"rating": 9})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteMissingProduct(t *testing.T) {
	env := setupServer(t)
	resp := env.do(t, http.MethodDelete, "/api/products/missing", env.masterToken(t), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListProductsPaged(t *testing.T) {
	env := setupServer(t)
	token := env.masterToken(t)
	for range 3 {
		resp := env.do(t, http.MethodPost, "/api/products", token, validProduct())
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp := env.do(t, http.MethodGet, "/api/products?limit=2", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "3", resp.Header.Get("X-Total-Count"))
	assert.Len(t, decode[[]storage.Product](t, resp), 2)
}

func TestListProductsEmpty(t *testing.T) {
	env := setupServer(t)
	resp := env.do(t, http.MethodGet, "/api/products", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []storage.Product{}, decode[[]storage.Product](t, resp))
}
