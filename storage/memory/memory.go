// Package memory provides a thread-safe in-memory implementation of storage.Repository.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/mortasa/storefront/storage"
)

// Repository is a thread-safe in-memory implementation of storage.Repository.
// Suitable for testing, demos, and single-process use cases. Data is lost on
// restart.
type Repository struct {
	mu       sync.RWMutex
	codes    map[string]storage.AccessCode
	products map[string]storage.Product
	messages map[string]storage.Message
	now      func() time.Time
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository creates a new empty in-memory Repository.
func NewRepository() *Repository {
	return &Repository{
		codes:    make(map[string]storage.AccessCode),
		products: make(map[string]storage.Product),
		messages: make(map[string]storage.Message),
		now:      time.Now,
	}
}

// Close is a no-op.
func (r *Repository) Close() error { return nil }

// sortedValues returns the values of m ordered by key. Keys are ULIDs, so
// this is creation order.
func sortedValues[T any](m map[string]T) []T {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}

func cloneProduct(p storage.Product) storage.Product {
	p.Images = slices.Clone(p.Images)
	p.Sizes = slices.Clone(p.Sizes)
	return p
}

// ---------------------------------------------------------------------------
// Access codes
// ---------------------------------------------------------------------------

func (r *Repository) ListAccessCodes(_ context.Context) ([]storage.AccessCode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedValues(r.codes), nil
}

func (r *Repository) GetAccessCode(_ context.Context, id string) (storage.AccessCode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.codes[id]
	if !ok {
		return storage.AccessCode{}, storage.ErrNotFound
	}
	return c, nil
}

func (r *Repository) FindAccessCode(_ context.Context, code string) (storage.AccessCode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.codes {
		if c.Code == code {
			return c, nil
		}
	}
	return storage.AccessCode{}, storage.ErrNotFound
}

func (r *Repository) FindMasterCode(_ context.Context) (storage.AccessCode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range sortedValues(r.codes) {
		if c.IsMaster {
			return c, nil
		}
	}
	return storage.AccessCode{}, storage.ErrNotFound
}

func (r *Repository) CreateAccessCode(_ context.Context, code storage.AccessCode) (storage.AccessCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.codes {
		if c.Code == code.Code {
			return storage.AccessCode{}, storage.ErrDuplicateCode
		}
	}
	code.ID = ulid.Make().String()
	code.CreatedAt = r.now().UTC()
	r.codes[code.ID] = code
	return code, nil
}

func (r *Repository) DeleteAccessCode(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.codes[id]; !ok {
		return storage.ErrNotFound
	}
	delete(r.codes, id)
	return nil
}

// ---------------------------------------------------------------------------
// Products
// ---------------------------------------------------------------------------

func (r *Repository) ListProducts(_ context.Context) ([]storage.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := sortedValues(r.products)
	for i := range out {
		out[i] = cloneProduct(out[i])
	}
	return out, nil
}

func (r *Repository) GetProduct(_ context.Context, id string) (storage.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.products[id]
	if !ok {
		return storage.Product{}, storage.ErrNotFound
	}
	return cloneProduct(p), nil
}

func (r *Repository) CreateProduct(_ context.Context, p storage.Product) (storage.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p = cloneProduct(p)
	p.ID = ulid.Make().String()
	p.CreatedAt = r.now().UTC()
	r.products[p.ID] = p
	return cloneProduct(p), nil
}

func (r *Repository) UpdateProduct(_ context.Context, id string, patch storage.ProductPatch) (storage.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return storage.Product{}, storage.ErrNotFound
	}
	patch.Apply(&p)
	r.products[id] = p
	return cloneProduct(p), nil
}

func (r *Repository) DeleteProduct(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.products[id]; !ok {
		return storage.ErrNotFound
	}
	delete(r.products, id)
	return nil
}

// ---------------------------------------------------------------------------
// Messages
// ---------------------------------------------------------------------------

func (r *Repository) ListMessages(_ context.Context) ([]storage.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedValues(r.messages), nil
}

func (r *Repository) CreateMessage(_ context.Context, m storage.Message) (storage.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m.ID = ulid.Make().String()
	m.CreatedAt = r.now().UTC()
	r.messages[m.ID] = m
	return m, nil
}
