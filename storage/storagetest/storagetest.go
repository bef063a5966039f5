// Package storagetest holds the conformance suite every storage.Repository
// implementation must pass.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mortasa/storefront/storage"
)

// Factory returns an empty repository for a single subtest. Implementations
// register cleanup with t.Cleanup.
type Factory func(t *testing.T) storage.Repository

// Run executes the shared suite against repositories produced by newRepo.
func Run(t *testing.T, newRepo Factory) {
	t.Helper()
	t.Run("AccessCodes", func(t *testing.T) { accessCodeTests(t, newRepo) })
	t.Run("Products", func(t *testing.T) { productTests(t, newRepo) })
	t.Run("Messages", func(t *testing.T) { messageTests(t, newRepo) })
}

func accessCodeTests(t *testing.T, newRepo Factory) {
	ctx := context.Background()

	t.Run("CreateAndGet", func(t *testing.T) {
		repo := newRepo(t)
		before := time.Now().Add(-time.Second)
		created, err := repo.CreateAccessCode(ctx, storage.AccessCode{Code: "NEW1", Label: "Ahmed"})
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)
		assert.Equal(t, "NEW1", created.Code)
		assert.Equal(t, "Ahmed", created.Label)
		assert.False(t, created.IsMaster)
		assert.True(t, created.CreatedAt.After(before), "createdAt should be assigned by the store")

		got, err := repo.GetAccessCode(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, created.Code, got.Code)
		assert.WithinDuration(t, created.CreatedAt, got.CreatedAt, time.Millisecond)
	})

	t.Run("FindByCode", func(t *testing.T) {
		repo := newRepo(t)
		created, err := repo.CreateAccessCode(ctx, storage.AccessCode{Code: "FIND-ME", Label: "x"})
		require.NoError(t, err)

		got, err := repo.FindAccessCode(ctx, "FIND-ME")
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)

		_, err = repo.FindAccessCode(ctx, "find-me")
		assert.ErrorIs(t, err, storage.ErrNotFound, "lookup must be exact")
	})

	t.Run("DuplicateCode", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.CreateAccessCode(ctx, storage.AccessCode{Code: "DUP", Label: "first"})
		require.NoError(t, err)

		_, err = repo.CreateAccessCode(ctx, storage.AccessCode{Code: "DUP", Label: "second"})
		require.ErrorIs(t, err, storage.ErrDuplicateCode)

		codes, err := repo.ListAccessCodes(ctx)
		require.NoError(t, err)
		assert.Len(t, codes, 1)
		assert.Equal(t, "first", codes[0].Label)
	})

	t.Run("FindMaster", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.FindMasterCode(ctx)
		require.ErrorIs(t, err, storage.ErrNotFound)

		_, err = repo.CreateAccessCode(ctx, storage.AccessCode{Code: "plain", Label: "p"})
		require.NoError(t, err)
		master, err := repo.CreateAccessCode(ctx, storage.AccessCode{Code: "root", Label: "m", IsMaster: true})
		require.NoError(t, err)

		got, err := repo.FindMasterCode(ctx)
		require.NoError(t, err)
		assert.Equal(t, master.ID, got.ID)
		assert.True(t, got.IsMaster)
	})

	t.Run("ListInCreationOrder", func(t *testing.T) {
		repo := newRepo(t)
		for _, c := range []string{"a1", "a2", "a3"} {
			_, err := repo.CreateAccessCode(ctx, storage.AccessCode{Code: c, Label: c})
			require.NoError(t, err)
		}
		codes, err := repo.ListAccessCodes(ctx)
		require.NoError(t, err)
		require.Len(t, codes, 3)
		assert.Equal(t, []string{"a1", "a2", "a3"}, []string{codes[0].Code, codes[1].Code, codes[2].Code})
	})

	t.Run("Delete", func(t *testing.T) {
		repo := newRepo(t)
		created, err := repo.CreateAccessCode(ctx, storage.AccessCode{Code: "gone", Label: "g"})
		require.NoError(t, err)

		require.NoError(t, repo.DeleteAccessCode(ctx, created.ID))
		_, err = repo.GetAccessCode(ctx, created.ID)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = repo.FindAccessCode(ctx, "gone")
		assert.ErrorIs(t, err, storage.ErrNotFound)

		// The value is free again once deleted.
		_, err = repo.CreateAccessCode(ctx, storage.AccessCode{Code: "gone", Label: "again"})
		assert.NoError(t, err)
	})

	t.Run("Missing", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.GetAccessCode(ctx, "nonexistent")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.ErrorIs(t, repo.DeleteAccessCode(ctx, "nonexistent"), storage.ErrNotFound)
	})

	t.Run("MalformedIDs", func(t *testing.T) {
		repo := newRepo(t)
		for _, id := range []string{"", "a/b", "-1"} {
			_, err := repo.GetAccessCode(ctx, id)
			assert.ErrorIs(t, err, storage.ErrNotFound, "get %q", id)
			assert.ErrorIs(t, repo.DeleteAccessCode(ctx, id), storage.ErrNotFound, "delete %q", id)
		}
	})
}

func sampleProduct(name string) storage.Product {
	return storage.Product{
		Name:        name,
		Category:    "men",
		Price:       250,
		Rating:      4,
		Image:       "/uploads/a.png",
		Images:      []string{"/uploads/a.png", "/uploads/b.png"},
		Description: "حذاء رياضي",
		InStock:     true,
		Sizes:       []int{40, 41, 42},
	}
}

func productTests(t *testing.T, newRepo Factory) {
	ctx := context.Background()

	t.Run("CreateGetList", func(t *testing.T) {
		repo := newRepo(t)
		created, err := repo.CreateProduct(ctx, sampleProduct("Runner"))
		require.NoError(t, err)
		require.NotEmpty(t, created.ID)
		assert.False(t, created.CreatedAt.IsZero())

		got, err := repo.GetProduct(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "Runner", got.Name)
		assert.Equal(t, []string{"/uploads/a.png", "/uploads/b.png"}, got.Images)
		assert.Equal(t, []int{40, 41, 42}, got.Sizes)
		assert.True(t, got.InStock)

		_, err = repo.CreateProduct(ctx, sampleProduct("Walker"))
		require.NoError(t, err)
		list, err := repo.ListProducts(ctx)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "Runner", list[0].Name)
		assert.Equal(t, "Walker", list[1].Name)
	})

	t.Run("NilCollections", func(t *testing.T) {
		repo := newRepo(t)
		p := sampleProduct("Plain")
		p.Images = nil
		p.Sizes = nil
		created, err := repo.CreateProduct(ctx, p)
		require.NoError(t, err)
		got, err := repo.GetProduct(ctx, created.ID)
		require.NoError(t, err)
		assert.Empty(t, got.Images)
		assert.Empty(t, got.Sizes)
	})

	t.Run("PartialUpdate", func(t *testing.T) {
		repo := newRepo(t)
		created, err := repo.CreateProduct(ctx, sampleProduct("Runner"))
		require.NoError(t, err)

		price := 199
		inStock := false
		updated, err := repo.UpdateProduct(ctx, created.ID, storage.ProductPatch{Price: &price, InStock: &inStock})
		require.NoError(t, err)
		assert.Equal(t, 199, updated.Price)
		assert.False(t, updated.InStock)
		assert.Equal(t, "Runner", updated.Name, "untouched fields are preserved")

		got, err := repo.GetProduct(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, 199, got.Price)
		assert.Equal(t, []int{40, 41, 42}, got.Sizes)
	})

	t.Run("DeleteAndMissing", func(t *testing.T) {
		repo := newRepo(t)
		created, err := repo.CreateProduct(ctx, sampleProduct("Runner"))
		require.NoError(t, err)
		require.NoError(t, repo.DeleteProduct(ctx, created.ID))

		_, err = repo.GetProduct(ctx, created.ID)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.ErrorIs(t, repo.DeleteProduct(ctx, created.ID), storage.ErrNotFound)
		name := "x"
		_, err = repo.UpdateProduct(ctx, created.ID, storage.ProductPatch{Name: &name})
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("MalformedIDs", func(t *testing.T) {
		repo := newRepo(t)
		name := "x"
		for _, id := range []string{"", "a/b", "-1"} {
			_, err := repo.GetProduct(ctx, id)
			assert.ErrorIs(t, err, storage.ErrNotFound, "get %q", id)
			_, err = repo.UpdateProduct(ctx, id, storage.ProductPatch{Name: &name})
			assert.ErrorIs(t, err, storage.ErrNotFound, "update %q", id)
			assert.ErrorIs(t, repo.DeleteProduct(ctx, id), storage.ErrNotFound, "delete %q", id)
		}
	})
}

func messageTests(t *testing.T, newRepo Factory) {
	ctx := context.Background()
	repo := newRepo(t)

	list, err := repo.ListMessages(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	first, err := repo.CreateMessage(ctx, storage.Message{Content: "مرحبا"})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	_, err = repo.CreateMessage(ctx, storage.Message{Content: "system notice", IsSystem: true})
	require.NoError(t, err)

	list, err = repo.ListMessages(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "مرحبا", list[0].Content)
	assert.False(t, list[0].IsSystem)
	assert.True(t, list[1].IsSystem)
}
