// Package bbolt provides a BBolt-backed storage repository.
//
// Each entity lives in its own bucket keyed by ULID, so cursor order is
// creation order. Access code uniqueness is enforced through an index bucket
// mapping code value to record ID, updated in the same transaction as the
// record itself.
package bbolt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"go.etcd.io/bbolt"

	"github.com/mortasa/storefront/storage"
)

var (
	bucketCodes     = []byte("admin_codes")
	bucketCodeIndex = []byte("admin_code_index")
	bucketProducts  = []byte("products")
	bucketMessages  = []byte("messages")
)

// Store implements storage.Repository backed by a BBolt database.
type Store struct {
	db *bbolt.DB
}

var _ storage.Repository = (*Store)(nil)

// NewRepository returns a Repository backed by the given BBolt database,
// creating the buckets it needs.
func NewRepository(db *bbolt.DB) (*Store, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketCodes, bucketCodeIndex, bucketProducts, bucketMessages} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// NewRepositoryFromFile opens a BBolt database at the given path and returns a new Repository.
func NewRepositoryFromFile(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	s, err := NewRepository(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func getJSON[T any](b *bbolt.Bucket, id string) (T, error) {
	var v T
	data := b.Get([]byte(id))
	if data == nil {
		return v, fmt.Errorf("%s: %w", id, storage.ErrNotFound)
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("decoding %s: %w", id, err)
	}
	return v, nil
}

func putJSON(b *bbolt.Bucket, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put([]byte(id), data)
}

func listJSON[T any](db *bbolt.DB, bucket []byte) ([]T, error) {
	out := []T{}
	err := db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(k, data []byte) error {
			var v T
			if err := json.Unmarshal(data, &v); err != nil {
				return fmt.Errorf("decoding %s: %w", k, err)
			}
			out = append(out, v)
			return nil
		})
	})
	return out, err
}

func deleteKey(db *bbolt.DB, bucket []byte, id string) error {
	return db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucket)
		if b.Get([]byte(id)) == nil {
			return fmt.Errorf("%s/%s: %w", bucket, id, storage.ErrNotFound)
		}
		return b.Delete([]byte(id))
	})
}

// ---------------------------------------------------------------------------
// Access codes
// ---------------------------------------------------------------------------

func (s *Store) ListAccessCodes(_ context.Context) ([]storage.AccessCode, error) {
	return listJSON[storage.AccessCode](s.db, bucketCodes)
}

func (s *Store) GetAccessCode(_ context.Context, id string) (storage.AccessCode, error) {
	var c storage.AccessCode
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		c, err = getJSON[storage.AccessCode](tx.Bucket(bucketCodes), id)
		return err
	})
	return c, err
}

func (s *Store) FindAccessCode(_ context.Context, code string) (storage.AccessCode, error) {
	var c storage.AccessCode
	err := s.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(bucketCodeIndex).Get([]byte(code))
		if id == nil {
			return storage.ErrNotFound
		}
		var err error
		c, err = getJSON[storage.AccessCode](tx.Bucket(bucketCodes), string(id))
		return err
	})
	return c, err
}

func (s *Store) FindMasterCode(ctx context.Context) (storage.AccessCode, error) {
	codes, err := s.ListAccessCodes(ctx)
	if err != nil {
		return storage.AccessCode{}, err
	}
	for _, c := range codes {
		if c.IsMaster {
			return c, nil
		}
	}
	return storage.AccessCode{}, storage.ErrNotFound
}

func (s *Store) CreateAccessCode(_ context.Context, code storage.AccessCode) (storage.AccessCode, error) {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		index := tx.Bucket(bucketCodeIndex)
		if index.Get([]byte(code.Code)) != nil {
			return storage.ErrDuplicateCode
		}
		code.ID = ulid.Make().String()
		code.CreatedAt = time.Now().UTC()
		if err := putJSON(tx.Bucket(bucketCodes), code.ID, code); err != nil {
			return err
		}
		return index.Put([]byte(code.Code), []byte(code.ID))
	})
	if err != nil {
		return storage.AccessCode{}, err
	}
	return code, nil
}

func (s *Store) DeleteAccessCode(_ context.Context, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		codes := tx.Bucket(bucketCodes)
		c, err := getJSON[storage.AccessCode](codes, id)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketCodeIndex).Delete([]byte(c.Code)); err != nil {
			return err
		}
		return codes.Delete([]byte(id))
	})
}

// ---------------------------------------------------------------------------
// Products
// ---------------------------------------------------------------------------

func (s *Store) ListProducts(_ context.Context) ([]storage.Product, error) {
	return listJSON[storage.Product](s.db, bucketProducts)
}

func (s *Store) GetProduct(_ context.Context, id string) (storage.Product, error) {
	var p storage.Product
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		p, err = getJSON[storage.Product](tx.Bucket(bucketProducts), id)
		return err
	})
	return p, err
}

func (s *Store) CreateProduct(_ context.Context, p storage.Product) (storage.Product, error) {
	p.ID = ulid.Make().String()
	p.CreatedAt = time.Now().UTC()
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return putJSON(tx.Bucket(bucketProducts), p.ID, p)
	})
	if err != nil {
		return storage.Product{}, err
	}
	return p, nil
}

func (s *Store) UpdateProduct(_ context.Context, id string, patch storage.ProductPatch) (storage.Product, error) {
	var p storage.Product
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketProducts)
		var err error
		p, err = getJSON[storage.Product](b, id)
		if err != nil {
			return err
		}
		patch.Apply(&p)
		return putJSON(b, id, p)
	})
	if err != nil {
		return storage.Product{}, err
	}
	return p, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	return deleteKey(s.db, bucketProducts, id)
}

// ---------------------------------------------------------------------------
// Messages
// ---------------------------------------------------------------------------

func (s *Store) ListMessages(_ context.Context) ([]storage.Message, error) {
	return listJSON[storage.Message](s.db, bucketMessages)
}

func (s *Store) CreateMessage(_ context.Context, m storage.Message) (storage.Message, error) {
	m.ID = ulid.Make().String()
	m.CreatedAt = time.Now().UTC()
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return putJSON(tx.Bucket(bucketMessages), m.ID, m)
	})
	if err != nil {
		return storage.Message{}, err
	}
	return m, nil
}
