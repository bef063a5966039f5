// Package firestore implements storage.Repository on Google Cloud Firestore.
//
// Collections are admin_codes, products
// and messages. Access code uniqueness is enforced with a companion
// admin_code_index collection whose document IDs are derived from the code
// value; the index entry and the record are written in one transaction.
package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mortasa/storefront/storage"
)

const (
	collCodes     = "admin_codes"
	collCodeIndex = "admin_code_index"
	collProducts  = "products"
	collMessages  = "messages"
)

// Store implements storage.Repository backed by Firestore.
type Store struct {
	client *firestore.Client
	prefix string
}

var _ storage.Repository = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithCollectionPrefix namespaces every collection name. Tests use it to
// isolate runs against a shared emulator.
func WithCollectionPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// NewRepository wraps an existing Firestore client.
func NewRepository(client *firestore.Client, opts ...Option) *Store {
	s := &Store{client: client}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewRepositoryFromProject creates a Firestore client for projectID. When
// FIRESTORE_EMULATOR_HOST is set the client talks to the emulator.
func NewRepositoryFromProject(ctx context.Context, projectID string, clientOpts []option.ClientOption, opts ...Option) (*Store, error) {
	client, err := firestore.NewClient(ctx, projectID, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}
	return NewRepository(client, opts...), nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) coll(name string) *firestore.CollectionRef {
	return s.client.Collection(s.prefix + name)
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, storage.ErrNotFound)
}

// validDocID reports whether id can name a document. Doc returns nil for
// an empty id or one containing a path separator.
func validDocID(id string) bool {
	return id != "" && !strings.Contains(id, "/")
}

// indexID maps a code value onto a valid, bounded document ID.
func indexID(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// collectAll drains a document iterator, decoding each snapshot with decode.
func collectAll[T any](it *firestore.DocumentIterator, decode func(*firestore.DocumentSnapshot) (T, error)) ([]T, error) {
	defer it.Stop()
	out := []T{}
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		v, err := decode(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
}

// ---------------------------------------------------------------------------
// Access codes
// ---------------------------------------------------------------------------

type accessCodeDoc struct {
	Code      string    `firestore:"code"`
	Label     string    `firestore:"label"`
	IsMaster  bool      `firestore:"isMaster"`
	CreatedAt time.Time `firestore:"createdAt"`
}

type codeIndexDoc struct {
	ID string `firestore:"id"`
}

func decodeAccessCode(snap *firestore.DocumentSnapshot) (storage.AccessCode, error) {
	var d accessCodeDoc
	if err := snap.DataTo(&d); err != nil {
		return storage.AccessCode{}, fmt.Errorf("decoding access code %s: %w", snap.Ref.ID, err)
	}
	return storage.AccessCode{
		ID:        snap.Ref.ID,
		Code:      d.Code,
		Label:     d.Label,
		IsMaster:  d.IsMaster,
		CreatedAt: d.CreatedAt,
	}, nil
}

func (s *Store) ListAccessCodes(ctx context.Context) ([]storage.AccessCode, error) {
	it := s.coll(collCodes).OrderBy("createdAt", firestore.Asc).Documents(ctx)
	return collectAll(it, decodeAccessCode)
}

func (s *Store) GetAccessCode(ctx context.Context, id string) (storage.AccessCode, error) {
	if !validDocID(id) {
		return storage.AccessCode{}, notFound("access code", id)
	}
	snap, err := s.coll(collCodes).Doc(id).Get(ctx)
	if isNotFound(err) {
		return storage.AccessCode{}, notFound("access code", id)
	}
	if err != nil {
		return storage.AccessCode{}, err
	}
	return decodeAccessCode(snap)
}

func (s *Store) findOneCode(ctx context.Context, what string, q firestore.Query) (storage.AccessCode, error) {
	codes, err := collectAll(q.Limit(1).Documents(ctx), decodeAccessCode)
	if err != nil {
		return storage.AccessCode{}, err
	}
	if len(codes) == 0 {
		return storage.AccessCode{}, notFound("access code", what)
	}
	return codes[0], nil
}

func (s *Store) FindAccessCode(ctx context.Context, code string) (storage.AccessCode, error) {
	return s.findOneCode(ctx, "by value", s.coll(collCodes).Where("code", "==", code))
}

func (s *Store) FindMasterCode(ctx context.Context) (storage.AccessCode, error) {
	return s.findOneCode(ctx, "master", s.coll(collCodes).Where("isMaster", "==", true))
}

func (s *Store) CreateAccessCode(ctx context.Context, code storage.AccessCode) (storage.AccessCode, error) {
	ref := s.coll(collCodes).NewDoc()
	indexRef := s.coll(collCodeIndex).Doc(indexID(code.Code))
	doc := accessCodeDoc{
		Code:      code.Code,
		Label:     code.Label,
		IsMaster:  code.IsMaster,
		CreatedAt: time.Now().UTC(),
	}

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		_, err := tx.Get(indexRef)
		if err == nil {
			return storage.ErrDuplicateCode
		}
		if !isNotFound(err) {
			return err
		}
		if err := tx.Create(indexRef, codeIndexDoc{ID: ref.ID}); err != nil {
			return err
		}
		return tx.Create(ref, doc)
	})
	if err != nil {
		return storage.AccessCode{}, err
	}
	code.ID = ref.ID
	code.CreatedAt = doc.CreatedAt
	return code, nil
}

func (s *Store) DeleteAccessCode(ctx context.Context, id string) error {
	if !validDocID(id) {
		return notFound("access code", id)
	}
	ref := s.coll(collCodes).Doc(id)
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if isNotFound(err) {
			return notFound("access code", id)
		}
		if err != nil {
			return err
		}
		c, err := decodeAccessCode(snap)
		if err != nil {
			return err
		}
		if err := tx.Delete(s.coll(collCodeIndex).Doc(indexID(c.Code))); err != nil {
			return err
		}
		return tx.Delete(ref)
	})
}

// ---------------------------------------------------------------------------
// Products
// ---------------------------------------------------------------------------

type productDoc struct {
	Name        string    `firestore:"name"`
	Category    string    `firestore:"category"`
	Price       int       `firestore:"price"`
	Rating      int       `firestore:"rating"`
	Image       string    `firestore:"image"`
	Images      []string  `firestore:"images"`
	Description string    `firestore:"description"`
	IsNew       bool      `firestore:"isNew"`
	InStock     bool      `firestore:"inStock"`
	Sizes       []int     `firestore:"sizes"`
	CreatedAt   time.Time `firestore:"createdAt"`
}

func toProductDoc(p storage.Product) productDoc {
	return productDoc{
		Name:        p.Name,
		Category:    p.Category,
		Price:       p.Price,
		Rating:      p.Rating,
		Image:       p.Image,
		Images:      p.Images,
		Description: p.Description,
		IsNew:       p.IsNew,
		InStock:     p.InStock,
		Sizes:       p.Sizes,
		CreatedAt:   p.CreatedAt,
	}
}

func decodeProduct(snap *firestore.DocumentSnapshot) (storage.Product, error) {
	var d productDoc
	if err := snap.DataTo(&d); err != nil {
		return storage.Product{}, fmt.Errorf("decoding product %s: %w", snap.Ref.ID, err)
	}
	return storage.Product{
		ID:          snap.Ref.ID,
		Name:        d.Name,
		Category:    d.Category,
		Price:       d.Price,
		Rating:      d.Rating,
		Image:       d.Image,
		Images:      d.Images,
		Description: d.Description,
		IsNew:       d.IsNew,
		InStock:     d.InStock,
		Sizes:       d.Sizes,
		CreatedAt:   d.CreatedAt,
	}, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]storage.Product, error) {
	it := s.coll(collProducts).OrderBy("createdAt", firestore.Asc).Documents(ctx)
	return collectAll(it, decodeProduct)
}

func (s *Store) GetProduct(ctx context.Context, id string) (storage.Product, error) {
	if !validDocID(id) {
		return storage.Product{}, notFound("product", id)
	}
	snap, err := s.coll(collProducts).Doc(id).Get(ctx)
	if isNotFound(err) {
		return storage.Product{}, notFound("product", id)
	}
	if err != nil {
		return storage.Product{}, err
	}
	return decodeProduct(snap)
}

func (s *Store) CreateProduct(ctx context.Context, p storage.Product) (storage.Product, error) {
	ref := s.coll(collProducts).NewDoc()
	p.CreatedAt = time.Now().UTC()
	if _, err := ref.Create(ctx, toProductDoc(p)); err != nil {
		return storage.Product{}, err
	}
	p.ID = ref.ID
	return p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, id string, patch storage.ProductPatch) (storage.Product, error) {
	if !validDocID(id) {
		return storage.Product{}, notFound("product", id)
	}
	ref := s.coll(collProducts).Doc(id)
	var p storage.Product
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if isNotFound(err) {
			return notFound("product", id)
		}
		if err != nil {
			return err
		}
		p, err = decodeProduct(snap)
		if err != nil {
			return err
		}
		patch.Apply(&p)
		return tx.Set(ref, toProductDoc(p))
	})
	if err != nil {
		return storage.Product{}, err
	}
	return p, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	if !validDocID(id) {
		return notFound("product", id)
	}
	_, err := s.coll(collProducts).Doc(id).Delete(ctx, firestore.Exists)
	if isNotFound(err) {
		return notFound("product", id)
	}
	return err
}

// ---------------------------------------------------------------------------
// Messages
// ---------------------------------------------------------------------------

type messageDoc struct {
	Content   string    `firestore:"content"`
	IsSystem  bool      `firestore:"isSystem"`
	CreatedAt time.Time `firestore:"createdAt"`
}

func decodeMessage(snap *firestore.DocumentSnapshot) (storage.Message, error) {
	var d messageDoc
	if err := snap.DataTo(&d); err != nil {
		return storage.Message{}, fmt.Errorf("decoding message %s: %w", snap.Ref.ID, err)
	}
	return storage.Message{
		ID:        snap.Ref.ID,
		Content:   d.Content,
		IsSystem:  d.IsSystem,
		CreatedAt: d.CreatedAt,
	}, nil
}

func (s *Store) ListMessages(ctx context.Context) ([]storage.Message, error) {
	it := s.coll(collMessages).OrderBy("createdAt", firestore.Asc).Documents(ctx)
	return collectAll(it, decodeMessage)
}

func (s *Store) CreateMessage(ctx context.Context, m storage.Message) (storage.Message, error) {
	ref := s.coll(collMessages).NewDoc()
	m.CreatedAt = time.Now().UTC()
	doc := messageDoc{Content: m.Content, IsSystem: m.IsSystem, CreatedAt: m.CreatedAt}
	if _, err := ref.Create(ctx, doc); err != nil {
		return storage.Message{}, err
	}
	m.ID = ref.ID
	return m, nil
}
