// Package postgres implements storage.Repository backed by PostgreSQL.
//
// Record IDs are BIGSERIAL values rendered as decimal strings. An ID that is
// not a valid integer can never exist, so lookups with one report
// storage.ErrNotFound rather than a query error.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mortasa/storefront/storage"
)

const uniqueViolation = "23505"

// Store implements storage.Repository backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Repository = (*Store)(nil)

// NewRepository returns a Repository backed by the given pgx connection pool.
func NewRepository(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewRepositoryFromDSN applies pending migrations, creates a connection pool
// from the DSN and returns a new Repository.
func NewRepositoryFromDSN(ctx context.Context, dsn string) (*Store, error) {
	if err := Migrate(dsn, "up"); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return NewRepository(pool), nil
}

// Pool returns the underlying connection pool.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func parseID(id string) (int64, bool) {
	n, err := strconv.ParseInt(id, 10, 64)
	return n, err == nil && n > 0
}

func formatID(n int64) string {
	return strconv.FormatInt(n, 10)
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, storage.ErrNotFound)
}

// ---------------------------------------------------------------------------
// Access codes
// ---------------------------------------------------------------------------

const accessCodeColumns = `id, code, label, is_master, created_at`

func scanAccessCode(row pgx.Row) (storage.AccessCode, error) {
	var (
		c  storage.AccessCode
		id int64
	)
	if err := row.Scan(&id, &c.Code, &c.Label, &c.IsMaster, &c.CreatedAt); err != nil {
		return storage.AccessCode{}, err
	}
	c.ID = formatID(id)
	return c, nil
}

func (s *Store) ListAccessCodes(ctx context.Context) ([]storage.AccessCode, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+accessCodeColumns+` FROM admin_codes ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	codes := []storage.AccessCode{}
	for rows.Next() {
		c, err := scanAccessCode(rows)
		if err != nil {
			return nil, err
		}
		codes = append(codes, c)
	}
	return codes, rows.Err()
}

func (s *Store) queryAccessCode(ctx context.Context, what, sql string, args ...any) (storage.AccessCode, error) {
	c, err := scanAccessCode(s.pool.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.AccessCode{}, notFound("access code", what)
	}
	return c, err
}

func (s *Store) GetAccessCode(ctx context.Context, id string) (storage.AccessCode, error) {
	n, ok := parseID(id)
	if !ok {
		return storage.AccessCode{}, notFound("access code", id)
	}
	return s.queryAccessCode(ctx, id,
		`SELECT `+accessCodeColumns+` FROM admin_codes WHERE id = $1`, n)
}

func (s *Store) FindAccessCode(ctx context.Context, code string) (storage.AccessCode, error) {
	return s.queryAccessCode(ctx, "by value",
		`SELECT `+accessCodeColumns+` FROM admin_codes WHERE code = $1`, code)
}

func (s *Store) FindMasterCode(ctx context.Context) (storage.AccessCode, error) {
	return s.queryAccessCode(ctx, "master",
		`SELECT `+accessCodeColumns+` FROM admin_codes WHERE is_master ORDER BY id LIMIT 1`)
}

func (s *Store) CreateAccessCode(ctx context.Context, code storage.AccessCode) (storage.AccessCode, error) {
	created, err := scanAccessCode(s.pool.QueryRow(ctx,
		`INSERT INTO admin_codes (code, label, is_master) VALUES ($1, $2, $3)
		 RETURNING `+accessCodeColumns,
		code.Code, code.Label, code.IsMaster))
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return storage.AccessCode{}, storage.ErrDuplicateCode
	}
	return created, err
}

func (s *Store) DeleteAccessCode(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "admin_codes", "access code", id)
}

func (s *Store) deleteByID(ctx context.Context, table, kind, id string) error {
	n, ok := parseID(id)
	if !ok {
		return notFound(kind, id)
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM `+table+` WHERE id = $1`, n)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound(kind, id)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Products
// ---------------------------------------------------------------------------

const productColumns = `id, name, category, price, rating, image, images, description, is_new, in_stock, sizes, created_at`

func scanProduct(row pgx.Row) (storage.Product, error) {
	var (
		p  storage.Product
		id int64
	)
	err := row.Scan(&id, &p.Name, &p.Category, &p.Price, &p.Rating, &p.Image, &p.Images,
		&p.Description, &p.IsNew, &p.InStock, &p.Sizes, &p.CreatedAt)
	if err != nil {
		return storage.Product{}, err
	}
	p.ID = formatID(id)
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]storage.Product, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := []storage.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) GetProduct(ctx context.Context, id string) (storage.Product, error) {
	n, ok := parseID(id)
	if !ok {
		return storage.Product{}, notFound("product", id)
	}
	p, err := scanProduct(s.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, n))
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.Product{}, notFound("product", id)
	}
	return p, err
}

func (s *Store) CreateProduct(ctx context.Context, p storage.Product) (storage.Product, error) {
	return scanProduct(s.pool.QueryRow(ctx,
		`INSERT INTO products (name, category, price, rating, image, images, description, is_new, in_stock, sizes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING `+productColumns,
		p.Name, p.Category, p.Price, p.Rating, p.Image, p.Images,
		p.Description, p.IsNew, p.InStock, p.Sizes))
}

func (s *Store) UpdateProduct(ctx context.Context, id string, patch storage.ProductPatch) (storage.Product, error) {
	n, ok := parseID(id)
	if !ok {
		return storage.Product{}, notFound("product", id)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return storage.Product{}, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	p, err := scanProduct(tx.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, n))
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.Product{}, notFound("product", id)
	}
	if err != nil {
		return storage.Product{}, err
	}
	patch.Apply(&p)

	_, err = tx.Exec(ctx,
		`UPDATE products SET name = $2, category = $3, price = $4, rating = $5, image = $6,
		 images = $7, description = $8, is_new = $9, in_stock = $10, sizes = $11
		 WHERE id = $1`,
		n, p.Name, p.Category, p.Price, p.Rating, p.Image, p.Images,
		p.Description, p.IsNew, p.InStock, p.Sizes)
	if err != nil {
		return storage.Product{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return storage.Product{}, err
	}
	return p, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "products", "product", id)
}

// ---------------------------------------------------------------------------
// Messages
// ---------------------------------------------------------------------------

func (s *Store) ListMessages(ctx context.Context) ([]storage.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, content, is_system, created_at FROM messages ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []storage.Message{}
	for rows.Next() {
		var (
			m  storage.Message
			id int64
		)
		if err := rows.Scan(&id, &m.Content, &m.IsSystem, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.ID = formatID(id)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (s *Store) CreateMessage(ctx context.Context, m storage.Message) (storage.Message, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO messages (content, is_system) VALUES ($1, $2) RETURNING id, created_at`,
		m.Content, m.IsSystem).Scan(&id, &m.CreatedAt)
	if err != nil {
		return storage.Message{}, err
	}
	m.ID = formatID(id)
	return m, nil
}
