// Package storage defines the persistence contract shared by every storefront backend.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateCode is returned when an access code value is already taken.
	ErrDuplicateCode = errors.New("access code already exists")
)

// AccessCodeStore persists admin access codes. Implementations must enforce
// uniqueness of AccessCode.Code.
type AccessCodeStore interface {
	ListAccessCodes(ctx context.Context) ([]AccessCode, error)
	GetAccessCode(ctx context.Context, id string) (AccessCode, error)
	// FindAccessCode looks a record up by its secret value.
	FindAccessCode(ctx context.Context, code string) (AccessCode, error)
	// FindMasterCode returns any record with IsMaster set.
	FindMasterCode(ctx context.Context) (AccessCode, error)
	// CreateAccessCode assigns ID and CreatedAt and returns the stored record.
	CreateAccessCode(ctx context.Context, code AccessCode) (AccessCode, error)
	DeleteAccessCode(ctx context.Context, id string) error
}

// ProductStore persists the product catalog.
type ProductStore interface {
	ListProducts(ctx context.Context) ([]Product, error)
	GetProduct(ctx context.Context, id string) (Product, error)
	CreateProduct(ctx context.Context, p Product) (Product, error)
	UpdateProduct(ctx context.Context, id string, patch ProductPatch) (Product, error)
	DeleteProduct(ctx context.Context, id string) error
}

// MessageStore persists the message log.
type MessageStore interface {
	ListMessages(ctx context.Context) ([]Message, error)
	CreateMessage(ctx context.Context, m Message) (Message, error)
}

// Repository is the full set of capabilities a backend provides.
type Repository interface {
	AccessCodeStore
	ProductStore
	MessageStore
	Close() error
}
