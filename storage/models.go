package storage

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// DefaultRating is applied to products created without a rating.
const DefaultRating = 5

// AccessCode is a shared secret that grants admin capability on login.
type AccessCode struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Label     string    `json:"label"`
	IsMaster  bool      `json:"isMaster"`
	CreatedAt time.Time `json:"createdAt"`
}

// Product is a catalog entry.
type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	Price       int       `json:"price"`
	Rating      int       `json:"rating"`
	Image       string    `json:"image"`
	Images      []string  `json:"images"`
	Description string    `json:"description"`
	IsNew       bool      `json:"isNew"`
	InStock     bool      `json:"inStock"`
	Sizes       []int     `json:"sizes"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ProductPatch carries the fields of a partial product update. Nil fields
// are left untouched.
type ProductPatch struct {
	Name        *string   `json:"name,omitempty"`
	Category    *string   `json:"category,omitempty"`
	Price       *int      `json:"price,omitempty"`
	Rating      *int      `json:"rating,omitempty"`
	Image       *string   `json:"image,omitempty"`
	Images      *[]string `json:"images,omitempty"`
	Description *string   `json:"description,omitempty"`
	IsNew       *bool     `json:"isNew,omitempty"`
	InStock     *bool     `json:"inStock,omitempty"`
	Sizes       *[]int    `json:"sizes,omitempty"`
}

// Message is an entry of the storefront message log.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	IsSystem  bool      `json:"isSystem"`
	CreatedAt time.Time `json:"createdAt"`
}

// Validation errors returned by Product.Validate and ProductPatch.Validate.
var (
	ErrProductNameRequired        = errors.New("product name is required")
	ErrProductCategoryRequired    = errors.New("product category is required")
	ErrProductImageRequired       = errors.New("product image is required")
	ErrProductDescriptionRequired = errors.New("product description is required")
	ErrProductPriceInvalid        = errors.New("product price must not be negative")
	ErrProductRatingInvalid       = errors.New("product rating must be between 0 and 5")
)

// NormalizeText trims surrounding whitespace and converts s to Unicode NFC so
// that Arabic text typed on different keyboards compares equal.
func NormalizeText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// Normalize applies NormalizeText to the free-text fields of p.
func (p *Product) Normalize() {
	p.Name = NormalizeText(p.Name)
	p.Category = NormalizeText(p.Category)
	p.Description = NormalizeText(p.Description)
	p.Image = strings.TrimSpace(p.Image)
}

// Validate reports the first problem that prevents p from being stored.
func (p Product) Validate() error {
	switch {
	case p.Name == "":
		return ErrProductNameRequired
	case p.Category == "":
		return ErrProductCategoryRequired
	case p.Image == "":
		return ErrProductImageRequired
	case p.Description == "":
		return ErrProductDescriptionRequired
	case p.Price < 0:
		return ErrProductPriceInvalid
	case p.Rating < 0 || p.Rating > 5:
		return ErrProductRatingInvalid
	}
	return nil
}

// Empty reports whether the patch would change nothing.
func (pp ProductPatch) Empty() bool {
	return pp.Name == nil && pp.Category == nil && pp.Price == nil &&
		pp.Rating == nil && pp.Image == nil && pp.Images == nil &&
		pp.Description == nil && pp.IsNew == nil && pp.InStock == nil &&
		pp.Sizes == nil
}

// Normalize applies NormalizeText to the free-text fields present in pp.
func (pp *ProductPatch) Normalize() {
	for _, f := range []*string{pp.Name, pp.Category, pp.Description} {
		if f != nil {
			*f = NormalizeText(*f)
		}
	}
}

// Validate checks the fields present in pp with the same rules as Product.Validate.
func (pp ProductPatch) Validate() error {
	switch {
	case pp.Name != nil && *pp.Name == "":
		return ErrProductNameRequired
	case pp.Category != nil && *pp.Category == "":
		return ErrProductCategoryRequired
	case pp.Image != nil && *pp.Image == "":
		return ErrProductImageRequired
	case pp.Description != nil && *pp.Description == "":
		return ErrProductDescriptionRequired
	case pp.Price != nil && *pp.Price < 0:
		return ErrProductPriceInvalid
	case pp.Rating != nil && (*pp.Rating < 0 || *pp.Rating > 5):
		return ErrProductRatingInvalid
	}
	return nil
}

// Apply writes the fields present in pp onto p.
func (pp ProductPatch) Apply(p *Product) {
	if pp.Name != nil {
		p.Name = *pp.Name
	}
	if pp.Category != nil {
		p.Category = *pp.Category
	}
	if pp.Price != nil {
		p.Price = *pp.Price
	}
	if pp.Rating != nil {
		p.Rating = *pp.Rating
	}
	if pp.Image != nil {
		p.Image = *pp.Image
	}
	if pp.Images != nil {
		p.Images = append([]string(nil), (*pp.Images)...)
	}
	if pp.Description != nil {
		p.Description = *pp.Description
	}
	if pp.IsNew != nil {
		p.IsNew = *pp.IsNew
	}
	if pp.InStock != nil {
		p.InStock = *pp.InStock
	}
	if pp.Sizes != nil {
		p.Sizes = append([]int(nil), (*pp.Sizes)...)
	}
}
