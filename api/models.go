package api

import (
	"time"

	"github.com/mortasa/storefront/storage"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Revoked bool   `json:"revoked,omitempty"`
}

// LoginRequest is the JSON body for POST /api/admin/login.
type LoginRequest struct {
	Code string `json:"code"`
}

// LoginResponse is returned from POST /api/admin/login.
type LoginResponse struct {
	Success  bool   `json:"success"`
	Token    string `json:"token"`
	IsMaster bool   `json:"isMaster"`
	Label    string `json:"label"`
}

// SessionResponse is returned from GET /api/admin/session.
type SessionResponse struct {
	Label    string `json:"label"`
	IsMaster bool   `json:"isMaster"`
}

// CreateCodeRequest is the JSON body for POST /api/admin/codes.
type CreateCodeRequest struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

// AccessCodeResponse describes one access code. The secret value is
// included because only master sessions can list codes.
type AccessCodeResponse struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Label     string    `json:"label"`
	IsMaster  bool      `json:"isMaster"`
	CreatedAt time.Time `json:"createdAt"`
}

func accessCodeResponse(c storage.AccessCode) AccessCodeResponse {
	return AccessCodeResponse{
		ID:        c.ID,
		Code:      c.Code,
		Label:     c.Label,
		IsMaster:  c.IsMaster,
		CreatedAt: c.CreatedAt,
	}
}

// CreateProductRequest is the JSON body for POST /api/products. Pointer
// fields distinguish "absent" from the zero value so defaults can apply.
type CreateProductRequest struct {
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Price       int      `json:"price"`
	Rating      *int     `json:"rating,omitempty"`
	Image       string   `json:"image"`
	Images      []string `json:"images,omitempty"`
	Description string   `json:"description"`
	IsNew       bool     `json:"isNew"`
	InStock     *bool    `json:"inStock,omitempty"`
	Sizes       []int    `json:"sizes,omitempty"`
}

func (req CreateProductRequest) product() storage.Product {
	p := storage.Product{
		Name:        req.Name,
		Category:    req.Category,
		Price:       req.Price,
		Rating:      storage.DefaultRating,
		Image:       req.Image,
		Images:      req.Images,
		Description: req.Description,
		IsNew:       req.IsNew,
		InStock:     true,
		Sizes:       req.Sizes,
	}
	if req.Rating != nil && *req.Rating != 0 {
		p.Rating = *req.Rating
	}
	if req.InStock != nil {
		p.InStock = *req.InStock
	}
	if p.Images == nil {
		p.Images = []string{}
	}
	if p.Sizes == nil {
		p.Sizes = []int{}
	}
	return p
}

// CreateMessageRequest is the JSON body for POST /api/messages.
type CreateMessageRequest struct {
	Content  string `json:"content"`
	IsSystem bool   `json:"isSystem"`
}

// UploadResponse is returned from POST /api/upload.
type UploadResponse struct {
	URL string `json:"url"`
}

// UploadMultipleResponse is returned from POST /api/upload-multiple.
type UploadMultipleResponse struct {
	URLs []string `json:"urls"`
}
