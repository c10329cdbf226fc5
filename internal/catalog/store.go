package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var (
	ErrNotFound       = errors.New("product not found")
	ErrDuplicateCode  = errors.New("product code already exists")
	ErrInvalidProduct = errors.New("invalid product")
)

type Product struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Thumbnail   string  `json:"thumbnail"`
	Code        string  `json:"code"`
	Stock       int     `json:"stock"`
}

// NewProduct carries every product field except the identifier, which the
// store assigns.
type NewProduct struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Price       float64 `json:"price" validate:"gte=0"`
	Thumbnail   string  `json:"thumbnail"`
	Code        string  `json:"code" validate:"required"`
	Stock       int     `json:"stock" validate:"gte=0"`
}

func (p NewProduct) withID(id int) Product {
	return Product{
		ID:          id,
		Title:       p.Title,
		Description: p.Description,
		Price:       p.Price,
		Thumbnail:   p.Thumbnail,
		Code:        p.Code,
		Stock:       p.Stock,
	}
}

// Store is the catalog persistence contract. Get reports a missing record
// with ok=false; Update and Delete report it with ErrNotFound.
type Store interface {
	Add(ctx context.Context, p NewProduct) (Product, error)
	List(ctx context.Context) ([]Product, error)
	Get(ctx context.Context, id int) (Product, bool, error)
	Update(ctx context.Context, id int, p NewProduct) (Product, error)
	Delete(ctx context.Context, id int) error
	Ping(ctx context.Context) error
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func validateProduct(p NewProduct) error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProduct, err)
	}
	return nil
}

func indexByID(products []Product, id int) int {
	for i, p := range products {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// codeTaken reports whether code belongs to a record other than skipID.
func codeTaken(products []Product, code string, skipID int) bool {
	for _, p := range products {
		if p.Code == code && p.ID != skipID {
			return true
		}
	}
	return false
}
