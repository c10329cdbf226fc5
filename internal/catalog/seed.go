package catalog

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// DefaultSeed returns the sample products inserted at startup.
func DefaultSeed() []NewProduct {
	return []NewProduct{
		{
			Title:       "Televisor",
			Description: "Televisor de 42 pulgadas",
			Price:       40000,
			Thumbnail:   "/",
			Code:        "PRO1",
			Stock:       20,
		},
		{
			Title:       "Licuadora",
			Description: "Licuadora y procesadora multifunción",
			Price:       30000,
			Thumbnail:   "/",
			Code:        "PRO2",
			Stock:       20,
		},
	}
}

// Seed adds each product unless its code is already present. Any other store
// failure aborts seeding.
func Seed(ctx context.Context, store Store, log *zap.Logger, products []NewProduct) error {
	if log == nil {
		log = zap.NewNop()
	}

	for _, p := range products {
		created, err := store.Add(ctx, p)
		switch {
		case errors.Is(err, ErrDuplicateCode):
			log.Info("seed product already present", zap.String("code", p.Code))
		case err != nil:
			return fmt.Errorf("seed product %s: %w", p.Code, err)
		default:
			log.Info("seed product added", zap.String("code", created.Code), zap.Int("id", created.ID))
		}
	}
	return nil
}
