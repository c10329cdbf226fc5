package catalog

import (
	"context"
	"slices"
	"sync"

	"go.uber.org/zap"
)

// MemStore is the process-local Store used by tests and the memory driver.
type MemStore struct {
	mu       sync.RWMutex
	log      *zap.Logger
	products []Product
	nextID   int
}

func NewMemStore(log *zap.Logger) *MemStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &MemStore{
		log:      log.With(zap.String("store", "memory")),
		products: []Product{},
		nextID:   1,
	}
}

func (s *MemStore) Ping(ctx context.Context) error { return nil }

func (s *MemStore) Add(ctx context.Context, p NewProduct) (Product, error) {
	if err := validateProduct(p); err != nil {
		return Product{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if codeTaken(s.products, p.Code, 0) {
		s.log.Warn("product code already exists", zap.String("code", p.Code))
		return Product{}, ErrDuplicateCode
	}

	created := p.withID(s.nextID)
	s.nextID++
	s.products = append(s.products, created)
	return created, nil
}

func (s *MemStore) List(ctx context.Context) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.products), nil
}

func (s *MemStore) Get(ctx context.Context, id int) (Product, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := indexByID(s.products, id)
	if i < 0 {
		s.log.Warn("product not found", zap.Int("id", id))
		return Product{}, false, nil
	}
	return s.products[i], true, nil
}

func (s *MemStore) Update(ctx context.Context, id int, p NewProduct) (Product, error) {
	if err := validateProduct(p); err != nil {
		return Product{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexByID(s.products, id)
	if i < 0 {
		s.log.Warn("product not found", zap.Int("id", id))
		return Product{}, ErrNotFound
	}
	if codeTaken(s.products, p.Code, id) {
		s.log.Warn("product code already exists", zap.String("code", p.Code), zap.Int("id", id))
		return Product{}, ErrDuplicateCode
	}

	s.products[i] = p.withID(id)
	return s.products[i], nil
}

func (s *MemStore) Delete(ctx context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexByID(s.products, id)
	if i < 0 {
		s.log.Warn("product not found", zap.Int("id", id))
		return ErrNotFound
	}

	s.products = slices.Delete(s.products, i, i+1)
	return nil
}
