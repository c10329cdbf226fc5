package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"go.uber.org/zap"
)

const (
	filePerm = 0o644
	dirPerm  = 0o755
	seqExt   = ".seq"
)

// FileStore keeps the catalog as one JSON array on disk. Reads reload the
// file; mutations work on the last loaded snapshot and rewrite the whole file.
// The next identifier is tracked in a sidecar file so ids are never reused
// after a delete.
type FileStore struct {
	mu       sync.Mutex
	path     string
	log      *zap.Logger
	products []Product
	nextID   int
}

type sequence struct {
	NextID int `json:"next_id"`
}

func NewFileStore(path string, log *zap.Logger) (*FileStore, error) {
	if log == nil {
		log = zap.NewNop()
	}

	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return nil, fmt.Errorf("create catalog dir: %w", err)
	}

	s := &FileStore{
		path:     path,
		log:      log.With(zap.String("store", "file"), zap.String("path", path)),
		products: []Product{},
		nextID:   1,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) Ping(ctx context.Context) error {
	_, err := os.Stat(filepath.Dir(s.path))
	return err
}

func (s *FileStore) Add(ctx context.Context, p NewProduct) (Product, error) {
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

	next := append(slices.Clone(s.products), created)
	if err := s.save(next); err != nil {
		return Product{}, err
	}
	s.products = next
	return created, nil
}

func (s *FileStore) List(ctx context.Context) ([]Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(); err != nil {
		return nil, err
	}
	return slices.Clone(s.products), nil
}

func (s *FileStore) Get(ctx context.Context, id int) (Product, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(); err != nil {
		return Product{}, false, err
	}

	i := indexByID(s.products, id)
	if i < 0 {
		s.log.Warn("product not found", zap.Int("id", id))
		return Product{}, false, nil
	}
	return s.products[i], true, nil
}

func (s *FileStore) Update(ctx context.Context, id int, p NewProduct) (Product, error) {
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

	updated := p.withID(id)
	next := slices.Clone(s.products)
	next[i] = updated

	if err := s.save(next); err != nil {
		return Product{}, err
	}
	s.products = next
	return updated, nil
}

func (s *FileStore) Delete(ctx context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexByID(s.products, id)
	if i < 0 {
		s.log.Warn("product not found", zap.Int("id", id))
		return ErrNotFound
	}

	next := slices.Delete(slices.Clone(s.products), i, i+1)
	if err := s.save(next); err != nil {
		return err
	}
	s.products = next
	return nil
}

// load replaces the snapshot with the file contents. On failure the previous
// snapshot is kept. A missing or blank file is an empty catalog.
func (s *FileStore) load() error {
	raw, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		raw = nil
	case err != nil:
		s.log.Error("load catalog file failed", zap.Error(err))
		return fmt.Errorf("read catalog: %w", err)
	}

	products := []Product{}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &products); err != nil {
			s.log.Error("decode catalog file failed", zap.Error(err))
			return fmt.Errorf("decode catalog: %w", err)
		}
		if products == nil {
			products = []Product{}
		}
	}

	s.products = products
	s.nextID = max(s.nextID, maxID(products)+1, s.readSeq())
	return nil
}

// save persists the sequence before the catalog. A failed catalog write can
// leave the sequence ahead of the data, which only skips ids.
func (s *FileStore) save(products []Product) error {
	seq, err := json.Marshal(sequence{NextID: s.nextID})
	if err != nil {
		return fmt.Errorf("encode sequence: %w", err)
	}
	if err := writeFileAtomic(s.path+seqExt, seq, filePerm); err != nil {
		s.log.Error("save sequence file failed", zap.Error(err))
		return fmt.Errorf("write sequence: %w", err)
	}

	data, err := json.Marshal(products)
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	if err := writeFileAtomic(s.path, data, filePerm); err != nil {
		s.log.Error("save catalog file failed", zap.Error(err))
		return fmt.Errorf("write catalog: %w", err)
	}
	return nil
}

// readSeq returns the persisted next id, or 0 when there is none usable.
func (s *FileStore) readSeq() int {
	raw, err := os.ReadFile(s.path + seqExt)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn("read sequence file failed", zap.Error(err))
		}
		return 0
	}

	var seq sequence
	if err := json.Unmarshal(raw, &seq); err != nil {
		s.log.Warn("decode sequence file failed", zap.Error(err))
		return 0
	}
	return seq.NextID
}

func maxID(products []Product) int {
	m := 0
	for _, p := range products {
		m = max(m, p.ID)
	}
	return m
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it over path, so readers see either the old or the new contents.
func writeFileAtomic(path string, data []byte, perm os.FileMode) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), perm); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
