package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const (
	pingTimeout  = 1 * time.Second
	queryTimeout = 3 * time.Second
	pgUniqueCode = "23505"
)

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id          BIGSERIAL PRIMARY KEY,
	title       TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	price       DOUBLE PRECISION NOT NULL DEFAULT 0,
	thumbnail   TEXT NOT NULL DEFAULT '',
	code        TEXT NOT NULL UNIQUE,
	stock       INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0)
)`

// PostgresStore keeps products in a table whose BIGSERIAL id doubles as the
// never-reused identifier sequence.
type PostgresStore struct {
	db  *sql.DB
	log *zap.Logger
}

// OpenPostgres opens a pgx-backed *sql.DB and verifies the connection.
func OpenPostgres(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, err
	}
	if err := withTimeout(ctx, pingTimeout, db.PingContext); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func NewPostgresStore(db *sql.DB, log *zap.Logger) *PostgresStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &PostgresStore{db: db, log: log.With(zap.String("store", "postgres"))}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	return withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, schema)
		return err
	})
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return withTimeout(ctx, pingTimeout, func(ctx context.Context) error {
		return s.db.PingContext(ctx)
	})
}

func (s *PostgresStore) Add(ctx context.Context, p NewProduct) (Product, error) {
	if err := validateProduct(p); err != nil {
		return Product{}, err
	}

	var id int
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, `
			INSERT INTO products (title, description, price, thumbnail, code, stock)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id
		`, p.Title, p.Description, p.Price, p.Thumbnail, p.Code, p.Stock).Scan(&id)
	})
	if isUniqueViolation(err) {
		s.log.Warn("product code already exists", zap.String("code", p.Code))
		return Product{}, ErrDuplicateCode
	}
	if err != nil {
		s.log.Error("insert product failed", zap.Error(err))
		return Product{}, fmt.Errorf("insert product: %w", err)
	}
	return p.withID(id), nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Product, error) {
	var out []Product

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, `
			SELECT id, title, description, price, thumbnail, code, stock
			FROM products
			ORDER BY id ASC
		`)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = make([]Product, 0, 16)
		for rows.Next() {
			var p Product
			if err := rows.Scan(&p.ID, &p.Title, &p.Description, &p.Price, &p.Thumbnail, &p.Code, &p.Stock); err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})

	if err != nil {
		s.log.Error("list products failed", zap.Error(err))
		return nil, fmt.Errorf("list products: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Get(ctx context.Context, id int) (Product, bool, error) {
	var p Product

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, `
			SELECT id, title, description, price, thumbnail, code, stock
			FROM products
			WHERE id = $1
		`, id).Scan(&p.ID, &p.Title, &p.Description, &p.Price, &p.Thumbnail, &p.Code, &p.Stock)
	})

	if errors.Is(err, sql.ErrNoRows) {
		s.log.Warn("product not found", zap.Int("id", id))
		return Product{}, false, nil
	}
	if err != nil {
		s.log.Error("get product failed", zap.Error(err), zap.Int("id", id))
		return Product{}, false, fmt.Errorf("get product: %w", err)
	}
	return p, true, nil
}

func (s *PostgresStore) Update(ctx context.Context, id int, p NewProduct) (Product, error) {
	if err := validateProduct(p); err != nil {
		return Product{}, err
	}

	var affected int64
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE products
			SET title = $1, description = $2, price = $3, thumbnail = $4, code = $5, stock = $6
			WHERE id = $7
		`, p.Title, p.Description, p.Price, p.Thumbnail, p.Code, p.Stock, id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if isUniqueViolation(err) {
		s.log.Warn("product code already exists", zap.String("code", p.Code), zap.Int("id", id))
		return Product{}, ErrDuplicateCode
	}
	if err != nil {
		s.log.Error("update product failed", zap.Error(err), zap.Int("id", id))
		return Product{}, fmt.Errorf("update product: %w", err)
	}
	if affected == 0 {
		s.log.Warn("product not found", zap.Int("id", id))
		return Product{}, ErrNotFound
	}
	return p.withID(id), nil
}

func (s *PostgresStore) Delete(ctx context.Context, id int) error {
	var affected int64
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		s.log.Error("delete product failed", zap.Error(err), zap.Int("id", id))
		return fmt.Errorf("delete product: %w", err)
	}
	if affected == 0 {
		s.log.Warn("product not found", zap.Int("id", id))
		return ErrNotFound
	}
	return nil
}

func withTimeout(parent context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, d)
	defer cancel()
	return fn(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueCode
}
