package catalog

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"MiniCatalog/pkg/kit"
)

const (
	msgNotFound  = "Producto no encontrado"
	readyTimeout = 1 * time.Second
)

type Server struct {
	Store Store
	Log   *zap.Logger

	// ProductMiddleware wraps only the /products routes.
	ProductMiddleware []func(http.Handler) http.Handler
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", s.ready)

	r.Group(func(pr chi.Router) {
		pr.Use(s.ProductMiddleware...)
		pr.Get("/products", s.list)
		pr.Get("/products/{pid}", s.get)
	})

	return r
}

func (s *Server) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if err := s.Store.Ping(ctx); err != nil {
		s.logger().Warn("readyz failed", zap.Error(err))
		kit.WriteError(w, r, http.StatusServiceUnavailable, "not ready", nil)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	products, err := s.Store.List(r.Context())
	if err != nil {
		s.logger().Error("list products failed", zap.Error(err))
		s.writeStoreError(w, r, err)
		return
	}
	if products == nil {
		products = []Product{}
	}

	kit.WriteJSON(w, http.StatusOK, applyLimit(products, r.URL.Query().Get("limit")))
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	pid := chi.URLParam(r, "pid")

	id, ok := parseID(pid)
	if !ok {
		kit.WriteMessage(w, http.StatusNotFound, msgNotFound)
		return
	}

	p, ok, err := s.Store.Get(r.Context(), id)
	if err != nil {
		s.logger().Error("get product failed", zap.Error(err), zap.Int("id", id))
		s.writeStoreError(w, r, err)
		return
	}
	if !ok {
		kit.WriteMessage(w, http.StatusNotFound, msgNotFound)
		return
	}
	kit.WriteJSON(w, http.StatusOK, p)
}

// applyLimit returns the first n products when raw is numeric. Fractions are
// truncated toward zero, n <= 0 yields an empty list, and anything
// non-numeric leaves the list untouched.
func applyLimit(products []Product, raw string) []Product {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return products
	}

	f, ok := parseNumber(raw)
	if !ok {
		return products
	}

	switch {
	case f <= 0:
		return []Product{}
	case f >= float64(len(products)):
		return products
	default:
		return products[:int(f)]
	}
}

// parseID accepts any numeric pid whose value is a whole number, so "1",
// "1.0" and "1e0" all name product 1.
func parseID(raw string) (int, bool) {
	f, ok := parseNumber(strings.TrimSpace(raw))
	if !ok || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

// parseNumber parses raw as a float. Out-of-range input keeps the ±Inf that
// ParseFloat reports alongside ErrRange.
func parseNumber(raw string) (float64, bool) {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, false
	}
	if math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	switch status {
	case http.StatusNotFound:
		kit.WriteMessage(w, status, msgNotFound)
	case http.StatusInternalServerError:
		kit.WriteError(w, r, status, "server error", nil)
	default:
		kit.WriteError(w, r, status, err.Error(), nil)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicateCode):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidProduct):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
