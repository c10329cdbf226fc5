package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultOK       = "ok"
	resultNotFound = "not_found"
	resultConflict = "conflict"
	resultInvalid  = "invalid"
	resultError    = "error"
)

const (
	opAdd    = "add"
	opList   = "list"
	opGet    = "get"
	opUpdate = "update"
	opDelete = "delete"
)

// InstrumentedStore counts and times every Store call by operation and
// outcome.
type InstrumentedStore struct {
	next     Store
	ops      *prometheus.CounterVec
	duration *prometheus.HistogramVec
	size     prometheus.Gauge
}

func NewInstrumentedStore(next Store, reg prometheus.Registerer) *InstrumentedStore {
	s := &InstrumentedStore{
		next: next,
		ops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_store_operations_total",
				Help: "Catalog store calls by operation and result",
			},
			[]string{"op", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "catalog_store_operation_duration_seconds",
				Help:    "Catalog store call latency",
				Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
			},
			[]string{"op"},
		),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "catalog_products",
			Help: "Number of products seen by the last list call",
		}),
	}

	reg.MustRegister(s.ops, s.duration, s.size)
	return s
}

func (s *InstrumentedStore) observe(op string, start time.Time, err error) {
	s.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	s.ops.WithLabelValues(op, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return resultOK
	case errors.Is(err, ErrNotFound):
		return resultNotFound
	case errors.Is(err, ErrDuplicateCode):
		return resultConflict
	case errors.Is(err, ErrInvalidProduct):
		return resultInvalid
	default:
		return resultError
	}
}

func (s *InstrumentedStore) Ping(ctx context.Context) error { return s.next.Ping(ctx) }

func (s *InstrumentedStore) Add(ctx context.Context, p NewProduct) (Product, error) {
	start := time.Now()
	out, err := s.next.Add(ctx, p)
	s.observe(opAdd, start, err)
	return out, err
}

func (s *InstrumentedStore) List(ctx context.Context) ([]Product, error) {
	start := time.Now()
	out, err := s.next.List(ctx)
	s.observe(opList, start, err)
	if err == nil {
		s.size.Set(float64(len(out)))
	}
	return out, err
}

func (s *InstrumentedStore) Get(ctx context.Context, id int) (Product, bool, error) {
	start := time.Now()
	out, ok, err := s.next.Get(ctx, id)
	if err == nil && !ok {
		s.observe(opGet, start, ErrNotFound)
	} else {
		s.observe(opGet, start, err)
	}
	return out, ok, err
}

func (s *InstrumentedStore) Update(ctx context.Context, id int, p NewProduct) (Product, error) {
	start := time.Now()
	out, err := s.next.Update(ctx, id, p)
	s.observe(opUpdate, start, err)
	return out, err
}

func (s *InstrumentedStore) Delete(ctx context.Context, id int) error {
	start := time.Now()
	err := s.next.Delete(ctx, id)
	s.observe(opDelete, start, err)
	return err
}
