package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/brightline-electric/servicesite/internal/metrics"
	"github.com/brightline-electric/servicesite/internal/model"
	"github.com/brightline-electric/servicesite/internal/store"
)

// Query serves read-only views of the catalog. Every call reads the
// persisted document, so changes are visible on the next request.
type Query struct {
	store   store.Store
	metrics *metrics.Recorder
}

// NewQuery constructs a Query. rec may be nil.
func NewQuery(st store.Store, rec *metrics.Recorder) *Query {
	return &Query{store: st, metrics: rec}
}

// Catalog returns the whole document.
func (q *Query) Catalog(ctx context.Context) (model.Catalog, error) {
	start := time.Now()
	c, err := q.store.Load(ctx)
	q.metrics.ObserveOperation(OpList, time.Since(start), err)
	if err != nil {
		return model.Catalog{}, err
	}
	q.metrics.SetServices(len(c.Services))
	return c, nil
}

// ListServices returns all services in catalog order.
func (q *Query) ListServices(ctx context.Context) ([]model.Service, error) {
	c, err := q.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	return c.Services, nil
}

// GetService returns the service with the given id.
func (q *Query) GetService(ctx context.Context, id string) (model.Service, error) {
	start := time.Now()
	svc, err := q.getService(ctx, id)
	q.metrics.ObserveOperation(OpGet, time.Since(start), err)
	return svc, err
}

func (q *Query) getService(ctx context.Context, id string) (model.Service, error) {
	c, err := q.store.Load(ctx)
	if err != nil {
		return model.Service{}, err
	}
	svc, ok := c.Find(id)
	if !ok {
		return model.Service{}, fmt.Errorf("service %q: %w", id, model.ErrNotFound)
	}
	return svc, nil
}
