// Package store is the catalog repository: it owns the persisted services
// document and serializes every load-mutate-save cycle within the process.
package store

import (
	"context"

	"github.com/brightline-electric/servicesite/internal/model"
)

// Store defines persistence methods for the catalog document.
type Store interface {
	// Load reads and parses the catalog. A missing document yields
	// model.ErrNotInitialized.
	Load(ctx context.Context) (model.Catalog, error)
	// Save atomically replaces the catalog document.
	Save(ctx context.Context, c model.Catalog) error
	// Mutate runs load → fn → save as one critical section. When fn returns
	// an error nothing is written.
	Mutate(ctx context.Context, fn func(*model.Catalog) error) error
	// Ping checks that the document is readable, for readiness probes.
	Ping(ctx context.Context) error
}
