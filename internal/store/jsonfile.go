package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio"

	"github.com/brightline-electric/servicesite/internal/model"
)

// JSONFileStore implements Store on a single JSON file.
type JSONFileStore struct {
	path string
	mu   sync.Mutex
}

// NewJSONFileStore returns a store for the document at path. The file is
// not touched until the first call.
func NewJSONFileStore(path string) *JSONFileStore {
	return &JSONFileStore{path: path}
}

// Path returns the location of the catalog document.
func (s *JSONFileStore) Path() string {
	return s.path
}

// Init writes an empty catalog when, and only when, the document is absent.
// It reports whether a new document was created.
func (s *JSONFileStore) Init(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, model.StorageError("checking catalog", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return false, model.StorageError("creating catalog directory", err)
	}
	if err := s.save(ctx, model.Catalog{}); err != nil {
		return false, err
	}
	return true, nil
}

// Load implements Store.
func (s *JSONFileStore) Load(ctx context.Context) (model.Catalog, error) {
	return s.load(ctx)
}

// Save implements Store.
func (s *JSONFileStore) Save(ctx context.Context, c model.Catalog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, c)
}

// Mutate implements Store.
func (s *JSONFileStore) Mutate(ctx context.Context, fn func(*model.Catalog) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.load(ctx)
	if err != nil {
		return err
	}
	if err := fn(&c); err != nil {
		return err
	}
	return s.save(ctx, c)
}

// Ping implements Store.
func (s *JSONFileStore) Ping(ctx context.Context) error {
	_, err := s.load(ctx)
	return err
}

func (s *JSONFileStore) load(ctx context.Context) (model.Catalog, error) {
	if err := ctx.Err(); err != nil {
		return model.Catalog{}, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return model.Catalog{}, fmt.Errorf("%s: %w", s.path, model.ErrNotInitialized)
		}
		return model.Catalog{}, model.StorageError("reading catalog", err)
	}

	var c model.Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return model.Catalog{}, model.StorageError("parsing catalog", err)
	}
	c.Normalize()
	return c, nil
}

// save writes via a temp file and rename so readers never observe a
// partially written document. Identical content is not rewritten.
func (s *JSONFileStore) save(ctx context.Context, c model.Catalog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Normalize()
	data, err := encode(c)
	if err != nil {
		return model.StorageError("encoding catalog", err)
	}
	if existing, err := os.ReadFile(s.path); err == nil && bytes.Equal(existing, data) {
		return nil
	}
	if err := renameio.WriteFile(s.path, data, 0o644); err != nil {
		return model.StorageError("writing catalog", err)
	}
	return nil
}

func encode(c model.Catalog) ([]byte, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
