// Package imagestore persists uploaded service photos under a single images
// root and hands back root-relative URL paths that can be served as-is.
package imagestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/brightline-electric/servicesite/internal/model"
)

const (
	// DefaultMaxBytes is the per-file size cap.
	DefaultMaxBytes int64 = 5 << 20
	// DefaultURLPrefix is the URL path under which stored images are served.
	DefaultURLPrefix = "/images"

	sniffLen       = 512
	maxStemLen     = 48
	createAttempts = 8
)

var (
	// ErrUnsupportedImage indicates content that is not one of the allowed raster types.
	ErrUnsupportedImage = errors.New("unsupported image type")
	// ErrImageTooLarge indicates content above the per-file size cap.
	ErrImageTooLarge = errors.New("image too large")
)

// allowedTypes maps sniffed content types to the extension used on disk.
var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Store persists and removes image binaries.
type Store interface {
	// Store writes content under a generated unique name and returns its
	// root-relative path.
	Store(ctx context.Context, content io.Reader, originalName string) (string, error)
	// Delete removes the file behind a path previously returned by Store.
	// A missing file yields an error matching model.ErrNotFound.
	Delete(ctx context.Context, ref string) error
}

// FSStore is a Store on the local filesystem.
type FSStore struct {
	root      string
	urlPrefix string
	maxBytes  int64
	now       func() time.Time
}

// NewFSStore creates the images root if needed and returns a store rooted there.
func NewFSStore(root, urlPrefix string, maxBytes int64) (*FSStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("imagestore: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, model.StorageError("creating images root", err)
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &FSStore{
		root:      root,
		urlPrefix: normalizePrefix(urlPrefix),
		maxBytes:  maxBytes,
		now:       time.Now,
	}, nil
}

// Root returns the directory images are written to.
func (s *FSStore) Root() string {
	return s.root
}

// URLPrefix returns the URL path prefix of returned image paths.
func (s *FSStore) URLPrefix() string {
	return s.urlPrefix
}

// MaxBytes returns the per-file size cap.
func (s *FSStore) MaxBytes() int64 {
	return s.maxBytes
}

// Store implements Store. The content type is sniffed from the bytes rather
// than trusted from the client.
func (s *FSStore) Store(ctx context.Context, content io.Reader, originalName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(content, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", model.StorageError("reading upload", err)
	}
	head = head[:n]
	if n == 0 {
		return "", fmt.Errorf("%q is empty: %w: %w", originalName, model.ErrStorage, ErrUnsupportedImage)
	}

	contentType := http.DetectContentType(head)
	ext, ok := allowedTypes[contentType]
	if !ok {
		return "", fmt.Errorf("%q has type %s: %w: %w", originalName, contentType, model.ErrStorage, ErrUnsupportedImage)
	}

	f, name, err := s.create(sanitizeStem(originalName), ext)
	if err != nil {
		return "", err
	}
	target := filepath.Join(s.root, name)

	written, err := io.Copy(f, io.LimitReader(io.MultiReader(bytes.NewReader(head), content), s.maxBytes+1))
	closeErr := f.Close()
	switch {
	case err != nil:
		_ = os.Remove(target)
		return "", model.StorageError("writing image", err)
	case closeErr != nil:
		_ = os.Remove(target)
		return "", model.StorageError("closing image", closeErr)
	case written > s.maxBytes:
		_ = os.Remove(target)
		return "", fmt.Errorf("%q exceeds the %s limit: %w: %w",
			originalName, humanize.IBytes(uint64(s.maxBytes)), model.ErrStorage, ErrImageTooLarge)
	}

	return path.Join(s.urlPrefix, name), nil
}

// Delete implements Store.
func (s *FSStore) Delete(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name, ok := s.fileName(ref)
	if !ok {
		return fmt.Errorf("image %q: %w", ref, model.ErrNotFound)
	}
	if err := os.Remove(filepath.Join(s.root, name)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("image %q: %w", ref, model.ErrNotFound)
		}
		return model.StorageError("removing image", err)
	}
	return nil
}

// create opens a brand-new file. O_EXCL guarantees two concurrent uploads
// with the same name and clock reading never share a file.
func (s *FSStore) create(stem, ext string) (*os.File, string, error) {
	stamp := s.now().UnixNano()
	for attempt := 0; attempt < createAttempts; attempt++ {
		name := fmt.Sprintf("%d-%s%s", stamp, stem, ext)
		if attempt > 0 {
			name = fmt.Sprintf("%d-%s-%d%s", stamp, stem, attempt, ext)
		}
		f, err := os.OpenFile(filepath.Join(s.root, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, name, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", model.StorageError("creating image", err)
		}
	}
	return nil, "", model.StorageError("creating image", fmt.Errorf("no free name for %s%s", stem, ext))
}

// fileName maps a reference back to a bare file name inside the root.
func (s *FSStore) fileName(ref string) (string, bool) {
	p := RootRelative(ref)
	prefix := s.urlPrefix + "/"
	if !strings.HasPrefix(p, prefix) {
		return "", false
	}
	name := strings.TrimPrefix(p, prefix)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", false
	}
	return name, true
}

// RootRelative strips scheme and host from absolute image URLs, which is what
// browsers post back when they read an <img> src. Other values are returned
// unchanged.
func RootRelative(ref string) string {
	ref = strings.TrimSpace(ref)
	u, err := url.Parse(ref)
	if err != nil || u.Scheme == "" {
		return ref
	}
	return u.Path
}

func sanitizeStem(originalName string) string {
	base := filepath.Base(strings.ReplaceAll(originalName, `\`, "/"))
	stem := strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))

	var b strings.Builder
	dash := false
	for _, r := range stem {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	out := strings.TrimRight(b.String(), "-")
	if len(out) > maxStemLen {
		out = strings.TrimRight(out[:maxStemLen], "-")
	}
	if out == "" {
		return "image"
	}
	return out
}

func normalizePrefix(prefix string) string {
	trimmed := strings.Trim(strings.TrimSpace(prefix), "/")
	if trimmed == "" {
		return DefaultURLPrefix
	}
	return "/" + trimmed
}
