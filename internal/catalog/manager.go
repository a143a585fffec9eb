// Package catalog implements the business rules of the service catalog:
// creating, updating and deleting service records together with their image
// sets, and the read-only listing used by the public pages.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/brightline-electric/servicesite/internal/events"
	"github.com/brightline-electric/servicesite/internal/imagestore"
	"github.com/brightline-electric/servicesite/internal/metrics"
	"github.com/brightline-electric/servicesite/internal/model"
	"github.com/brightline-electric/servicesite/internal/store"
)

// Operation names used for metrics and logs.
const (
	OpList        = "list"
	OpGet         = "get"
	OpAdd         = "add"
	OpUpdate      = "update"
	OpDelete      = "delete"
	OpDeleteImage = "delete_image"
)

// coverPhotoField is the form field carrying the cover selector.
const coverPhotoField = "cover-photo"

// Upload is one uploaded file handed over by the transport.
type Upload struct {
	// Name is the client-side file name.
	Name string
	// Content streams the file body.
	Content io.Reader
}

// AddRequest holds the input of AddService.
type AddRequest struct {
	Name        string
	Description string
	Images      []Upload
	// Cover selects the cover photo by stored path or by the Name of one of
	// the uploads. Empty means the first image.
	Cover string
}

// UpdateRequest holds the input of UpdateService. Nil or blank Name and
// Description leave the current values untouched.
type UpdateRequest struct {
	Name         *string
	Description  *string
	Images       []Upload
	DeleteImages []string
	Cover        string
}

// Manager applies catalog mutations. It holds no catalog state of its own;
// every call is one load → mutate → save cycle on the store.
type Manager struct {
	store     store.Store
	images    imagestore.Store
	publisher events.Publisher
	metrics   *metrics.Recorder
	logger    zerolog.Logger
	newID     func() string
}

// Option configures a Manager.
type Option func(*Manager)

// WithPublisher sets the change-event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(m *Manager) {
		if p != nil {
			m.publisher = p
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r *metrics.Recorder) Option {
	return func(m *Manager) {
		m.metrics = r
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithIDGenerator overrides service id generation.
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) {
		if fn != nil {
			m.newID = fn
		}
	}
}

// NewManager constructs a Manager.
func NewManager(st store.Store, images imagestore.Store, opts ...Option) *Manager {
	m := &Manager{
		store:     st,
		images:    images,
		publisher: events.NoopPublisher{},
		logger:    zerolog.Nop(),
		newID:     newServiceID,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddService validates the input, stores the images and appends a new service.
func (m *Manager) AddService(ctx context.Context, req AddRequest) (model.Service, error) {
	start := time.Now()
	svc, err := m.addService(ctx, req)
	m.metrics.ObserveOperation(OpAdd, time.Since(start), err)
	return svc, err
}

func (m *Manager) addService(ctx context.Context, req AddRequest) (model.Service, error) {
	verr := &model.ValidationError{}
	verr.Add(model.ValidateName(req.Name))
	verr.Add(model.ValidateDescription(req.Description))
	verr.Add(validateCoverSelector(req.Cover, req.Images))
	if err := verr.OrNil(); err != nil {
		return model.Service{}, err
	}
	if len(req.Images) == 0 {
		return model.Service{}, model.ErrNoImages
	}

	var (
		created model.Service
		stored  []storedUpload
		total   int
	)
	err := m.store.Mutate(ctx, func(c *model.Catalog) error {
		uploads, err := m.storeUploads(ctx, req.Images)
		if err != nil {
			return err
		}
		stored = uploads

		svc := model.Service{
			ID:          m.uniqueID(*c),
			Name:        strings.TrimSpace(req.Name),
			Description: strings.TrimSpace(req.Description),
			Images:      []string{},
		}
		svc.AppendImages(paths(uploads)...)
		m.resolveCover(&svc, req.Cover, uploads)

		c.Services = append(c.Services, svc)
		created = svc.Clone()
		total = len(c.Services)
		return nil
	})
	if err != nil {
		m.discard(ctx, stored)
		return model.Service{}, err
	}

	m.metrics.SetServices(total)
	m.logger.Info().Str("service_id", created.ID).Int("images", len(created.Images)).Msg("service added")
	m.publish(ctx, events.TypeServiceCreated, created)
	return created, nil
}

// UpdateService applies a partial update to the service with the given id.
// Images listed in DeleteImages are dropped, uploads are appended, and the
// cover photo is recomputed.
func (m *Manager) UpdateService(ctx context.Context, id string, req UpdateRequest) (model.Service, error) {
	start := time.Now()
	svc, err := m.updateService(ctx, id, req)
	m.metrics.ObserveOperation(OpUpdate, time.Since(start), err)
	return svc, err
}

func (m *Manager) updateService(ctx context.Context, id string, req UpdateRequest) (model.Service, error) {
	name := trimmed(req.Name)
	description := trimmed(req.Description)

	verr := &model.ValidationError{}
	if name != "" {
		verr.Add(model.ValidateName(name))
	}
	if description != "" {
		verr.Add(model.ValidateDescription(description))
	}
	verr.Add(validateCoverSelector(req.Cover, req.Images))
	if err := verr.OrNil(); err != nil {
		return model.Service{}, err
	}

	var (
		updated model.Service
		stored  []storedUpload
		removed []string
	)
	err := m.store.Mutate(ctx, func(c *model.Catalog) error {
		idx := c.Index(id)
		if idx < 0 {
			return fmt.Errorf("service %q: %w", id, model.ErrNotFound)
		}
		svc := c.Services[idx].Clone()

		if name != "" {
			svc.Name = name
		}
		if description != "" {
			svc.Description = description
		}

		removed = removed[:0]
		for _, ref := range req.DeleteImages {
			p := imagestore.RootRelative(ref)
			if svc.RemoveImage(p) {
				removed = append(removed, p)
				continue
			}
			m.logger.Debug().Str("service_id", id).Str("image", p).Msg("image to delete is not on the service")
		}

		uploads, err := m.storeUploads(ctx, req.Images)
		if err != nil {
			return err
		}
		stored = uploads

		svc.AppendImages(paths(uploads)...)
		m.resolveCover(&svc, req.Cover, uploads)

		c.Services[idx] = svc
		updated = svc.Clone()
		return nil
	})
	if err != nil {
		m.discard(ctx, stored)
		return model.Service{}, err
	}

	m.removeImages(ctx, id, removed)
	m.logger.Info().
		Str("service_id", id).
		Int("added", len(stored)).
		Int("removed", len(removed)).
		Msg("service updated")
	m.publish(ctx, events.TypeServiceUpdated, updated)
	return updated, nil
}

// DeleteService removes the service and then its image files.
func (m *Manager) DeleteService(ctx context.Context, id string) (model.Service, error) {
	start := time.Now()
	svc, err := m.deleteService(ctx, id)
	m.metrics.ObserveOperation(OpDelete, time.Since(start), err)
	return svc, err
}

func (m *Manager) deleteService(ctx context.Context, id string) (model.Service, error) {
	var (
		removed model.Service
		total   int
	)
	err := m.store.Mutate(ctx, func(c *model.Catalog) error {
		idx := c.Index(id)
		if idx < 0 {
			return fmt.Errorf("service %q: %w", id, model.ErrNotFound)
		}
		removed = c.Services[idx].Clone()
		c.Services = slices.Delete(c.Services, idx, idx+1)
		total = len(c.Services)
		return nil
	})
	if err != nil {
		return model.Service{}, err
	}

	m.metrics.SetServices(total)
	m.removeImages(ctx, id, removed.Images)
	m.logger.Info().Str("service_id", id).Msg("service deleted")
	m.publish(ctx, events.TypeServiceDeleted, removed)
	return removed, nil
}

// DeleteImage removes one image from a service without touching its other
// fields. The cover photo moves to the first remaining image when needed.
func (m *Manager) DeleteImage(ctx context.Context, id, imagePath string) (model.Service, error) {
	start := time.Now()
	svc, err := m.deleteImage(ctx, id, imagePath)
	m.metrics.ObserveOperation(OpDeleteImage, time.Since(start), err)
	return svc, err
}

func (m *Manager) deleteImage(ctx context.Context, id, imagePath string) (model.Service, error) {
	p := imagestore.RootRelative(imagePath)

	var updated model.Service
	err := m.store.Mutate(ctx, func(c *model.Catalog) error {
		idx := c.Index(id)
		if idx < 0 {
			return fmt.Errorf("service %q: %w", id, model.ErrNotFound)
		}
		svc := c.Services[idx].Clone()
		if !svc.RemoveImage(p) {
			return fmt.Errorf("image %q on service %q: %w", p, id, model.ErrNotFound)
		}
		svc.ResolveCover("")
		c.Services[idx] = svc
		updated = svc.Clone()
		return nil
	})
	if err != nil {
		return model.Service{}, err
	}

	m.removeImages(ctx, id, []string{p})
	m.logger.Info().Str("service_id", id).Str("image", p).Msg("image deleted")
	m.publish(ctx, events.TypeImageDeleted, updated)
	return updated, nil
}

type storedUpload struct {
	name string
	path string
}

// storeUploads writes all uploads in parallel and returns them in input
// order. On failure every file written by this call is removed again.
func (m *Manager) storeUploads(ctx context.Context, uploads []Upload) ([]storedUpload, error) {
	if len(uploads) == 0 {
		return nil, nil
	}

	results := make([]storedUpload, len(uploads))
	g, gctx := errgroup.WithContext(ctx)
	for i, up := range uploads {
		g.Go(func() error {
			p, err := m.images.Store(gctx, up.Content, up.Name)
			if err != nil {
				return fmt.Errorf("storing %q: %w", up.Name, err)
			}
			m.metrics.ImageStored()
			results[i] = storedUpload{name: up.Name, path: p}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		m.discard(ctx, results)
		return nil, err
	}
	return results, nil
}

// discard removes files written for a mutation that did not persist.
func (m *Manager) discard(ctx context.Context, uploads []storedUpload) {
	var orphans []string
	for _, up := range uploads {
		if up.path != "" {
			orphans = append(orphans, up.path)
		}
	}
	m.removeImages(ctx, "", orphans)
}

// removeImages is best effort: a dangling file is preferable to failing a
// mutation that is already saved.
func (m *Manager) removeImages(ctx context.Context, serviceID string, refs []string) {
	ctx = context.WithoutCancel(ctx)
	for _, ref := range refs {
		err := m.images.Delete(ctx, ref)
		m.metrics.ImageDeleted(err)
		if err == nil {
			continue
		}
		if isNotFound(err) {
			m.logger.Debug().Str("service_id", serviceID).Str("image", ref).Msg("image file already gone")
			continue
		}
		m.logger.Warn().Err(err).Str("service_id", serviceID).Str("image", ref).Msg("failed to delete image file")
	}
}

func (m *Manager) publish(ctx context.Context, eventType string, svc model.Service) {
	if err := m.publisher.Publish(context.WithoutCancel(ctx), events.NewEvent(eventType, svc.ID, svc)); err != nil {
		m.logger.Warn().Err(err).Str("service_id", svc.ID).Str("event", eventType).Msg("failed to publish catalog event")
	}
}

func (m *Manager) uniqueID(c model.Catalog) string {
	for {
		id := m.newID()
		if id != "" && c.Index(id) < 0 {
			return id
		}
	}
}

// newServiceID returns a time-ordered UUIDv7.
func newServiceID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// resolveCover applies the cover selector to svc. A selector that names no
// image of the service leaves the fallback cover in place.
func (m *Manager) resolveCover(svc *model.Service, selector string, uploads []storedUpload) {
	resolved := resolveSelector(selector, uploads)
	svc.ResolveCover(resolved)
	if resolved != "" && svc.CoverPhoto != resolved {
		m.logger.Debug().
			Str("service_id", svc.ID).
			Str("selector", selector).
			Str("cover", svc.CoverPhoto).
			Msg("cover selector matched no image")
	}
}

// validateCoverSelector rejects a bare image index such as "0". Covers are
// chosen by path or upload name; an index is only accepted when it is the
// name of one of the uploads.
func validateCoverSelector(selector string, uploads []Upload) *model.FieldError {
	selector = strings.TrimSpace(selector)
	if selector == "" || strings.Trim(selector, "0123456789") != "" {
		return nil
	}
	for _, up := range uploads {
		if up.Name == selector || filepath.Base(up.Name) == selector {
			return nil
		}
	}
	return &model.FieldError{
		Field:   coverPhotoField,
		Message: "cover photo must be an image path or an uploaded file name, not an index",
	}
}

// resolveSelector turns a cover selector into an image path. It accepts a
// stored path (absolute URLs included) or the client-side name of one of the
// uploads of the same request.
func resolveSelector(selector string, uploads []storedUpload) string {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return ""
	}
	p := imagestore.RootRelative(selector)
	for _, up := range uploads {
		if up.path == p {
			return p
		}
	}
	for _, up := range uploads {
		if up.name == selector || filepath.Base(up.name) == selector {
			return up.path
		}
	}
	return p
}

func paths(uploads []storedUpload) []string {
	out := make([]string, 0, len(uploads))
	for _, up := range uploads {
		out = append(out, up.path)
	}
	return out
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func isNotFound(err error) bool {
	return errors.Is(err, model.ErrNotFound)
}
