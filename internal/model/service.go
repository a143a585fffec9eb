// Package model contains the catalog domain types shared by the store,
// the record manager and the HTTP layer.
package model

import (
	"slices"
	"strings"
	"unicode/utf8"
)

const (
	// MinNameLength is the minimum number of characters in a service name.
	MinNameLength = 3
	// MinDescriptionLength is the minimum number of characters in a service description.
	MinDescriptionLength = 10
)

// Service is one advertised offering in the catalog.
type Service struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Images      []string `json:"images"`
	CoverPhoto  string   `json:"coverPhoto"`
}

// Catalog is the full persisted collection of services.
type Catalog struct {
	Services []Service `json:"services"`
}

// Clone returns a deep copy so callers can mutate without aliasing stored slices.
func (s Service) Clone() Service {
	out := s
	out.Images = slices.Clone(s.Images)
	if out.Images == nil {
		out.Images = []string{}
	}
	return out
}

// HasImage reports whether path is one of the service images.
func (s Service) HasImage(path string) bool {
	return slices.Contains(s.Images, path)
}

// RemoveImage drops path from the image list. It reports whether the path was present.
func (s *Service) RemoveImage(path string) bool {
	idx := slices.Index(s.Images, path)
	if idx < 0 {
		return false
	}
	s.Images = slices.Delete(s.Images, idx, idx+1)
	return true
}

// AppendImages adds paths in order, skipping any already present.
func (s *Service) AppendImages(paths ...string) {
	for _, p := range paths {
		if p == "" || s.HasImage(p) {
			continue
		}
		s.Images = append(s.Images, p)
	}
}

// ResolveCover picks the cover photo. A selector that names a current image
// wins; otherwise the existing cover is kept while it is still an image, and
// the first image (or "" when there are none) is used as the fallback.
func (s *Service) ResolveCover(selector string) {
	if selector != "" && s.HasImage(selector) {
		s.CoverPhoto = selector
		return
	}
	if s.CoverPhoto != "" && s.HasImage(s.CoverPhoto) {
		return
	}
	if len(s.Images) == 0 {
		s.CoverPhoto = ""
		return
	}
	s.CoverPhoto = s.Images[0]
}

// Clone returns a deep copy of the catalog.
func (c Catalog) Clone() Catalog {
	out := Catalog{Services: make([]Service, len(c.Services))}
	for i, svc := range c.Services {
		out.Services[i] = svc.Clone()
	}
	return out
}

// Normalize replaces nil slices with empty ones so the document always
// serializes `[]` instead of `null`.
func (c *Catalog) Normalize() {
	if c.Services == nil {
		c.Services = []Service{}
	}
	for i := range c.Services {
		if c.Services[i].Images == nil {
			c.Services[i].Images = []string{}
		}
	}
}

// Index returns the position of the service with the given id, or -1.
func (c Catalog) Index(id string) int {
	return slices.IndexFunc(c.Services, func(s Service) bool { return s.ID == id })
}

// Find returns the service with the given id.
func (c Catalog) Find(id string) (Service, bool) {
	idx := c.Index(id)
	if idx < 0 {
		return Service{}, false
	}
	return c.Services[idx], true
}

// ValidateName checks the name rule and returns a field error or nil.
func ValidateName(name string) *FieldError {
	if utf8.RuneCountInString(strings.TrimSpace(name)) < MinNameLength {
		return &FieldError{Field: "name", Message: "name must be at least 3 characters"}
	}
	return nil
}

// ValidateDescription checks the description rule and returns a field error or nil.
func ValidateDescription(description string) *FieldError {
	if utf8.RuneCountInString(strings.TrimSpace(description)) < MinDescriptionLength {
		return &FieldError{Field: "description", Message: "description must be at least 10 characters"}
	}
	return nil
}
