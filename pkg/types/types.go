// Package types defines public request/response payloads for the service-site API.
package types

import "time"

// Multipart form field names used by the add and update routes.
const (
	// FieldName carries the service name.
	FieldName = "name"
	// FieldDescription carries the service description.
	FieldDescription = "description"
	// FieldImages carries one uploaded image file per part.
	FieldImages = "images"
	// FieldImagesToDelete carries one image path or URL per value.
	FieldImagesToDelete = "imagesToDelete"
	// FieldCoverPhoto selects the cover by image path or uploaded file name.
	FieldCoverPhoto = "cover-photo"
)

// AdminRedirect is where the login page sends a successful admin.
const AdminRedirect = "/upload"

// Service is one catalog entry.
type Service struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Images      []string `json:"images"`
	CoverPhoto  string   `json:"coverPhoto"`
}

// ServiceList is the body of GET /api/services and of the raw catalog document.
type ServiceList struct {
	Services []Service `json:"services"`
}

// MutationResponse is the body returned by the admin mutation routes.
type MutationResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message,omitempty"`
	Service *Service `json:"service,omitempty"`
}

// LoginRequest is the body for POST /api/admin-auth.
type LoginRequest struct {
	Password string `json:"password"`
}

// LoginResponse is the body returned by POST /api/admin-auth.
type LoginResponse struct {
	Success   bool       `json:"success"`
	Message   string     `json:"message,omitempty"`
	Redirect  string     `json:"redirect,omitempty"`
	Token     string     `json:"token,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// FieldError describes a rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ErrorResponse is the problem-details body of every error response. Success
// and Error mirror Detail for browser code written against the mutation
// envelope.
type ErrorResponse struct {
	Type      string       `json:"type"`
	Title     string       `json:"title"`
	Status    int          `json:"status"`
	Detail    string       `json:"detail,omitempty"`
	Instance  string       `json:"instance,omitempty"`
	RequestID string       `json:"requestId,omitempty"`
	Errors    []FieldError `json:"errors,omitempty"`
	Success   bool         `json:"success"`
	Error     string       `json:"error,omitempty"`
}
