// Package client provides a typed HTTP client SDK for the service-site API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"

	"github.com/brightline-electric/servicesite/pkg/types"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 3
	retryBackoffBase  = 200 * time.Millisecond
	retryBackoffMax   = 5 * time.Second

	servicesPath      = "/api/services"
	catalogPath       = "/data/services.json"
	loginPath         = "/api/admin-auth"
	logoutPath        = "/api/admin/logout"
	adminServicesPath = "/api/admin/services"
)

// Config holds client configuration.
type Config struct {
	// BaseURL is the root URL of the site (for example: http://localhost:3000).
	BaseURL string
	// Token is the admin bearer credential. Login replaces it.
	Token string
	// Timeout is the per-request timeout. Defaults to 30s.
	Timeout time.Duration
	// MaxRetries is the number of retry attempts for reads that fail
	// transiently. Mutations are never retried.
	MaxRetries int
	// HTTPClient overrides the transport.
	HTTPClient *http.Client
}

// Client is the typed HTTP SDK for the service-site API.
type Client struct {
	http    *http.Client
	baseURL string
	cfg     Config
	clock   clock.Clock

	mu    sync.RWMutex
	token string
}

// ImageFile is one photo to upload.
type ImageFile struct {
	Name    string
	Content io.Reader
}

// AddServiceRequest describes a new service.
type AddServiceRequest struct {
	Name        string
	Description string
	Images      []ImageFile
	// CoverPhoto names one of Images by file name, or an image path.
	CoverPhoto string
}

// UpdateServiceRequest describes a partial update. Empty fields are left
// unchanged on the server.
type UpdateServiceRequest struct {
	Name           string
	Description    string
	Images         []ImageFile
	ImagesToDelete []string
	CoverPhoto     string
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Problem    types.ErrorResponse
}

func (e *APIError) Error() string {
	detail := e.Problem.Detail
	if detail == "" {
		detail = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("servicesite: %d: %s", e.StatusCode, detail)
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	return statusOf(err) == http.StatusNotFound
}

// IsUnauthorized reports whether err is a 401 response.
func IsUnauthorized(err error) bool {
	return statusOf(err) == http.StatusUnauthorized
}

func statusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("client: BaseURL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("client: invalid BaseURL: %w", err)
	}
	baseURL = strings.TrimRight(baseURL, "/")

	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	cfg.BaseURL = baseURL

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		http:    httpClient,
		baseURL: baseURL,
		cfg:     cfg,
		clock:   clock.WallClock,
		token:   strings.TrimSpace(cfg.Token),
	}, nil
}

// Login exchanges the admin password for a session token, which the client
// uses for subsequent admin calls.
func (c *Client) Login(ctx context.Context, password string) (*types.LoginResponse, error) {
	body, err := json.Marshal(types.LoginRequest{Password: password})
	if err != nil {
		return nil, fmt.Errorf("encoding login request: %w", err)
	}

	var result types.LoginResponse
	if err := c.send(ctx, http.MethodPost, loginPath, "application/json", bytes.NewReader(body), &result); err != nil {
		return nil, fmt.Errorf("logging in: %w", err)
	}

	c.mu.Lock()
	c.token = result.Token
	c.mu.Unlock()
	return &result, nil
}

// Logout revokes the current session token.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.send(ctx, http.MethodPost, logoutPath, "", nil, nil); err != nil {
		return fmt.Errorf("logging out: %w", err)
	}
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
	return nil
}

// ListServices returns all services in catalog order.
func (c *Client) ListServices(ctx context.Context) ([]types.Service, error) {
	var result types.ServiceList
	if err := c.get(ctx, servicesPath, &result); err != nil {
		return nil, fmt.Errorf("listing services: %w", err)
	}
	return result.Services, nil
}

// GetService returns one service by id.
func (c *Client) GetService(ctx context.Context, id string) (*types.Service, error) {
	path, err := servicePath(servicesPath, id)
	if err != nil {
		return nil, err
	}
	var result types.Service
	if err := c.get(ctx, path, &result); err != nil {
		return nil, fmt.Errorf("getting service %q: %w", id, err)
	}
	return &result, nil
}

// CatalogDocument returns the persisted catalog document.
func (c *Client) CatalogDocument(ctx context.Context) (*types.ServiceList, error) {
	var result types.ServiceList
	if err := c.get(ctx, catalogPath, &result); err != nil {
		return nil, fmt.Errorf("reading catalog document: %w", err)
	}
	return &result, nil
}

// AddService creates a service from the given fields and photos.
func (c *Client) AddService(ctx context.Context, req AddServiceRequest) (*types.Service, error) {
	body, contentType, err := encodeForm(map[string][]string{
		types.FieldName:        {req.Name},
		types.FieldDescription: {req.Description},
		types.FieldCoverPhoto:  nonEmpty(req.CoverPhoto),
	}, req.Images)
	if err != nil {
		return nil, err
	}
	return c.mutate(ctx, http.MethodPost, adminServicesPath, contentType, body, "adding service")
}

// UpdateService applies a partial update to a service.
func (c *Client) UpdateService(ctx context.Context, id string, req UpdateServiceRequest) (*types.Service, error) {
	path, err := servicePath(adminServicesPath, id)
	if err != nil {
		return nil, err
	}
	body, contentType, err := encodeForm(map[string][]string{
		types.FieldName:           nonEmpty(req.Name),
		types.FieldDescription:    nonEmpty(req.Description),
		types.FieldCoverPhoto:     nonEmpty(req.CoverPhoto),
		types.FieldImagesToDelete: req.ImagesToDelete,
	}, req.Images)
	if err != nil {
		return nil, err
	}
	return c.mutate(ctx, http.MethodPut, path, contentType, body, fmt.Sprintf("updating service %q", id))
}

// DeleteService removes a service and returns its last state.
func (c *Client) DeleteService(ctx context.Context, id string) (*types.Service, error) {
	path, err := servicePath(adminServicesPath, id)
	if err != nil {
		return nil, err
	}
	return c.mutate(ctx, http.MethodDelete, path, "", nil, fmt.Sprintf("deleting service %q", id))
}

// DeleteImage removes one image from a service.
func (c *Client) DeleteImage(ctx context.Context, id, imagePath string) (*types.Service, error) {
	path, err := servicePath(adminServicesPath, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(imagePath) == "" {
		return nil, fmt.Errorf("image path is required")
	}
	path += "/images?path=" + url.QueryEscape(imagePath)
	return c.mutate(ctx, http.MethodDelete, path, "", nil, fmt.Sprintf("deleting image from service %q", id))
}

func (c *Client) mutate(ctx context.Context, method, path, contentType string, body io.Reader, action string) (*types.Service, error) {
	var result types.MutationResponse
	if err := c.send(ctx, method, path, contentType, body, &result); err != nil {
		return nil, fmt.Errorf("%s: %w", action, err)
	}
	if result.Service == nil {
		return nil, fmt.Errorf("%s: response carried no service", action)
	}
	return result.Service, nil
}

// get retries transient failures with exponential backoff.
func (c *Client) get(ctx context.Context, path string, out any) error {
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			return c.send(ctx, http.MethodGet, path, "", nil, out)
		},
		IsFatalError: func(err error) bool {
			return !retryable(err)
		},
		Attempts:    c.cfg.MaxRetries + 1,
		Delay:       retryBackoffBase,
		MaxDelay:    retryBackoffMax,
		BackoffFunc: retry.DoubleDelay,
		Clock:       c.clock,
		Stop:        ctx.Done(),
	})
	switch {
	case err == nil:
		return nil
	case retry.IsRetryStopped(err):
		return ctx.Err()
	case retry.IsAttemptsExceeded(err):
		return retry.LastError(err)
	}
	return err
}

func (c *Client) send(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if len(data) > 0 {
			_ = json.Unmarshal(data, &apiErr.Problem)
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= http.StatusInternalServerError
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

func encodeForm(fields map[string][]string, images []ImageFile) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for key, values := range fields {
		for _, v := range values {
			if err := mw.WriteField(key, v); err != nil {
				return nil, "", fmt.Errorf("encoding field %s: %w", key, err)
			}
		}
	}
	for _, img := range images {
		part, err := mw.CreateFormFile(types.FieldImages, img.Name)
		if err != nil {
			return nil, "", fmt.Errorf("encoding image %q: %w", img.Name, err)
		}
		if _, err := io.Copy(part, img.Content); err != nil {
			return nil, "", fmt.Errorf("encoding image %q: %w", img.Name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("encoding form: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

func servicePath(prefix, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("service id is required")
	}
	return prefix + "/" + url.PathEscape(id), nil
}

func nonEmpty(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return []string{v}
}
