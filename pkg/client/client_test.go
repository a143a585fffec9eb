package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightline-electric/servicesite/internal/auth"
	"github.com/brightline-electric/servicesite/internal/catalog"
	"github.com/brightline-electric/servicesite/internal/config"
	"github.com/brightline-electric/servicesite/internal/imagestore"
	"github.com/brightline-electric/servicesite/internal/server"
	"github.com/brightline-electric/servicesite/internal/store"
	"github.com/brightline-electric/servicesite/pkg/types"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	c, err := New(cfg)
	require.NoError(t, err)
	return c
}

// startSite runs the real router over a temp catalog and images directory.
func startSite(t *testing.T) *httptest.Server {
	t.Helper()
	dir := t.TempDir()

	st := store.NewJSONFileStore(filepath.Join(dir, "services.json"))
	_, err := st.Init(context.Background())
	require.NoError(t, err)
	images, err := imagestore.NewFSStore(filepath.Join(dir, "images"), "/images", 0)
	require.NoError(t, err)
	authn, err := auth.NewAuthenticator(auth.Config{Password: "s3cret"})
	require.NoError(t, err)

	cfg := config.Config{
		ImagesDir:       images.Root(),
		ImagesURLPrefix: "/images",
		MaxUploadBytes:  1 << 20,
		LoginRate:       10,
	}
	srv := server.New(server.Deps{
		Store:   st,
		Manager: catalog.NewManager(st, images),
		Query:   catalog.NewQuery(st, nil),
		Auth:    authn,
	}, cfg, "test", "none", "unknown")

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("requires base url", func(t *testing.T) {
		t.Parallel()
		c, err := New(Config{})
		require.Error(t, err)
		assert.Nil(t, c)
		assert.Contains(t, err.Error(), "BaseURL is required")
	})

	t.Run("applies defaults", func(t *testing.T) {
		t.Parallel()
		c := newTestClient(t, Config{BaseURL: " http://example.invalid/ "})
		assert.Equal(t, "http://example.invalid", c.baseURL)
		assert.Equal(t, defaultTimeout, c.cfg.Timeout)
		assert.Equal(t, defaultMaxRetries, c.cfg.MaxRetries)
	})
}

func TestClient_RetriesTransientReads(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			respondJSON(w, http.StatusServiceUnavailable, types.ErrorResponse{Status: 503, Detail: "warming up"})
			return
		}
		respondJSON(w, http.StatusOK, types.ServiceList{Services: []types.Service{{ID: "a", Name: "Lighting"}}})
	}))
	defer ts.Close()

	c := newTestClient(t, Config{BaseURL: ts.URL})
	services, err := c.ListServices(context.Background())
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_ReturnsLastErrorWhenRetriesRunOut(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		respondJSON(w, http.StatusServiceUnavailable, types.ErrorResponse{Status: 503, Detail: "catalog not initialized"})
	}))
	defer ts.Close()

	c := newTestClient(t, Config{BaseURL: ts.URL, MaxRetries: 1})
	_, err := c.ListServices(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_StopsRetryingWhenContextIsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		cancel()
		respondJSON(w, http.StatusBadGateway, types.ErrorResponse{Status: 502, Detail: "upstream"})
	}))
	defer ts.Close()

	c := newTestClient(t, Config{BaseURL: ts.URL})
	_, err := c.ListServices(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		respondJSON(w, http.StatusNotFound, types.ErrorResponse{Status: 404, Detail: `service "x": not found`})
	}))
	defer ts.Close()

	c := newTestClient(t, Config{BaseURL: ts.URL})
	_, err := c.GetService(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "not found")
	assert.Equal(t, int32(1), calls.Load())

	_, err = c.GetService(context.Background(), " ")
	assert.ErrorContains(t, err, "service id is required")
}

func TestClient_EndToEnd(t *testing.T) {
	ts := startSite(t)
	ctx := context.Background()
	c := newTestClient(t, Config{BaseURL: ts.URL})

	_, err := c.AddService(ctx, AddServiceRequest{Name: "Lighting"})
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))

	_, err = c.Login(ctx, "wrong")
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))

	login, err := c.Login(ctx, "s3cret")
	require.NoError(t, err)
	assert.True(t, login.Success)
	assert.Equal(t, "/upload", login.Redirect)

	svc, err := c.AddService(ctx, AddServiceRequest{
		Name:        "Panel Upgrades",
		Description: "Upgrade to 200A service panels.",
		Images: []ImageFile{
			{Name: "A.png", Content: bytes.NewReader(pngBytes)},
			{Name: "B.png", Content: bytes.NewReader(pngBytes)},
		},
		CoverPhoto: "B.png",
	})
	require.NoError(t, err)
	require.Len(t, svc.Images, 2)
	assert.Equal(t, svc.Images[1], svc.CoverPhoto)

	got, err := c.GetService(ctx, svc.ID)
	require.NoError(t, err)
	assert.Equal(t, svc, got)

	updated, err := c.UpdateService(ctx, svc.ID, UpdateServiceRequest{
		Description:    "Panel upgrades and subpanel installs.",
		ImagesToDelete: []string{svc.Images[0]},
	})
	require.NoError(t, err)
	assert.Equal(t, "Panel Upgrades", updated.Name)
	assert.Equal(t, "Panel upgrades and subpanel installs.", updated.Description)
	assert.Equal(t, []string{svc.Images[1]}, updated.Images)

	afterImage, err := c.DeleteImage(ctx, svc.ID, ts.URL+svc.Images[1])
	require.NoError(t, err)
	assert.Empty(t, afterImage.Images)
	assert.Empty(t, afterImage.CoverPhoto)

	doc, err := c.CatalogDocument(ctx)
	require.NoError(t, err)
	require.Len(t, doc.Services, 1)

	removed, err := c.DeleteService(ctx, svc.ID)
	require.NoError(t, err)
	assert.Equal(t, svc.ID, removed.ID)

	services, err := c.ListServices(ctx)
	require.NoError(t, err)
	assert.Empty(t, services)

	_, err = c.DeleteService(ctx, svc.ID)
	assert.True(t, IsNotFound(err))

	require.NoError(t, c.Logout(ctx))
	_, err = c.DeleteService(ctx, svc.ID)
	assert.True(t, IsUnauthorized(err))
}
