package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/brightline-electric/servicesite/internal/model"
)

func TestResultFor(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ResultOK},
		{&model.ValidationError{Fields: []model.FieldError{{Field: "name"}}}, ResultInvalid},
		{model.ErrNoImages, ResultInvalid},
		{fmt.Errorf("service %q: %w", "x", model.ErrNotFound), ResultNotFound},
		{model.ErrNotInitialized, ResultNotInitialized},
		{errors.New("disk on fire"), ResultError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ResultFor(tt.err), "%v", tt.err)
	}
}

func TestRecorder_Counts(t *testing.T) {
	r := NewRecorder()

	r.ObserveOperation("add", 10*time.Millisecond, nil)
	r.ObserveOperation("add", time.Millisecond, model.ErrNoImages)
	r.ImageStored()
	r.ImageStored()
	r.ImageDeleted(nil)
	r.ImageDeleted(model.ErrNotFound)
	r.SetServices(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.operations.WithLabelValues("add", ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.operations.WithLabelValues("add", ResultInvalid)))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.imagesStored))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.imagesDeleted.WithLabelValues(ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.imagesDeleted.WithLabelValues(ResultMissing)))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.services))
}

func TestRecorder_Handler(t *testing.T) {
	r := NewRecorder()
	r.ObserveOperation("list", time.Millisecond, nil)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "servicesite_catalog_operations_total")
	assert.Contains(t, rec.Body.String(), "servicesite_catalog_operation_duration_seconds")
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveOperation("add", time.Second, nil)
		r.ImageStored()
		r.ImageDeleted(nil)
		r.SetServices(1)
	})

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
