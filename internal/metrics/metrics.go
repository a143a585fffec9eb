// Package metrics exposes Prometheus collectors for catalog and image
// operations.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brightline-electric/servicesite/internal/model"
)

const namespace = "servicesite"

// Result label values.
const (
	ResultOK             = "ok"
	ResultInvalid        = "invalid"
	ResultNotFound       = "not_found"
	ResultError          = "error"
	ResultMissing        = "missing"
	ResultNotInitialized = "not_initialized"
)

// Recorder owns a private registry so tests and multiple servers never
// collide on the default one. A nil *Recorder is a valid no-op.
type Recorder struct {
	registry      *prometheus.Registry
	operations    *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	imagesStored  prometheus.Counter
	imagesDeleted *prometheus.CounterVec
	services      prometheus.Gauge
}

// NewRecorder registers all collectors plus the Go and process collectors.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "operations_total",
			Help:      "Catalog operations by operation and result.",
		}, []string{"operation", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "operation_duration_seconds",
			Help:      "Catalog operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		imagesStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_stored_total",
			Help:      "Image files written to the image store.",
		}),
		imagesDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_deleted_total",
			Help:      "Image file deletions by result.",
		}, []string{"result"}),
		services: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "services",
			Help:      "Number of services in the catalog after the last mutation.",
		}),
	}
	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.operations,
		r.duration,
		r.imagesStored,
		r.imagesDeleted,
		r.services,
	)
	return r
}

// ObserveOperation records one catalog operation outcome.
func (r *Recorder) ObserveOperation(operation string, elapsed time.Duration, err error) {
	if r == nil {
		return
	}
	r.operations.WithLabelValues(operation, ResultFor(err)).Inc()
	r.duration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ImageStored counts one written image file.
func (r *Recorder) ImageStored() {
	if r == nil {
		return
	}
	r.imagesStored.Inc()
}

// ImageDeleted counts one deletion attempt.
func (r *Recorder) ImageDeleted(err error) {
	if r == nil {
		return
	}
	result := ResultOK
	switch {
	case errors.Is(err, model.ErrNotFound):
		result = ResultMissing
	case err != nil:
		result = ResultError
	}
	r.imagesDeleted.WithLabelValues(result).Inc()
}

// SetServices records the catalog size.
func (r *Recorder) SetServices(n int) {
	if r == nil {
		return
	}
	r.services.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// ResultFor maps an operation error to its result label.
func ResultFor(err error) string {
	var verr *model.ValidationError
	switch {
	case err == nil:
		return ResultOK
	case errors.As(err, &verr), errors.Is(err, model.ErrNoImages):
		return ResultInvalid
	case errors.Is(err, model.ErrNotFound):
		return ResultNotFound
	case errors.Is(err, model.ErrNotInitialized):
		return ResultNotInitialized
	default:
		return ResultError
	}
}
