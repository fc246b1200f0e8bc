// Package metrics records pass outcomes in a Prometheus registry that can be
// scraped from the bridge or written as a node-exporter textfile.
package metrics

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
	"github.com/psantana5/renderhook/pkg/host"
	"github.com/psantana5/renderhook/pkg/models"
)

// Pass outcomes
const (
	OutcomeSkipped = "skipped"
	OutcomeOK      = "ok"
	OutcomeFailed  = "failed"
)

// Recorder owns the renderhook metric families
type Recorder struct {
	registry *prometheus.Registry

	passes         *prometheus.CounterVec
	stepDuration   *prometheus.HistogramVec
	stepFailures   *prometheus.CounterVec
	devicesEnabled *prometheus.GaugeVec
	deviceFallback prometheus.Gauge
	nodesUpdated   prometheus.Gauge
	rejections     *prometheus.CounterVec
	persistentData prometheus.Gauge

	httpRequests      *prometheus.CounterVec
	httpResponseBytes *prometheus.CounterVec
}

// NewRecorder creates a recorder with its own registry
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		passes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "renderhook_passes_total",
				Help: "Resolution passes by outcome",
			},
			[]string{"outcome"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "renderhook_step_duration_seconds",
				Help:    "Duration of each pass step",
				Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
			},
			[]string{"step"},
		),
		stepFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "renderhook_step_failures_total",
				Help: "Pass steps that ended with an error",
			},
			[]string{"step"},
		),
		devicesEnabled: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "renderhook_devices_enabled",
				Help: "Devices enabled by the last pass, by kind",
			},
			[]string{"kind"},
		),
		deviceFallback: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "renderhook_device_fallback",
			Help: "1 when the last pass found no accelerator and used CPU only",
		}),
		nodesUpdated: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "renderhook_output_nodes_updated",
			Help: "Compositor output nodes whose base path was set by the last pass",
		}),
		rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "renderhook_host_rejections_total",
				Help: "Host mutations refused, by target",
			},
			[]string{"target"},
		),
		persistentData: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "renderhook_persistent_data_enabled",
			Help: "1 when the last pass enabled persistent data",
		}),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "renderhook_bridge_requests_total",
				Help: "Bridge HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpResponseBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "renderhook_bridge_response_bytes_total",
				Help: "Bytes sent in bridge HTTP responses",
			},
			[]string{"method", "route"},
		),
	}

	r.registry.MustRegister(
		r.passes,
		r.stepDuration,
		r.stepFailures,
		r.devicesEnabled,
		r.deviceFallback,
		r.nodesUpdated,
		r.rejections,
		r.persistentData,
		r.httpRequests,
		r.httpResponseBytes,
	)
	return r
}

// Registry returns the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObservePass counts a finished pass
func (r *Recorder) ObservePass(outcome string) {
	r.passes.WithLabelValues(outcome).Inc()
}

// ObserveStep records the duration and result of one step
func (r *Recorder) ObserveStep(step string, d time.Duration, err error) {
	r.stepDuration.WithLabelValues(step).Observe(d.Seconds())
	if err != nil {
		r.stepFailures.WithLabelValues(step).Inc()
	}
}

// SetDevices records the devices enabled by a selection
func (r *Recorder) SetDevices(enabled []models.ComputeDevice, fellBack bool) {
	r.devicesEnabled.Reset()
	for _, d := range enabled {
		r.devicesEnabled.WithLabelValues(string(d.Kind)).Inc()
	}
	if fellBack {
		r.deviceFallback.Set(1)
	} else {
		r.deviceFallback.Set(0)
	}
}

// SetNodesUpdated records how many output nodes were rewritten
func (r *Recorder) SetNodesUpdated(n int) {
	r.nodesUpdated.Set(float64(n))
}

// SetPersistentData records the persistent data decision
func (r *Recorder) SetPersistentData(enabled bool) {
	if enabled {
		r.persistentData.Set(1)
	} else {
		r.persistentData.Set(0)
	}
}

// ObserveRejections counts host rejections by target
func (r *Recorder) ObserveRejections(errs []error) {
	for _, err := range errs {
		target := "unknown"
		var rej *host.RejectionError
		if errors.As(err, &rej) {
			target = rej.Target
		}
		r.rejections.WithLabelValues(target).Inc()
	}
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// WriteTextfile writes the registry to path for the node exporter
// textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

// WriteText dumps all metric families in text format
func (r *Recorder) WriteText(w io.Writer) error {
	families, err := r.registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	encoder := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := encoder.Encode(mf); err != nil {
			return fmt.Errorf("failed to encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
