// Package metrics collects prometheus metrics of an alignment run and
// exports them in the node exporter textfile format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/524D/mzalign/internal/spot"
)

// Recorder holds the metrics of one run in its own registry. It
// implements align.Observer.
type Recorder struct {
	reg *prometheus.Registry

	featuresLoaded *prometheus.CounterVec
	slots          *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	spots          *prometheus.GaugeVec
}

// New returns a recorder with all metrics registered
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		reg: reg,
		featuresLoaded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mzalign_features_loaded_total",
			Help: "Detected features read per file",
		}, []string{"file"}),
		slots: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mzalign_slots_total",
			Help: "Aligned slots per file by how they were filled",
		}, []string{"file", "status"}),
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mzalign_stage_duration_seconds",
			Help:    "Time spent per pipeline stage",
			Buckets: []float64{0.01, 0.1, 1, 10, 100, 1000},
		}, []string{"stage"}),
		spots: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mzalign_spots",
			Help: "Alignment spots after a pipeline stage",
		}, []string{"stage"}),
	}
}

// Registry returns the registry holding the run's metrics
func (r *Recorder) Registry() *prometheus.Registry {
	return r.reg
}

func (r *Recorder) FeaturesLoaded(file spot.File, n int) {
	r.featuresLoaded.WithLabelValues(file.Name).Add(float64(n))
}

func (r *Recorder) SlotsFilled(file spot.File, detected, gapFilled, defaulted int) {
	r.slots.WithLabelValues(file.Name, "detected").Add(float64(detected))
	r.slots.WithLabelValues(file.Name, "gap_filled").Add(float64(gapFilled))
	r.slots.WithLabelValues(file.Name, "default").Add(float64(defaulted))
}

// ObserveStage records the duration of a pipeline stage that started at t
func (r *Recorder) ObserveStage(stage string, t time.Time) {
	r.stageDuration.WithLabelValues(stage).Observe(time.Since(t).Seconds())
}

// SetSpots records the number of spots after a stage
func (r *Recorder) SetSpots(stage string, n int) {
	r.spots.WithLabelValues(stage).Set(float64(n))
}

// WriteTextfile writes all metrics to path, replacing the file atomically
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.reg)
}
