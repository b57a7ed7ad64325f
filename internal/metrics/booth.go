// Package metrics provides Prometheus metrics for the lens booth.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Bind results.
const (
	BindOK         = "ok"
	BindSuperseded = "superseded"
	BindFailed     = "failed"
)

var (
	bindsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lensnode",
		Subsystem: "booth",
		Name:      "binds_total",
		Help:      "Camera source binds by result",
	}, []string{"result"})

	captureFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lensnode",
		Subsystem: "booth",
		Name:      "capture_failures_total",
		Help:      "Camera acquisition failures by reason",
	}, []string{"reason"})

	lensAppliesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "lensnode",
		Subsystem: "booth",
		Name:      "lens_applies_total",
		Help:      "Lenses applied to the session",
	})

	activeStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "lensnode",
		Subsystem: "booth",
		Name:      "active_streams",
		Help:      "Camera streams currently bound (0 or 1)",
	})

	videoInputs = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "lensnode",
		Subsystem: "media",
		Name:      "video_inputs",
		Help:      "Video input devices seen at the last enumeration",
	})

	startupSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "lensnode",
		Subsystem: "booth",
		Name:      "startup_duration_seconds",
		Help:      "Time from Start to a running booth",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	boothPhase = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "lensnode",
		Subsystem: "booth",
		Name:      "phase",
		Help:      "1 for the current booth phase, 0 otherwise",
	}, []string{"phase"})

	// Mirror of the counters for the JSON API, which cannot read promauto values back.
	cacheMu sync.RWMutex
	cache   = BoothMetrics{Binds: map[string]uint64{}, CaptureFailures: map[string]uint64{}}
)

// BoothMetrics is a point-in-time copy of the booth counters.
type BoothMetrics struct {
	Binds           map[string]uint64 `json:"binds" doc:"Binds by result"`
	CaptureFailures map[string]uint64 `json:"capture_failures" doc:"Capture failures by reason"`
	LensApplies     uint64            `json:"lens_applies" doc:"Lenses applied"`
	ActiveStreams   int               `json:"active_streams" doc:"Bound camera streams"`
	VideoInputs     int               `json:"video_inputs" doc:"Video inputs at last enumeration"`
	Phase           string            `json:"phase" doc:"Current booth phase"`
}

// RecordBind counts one finished bind.
func RecordBind(result string) {
	bindsTotal.WithLabelValues(result).Inc()
	update(func(m *BoothMetrics) { m.Binds[result]++ })
}

// RecordCaptureFailure counts one failed camera acquisition.
func RecordCaptureFailure(reason string) {
	captureFailuresTotal.WithLabelValues(reason).Inc()
	update(func(m *BoothMetrics) { m.CaptureFailures[reason]++ })
}

// RecordLensApplied counts one applied lens.
func RecordLensApplied() {
	lensAppliesTotal.Inc()
	update(func(m *BoothMetrics) { m.LensApplies++ })
}

// SetActiveStreams records how many streams are bound.
func SetActiveStreams(n int) {
	activeStreams.Set(float64(n))
	update(func(m *BoothMetrics) { m.ActiveStreams = n })
}

// SetVideoInputs records the size of the last enumeration.
func SetVideoInputs(n int) {
	videoInputs.Set(float64(n))
	update(func(m *BoothMetrics) { m.VideoInputs = n })
}

// ObserveStartup records a successful startup duration.
func ObserveStartup(d time.Duration) {
	startupSeconds.Observe(d.Seconds())
}

// SetPhase marks phase as current.
func SetPhase(phase string) {
	cacheMu.Lock()
	prev := cache.Phase
	cache.Phase = phase
	cacheMu.Unlock()

	if prev != "" && prev != phase {
		boothPhase.WithLabelValues(prev).Set(0)
	}
	boothPhase.WithLabelValues(phase).Set(1)
}

// Get returns a copy of the booth counters.
func Get() BoothMetrics {
	cacheMu.RLock()
	defer cacheMu.RUnlock()

	out := cache
	out.Binds = make(map[string]uint64, len(cache.Binds))
	for k, v := range cache.Binds {
		out.Binds[k] = v
	}
	out.CaptureFailures = make(map[string]uint64, len(cache.CaptureFailures))
	for k, v := range cache.CaptureFailures {
		out.CaptureFailures[k] = v
	}
	return out
}

// HTTPHandler serves every registered metric in the Prometheus text format.
func HTTPHandler() http.Handler {
	return promhttp.Handler()
}

func update(fn func(*BoothMetrics)) {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	fn(&cache)
}
