// Package metrics exposes Prometheus counters and gauges for the itk
// producer's decode and publish path.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// playbackStates maps state names to the numeric values reported by the
// itk_playback_state gauge.
var playbackStates = map[string]float64{
	"idle":      0,
	"loading":   1,
	"playing":   2,
	"paused":    3,
	"buffering": 4,
	"error":     5,
}

// Metrics holds the producer's Prometheus instruments. A nil *Metrics is
// valid and turns every method into a no-op, so wiring metrics stays
// optional for embedders and tests.
type Metrics struct {
	registry          *prometheus.Registry
	framesDecoded     prometheus.Counter
	framesPublished   prometheus.Counter
	framesSkipped     prometheus.Counter
	decodeErrors      prometheus.Counter
	hwTransferErrors  prometheus.Counter
	lastPTSMs         prometheus.Gauge
	playbackStateCode prometheus.Gauge
}

// New creates and registers the producer metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	framesDecoded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "itk_frames_decoded_total",
		Help: "Total number of frames decoded from the source",
	})
	framesPublished := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "itk_frames_published_total",
		Help: "Total number of frames physically written to shared memory",
	})
	framesSkipped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "itk_frames_skipped_total",
		Help: "Total number of frames skipped because the timestamp was unchanged",
	})
	decodeErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "itk_decode_errors_total",
		Help: "Total number of fatal decode or load errors",
	})
	hwTransferErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "itk_hw_transfer_errors_total",
		Help: "Total number of GPU-to-system-memory frame transfers that failed",
	})
	lastPTSMs := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "itk_last_pts_ms",
		Help: "Presentation timestamp of the most recently published frame",
	})
	playbackStateCode := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "itk_playback_state",
		Help: "Current playback state (0=idle 1=loading 2=playing 3=paused 4=buffering 5=error)",
	})

	registry.MustRegister(
		framesDecoded,
		framesPublished,
		framesSkipped,
		decodeErrors,
		hwTransferErrors,
		lastPTSMs,
		playbackStateCode,
	)

	return &Metrics{
		registry:          registry,
		framesDecoded:     framesDecoded,
		framesPublished:   framesPublished,
		framesSkipped:     framesSkipped,
		decodeErrors:      decodeErrors,
		hwTransferErrors:  hwTransferErrors,
		lastPTSMs:         lastPTSMs,
		playbackStateCode: playbackStateCode,
	}
}

// IncFramesDecoded increments the decoded-frame counter.
func (m *Metrics) IncFramesDecoded() {
	if m != nil {
		m.framesDecoded.Inc()
	}
}

// IncFramesPublished increments the published-frame counter.
func (m *Metrics) IncFramesPublished() {
	if m != nil {
		m.framesPublished.Inc()
	}
}

// IncFramesSkipped increments the frame-skip counter.
func (m *Metrics) IncFramesSkipped() {
	if m != nil {
		m.framesSkipped.Inc()
	}
}

// IncDecodeErrors increments the decode-error counter.
func (m *Metrics) IncDecodeErrors() {
	if m != nil {
		m.decodeErrors.Inc()
	}
}

// IncHWTransferErrors increments the hardware-transfer failure counter.
func (m *Metrics) IncHWTransferErrors() {
	if m != nil {
		m.hwTransferErrors.Inc()
	}
}

// SetLastPTS records the timestamp of the newest published frame.
func (m *Metrics) SetLastPTS(ptsMs int64) {
	if m != nil {
		m.lastPTSMs.Set(float64(ptsMs))
	}
}

// SetPlaybackState records the player's current state.
func (m *Metrics) SetPlaybackState(state string) {
	if m != nil {
		m.playbackStateCode.Set(playbackStates[state])
	}
}

// Handler returns an http.Handler serving the registry in Prometheus text
// format. updateGauges, if non-nil, runs before each scrape to refresh
// gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
