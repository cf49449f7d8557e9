// Package metrics provides the Prometheus collectors of the playback engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "guildbox"

// Metrics holds the engine's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	activePlayers   prometheus.Gauge
	trackEnds       *prometheus.CounterVec
	snapshotWrites  *prometheus.CounterVec
	recoveryGuilds  *prometheus.CounterVec
	autoplayAppends prometheus.Counter
	backendRequests *prometheus.CounterVec
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		activePlayers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "playback",
			Name:      "active_players",
			Help:      "Number of live per-guild playback controllers.",
		}),
		trackEnds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "playback",
			Name:      "track_ends_total",
			Help:      "Track-end events handled, by end reason.",
		}, []string{"reason"}),
		snapshotWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "writes_total",
			Help:      "Playback snapshot writes, by result.",
		}, []string{"result"}),
		recoveryGuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recovery",
			Name:      "guilds_total",
			Help:      "Guild recovery attempts, by outcome.",
		}, []string{"outcome"}),
		autoplayAppends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "autoplay",
			Name:      "appended_total",
			Help:      "Tracks appended to queues by autoplay.",
		}),
		backendRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lavalink",
			Name:      "requests_total",
			Help:      "Audio backend REST requests, by operation and result.",
		}, []string{"op", "result"}),
	}

	m.registry.MustRegister(
		m.activePlayers,
		m.trackEnds,
		m.snapshotWrites,
		m.recoveryGuilds,
		m.autoplayAppends,
		m.backendRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler returns the HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// PlayerCreated increments the active player gauge.
func (m *Metrics) PlayerCreated() {
	if m == nil {
		return
	}
	m.activePlayers.Inc()
}

// PlayerRemoved decrements the active player gauge.
func (m *Metrics) PlayerRemoved() {
	if m == nil {
		return
	}
	m.activePlayers.Dec()
}

// TrackEnded counts a handled track-end event.
func (m *Metrics) TrackEnded(reason string) {
	if m == nil {
		return
	}
	m.trackEnds.WithLabelValues(reason).Inc()
}

// SnapshotWritten counts a snapshot write attempt.
func (m *Metrics) SnapshotWritten(ok bool) {
	if m == nil {
		return
	}
	m.snapshotWrites.WithLabelValues(result(ok)).Inc()
}

// GuildRecovered counts a guild recovery outcome.
func (m *Metrics) GuildRecovered(outcome string) {
	if m == nil {
		return
	}
	m.recoveryGuilds.WithLabelValues(outcome).Inc()
}

// AutoplayAppended counts tracks appended by autoplay.
func (m *Metrics) AutoplayAppended(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.autoplayAppends.Add(float64(n))
}

// BackendRequest counts an audio backend REST call.
func (m *Metrics) BackendRequest(op string, ok bool) {
	if m == nil {
		return
	}
	m.backendRequests.WithLabelValues(op, result(ok)).Inc()
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
