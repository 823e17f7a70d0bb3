// Package metrics exposes Prometheus counters for moderation, polls and the
// conversation command.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "harold"

// Metrics holds the bot's collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	Punishments  *prometheus.CounterVec
	Polls        *prometheus.CounterVec
	ChatRequests *prometheus.CounterVec
}

// NewRegistry creates a Prometheus registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// New creates and registers the bot metrics on the given registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Punishments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "punishments_total",
			Help:      "Punishment procedures run, by kind and outcome status.",
		}, []string{"kind", "status"}),
		Polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Poll phase transitions, by phase.",
		}, []string{"phase"}),
		ChatRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_requests_total",
			Help:      "Completion requests, by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(m.Punishments, m.Polls, m.ChatRequests)
	return m
}

// RegisterTaskGauge exposes the number of running background tasks.
func RegisterTaskGauge(reg prometheus.Registerer, count func() int) {
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "background_tasks",
		Help:      "Background tasks (punishment reversals, polls) currently running.",
	}, func() float64 { return float64(count()) }))
}

func (m *Metrics) ObservePunishment(kind, status string) {
	if m == nil {
		return
	}
	m.Punishments.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) ObservePollPhase(phase string) {
	if m == nil {
		return
	}
	m.Polls.WithLabelValues(phase).Inc()
}

func (m *Metrics) ObserveChat(result string) {
	if m == nil {
		return
	}
	m.ChatRequests.WithLabelValues(result).Inc()
}

// Handler returns an http.Handler that serves Prometheus metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
