// Package metrics exposes chat activity as Prometheus metrics.
package metrics

import (
	"context"

	"chatmatch/backend/internal/models"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector is a chathub.EventSink that keeps Prometheus metrics current.
type Collector struct {
	Events          *prometheus.CounterVec
	OnlineUsers     prometheus.Gauge
	ActiveSessions  prometheus.Gauge
	SessionDuration prometheus.Histogram
	MessageLength   prometheus.Histogram
}

// NewCollector creates the metrics and registers them with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatmatch",
			Name:      "events_total",
			Help:      "Chat engine events by type.",
		}, []string{"type"}),
		OnlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chatmatch",
			Name:      "online_users",
			Help:      "Users currently online.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chatmatch",
			Name:      "active_sessions",
			Help:      "Chat sessions currently open.",
		}),
		SessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chatmatch",
			Name:      "session_duration_seconds",
			Help:      "Lifetime of closed chat sessions.",
			Buckets:   prometheus.ExponentialBuckets(5, 3, 8),
		}),
		MessageLength: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chatmatch",
			Name:      "message_length_runes",
			Help:      "Length of relayed messages.",
			Buckets:   []float64{8, 32, 128, 512, 2000},
		}),
	}
	reg.MustRegister(c.Events, c.OnlineUsers, c.ActiveSessions, c.SessionDuration, c.MessageLength)
	return c
}

func (c *Collector) Publish(_ context.Context, ev models.ChatEvent) error {
	c.Events.WithLabelValues(string(ev.Type)).Inc()

	switch ev.Type {
	case models.EventUserOnline:
		c.OnlineUsers.Inc()
	case models.EventUserOffline:
		c.OnlineUsers.Dec()
	case models.EventSessionOpened:
		c.ActiveSessions.Inc()
	case models.EventSessionClosed:
		c.ActiveSessions.Dec()
		if s := ev.Session; s != nil && s.EndedAt != nil {
			c.SessionDuration.Observe(s.EndedAt.Sub(s.StartedAt).Seconds())
		}
	case models.EventMessagePosted:
		if ev.Message != nil {
			c.MessageLength.Observe(float64(len([]rune(ev.Message.Body))))
		}
	}
	return nil
}
