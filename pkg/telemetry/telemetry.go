// Package telemetry registers the process metrics exposed on /metrics.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// MessagesSent counts committed sends, direct and group.
	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chabrush_messages_sent_total",
		Help: "Messages committed to the store.",
	})
	// MessageMutations counts edits, deletes, reactions and read marks.
	MessageMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chabrush_message_mutations_total",
		Help: "Message mutations committed, by kind.",
	}, []string{"kind"})
	// EventsPublished counts events handed to the delivery engine.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chabrush_events_published_total",
		Help: "Events published to rooms, by type.",
	}, []string{"type"})
	// DeliveriesDropped counts events dropped because a subscriber queue
	// was full. Persisted events remain retrievable from the store.
	DeliveriesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chabrush_deliveries_dropped_total",
		Help: "Events dropped on full subscriber queues.",
	})
	// CallsActive gauges calls currently ringing or active.
	CallsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chabrush_calls_live",
		Help: "Calls in ringing or active state.",
	})
	// Subscribers gauges connected feed subscribers.
	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chabrush_feed_subscribers",
		Help: "Connected event-feed subscribers.",
	})
)

// Handler returns the promhttp handler for the /metrics route.
func Handler() http.Handler { return promhttp.Handler() }
