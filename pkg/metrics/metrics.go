package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus collectors for the reservation engine. Registered on the
// default registry; exposed by the /metrics route.
var (
	ReservationsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reserver_reservations_created_total",
		Help: "Number of reservations committed.",
	})

	ReservationConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reserver_reservation_conflicts_total",
		Help: "Number of booking attempts rejected due to overlap.",
	})

	ReservationsCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reserver_reservations_cancelled_total",
		Help: "Number of reservations cancelled.",
	})

	BusEventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reserver_bus_events_published_total",
		Help: "Domain events published on the in-process bus, by type.",
	}, []string{"event"})

	BusEventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reserver_bus_events_dropped_total",
		Help: "Events dropped because a subscriber channel was full, by subscriber.",
	}, []string{"subscriber"})

	WebhookDeliveryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reserver_webhook_delivery_attempts_total",
		Help: "Webhook delivery attempts by outcome (delivered, retry, failed).",
	}, []string{"outcome"})

	WaitlistOffers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reserver_waitlist_offers_total",
		Help: "Waitlist offers made to waiting users.",
	})

	SocketSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reserver_socket_sessions",
		Help: "Currently attached websocket sessions.",
	})

	SchedulerTickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reserver_scheduler_tick_duration_seconds",
		Help:    "Duration of lifecycle scheduler ticks.",
		Buckets: prometheus.DefBuckets,
	})
)
