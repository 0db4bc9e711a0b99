package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "promptgist", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "promptgist", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	DocumentWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "promptgist", Name: "document_writes_total", Help: "Accepted document store writes by operation."},
		[]string{"op"},
	)
	StaleWrites = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "promptgist", Name: "document_stale_writes_total", Help: "Content writes rejected because their base sequence was outdated."},
	)
	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "promptgist", Name: "realtime_events_published_total", Help: "Change events published by bus type."},
		[]string{"bus"},
	)
	EventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "promptgist", Name: "realtime_events_dropped_total", Help: "Change events dropped because a subscriber buffer was full."},
	)
	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "promptgist", Name: "document_cache_lookups_total", Help: "Document cache lookups by result."},
		[]string{"result"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(DocumentWrites)
	reg.MustRegister(StaleWrites)
	reg.MustRegister(EventsPublished)
	reg.MustRegister(EventsDropped)
	reg.MustRegister(CacheLookups)
}
