package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PhotosProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facecore",
		Name:      "photos_processed_total",
		Help:      "Total number of photos processed",
	}, []string{"event_id", "outcome"})

	FacesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facecore",
		Name:      "faces_detected_total",
		Help:      "Total number of faces detected, by detector variant",
	}, []string{"detector"})

	FacesMatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facecore",
		Name:      "faces_matched_total",
		Help:      "Total number of faces matched to an existing person",
	}, []string{"event_id"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facecore",
		Name:      "stage_duration_seconds",
		Help:      "Duration of pipeline stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facecore",
		Name:      "queue_depth",
		Help:      "Number of pending photo tasks in the batch queue",
	})

	ActiveLiveScans = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facecore",
		Name:      "active_live_scans",
		Help:      "Number of currently running live-scan capture sessions",
	})

	MatchCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facecore",
		Name:      "match_cache_total",
		Help:      "Matcher snapshot cache hits/misses",
	}, []string{"result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facecore",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facecore",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
