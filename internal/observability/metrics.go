package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fw",
		Name:      "frames_processed_total",
		Help:      "Total number of frames processed",
	}, []string{"stream_id"})

	FacesObserved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fw",
		Name:      "faces_observed_total",
		Help:      "Total number of face observations fed to the tracker",
	}, []string{"stream_id"})

	ObservationsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fw",
		Name:      "observations_rejected_total",
		Help:      "Observations the tracker declined to assign",
	}, []string{"stream_id"})

	IdentitiesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fw",
		Name:      "identities_created_total",
		Help:      "Total identities created by pending-track promotion",
	})

	IdentitiesMerged = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fw",
		Name:      "identities_merged_total",
		Help:      "Identities removed by duplicate consolidation",
	})

	IdentitiesEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fw",
		Name:      "identities_evicted_total",
		Help:      "Identities removed by stale cleanup",
	})

	SuspiciousIdentities = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fw",
		Name:      "suspicious_identities_total",
		Help:      "Identities matched against the watchlist",
	})

	ActiveIdentities = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fw",
		Name:      "active_identities",
		Help:      "Identities currently held in the registry",
	})

	ProcessDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fw",
		Name:      "process_duration_seconds",
		Help:      "Duration of one tracker Process call",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
	})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fw",
		Name:      "inference_duration_seconds",
		Help:      "Duration of ML inference stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	ActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fw",
		Name:      "active_streams",
		Help:      "Number of currently active video streams",
	})

	FramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fw",
		Name:      "frames_dropped_total",
		Help:      "Frames discarded because a bounded queue was full",
	}, []string{"stream_id", "queue"})

	WatchlistEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fw",
		Name:      "watchlist_entries",
		Help:      "Records in the loaded watchlist snapshot",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fw",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fw",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
