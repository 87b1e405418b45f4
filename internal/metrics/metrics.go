package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PageViewsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "insightify_pageviews_ingested_total",
		Help: "Total number of pageviews accepted into the store.",
	})

	EventsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "insightify_events_ingested_total",
		Help: "Total number of custom events accepted into the store.",
	})

	HeatmapPointsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "insightify_heatmap_points_ingested_total",
		Help: "Total number of heatmap observations merged into the store.",
	})

	BatchesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insightify_batches_rejected_total",
		Help: "Total number of ingest batches refused, labelled by record type.",
	}, []string{"record_type"})

	BroadcastsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "insightify_broadcasts_published_total",
		Help: "Total number of messages delivered to realtime subscribers.",
	})

	BroadcastsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "insightify_broadcasts_dropped_total",
		Help: "Total number of messages dropped because a subscriber was full.",
	})

	LiveVisitors = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "insightify_live_visitors",
		Help: "Visitors tracked by the presence registry across all projects.",
	})

	RetentionRowsDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "insightify_retention_rows_deleted_total",
		Help: "Total rows removed by the data retention job.",
	})
)
