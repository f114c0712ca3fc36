// Package metrics holds the Prometheus collectors shared by the pipeline services.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EpisodesInserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedmaster_episodes_inserted_total",
		Help: "Episodes stored for the first time",
	})

	EpisodesDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedmaster_episodes_duplicate_total",
		Help: "Fetched episodes whose id was already stored",
	})

	SourceFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedmaster_source_failures_total",
		Help: "Sources skipped because the fetch failed",
	}, []string{"source"})

	FeedItems = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "feedmaster_feed_items",
		Help: "Items in the last published feed",
	})

	GenerateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "feedmaster_generate_duration_seconds",
		Help:    "Time spent rendering and publishing the feed",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
	})
)
