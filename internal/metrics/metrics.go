// Package metrics содержит Prometheus-метрики поиска и жизненного цикла медиа.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "media_search"

var (
	// SearchDuration — длительность поиска. Labels: result (ok, validation, unavailable, error)
	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "Duration of similarity search requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"result"},
	)

	// SearchFallbackTotal — поиски, где ни один результат не прошёл порог похожести.
	SearchFallbackTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "fallback_total",
			Help:      "Total number of searches answered with the top fallback results",
		},
	)

	// IndexQueryDuration — длительность запроса к индексу. Labels: modality
	IndexQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "query_duration_seconds",
			Help:      "Duration of nearest neighbour queries in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"modality"},
	)

	// URLMintTotal — выпуск ссылок. Labels: result (signed, direct, error)
	URLMintTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "urls",
			Name:      "mint_total",
			Help:      "Total number of presigned url mint attempts by result",
		},
		[]string{"result"},
	)

	// URLRefreshTotal — обновление ссылок. Labels: result (refreshed, fresh, skipped, error)
	URLRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "urls",
			Name:      "refresh_items_total",
			Help:      "Total number of url refresh items by result",
		},
		[]string{"result"},
	)

	// AssetsIngestedTotal — загрузка медиа. Labels: kind, result (ok, error)
	AssetsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "assets_total",
			Help:      "Total number of ingested assets by kind and result",
		},
		[]string{"kind", "result"},
	)

	// EmbeddingsTotal — индексация эмбеддингов. Labels: modality, result (ok, error)
	EmbeddingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "embeddings_total",
			Help:      "Total number of indexed embeddings by modality and result",
		},
		[]string{"modality", "result"},
	)

	// OutboxPublishedTotal — публикация событий outbox. Labels: result (ok, error)
	OutboxPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "published_total",
			Help:      "Total number of outbox events published to kafka",
		},
		[]string{"result"},
	)
)
