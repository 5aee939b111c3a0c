package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdfeditor",
			Name:      "operations_total",
			Help:      "Total editor operations by operation and result",
		},
		[]string{"op", "result"},
	)

	operationLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pdfeditor",
			Name:      "operation_duration_seconds",
			Help:      "Duration of editor operations",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	pages = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pdfeditor",
			Name:      "pages",
			Help:      "Pages currently in the session",
		},
	)

	selected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pdfeditor",
			Name:      "selected_pages",
			Help:      "Pages currently selected or targeted for replacement",
		},
	)

	downgrades = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdfeditor",
			Name:      "raster_downgrades_total",
			Help:      "Rasterizations rendered below the requested quality",
		},
		[]string{"from", "to"},
	)

	compressionRatio = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pdfeditor",
			Name:      "compression_ratio",
			Help:      "Size reduction percentage of recompressed documents",
			Buckets:   []float64{-50, 0, 10, 25, 50, 75, 90},
		},
		[]string{"tier"},
	)

	skipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdfeditor",
			Name:      "skipped_pages_total",
			Help:      "Pages skipped because their source bytes were missing",
		},
		[]string{"op"},
	)
)

// Init registers collectors.
func Init() {
	prometheus.MustRegister(operations, operationLatency, pages, selected, downgrades, compressionRatio, skipped)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveOperation(op, result string, dur time.Duration) {
	operations.WithLabelValues(op, result).Inc()
	operationLatency.WithLabelValues(op).Observe(dur.Seconds())
}

func IncDowngrade(from, to string) { downgrades.WithLabelValues(from, to).Inc() }

func ObserveCompression(tier string, ratio float64) {
	compressionRatio.WithLabelValues(tier).Observe(ratio)
}

func IncSkipped(op string) { skipped.WithLabelValues(op).Inc() }

func SetPages(n int)    { pages.Set(float64(n)) }
func SetSelected(n int) { selected.Set(float64(n)) }
