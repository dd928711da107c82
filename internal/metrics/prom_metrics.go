package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ponytojas/go-cr310-ingest/internal/ingest"
)

// PromRecorder exports pipeline and query measurements to Prometheus.
type PromRecorder struct {
	ingested     *prometheus.CounterVec
	ingestLat    prometheus.Histogram
	inconsistent prometheus.Counter
	queries      *prometheus.CounterVec
	queryLat     prometheus.Histogram
}

var _ ingest.Recorder = (*PromRecorder)(nil)

// NewPromRecorder creates the collectors and registers them on reg.
func NewPromRecorder(reg prometheus.Registerer) *PromRecorder {
	p := &PromRecorder{
		ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cr310_readings_ingested_total",
			Help: "Ingest attempts by outcome (stored, a client error code, or unavailable).",
		}, []string{"outcome"}),
		ingestLat: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cr310_ingest_duration_seconds",
			Help:    "Time from raw payload to stored confirmation or rejection.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		inconsistent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cr310_readings_inconsistent_total",
			Help: "Stored readings flagged by the temperature consistency check.",
		}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cr310_queries_total",
			Help: "Read requests by outcome.",
		}, []string{"outcome"}),
		queryLat: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cr310_query_duration_seconds",
			Help:    "Read request latency.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
	}
	reg.MustRegister(p.ingested, p.ingestLat, p.inconsistent, p.queries, p.queryLat)
	return p
}

func (p *PromRecorder) IngestOutcome(outcome string, elapsed time.Duration) {
	p.ingested.WithLabelValues(outcome).Inc()
	p.ingestLat.Observe(elapsed.Seconds())
}

func (p *PromRecorder) Flagged() {
	p.inconsistent.Inc()
}

func (p *PromRecorder) QueryOutcome(outcome string, elapsed time.Duration) {
	p.queries.WithLabelValues(outcome).Inc()
	p.queryLat.Observe(elapsed.Seconds())
}
