package server

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ponytojas/go-cr310-ingest/internal/ingest"
	"github.com/ponytojas/go-cr310-ingest/internal/models"
)

// Ingester stores one raw reading.
type Ingester interface {
	Ingest(ctx context.Context, payload map[string]any) (*models.IngestResult, error)
}

// Querier serves filtered reads.
type Querier interface {
	Query(ctx context.Context, params ingest.QueryParams) (*models.Page, error)
}

// Pinger reports whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type options struct {
	ingester Ingester
	querier  Querier
	health   Pinger
	gatherer prometheus.Gatherer
	logger   *zap.Logger
}

// ConfigOption configures a Server built by NewServer.
type ConfigOption func(*options) error

// WithIngester sets the service behind POST /api/v1/readings.
func WithIngester(i Ingester) ConfigOption {
	return func(o *options) error {
		if i == nil {
			return errors.New("nil ingester")
		}
		o.ingester = i
		return nil
	}
}

// WithQuerier sets the service behind GET /api/v1/readings.
func WithQuerier(q Querier) ConfigOption {
	return func(o *options) error {
		if q == nil {
			return errors.New("nil querier")
		}
		o.querier = q
		return nil
	}
}

// WithHealthCheck sets the store pinged by /health. Without one, /health
// reports unavailable.
func WithHealthCheck(p Pinger) ConfigOption {
	return func(o *options) error {
		o.health = p
		return nil
	}
}

// WithGatherer selects the registry exposed on /metrics. The default is
// prometheus.DefaultGatherer.
func WithGatherer(g prometheus.Gatherer) ConfigOption {
	return func(o *options) error {
		o.gatherer = g
		return nil
	}
}

// WithLogger sets the request and error logger.
func WithLogger(l *zap.Logger) ConfigOption {
	return func(o *options) error {
		o.logger = l
		return nil
	}
}
