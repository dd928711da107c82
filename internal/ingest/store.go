package ingest

import (
	"context"

	"github.com/ponytojas/go-cr310-ingest/internal/models"
)

// Store persists readings.
//
// Insert must enforce (equipo, timestamp) uniqueness in one atomic write and
// return *models.DuplicateError to every losing writer. Failures of the
// medium itself are returned as *models.UnavailableError.
//
// Query returns readings ordered by timestamp descending, ties in insertion
// order, together with the total number of matches.
type Store interface {
	Insert(ctx context.Context, r *models.Reading) error
	Query(ctx context.Context, f models.QueryFilter) (*models.Page, error)
	Ping(ctx context.Context) error
	Close() error
}
