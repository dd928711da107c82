package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ponytojas/go-cr310-ingest/internal/models"
)

// dateOnlyLayout is accepted for filter bounds in addition to
// models.TimestampLayout and means midnight.
const dateOnlyLayout = "2006-01-02"

// QueryParams are the raw read parameters as received by a transport.
// Empty strings mean "not given".
type QueryParams struct {
	EquipmentID string
	StartDate   string
	EndDate     string
	Limit       string
	Offset      string
}

// QueryService turns raw read parameters into a QueryFilter and runs it.
type QueryService struct {
	store    Store
	recorder Recorder
	logger   *zap.Logger
}

// NewQueryService wires a QueryService. A nil recorder disables measurements.
func NewQueryService(store Store, rec Recorder, logger *zap.Logger) *QueryService {
	if rec == nil {
		rec = nopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryService{store: store, recorder: rec, logger: logger}
}

// Query validates params and returns the requested page. Invalid parameters
// yield *models.InvalidFilterError without touching the store.
func (q *QueryService) Query(ctx context.Context, params QueryParams) (*models.Page, error) {
	start := time.Now()

	page, err := q.query(ctx, params)
	if err != nil {
		q.recorder.QueryOutcome(OutcomeOf(err), time.Since(start))
		return nil, err
	}
	q.recorder.QueryOutcome(OutcomeOK, time.Since(start))
	return page, nil
}

func (q *QueryService) query(ctx context.Context, params QueryParams) (*models.Page, error) {
	filter, err := ParseFilter(params)
	if err != nil {
		q.logger.Warn("Invalid query parameters", zap.Error(err))
		return nil, err
	}

	page, err := q.store.Query(ctx, filter)
	if err != nil {
		q.logger.Error("Error retrieving readings", zap.Error(err))
		var unavailable *models.UnavailableError
		if !errors.As(err, &unavailable) {
			err = &models.UnavailableError{Op: "query", Err: err}
		}
		return nil, err
	}

	q.logger.Info("Retrieved readings",
		zap.Int("count", len(page.Readings)),
		zap.Int64("total", page.Total))
	return page, nil
}

// ParseFilter validates raw parameters. Every problem is reported at once.
func ParseFilter(params QueryParams) (models.QueryFilter, error) {
	f := models.QueryFilter{
		EquipmentID: strings.ToUpper(strings.TrimSpace(params.EquipmentID)),
		Limit:       models.DefaultLimit,
	}
	var problems []string

	if s := strings.TrimSpace(params.Limit); s != "" {
		n, err := strconv.Atoi(s)
		switch {
		case errors.Is(err, strconv.ErrRange) && strings.HasPrefix(s, "-"):
			problems = append(problems, "limit must not be negative")
		case errors.Is(err, strconv.ErrRange):
			f.Limit = models.MaxLimit
		case err != nil:
			problems = append(problems, fmt.Sprintf("limit %q is not an integer", params.Limit))
		case n < 0:
			problems = append(problems, "limit must not be negative")
		case n == 0:
			problems = append(problems, "limit must be at least 1")
		case n > models.MaxLimit:
			f.Limit = models.MaxLimit
		default:
			f.Limit = n
		}
	}

	if s := strings.TrimSpace(params.Offset); s != "" {
		n, err := strconv.Atoi(s)
		switch {
		case err != nil:
			problems = append(problems, fmt.Sprintf("offset %q is not an integer", params.Offset))
		case n < 0:
			problems = append(problems, "offset must not be negative")
		default:
			f.Offset = n
		}
	}

	if s := strings.TrimSpace(params.StartDate); s != "" {
		t, err := parseBound(s)
		if err != nil {
			problems = append(problems, fmt.Sprintf("start_date %q must be YYYY-MM-DD or YYYY-MM-DD HH:MM:SS", params.StartDate))
		} else {
			f.Start = &t
		}
	}

	if s := strings.TrimSpace(params.EndDate); s != "" {
		t, err := parseBound(s)
		if err != nil {
			problems = append(problems, fmt.Sprintf("end_date %q must be YYYY-MM-DD or YYYY-MM-DD HH:MM:SS", params.EndDate))
		} else {
			f.End = &t
		}
	}

	if f.Start != nil && f.End != nil && !f.Start.Before(*f.End) {
		problems = append(problems, "start_date must be before end_date")
	}

	if len(problems) > 0 {
		return models.QueryFilter{}, &models.InvalidFilterError{Problems: problems}
	}
	return f, nil
}

func parseBound(s string) (time.Time, error) {
	for _, layout := range []string{models.TimestampLayout, dateOnlyLayout} {
		if t, err := time.Parse(layout, s); err == nil && t.Format(layout) == s {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable date %q", s)
}
