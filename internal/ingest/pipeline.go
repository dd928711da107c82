package ingest

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ponytojas/go-cr310-ingest/internal/models"
	"github.com/ponytojas/go-cr310-ingest/internal/normalizer"
	"github.com/ponytojas/go-cr310-ingest/internal/validator"
)

// Pipeline validates, normalizes and stores single readings. It holds no
// per-request state and is safe for concurrent use.
type Pipeline struct {
	store      Store
	normalizer *normalizer.Normalizer
	recorder   Recorder
	logger     *zap.Logger
}

// NewPipeline wires a Pipeline. A nil recorder disables measurements.
func NewPipeline(store Store, n *normalizer.Normalizer, rec Recorder, logger *zap.Logger) *Pipeline {
	if rec == nil {
		rec = nopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{store: store, normalizer: n, recorder: rec, logger: logger}
}

// Ingest runs one raw payload through validation, normalization and
// persistence. It stops at the first failure and returns exactly one
// classified error: a models.ClientError for bad data or duplicates, or a
// *models.UnavailableError when the store failed.
func (p *Pipeline) Ingest(ctx context.Context, payload map[string]any) (*models.IngestResult, error) {
	start := time.Now()

	res, err := p.ingest(ctx, payload)
	elapsed := time.Since(start)
	if err != nil {
		p.recorder.IngestOutcome(OutcomeOf(err), elapsed)
		return nil, err
	}

	p.recorder.IngestOutcome(OutcomeStored, elapsed)
	if res.Reading.Inconsistent {
		p.recorder.Flagged()
	}
	return res, nil
}

func (p *Pipeline) ingest(ctx context.Context, payload map[string]any) (*models.IngestResult, error) {
	validated, err := validator.Validate(payload)
	if err != nil {
		p.logger.Warn("Validation failed", zap.Error(err))
		return nil, err
	}
	if len(validated.Unknown) > 0 {
		p.logger.Warn("Unexpected fields in reading", zap.Strings("fields", validated.Unknown))
	}

	reading, err := p.normalizer.Normalize(validated.Reading)
	if err != nil {
		p.logger.Warn("Normalization failed",
			zap.String("equipo", validated.Reading.EquipmentID),
			zap.Error(err))
		return nil, err
	}

	fields := []zap.Field{
		zap.String("equipo", reading.EquipmentID),
		zap.String("timestamp", reading.Timestamp),
	}

	if err := p.store.Insert(ctx, &reading); err != nil {
		var dup *models.DuplicateError
		var unavailable *models.UnavailableError
		switch {
		case errors.As(err, &dup):
			p.logger.Warn("Duplicate reading", fields...)
			return nil, err
		case errors.As(err, &unavailable):
			p.logger.Error("Failed to store reading", append(fields, zap.Error(err))...)
			return nil, err
		default:
			p.logger.Error("Failed to store reading", append(fields, zap.Error(err))...)
			return nil, &models.UnavailableError{Op: "insert", Err: err}
		}
	}

	res := &models.IngestResult{Reading: reading}
	if reading.Inconsistent {
		res.Warnings = append(res.Warnings, reading.Warning)
		p.logger.Warn("Inconsistent values detected", append(fields, zap.String("warning", reading.Warning))...)
	}

	p.logger.Info("Reading stored successfully", append(fields, zap.String("id", reading.ID))...)
	return res, nil
}
