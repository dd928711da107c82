package ingest

import (
	"errors"
	"time"

	"github.com/ponytojas/go-cr310-ingest/internal/models"
)

// Outcome labels for successful operations and infrastructure failures.
// Client errors use their Code().
const (
	OutcomeStored      = "stored"
	OutcomeOK          = "ok"
	OutcomeUnavailable = "unavailable"
)

// Recorder receives operational measurements from the pipeline and the
// query service.
type Recorder interface {
	IngestOutcome(outcome string, elapsed time.Duration)
	Flagged()
	QueryOutcome(outcome string, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) IngestOutcome(string, time.Duration) {}
func (nopRecorder) Flagged()                            {}
func (nopRecorder) QueryOutcome(string, time.Duration)  {}

// OutcomeOf maps an error returned by this package to its outcome label.
func OutcomeOf(err error) string {
	var ce models.ClientError
	if errors.As(err, &ce) {
		return ce.Code()
	}
	return OutcomeUnavailable
}
