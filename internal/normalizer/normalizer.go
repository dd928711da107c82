package normalizer

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ponytojas/go-cr310-ingest/internal/models"
)

// Source tags every reading produced by this service.
const Source = "CR310"

// DefaultConsistencyThreshold is the largest tolerated spread, in °C,
// between the temperature channels of one reading.
const DefaultConsistencyThreshold = 30.0

// Policy decides what happens to a reading whose temperatures disagree.
type Policy string

const (
	// PolicyAdvisory stores the reading with Inconsistent set and a Warning.
	PolicyAdvisory Policy = "advisory"
	// PolicyBlocking rejects the reading with an InconsistentReadingError.
	PolicyBlocking Policy = "blocking"
)

// ParsePolicy maps a configuration value to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyAdvisory:
		return PolicyAdvisory, nil
	case PolicyBlocking:
		return PolicyBlocking, nil
	}
	return "", fmt.Errorf("unknown consistency policy %q (want advisory or blocking)", s)
}

// Normalizer canonicalizes validated readings.
type Normalizer struct {
	threshold float64
	policy    Policy
	now       func() time.Time
	newID     func() string
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithThreshold sets the temperature spread threshold.
func WithThreshold(t float64) Option {
	return func(n *Normalizer) { n.threshold = t }
}

// WithPolicy sets the consistency policy.
func WithPolicy(p Policy) Option {
	return func(n *Normalizer) { n.policy = p }
}

// WithClock replaces the ingestion clock.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) { n.now = now }
}

// WithIDGenerator replaces the reading id generator.
func WithIDGenerator(gen func() string) Option {
	return func(n *Normalizer) { n.newID = gen }
}

// New returns a Normalizer with the advisory policy and default threshold
// unless overridden.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		threshold: DefaultConsistencyThreshold,
		policy:    PolicyAdvisory,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Policy returns the consistency policy in effect.
func (n *Normalizer) Policy() Policy { return n.policy }

// Normalize returns the canonical form of r. Fields the server assigns are
// kept when already set, so Normalize is idempotent.
func (n *Normalizer) Normalize(r models.Reading) (models.Reading, error) {
	out := r
	out.EquipmentID = strings.ToUpper(strings.TrimSpace(r.EquipmentID))

	for _, ch := range models.ChannelSpecs {
		ch.Set(&out.Channels, Round2(ch.Get(&r.Channels)))
	}

	ts, err := ParseTimestamp(r.Timestamp)
	if err != nil {
		return models.Reading{}, err
	}
	out.TimestampAt = ts

	if out.ID == "" {
		out.ID = n.newID()
	}
	if out.IngestedAt.IsZero() {
		out.IngestedAt = n.now()
	}
	out.Source = Source

	out.Inconsistent = false
	out.Warning = ""
	if spread := temperatureSpread(&out.Channels); spread > n.threshold {
		if n.policy == PolicyBlocking {
			return models.Reading{}, &models.InconsistentReadingError{Spread: spread, Threshold: n.threshold}
		}
		out.Inconsistent = true
		out.Warning = fmt.Sprintf("temperature spread %g°C exceeds %g°C", spread, n.threshold)
	}

	return out, nil
}

// Round2 rounds v to two decimals, half to even, on its shortest decimal
// representation: 25.005 becomes 25.00 and 25.015 becomes 25.02.
func Round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).RoundBank(2).Float64()
	return f
}

// ParseTimestamp parses s as TimestampLayout in UTC. The value must format
// back to s exactly.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(models.TimestampLayout, s)
	if err != nil || t.Format(models.TimestampLayout) != s {
		return time.Time{}, &models.TimestampFormatError{Value: s}
	}
	return t, nil
}

func temperatureSpread(c *models.Channels) float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, ch := range models.ChannelSpecs {
		if !ch.Temperature {
			continue
		}
		v := ch.Get(c)
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi < lo {
		return 0
	}
	return Round2(hi - lo)
}
