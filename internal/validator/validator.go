package validator

import (
	"encoding/json"
	"math"
	"sort"
	"strings"

	"github.com/ponytojas/go-cr310-ingest/internal/models"
)

// Result is the typed reading extracted from a payload that passed validation.
type Result struct {
	Reading models.Reading
	// Unknown lists payload keys outside the schema, sorted. They never fail
	// validation.
	Unknown []string
}

// Validate checks structure, required fields and channel ranges, in that
// order. The first failing phase ends validation and its error lists every
// offending field of that phase. Validate has no side effects.
func Validate(payload map[string]any) (Result, error) {
	if err := checkStructure(payload); err != nil {
		return Result{}, err
	}
	if err := checkRequired(payload); err != nil {
		return Result{}, err
	}

	var r models.Reading
	r.EquipmentID = payload[models.FieldEquipmentID].(string)
	r.Timestamp = payload[models.FieldTimestamp].(string)
	for _, ch := range models.ChannelSpecs {
		v, _ := toFloat(payload[ch.Name])
		ch.Set(&r.Channels, v)
	}

	if err := checkRanges(&r.Channels); err != nil {
		return Result{}, err
	}

	return Result{Reading: r, Unknown: unknownFields(payload)}, nil
}

func checkStructure(payload map[string]any) error {
	var bad []models.FieldKind

	if v, ok := payload[models.FieldEquipmentID]; ok {
		if s, isStr := v.(string); !isStr || strings.TrimSpace(s) == "" {
			bad = append(bad, models.FieldKind{Field: models.FieldEquipmentID, Expected: "a non-empty string"})
		}
	}
	for _, ch := range models.ChannelSpecs {
		v, ok := payload[ch.Name]
		if !ok {
			continue
		}
		if _, isNum := toFloat(v); !isNum {
			bad = append(bad, models.FieldKind{Field: ch.Name, Expected: "a finite number"})
		}
	}
	if v, ok := payload[models.FieldTimestamp]; ok {
		if _, isStr := v.(string); !isStr {
			bad = append(bad, models.FieldKind{Field: models.FieldTimestamp, Expected: "a string"})
		}
	}

	if len(bad) > 0 {
		return &models.SchemaError{Fields: bad}
	}
	return nil
}

func checkRequired(payload map[string]any) error {
	var missing []string
	for _, f := range models.RequiredFields() {
		if _, ok := payload[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return &models.MissingFieldError{Fields: missing}
	}
	return nil
}

func checkRanges(c *models.Channels) error {
	var out []models.RangeViolation
	for _, ch := range models.ChannelSpecs {
		v := ch.Get(c)
		if !ch.InRange(v) {
			out = append(out, models.RangeViolation{Field: ch.Name, Value: v, Min: ch.Min, Max: ch.Max})
		}
	}
	if len(out) > 0 {
		return &models.RangeError{Violations: out}
	}
	return nil
}

func unknownFields(payload map[string]any) []string {
	known := make(map[string]struct{}, len(models.ChannelSpecs)+2)
	for _, f := range models.RequiredFields() {
		known[f] = struct{}{}
	}
	var unknown []string
	for k := range payload {
		if _, ok := known[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	return unknown
}

// toFloat accepts Go numeric kinds and json.Number. Booleans, strings, nil
// and non-finite values are not numbers here.
func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int8:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint8:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
