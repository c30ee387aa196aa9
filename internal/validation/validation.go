// Package validation checks a decoded model response against the analysis
// contract and turns it into a typed result.
package validation

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/spigell/resume-screener/internal/analysis"
	"github.com/spigell/resume-screener/internal/sanitize"
)

const (
	FieldCandidateName  = "nama_kandidat"
	FieldTechnicalScore = "technical_score"
	FieldCultureScore   = "culture_score"
	FieldSummary        = "summary"
	FieldSkills         = "skills"
	FieldJustification  = "justification"

	MinScore = 0
	MaxScore = 100
)

// RequiredFields are checked in this order; the first absent one is reported.
var RequiredFields = []string{
	FieldCandidateName,
	FieldTechnicalScore,
	FieldCultureScore,
	FieldSummary,
	FieldSkills,
	FieldJustification,
}

//go:embed schema.json
var schemaJSON []byte

var loadSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
})

// Validate sanitizes raw, checks it and returns the typed result together with
// the sanitized map that should be persisted as the raw result. raw is not modified.
func Validate(raw map[string]any) (*analysis.Result, map[string]any, error) {
	clean := sanitize.Map(raw)
	if clean == nil {
		clean = map[string]any{}
	}

	for _, key := range RequiredFields {
		if _, ok := clean[key]; !ok {
			return nil, nil, &Error{Kind: KindMissingField, Field: key}
		}
	}

	technical, err := score(clean, FieldTechnicalScore)
	if err != nil {
		return nil, nil, err
	}
	culture, err := score(clean, FieldCultureScore)
	if err != nil {
		return nil, nil, err
	}

	if err := checkSchema(clean); err != nil {
		return nil, nil, err
	}

	result := &analysis.Result{
		CandidateName:  optionalString(clean[FieldCandidateName]),
		TechnicalScore: technical,
		CultureScore:   culture,
		Summary:        optionalString(clean[FieldSummary]),
		Skills:         stringList(clean[FieldSkills]),
	}
	if j, ok := clean[FieldJustification].(map[string]any); ok {
		result.Justification = analysis.Justification{
			PositivePoints: stringList(j["positive_points"]),
			NegativePoints: stringList(j["negative_points"]),
		}
	}
	if result.Justification.PositivePoints == nil {
		result.Justification.PositivePoints = []string{}
	}
	if result.Justification.NegativePoints == nil {
		result.Justification.NegativePoints = []string{}
	}

	return result, clean, nil
}

// score accepts only exact integers in range. json.Number "85.0" is rejected.
func score(m map[string]any, field string) (int, error) {
	v := m[field]
	outOfRange := &Error{Kind: KindScoreOutOfRange, Field: field, Value: v}

	var n int64
	switch val := v.(type) {
	case json.Number:
		i, err := val.Int64()
		if err != nil {
			return 0, outOfRange
		}
		n = i
	case int:
		n = int64(val)
	case int64:
		n = val
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) || val != math.Trunc(val) {
			return 0, outOfRange
		}
		n = int64(val)
	default:
		return 0, outOfRange
	}

	if n < MinScore || n > MaxScore {
		return 0, outOfRange
	}
	return int(n), nil
}

func checkSchema(m map[string]any) error {
	schema, err := loadSchema()
	if err != nil {
		return fmt.Errorf("load response schema: %w", err)
	}

	res, err := schema.Validate(gojsonschema.NewGoLoader(m))
	if err != nil {
		return &Error{Kind: KindInvalidField, Field: "(root)", Detail: err.Error()}
	}
	if res.Valid() {
		return nil
	}

	first := res.Errors()[0]
	return &Error{Kind: KindInvalidField, Field: first.Field(), Detail: first.Description()}
}

func optionalString(v any) string {
	s, _ := v.(string)
	return s
}

// stringList keeps the string entries of a list and drops everything else.
func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return append([]string(nil), list...)
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
