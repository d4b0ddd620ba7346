/*
Package factory provides JSON to Go tier table conversion.

PURPOSE:
  Converts JSON multiplier tier definitions into generic.MultiplierTier rows.
  The tier table is administered through the API (and seeded from JSON), so
  every row passes through here before it reaches storage.

JSON SCHEMA:
  {
    "version": "2025-03",
    "tiers": [
      {"range_min": 0, "range_max": 0, "multiplier": 1.0, "bonus_percent": 0},
      {"range_min": 1, "range_max": 2, "multiplier": 1.1, "bonus_percent": 10},
      {"range_min": 5, "multiplier": 1.3, "bonus_percent": 30}
    ]
  }

  A bare array of tiers is accepted too. A missing range_max means unbounded.

ROW RULES (rejected with *ValidationError):
  - range_min >= 0
  - range_max >= range_min when set
  - 0 <= multiplier <= 99
  - 0 <= bonus_percent <= 999

  Table-level problems (gaps, overlaps, no unbounded tier) are not rejected
  here: TierTable.Validate reports them as a configuration problem.

USAGE:
  table, err := factory.ParseTierTable([]byte(factory.DefaultTiersJSON))

SEE ALSO:
  - generic/tier.go: TierTable and Validate
  - api/handlers.go: Tier administration endpoints
*/
package factory

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/warp/loyalty-engine/generic"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// TierJSON is the JSON representation of one multiplier tier.
type TierJSON struct {
	ID           int64   `json:"id,omitempty"`
	RangeMin     int     `json:"range_min" validate:"min=0"`
	RangeMax     *int    `json:"range_max,omitempty" validate:"omitempty,min=0"`
	Multiplier   float64 `json:"multiplier" validate:"min=0,max=99"`
	BonusPercent int     `json:"bonus_percent" validate:"min=0,max=999"`
}

// TierTableJSON is the JSON representation of a whole table.
type TierTableJSON struct {
	Version string     `json:"version,omitempty"`
	Tiers   []TierJSON `json:"tiers" validate:"dive"`
}

// DefaultTiersJSON is the table seeded into an empty database.
const DefaultTiersJSON = `{
  "version": "default",
  "tiers": [
    {"range_min": 0, "range_max": 0, "multiplier": 1.0, "bonus_percent": 0},
    {"range_min": 1, "range_max": 2, "multiplier": 1.1, "bonus_percent": 10},
    {"range_min": 3, "range_max": 4, "multiplier": 1.2, "bonus_percent": 20},
    {"range_min": 5, "multiplier": 1.3, "bonus_percent": 30}
  ]
}`

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError maps field names to human readable problems.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + " " + e.Fields[k]
	}
	return "invalid tier: " + strings.Join(parts, ", ")
}

// Unwrap lets callers treat every row problem as a tier table error.
func (e *ValidationError) Unwrap() error { return generic.ErrInvalidTierTable }

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// ValidateTier checks the row rules of one tier.
func ValidateTier(t TierJSON) error {
	fields := map[string]string{}
	if err := validate.Struct(t); err != nil {
		collectFieldErrors(err, "", fields)
	}
	if t.RangeMax != nil && *t.RangeMax < t.RangeMin {
		fields["range_max"] = fmt.Sprintf("(%d) is below range_min (%d)", *t.RangeMax, t.RangeMin)
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// ValidateTiers checks every row, prefixing field names with the row index.
func ValidateTiers(tiers []TierJSON) error {
	fields := map[string]string{}
	for i, t := range tiers {
		var verr *ValidationError
		if err := ValidateTier(t); errors.As(err, &verr) {
			for k, v := range verr.Fields {
				fields[fmt.Sprintf("tiers[%d].%s", i, k)] = v
			}
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func collectFieldErrors(err error, prefix string, into map[string]string) {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		into[prefix+"tier"] = err.Error()
		return
	}
	for _, fe := range errs {
		into[prefix+fe.Field()] = validationMessage(fe)
	}
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	}
	return "is invalid"
}

// =============================================================================
// PARSING
// =============================================================================

// ParseTier decodes and validates a single tier.
func ParseTier(data []byte) (generic.MultiplierTier, error) {
	var t TierJSON
	if err := decodeStrict(data, &t); err != nil {
		return generic.MultiplierTier{}, fmt.Errorf("parse tier: %w", err)
	}
	if err := ValidateTier(t); err != nil {
		return generic.MultiplierTier{}, err
	}
	return t.ToTier(), nil
}

// ParseTierTable decodes a table object or a bare array of tiers.
func ParseTierTable(data []byte) (generic.TierTable, error) {
	var table TierTableJSON
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := decodeStrict(trimmed, &table.Tiers); err != nil {
			return generic.TierTable{}, fmt.Errorf("parse tier table: %w", err)
		}
	} else if err := decodeStrict(trimmed, &table); err != nil {
		return generic.TierTable{}, fmt.Errorf("parse tier table: %w", err)
	}
	if err := ValidateTiers(table.Tiers); err != nil {
		return generic.TierTable{}, err
	}
	return table.ToTable(), nil
}

func decodeStrict(data []byte, dest any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}

// =============================================================================
// CONVERSION
// =============================================================================

func (t TierJSON) ToTier() generic.MultiplierTier {
	var upper *int
	if t.RangeMax != nil {
		upper = generic.Bound(*t.RangeMax)
	}
	return generic.MultiplierTier{
		ID:           t.ID,
		RangeMin:     t.RangeMin,
		RangeMax:     upper,
		Multiplier:   decimal.NewFromFloat(t.Multiplier),
		BonusPercent: t.BonusPercent,
	}
}

func (tt TierTableJSON) ToTable() generic.TierTable {
	rows := make([]generic.MultiplierTier, len(tt.Tiers))
	for i, t := range tt.Tiers {
		rows[i] = t.ToTier()
	}
	return generic.NewTierTable(tt.Version, rows)
}

// TierToJSON is the inverse of ToTier.
func TierToJSON(t generic.MultiplierTier) TierJSON {
	var upper *int
	if t.RangeMax != nil {
		upper = generic.Bound(*t.RangeMax)
	}
	return TierJSON{
		ID:           t.ID,
		RangeMin:     t.RangeMin,
		RangeMax:     upper,
		Multiplier:   t.Multiplier.InexactFloat64(),
		BonusPercent: t.BonusPercent,
	}
}

// DefaultTiers parses DefaultTiersJSON. It panics on a malformed constant.
func DefaultTiers() generic.TierTable {
	table, err := ParseTierTable([]byte(DefaultTiersJSON))
	if err != nil {
		panic(fmt.Sprintf("default tiers: %v", err))
	}
	return table
}
