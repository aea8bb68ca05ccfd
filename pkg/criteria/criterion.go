package criteria

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrMissingCriteria neither family has a complete criterion; raised before any network call
var ErrMissingCriteria = errors.New("at least one complete criterion is required")

// ValidationError a user-correctable problem with one filter row
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid criterion: " + e.Reason
	}
	return fmt.Sprintf("invalid criterion %q: %s", e.Field, e.Reason)
}

// Criterion one filter row: field, operator, value
type Criterion struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// Complete a row takes part in a query only when all three parts are set.
func (c Criterion) Complete() bool {
	return c.Field != "" && c.Operator != "" && c.Value != ""
}

// SetField selects a field. Categorical fields force the operator to "=="
// and drop a value that is not one of their options.
func (c *Criterion) SetField(field string) {
	c.Field = field
	if !IsCategorical(field) {
		return
	}
	c.Operator = string(OpEqual)
	if c.Value != "" && !hasOption(field, c.Value) {
		c.Value = ""
	}
}

// SetOperator is a no-op on categorical fields, which always compare with "==".
func (c *Criterion) SetOperator(op string) {
	if IsCategorical(c.Field) {
		c.Operator = string(OpEqual)
		return
	}
	c.Operator = op
}

// SetValue sets the comparison value. Free-text fields accept anything;
// numeric parseability is left to the screening service.
func (c *Criterion) SetValue(value string) error {
	if IsCategorical(c.Field) && value != "" && !hasOption(c.Field, value) {
		return &ValidationError{Field: c.Field, Reason: fmt.Sprintf("%q is not an allowed value", value)}
	}
	c.Value = value
	return nil
}

// Decimal the value as a number, for fields compared numerically.
func (c Criterion) Decimal() (decimal.Decimal, error) {
	return decimal.NewFromString(strings.TrimSpace(c.Value))
}

// String renders the row exactly as it appears in a compiled query.
func (c Criterion) String() string {
	return c.Field + c.Operator + c.Value
}

// UnmarshalJSON accepts the value as either a JSON string or a JSON number.
func (c *Criterion) UnmarshalJSON(data []byte) error {
	var raw struct {
		Field    string          `json:"field"`
		Operator string          `json:"operator"`
		Value    json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Field = strings.TrimSpace(raw.Field)
	c.Operator = strings.TrimSpace(raw.Operator)
	c.Value = ""

	v := bytes.TrimSpace(raw.Value)
	if len(v) == 0 || bytes.Equal(v, []byte("null")) {
		return nil
	}
	if v[0] == '"' {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return err
		}
		c.Value = strings.TrimSpace(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err != nil {
		return &ValidationError{Field: c.Field, Reason: "value must be a string or a number"}
	}
	c.Value = n.String()
	return nil
}

// Set an ordered list of rows; order only matters for rendering and for the
// compiled string.
type Set []Criterion

// Complete returns the complete rows, order preserved.
func (s Set) Complete() Set {
	out := make(Set, 0, len(s))
	for _, c := range s {
		if c.Complete() {
			out = append(out, c)
		}
	}
	return out
}

// Empty reports whether the set has no complete row.
func (s Set) Empty() bool {
	for _, c := range s {
		if c.Complete() {
			return false
		}
	}
	return true
}

// Validate checks the complete rows of a set submitted for family fam:
// known field of that family, supported operator, allowed categorical value.
// Incomplete rows are ignored.
func (s Set) Validate(fam Family) error {
	for _, c := range s.Complete() {
		got, ok := FamilyOf(c.Field)
		if !ok {
			return &ValidationError{Field: c.Field, Reason: "unknown field"}
		}
		if got != fam {
			return &ValidationError{Field: c.Field, Reason: fmt.Sprintf("not a %s field", fam)}
		}
		if !ValidOperator(c.Operator) {
			return &ValidationError{Field: c.Field, Reason: fmt.Sprintf("unsupported operator %q", c.Operator)}
		}
		if IsCategorical(c.Field) {
			if c.Operator != string(OpEqual) {
				return &ValidationError{Field: c.Field, Reason: "categorical fields only compare with =="}
			}
			if !hasOption(c.Field, c.Value) {
				return &ValidationError{Field: c.Field, Reason: fmt.Sprintf("%q is not an allowed value", c.Value)}
			}
		}
	}
	return nil
}
