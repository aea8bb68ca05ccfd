package criteria

import (
	"math"

	"github.com/shopspring/decimal"
)

// Fielder exposes the field values a record carries. ok is false when the
// record has no such field.
type Fielder interface {
	FieldValue(field string) (value any, ok bool)
}

// Match re-applies the complete rows of set to rec. Rows whose field rec
// does not carry are skipped. A carried field with a nil or non-finite
// value fails its row. Categorical fields compare as exact strings,
// everything else numerically.
func Match(set Set, rec Fielder) bool {
	for _, c := range set {
		if !c.Complete() {
			continue
		}
		actual, ok := rec.FieldValue(c.Field)
		if !ok {
			continue
		}
		if !matchOne(c, actual) {
			return false
		}
	}
	return true
}

func matchOne(c Criterion, actual any) bool {
	switch v := actual.(type) {
	case string:
		return compareStrings(Operator(c.Operator), v, c.Value)
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
		want, err := c.Decimal()
		if err != nil {
			return false
		}
		return compareDecimals(Operator(c.Operator), decimal.NewFromFloat(v), want)
	case decimal.Decimal:
		want, err := c.Decimal()
		if err != nil {
			return false
		}
		return compareDecimals(Operator(c.Operator), v, want)
	default:
		return false
	}
}

func compareStrings(op Operator, actual, want string) bool {
	switch op {
	case OpEqual:
		return actual == want
	case OpNotEqual:
		return actual != want
	default:
		return false
	}
}

func compareDecimals(op Operator, actual, want decimal.Decimal) bool {
	switch op {
	case OpGreater:
		return actual.GreaterThan(want)
	case OpLess:
		return actual.LessThan(want)
	case OpGreaterEqual:
		return actual.GreaterThanOrEqual(want)
	case OpLessEqual:
		return actual.LessThanOrEqual(want)
	case OpEqual:
		return actual.Equal(want)
	case OpNotEqual:
		return !actual.Equal(want)
	default:
		return false
	}
}
