package criteria

import (
	"fmt"
	"strings"
)

// Query compiled form of a Set: comma-joined "field+operator+value" segments,
// e.g. "market_cap>1000000000,sector==Technology". Compared as a plain string.
type Query string

// Empty reports whether the query carries no criterion.
func (q Query) Empty() bool {
	return strings.TrimSpace(string(q)) == ""
}

// Compile joins the complete rows of set, in order. Incomplete rows are
// skipped; an empty or all-incomplete set compiles to "".
func Compile(set Set) Query {
	parts := make([]string, 0, len(set))
	for _, c := range set {
		if !c.Complete() {
			continue
		}
		parts = append(parts, c.String())
	}
	return Query(strings.Join(parts, ","))
}

// Parse is the inverse of Compile. Blank segments are ignored; a segment
// with no supported operator or with an empty side is a ValidationError.
func Parse(q Query) (Set, error) {
	if q.Empty() {
		return Set{}, nil
	}
	segments := strings.Split(string(q), ",")
	set := make(Set, 0, len(segments))
	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		c, err := parseSegment(seg)
		if err != nil {
			return nil, err
		}
		set = append(set, c)
	}
	return set, nil
}

// operatorAt returns the operator starting at seg[i], preferring the
// two-character form. A lone '=' or '!' is not an operator.
func operatorAt(seg string, i int) (Operator, bool) {
	if i+1 < len(seg) {
		switch op := Operator(seg[i : i+2]); op {
		case OpGreaterEqual, OpLessEqual, OpEqual, OpNotEqual:
			return op, true
		}
	}
	switch op := Operator(seg[i : i+1]); op {
	case OpGreater, OpLess:
		return op, true
	}
	return "", false
}

// parseSegment splits at the leftmost operator so values may themselves
// contain operator characters.
func parseSegment(seg string) (Criterion, error) {
	for i := 0; i < len(seg); i++ {
		op, ok := operatorAt(seg, i)
		if !ok {
			continue
		}
		field := strings.TrimSpace(seg[:i])
		value := strings.TrimSpace(seg[i+len(op):])
		if field == "" || value == "" {
			return Criterion{}, &ValidationError{Field: field, Reason: fmt.Sprintf("segment %q is incomplete", seg)}
		}
		return Criterion{Field: field, Operator: string(op), Value: value}, nil
	}
	return Criterion{}, &ValidationError{Reason: fmt.Sprintf("segment %q has no operator", seg)}
}

// Endpoint which screening endpoint a pair of queries is sent to
type Endpoint string

const (
	EndpointFundamental Endpoint = "fundamental"
	EndpointTechnical   Endpoint = "technical"
	EndpointCombined    Endpoint = "combined"
)

// Route picks the endpoint for a fundamental/technical query pair. Both
// empty is ErrMissingCriteria.
func Route(fundamental, technical Query) (Endpoint, error) {
	switch {
	case !fundamental.Empty() && !technical.Empty():
		return EndpointCombined, nil
	case !fundamental.Empty():
		return EndpointFundamental, nil
	case !technical.Empty():
		return EndpointTechnical, nil
	default:
		return "", ErrMissingCriteria
	}
}
