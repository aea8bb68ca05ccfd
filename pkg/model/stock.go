package model

import "slices"

// StockSnapshot one matching security as read at evaluation time.
// Replaced wholesale on every re-evaluation. A nil number is a value the
// screening service reported as null or could not give as a finite number.
type StockSnapshot struct {
	Symbol        string   `json:"symbol"`
	Name          string   `json:"name"`
	Price         *float64 `json:"price"`
	MarketCap     *float64 `json:"market_cap"`
	PERatio       *float64 `json:"pe_ratio"`
	Sector        string   `json:"sector"`
	Industry      string   `json:"industry"`
	DividendYield *float64 `json:"dividend_yield"`
	Beta          *float64 `json:"beta"`

	// Unreported lists the keys the service left out of the record entirely.
	Unreported []string `json:"-"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// FieldValue exposes the snapshot to local criteria matching. Keys the
// service never sent report ok=false. A null number reports ok=true with a
// nil value, which fails any comparison.
func (s StockSnapshot) FieldValue(field string) (any, bool) {
	if slices.Contains(s.Unreported, field) {
		return nil, false
	}
	switch field {
	case "price":
		return floatValue(s.Price), true
	case "market_cap":
		return floatValue(s.MarketCap), true
	case "pe_ratio":
		return floatValue(s.PERatio), true
	case "dividend_yield":
		return floatValue(s.DividendYield), true
	case "beta":
		return floatValue(s.Beta), true
	case "sector":
		return s.Sector, true
	case "industry":
		return s.Industry, true
	default:
		return nil, false
	}
}

func floatValue(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

// Symbols symbols of snapshots, in order
func Symbols(stocks []StockSnapshot) []string {
	out := make([]string, 0, len(stocks))
	for _, s := range stocks {
		out = append(out, s.Symbol)
	}
	return out
}
