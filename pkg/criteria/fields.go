// Package criteria holds the screening filter vocabulary and turns filter
// rows into the compact query string the screening service understands.
package criteria

// Family field family; fundamental and technical fields never overlap
type Family string

const (
	FamilyFundamental Family = "fundamental"
	FamilyTechnical   Family = "technical"
)

// Field a selectable filter field with its display label
type Field struct {
	Name  string `json:"value"`
	Label string `json:"label"`
}

// Option one allowed value of a categorical field
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Operator comparison symbol, passed through verbatim to the screening service
type Operator string

const (
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
)

// Operators the fixed operator set, in display order
var Operators = []Operator{OpGreater, OpLess, OpGreaterEqual, OpLessEqual, OpEqual, OpNotEqual}

// FundamentalFields valuation, dividend, profitability, growth, risk and categorical fields
var FundamentalFields = []Field{
	{"market_cap", "Market Cap"},
	{"price", "Current Price"},
	{"pe_ratio", "P/E Ratio (Trailing)"},
	{"forward_pe", "P/E Ratio (Forward)"},
	{"price_to_book", "Price to Book"},
	{"price_to_sales", "Price to Sales"},
	{"enterprise_to_revenue", "Enterprise to Revenue"},
	{"enterprise_to_ebitda", "Enterprise to EBITDA"},

	{"dividend_yield", "Dividend Yield"},
	{"payout_ratio", "Payout Ratio"},

	{"profit_margin", "Profit Margin"},
	{"operating_margin", "Operating Margin"},
	{"return_on_equity", "Return on Equity (ROE)"},
	{"return_on_assets", "Return on Assets (ROA)"},

	{"revenue_growth", "Revenue Growth"},
	{"earnings_growth", "Earnings Growth"},

	{"beta", "Beta"},
	{"current_ratio", "Current Ratio"},
	{"debt_to_equity", "Debt to Equity"},

	{"sector", "Sector"},
	{"industry", "Industry"},
	{"country", "Country"},
}

// TechnicalFields indicators computed by the screening service
var TechnicalFields = []Field{
	{"rsi", "RSI"},
	{"ma", "Moving Average"},
	{"ema", "Exponential Moving Average"},
	{"macd_hist", "MACD Histogram"},
	{"boll_upper", "Bollinger Bands Upper"},
	{"boll_lower", "Bollinger Bands Lower"},
	{"atr", "Average True Range"},
	{"obv", "On-Balance Volume"},
	{"stoch_k", "Stochastic %K"},
	{"stoch_d", "Stochastic %D"},
	{"roc", "Rate of Change"},
}

// valueOptions closed enumerations; any field not listed here is free text
var valueOptions = map[string][]Option{
	"sector": {
		{"Technology", "Technology"},
		{"Healthcare", "Healthcare"},
		{"Financial Services", "Financial Services"},
		{"Consumer Cyclical", "Consumer Cyclical"},
		{"Consumer Defensive", "Consumer Defensive"},
		{"Communication Services", "Communication Services"},
		{"Industrials", "Industrials"},
		{"Energy", "Energy"},
		{"Basic Materials", "Basic Materials"},
		{"Real Estate", "Real Estate"},
		{"Utilities", "Utilities"},
	},
	"industry": {
		{"Software—Infrastructure", "Software—Infrastructure"},
		{"Software—Application", "Software—Application"},
		{"Semiconductors", "Semiconductors"},
		{"Banks—Diversified", "Banks—Diversified"},
		{"Drug Manufacturers—General", "Drug Manufacturers—General"},
		{"Internet Content & Information", "Internet Content & Information"},
		{"Oil & Gas Integrated", "Oil & Gas Integrated"},
		{"Insurance—Diversified", "Insurance—Diversified"},
		{"Beverages—Non-Alcoholic", "Beverages—Non-Alcoholic"},
		{"Discount Stores", "Discount Stores"},
	},
	"country": {
		{"US", "United States"},
		{"CA", "Canada"},
		{"GB", "United Kingdom"},
		{"DE", "Germany"},
		{"FR", "France"},
		{"JP", "Japan"},
		{"CN", "China"},
		{"IN", "India"},
		{"AU", "Australia"},
		{"BR", "Brazil"},
	},
}

var familyIndex = buildFamilyIndex()

func buildFamilyIndex() map[string]Family {
	idx := make(map[string]Family, len(FundamentalFields)+len(TechnicalFields))
	for _, f := range FundamentalFields {
		idx[f.Name] = FamilyFundamental
	}
	for _, f := range TechnicalFields {
		idx[f.Name] = FamilyTechnical
	}
	return idx
}

// FamilyOf returns the family a field belongs to
func FamilyOf(field string) (Family, bool) {
	fam, ok := familyIndex[field]
	return fam, ok
}

// Fields returns the field list of one family.
func Fields(fam Family) []Field {
	if fam == FamilyTechnical {
		return TechnicalFields
	}
	return FundamentalFields
}

// Label display label of a field, the field name itself when unknown
func Label(field string) string {
	for _, list := range [][]Field{FundamentalFields, TechnicalFields} {
		for _, f := range list {
			if f.Name == field {
				return f.Label
			}
		}
	}
	return field
}

// Options returns the closed value set of a categorical field.
func Options(field string) ([]Option, bool) {
	opts, ok := valueOptions[field]
	return opts, ok
}

// IsCategorical reports whether the field only accepts its enumerated values.
func IsCategorical(field string) bool {
	_, ok := valueOptions[field]
	return ok
}

// CategoricalFields field name -> allowed values, for clients rendering pickers
func CategoricalFields() map[string][]Option {
	out := make(map[string][]Option, len(valueOptions))
	for k, v := range valueOptions {
		out[k] = append([]Option(nil), v...)
	}
	return out
}

// ValidOperator reports whether op is one of the six supported operators.
func ValidOperator(op string) bool {
	for _, o := range Operators {
		if string(o) == op {
			return true
		}
	}
	return false
}

func hasOption(field, value string) bool {
	for _, o := range valueOptions[field] {
		if o.Value == value {
			return true
		}
	}
	return false
}
