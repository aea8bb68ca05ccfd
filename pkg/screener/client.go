package screener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"ScreenRadar/pkg/criteria"
	"ScreenRadar/pkg/model"
)

const defaultTimeout = 30 * time.Second

// RequestError a failed call to the screening service: transport error,
// timeout, non-2xx status or an undecodable body.
type RequestError struct {
	Endpoint string
	Status   int
	Message  string
	Err      error
}

func (e *RequestError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "screening request failed"
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Endpoint, msg, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Endpoint, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Endpoint, msg)
}

func (e *RequestError) Unwrap() error { return e.Err }

// Config gateway settings
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Request one screening call. Index defaults to sp500.
type Request struct {
	Index       model.Index
	Fundamental criteria.Query
	Technical   criteria.Query
	Limit       int
	Reload      bool
	Period      string
	Interval    string
}

// Result normalized screening response. The echoed criteria are kept raw
// because the service echoes its parsed form, not the query string.
type Result struct {
	Count               int                   `json:"count"`
	Index               model.Index           `json:"index"`
	Endpoint            criteria.Endpoint     `json:"endpoint"`
	Stocks              []model.StockSnapshot `json:"stocks"`
	Criteria            json.RawMessage       `json:"criteria,omitempty"`
	FundamentalCriteria json.RawMessage       `json:"fundamental_criteria,omitempty"`
	TechnicalCriteria   json.RawMessage       `json:"technical_criteria,omitempty"`
}

// Client screening service client. Stateless between calls.
type Client struct {
	http *resty.Client
	log  zerolog.Logger
}

func NewClient(cfg Config, log zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/"))
	client.SetTimeout(timeout)
	client.SetHeader("Accept", "application/json")

	return &Client{
		http: client,
		log:  log.With().Str("component", "screener").Logger(),
	}
}

type singleBody struct {
	Index    model.Index    `json:"index"`
	Criteria criteria.Query `json:"criteria"`
	Limit    int            `json:"limit"`
	Reload   bool           `json:"reload"`
	Period   string         `json:"period"`
	Interval string         `json:"interval"`
}

type combinedBody struct {
	Index               model.Index    `json:"index"`
	FundamentalCriteria criteria.Query `json:"fundamental_criteria"`
	TechnicalCriteria   criteria.Query `json:"technical_criteria"`
	Limit               int            `json:"limit"`
	Reload              bool           `json:"reload"`
	Period              string         `json:"period"`
	Interval            string         `json:"interval"`
}

// Screen routes the request to the fundamental, technical or combined
// endpoint. Both queries empty is rejected before any network call.
func (c *Client) Screen(ctx context.Context, req Request) (*Result, error) {
	endpoint, err := criteria.Route(req.Fundamental, req.Technical)
	if err != nil {
		return nil, err
	}
	if req.Index == "" {
		req.Index = model.IndexSP500
	}

	var body any
	switch endpoint {
	case criteria.EndpointFundamental:
		body = singleBody{req.Index, req.Fundamental, req.Limit, req.Reload, req.Period, req.Interval}
	case criteria.EndpointTechnical:
		body = singleBody{req.Index, req.Technical, req.Limit, req.Reload, req.Period, req.Interval}
	default:
		body = combinedBody{req.Index, req.Fundamental, req.Technical, req.Limit, req.Reload, req.Period, req.Interval}
	}

	var raw rawResult
	if err := c.do(ctx, http.MethodPost, "/screen/"+string(endpoint), body, &raw); err != nil {
		return nil, err
	}

	stocks := raw.snapshots()
	result := &Result{
		Count:               raw.Count,
		Index:               raw.Index,
		Endpoint:            endpoint,
		Stocks:              stocks,
		Criteria:            raw.Criteria,
		FundamentalCriteria: raw.FundamentalCriteria,
		TechnicalCriteria:   raw.TechnicalCriteria,
	}
	if result.Index == "" {
		result.Index = req.Index
	}
	if result.Count == 0 {
		result.Count = len(stocks)
	}

	c.log.Debug().
		Str("endpoint", string(endpoint)).
		Str("index", string(result.Index)).
		Int("count", result.Count).
		Msg("screen completed")
	return result, nil
}

// Indexes lists the indexes the service can screen.
func (c *Client) Indexes(ctx context.Context) ([]model.Index, error) {
	var out struct {
		Indexes []model.Index `json:"indexes"`
	}
	if err := c.do(ctx, http.MethodGet, "/indexes", nil, &out); err != nil {
		return nil, err
	}
	return out.Indexes, nil
}

// Symbols lists the constituents of an index.
func (c *Client) Symbols(ctx context.Context, index model.Index) ([]string, error) {
	var out struct {
		Symbols []string `json:"symbols"`
	}
	if err := c.do(ctx, http.MethodGet, "/symbols/"+string(index), nil, &out); err != nil {
		return nil, err
	}
	return out.Symbols, nil
}

// Indicators field names the service accepts
type Indicators struct {
	FundamentalFields   []string `json:"fundamental_fields"`
	TechnicalIndicators []string `json:"technical_indicators"`
	Operators           []string `json:"operators,omitempty"`
}

func (c *Client) Indicators(ctx context.Context) (*Indicators, error) {
	var out Indicators
	if err := c.do(ctx, http.MethodGet, "/indicators", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StockDetail returns the raw detail record of one symbol.
func (c *Client) StockDetail(ctx context.Context, symbol string) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodGet, "/stock/"+strings.ToUpper(symbol), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		reqErr := &RequestError{Endpoint: path, Err: err}
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			reqErr.Message = "screening request timed out"
		}
		c.log.Warn().Err(err).Str("endpoint", path).Msg("screening request failed")
		return reqErr
	}

	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		reqErr := &RequestError{
			Endpoint: path,
			Status:   resp.StatusCode(),
			Message:  upstreamMessage(resp.Body()),
		}
		c.log.Warn().Int("status", reqErr.Status).Str("endpoint", path).Msg(reqErr.Message)
		return reqErr
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return &RequestError{Endpoint: path, Status: resp.StatusCode(), Message: "malformed response", Err: err}
	}
	return nil
}

// upstreamMessage pulls {"error": "..."} out of a failed response.
func upstreamMessage(body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return ""
}

type rawResult struct {
	Count               int             `json:"count"`
	Index               model.Index     `json:"index"`
	Stocks              []rawStock      `json:"stocks"`
	Criteria            json.RawMessage `json:"criteria"`
	FundamentalCriteria json.RawMessage `json:"fundamental_criteria"`
	TechnicalCriteria   json.RawMessage `json:"technical_criteria"`
}

// snapshots keeps records that carry a symbol, in response order.
func (r rawResult) snapshots() []model.StockSnapshot {
	out := make([]model.StockSnapshot, 0, len(r.Stocks))
	for _, s := range r.Stocks {
		if s.Symbol == "" {
			continue
		}
		out = append(out, s.snapshot())
	}
	return out
}

// rawStock tolerates numbers sent as strings or null and remembers which
// keys the record left out.
type rawStock struct {
	Symbol        string    `json:"symbol"`
	Name          string    `json:"name"`
	Price         flexFloat `json:"price"`
	MarketCap     flexFloat `json:"market_cap"`
	PERatio       flexFloat `json:"pe_ratio"`
	Sector        flexText  `json:"sector"`
	Industry      flexText  `json:"industry"`
	DividendYield flexFloat `json:"dividend_yield"`
	Beta          flexFloat `json:"beta"`
}

func (s rawStock) snapshot() model.StockSnapshot {
	snap := model.StockSnapshot{
		Symbol:        s.Symbol,
		Name:          s.Name,
		Price:         s.Price.value,
		MarketCap:     s.MarketCap.value,
		PERatio:       s.PERatio.value,
		Sector:        s.Sector.value,
		Industry:      s.Industry.value,
		DividendYield: s.DividendYield.value,
		Beta:          s.Beta.value,
	}
	numbers := []struct {
		key string
		f   flexFloat
	}{
		{"price", s.Price},
		{"market_cap", s.MarketCap},
		{"pe_ratio", s.PERatio},
		{"dividend_yield", s.DividendYield},
		{"beta", s.Beta},
	}
	for _, n := range numbers {
		if !n.f.set {
			snap.Unreported = append(snap.Unreported, n.key)
		}
	}
	if !s.Sector.set {
		snap.Unreported = append(snap.Unreported, "sector")
	}
	if !s.Industry.set {
		snap.Unreported = append(snap.Unreported, "industry")
	}
	return snap
}

// flexText is set once its key appears in the record. null reads as ""
// and non-string values keep their literal text.
type flexText struct {
	value string
	set   bool
}

func (t *flexText) UnmarshalJSON(b []byte) error {
	t.set = true
	t.value = ""
	if string(b) == "null" {
		return nil
	}
	if err := json.Unmarshal(b, &t.value); err != nil {
		t.value = string(b)
	}
	return nil
}

// flexFloat is set once its key appears in the record. value stays nil for
// null, unparsable and non-finite inputs.
type flexFloat struct {
	value *float64
	set   bool
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	f.set = true
	f.value = nil
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	switch strings.ToLower(s) {
	case "", "null", "nan", "none":
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	f.value = &v
	return nil
}
