// pkg/engine/evaluator.go
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ScreenRadar/pkg/criteria"
	"ScreenRadar/pkg/model"
	"ScreenRadar/pkg/screener"
)

// Screener the part of the screening gateway the evaluator needs
type Screener interface {
	Screen(ctx context.Context, req screener.Request) (*screener.Result, error)
}

// State evaluation state of one watch
type State int

const (
	StateIdle State = iota
	StateLoading
	StateSuccess
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// EvaluatorConfig screening parameters used for routine evaluations
type EvaluatorConfig struct {
	CombinedLimit int
	SingleLimit   int
	Period        string
	Interval      string
	// LocalRecheck re-applies the fundamental criteria to the returned
	// snapshots; fields a snapshot does not carry are not rechecked.
	LocalRecheck bool
	Timeout      time.Duration
}

func DefaultEvaluatorConfig() EvaluatorConfig {
	return EvaluatorConfig{
		CombinedLimit: 600,
		SingleLimit:   100,
		Period:        "1y",
		Interval:      "1d",
		Timeout:       30 * time.Second,
	}
}

func (c EvaluatorConfig) withDefaults() EvaluatorConfig {
	d := DefaultEvaluatorConfig()
	if c.CombinedLimit <= 0 {
		c.CombinedLimit = d.CombinedLimit
	}
	if c.SingleLimit <= 0 {
		c.SingleLimit = d.SingleLimit
	}
	if c.Period == "" {
		c.Period = d.Period
	}
	if c.Interval == "" {
		c.Interval = d.Interval
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	return c
}

// Evaluator recomputes the matches of a watch. Evaluations of the same watch
// are serialized; different watches run independently.
type Evaluator struct {
	gateway Screener
	cfg     EvaluatorConfig
	log     zerolog.Logger

	mu     sync.Mutex
	locks  map[string]*watchLock
	states map[string]State
}

// watchLock is dropped from the map once nobody holds or waits on it.
type watchLock struct {
	mu   sync.Mutex
	refs int
}

func NewEvaluator(gateway Screener, cfg EvaluatorConfig, log zerolog.Logger) *Evaluator {
	return &Evaluator{
		gateway: gateway,
		cfg:     cfg.withDefaults(),
		log:     log.With().Str("component", "evaluator").Logger(),
		locks:   make(map[string]*watchLock),
		states:  make(map[string]State),
	}
}

// State reports the last known state of a watch.
func (e *Evaluator) State(watchID string) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.states[watchID]
}

func (e *Evaluator) setState(watchID string, s State) {
	e.mu.Lock()
	e.states[watchID] = s
	e.mu.Unlock()
}

// Forget drops the state kept for a watch.
func (e *Evaluator) Forget(watchID string) {
	e.mu.Lock()
	delete(e.states, watchID)
	e.mu.Unlock()
}

// retain drops the state of every watch not in ids.
func (e *Evaluator) retain(ids map[string]struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id := range e.states {
		if _, ok := ids[id]; !ok {
			delete(e.states, id)
		}
	}
}

// acquire blocks until the caller owns the watch and returns the release.
func (e *Evaluator) acquire(watchID string) (release func()) {
	e.mu.Lock()
	l, ok := e.locks[watchID]
	if !ok {
		l = &watchLock{}
		e.locks[watchID] = l
	}
	l.refs++
	e.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		e.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.locks, watchID)
		}
		e.mu.Unlock()
	}
}

// Evaluate returns the current matches of w. The watch itself is never
// modified; persisting the result is up to the caller. A watch without any
// complete criterion matches nothing and costs no request.
func (e *Evaluator) Evaluate(ctx context.Context, w *model.Watchlist) ([]model.StockSnapshot, error) {
	release := e.acquire(w.ID)
	defer release()
	return e.evaluate(ctx, w)
}

// evaluate expects the caller to hold the watch.
func (e *Evaluator) evaluate(ctx context.Context, w *model.Watchlist) ([]model.StockSnapshot, error) {
	e.setState(w.ID, StateLoading)

	wc := w.WatchCriteria()
	fundamental, technical := wc.Compile()
	if fundamental.Empty() && technical.Empty() {
		e.setState(w.ID, StateSuccess)
		return []model.StockSnapshot{}, nil
	}

	limit := e.cfg.SingleLimit
	if !fundamental.Empty() && !technical.Empty() {
		limit = e.cfg.CombinedLimit
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	res, err := e.gateway.Screen(ctx, screener.Request{
		Index:       w.Index,
		Fundamental: fundamental,
		Technical:   technical,
		Limit:       limit,
		Reload:      false,
		Period:      e.cfg.Period,
		Interval:    e.cfg.Interval,
	})
	if err != nil {
		e.setState(w.ID, StateFailed)
		e.log.Warn().Err(err).Str("watchlist", w.ID).Msg("evaluation failed")
		return nil, err
	}

	matches := make([]model.StockSnapshot, 0, len(res.Stocks))
	for _, s := range res.Stocks {
		if e.cfg.LocalRecheck && !criteria.Match(wc.Fundamental, s) {
			continue
		}
		matches = append(matches, s)
	}

	e.setState(w.ID, StateSuccess)
	e.log.Debug().
		Str("watchlist", w.ID).
		Str("endpoint", string(res.Endpoint)).
		Int("matches", len(matches)).
		Msg("watchlist evaluated")
	return matches, nil
}
