// pkg/engine/monitor.go
package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"ScreenRadar/pkg/database"
	"ScreenRadar/pkg/model"
	"ScreenRadar/pkg/notify"
)

// WatchStore storage the monitor reads watches from and writes results to
type WatchStore interface {
	ListActive(ctx context.Context) ([]*model.Watchlist, error)
	Get(ctx context.Context, id string) (*model.Watchlist, error)
	Update(ctx context.Context, id string, patch database.WatchlistUpdate) (*model.Watchlist, error)
}

// UserLookup resolves the owner of a watch
type UserLookup interface {
	GetByID(ctx context.Context, userID string) (*model.User, error)
}

// Publisher fans match events out
type Publisher interface {
	PublishMatches(ctx context.Context, ev model.MatchEvent) error
}

// Alerter emails the owner of a watch
type Alerter interface {
	Alert(ctx context.Context, user *model.User, w *model.Watchlist, ev model.MatchEvent) error
}

// Summary outcome of one CheckAll pass
type Summary struct {
	Checked int `json:"checked"`
	Failed  int `json:"failed"`
	Alerted int `json:"alerted"`
}

// Monitor re-evaluates watches, persists their matches and raises alerts.
type Monitor struct {
	evaluator *Evaluator
	watches   WatchStore
	users     UserLookup
	publisher Publisher
	alerter   Alerter
	log       zerolog.Logger
	now       func() time.Time
}

// MonitorOption optional collaborator of a Monitor
type MonitorOption func(*Monitor)

func WithPublisher(p Publisher) MonitorOption {
	return func(m *Monitor) { m.publisher = p }
}

func WithAlerter(a Alerter, users UserLookup) MonitorOption {
	return func(m *Monitor) {
		m.alerter = a
		m.users = users
	}
}

func WithClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) { m.now = now }
}

func NewMonitor(evaluator *Evaluator, watches WatchStore, log zerolog.Logger, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		evaluator: evaluator,
		watches:   watches,
		log:       log.With().Str("component", "monitor").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Check evaluates one watch and stores the new matches with lastChecked.
// The watch is reread from the store while it is held, so w may be stale;
// only its ID is used. On failure nothing is written and the previous
// matches stay in place.
func (m *Monitor) Check(ctx context.Context, w *model.Watchlist) (*model.Watchlist, model.MatchEvent, error) {
	release := m.evaluator.acquire(w.ID)
	defer release()

	current, err := m.watches.Get(ctx, w.ID)
	if err != nil {
		return nil, model.MatchEvent{}, err
	}
	previous := current.MatchList()

	matches, err := m.evaluator.evaluate(ctx, current)
	if err != nil {
		return nil, model.MatchEvent{}, err
	}

	checkedAt := m.now()
	updated, err := m.watches.Update(ctx, current.ID, database.WatchlistUpdate{
		Matches:     &matches,
		LastChecked: &checkedAt,
	})
	if err != nil {
		return nil, model.MatchEvent{}, err
	}

	ev := model.NewMatchEvent(updated, previous, checkedAt)
	log := m.log.With().Str("watchlist", updated.ID).Logger()
	log.Info().
		Int("matches", ev.Count).
		Strs("added", ev.Added).
		Strs("removed", ev.Removed).
		Msg("watchlist checked")

	if m.publisher != nil {
		if err := m.publisher.PublishMatches(ctx, ev); err != nil {
			log.Warn().Err(err).Msg("publish match event failed")
		}
	}

	if m.alerter != nil && notify.ShouldSend(updated, ev, checkedAt) {
		if sent, err := m.alert(ctx, updated, ev); err != nil {
			log.Warn().Err(err).Msg("alert not sent")
		} else {
			updated = sent
		}
	}
	return updated, ev, nil
}

// Forget drops what the monitor keeps for a deleted watch.
func (m *Monitor) Forget(watchID string) {
	m.evaluator.Forget(watchID)
}

func (m *Monitor) alert(ctx context.Context, w *model.Watchlist, ev model.MatchEvent) (*model.Watchlist, error) {
	user, err := m.users.GetByID(ctx, w.UserID)
	if err != nil {
		return nil, err
	}
	if err := m.alerter.Alert(ctx, user, w, ev); err != nil {
		return nil, err
	}
	sentAt := m.now()
	return m.watches.Update(ctx, w.ID, database.WatchlistUpdate{LastAlertSent: &sentAt})
}

// CheckAll checks every active watch. A failing watch is logged and skipped.
func (m *Monitor) CheckAll(ctx context.Context) (Summary, error) {
	watches, err := m.watches.ListActive(ctx)
	if err != nil {
		return Summary{}, err
	}
	m.log.Info().Int("watchlists", len(watches)).Msg("checking active watchlists")

	active := make(map[string]struct{}, len(watches))
	for _, w := range watches {
		active[w.ID] = struct{}{}
	}
	m.evaluator.retain(active)

	var sum Summary
	for _, w := range watches {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		before := w.LastAlertSent
		updated, _, err := m.Check(ctx, w)
		if err != nil {
			sum.Failed++
			m.log.Error().Err(err).Str("watchlist", w.ID).Msg("check failed")
			continue
		}
		sum.Checked++
		if updated.LastAlertSent != nil && (before == nil || !updated.LastAlertSent.Equal(*before)) {
			sum.Alerted++
		}
	}
	return sum, nil
}
