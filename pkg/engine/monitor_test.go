package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ScreenRadar/pkg/criteria"
	"ScreenRadar/pkg/database"
	"ScreenRadar/pkg/model"
	"ScreenRadar/pkg/screener"
)

type recordingPublisher struct {
	events []model.MatchEvent
}

func (r *recordingPublisher) PublishMatches(_ context.Context, ev model.MatchEvent) error {
	r.events = append(r.events, ev)
	return nil
}

type recordingAlerter struct {
	sent []string
	err  error
}

func (r *recordingAlerter) Alert(_ context.Context, user *model.User, w *model.Watchlist, _ model.MatchEvent) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, user.Email+"/"+w.ID)
	return nil
}

type monitorFixture struct {
	store     *database.Store
	gateway   *fakeGateway
	publisher *recordingPublisher
	alerter   *recordingAlerter
	monitor   *Monitor
	user      *model.User
	now       time.Time
}

func newMonitorFixture(t *testing.T) *monitorFixture {
	t.Helper()
	store, err := database.Open(database.Config{Driver: "sqlite", DSN: "file::memory:"}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	user, err := store.Users().Add(context.Background(), database.NewUser{Username: "alice", Email: "alice@example.com", Password: "pw"})
	require.NoError(t, err)

	f := &monitorFixture{
		store:     store,
		gateway:   &fakeGateway{result: twoStocks()},
		publisher: &recordingPublisher{},
		alerter:   &recordingAlerter{},
		user:      user,
		now:       time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC),
	}
	f.monitor = NewMonitor(
		NewEvaluator(f.gateway, EvaluatorConfig{}, zerolog.Nop()),
		store.Watchlists(),
		zerolog.Nop(),
		WithPublisher(f.publisher),
		WithAlerter(f.alerter, store.Users()),
		WithClock(func() time.Time { return f.now }),
	)
	return f
}

func (f *monitorFixture) addWatch(t *testing.T, name string, mutate func(*model.Watchlist)) *model.Watchlist {
	t.Helper()
	w := &model.Watchlist{UserID: f.user.ID, Name: name, Index: model.IndexSP500, IsActive: true, AlertFrequency: model.AlertDaily}
	w.SetCriteria(model.WatchCriteria{Fundamental: criteria.Set{{Field: "pe_ratio", Operator: "<", Value: "15"}}})
	if mutate != nil {
		mutate(w)
	}
	added, err := f.store.Watchlists().Add(context.Background(), w)
	require.NoError(t, err)
	return added
}

func TestCheckPersistsMatchesAndPublishes(t *testing.T) {
	f := newMonitorFixture(t)
	ctx := context.Background()
	w := f.addWatch(t, "value", nil)

	updated, ev, err := f.monitor.Check(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA", "BBB"}, model.Symbols(updated.MatchList()))
	assert.Equal(t, []string{"AAA", "BBB"}, ev.Added)

	stored, err := f.store.Watchlists().Get(ctx, w.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastChecked)
	assert.True(t, f.now.Equal(*stored.LastChecked))
	assert.Len(t, stored.MatchList(), 2)

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, w.ID, f.publisher.events[0].WatchlistID)
	assert.Empty(t, f.alerter.sent, "email alerts are off")
}

func TestCheckFailureKeepsStoredState(t *testing.T) {
	f := newMonitorFixture(t)
	ctx := context.Background()
	w := f.addWatch(t, "value", nil)
	old := []model.StockSnapshot{{Symbol: "OLD"}}
	_, err := f.store.Watchlists().Update(ctx, w.ID, database.WatchlistUpdate{Matches: &old})
	require.NoError(t, err)
	w, err = f.store.Watchlists().Get(ctx, w.ID)
	require.NoError(t, err)

	f.gateway.err = &screener.RequestError{Endpoint: "/screen/fundamental", Message: "down"}
	_, _, err = f.monitor.Check(ctx, w)
	require.Error(t, err)

	stored, err := f.store.Watchlists().Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"OLD"}, model.Symbols(stored.MatchList()))
	assert.Nil(t, stored.LastChecked)
	assert.Empty(t, f.publisher.events)
}

func TestCheckAlertsAndStampsLastAlertSent(t *testing.T) {
	f := newMonitorFixture(t)
	ctx := context.Background()
	w := f.addWatch(t, "alerts", func(w *model.Watchlist) { w.EmailAlerts = true })

	updated, _, err := f.monitor.Check(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice@example.com/" + w.ID}, f.alerter.sent)
	require.NotNil(t, updated.LastAlertSent)

	// inside the daily window: no second mail
	f.now = f.now.Add(time.Hour)
	_, _, err = f.monitor.Check(ctx, updated)
	require.NoError(t, err)
	assert.Len(t, f.alerter.sent, 1)
}

func TestCheckAllSkipsInactiveAndCountsFailures(t *testing.T) {
	f := newMonitorFixture(t)
	ctx := context.Background()
	f.addWatch(t, "one", func(w *model.Watchlist) { w.EmailAlerts = true })
	f.addWatch(t, "two", nil)
	f.addWatch(t, "paused", func(w *model.Watchlist) { w.IsActive = false })

	sum, err := f.monitor.CheckAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{Checked: 2, Failed: 0, Alerted: 1}, sum)
	assert.Equal(t, 2, f.gateway.Calls())

	f.gateway.err = errors.New("unreachable")
	sum, err = f.monitor.CheckAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{Checked: 0, Failed: 2}, sum)
}

func TestCheckAlertFailureStillPersistsMatches(t *testing.T) {
	f := newMonitorFixture(t)
	ctx := context.Background()
	w := f.addWatch(t, "alerts", func(w *model.Watchlist) { w.EmailAlerts = true })
	f.alerter.err = errors.New("smtp down")

	updated, _, err := f.monitor.Check(ctx, w)
	require.NoError(t, err)
	assert.Nil(t, updated.LastAlertSent)
	assert.Len(t, updated.MatchList(), 2)
}

func TestCheckDiffsAgainstStoredMatches(t *testing.T) {
	f := newMonitorFixture(t)
	ctx := context.Background()
	stale := f.addWatch(t, "value", nil)

	_, ev, err := f.monitor.Check(ctx, stale)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA", "BBB"}, ev.Added)

	// stale still carries no matches; the diff must come from the store
	_, ev, err = f.monitor.Check(ctx, stale)
	require.NoError(t, err)
	assert.Empty(t, ev.Added)
	assert.Empty(t, ev.Removed)
}

func TestOverlappingChecksReportAddedOnce(t *testing.T) {
	f := newMonitorFixture(t)
	ctx := context.Background()
	stale := f.addWatch(t, "value", nil)
	f.gateway.hook = func() { time.Sleep(10 * time.Millisecond) }

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := f.monitor.Check(ctx, stale)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	var added []string
	for _, ev := range f.publisher.events {
		added = append(added, ev.Added...)
	}
	assert.ElementsMatch(t, []string{"AAA", "BBB"}, added)
	assert.Empty(t, f.monitor.evaluator.locks)
}

func TestCheckAllDropsStateOfRemovedWatches(t *testing.T) {
	f := newMonitorFixture(t)
	ctx := context.Background()
	kept := f.addWatch(t, "kept", nil)
	gone := f.addWatch(t, "gone", nil)

	_, err := f.monitor.CheckAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, f.monitor.evaluator.State(gone.ID))

	require.NoError(t, f.store.Watchlists().Delete(ctx, gone.ID))
	_, err = f.monitor.CheckAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, f.monitor.evaluator.State(gone.ID))
	assert.Equal(t, StateSuccess, f.monitor.evaluator.State(kept.ID))

	f.monitor.Forget(kept.ID)
	assert.Equal(t, StateIdle, f.monitor.evaluator.State(kept.ID))
}

func TestCheckDeletedWatchFails(t *testing.T) {
	f := newMonitorFixture(t)
	ctx := context.Background()
	w := f.addWatch(t, "value", nil)
	require.NoError(t, f.store.Watchlists().Delete(ctx, w.ID))

	_, _, err := f.monitor.Check(ctx, w)
	assert.ErrorIs(t, err, database.ErrNotFound)
	assert.Zero(t, f.gateway.Calls())
}
