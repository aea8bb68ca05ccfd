package notify

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ScreenRadar/pkg/model"
)

type recordingSender struct {
	sent []Message
	err  error
}

func (r *recordingSender) Send(_ context.Context, msg Message) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func TestShouldSend(t *testing.T) {
	now := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	hoursAgo := func(h int) *time.Time {
		ts := now.Add(-time.Duration(h) * time.Hour)
		return &ts
	}
	withMatches := model.MatchEvent{Count: 2, Added: []string{"AAA"}}
	noneAdded := model.MatchEvent{Count: 2}

	tests := []struct {
		name string
		w    model.Watchlist
		ev   model.MatchEvent
		want bool
	}{
		{"alerts off", model.Watchlist{EmailAlerts: false, AlertFrequency: model.AlertImmediate}, withMatches, false},
		{"no matches", model.Watchlist{EmailAlerts: true, AlertFrequency: model.AlertImmediate}, model.MatchEvent{}, false},
		{"immediate with new symbols", model.Watchlist{EmailAlerts: true, AlertFrequency: model.AlertImmediate, LastAlertSent: hoursAgo(0)}, withMatches, true},
		{"immediate without new symbols", model.Watchlist{EmailAlerts: true, AlertFrequency: model.AlertImmediate}, noneAdded, false},
		{"daily never sent", model.Watchlist{EmailAlerts: true, AlertFrequency: model.AlertDaily}, noneAdded, true},
		{"daily inside window", model.Watchlist{EmailAlerts: true, AlertFrequency: model.AlertDaily, LastAlertSent: hoursAgo(23)}, withMatches, false},
		{"daily window elapsed", model.Watchlist{EmailAlerts: true, AlertFrequency: model.AlertDaily, LastAlertSent: hoursAgo(24)}, noneAdded, true},
		{"weekly inside window", model.Watchlist{EmailAlerts: true, AlertFrequency: model.AlertWeekly, LastAlertSent: hoursAgo(100)}, withMatches, false},
		{"weekly window elapsed", model.Watchlist{EmailAlerts: true, AlertFrequency: model.AlertWeekly, LastAlertSent: hoursAgo(168)}, withMatches, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := tt.w
			assert.Equal(t, tt.want, ShouldSend(&w, tt.ev, now))
		})
	}
}

func TestComposeAlert(t *testing.T) {
	user := &model.User{ID: "u1", Username: "alice", Email: "alice@example.com"}
	w := &model.Watchlist{ID: "w1", Name: "Cheap tech", Index: model.IndexNasdaq100}

	var matches []model.StockSnapshot
	for i := 0; i < 22; i++ {
		matches = append(matches, model.StockSnapshot{Symbol: fmt.Sprintf("S%02d", i), Price: model.Float(10), Sector: "Technology"})
	}
	matches[1].Sector = ""
	matches[2].Price = nil
	ev := model.MatchEvent{Count: len(matches), Matches: matches, Added: []string{"S00"}, Removed: []string{"OLD"}}

	msg := ComposeAlert(user, w, ev)
	assert.Equal(t, "alice@example.com", msg.To)
	assert.Equal(t, "Stock Screener Alert: Cheap tech - 22 Matches Found", msg.Subject)
	assert.Contains(t, msg.Body, "Hello alice")
	assert.Contains(t, msg.Body, "- S00: $10.00 (Technology)")
	assert.Contains(t, msg.Body, "- S01: $10.00 (N/A)")
	assert.Contains(t, msg.Body, "- S02: N/A (Technology)")
	assert.Contains(t, msg.Body, "New since the last check: S00")
	assert.Contains(t, msg.Body, "No longer matching: OLD")
	assert.Contains(t, msg.Body, "... and 2 more stocks.")
	assert.NotContains(t, msg.Body, "S20:")
}

func TestNotifierAlert(t *testing.T) {
	sender := &recordingSender{}
	n := NewWithSender(sender, zerolog.Nop())
	user := &model.User{ID: "u1", Username: "alice", Email: "alice@example.com"}
	w := &model.Watchlist{ID: "w1", Name: "value"}

	require.NoError(t, n.Alert(context.Background(), user, w, model.MatchEvent{Count: 1}))
	require.Len(t, sender.sent, 1)

	err := n.Alert(context.Background(), &model.User{ID: "u2"}, w, model.MatchEvent{Count: 1})
	assert.Error(t, err)

	sender.err = errors.New("connection refused")
	err = n.Alert(context.Background(), user, w, model.MatchEvent{Count: 1})
	assert.ErrorContains(t, err, "connection refused")
}

func TestEncodeUsesCRLF(t *testing.T) {
	raw := string(encode("radar@example.com", Message{To: "a@example.com", Subject: "s", Body: "one\ntwo"}))
	assert.Contains(t, raw, "Subject: s\r\n")
	assert.Contains(t, raw, "one\r\ntwo")
}
