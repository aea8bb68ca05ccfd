// pkg/model/event.go
package model

import "time"

// MatchEvent published after a watch has been re-evaluated and persisted
type MatchEvent struct {
	WatchlistID string          `json:"watchlist_id"`
	UserID      string          `json:"user_id"`
	Name        string          `json:"name"`
	Index       Index           `json:"index"`
	Count       int             `json:"count"`
	Added       []string        `json:"added"`   // symbols that were not matching before
	Removed     []string        `json:"removed"` // symbols that stopped matching
	Matches     []StockSnapshot `json:"matches"`
	CheckedAt   time.Time       `json:"checked_at"`
}

// DiffSymbols compares two match lists by symbol, keeping the order of the
// list each symbol comes from.
func DiffSymbols(previous, current []StockSnapshot) (added, removed []string) {
	prev := make(map[string]struct{}, len(previous))
	for _, s := range previous {
		prev[s.Symbol] = struct{}{}
	}
	cur := make(map[string]struct{}, len(current))
	for _, s := range current {
		cur[s.Symbol] = struct{}{}
		if _, ok := prev[s.Symbol]; !ok {
			added = append(added, s.Symbol)
		}
	}
	for _, s := range previous {
		if _, ok := cur[s.Symbol]; !ok {
			removed = append(removed, s.Symbol)
		}
	}
	return added, removed
}

// NewMatchEvent builds the event for a freshly evaluated watch.
func NewMatchEvent(w *Watchlist, previous []StockSnapshot, checkedAt time.Time) MatchEvent {
	current := w.MatchList()
	added, removed := DiffSymbols(previous, current)
	return MatchEvent{
		WatchlistID: w.ID,
		UserID:      w.UserID,
		Name:        w.Name,
		Index:       w.Index,
		Count:       len(current),
		Added:       added,
		Removed:     removed,
		Matches:     current,
		CheckedAt:   checkedAt,
	}
}
