// pkg/database/watchlist.go
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"ScreenRadar/pkg/model"
)

type WatchlistDB struct {
	db *gorm.DB
}

// WatchlistUpdate partial update; nil fields are left untouched
type WatchlistUpdate struct {
	Name           *string                `json:"name,omitempty"`
	Index          *model.Index           `json:"index,omitempty"`
	Criteria       *model.WatchCriteria   `json:"criteria,omitempty"`
	EmailAlerts    *bool                  `json:"emailAlerts,omitempty"`
	AlertFrequency *model.AlertFrequency  `json:"alertFrequency,omitempty"`
	IsActive       *bool                  `json:"isActive,omitempty"`
	LastChecked    *time.Time             `json:"lastChecked,omitempty"`
	LastAlertSent  *time.Time             `json:"lastAlertSent,omitempty"`
	Matches        *[]model.StockSnapshot `json:"matches,omitempty"`
}

func (p WatchlistUpdate) apply(w *model.Watchlist) {
	if p.Name != nil {
		w.Name = *p.Name
	}
	if p.Index != nil {
		w.Index = *p.Index
	}
	if p.Criteria != nil {
		w.SetCriteria(p.Criteria.Normalize())
	}
	if p.EmailAlerts != nil {
		w.EmailAlerts = *p.EmailAlerts
	}
	if p.AlertFrequency != nil {
		w.AlertFrequency = *p.AlertFrequency
	}
	if p.IsActive != nil {
		w.IsActive = *p.IsActive
	}
	if p.LastChecked != nil {
		t := *p.LastChecked
		w.LastChecked = &t
	}
	if p.LastAlertSent != nil {
		t := *p.LastAlertSent
		w.LastAlertSent = &t
	}
	if p.Matches != nil {
		w.Matches = datatypes.JSONSlice[model.StockSnapshot](append([]model.StockSnapshot{}, *p.Matches...))
	}
}

// ByUser returns the watchlists owned by userID, oldest first.
func (s *WatchlistDB) ByUser(ctx context.Context, userID string) ([]*model.Watchlist, error) {
	var watchlists []*model.Watchlist
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&watchlists).Error
	if err != nil {
		return nil, storageErr("list user watchlists", err)
	}
	return watchlists, nil
}

func (s *WatchlistDB) Get(ctx context.Context, id string) (*model.Watchlist, error) {
	var w model.Watchlist
	err := s.db.WithContext(ctx).First(&w, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageErr("get watchlist", err)
	}
	return &w, nil
}

// Add stores a new watchlist. The id and createdAt are always generated here;
// incomplete criteria rows are dropped.
func (s *WatchlistDB) Add(ctx context.Context, w *model.Watchlist) (*model.Watchlist, error) {
	w.ID = ""
	w.CreatedAt = time.Now().UTC()
	w.UpdatedAt = w.CreatedAt
	w.SetCriteria(w.WatchCriteria().Normalize())
	if w.AlertFrequency == "" {
		w.AlertFrequency = model.AlertDaily
	}
	if w.Matches == nil {
		w.Matches = datatypes.JSONSlice[model.StockSnapshot]{}
	}
	if err := s.db.WithContext(ctx).Create(w).Error; err != nil {
		return nil, storageErr("add watchlist", err)
	}
	return w, nil
}

// Update reads, patches and writes the watchlist in one transaction.
func (s *WatchlistDB) Update(ctx context.Context, id string, patch WatchlistUpdate) (*model.Watchlist, error) {
	var w model.Watchlist
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&w, "id = ?", id).Error; err != nil {
			return err
		}
		patch.apply(&w)
		w.UpdatedAt = time.Now().UTC()
		return tx.Save(&w).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageErr("update watchlist", err)
	}
	return &w, nil
}

// Delete is idempotent: removing an absent id succeeds.
func (s *WatchlistDB) Delete(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&model.Watchlist{}, "id = ?", id).Error; err != nil {
		return storageErr("delete watchlist", err)
	}
	return nil
}

// ListActive returns every active watchlist across all users.
func (s *WatchlistDB) ListActive(ctx context.Context) ([]*model.Watchlist, error) {
	var watchlists []*model.Watchlist
	err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at ASC").
		Find(&watchlists).Error
	if err != nil {
		return nil, storageErr("list active watchlists", err)
	}
	return watchlists, nil
}

func (s *WatchlistDB) ClearMatches(ctx context.Context, id string) (*model.Watchlist, error) {
	empty := []model.StockSnapshot{}
	return s.Update(ctx, id, WatchlistUpdate{Matches: &empty})
}

// RemoveMatch drops one symbol from the stored matches.
func (s *WatchlistDB) RemoveMatch(ctx context.Context, id, symbol string) (*model.Watchlist, error) {
	var w model.Watchlist
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&w, "id = ?", id).Error; err != nil {
			return err
		}
		kept := make([]model.StockSnapshot, 0, len(w.Matches))
		for _, m := range w.Matches {
			if m.Symbol != symbol {
				kept = append(kept, m)
			}
		}
		w.Matches = kept
		w.UpdatedAt = time.Now().UTC()
		return tx.Save(&w).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageErr(fmt.Sprintf("remove match %s", symbol), err)
	}
	return &w, nil
}
