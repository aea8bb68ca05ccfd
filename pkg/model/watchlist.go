// pkg/model/watchlist.go
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"ScreenRadar/pkg/criteria"
)

// Index stock universe a watch screens
type Index string

const (
	IndexSP500     Index = "sp500"
	IndexNasdaq100 Index = "nasdaq100"
	IndexDow30     Index = "dow30"
)

// Indexes all supported indexes
var Indexes = []Index{IndexSP500, IndexNasdaq100, IndexDow30}

func (i Index) Valid() bool {
	switch i {
	case IndexSP500, IndexNasdaq100, IndexDow30:
		return true
	}
	return false
}

// AlertFrequency how often a watch may email its owner
type AlertFrequency string

const (
	AlertImmediate AlertFrequency = "immediate"
	AlertDaily     AlertFrequency = "daily"
	AlertWeekly    AlertFrequency = "weekly"
)

func (f AlertFrequency) Valid() bool {
	switch f {
	case AlertImmediate, AlertDaily, AlertWeekly:
		return true
	}
	return false
}

// Window minimum time between two alerts; zero for immediate
func (f AlertFrequency) Window() time.Duration {
	switch f {
	case AlertDaily:
		return 24 * time.Hour
	case AlertWeekly:
		return 7 * 24 * time.Hour
	default:
		return 0
	}
}

// WatchCriteria the two criteria families of a watch
type WatchCriteria struct {
	Fundamental criteria.Set `json:"fundamental_criteria"`
	Technical   criteria.Set `json:"technical_criteria"`
}

// Compile compiles both families.
func (c WatchCriteria) Compile() (fundamental, technical criteria.Query) {
	return criteria.Compile(c.Fundamental), criteria.Compile(c.Technical)
}

// Empty neither family has a complete row
func (c WatchCriteria) Empty() bool {
	return c.Fundamental.Empty() && c.Technical.Empty()
}

// Normalize drops incomplete rows before a watch is stored.
func (c WatchCriteria) Normalize() WatchCriteria {
	return WatchCriteria{
		Fundamental: c.Fundamental.Complete(),
		Technical:   c.Technical.Complete(),
	}
}

// Watchlist a saved watch: criteria re-screened on demand or on a schedule
type Watchlist struct {
	ID             string                             `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID         string                             `gorm:"type:varchar(36);not null;index" json:"userId"`
	Name           string                             `gorm:"not null" json:"name"`
	Index          Index                              `gorm:"column:market_index;type:varchar(20);not null" json:"index"`
	Criteria       datatypes.JSONType[WatchCriteria]  `json:"criteria"`
	EmailAlerts    bool                               `json:"emailAlerts"`
	AlertFrequency AlertFrequency                     `gorm:"type:varchar(20);not null" json:"alertFrequency"`
	IsActive       bool                               `gorm:"index" json:"isActive"`
	CreatedAt      time.Time                          `json:"createdAt"`
	UpdatedAt      time.Time                          `json:"updatedAt"`
	LastChecked    *time.Time                         `json:"lastChecked"`
	LastAlertSent  *time.Time                         `json:"lastAlertSent,omitempty"`
	Matches        datatypes.JSONSlice[StockSnapshot] `json:"matches"`
}

func (w *Watchlist) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	return nil
}

// WatchCriteria returns the decoded criteria.
func (w *Watchlist) WatchCriteria() WatchCriteria {
	return w.Criteria.Data()
}

// SetCriteria replaces the criteria of the watch.
func (w *Watchlist) SetCriteria(c WatchCriteria) {
	w.Criteria = datatypes.NewJSONType(c)
}

// MatchList returns the current matches as a plain slice, never nil.
func (w *Watchlist) MatchList() []StockSnapshot {
	if w.Matches == nil {
		return []StockSnapshot{}
	}
	return []StockSnapshot(w.Matches)
}
