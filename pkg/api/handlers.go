package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"ScreenRadar/pkg/criteria"
	"ScreenRadar/pkg/database"
	"ScreenRadar/pkg/engine"
	"ScreenRadar/pkg/health"
	"ScreenRadar/pkg/model"
	"ScreenRadar/pkg/screener"
)

// Gateway screening calls made on behalf of a client
type Gateway interface {
	Screen(ctx context.Context, req screener.Request) (*screener.Result, error)
}

// Handlers API handlers
type Handlers struct {
	store   *database.Store
	gateway Gateway
	monitor *engine.Monitor
	health  *health.Registry
	log     zerolog.Logger
}

func NewHandlers(
	store *database.Store,
	gateway Gateway,
	monitor *engine.Monitor,
	registry *health.Registry,
	log zerolog.Logger,
) *Handlers {
	return &Handlers{
		store:   store,
		gateway: gateway,
		monitor: monitor,
		health:  registry,
		log:     log.With().Str("component", "api").Logger(),
	}
}

// writeError maps the error taxonomy onto HTTP statuses.
func (h *Handlers) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	var verr *criteria.ValidationError
	var reqErr *screener.RequestError
	switch {
	case errors.Is(err, criteria.ErrMissingCriteria), errors.As(err, &verr):
		status = http.StatusBadRequest
	case errors.Is(err, database.ErrDuplicateUser):
		status = http.StatusConflict
	case errors.Is(err, database.ErrAuthentication):
		status = http.StatusUnauthorized
	case errors.Is(err, database.ErrNotFound):
		status = http.StatusNotFound
	case errors.As(err, &reqErr):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// HealthCheck liveness
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ReadinessCheck ready when the store answers and no probed dependency is down
func (h *Handlers) ReadinessCheck(c *gin.Context) {
	if err := h.store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	var components []health.Status
	if h.health != nil {
		components = h.health.All()
		for _, s := range components {
			if s.Status == health.StatusUnhealthy {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "components": components})
				return
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "components": components})
}

// Register creates an account
func (h *Handlers) Register(c *gin.Context) {
	var req database.NewUser
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	user, err := h.store.Users().Add(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login checks credentials
func (h *Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	user, err := h.store.Users().Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// DeleteUser removes an account and its watchlists
func (h *Handlers) DeleteUser(c *gin.Context) {
	if err := h.store.Users().Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListWatchlists watchlists of one user
func (h *Handlers) ListWatchlists(c *gin.Context) {
	watchlists, err := h.store.Watchlists().ByUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, watchlists)
}

type createWatchlistRequest struct {
	Name           string               `json:"name" binding:"required"`
	Index          model.Index          `json:"index"`
	Criteria       model.WatchCriteria  `json:"criteria"`
	EmailAlerts    bool                 `json:"emailAlerts"`
	AlertFrequency model.AlertFrequency `json:"alertFrequency"`
	IsActive       *bool                `json:"isActive"`
}

func validateCriteria(wc model.WatchCriteria) error {
	if err := wc.Fundamental.Validate(criteria.FamilyFundamental); err != nil {
		return err
	}
	if err := wc.Technical.Validate(criteria.FamilyTechnical); err != nil {
		return err
	}
	if wc.Empty() {
		return criteria.ErrMissingCriteria
	}
	return nil
}

// CreateWatchlist saves a new watchlist for a user
func (h *Handlers) CreateWatchlist(c *gin.Context) {
	var req createWatchlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.Index == "" {
		req.Index = model.IndexSP500
	}
	if !req.Index.Valid() {
		badRequest(c, "unsupported index: "+string(req.Index))
		return
	}
	if req.AlertFrequency == "" {
		req.AlertFrequency = model.AlertDaily
	}
	if !req.AlertFrequency.Valid() {
		badRequest(c, "unsupported alert frequency: "+string(req.AlertFrequency))
		return
	}
	if err := validateCriteria(req.Criteria); err != nil {
		h.writeError(c, err)
		return
	}

	ctx := c.Request.Context()
	if _, err := h.store.Users().GetByID(ctx, c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}

	w := &model.Watchlist{
		UserID:         c.Param("id"),
		Name:           strings.TrimSpace(req.Name),
		Index:          req.Index,
		EmailAlerts:    req.EmailAlerts,
		AlertFrequency: req.AlertFrequency,
		IsActive:       req.IsActive == nil || *req.IsActive,
	}
	w.SetCriteria(req.Criteria)

	added, err := h.store.Watchlists().Add(ctx, w)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, added)
}

type updateWatchlistRequest struct {
	Name           *string               `json:"name"`
	Index          *model.Index          `json:"index"`
	Criteria       *model.WatchCriteria  `json:"criteria"`
	EmailAlerts    *bool                 `json:"emailAlerts"`
	AlertFrequency *model.AlertFrequency `json:"alertFrequency"`
	IsActive       *bool                 `json:"isActive"`
}

// UpdateWatchlist applies a partial update
func (h *Handlers) UpdateWatchlist(c *gin.Context) {
	var req updateWatchlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.Index != nil && !req.Index.Valid() {
		badRequest(c, "unsupported index: "+string(*req.Index))
		return
	}
	if req.AlertFrequency != nil && !req.AlertFrequency.Valid() {
		badRequest(c, "unsupported alert frequency: "+string(*req.AlertFrequency))
		return
	}
	if req.Criteria != nil {
		if err := validateCriteria(*req.Criteria); err != nil {
			h.writeError(c, err)
			return
		}
	}

	updated, err := h.store.Watchlists().Update(c.Request.Context(), c.Param("id"), database.WatchlistUpdate{
		Name:           req.Name,
		Index:          req.Index,
		Criteria:       req.Criteria,
		EmailAlerts:    req.EmailAlerts,
		AlertFrequency: req.AlertFrequency,
		IsActive:       req.IsActive,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// DeleteWatchlist is idempotent
func (h *Handlers) DeleteWatchlist(c *gin.Context) {
	id := c.Param("id")
	if err := h.store.Watchlists().Delete(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	h.monitor.Forget(id)
	c.Status(http.StatusNoContent)
}

// EvaluateWatchlist re-screens a watchlist and stores the new matches
func (h *Handlers) EvaluateWatchlist(c *gin.Context) {
	ctx := c.Request.Context()
	w, err := h.store.Watchlists().Get(ctx, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	updated, ev, err := h.monitor.Check(ctx, w)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"watchlist_id": updated.ID,
		"count":        ev.Count,
		"matches":      updated.MatchList(),
		"added":        ev.Added,
		"removed":      ev.Removed,
		"lastChecked":  updated.LastChecked,
	})
}

// ClearMatches empties the stored matches
func (h *Handlers) ClearMatches(c *gin.Context) {
	if _, err := h.store.Watchlists().ClearMatches(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RemoveMatch drops one symbol from the stored matches
func (h *Handlers) RemoveMatch(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	if _, err := h.store.Watchlists().RemoveMatch(c.Request.Context(), c.Param("id"), symbol); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type screenRequest struct {
	Index       model.Index  `json:"index"`
	Fundamental criteria.Set `json:"fundamental_criteria"`
	Technical   criteria.Set `json:"technical_criteria"`
	Limit       int          `json:"limit"`
	Reload      bool         `json:"reload"`
	Period      string       `json:"period"`
	Interval    string       `json:"interval"`
}

// Screen compiles the submitted rows and forwards them to the screening service
func (h *Handlers) Screen(c *gin.Context) {
	var req screenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.Index == "" {
		req.Index = model.IndexSP500
	}
	if !req.Index.Valid() {
		badRequest(c, "unsupported index: "+string(req.Index))
		return
	}
	wc := model.WatchCriteria{Fundamental: req.Fundamental, Technical: req.Technical}
	if err := validateCriteria(wc); err != nil {
		h.writeError(c, err)
		return
	}
	if req.Limit <= 0 {
		req.Limit = 50
	}
	if req.Period == "" {
		req.Period = "1y"
	}
	if req.Interval == "" {
		req.Interval = "1d"
	}

	fundamental, technical := wc.Compile()
	res, err := h.gateway.Screen(c.Request.Context(), screener.Request{
		Index:       req.Index,
		Fundamental: fundamental,
		Technical:   technical,
		Limit:       req.Limit,
		Reload:      req.Reload,
		Period:      req.Period,
		Interval:    req.Interval,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// CriteriaFields the filter vocabulary
func (h *Handlers) CriteriaFields(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"fundamental": criteria.Fields(criteria.FamilyFundamental),
		"technical":   criteria.Fields(criteria.FamilyTechnical),
		"operators":   criteria.Operators,
		"options":     criteria.CategoricalFields(),
	})
}
