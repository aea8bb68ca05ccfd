package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ScreenRadar/pkg/criteria"
	"ScreenRadar/pkg/database"
	"ScreenRadar/pkg/engine"
	"ScreenRadar/pkg/health"
	"ScreenRadar/pkg/model"
	"ScreenRadar/pkg/screener"
)

type stubGateway struct {
	calls  int
	last   screener.Request
	stocks []model.StockSnapshot
	err    error
}

func (s *stubGateway) Screen(_ context.Context, req screener.Request) (*screener.Result, error) {
	endpoint, err := criteria.Route(req.Fundamental, req.Technical)
	if err != nil {
		return nil, err
	}
	s.calls++
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	return &screener.Result{Count: len(s.stocks), Index: req.Index, Endpoint: endpoint, Stocks: s.stocks}, nil
}

type apiFixture struct {
	store   *database.Store
	gateway *stubGateway
	handler http.Handler
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := database.Open(database.Config{Driver: "sqlite", DSN: "file::memory:"}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	gw := &stubGateway{stocks: []model.StockSnapshot{{Symbol: "AAA", Price: model.Float(10)}, {Symbol: "BBB", Price: model.Float(20)}}}
	monitor := engine.NewMonitor(engine.NewEvaluator(gw, engine.EvaluatorConfig{}, zerolog.Nop()), store.Watchlists(), zerolog.Nop())
	registry := health.NewRegistry(zerolog.Nop())

	srv := NewServer(Config{}, zerolog.Nop())
	srv.SetupRoutes(NewHandlers(store, gw, monitor, registry, zerolog.Nop()))
	return &apiFixture{store: store, gateway: gw, handler: srv.Handler()}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (f *apiFixture) register(t *testing.T, username string) model.User {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/v1/auth/register", gin.H{
		"username": username, "email": username + "@example.com", "password": "pw",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[model.User](t, rec)
}

func TestHealthAndReady(t *testing.T) {
	f := newAPIFixture(t)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health", nil).Code)

	rec := f.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", decode[map[string]any](t, rec)["status"])
}

func TestRegisterAndLogin(t *testing.T) {
	f := newAPIFixture(t)
	user := f.register(t, "alice")
	assert.NotEmpty(t, user.ID)
	assert.Empty(t, user.PasswordHash)

	rec := f.do(t, http.MethodPost, "/api/v1/auth/register", gin.H{"username": "alice", "email": "x@example.com", "password": "pw"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/auth/login", gin.H{"username": "alice", "password": "pw"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, user.ID, decode[model.User](t, rec).ID)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = f.do(t, http.MethodPost, "/api/v1/auth/login", gin.H{"username": "alice", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/auth/register", gin.H{"username": "bob"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWatchlistLifecycle(t *testing.T) {
	f := newAPIFixture(t)
	user := f.register(t, "alice")
	base := "/api/v1/users/" + user.ID + "/watchlists"

	rec := f.do(t, http.MethodPost, base, gin.H{
		"name":  "Cheap tech",
		"index": "nasdaq100",
		"criteria": gin.H{
			"fundamental_criteria": []gin.H{
				{"field": "pe_ratio", "operator": "<", "value": 15},
				{"field": "sector", "operator": "==", "value": "Technology"},
				{"field": "beta", "operator": "", "value": ""},
			},
			"technical_criteria": []gin.H{},
		},
		"emailAlerts":    true,
		"alertFrequency": "weekly",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[model.Watchlist](t, rec)
	assert.True(t, created.IsActive)
	assert.Equal(t, model.AlertWeekly, created.AlertFrequency)
	assert.Len(t, created.WatchCriteria().Fundamental, 2)
	assert.Nil(t, created.LastChecked)

	rec = f.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Watchlist](t, rec), 1)

	rec = f.do(t, http.MethodPost, "/api/v1/watchlists/"+created.ID+"/evaluate", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[map[string]any](t, rec)
	assert.Equal(t, float64(2), body["count"])
	assert.Equal(t, criteria.Query("pe_ratio<15,sector==Technology"), f.gateway.last.Fundamental)
	assert.Equal(t, model.IndexNasdaq100, f.gateway.last.Index)

	stored, err := f.store.Watchlists().Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA", "BBB"}, model.Symbols(stored.MatchList()))
	assert.NotNil(t, stored.LastChecked)

	rec = f.do(t, http.MethodDelete, "/api/v1/watchlists/"+created.ID+"/matches/aaa", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	stored, _ = f.store.Watchlists().Get(context.Background(), created.ID)
	assert.Equal(t, []string{"BBB"}, model.Symbols(stored.MatchList()))

	rec = f.do(t, http.MethodDelete, "/api/v1/watchlists/"+created.ID+"/matches", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodPatch, "/api/v1/watchlists/"+created.ID, gin.H{"isActive": false, "name": "Paused"})
	require.Equal(t, http.StatusOK, rec.Code)
	patched := decode[model.Watchlist](t, rec)
	assert.False(t, patched.IsActive)
	assert.Equal(t, "Paused", patched.Name)
	assert.True(t, patched.EmailAlerts)

	rec = f.do(t, http.MethodPatch, "/api/v1/watchlists/"+created.ID, gin.H{"alertFrequency": "hourly"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/api/v1/watchlists/"+created.ID, nil).Code)
	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/api/v1/watchlists/"+created.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPatch, "/api/v1/watchlists/"+created.ID, gin.H{"name": "x"}).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/api/v1/watchlists/"+created.ID+"/evaluate", nil).Code)
}

func TestCreateWatchlistValidation(t *testing.T) {
	f := newAPIFixture(t)
	user := f.register(t, "alice")
	base := "/api/v1/users/" + user.ID + "/watchlists"

	rec := f.do(t, http.MethodPost, base, gin.H{"name": "empty", "criteria": gin.H{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), criteria.ErrMissingCriteria.Error())

	rec = f.do(t, http.MethodPost, base, gin.H{"name": "bad index", "index": "ftse100", "criteria": gin.H{
		"fundamental_criteria": []gin.H{{"field": "pe_ratio", "operator": "<", "value": "15"}},
	}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, base, gin.H{"name": "wrong family", "criteria": gin.H{
		"fundamental_criteria": []gin.H{{"field": "rsi", "operator": "<", "value": "30"}},
	}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/users/nobody/watchlists", gin.H{"name": "orphan", "criteria": gin.H{
		"technical_criteria": []gin.H{{"field": "rsi", "operator": "<", "value": "30"}},
	}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEvaluateUpstreamFailure(t *testing.T) {
	f := newAPIFixture(t)
	user := f.register(t, "alice")
	rec := f.do(t, http.MethodPost, "/api/v1/users/"+user.ID+"/watchlists", gin.H{"name": "rsi", "criteria": gin.H{
		"technical_criteria": []gin.H{{"field": "rsi", "operator": "<", "value": "30"}},
	}})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[model.Watchlist](t, rec)

	f.gateway.err = &screener.RequestError{Endpoint: "/screen/technical", Status: 500, Message: "yfinance down"}
	rec = f.do(t, http.MethodPost, "/api/v1/watchlists/"+created.ID+"/evaluate", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "yfinance down")
}

func TestScreen(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/screen", gin.H{
		"index":              "dow30",
		"technical_criteria": []gin.H{{"field": "rsi", "operator": "<", "value": 30}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[screener.Result](t, rec)
	assert.Equal(t, criteria.EndpointTechnical, res.Endpoint)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, 50, f.gateway.last.Limit)
	assert.Equal(t, criteria.Query("rsi<30"), f.gateway.last.Technical)

	rec = f.do(t, http.MethodPost, "/api/v1/screen", gin.H{"fundamental_criteria": []gin.H{{"field": "pe_ratio", "operator": "<", "value": ""}}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 1, f.gateway.calls)
}

func TestDeleteUserCascades(t *testing.T) {
	f := newAPIFixture(t)
	user := f.register(t, "alice")
	rec := f.do(t, http.MethodPost, "/api/v1/users/"+user.ID+"/watchlists", gin.H{"name": "rsi", "criteria": gin.H{
		"technical_criteria": []gin.H{{"field": "rsi", "operator": "<", "value": "30"}},
	}})
	require.Equal(t, http.StatusCreated, rec.Code)

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/api/v1/users/"+user.ID, nil).Code)

	rec = f.do(t, http.MethodGet, "/api/v1/users/"+user.ID+"/watchlists", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]model.Watchlist](t, rec))
}

func TestCriteriaFields(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/api/v1/criteria/fields", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Fundamental []criteria.Field             `json:"fundamental"`
		Technical   []criteria.Field             `json:"technical"`
		Operators   []string                     `json:"operators"`
		Options     map[string][]criteria.Option `json:"options"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Fundamental, 22)
	assert.Len(t, body.Technical, 11)
	assert.Equal(t, []string{">", "<", ">=", "<=", "==", "!="}, body.Operators)
	assert.Contains(t, body.Options, "sector")
}
