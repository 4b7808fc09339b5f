package api

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"TradeSentinel/internal/api/handlers"
	"TradeSentinel/internal/api/models"
	"TradeSentinel/internal/config"
	"TradeSentinel/internal/data"
	"TradeSentinel/internal/model"
	"TradeSentinel/internal/recorder"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testBars(n int) []model.Bar {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]model.Bar, n)
	for i := range bars {
		p := 100 + 10*math.Sin(float64(i)/8)
		bars[i] = model.Bar{Time: t0.Add(time.Duration(i) * time.Hour), Open: p, High: p + 1, Low: p - 1, Close: p, Volume: 1}
	}
	return bars
}

func newTestServer(t *testing.T) (http.Handler, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	cfg, err := config.Load(filepath.Join(dir, "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	cfg.Server.DataDir = dir
	rec, err := recorder.NewSQLiteRecorder(filepath.Join(dir, "runs.db"), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { rec.Close() })
	return NewRouter(handlers.NewEnv(cfg, rec, nil), cfg.Server.AllowedOrigins), cfg
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var resp models.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestHealth(t *testing.T) {
	h, _ := newTestServer(t)
	w := do(t, h, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestBacktest_RecordsRun(t *testing.T) {
	h, _ := newTestServer(t)
	w := do(t, h, http.MethodPost, "/api/v1/backtest", models.BacktestRequest{
		Data:    models.DataSpec{Bars: testBars(300), Symbol: "TEST"},
		Options: models.BacktestOptions{IncludeTrades: true, IncludeEquity: true},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp models.BacktestResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.ID == "" || resp.Bars != 300 || len(resp.Equity) != 300 {
		t.Fatalf("unexpected response id=%q bars=%d equity=%d", resp.ID, resp.Bars, len(resp.Equity))
	}
	if resp.Policy != model.PolicyWeighted || resp.Summary.TotalTrades != len(resp.Trades) {
		t.Errorf("unexpected summary %+v", resp.Summary)
	}

	w = do(t, h, http.MethodGet, "/api/v1/runs/"+resp.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var run recorder.RunRecord
	if err := json.Unmarshal(w.Body.Bytes(), &run); err != nil {
		t.Fatal(err)
	}
	if run.Symbol != "TEST" || run.Source != "api" || run.Summary != resp.Summary {
		t.Errorf("unexpected stored run %+v", run)
	}
}

func TestBacktest_FromDataFile(t *testing.T) {
	h, cfg := newTestServer(t)
	path := filepath.Join(cfg.Server.DataDir, "bars.csv")
	if err := data.Save(path, model.PriceSeries{Symbol: "FILE", Bars: testBars(120)}); err != nil {
		t.Fatal(err)
	}
	w := do(t, h, http.MethodPost, "/api/v1/backtest", models.BacktestRequest{
		Data:   models.DataSpec{File: "../../bars.csv"},
		Policy: "rule",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp models.BacktestResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Policy != model.PolicyRule || resp.Bars != 120 || resp.Symbol != "bars.csv" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestBacktest_Errors(t *testing.T) {
	h, _ := newTestServer(t)
	bad := testBars(50)
	bad[10].Time = bad[9].Time

	weights := model.DefaultParameterSet(model.PolicyWeighted)
	weights.Weights.EMA = 0.9

	tests := []struct {
		name   string
		req    interface{}
		status int
		code   string
	}{
		{"no data", models.BacktestRequest{}, http.StatusBadRequest, "INVALID_DATA"},
		{"bad bars", models.BacktestRequest{Data: models.DataSpec{Bars: bad}}, http.StatusBadRequest, "INVALID_DATA"},
		{"policy", models.BacktestRequest{Data: models.DataSpec{Bars: testBars(50)}, Policy: "grid"}, http.StatusBadRequest, "INVALID_POLICY"},
		{"weights", models.BacktestRequest{Data: models.DataSpec{Bars: testBars(50)}, Params: &weights}, http.StatusBadRequest, "INVALID_PARAMS"},
		{"missing file", models.BacktestRequest{Data: models.DataSpec{File: "nope.csv"}}, http.StatusBadRequest, "INVALID_DATA"},
		{"source", models.BacktestRequest{Data: models.DataSpec{Source: "bloomberg"}}, http.StatusBadRequest, "INVALID_DATA"},
		{"malformed", "not an object", http.StatusBadRequest, "INVALID_REQUEST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/api/v1/backtest", tt.req)
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
			if got := decodeError(t, w).Error.Code; got != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, got)
			}
		})
	}

	w := do(t, h, http.MethodPost, "/api/v1/backtest", models.BacktestRequest{Data: models.DataSpec{Bars: bad}})
	if idx, ok := decodeError(t, w).Error.Details["bar_index"]; !ok || idx != float64(10) {
		t.Errorf("expected bar_index 10 in details, got %v", idx)
	}
}

func TestOptimize(t *testing.T) {
	h, _ := newTestServer(t)
	w := do(t, h, http.MethodPost, "/api/v1/optimize", map[string]interface{}{
		"data":   map[string]interface{}{"source": "mock", "count": 300},
		"policy": "rule",
		"grid":   map[string]interface{}{"ema_short": []int{5, 10, 15}, "take_profit": []float64{0.01, 0.02}},
		"top_n":  2,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp models.OptimizeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 6 || resp.Evaluated != 6 || len(resp.Top) != 2 {
		t.Fatalf("unexpected report %+v", resp)
	}
	if resp.Top[0].Index != resp.Best.Index || resp.Best.Result != nil {
		t.Errorf("best must lead the top list without the full result")
	}
}

func TestOptimize_NoFeasible(t *testing.T) {
	h, _ := newTestServer(t)
	w := do(t, h, http.MethodPost, "/api/v1/optimize", map[string]interface{}{
		"data": map[string]interface{}{"bars": testBars(60)},
		"grid": map[string]interface{}{"weight_ema": []float64{0.9, 0.8}},
	})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", w.Code, w.Body.String())
	}
	if got := decodeError(t, w).Error.Code; got != "NO_RESULT" {
		t.Errorf("unexpected code %s", got)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	h, _ := newTestServer(t)
	w := do(t, h, http.MethodGet, "/api/v1/runs/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	h, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/backtest", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected wildcard origin, got %q", got)
	}
}
