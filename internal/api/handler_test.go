package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/guttosm/dsepulse/internal/domain/dto"
	"github.com/guttosm/dsepulse/internal/domain/models"
	"github.com/guttosm/dsepulse/internal/middleware"
	"github.com/guttosm/dsepulse/internal/service"
	"github.com/guttosm/dsepulse/internal/upstream"
)

type mockStockService struct {
	result  *service.Result
	hist    *service.HistResult
	err     error
	gotArgs []string
}

func (m *mockStockService) GetStockData(context.Context) (*service.Result, error) {
	return m.result, m.err
}

func (m *mockStockService) GetDsexData(_ context.Context, symbol string) (*service.Result, error) {
	m.gotArgs = []string{symbol}
	return m.result, m.err
}

func (m *mockStockService) GetTop30(context.Context) (*service.Result, error) {
	return m.result, m.err
}

func (m *mockStockService) GetHistData(_ context.Context, start, end, code string) (*service.HistResult, error) {
	m.gotArgs = []string{start, end, code}
	return m.hist, m.err
}

var _ service.StockService = (*mockStockService)(nil)

func setupRouterWithMock(s service.StockService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(s)
	r := gin.New()
	r.Use(middleware.ErrorHandler)
	dse := r.Group("/api/v1/dse")
	dse.GET("/hello", h.GetHello)
	dse.GET("/latest", h.GetLatest)
	dse.GET("/dsexdata", h.GetDsexData)
	dse.GET("/top30", h.GetTop30)
	dse.GET("/historical", h.GetHistData)
	return r
}

func sampleResult(stale bool) *service.Result {
	return &service.Result{
		Snapshot: &models.Snapshot{
			Records:   []models.StockRecord{{TradingCode: "ABBANK", Volume: 1000}},
			FetchedAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
			Source:    models.SourceLatest,
		},
		Stale: stale,
	}
}

func TestHandlers_TableDriven(t *testing.T) {
	cases := []struct {
		name   string
		svc    *mockStockService
		query  string
		status int
		assert func(t *testing.T, body []byte)
	}{
		{
			name:   "hello",
			svc:    &mockStockService{},
			query:  "/api/v1/dse/hello",
			status: http.StatusOK,
		},
		{
			name:   "latest success",
			svc:    &mockStockService{result: sampleResult(false)},
			query:  "/api/v1/dse/latest",
			status: http.StatusOK,
			assert: func(t *testing.T, body []byte) {
				var out dto.APIResponse
				if err := json.Unmarshal(body, &out); err != nil {
					t.Fatalf("invalid json: %v", err)
				}
				if !out.Success || out.Message != "success" {
					t.Fatalf("unexpected envelope: %+v", out)
				}
				if out.Meta == nil || out.Meta.Stale || out.Meta.Source != "latest" {
					t.Fatalf("unexpected meta: %+v", out.Meta)
				}
			},
		},
		{
			name:   "latest stale fallback",
			svc:    &mockStockService{result: sampleResult(true)},
			query:  "/api/v1/dse/latest",
			status: http.StatusOK,
			assert: func(t *testing.T, body []byte) {
				var out dto.APIResponse
				if err := json.Unmarshal(body, &out); err != nil {
					t.Fatalf("invalid json: %v", err)
				}
				if !out.Success || out.Meta == nil || !out.Meta.Stale {
					t.Fatalf("stale response not flagged: %+v", out)
				}
			},
		},
		{
			name:   "latest upstream failure",
			svc:    &mockStockService{err: &upstream.Error{Kind: upstream.KindTooManyRetries, Endpoint: "latest"}},
			query:  "/api/v1/dse/latest",
			status: http.StatusInternalServerError,
			assert: func(t *testing.T, body []byte) {
				var out dto.ErrorResponse
				if err := json.Unmarshal(body, &out); err != nil {
					t.Fatalf("invalid json: %v", err)
				}
				if out.Message != "failed to fetch data from DSE" {
					t.Fatalf("unexpected message: %q", out.Message)
				}
			},
		},
		{
			name:   "dsexdata with symbol",
			svc:    &mockStockService{result: sampleResult(false)},
			query:  "/api/v1/dse/dsexdata?symbol=abbank",
			status: http.StatusOK,
		},
		{
			name:   "top30 success",
			svc:    &mockStockService{result: sampleResult(false)},
			query:  "/api/v1/dse/top30",
			status: http.StatusOK,
		},
		{
			name:   "historical missing dates",
			svc:    &mockStockService{},
			query:  "/api/v1/dse/historical?start=2024-01-01",
			status: http.StatusBadRequest,
		},
		{
			name:   "historical invalid range",
			svc:    &mockStockService{err: &service.ValidationError{Kind: service.KindInvalidDateRange, Message: "start date must not be after end date"}},
			query:  "/api/v1/dse/historical?start=2024-02-01&end=2024-01-01",
			status: http.StatusBadRequest,
		},
		{
			name: "historical success",
			svc: &mockStockService{hist: &service.HistResult{Series: &models.HistoricalSeries{
				Start: "2024-01-01", End: "2024-01-31", Code: "ABBANK",
				Days: []models.HistoricalDay{{Date: "2024-01-02", Records: []models.StockRecord{{TradingCode: "ABBANK"}}}},
			}}},
			query:  "/api/v1/dse/historical?start=2024-01-01&end=2024-01-31&code=ABBANK",
			status: http.StatusOK,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := setupRouterWithMock(tc.svc)
			req := httptest.NewRequest(http.MethodGet, tc.query, nil)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.status {
				t.Fatalf("expected %d, got %d (body %s)", tc.status, w.Code, w.Body.String())
			}
			if tc.assert != nil {
				tc.assert(t, w.Body.Bytes())
			}
		})
	}
}

// TestGetHistData_DefaultsCode checks the code query param falls back to
// "All Instrument" when absent.
func TestGetHistData_DefaultsCode(t *testing.T) {
	m := &mockStockService{hist: &service.HistResult{Series: &models.HistoricalSeries{}}}
	r := setupRouterWithMock(m)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/dse/historical?start=2024-01-01&end=2024-01-31", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(m.gotArgs) != 3 || m.gotArgs[2] != service.AllInstruments {
		t.Fatalf("expected default code, got %v", m.gotArgs)
	}
}
