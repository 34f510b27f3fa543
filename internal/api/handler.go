package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/guttosm/dsepulse/internal/domain/dto"
	"github.com/guttosm/dsepulse/internal/domain/models"
	"github.com/guttosm/dsepulse/internal/service"
)

// Handler provides HTTP handlers for the DSE market data endpoints.
//
// Responsibilities:
//   - Validate incoming HTTP query parameters
//   - Delegate to the stock service for data access
//   - Wrap results in the {success, data, message, meta} envelope
//
// Typed core errors are attached to the context and mapped to statuses by
// the ErrorHandler middleware.
type Handler struct {
	svc service.StockService
}

// NewHandler constructs a new Handler instance.
func NewHandler(svc service.StockService) *Handler {
	return &Handler{svc: svc}
}

// GetHello handles GET /api/v1/dse/hello.
//
// GetHello godoc
// @Summary      Test endpoint
// @Description  Returns a hello world message
// @Tags         test
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /api/v1/dse/hello [get]
func (h *Handler) GetHello(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Hello World"})
}

// GetLatest handles GET /api/v1/dse/latest.
//
// GetLatest godoc
// @Summary      Get latest stock data
// @Description  Retrieves the latest stock market snapshot from DSE
// @Tags         stocks
// @Produce      json
// @Success      200  {object}  dto.APIResponse    "Success (meta.stale=true when served from an expired cache)"
// @Failure      500  {object}  dto.ErrorResponse  "Upstream or parse failure with no cached fallback"
// @Router       /api/v1/dse/latest [get]
func (h *Handler) GetLatest(c *gin.Context) {
	res, err := h.svc.GetStockData(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	respondSnapshot(c, res)
}

// GetDsexData handles GET /api/v1/dse/dsexdata.
//
// GetDsexData godoc
// @Summary      Get DSEX data
// @Description  Fetches DSEX share data with an optional symbol filter
// @Tags         stocks
// @Produce      json
// @Param        symbol  query     string  false  "Trading code to filter by (case-insensitive exact match)"  example(ABBANK)
// @Success      200     {object}  dto.APIResponse
// @Failure      500     {object}  dto.ErrorResponse
// @Router       /api/v1/dse/dsexdata [get]
func (h *Handler) GetDsexData(c *gin.Context) {
	symbol := strings.TrimSpace(c.Query("symbol"))

	res, err := h.svc.GetDsexData(c.Request.Context(), symbol)
	if err != nil {
		_ = c.Error(err)
		return
	}
	respondSnapshot(c, res)
}

// GetTop30 handles GET /api/v1/dse/top30.
//
// GetTop30 godoc
// @Summary      Get top 30 stocks
// @Description  Returns the 30 instruments ranked by trading value (desc), ties by volume (desc) then trading code (asc)
// @Tags         stocks
// @Produce      json
// @Success      200  {object}  dto.APIResponse
// @Failure      500  {object}  dto.ErrorResponse
// @Router       /api/v1/dse/top30 [get]
func (h *Handler) GetTop30(c *gin.Context) {
	res, err := h.svc.GetTop30(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	respondSnapshot(c, res)
}

// GetHistData handles GET /api/v1/dse/historical.
//
// GetHistData godoc
// @Summary      Get historical stock data
// @Description  Retrieves day-end archive data for a date range and optional instrument
// @Tags         stocks
// @Produce      json
// @Param        start  query     string  true   "Start date (YYYY-MM-DD)"  example(2024-01-01)
// @Param        end    query     string  true   "End date (YYYY-MM-DD)"    example(2024-01-31)
// @Param        code   query     string  false  "Instrument code, default All Instrument"  example(ABBANK)
// @Success      200    {object}  dto.APIResponse
// @Failure      400    {object}  dto.ErrorResponse  "Missing parameters, bad date format, or start after end"
// @Failure      500    {object}  dto.ErrorResponse
// @Router       /api/v1/dse/historical [get]
func (h *Handler) GetHistData(c *gin.Context) {
	start := strings.TrimSpace(c.Query("start"))
	end := strings.TrimSpace(c.Query("end"))
	code := c.DefaultQuery("code", service.AllInstruments)

	if start == "" || end == "" {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse("start and end dates are required", nil))
		return
	}

	res, err := h.svc.GetHistData(c.Request.Context(), start, end, code)
	if err != nil {
		_ = c.Error(err)
		return
	}

	meta := &dto.Meta{
		Source:      string(models.SourceHistorical),
		FetchedAt:   res.Series.FetchedAt,
		DroppedRows: res.Series.DroppedRows,
	}
	if res.Stale {
		c.JSON(http.StatusOK, dto.NewStaleResponse(res.Series, meta))
		return
	}
	c.JSON(http.StatusOK, dto.NewAPIResponse(res.Series, meta))
}

func respondSnapshot(c *gin.Context, res *service.Result) {
	meta := &dto.Meta{
		Source:      string(res.Snapshot.Source),
		FetchedAt:   res.Snapshot.FetchedAt,
		DroppedRows: res.Snapshot.DroppedRows,
	}
	if res.Stale {
		c.JSON(http.StatusOK, dto.NewStaleResponse(res.Snapshot, meta))
		return
	}
	c.JSON(http.StatusOK, dto.NewAPIResponse(res.Snapshot, meta))
}
