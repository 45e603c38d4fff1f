package handlers

import (
	"net/http"
	"strconv"
	"time"

	"meterbill/internal/common"
	"meterbill/internal/services"

	"github.com/labstack/echo/v4"
)

// UsageHandlers serves the metering read API
type UsageHandlers struct {
	quotaService services.QuotaService
}

// NewUsageHandlers creates a new usage handlers instance
func NewUsageHandlers(quotaService services.QuotaService) *UsageHandlers {
	return &UsageHandlers{
		quotaService: quotaService,
	}
}

// GetUsageStats handles GET /usage
// @Summary Current usage snapshot for the authenticated account
// @Tags usage
// @Produce json
// @Success 200 {object} models.UsageSnapshot
// @Router /v1/usage [get]
func (h *UsageHandlers) GetUsageStats(c echo.Context) error {
	ctx := c.Request().Context()

	accountID, ok := common.GetAccountIDFromContext(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "Account not found")
	}

	snapshot, err := h.quotaService.UsageStats(ctx, accountID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load usage stats")
	}

	resp := map[string]interface{}{
		"account":       snapshot.AccountID,
		"tier":          snapshot.Tier,
		"requests_used": snapshot.RequestsUsed,
		"day_bucket":    snapshot.DayBucket,
		"reset_time":    snapshot.ResetTime.Format(time.RFC3339),
	}
	if snapshot.RequestsLimit != nil {
		resp["requests_limit"] = *snapshot.RequestsLimit
	}
	return c.JSON(http.StatusOK, resp)
}

// paginationParams reads limit/offset query params with sane defaults.
func paginationParams(c echo.Context) (int, int, error) {
	limit := 50
	offset := 0

	if limitParam := c.QueryParam("limit"); limitParam != "" {
		if l, err := strconv.Atoi(limitParam); err == nil && l > 0 {
			limit = l
		}
	}
	if offsetParam := c.QueryParam("offset"); offsetParam != "" {
		if o, err := strconv.Atoi(offsetParam); err == nil && o >= 0 {
			offset = o
		}
	}

	return common.ValidatePaginationParams(limit, offset)
}
