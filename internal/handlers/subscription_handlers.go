package handlers

import (
	"errors"
	"net/http"

	"meterbill/internal/common"
	"meterbill/internal/models"
	"meterbill/internal/services"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// SubscriptionHandlers serves subscription and plan reads. Subscription
// writes happen only through payment finalization.
type SubscriptionHandlers struct {
	quotaService   services.QuotaService
	invoiceService services.InvoiceService
}

// NewSubscriptionHandlers creates a new subscription handlers instance
func NewSubscriptionHandlers(quotaService services.QuotaService, invoiceService services.InvoiceService) *SubscriptionHandlers {
	return &SubscriptionHandlers{
		quotaService:   quotaService,
		invoiceService: invoiceService,
	}
}

// GetSubscription handles GET /subscription
func (h *SubscriptionHandlers) GetSubscription(c echo.Context) error {
	ctx := c.Request().Context()

	accountID, ok := common.GetAccountIDFromContext(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "Account not found")
	}

	subscription, err := h.quotaService.GetSubscription(ctx, accountID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load subscription")
	}
	if subscription == nil {
		// No record yet means the account is on the implicit free tier.
		return c.JSON(http.StatusOK, map[string]interface{}{
			"account_id": accountID,
			"tier":       models.TierFree,
			"is_active":  false,
		})
	}

	return c.JSON(http.StatusOK, subscription)
}

// GetAvailablePlans handles GET /plans
func (h *SubscriptionHandlers) GetAvailablePlans(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"plans": services.AvailablePlans(),
	})
}

// ListInvoices handles GET /invoices
func (h *SubscriptionHandlers) ListInvoices(c echo.Context) error {
	ctx := c.Request().Context()

	accountID, ok := common.GetAccountIDFromContext(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "Account not found")
	}

	limit, offset, err := paginationParams(c)
	if err != nil {
		return common.SendClientError(c, err.Error())
	}

	invoices, err := h.invoiceService.ListByAccount(ctx, accountID, limit, offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load invoices")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"invoices": invoices,
		"limit":    limit,
		"offset":   offset,
	})
}

// GetInvoiceReceipt handles GET /invoices/:id/receipt
func (h *SubscriptionHandlers) GetInvoiceReceipt(c echo.Context) error {
	ctx := c.Request().Context()

	accountID, ok := common.GetAccountIDFromContext(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "Account not found")
	}

	invoiceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid UUID format")
	}

	invoice, err := h.invoiceService.GetByID(ctx, invoiceID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.SendNotFoundError(c, "Invoice")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load invoice")
	}
	if invoice.AccountID != accountID {
		return common.SendNotFoundError(c, "Invoice")
	}

	url, err := h.invoiceService.ReceiptURL(ctx, invoice)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Receipt archive unavailable")
	}

	return c.JSON(http.StatusOK, map[string]string{
		"receipt_url": url,
	})
}
