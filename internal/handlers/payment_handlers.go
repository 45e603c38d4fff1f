package handlers

import (
	"errors"
	"net/http"

	"meterbill/internal/common"
	"meterbill/internal/models"
	"meterbill/internal/services"

	"github.com/labstack/echo/v4"
)

// PaymentHandlers handles HTTP requests for the payment lifecycle
type PaymentHandlers struct {
	paymentService services.PaymentService
}

// NewPaymentHandlers creates a new payment handlers instance
func NewPaymentHandlers(paymentService services.PaymentService) *PaymentHandlers {
	return &PaymentHandlers{
		paymentService: paymentService,
	}
}

// InitializePayment handles POST /payments/initialize
// @Summary Initialize a tier-upgrade transaction with the payment gateway
// @Tags payments
// @Accept json
// @Produce json
// @Success 201 {object} services.PaymentInitResult
// @Router /v1/payments/initialize [post]
func (h *PaymentHandlers) InitializePayment(c echo.Context) error {
	ctx := c.Request().Context()

	accountID, ok := common.GetAccountIDFromContext(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "Account not found")
	}

	var req struct {
		Email         string   `json:"email" validate:"required,email"`
		Tier          string   `json:"tier" validate:"required"`
		BillingPeriod string   `json:"billing_period" validate:"required"`
		Currency      string   `json:"currency" validate:"required"`
		CallbackURL   string   `json:"callback_url"`
		Channels      []string `json:"channels"`
		CustomerName  string   `json:"customer_name"`
		Phone         string   `json:"phone"`
	}

	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	if err := common.ValidateEmail(req.Email); err != nil {
		return common.SendValidationError(c, "email", err.Error())
	}
	tier, ok := models.ParseTier(req.Tier)
	if !ok {
		return common.SendValidationError(c, "tier", "tier must be one of: free, pro")
	}
	period, ok := models.ParseBillingPeriod(req.BillingPeriod)
	if !ok {
		return common.SendValidationError(c, "billing_period", "billing period must be one of: monthly, yearly")
	}
	if err := common.ValidateRequiredString(req.Currency, "currency"); err != nil {
		return common.SendValidationError(c, "currency", err.Error())
	}

	result, err := h.paymentService.Initialize(ctx, &services.InitializePaymentRequest{
		AccountID:     accountID,
		Email:         req.Email,
		Tier:          tier,
		BillingPeriod: period,
		Currency:      req.Currency,
		CallbackURL:   req.CallbackURL,
		Channels:      req.Channels,
		CustomerName:  req.CustomerName,
		Phone:         req.Phone,
	})
	if err != nil {
		switch {
		case errors.Is(err, common.ErrNotConfigured):
			return echo.NewHTTPError(http.StatusServiceUnavailable, "Payment gateway is not configured")
		case errors.Is(err, common.ErrInvalidPlan):
			return common.SendClientError(c, err.Error())
		case errors.Is(err, common.ErrGatewayRejected):
			return echo.NewHTTPError(http.StatusBadGateway, err.Error())
		default:
			return echo.NewHTTPError(http.StatusBadGateway, "Failed to initialize payment")
		}
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"message": "Payment initialized successfully",
		"payment": result,
	})
}

// VerifyPayment handles GET /payments/verify/:reference
// @Summary Verify a transaction against the gateway and finalize it
// @Tags payments
// @Produce json
// @Router /v1/payments/verify/{reference} [get]
func (h *PaymentHandlers) VerifyPayment(c echo.Context) error {
	ctx := c.Request().Context()

	reference := c.Param("reference")
	if err := common.ValidateRequiredString(reference, "reference"); err != nil {
		return common.SendValidationError(c, "reference", err.Error())
	}

	details, err := h.paymentService.Verify(ctx, reference)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrNotFound):
			return common.SendNotFoundError(c, "Payment")
		case errors.Is(err, common.ErrGatewayRejected):
			return echo.NewHTTPError(http.StatusBadGateway, err.Error())
		default:
			return echo.NewHTTPError(http.StatusBadGateway, "Failed to verify payment")
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":     "Payment verified",
		"transaction": details,
	})
}

// GetPayment handles GET /payments/:reference
func (h *PaymentHandlers) GetPayment(c echo.Context) error {
	ctx := c.Request().Context()

	accountID, ok := common.GetAccountIDFromContext(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "Account not found")
	}

	payment, err := h.paymentService.GetPayment(ctx, c.Param("reference"))
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.SendNotFoundError(c, "Payment")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load payment")
	}

	// Payment records are per-account; never leak another account's record.
	if payment.AccountID != accountID {
		return common.SendNotFoundError(c, "Payment")
	}

	return c.JSON(http.StatusOK, payment)
}

// GetPaymentHistory handles GET /payments
func (h *PaymentHandlers) GetPaymentHistory(c echo.Context) error {
	ctx := c.Request().Context()

	accountID, ok := common.GetAccountIDFromContext(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "Account not found")
	}

	limit, offset, err := paginationParams(c)
	if err != nil {
		return common.SendClientError(c, err.Error())
	}

	payments, err := h.paymentService.GetPaymentHistory(ctx, accountID, limit, offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load payment history")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"payments": payments,
		"limit":    limit,
		"offset":   offset,
	})
}
