package handlers

import (
	"errors"
	"io"
	"net/http"

	"meterbill/internal/common"
	"meterbill/internal/services"

	"github.com/labstack/echo/v4"
)

// signatureHeader carries the gateway's hex HMAC-SHA512 of the raw body.
const signatureHeader = "x-paystack-signature"

// WebhookHandlers handles gateway-pushed payment events
type WebhookHandlers struct {
	paymentService services.PaymentService
}

// NewWebhookHandlers creates a new webhook handlers instance
func NewWebhookHandlers(paymentService services.PaymentService) *WebhookHandlers {
	return &WebhookHandlers{
		paymentService: paymentService,
	}
}

// PaystackWebhook handles POST /webhooks/paystack
func (h *WebhookHandlers) PaystackWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Failed to read request body")
	}

	signature := c.Request().Header.Get(signatureHeader)
	if signature == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing gateway signature")
	}

	event, err := h.paymentService.ProcessWebhook(c.Request().Context(), body, signature)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrInvalidSignature):
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid webhook signature")
		case errors.Is(err, common.ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "Unknown transaction reference")
		case errors.Is(err, common.ErrMalformedResponse):
			return echo.NewHTTPError(http.StatusBadRequest, "Malformed webhook payload")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "Failed to process webhook")
		}
	}

	// Unrecognized events get the same 200 as handled ones, so the gateway
	// does not retry them indefinitely.
	return c.JSON(http.StatusOK, map[string]string{
		"status": "success",
		"event":  event.Name,
	})
}
