package middleware

import (
	"errors"
	"log"
	"net/http"

	"meterbill/internal/common"
	"meterbill/internal/services"

	"github.com/labstack/echo/v4"
)

// QuotaAdmission meters every request on the routes it wraps. Free-tier
// accounts past today's ceiling get 429; pro accounts pass through without
// counter bookkeeping. Must run after Authenticate.
func QuotaAdmission(quotaSvc services.QuotaService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			accountID, ok := common.GetAccountIDFromContext(c.Request().Context())
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "Account not found")
			}

			if err := quotaSvc.RecordRequest(c.Request().Context(), accountID); err != nil {
				if errors.Is(err, common.ErrQuotaExceeded) {
					return common.SendQuotaExceededError(c)
				}
				log.Printf("Quota admission failed for account %s: %v", accountID, err)
				return echo.NewHTTPError(http.StatusInternalServerError, "Failed to record request")
			}

			return next(c)
		}
	}
}
