package middleware

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"meterbill/internal/common"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// AuthMiddleware validates bearer tokens and puts the account id (the `sub`
// claim) into the request context. Tokens are verified either against a
// shared HS256 secret or a remote JWKS endpoint when one is configured.
type AuthMiddleware struct {
	keyFn jwt.Keyfunc
	// validMethods pins the accepted signing algorithms to the configured
	// mode, so an HS256 token cannot be verified against a published JWKS
	// public key.
	validMethods []string
}

func NewAuthMiddleware(jwtSecret, jwksURL string) (*AuthMiddleware, error) {
	if jwksURL != "" {
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
			RefreshInterval: time.Hour,
			RefreshErrorHandler: func(err error) {
				log.Printf("JWKS refresh failed: %v", err)
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch JWKS from %s: %w", jwksURL, err)
		}
		return &AuthMiddleware{keyFn: jwks.Keyfunc, validMethods: []string{"RS256", "ES256"}}, nil
	}

	if jwtSecret == "" {
		return nil, fmt.Errorf("either JWT_SECRET or JWKS_URL must be configured")
	}
	secret := []byte(jwtSecret)
	return &AuthMiddleware{
		keyFn: func(token *jwt.Token) (interface{}, error) {
			return secret, nil
		},
		validMethods: []string{"HS256"},
	}, nil
}

// Authenticate is the echo middleware enforcing bearer auth.
func (m *AuthMiddleware) Authenticate() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Missing token")
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token format")
			}

			token, err := jwt.Parse(tokenString, m.keyFn, jwt.WithValidMethods(m.validMethods))
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
			}
			if !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "Token not valid")
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid claims")
			}

			sub, ok := claims["sub"].(string)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "Missing account id in token")
			}

			accountID, err := uuid.Parse(sub)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid account id format")
			}

			ctx := context.WithValue(c.Request().Context(), common.AccountIDKey, accountID)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}
