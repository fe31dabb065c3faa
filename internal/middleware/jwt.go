package middleware // middleware provides reusable HTTP middleware functions

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// Context keys set by JWTAuth.
const (
	ContextEmail   = "email"
	ContextSubject = "user_id"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token
// signed with HS256 and stores the caller's email claim in the context.
// Tokens are issued by the identity provider; this service only verifies
// them. Venue membership is checked later, per request, by the services.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, echo.ErrUnauthorized
				}
				return []byte(secret), nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !tok.Valid {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			claims, ok := tok.Claims.(jwt.MapClaims)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid claims"})
			}
			email, _ := claims["email"].(string)
			email = strings.ToLower(strings.TrimSpace(email))
			if email == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "token has no email claim"})
			}
			c.Set(ContextEmail, email)
			if sub, err := claims.GetSubject(); err == nil && sub != "" {
				c.Set(ContextSubject, sub)
			}
			return next(c)
		}
	}
}
