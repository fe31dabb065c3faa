package middleware

import "github.com/labstack/echo/v4"

// CallerEmail returns the email stored by JWTAuth, or "" for anonymous
// requests.
func CallerEmail(c echo.Context) string {
	if v, ok := c.Get(ContextEmail).(string); ok {
		return v
	}
	return ""
}

// userKey identifies the caller for rate limiting: the email when
// authenticated, "anon" otherwise.
func userKey(c echo.Context) string {
	if e := CallerEmail(c); e != "" {
		return e
	}
	return "anon"
}
