package middleware

import "github.com/labstack/echo/v4"

// principal names the caller for rate limit keys: the token subject when
// JWTAuth ran, otherwise "anon".  Verification scans are anonymous, so for
// them only the ip and route parts of a key discriminate.
func principal(c echo.Context) string {
	if s, ok := c.Get(CtxSubject).(string); ok && s != "" {
		return s
	}
	return "anon"
}
