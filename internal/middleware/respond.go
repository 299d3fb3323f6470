package middleware

import "github.com/labstack/echo/v4"

// Fail writes the error envelope used by every API response:
// {"success": false, "message": ..., "code": ...} plus any extra fields.
func Fail(c echo.Context, status int, message, code string, extra echo.Map) error {
	body := echo.Map{"success": false, "message": message}
	if code != "" {
		body["code"] = code
	}
	for k, v := range extra {
		body[k] = v
	}
	return c.JSON(status, body)
}
