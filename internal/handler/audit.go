package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/nurox-dashboard/internal/middleware"
	"github.com/iliyamo/nurox-dashboard/internal/queue"
)

// AuditReader reads recent auth events.  *repository.AuditLog satisfies it.
type AuditReader interface {
	Recent(ctx context.Context, n int64) ([]queue.AuthEvent, error)
}

// AuditHandler serves the auth audit trail.
type AuditHandler struct {
	Events AuditReader
	Log    zerolog.Logger
}

// List returns up to ?limit= events (default 50), newest first.
func (h *AuditHandler) List(c echo.Context) error {
	if h.Events == nil {
		return middleware.Fail(c, http.StatusServiceUnavailable, "Audit log unavailable", "audit_unavailable", nil)
	}
	limit := int64(50)
	if s := c.QueryParam("limit"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n < 1 {
			return middleware.Fail(c, http.StatusBadRequest, "limit must be a positive integer", "invalid_limit", nil)
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	events, err := h.Events.Recent(ctx, limit)
	if err != nil {
		h.Log.Error().Err(err).Msg("read audit log failed")
		return middleware.Fail(c, http.StatusServiceUnavailable, "Audit log unavailable", "audit_unavailable", nil)
	}
	return ok(c, "", events)
}
