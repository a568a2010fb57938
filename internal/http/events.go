package http

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v4"

	"github.com/complyport/screening-relay/internal/archive"
	"github.com/complyport/screening-relay/internal/relay"
)

// pollHandler answers "events after sequence N" for polling clients.
func pollHandler(pollSvc *relay.PollService) echo.HandlerFunc {
	return func(c echo.Context) error {
		var cursor int64
		if v := c.QueryParam("since"); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil || n < 0 {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid since"})
			}
			cursor = n
		}

		return c.JSON(http.StatusOK, pollSvc.Poll(cursor))
	}
}

// healthHandler reports operational introspection only.
func healthHandler(eventLog *relay.EventLog, registry *relay.Registry) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"status":           "ok",
			"eventId":          eventLog.Latest(),
			"storedEvents":     eventLog.Len(),
			"connectedClients": registry.Len(),
		})
	}
}

// reportsHandler lists archived events from ClickHouse for back office use.
func reportsHandler(store archive.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		limit := 50
		offset := 0
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				limit = n
			}
		}
		if v := c.QueryParam("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				offset = n
			}
		}

		rows, err := store.List(c.Request().Context(), c.QueryParam("customer_id"), limit, offset)
		if err != nil {
			c.Logger().Errorf("clickhouse list failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"limit":   limit,
			"offset":  offset,
			"count":   len(rows),
			"results": rows,
		})
	}
}
