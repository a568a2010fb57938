package http

import (
	"errors"
	"io"
	"net/http"

	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/complyport/screening-relay/internal/relay"
)

// webhookHandler accepts vendor screening-completion callbacks. The optional
// :vendor path param overrides the event source tag; the X-Tenant header is
// the caller-supplied tenant fallback.
func webhookHandler(ingester *relay.Ingester) echo.HandlerFunc {
	return func(c echo.Context) error {
		body, err := io.ReadAll(io.LimitReader(c.Request().Body, 1<<20))
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"status":  "error",
				"message": "unreadable body",
			})
		}

		evt, err := ingester.Ingest(
			c.Request().Context(),
			body,
			c.Request().Header.Get("X-Tenant"),
			c.Param("vendor"),
		)
		if err != nil {
			if errors.Is(err, relay.ErrInvalidPayload) {
				return c.JSON(http.StatusBadRequest, map[string]string{
					"status":  "error",
					"message": "malformed payload",
				})
			}

			log.Errorf("ingest failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{
				"status":  "error",
				"message": "internal error",
			})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"status":  "ok",
			"eventId": evt.ID,
		})
	}
}
