package http

import (
	"fmt"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v4"

	"github.com/complyport/screening-relay/internal/relay"
)

// streamHandler serves the push channel: a continuous text/event-stream where
// each domain event is one data frame with the sequence as its id, and
// keepalive comment frames defeat idle-connection timeouts. A failed write of
// either kind ends the handler, which detaches the subscriber through the
// same removal path the broadcaster uses.
func streamHandler(broadcaster *relay.Broadcaster, keepalive time.Duration) echo.HandlerFunc {
	return func(c echo.Context) error {
		w := c.Response()
		w.Header().Set(echo.HeaderContentType, "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		w.Flush()

		sub := relay.NewSubscriber(16)
		broadcaster.Attach(sub)
		defer broadcaster.Detach(sub)

		// one ticker per connection, stopped exactly once when the handler
		// returns, regardless of which side closed first
		ticker := time.NewTicker(keepalive)
		defer ticker.Stop()

		ctx := c.Request().Context()
		for {
			select {
			case <-ctx.Done():
				return nil

			case frame, ok := <-sub.C():
				if !ok {
					// pruned by the broadcaster
					return nil
				}
				if _, err := fmt.Fprintf(w, "id: %d\ndata: %s\n\n", frame.Sequence, frame.Data); err != nil {
					return nil
				}
				w.Flush()

			case t := <-ticker.C:
				if _, err := fmt.Fprintf(w, ": keepalive %d\n\n", t.Unix()); err != nil {
					return nil
				}
				w.Flush()
			}
		}
	}
}
