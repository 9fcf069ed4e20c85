package transport

import (
	"context"
	"fmt"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/TheMichaelB/vaultsync/internal/models"
)

// Notifications connects to the server's change feed and yields events
// until the connection drops or ctx is cancelled. Callers typically
// trigger an AutoSync on each event instead of polling; losing the feed
// is not an error, syncing just falls back to the next explicit trigger.
func (c *HTTPClient) Notifications(ctx context.Context) (<-chan models.ChangeEvent, error) {
	wsURL := c.baseURL
	if strings.HasPrefix(wsURL, "http") {
		wsURL = "ws" + wsURL[len("http"):]
	}
	wsURL += "/ws"

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial notification feed: %w", err)
	}

	events := make(chan models.ChangeEvent, 16)

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	go func() {
		defer close(events)
		defer conn.Close()

		for {
			var ev models.ChangeEvent
			if err := conn.ReadJSON(&ev); err != nil {
				if ctx.Err() == nil {
					c.logger.WithError(err).Debug("Notification feed closed")
				}
				return
			}

			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}
