package remote

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/atroshin/resumesync/internal/models"
)

// Subscription is a handle on one change-notification stream.
type Subscription struct {
	conn *websocket.Conn
	once sync.Once
	done chan struct{}
}

// Unsubscribe closes the stream. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = s.conn.Close()
	})
}

// Done is closed when the stream ends, whether by Unsubscribe or by a
// server-side close.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Changes subscribes to the change-notification stream for one resume and
// invokes fn for every event. The subscription ends when ctx is cancelled,
// Unsubscribe is called, or the connection drops.
func (c *Client) Changes(ctx context.Context, resumeID string, fn func(models.ChangeEvent)) (*Subscription, error) {
	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) +
		"/api/resumes/" + resumeID + "/changes"

	header := http.Header{}
	if tok := c.Token(); tok != "" {
		header.Set("Authorization", "Bearer "+tok)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, statusError("changes", resp.StatusCode, "")
		}
		return nil, classify("changes", err)
	}

	sub := &Subscription{conn: conn, done: make(chan struct{})}

	go func() {
		defer close(sub.done)
		for {
			var ev models.ChangeEvent
			if err := conn.ReadJSON(&ev); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.log.Debug("change stream ended", zap.String("resume_id", resumeID), zap.Error(err))
				}
				return
			}
			fn(ev)
		}
	}()

	go func() {
		select {
		case <-ctx.Done():
			sub.Unsubscribe()
		case <-sub.done:
		}
	}()

	return sub, nil
}
