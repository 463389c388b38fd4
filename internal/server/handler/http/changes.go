package http

import (
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/atroshin/resumesync/internal/models"
)

// subscriberBuffer is how many undelivered events one subscriber may lag
// behind before being dropped.
const subscriberBuffer = 16

// ChangeHub fans section change events out to websocket subscribers, keyed
// by resume id. It implements service.Notifier.
type ChangeHub struct {
	log      *zap.Logger
	upgrader websocket.Upgrader

	mu   sync.Mutex
	subs map[string]map[chan models.ChangeEvent]struct{}
}

// NewChangeHub constructs a ChangeHub.
func NewChangeHub(log *zap.Logger) *ChangeHub {
	return &ChangeHub{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The API is token-authenticated; origin checks do not apply
			// to non-browser clients.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		subs: make(map[string]map[chan models.ChangeEvent]struct{}),
	}
}

// Broadcast delivers ev to every subscriber of its resume. Slow subscribers
// are skipped rather than blocking the write path.
func (h *ChangeHub) Broadcast(ev models.ChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[ev.ResumeID] {
		select {
		case ch <- ev:
		default:
			h.log.Warn("dropping change event for slow subscriber",
				zap.String("resume_id", ev.ResumeID))
		}
	}
}

func (h *ChangeHub) subscribe(resumeID string) chan models.ChangeEvent {
	ch := make(chan models.ChangeEvent, subscriberBuffer)
	h.mu.Lock()
	if h.subs[resumeID] == nil {
		h.subs[resumeID] = make(map[chan models.ChangeEvent]struct{})
	}
	h.subs[resumeID][ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *ChangeHub) unsubscribe(resumeID string, ch chan models.ChangeEvent) {
	h.mu.Lock()
	delete(h.subs[resumeID], ch)
	if len(h.subs[resumeID]) == 0 {
		delete(h.subs, resumeID)
	}
	h.mu.Unlock()
}

// Serve handles GET /api/resumes/{id}/changes, upgrading to a websocket and
// streaming change events until either side closes.
func (h *ChangeHub) Serve(w http.ResponseWriter, r *http.Request) {
	resumeID := chi.URLParam(r, "id")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	ch := h.subscribe(resumeID)
	defer h.unsubscribe(resumeID, ch)
	defer func() { _ = conn.Close() }()

	// Reader goroutine: only to observe the peer closing.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case ev := <-ch:
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}
