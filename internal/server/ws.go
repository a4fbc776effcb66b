package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ayusman/fitcheck/internal/session"
)

const writeWait = 2 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// SnapshotFeed publishes session snapshots.
type SnapshotFeed interface {
	Snapshot() session.Snapshot
	Subscribe() (<-chan session.Snapshot, func())
}

// LiveSocket pushes every session snapshot to WebSocket clients as JSON.
type LiveSocket struct {
	feed   SnapshotFeed
	logger zerolog.Logger
}

// NewLiveSocket creates a new LiveSocket on the given feed.
func NewLiveSocket(feed SnapshotFeed, logger zerolog.Logger) *LiveSocket {
	return &LiveSocket{feed: feed, logger: logger}
}

// ServeHTTP upgrades the request and streams snapshots until either side
// closes. The current snapshot is sent first.
func (h *LiveSocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	snaps, unsubscribe := h.feed.Subscribe()
	defer unsubscribe()

	// Reading detects the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := h.write(conn, h.feed.Snapshot()); err != nil {
		return
	}

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case snap, ok := <-snaps:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
					time.Now().Add(writeWait))
				return
			}
			if err := h.write(conn, snap); err != nil {
				h.logger.Debug().Err(err).Msg("websocket client dropped")
				return
			}
		}
	}
}

func (h *LiveSocket) write(conn *websocket.Conn, snap session.Snapshot) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(snap)
}
