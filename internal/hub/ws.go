package hub

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 5 * time.Second
	readTimeout  = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin enforcement belongs to the CORS layer in front of us.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsConn serializes writes to a single websocket connection and bounds how
// long a slow subscriber can hold up its own send.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

// ServeWS upgrades the request and subscribes the connection to a session.
// Accepting the upgrade is the first observable side effect. The read loop
// only consumes keep-alives; any read error funnels into Unsubscribe, which
// tolerates the duplicate call a failed push may already have made.
func ServeWS(h *Hub, w http.ResponseWriter, r *http.Request, sessionID string) error {
	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	conn := &wsConn{conn: raw}
	h.Subscribe(conn, sessionID)

	go func() {
		defer func() {
			h.Unsubscribe(conn, sessionID)
			_ = raw.Close()
		}()
		for {
			_ = raw.SetReadDeadline(time.Now().Add(readTimeout))
			if _, _, err := raw.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return nil
}
