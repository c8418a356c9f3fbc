// ABOUTME: Websocket feed of variable changes
// ABOUTME: Full snapshot on connect, then one message per change
package bridge

import (
	"log"
	"net/http"
	"time"

	"github.com/bitfocus/companion-module-discord-api/internal/variables"
	"github.com/gorilla/websocket"
)

const (
	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
	sendBuffer    = 64
)

// Update is one websocket message.
type Update struct {
	// Type is "snapshot" for the first message and "variables" after.
	Type   string           `json:"type"`
	Values variables.Values `json:"values"`
}

// client is one websocket subscriber
type client struct {
	conn     *websocket.Conn
	sendChan chan Update
}

// push queues u. It closes the connection and reports false when the client
// cannot keep up.
func (c *client) push(u Update) bool {
	select {
	case c.sendChan <- u:
		return true
	default:
		log.Printf("bridge: websocket client send buffer full, disconnecting")
		c.conn.Close()
		return false
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("bridge: websocket upgrade: %v", err)
		return
	}

	c := &client{conn: conn, sendChan: make(chan Update, sendBuffer)}

	s.clientsMu.Lock()
	s.clients[c] = struct{}{}
	c.sendChan <- Update{Type: "snapshot", Values: s.tracker.Current()}
	s.wg.Add(1)
	s.clientsMu.Unlock()

	if s.config.Debug {
		log.Printf("bridge: websocket client %s connected", r.RemoteAddr)
	}

	done := make(chan struct{})
	go func() {
		defer s.wg.Done()
		s.clientWriter(c, done)
	}()

	// Reads only detect the close; clients send nothing.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("bridge: websocket error: %v", err)
			}
			break
		}
	}

	s.clientsMu.Lock()
	delete(s.clients, c)
	s.clientsMu.Unlock()
	close(done)
	conn.Close()
}

// clientWriter sends queued updates and keepalive pings.
func (s *Server) clientWriter(c *client, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case u := <-c.sendChan:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteJSON(u); err != nil {
				c.conn.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				c.conn.Close()
				return
			}
		}
	}
}
