// ABOUTME: Scripted Discord RPC peer built on the fake IPC server
// ABOUTME: Answers commands by name and pushes DISPATCH events
package ipctest

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bitfocus/companion-module-discord-api/pkg/ipc"
)

// ErrNoReply makes a handler leave the request unanswered.
var ErrNoReply = errors.New("ipctest: no reply")

// Error is returned by a handler to answer with evt ERROR.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string { return e.Message }

// Request is a command the client sent.
type Request struct {
	Cmd   string          `json:"cmd"`
	Args  json.RawMessage `json:"args"`
	Evt   string          `json:"evt,omitempty"`
	Nonce string          `json:"nonce"`
}

// Handler produces the data for a command response.
type Handler func(req Request) (any, error)

// Discord accepts client connections, completes the handshake with READY and
// answers every command through registered handlers. Commands without a
// handler are answered with null data; SUBSCRIBE and UNSUBSCRIBE echo the
// event name.
type Discord struct {
	srv *Server

	mu       sync.Mutex
	handlers map[string]Handler
	requests []Request
	conn     *Conn
	conns    int
	clientID string
}

// NewDiscord starts a fake client on a fresh socket.
func NewDiscord(t testing.TB) *Discord {
	t.Helper()
	d := &Discord{
		srv:      NewServer(t),
		handlers: make(map[string]Handler),
	}
	go d.serve()
	return d
}

// Endpoints returns the socket to dial.
func (d *Discord) Endpoints() []string {
	return d.srv.Endpoints()
}

// Handle registers the response handler for cmd.
func (d *Discord) Handle(cmd string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[cmd] = h
}

// Respond registers a handler that always answers with data.
func (d *Discord) Respond(cmd string, data any) {
	d.Handle(cmd, func(Request) (any, error) { return data, nil })
}

// Dispatch pushes an event to the current connection.
func (d *Discord) Dispatch(evt string, data any) error {
	d.mu.Lock()
	c := d.conn
	d.mu.Unlock()
	if c == nil {
		return errors.New("ipctest: no client connected")
	}
	return c.Send(ipc.OpFrame, map[string]any{"cmd": "DISPATCH", "evt": evt, "data": data})
}

// Requests returns every request seen for cmd, or all requests when cmd is
// empty.
func (d *Discord) Requests(cmd string) []Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Request
	for _, r := range d.requests {
		if cmd == "" || r.Cmd == cmd {
			out = append(out, r)
		}
	}
	return out
}

// WaitRequests blocks until at least n requests for cmd arrived.
func (d *Discord) WaitRequests(t testing.TB, cmd string, n int) []Request {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if reqs := d.Requests(cmd); len(reqs) >= n {
			return reqs
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d %s requests, got %d", n, cmd, len(d.Requests(cmd)))
	return nil
}

// Connections returns how many clients have completed the handshake.
func (d *Discord) Connections() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns
}

// ClientID returns the id sent in the last handshake.
func (d *Discord) ClientID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clientID
}

// Drop closes the current connection without a CLOSE frame.
func (d *Discord) Drop() {
	d.mu.Lock()
	c := d.conn
	d.mu.Unlock()
	if c != nil {
		c.Close()
	}
}

func (d *Discord) serve() {
	for c := range d.srv.conns {
		go d.session(c)
	}
}

func (d *Discord) session(c *Conn) {
	var f ipc.Frame
	select {
	case f = <-c.frames:
	case <-c.closed:
		return
	}
	if f.Op != ipc.OpHandshake {
		c.Close()
		return
	}
	var hs struct {
		ClientID string `json:"client_id"`
	}
	json.Unmarshal(f.Payload, &hs)

	d.mu.Lock()
	d.conn = c
	d.conns++
	d.clientID = hs.ClientID
	d.mu.Unlock()

	c.Send(ipc.OpFrame, map[string]any{
		"cmd": "DISPATCH",
		"evt": "READY",
		"data": map[string]any{
			"v":    1,
			"user": map[string]any{"id": "0", "username": "fake"},
		},
	})

	for {
		select {
		case f = <-c.frames:
		case <-c.closed:
			return
		}
		switch f.Op {
		case ipc.OpFrame:
			d.answer(c, f.Payload)
		case ipc.OpClose:
			c.Close()
			return
		}
	}
}

func (d *Discord) answer(c *Conn, payload json.RawMessage) {
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return
	}

	d.mu.Lock()
	d.requests = append(d.requests, req)
	h := d.handlers[req.Cmd]
	d.mu.Unlock()

	var data any
	var err error
	switch {
	case h != nil:
		data, err = h(req)
	case req.Cmd == "SUBSCRIBE" || req.Cmd == "UNSUBSCRIBE":
		data = map[string]any{"evt": req.Evt}
	}

	if errors.Is(err, ErrNoReply) {
		return
	}

	resp := map[string]any{"cmd": req.Cmd, "nonce": req.Nonce, "data": data}
	var rerr *Error
	if errors.As(err, &rerr) {
		resp["evt"] = "ERROR"
		resp["data"] = rerr
	} else if err != nil {
		resp["evt"] = "ERROR"
		resp["data"] = &Error{Code: 1000, Message: err.Error()}
	}
	c.Send(ipc.OpFrame, resp)
}
