// ABOUTME: Fake Discord IPC peer for tests
// ABOUTME: Listens on a real unix socket and speaks the framed protocol
package ipctest

import (
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bitfocus/companion-module-discord-api/pkg/ipc"
)

// Server accepts IPC connections on discord-ipc-0 in a private directory.
type Server struct {
	Dir  string
	Path string

	ln    net.Listener
	conns chan *Conn
}

// NewServer starts listening and points XDG_RUNTIME_DIR at the socket
// directory so ipc.Endpoints finds it first.
func NewServer(t testing.TB) *Server {
	t.Helper()

	// unix socket paths are length limited, keep it short
	dir, err := os.MkdirTemp("", "dipc")
	if err != nil {
		t.Fatalf("creating socket dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	path := filepath.Join(dir, "discord-ipc-0")
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("listening on %s: %v", path, err)
	}

	s := &Server{
		Dir:   dir,
		Path:  path,
		ln:    ln,
		conns: make(chan *Conn, 8),
	}
	t.Setenv("XDG_RUNTIME_DIR", dir)
	t.Cleanup(func() { ln.Close() })

	go s.acceptLoop()
	return s
}

// Endpoints returns the single endpoint served.
func (s *Server) Endpoints() []string {
	return []string{s.Path}
}

// Accept waits for the next client connection.
func (s *Server) Accept(t testing.TB) *Conn {
	t.Helper()
	select {
	case c := <-s.conns:
		return c
	case <-time.After(5 * time.Second):
		t.Fatalf("no ipc connection within 5s")
		return nil
	}
}

func (s *Server) acceptLoop() {
	for {
		nc, err := s.ln.Accept()
		if err != nil {
			return
		}
		c := newConn(nc)
		go c.readLoop()
		s.conns <- c
	}
}

// Conn is the peer side of one client connection.
type Conn struct {
	nc      net.Conn
	writeMu sync.Mutex
	frames  chan ipc.Frame
	closed  chan struct{}
	once    sync.Once
}

func newConn(nc net.Conn) *Conn {
	return &Conn{
		nc:     nc,
		frames: make(chan ipc.Frame, 256),
		closed: make(chan struct{}),
	}
}

func (c *Conn) readLoop() {
	defer c.shut()
	var dec ipc.Decoder
	buf := make([]byte, 4096)
	for {
		n, err := c.nc.Read(buf)
		if n > 0 {
			frames, _ := dec.Feed(buf[:n])
			for _, f := range frames {
				c.frames <- f
			}
		}
		if err != nil {
			return
		}
	}
}

func (c *Conn) shut() {
	c.once.Do(func() { close(c.closed) })
}

// Next returns the next frame the client sent.
func (c *Conn) Next(t testing.TB) ipc.Frame {
	t.Helper()
	select {
	case f := <-c.frames:
		return f
	case <-time.After(5 * time.Second):
		t.Fatalf("no frame from client within 5s")
		return ipc.Frame{}
	}
}

// ExpectHandshake reads the handshake frame and returns its client id.
func (c *Conn) ExpectHandshake(t testing.TB) string {
	t.Helper()
	f := c.Next(t)
	if f.Op != ipc.OpHandshake {
		t.Fatalf("expected HANDSHAKE, got %s", f.Op)
	}
	var hs struct {
		V        int    `json:"v"`
		ClientID string `json:"client_id"`
	}
	if err := json.Unmarshal(f.Payload, &hs); err != nil {
		t.Fatalf("decoding handshake: %v", err)
	}
	if hs.V != ipc.ProtocolVersion {
		t.Fatalf("handshake version %d", hs.V)
	}
	return hs.ClientID
}

// Send writes one frame to the client.
func (c *Conn) Send(op ipc.Opcode, payload any) error {
	packet, err := ipc.Encode(op, payload)
	if err != nil {
		return err
	}
	return c.SendRaw(packet)
}

// SendRaw writes bytes verbatim, for split-frame and malformed input.
func (c *Conn) SendRaw(b []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	select {
	case <-c.closed:
		return errors.New("ipctest: connection closed")
	default:
	}
	_, err := c.nc.Write(b)
	return err
}

// Closed is closed once the client hangs up or Close is called.
func (c *Conn) Closed() <-chan struct{} {
	return c.closed
}

// Close drops the connection without a CLOSE frame.
func (c *Conn) Close() {
	c.nc.Close()
	c.shut()
}
