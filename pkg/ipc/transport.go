// ABOUTME: Framed duplex transport over a Discord IPC socket
// ABOUTME: Owns the read loop, answers PING and reports teardown
package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
)

// MaxEndpoints is how many discord-ipc-N endpoints are probed.
const MaxEndpoints = 10

const readBufferSize = 4096

type conn interface {
	io.ReadWriteCloser
	CloseWrite() error
}

// Transport is a connected IPC socket. Frames are delivered to the handler
// from a single reader goroutine in arrival order.
type Transport struct {
	conn     conn
	endpoint string
	onFrame  func(Frame)

	writeMu sync.Mutex

	once sync.Once
	done chan struct{}
	err  error
}

// Dial tries each endpoint in order and returns a transport on the first one
// that accepts. onFrame receives every frame except PING, which is answered
// with a PONG carrying the same payload.
func Dial(ctx context.Context, endpoints []string, onFrame func(Frame)) (*Transport, error) {
	t, err := dial(ctx, endpoints, onFrame)
	if err != nil {
		return nil, err
	}
	t.start()
	return t, nil
}

func dial(ctx context.Context, endpoints []string, onFrame func(Frame)) (*Transport, error) {
	if len(endpoints) == 0 {
		endpoints = Endpoints()
	}

	cerr := &ConnectionError{}
	for _, endpoint := range endpoints {
		c, err := dialEndpoint(ctx, endpoint)
		if err != nil {
			cerr.Attempts = append(cerr.Attempts, Attempt{Endpoint: endpoint, Err: err})
			if ctx.Err() != nil {
				break
			}
			continue
		}

		return newTransport(c, endpoint, onFrame), nil
	}
	return nil, cerr
}

func newTransport(c conn, endpoint string, onFrame func(Frame)) *Transport {
	if onFrame == nil {
		onFrame = func(Frame) {}
	}
	return &Transport{
		conn:     c,
		endpoint: endpoint,
		onFrame:  onFrame,
		done:     make(chan struct{}),
	}
}

func (t *Transport) start() {
	go t.readLoop()
}

// Endpoint returns the address the transport is connected to.
func (t *Transport) Endpoint() string {
	return t.endpoint
}

// Send encodes payload and writes it as a single frame.
func (t *Transport) Send(op Opcode, payload any) error {
	packet, err := Encode(op, payload)
	if err != nil {
		return err
	}

	select {
	case <-t.done:
		return fmt.Errorf("ipc: send %s: %w", op, io.ErrClosedPipe)
	default:
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := t.conn.Write(packet); err != nil {
		t.finish(fmt.Errorf("ipc: write failed: %w", err))
		return err
	}
	return nil
}

// CloseWrite half-closes the socket so the peer sees end of stream.
func (t *Transport) CloseWrite() error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.CloseWrite()
}

// Close tears the connection down. It is safe to call more than once.
func (t *Transport) Close() error {
	t.finish(nil)
	return nil
}

// Done is closed once the connection has been torn down.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

// Err returns why the transport ended, or nil if Close was called first.
// It is only meaningful after Done is closed.
func (t *Transport) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

func (t *Transport) finish(err error) {
	t.once.Do(func() {
		t.err = err
		t.conn.Close()
		close(t.done)
	})
}

func (t *Transport) readLoop() {
	var dec Decoder
	buf := make([]byte, readBufferSize)

	for {
		n, err := t.conn.Read(buf)
		if n > 0 {
			frames, ferr := dec.Feed(buf[:n])
			for _, f := range frames {
				t.deliver(f)
			}
			if ferr != nil {
				log.Printf("ipc: %v (%d bytes held)", ferr, dec.Buffered())
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = fmt.Errorf("ipc: connection closed by peer: %w", err)
			} else {
				err = fmt.Errorf("ipc: read failed: %w", err)
			}
			t.finish(err)
			return
		}
	}
}

func (t *Transport) deliver(f Frame) {
	if f.Op == OpPing {
		if err := t.Send(OpPong, f.Payload); err != nil {
			log.Printf("ipc: failed to answer ping: %v", err)
		}
		return
	}
	t.onFrame(f)
}
