// ABOUTME: IPC session with handshake and explicit close
// ABOUTME: Forwards FRAME bodies and distinguishes shutdown from loss
package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"
)

// ProtocolVersion is sent in the handshake.
const ProtocolVersion = 1

// closeWait caps how long Close waits for the peer to hang up.
const closeWait = 2 * time.Second

// SessionConfig configures Open.
type SessionConfig struct {
	ClientID  string
	Endpoints []string // defaults to Endpoints()
	OnMessage func(json.RawMessage)
	Debug     bool
}

type handshake struct {
	V        int    `json:"v"`
	ClientID string `json:"client_id"`
}

// Session is a handshaken IPC connection.
type Session struct {
	config    SessionConfig
	transport *Transport

	mu       sync.Mutex
	closing  bool
	closeErr *CloseError

	done         chan struct{}
	disconnected chan struct{}
	err          error
}

// Open dials the first reachable endpoint and sends the handshake.
func Open(ctx context.Context, config SessionConfig) (*Session, error) {
	if config.ClientID == "" {
		return nil, fmt.Errorf("ipc: client id is required")
	}
	if config.OnMessage == nil {
		config.OnMessage = func(json.RawMessage) {}
	}

	s := &Session{
		config:       config,
		done:         make(chan struct{}),
		disconnected: make(chan struct{}),
	}

	t, err := dial(ctx, config.Endpoints, s.handleFrame)
	if err != nil {
		return nil, err
	}
	s.transport = t
	t.start()

	if config.Debug {
		log.Printf("ipc: connected to %s", t.Endpoint())
	}

	if err := t.Send(OpHandshake, handshake{V: ProtocolVersion, ClientID: config.ClientID}); err != nil {
		t.Close()
		return nil, fmt.Errorf("ipc: handshake failed: %w", err)
	}

	go s.watch()
	return s, nil
}

// Send writes msg as a FRAME.
func (s *Session) Send(msg any) error {
	if s.config.Debug {
		if b, err := json.Marshal(msg); err == nil {
			log.Printf("ipc: -> %s", b)
		}
	}
	return s.transport.Send(OpFrame, msg)
}

// Close sends CLOSE, half-closes the socket and waits for the peer to hang
// up, bounded by ctx and a short cap. The connection is always released.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		<-s.done
		return nil
	}
	s.closing = true
	s.mu.Unlock()

	if err := s.transport.Send(OpClose, struct{}{}); err == nil {
		if err := s.transport.CloseWrite(); err != nil && s.config.Debug {
			log.Printf("ipc: half-close failed: %v", err)
		}
	}

	timer := time.NewTimer(closeWait)
	defer timer.Stop()

	var err error
	select {
	case <-s.transport.Done():
	case <-timer.C:
	case <-ctx.Done():
		err = ctx.Err()
	}

	s.transport.Close()
	<-s.done
	return err
}

// Done is closed when the session ends for any reason.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Disconnected is closed only when the session ends without Close.
func (s *Session) Disconnected() <-chan struct{} {
	return s.disconnected
}

// Err reports why an unsolicited disconnect happened. A CLOSE from the peer
// is returned as *CloseError.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Endpoint returns the connected endpoint.
func (s *Session) Endpoint() string {
	return s.transport.Endpoint()
}

func (s *Session) handleFrame(f Frame) {
	switch f.Op {
	case OpFrame:
		if s.config.Debug {
			log.Printf("ipc: <- %s", f.Payload)
		}
		s.config.OnMessage(f.Payload)
	case OpClose:
		cerr := &CloseError{}
		if err := json.Unmarshal(f.Payload, cerr); err != nil {
			cerr.Message = string(f.Payload)
		}
		s.mu.Lock()
		s.closeErr = cerr
		s.mu.Unlock()
		log.Printf("ipc: %v", cerr)
		s.transport.Close()
	case OpPong:
		if s.config.Debug {
			log.Printf("ipc: pong %s", f.Payload)
		}
	default:
		log.Printf("ipc: ignoring %s frame", f.Op)
	}
}

func (s *Session) watch() {
	<-s.transport.Done()

	s.mu.Lock()
	closing := s.closing
	if s.closeErr != nil {
		s.err = s.closeErr
	} else {
		s.err = s.transport.Err()
	}
	s.mu.Unlock()

	if closing {
		s.err = nil
	} else {
		if s.err == nil {
			s.err = fmt.Errorf("ipc: connection to %s lost", s.transport.Endpoint())
		}
		close(s.disconnected)
	}
	close(s.done)
}
