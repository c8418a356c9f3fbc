// ABOUTME: Connection and authentication lifecycle of the RPC client
// ABOUTME: Init, reconnect backoff, bootstrap and teardown
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/bitfocus/companion-module-discord-api/pkg/ipc"
)

// State is the connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthorizing
	StateAuthenticating
	StateReady
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthorizing:
		return "authorizing"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	case StateReconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Status is the coarse signal shown to the user.
type Status string

const (
	StatusConnecting Status = "connecting"
	StatusOK         Status = "ok"
	StatusError      Status = "error"
)

// State returns the lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns the status signal and its message.
func (c *Client) Status() (Status, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status, c.statusMsg
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	if c.config.Debug {
		log.Printf("rpc: state %s", s)
	}
}

func (c *Client) setStatus(s Status, msg string) {
	c.mu.Lock()
	changed := c.status != s || c.statusMsg != msg
	c.status = s
	c.statusMsg = msg
	c.mu.Unlock()

	if changed && c.config.OnStatus != nil {
		c.config.OnStatus(s, msg)
	}
}

// Start runs Init in the background.
func (c *Client) Start() {
	go func() {
		if err := c.Init(context.Background()); err != nil && c.config.Debug {
			log.Printf("rpc: init: %v", err)
		}
	}()
}

// Init tears down any previous session, connects, authenticates and loads
// the initial state. On failure a reconnect is scheduled unless Destroy was
// called, and the error is returned.
func (c *Client) Init(ctx context.Context) error {
	return c.initSession(ctx, false)
}

func (c *Client) initSession(ctx context.Context, reconnecting bool) error {
	c.initMu.Lock()
	defer c.initMu.Unlock()

	c.teardown(ctx)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if reconnecting && c.destroyed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.destroyed = false
	c.initCancel = cancel
	c.mu.Unlock()

	c.setStatus(StatusConnecting, "Connecting")
	err := c.connect(ctx)

	c.mu.Lock()
	c.initCancel = nil
	destroyed := c.destroyed
	c.mu.Unlock()

	if err == nil {
		return nil
	}
	if destroyed {
		return ErrClosed
	}

	log.Printf("rpc: connection failed: %v", err)
	c.setStatus(StatusError, err.Error())
	c.teardown(context.Background())
	c.scheduleReconnect()
	return err
}

// Destroy closes the session, cancels any pending reconnect and clears the
// store. A later Init starts over.
func (c *Client) Destroy(ctx context.Context) error {
	c.mu.Lock()
	c.destroyed = true
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	if c.initCancel != nil {
		c.initCancel()
	}
	c.mu.Unlock()

	err := c.teardown(ctx)

	c.initMu.Lock()
	c.initMu.Unlock()

	c.store.Reset()
	c.setState(StateDisconnected)
	return err
}

// teardown closes the current session without touching destroyed.
func (c *Client) teardown(ctx context.Context) error {
	c.mu.Lock()
	cn := c.conn
	c.conn = nil
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	c.mu.Unlock()

	var err error
	if cn != nil {
		if cn.session != nil {
			err = cn.session.Close(ctx)
		}
		cn.failAll(ErrDisconnected)
		cn.events.close()

		// let an in-flight handler finish before the caller resets the store
		select {
		case <-cn.events.done:
		case <-ctx.Done():
		}
	}

	// after the session is gone so a handler holding subMu unblocks
	c.subMu.Lock()
	c.voiceSubs = nil
	c.subMu.Unlock()
	return err
}

func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return
	}
	if c.reconnect != nil {
		c.reconnect.Stop()
	}
	c.state = StateReconnecting
	log.Printf("rpc: reconnecting in %s", c.config.ReconnectDelay)
	c.reconnect = c.config.Clock.AfterFunc(c.config.ReconnectDelay, func() {
		go c.initSession(context.Background(), true)
	})
}

func (c *Client) connect(ctx context.Context) error {
	c.setState(StateConnecting)

	cn := newConnection()
	session, err := ipc.Open(ctx, ipc.SessionConfig{
		ClientID:  c.config.ClientID,
		Endpoints: c.config.Endpoints,
		OnMessage: func(raw json.RawMessage) { c.handleMessage(cn, raw) },
		Debug:     c.config.Debug,
	})
	if err != nil {
		return err
	}
	cn.session = session

	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		session.Close(ctx)
		return ErrClosed
	}
	c.conn = cn
	c.mu.Unlock()

	go cn.events.run(c.dispatch)
	go c.watch(cn)

	select {
	case <-cn.ready:
	case <-session.Done():
		return fmt.Errorf("waiting for READY: %w", sessionErr(session))
	case <-ctx.Done():
		return ctx.Err()
	case <-c.config.Clock.After(c.config.ReadyTimeout):
		return fmt.Errorf("no READY from discord within %s", c.config.ReadyTimeout)
	}
	if c.config.Debug {
		log.Printf("rpc: connected via %s", session.Endpoint())
	}

	if err := c.authenticate(ctx); err != nil {
		return err
	}
	return c.bootstrap(ctx)
}

func sessionErr(s *ipc.Session) error {
	if err := s.Err(); err != nil {
		return err
	}
	return ErrDisconnected
}

// watch fails pending requests when the session ends and reconnects after
// an unsolicited loss.
func (c *Client) watch(cn *connection) {
	<-cn.session.Done()

	cn.failAll(ErrDisconnected)
	cn.events.close()

	select {
	case <-cn.session.Disconnected():
	default:
		return
	}

	c.mu.Lock()
	current := c.conn == cn
	if current {
		c.conn = nil
	}
	destroyed := c.destroyed
	c.mu.Unlock()

	if !current || destroyed {
		return
	}

	c.subMu.Lock()
	c.voiceSubs = nil
	c.subMu.Unlock()

	err := cn.session.Err()
	var cerr *ipc.CloseError
	if errors.As(err, &cerr) {
		log.Printf("rpc: discord closed the connection: %v", cerr)
	} else {
		log.Printf("rpc: disconnected: %v", err)
	}
	c.setStatus(StatusError, "Disconnected")

	// Init holds initMu while connecting; only reconnect from an idle client
	if c.initMu.TryLock() {
		c.initMu.Unlock()
		c.scheduleReconnect()
	}
}

// bootstrap loads guilds, settings and the active voice channel, then
// subscribes to the session-wide events.
func (c *Client) bootstrap(ctx context.Context) error {
	if err := c.RefreshChannels(ctx); err != nil {
		return fmt.Errorf("loading channels: %w", err)
	}

	settings, err := c.GetVoiceSettings(ctx)
	if err != nil {
		return fmt.Errorf("loading voice settings: %w", err)
	}
	c.store.SetVoiceSettings(settings)

	vc, err := c.GetSelectedVoiceChannel(ctx)
	if err != nil {
		return fmt.Errorf("loading voice channel: %w", err)
	}
	c.store.SetVoiceChannel(vc)
	if vc != nil {
		c.resetVoiceSubscriptions(ctx, vc.ID)
	}

	for _, evt := range GlobalEvents {
		if _, err := c.Subscribe(ctx, evt, nil); err != nil {
			if isDisconnect(err) {
				return err
			}
			log.Printf("%v", err)
		}
	}

	c.setState(StateReady)
	c.setStatus(StatusOK, "OK")
	return nil
}
