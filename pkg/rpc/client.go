// ABOUTME: Discord RPC client over an IPC session
// ABOUTME: Nonce-correlated requests, event dispatch and session ownership
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/bitfocus/companion-module-discord-api/internal/clock"
	"github.com/bitfocus/companion-module-discord-api/pkg/ipc"
	"github.com/bitfocus/companion-module-discord-api/pkg/voice"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const (
	DefaultBaseURL        = "https://discord.com/api"
	DefaultRequestTimeout = 10 * time.Second
	DefaultReadyTimeout   = 10 * time.Second
	DefaultReconnectDelay = 5 * time.Second
	RedirectURL           = "http://localhost"
)

// handlerTimeout bounds one event handler including the requests it makes.
const handlerTimeout = 30 * time.Second

// Config holds client configuration
type Config struct {
	ClientID     string
	ClientSecret string
	Scopes       []string

	// Endpoints overrides the IPC probe list.
	Endpoints []string

	// BaseURL is the Discord API root used for the OAuth token endpoint.
	BaseURL    string
	HTTPClient *http.Client

	TokenStore TokenStore
	Store      *voice.Store
	Clock      clock.Clock

	RequestTimeout time.Duration
	ReadyTimeout   time.Duration
	ReconnectDelay time.Duration

	// OnStatus is called on every status change.
	OnStatus func(Status, string)

	Debug bool
}

// Client is a Discord RPC client. It owns at most one IPC session at a time
// and mirrors voice state into the configured store.
type Client struct {
	config Config
	store  *voice.Store
	oauth  *oauth2.Config

	handlers map[Event]eventHandler

	// serializes Init
	initMu sync.Mutex

	mu          sync.Mutex
	conn        *connection
	state       State
	status      Status
	statusMsg   string
	destroyed   bool
	reconnect   clock.Timer
	initCancel  context.CancelFunc
	application *Application

	subMu     sync.Mutex
	voiceSubs map[Event]*Subscription
}

type result struct {
	data json.RawMessage
	err  error
}

// connection is one IPC session with its pending table and event worker.
type connection struct {
	session *ipc.Session
	events  *eventQueue

	readyOnce sync.Once
	ready     chan struct{}

	mu      sync.Mutex
	pending map[string]chan result
	ended   bool
}

func newConnection() *connection {
	return &connection{
		events:  newEventQueue(),
		ready:   make(chan struct{}),
		pending: make(map[string]chan result),
	}
}

func (cn *connection) add(nonce string) (chan result, bool) {
	cn.mu.Lock()
	defer cn.mu.Unlock()
	if cn.ended {
		return nil, false
	}
	ch := make(chan result, 1)
	cn.pending[nonce] = ch
	return ch, true
}

func (cn *connection) take(nonce string) (chan result, bool) {
	cn.mu.Lock()
	defer cn.mu.Unlock()
	ch, ok := cn.pending[nonce]
	if ok {
		delete(cn.pending, nonce)
	}
	return ch, ok
}

func (cn *connection) failAll(err error) {
	cn.mu.Lock()
	defer cn.mu.Unlock()
	cn.ended = true
	for nonce, ch := range cn.pending {
		ch <- result{err: err}
		delete(cn.pending, nonce)
	}
}

func (cn *connection) pendingCount() int {
	cn.mu.Lock()
	defer cn.mu.Unlock()
	return len(cn.pending)
}

// New creates a client. It does not connect; call Init or Start.
func New(config Config) (*Client, error) {
	if config.ClientID == "" {
		return nil, fmt.Errorf("rpc: client id is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if len(config.Scopes) == 0 {
		config.Scopes = DefaultScopes
	}
	if config.TokenStore == nil {
		config.TokenStore = &MemoryTokenStore{}
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Store == nil {
		config.Store = voice.NewStore(voice.Config{Clock: config.Clock})
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = DefaultRequestTimeout
	}
	if config.ReadyTimeout == 0 {
		config.ReadyTimeout = DefaultReadyTimeout
	}
	if config.ReconnectDelay == 0 {
		config.ReconnectDelay = DefaultReconnectDelay
	}

	c := &Client{
		config: config,
		store:  config.Store,
		oauth:  newOAuthConfig(config),
		state:  StateDisconnected,
		status: StatusConnecting,
	}
	c.handlers = c.eventHandlers()
	return c, nil
}

// Store returns the voice store the client mirrors into.
func (c *Client) Store() *voice.Store {
	return c.store
}

// Application returns the application bound by AUTHENTICATE.
func (c *Client) Application() (Application, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.application == nil {
		return Application{}, false
	}
	return *c.application, true
}

func (c *Client) current() *connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// Request sends cmd and waits for the correlated response. Requests other
// than AUTHORIZE fail with ErrTimeout after the request timeout.
func (c *Client) Request(ctx context.Context, cmd Command, args any) (json.RawMessage, error) {
	return c.request(ctx, cmd, args, "")
}

func (c *Client) request(ctx context.Context, cmd Command, args any, evt Event) (json.RawMessage, error) {
	cn := c.current()
	if cn == nil || cn.session == nil {
		return nil, fmt.Errorf("%s: %w", cmd, ErrDisconnected)
	}

	nonce := uuid.NewString()
	ch, ok := cn.add(nonce)
	if !ok {
		return nil, fmt.Errorf("%s: %w", cmd, ErrDisconnected)
	}

	if err := cn.session.Send(request{Cmd: cmd, Args: args, Evt: evt, Nonce: nonce}); err != nil {
		cn.take(nonce)
		return nil, fmt.Errorf("sending %s: %w", cmd, err)
	}

	var timeout <-chan time.Time
	if cmd != CmdAuthorize && c.config.RequestTimeout > 0 {
		timeout = c.config.Clock.After(c.config.RequestTimeout)
	}

	select {
	case res := <-ch:
		return res.data, res.err
	case <-ctx.Done():
		cn.take(nonce)
		return nil, fmt.Errorf("%s: %w", cmd, ctx.Err())
	case <-timeout:
		cn.take(nonce)
		return nil, fmt.Errorf("%s: %w", cmd, ErrTimeout)
	}
}

// call sends cmd and decodes the response data into T.
func call[T any](ctx context.Context, c *Client, cmd Command, args any) (T, error) {
	var out T
	data, err := c.request(ctx, cmd, args, "")
	if err != nil {
		return out, err
	}
	if len(data) == 0 || string(data) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decoding %s response: %w", cmd, err)
	}
	return out, nil
}

// handleMessage runs on the session's reader goroutine.
func (c *Client) handleMessage(cn *connection, raw json.RawMessage) {
	var msg message
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Printf("rpc: undecodable message: %v", err)
		return
	}

	if msg.Cmd == CmdDispatch && msg.Evt == EvtReady {
		var ready struct {
			User *voice.User `json:"user"`
		}
		if err := json.Unmarshal(msg.Data, &ready); err == nil && ready.User != nil {
			c.store.SetUser(*ready.User)
		}
		cn.readyOnce.Do(func() { close(cn.ready) })
		return
	}

	if msg.Nonce != "" {
		if ch, ok := cn.take(msg.Nonce); ok {
			res := c.toResult(msg)
			if res.err == nil && msg.Cmd == CmdSetVoiceSettings {
				// applied by the worker so pushes stay in arrival order
				cn.events.push(event{name: EvtVoiceSettingsUpdate, data: msg.Data})
			}
			ch <- res
			return
		}
	}

	if msg.Evt == "" {
		if c.config.Debug {
			log.Printf("rpc: dropping unmatched %s response", msg.Cmd)
		}
		return
	}
	cn.events.push(event{name: msg.Evt, data: msg.Data})
}

func (c *Client) toResult(msg message) result {
	if msg.Evt != EvtError {
		return result{data: msg.Data}
	}
	var ed errorData
	if err := json.Unmarshal(msg.Data, &ed); err != nil {
		ed.Message = string(msg.Data)
	}
	return result{err: &Error{Cmd: msg.Cmd, Code: ed.Code, Message: ed.Message, Data: msg.Data}}
}

// dispatch runs on the event worker goroutine.
func (c *Client) dispatch(e event) {
	h, ok := c.handlers[e.name]
	if !ok {
		if c.config.Debug {
			log.Printf("rpc: no handler for %s", e.name)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if err := h(ctx, e.data); err != nil {
		log.Printf("rpc: %s handler: %v", e.name, err)
	}
}

// isDisconnect reports errors caused by the session going away.
func isDisconnect(err error) bool {
	return errors.Is(err, ErrDisconnected) || errors.Is(err, ErrClosed)
}
