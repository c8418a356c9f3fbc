// ABOUTME: Main bridge application orchestration
// ABOUTME: Wires config, token store, RPC client, actions, HTTP API, mDNS and TUI
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/bitfocus/companion-module-discord-api/internal/bridge"
	"github.com/bitfocus/companion-module-discord-api/internal/config"
	"github.com/bitfocus/companion-module-discord-api/internal/discovery"
	"github.com/bitfocus/companion-module-discord-api/internal/tokenstore"
	"github.com/bitfocus/companion-module-discord-api/internal/ui"
	"github.com/bitfocus/companion-module-discord-api/internal/version"
	"github.com/bitfocus/companion-module-discord-api/internal/webhook"
	"github.com/bitfocus/companion-module-discord-api/pkg/actions"
	"github.com/bitfocus/companion-module-discord-api/pkg/rpc"
	"github.com/bitfocus/companion-module-discord-api/pkg/voice"
	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"
)

const destroyTimeout = 5 * time.Second

// Options are the runtime hooks that do not come from the config file.
type Options struct {
	// Endpoints overrides the IPC probe list.
	Endpoints []string
	// BaseURL overrides the Discord API root.
	BaseURL    string
	HTTPClient *http.Client

	// TUI receives state updates when set. Control carries its key commands.
	TUI     *tea.Program
	Control *ui.Control
}

// Bridge is the running application
type Bridge struct {
	config  config.Config
	opts    Options
	tokens  rpc.TokenStore
	store   *voice.Store
	client  *rpc.Client
	actions *actions.Actions
	server  *bridge.Server
}

// New builds every component. Nothing connects until Run.
func New(ctx context.Context, cfg config.Config, opts Options) (*Bridge, error) {
	tokens, err := tokenstore.Open(ctx, cfg.TokenStore)
	if err != nil {
		return nil, fmt.Errorf("opening token store: %w", err)
	}

	b := &Bridge{
		config: cfg,
		opts:   opts,
		tokens: tokens,
		store:  voice.NewStore(voice.Config{SpeakerDelay: cfg.SpeakerDelay}),
	}

	b.client, err = rpc.New(rpc.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       cfg.Scopes,
		Endpoints:    opts.Endpoints,
		BaseURL:      opts.BaseURL,
		HTTPClient:   opts.HTTPClient,
		TokenStore:   tokens,
		Store:        b.store,
		OnStatus:     b.onStatus,
		Debug:        cfg.Debug,
	})
	if err != nil {
		b.closeTokens()
		return nil, err
	}

	sender, err := webhook.NewSender(webhook.Config{HTTPClient: opts.HTTPClient, Debug: cfg.Debug})
	if err != nil {
		b.closeTokens()
		return nil, err
	}

	b.actions, err = actions.New(actions.Config{
		Client:  b.client,
		Store:   b.store,
		Webhook: sender,
		Variables: func() map[string]string {
			return b.server.Variables()
		},
		Debug: cfg.Debug,
	})
	if err != nil {
		b.closeTokens()
		return nil, err
	}

	b.server, err = bridge.NewServer(bridge.Config{
		Client:  b.client,
		Store:   b.store,
		Actions: b.actions,
		Debug:   cfg.Debug,
	})
	if err != nil {
		b.closeTokens()
		return nil, err
	}
	return b, nil
}

// Store returns the mirrored voice state.
func (b *Bridge) Store() *voice.Store {
	return b.store
}

// Actions returns the action façade.
func (b *Bridge) Actions() *actions.Actions {
	return b.actions
}

// Handler returns the HTTP API handler.
func (b *Bridge) Handler() http.Handler {
	return b.server.Handler()
}

func (b *Bridge) onStatus(s rpc.Status, msg string) {
	if msg != "" {
		log.Printf("app: status %s: %s", s, msg)
	} else {
		log.Printf("app: status %s", s)
	}
}

// Run connects to Discord and serves until ctx is cancelled or the TUI
// quits.
func (b *Bridge) Run(ctx context.Context) error {
	defer b.closeTokens()

	log.Printf("app: starting %s %s", version.Product, version.Version)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var ln net.Listener
	if b.config.HTTP.Addr != "" {
		var err error
		ln, err = net.Listen("tcp", b.config.HTTP.Addr)
		if err != nil {
			return fmt.Errorf("listening on %s: %w", b.config.HTTP.Addr, err)
		}
	}

	b.client.Start()

	g, ctx := errgroup.WithContext(ctx)

	if ln != nil {
		g.Go(func() error { return b.server.Serve(ctx, ln) })
	} else {
		defer b.server.Close()
	}

	if b.config.Discovery.Enabled && ln != nil {
		port := ln.Addr().(*net.TCPAddr).Port
		g.Go(func() error {
			mgr := discovery.NewManager(discovery.Config{
				ServiceName: b.config.Discovery.ServiceName,
				Port:        port,
				Info:        []string{"path=/", "version=" + version.Version},
			})
			if err := mgr.Advertise(ctx); err != nil {
				// The bridge stays reachable by address.
				log.Printf("app: mdns: %v", err)
			}
			return nil
		})
	}

	if b.opts.TUI != nil {
		unwatch := b.store.Watch(func(voice.Topic) {
			b.opts.TUI.Send(ui.StateMsg{Snapshot: b.store.Snapshot()})
		})
		defer unwatch()
		b.opts.TUI.Send(ui.StateMsg{Snapshot: b.store.Snapshot()})
	}

	if b.opts.Control != nil {
		g.Go(func() error {
			b.runCommands(ctx, cancel)
			return nil
		})
	}

	<-ctx.Done()
	err := g.Wait()

	destroyCtx, done := context.WithTimeout(context.Background(), destroyTimeout)
	defer done()
	if derr := b.client.Destroy(destroyCtx); derr != nil {
		log.Printf("app: destroy: %v", derr)
	}
	return err
}

// runCommands executes TUI key commands until ctx ends or the user quits.
func (b *Bridge) runCommands(ctx context.Context, quit context.CancelFunc) {
	for {
		select {
		case cmd := <-b.opts.Control.Commands:
			raw, err := json.Marshal(cmd.Options)
			if err == nil {
				err = b.actions.Run(ctx, cmd.Action, raw)
			}
			if b.opts.TUI != nil {
				b.opts.TUI.Send(ui.ErrorMsg{Err: err})
			}
		case <-b.opts.Control.Quit:
			log.Printf("app: quit requested")
			quit()
			return
		case <-ctx.Done():
			return
		}
	}
}

func (b *Bridge) closeTokens() {
	c, ok := b.tokens.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		log.Printf("app: closing token store: %v", err)
	}
}
