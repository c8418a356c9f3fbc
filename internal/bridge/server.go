// ABOUTME: Local HTTP API for control-surface hosts
// ABOUTME: Debug queries, variable snapshots, action calls and a websocket feed
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/bitfocus/companion-module-discord-api/internal/variables"
	"github.com/bitfocus/companion-module-discord-api/pkg/actions"
	"github.com/bitfocus/companion-module-discord-api/pkg/voice"
	"github.com/gorilla/websocket"
)

const (
	shutdownTimeout = 5 * time.Second
	maxBodyBytes    = 1 << 20
)

// Voice is the part of the RPC client the debug endpoint uses.
type Voice interface {
	ResetVoiceSubscriptions(ctx context.Context)
	GetSelectedVoiceChannel(ctx context.Context) (*voice.VoiceChannel, error)
}

// Runner runs named actions.
type Runner interface {
	Run(ctx context.Context, name string, raw json.RawMessage) error
}

// Config holds bridge configuration
type Config struct {
	Client  Voice
	Store   *voice.Store
	Actions Runner
	Debug   bool
}

// Server is the bridge HTTP server
type Server struct {
	config   Config
	mux      *http.ServeMux
	upgrader websocket.Upgrader
	tracker  variables.Tracker
	unwatch  func()

	// Client management
	clients   map[*client]struct{}
	clientsMu sync.Mutex

	wg sync.WaitGroup
}

// NewServer creates a bridge server and starts tracking store changes.
func NewServer(config Config) (*Server, error) {
	if config.Store == nil {
		return nil, errors.New("bridge: store is required")
	}
	if config.Client == nil {
		return nil, errors.New("bridge: client is required")
	}
	if config.Actions == nil {
		return nil, errors.New("bridge: actions are required")
	}

	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Bound to loopback by default; any local page may read state.
				return true
			},
		},
		clients: make(map[*client]struct{}),
	}

	s.mux.HandleFunc("GET /debug", s.handleDebug)
	s.mux.HandleFunc("GET /variables", s.handleVariables)
	s.mux.HandleFunc("GET /channels", s.handleChannels)
	s.mux.HandleFunc("GET /actions", s.handleActionList)
	s.mux.HandleFunc("POST /actions/{action}", s.handleAction)
	s.mux.HandleFunc("GET /ws", s.handleWebSocket)

	s.publish()
	s.unwatch = config.Store.Watch(func(voice.Topic) { s.publish() })
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errChan := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(ln); err != http.ErrServerClosed {
			errChan <- err
		}
		close(errChan)
	}()
	log.Printf("bridge: listening on %s", ln.Addr())

	select {
	case <-ctx.Done():
	case err := <-errChan:
		s.Close()
		return fmt.Errorf("bridge: serve: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("bridge: shutdown: %v", err)
	}
	s.Close()
	return nil
}

// Close stops tracking the store and disconnects websocket clients.
func (s *Server) Close() {
	s.unwatch()

	s.clientsMu.Lock()
	for c := range s.clients {
		c.conn.Close()
	}
	s.clientsMu.Unlock()
	s.wg.Wait()
}

// publish recomputes the variables and pushes what changed.
func (s *Server) publish() {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	changed := s.tracker.Update(variables.Build(s.config.Store.Snapshot()))
	if len(changed) == 0 {
		return
	}
	for c := range s.clients {
		if !c.push(Update{Type: "variables", Values: changed}) {
			delete(s.clients, c)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Printf("bridge: write response: %v", err)
	}
}

type errorBody struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Status: status, Message: msg})
}

func (s *Server) handleDebug(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	switch r.URL.Query().Get("type") {
	case "resetVoice":
		s.config.Client.ResetVoiceSubscriptions(ctx)
		w.WriteHeader(http.StatusOK)
	case "sortedVoiceUsers":
		users := s.config.Store.SortedVoiceUsers(false)
		if users == nil {
			users = []voice.VoiceUser{}
		}
		writeJSON(w, http.StatusOK, users)
	case "getSelectedVoiceChannel":
		vc, err := s.config.Client.GetSelectedVoiceChannel(ctx)
		if err != nil {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, vc)
	default:
		writeError(w, http.StatusNotFound, "Not Found")
	}
}

// Variables returns the last published variables.
func (s *Server) Variables() map[string]string {
	return s.tracker.Current()
}

func (s *Server) handleVariables(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tracker.Current())
}

// channelList feeds the channel pickers of joinVoiceChannel and
// joinTextChannel.
type channelList struct {
	Text  []voice.Choice `json:"text"`
	Voice []voice.Choice `json:"voice"`
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, channelList{
		Text:  s.config.Store.TextChannelChoices(),
		Voice: s.config.Store.VoiceChannelChoices(),
	})
}

func (s *Server) handleActionList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, actions.Names())
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("action")
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.config.Debug {
		log.Printf("bridge: action %s %s", name, body)
	}

	err = s.config.Actions.Run(r.Context(), name, body)
	var unknown actions.ErrUnknownAction
	var invalid *actions.ValidationError
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.As(err, &unknown):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &invalid):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}
