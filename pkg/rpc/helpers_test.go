// ABOUTME: Shared fixtures for RPC client tests
// ABOUTME: Fake Discord peer, fake OAuth token endpoint and client setup
package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bitfocus/companion-module-discord-api/internal/clock"
	"github.com/bitfocus/companion-module-discord-api/internal/ipctest"
	"github.com/bitfocus/companion-module-discord-api/pkg/voice"
	"github.com/stretchr/testify/require"
)

type tokenServer struct {
	*httptest.Server

	mu    sync.Mutex
	forms []map[string]string

	// rejectRefresh fails refresh_token grants
	rejectRefresh bool
}

func newTokenServer(t *testing.T) *tokenServer {
	ts := &tokenServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth2/token" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		form := map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}

		ts.mu.Lock()
		ts.forms = append(ts.forms, form)
		reject := ts.rejectRefresh && form["grant_type"] == "refresh_token"
		ts.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if reject {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-" + form["grant_type"],
			"refresh_token": "refresh-next",
			"token_type":    "Bearer",
			"expires_in":    604800,
			"scope":         "rpc rpc.voice.read",
		})
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *tokenServer) setRejectRefresh(v bool) {
	ts.mu.Lock()
	ts.rejectRefresh = v
	ts.mu.Unlock()
}

func (ts *tokenServer) grants() []string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	var out []string
	for _, f := range ts.forms {
		out = append(out, f["grant_type"])
	}
	return out
}

func (ts *tokenServer) lastForm() map[string]string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if len(ts.forms) == 0 {
		return nil
	}
	return ts.forms[len(ts.forms)-1]
}

var (
	selfUser = voice.VoiceUser{Nick: "Me", Volume: 100, User: voice.User{ID: "100", Username: "me"}}
	beaUser  = voice.VoiceUser{Nick: "Bea", Volume: 100, User: voice.User{ID: "1", Username: "bea"}}
	alUser   = voice.VoiceUser{Nick: "Al", Volume: 100, User: voice.User{ID: "2", Username: "al"}}
)

func voiceChannel(id string, users ...voice.VoiceUser) *voice.VoiceChannel {
	return &voice.VoiceChannel{
		Channel:     voice.Channel{ID: id, GuildID: "g1", Name: "Voice " + id, Type: 2},
		VoiceStates: users,
	}
}

// newFakeDiscord scripts the commands used during bootstrap. selected is
// returned by GET_SELECTED_VOICE_CHANNEL and may be swapped with the
// returned setter.
func newFakeDiscord(t *testing.T, selected *voice.VoiceChannel) (*ipctest.Discord, func(*voice.VoiceChannel)) {
	d := ipctest.NewDiscord(t)

	var mu sync.Mutex
	current := selected
	d.Handle("GET_SELECTED_VOICE_CHANNEL", func(ipctest.Request) (any, error) {
		mu.Lock()
		defer mu.Unlock()
		if current == nil {
			return nil, nil
		}
		return current, nil
	})

	d.Respond("AUTHORIZE", map[string]string{"code": "auth-code"})
	d.Respond("AUTHENTICATE", map[string]any{
		"user":        selfUser.User,
		"application": map[string]string{"id": "app", "name": "Companion"},
		"scopes":      []string{"rpc"},
	})
	d.Respond("GET_GUILDS", map[string]any{"guilds": []voice.Guild{{ID: "g1", Name: "Guild"}}})
	d.Respond("GET_CHANNELS", map[string]any{"channels": []map[string]any{
		{"id": "t1", "name": "general", "type": 0},
		{"id": "v1", "name": "Voice v1", "type": 2},
	}})
	d.Respond("GET_VOICE_SETTINGS", voice.VoiceSettings{
		Input:  voice.IODevice{Volume: 80},
		Output: voice.IODevice{Volume: 100},
		Mode:   voice.VoiceMode{Type: voice.ModeVoiceActivity},
	})

	return d, func(vc *voice.VoiceChannel) {
		mu.Lock()
		current = vc
		mu.Unlock()
	}
}

type testEnv struct {
	client *Client
	store  *voice.Store
	tokens *MemoryTokenStore
	oauth  *tokenServer
}

func newTestClient(t *testing.T, d *ipctest.Discord, clk clock.Clock) *testEnv {
	t.Helper()
	env := &testEnv{
		tokens: &MemoryTokenStore{},
		oauth:  newTokenServer(t),
	}
	if clk == nil {
		clk = clock.Real()
	}
	env.store = voice.NewStore(voice.Config{Clock: clk})

	c, err := New(Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		Endpoints:    d.Endpoints(),
		BaseURL:      env.oauth.URL,
		TokenStore:   env.tokens,
		Store:        env.store,
		Clock:        clk,
	})
	require.NoError(t, err)
	env.client = c

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		c.Destroy(ctx)
	})
	return env
}

func (env *testEnv) init(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, env.client.Init(ctx))
	require.Equal(t, StateReady, env.client.State())
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 5*time.Second, 5*time.Millisecond, msg)
}

func eventsOf(reqs []ipctest.Request) []string {
	out := make([]string, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, r.Evt)
	}
	return out
}

// waitState polls until the client reaches s.
func (c *Client) waitState(ctx context.Context, s State) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for c.State() != s {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
