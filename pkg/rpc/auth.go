// ABOUTME: OAuth authorization and token refresh for the RPC session
// ABOUTME: AUTHORIZE code exchange, refresh grant and token persistence
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/bitfocus/companion-module-discord-api/pkg/voice"
	"golang.org/x/oauth2"
)

// TokenStore persists OAuth tokens between runs.
type TokenStore interface {
	// Load returns the stored token, or nil when none is stored.
	Load(ctx context.Context) (*oauth2.Token, error)
	Save(ctx context.Context, token *oauth2.Token) error
}

// MemoryTokenStore keeps the token in memory.
type MemoryTokenStore struct {
	mu    sync.Mutex
	token *oauth2.Token
}

func (m *MemoryTokenStore) Load(context.Context) (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == nil {
		return nil, nil
	}
	t := *m.token
	return &t, nil
}

func (m *MemoryTokenStore) Save(_ context.Context, token *oauth2.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := *token
	m.token = &t
	return nil
}

func newOAuthConfig(config Config) *oauth2.Config {
	base := strings.TrimSuffix(config.BaseURL, "/")
	return &oauth2.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		RedirectURL:  RedirectURL,
		Scopes:       config.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   base + "/oauth2/authorize",
			TokenURL:  base + "/oauth2/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func (c *Client) httpContext(ctx context.Context) context.Context {
	if c.config.HTTPClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, c.config.HTTPClient)
	}
	return ctx
}

// authenticate obtains an access token, stores it and binds the session.
func (c *Client) authenticate(ctx context.Context) error {
	c.setState(StateAuthorizing)

	token, err := c.obtainToken(ctx)
	if err != nil {
		return err
	}

	if err := c.config.TokenStore.Save(ctx, token); err != nil {
		log.Printf("rpc: failed to persist tokens: %v", err)
	}

	c.setState(StateAuthenticating)

	var resp struct {
		User        voice.User  `json:"user"`
		Application Application `json:"application"`
		Scopes      []string    `json:"scopes"`
	}
	data, err := c.Request(ctx, CmdAuthenticate, map[string]string{"access_token": token.AccessToken})
	if err != nil {
		return &AuthError{Step: "authenticate", Err: err}
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return &AuthError{Step: "authenticate", Err: fmt.Errorf("decoding response: %w", err)}
	}

	c.mu.Lock()
	app := resp.Application
	c.application = &app
	c.mu.Unlock()

	c.store.SetUser(resp.User)
	log.Printf("rpc: authenticated as %s", resp.User.Username)
	return nil
}

// obtainToken refreshes a stored token when possible, otherwise runs the
// full AUTHORIZE flow.
func (c *Client) obtainToken(ctx context.Context) (*oauth2.Token, error) {
	stored, err := c.config.TokenStore.Load(ctx)
	if err != nil {
		log.Printf("rpc: failed to load stored tokens: %v", err)
	}

	if stored != nil && stored.RefreshToken != "" {
		token, err := c.refresh(ctx, stored.RefreshToken)
		if err == nil {
			return token, nil
		}
		log.Printf("rpc: failed to refresh tokens: %v", err)
	}

	return c.authorize(ctx)
}

func (c *Client) refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	// an empty access token forces the refresh grant
	src := c.oauth.TokenSource(c.httpContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		return nil, &AuthError{Step: "refresh", Err: err}
	}
	return token, nil
}

// authorize prompts the user in the Discord client and exchanges the code.
func (c *Client) authorize(ctx context.Context) (*oauth2.Token, error) {
	log.Printf("rpc: requesting authorization, approve the prompt in Discord")

	var resp struct {
		Code string `json:"code"`
	}
	data, err := c.Request(ctx, CmdAuthorize, map[string]any{
		"client_id": c.config.ClientID,
		"scopes":    c.config.Scopes,
	})
	if err != nil {
		return nil, &AuthError{Step: "authorize", Err: err}
	}
	if err := json.Unmarshal(data, &resp); err != nil || resp.Code == "" {
		return nil, &AuthError{Step: "authorize", Err: fmt.Errorf("no code in response")}
	}

	token, err := c.oauth.Exchange(c.httpContext(ctx), resp.Code)
	if err != nil {
		return nil, &AuthError{Step: "token exchange", Err: err}
	}
	return token, nil
}
