// ABOUTME: OAuth token persistence in a Redis hash
// ABOUTME: One hash per bridge holding access, refresh, type and expiry
package tokenstore

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
)

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Key is the hash holding the token.
	Key string
}

// Redis stores the token in a hash.
type Redis struct {
	rdb *redis.Client
	key string
}

var _ io.Closer = (*Redis)(nil)

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("could not connect to redis at %s: %w", cfg.Addr, err)
	}
	key := cfg.Key
	if key == "" {
		key = "discord-bridge:token"
	}
	return &Redis{rdb: rdb, key: key}, nil
}

// Load returns the stored token, or nil when the hash is empty.
func (r *Redis) Load(ctx context.Context) (*oauth2.Token, error) {
	fields, err := r.rdb.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}

	rec := record{
		AccessToken:  fields["access_token"],
		RefreshToken: fields["refresh_token"],
		TokenType:    fields["token_type"],
	}
	if v := fields["expiry"]; v != "" {
		expiry, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("bad token expiry %q: %w", v, err)
		}
		rec.Expiry = expiry
	}
	return rec.token(), nil
}

// Save replaces the stored token atomically.
func (r *Redis) Save(ctx context.Context, token *oauth2.Token) error {
	if token == nil {
		return errNilToken
	}
	rec := toRecord(token)
	expiry := ""
	if !rec.Expiry.IsZero() {
		expiry = rec.Expiry.UTC().Format(time.RFC3339Nano)
	}

	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, r.key)
	pipe.HSet(ctx, r.key,
		"access_token", rec.AccessToken,
		"refresh_token", rec.RefreshToken,
		"token_type", rec.TokenType,
		"expiry", expiry,
	)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// Close closes the connection.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
