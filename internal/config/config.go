// ABOUTME: Bridge configuration loading
// ABOUTME: Defaults, then YAML file, .env, environment and finally CLI flags
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable the bridge reads.
const EnvPrefix = "DISCORD_BRIDGE_"

// Token store kinds.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

// TokenStoreConfig selects where OAuth tokens are kept.
type TokenStoreConfig struct {
	Kind          string `yaml:"kind" env:"KIND"`
	Path          string `yaml:"path" env:"PATH"`
	RedisAddr     string `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"REDIS_DB"`
	RedisKey      string `yaml:"redis_key" env:"REDIS_KEY"`
}

// HTTPConfig configures the local bridge API.
type HTTPConfig struct {
	// Addr is the listen address. Empty disables the API.
	Addr string `yaml:"addr" env:"ADDR"`
}

// DiscoveryConfig configures mDNS advertisement of the API.
type DiscoveryConfig struct {
	Enabled     bool   `yaml:"enabled" env:"ENABLED"`
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
}

// Config is the bridge configuration.
type Config struct {
	ClientID     string   `yaml:"client_id" env:"CLIENT_ID"`
	ClientSecret string   `yaml:"client_secret" env:"CLIENT_SECRET"`
	Scopes       []string `yaml:"scopes" env:"SCOPES" envSeparator:","`

	// SpeakerDelay debounces the delayed speaking indicator.
	SpeakerDelay time.Duration `yaml:"speaker_delay" env:"SPEAKER_DELAY"`

	TokenStore TokenStoreConfig `yaml:"token_store" envPrefix:"TOKEN_STORE_"`
	HTTP       HTTPConfig       `yaml:"http" envPrefix:"HTTP_"`
	Discovery  DiscoveryConfig  `yaml:"discovery" envPrefix:"MDNS_"`

	TUI     bool   `yaml:"tui" env:"TUI"`
	LogFile string `yaml:"log_file" env:"LOG_FILE"`
	Debug   bool   `yaml:"debug" env:"DEBUG"`
}

// Default returns the configuration used before any source is applied.
func Default() *Config {
	tokenPath := "discord-bridge-token.yaml"
	if dir, err := os.UserConfigDir(); err == nil {
		tokenPath = filepath.Join(dir, "discord-bridge", "token.yaml")
	}

	return &Config{
		TokenStore: TokenStoreConfig{
			Kind:     StoreFile,
			Path:     tokenPath,
			RedisKey: "discord-bridge:token",
		},
		HTTP: HTTPConfig{Addr: "127.0.0.1:8929"},
		Discovery: DiscoveryConfig{
			ServiceName: "discord-bridge",
		},
		TUI:     true,
		LogFile: "discord-bridge.log",
	}
}

// LoadFile overlays the YAML file at path onto c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// LoadEnv overlays DISCORD_BRIDGE_* environment variables onto c.
func (c *Config) LoadEnv() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	return nil
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	if c.ClientID == "" {
		errs = append(errs, errors.New("client id is required"))
	} else if _, err := strconv.ParseUint(c.ClientID, 10, 64); err != nil {
		errs = append(errs, fmt.Errorf("client id %q is not a snowflake", c.ClientID))
	}
	if c.ClientSecret == "" {
		errs = append(errs, errors.New("client secret is required"))
	}
	if c.SpeakerDelay < 0 {
		errs = append(errs, errors.New("speaker delay must not be negative"))
	}

	switch c.TokenStore.Kind {
	case StoreMemory:
	case StoreFile:
		if c.TokenStore.Path == "" {
			errs = append(errs, errors.New("file token store needs a path"))
		}
	case StoreRedis:
		if c.TokenStore.RedisAddr == "" {
			errs = append(errs, errors.New("redis token store needs an address"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown token store %q", c.TokenStore.Kind))
	}

	if c.Discovery.Enabled && c.HTTP.Addr == "" {
		errs = append(errs, errors.New("mdns needs the http api enabled"))
	}
	return errors.Join(errs...)
}

// flagValues holds raw flag values; only flags set on the command line are
// applied.
type flagValues struct {
	config       string
	envFile      string
	clientID     string
	clientSecret string
	speakerDelay time.Duration
	tokenStore   string
	tokenFile    string
	redisAddr    string
	httpAddr     string
	mdns         bool
	noTUI        bool
	logFile      string
	debug        bool
}

// newFlagSet declares the command line flags Load understands.
func newFlagSet(v *flagValues) *pflag.FlagSet {
	fs := pflag.NewFlagSet("discord-bridge", pflag.ContinueOnError)
	fs.StringVar(&v.config, "config", "", "YAML config file")
	fs.StringVar(&v.envFile, "env-file", ".env", "dotenv file loaded before the environment")
	fs.StringVar(&v.clientID, "client-id", "", "Discord application client id")
	fs.StringVar(&v.clientSecret, "client-secret", "", "Discord application client secret")
	fs.DurationVar(&v.speakerDelay, "speaker-delay", 0, "delay before a speaker counts as speaking")
	fs.StringVar(&v.tokenStore, "token-store", "", "token store: memory, file or redis")
	fs.StringVar(&v.tokenFile, "token-file", "", "token file for the file store")
	fs.StringVar(&v.redisAddr, "redis-addr", "", "redis address for the redis store")
	fs.StringVar(&v.httpAddr, "http-addr", "", "bridge API listen address, empty to disable")
	fs.BoolVar(&v.mdns, "mdns", false, "advertise the bridge API over mDNS")
	fs.BoolVar(&v.noTUI, "no-tui", false, "disable the TUI and stream logs to stdout")
	fs.StringVar(&v.logFile, "log-file", "", "log file path")
	fs.BoolVar(&v.debug, "debug", false, "verbose logging")
	return fs
}

// Load builds the configuration from args (without the program name) and
// the process environment, then validates it.
func Load(args []string) (*Config, error) {
	var v flagValues
	fs := newFlagSet(&v)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := godotenv.Load(v.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", v.envFile, err)
	}

	cfg := Default()

	path := v.config
	if path == "" {
		path = os.Getenv(EnvPrefix + "CONFIG")
	}
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.LoadEnv(); err != nil {
		return nil, err
	}

	v.apply(fs, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (v *flagValues) apply(fs *pflag.FlagSet, cfg *Config) {
	set := func(name string, fn func()) {
		if fs.Changed(name) {
			fn()
		}
	}
	set("client-id", func() { cfg.ClientID = v.clientID })
	set("client-secret", func() { cfg.ClientSecret = v.clientSecret })
	set("speaker-delay", func() { cfg.SpeakerDelay = v.speakerDelay })
	set("token-store", func() { cfg.TokenStore.Kind = v.tokenStore })
	set("token-file", func() { cfg.TokenStore.Path = v.tokenFile })
	set("redis-addr", func() { cfg.TokenStore.RedisAddr = v.redisAddr })
	set("http-addr", func() { cfg.HTTP.Addr = v.httpAddr })
	set("mdns", func() { cfg.Discovery.Enabled = v.mdns })
	set("no-tui", func() { cfg.TUI = !v.noTUI })
	set("log-file", func() { cfg.LogFile = v.logFile })
	set("debug", func() { cfg.Debug = v.debug })
}
