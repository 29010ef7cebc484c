// Package config loads bundlewire settings.
//
// Settings come from, in increasing precedence: built-in defaults, a config
// file and BUNDLEWIRE_* environment variables. The config file is
// config.toml, config.yaml or config.yml in [Dir], or the file named by
// [LoadOptions.File]. Nested keys map to environment variables with dots
// replaced by underscores, so cache.backend is BUNDLEWIRE_CACHE_BACKEND.
//
//	[cache]
//	backend = "badger"
//	ttl = "24h"
//
//	[resolver]
//	max_iterations = 5000
//	platform = "/etc/bundlewire/platform.toml"
package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"

	"github.com/matzehuels/bundlewire/pkg/cache"
	"github.com/matzehuels/bundlewire/pkg/errors"
	"github.com/matzehuels/bundlewire/pkg/platform"
	"github.com/matzehuels/bundlewire/pkg/resolver"
	"github.com/matzehuels/bundlewire/pkg/state"
)

const (
	// AppName names the config and cache directories.
	AppName = "bundlewire"
	// EnvPrefix prefixes environment overrides.
	EnvPrefix = "BUNDLEWIRE"
	// FileName is the config file name without extension.
	FileName = "config"
)

// Config is the full set of settings.
type Config struct {
	Cache    CacheConfig    `mapstructure:"cache"`
	Resolver ResolverConfig `mapstructure:"resolver"`
	State    StateConfig    `mapstructure:"state"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
}

// CacheConfig selects where resolved states and renders are kept.
type CacheConfig struct {
	Backend string        `mapstructure:"backend"`
	Dir     string        `mapstructure:"dir"`
	TTL     time.Duration `mapstructure:"ttl"`
	// Prefix scopes every key, so several deployments can share a
	// Redis or Mongo backend.
	Prefix string `mapstructure:"prefix"`
	Badger struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"badger"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`
	Mongo struct {
		URI string `mapstructure:"uri"`
	} `mapstructure:"mongo"`
}

// ResolverConfig tunes resolve passes.
type ResolverConfig struct {
	MaxIterations int    `mapstructure:"max_iterations"`
	DevMode       bool   `mapstructure:"dev_mode"`
	Platform      string `mapstructure:"platform"` // platform file; empty uses the host platform
}

// StateConfig names the persisted state.
type StateConfig struct {
	Name string `mapstructure:"name"`
}

// ServerConfig configures "bundlewire serve".
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Default returns the built-in settings.
func Default() Config {
	var c Config
	c.Cache.Backend = cache.BackendFile
	c.Cache.Dir = CacheDir()
	c.Cache.Badger.Path = filepath.Join(c.Cache.Dir, "badger")
	c.Cache.Redis.Addr = "localhost:6379"
	c.Cache.Mongo.URI = "mongodb://localhost:27017"
	c.Resolver.MaxIterations = resolver.DefaultMaxIterations
	c.State.Name = "default"
	c.Server.Addr = ":8080"
	c.Server.ReadTimeout = 15 * time.Second
	c.Server.WriteTimeout = 60 * time.Second
	c.Log.Level = log.InfoLevel.String()
	return c
}

// Dir returns the config directory, $XDG_CONFIG_HOME/bundlewire or
// ~/.config/bundlewire.
func Dir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, AppName)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", AppName)
	}
	return AppName
}

// CacheDir returns the default cache directory, $XDG_CACHE_HOME/bundlewire
// or ~/.cache/bundlewire.
func CacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, AppName)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", AppName)
	}
	return filepath.Join(os.TempDir(), AppName)
}

// LoadOptions locates the config file.
type LoadOptions struct {
	File string // explicit file; must exist
	Dir  string // directory searched when File is empty (default: Dir())
}

// Load reads settings and returns them with the path of the file used, or
// "" when only defaults and the environment applied.
func Load(opts LoadOptions) (*Config, string, error) {
	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.File != "" {
		if _, err := os.Stat(opts.File); err != nil {
			return nil, "", errors.Wrap(errors.ErrCodeInvalidConfig, err, "config file %s", opts.File)
		}
		v.SetConfigFile(opts.File)
	} else {
		dir := opts.Dir
		if dir == "" {
			dir = Dir()
		}
		v.SetConfigName(FileName)
		v.AddConfigPath(dir)
	}

	path := ""
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.File != "" || !stderrors.As(err, &notFound) {
			return nil, "", errors.Wrap(errors.ErrCodeInvalidConfig, err, "read config")
		}
	} else {
		path = v.ConfigFileUsed()
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return &cfg, path, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("cache.backend", d.Cache.Backend)
	v.SetDefault("cache.dir", d.Cache.Dir)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.prefix", d.Cache.Prefix)
	v.SetDefault("cache.badger.path", d.Cache.Badger.Path)
	v.SetDefault("cache.redis.addr", d.Cache.Redis.Addr)
	v.SetDefault("cache.redis.password", d.Cache.Redis.Password)
	v.SetDefault("cache.redis.db", d.Cache.Redis.DB)
	v.SetDefault("cache.mongo.uri", d.Cache.Mongo.URI)
	v.SetDefault("resolver.max_iterations", d.Resolver.MaxIterations)
	v.SetDefault("resolver.dev_mode", d.Resolver.DevMode)
	v.SetDefault("resolver.platform", d.Resolver.Platform)
	v.SetDefault("state.name", d.State.Name)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("log.level", d.Log.Level)
}

var backends = []string{cache.BackendFile, cache.BackendBadger, cache.BackendRedis, cache.BackendMongo, cache.BackendNone}

// Validate checks values the loader cannot.
func (c *Config) Validate() error {
	if !slices.Contains(backends, c.Cache.Backend) {
		return errors.New(errors.ErrCodeInvalidConfig, "cache.backend %q is not one of %s", c.Cache.Backend, strings.Join(backends, ", "))
	}
	if c.Cache.TTL < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "cache.ttl must not be negative")
	}
	if c.Resolver.MaxIterations <= 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "resolver.max_iterations must be positive, got %d", c.Resolver.MaxIterations)
	}
	if c.State.Name == "" {
		return errors.New(errors.ErrCodeInvalidConfig, "state.name must not be empty")
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "log.level")
	}
	return nil
}

// LogLevel returns the parsed log level.
func (c *Config) LogLevel() log.Level {
	lvl, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// CacheOptions converts the cache settings for cache.Open.
func (c *Config) CacheOptions(logger *log.Logger) cache.Config {
	return cache.Config{
		Backend:       c.Cache.Backend,
		Dir:           c.Cache.Dir,
		BadgerPath:    c.Cache.Badger.Path,
		RedisAddr:     c.Cache.Redis.Addr,
		RedisPassword: c.Cache.Redis.Password,
		RedisDB:       c.Cache.Redis.DB,
		MongoURI:      c.Cache.Mongo.URI,
		Logger:        logger,
	}
}

// Platform loads the configured platform file, or describes the host when
// none is set.
func (c *Config) Platform() (platform.Properties, error) {
	if c.Resolver.Platform == "" {
		return platform.Host(), nil
	}
	return platform.Load(c.Resolver.Platform)
}

// Keyer returns the cache keyer, scoped by cache.prefix when it is set.
func (c *Config) Keyer() cache.Keyer {
	if c.Cache.Prefix == "" {
		return cache.NewDefaultKeyer()
	}
	return cache.NewScopedKeyer(cache.NewDefaultKeyer(), c.Cache.Prefix)
}

// StateOptions builds state options from the resolver settings.
func (c *Config) StateOptions(props platform.Properties, logger *log.Logger) state.Options {
	return state.Options{
		Platform:      props,
		DevMode:       c.Resolver.DevMode,
		MaxIterations: c.Resolver.MaxIterations,
		Logger:        logger,
	}
}
