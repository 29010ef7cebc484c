package cache

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
)

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendBadger = "badger"
	BackendRedis  = "redis"
	BackendMongo  = "mongo"
	BackendNone   = "none"
)

// Config selects and configures a backend.
type Config struct {
	Backend string // default: file

	Dir        string // file backend directory
	BadgerPath string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	MongoURI string

	Logger *log.Logger
}

// Open creates the configured backend.
func Open(ctx context.Context, cfg Config) (Cache, error) {
	switch cfg.Backend {
	case "", BackendFile:
		return NewFileCache(cfg.Dir)
	case BackendBadger:
		return NewBadgerCache(BadgerConfig{Path: cfg.BadgerPath, SyncWrites: true, Logger: cfg.Logger})
	case BackendRedis:
		return NewRedisCache(ctx, RedisConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	case BackendMongo:
		return NewMongoCache(ctx, MongoConfig{URI: cfg.MongoURI})
	case BackendNone:
		return NewNullCache(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
}
