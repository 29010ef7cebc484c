package store

import (
	"context"
	"time"

	"github.com/matzehuels/bundlewire/pkg/cache"
	"github.com/matzehuels/bundlewire/pkg/errors"
	"github.com/matzehuels/bundlewire/pkg/observability"
	"github.com/matzehuels/bundlewire/pkg/state"
)

// Save stores st in c under key. A zero ttl keeps it until overwritten.
func Save(ctx context.Context, c cache.Cache, key string, st *state.State, ttl time.Duration) error {
	start := time.Now()
	data, err := Encode(st)
	if err != nil {
		observability.Store().OnWrite(ctx, 0, time.Since(start), err)
		return err
	}
	if err := c.Set(ctx, key, data, ttl); err != nil {
		err := errors.Wrap(errors.ErrCodeIO, err, "store state %s", key)
		observability.Store().OnWrite(ctx, len(data), time.Since(start), err)
		return err
	}
	observability.Store().OnWrite(ctx, len(data), time.Since(start), nil)
	observability.Cache().OnCacheSet(ctx, cache.KeyTypeState, len(data))
	return nil
}

// Load reads the state stored under key. A missing or unusable entry reads
// as no state; unusable entries are deleted.
func Load(ctx context.Context, c cache.Cache, key string, opts state.Options) (*state.State, error) {
	start := time.Now()
	data, ok, err := c.Get(ctx, key)
	if err != nil {
		err = errors.Wrap(errors.ErrCodeIO, err, "load state %s", key)
		observability.Store().OnRead(ctx, 0, false, time.Since(start), err)
		return nil, err
	}
	if !ok {
		observability.Cache().OnCacheMiss(ctx, cache.KeyTypeState)
		return nil, nil
	}

	st := readBytes(ctx, data, opts, start)
	if st == nil {
		observability.Cache().OnCacheMiss(ctx, cache.KeyTypeState)
		if err := c.Delete(ctx, key); err != nil {
			return nil, errors.Wrap(errors.ErrCodeIO, err, "delete stale state %s", key)
		}
		return nil, nil
	}
	observability.Cache().OnCacheHit(ctx, cache.KeyTypeState)
	return st, nil
}
