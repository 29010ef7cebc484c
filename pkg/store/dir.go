package store

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/matzehuels/bundlewire/pkg/errors"
	"github.com/matzehuels/bundlewire/pkg/observability"
	"github.com/matzehuels/bundlewire/pkg/state"
)

// FileName is the blob's name inside a state directory.
const FileName = "state.bwst"

// WriteDir writes st to dir/state.bwst, creating dir if needed. The file is
// replaced atomically.
func WriteDir(ctx context.Context, st *state.State, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "create %s", dir)
	}
	tmp, err := os.CreateTemp(dir, FileName+".*")
	if err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "create temp file in %s", dir)
	}
	defer os.Remove(tmp.Name())

	if err := Write(ctx, st, tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "close %s", tmp.Name())
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, FileName)); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "rename state file")
	}
	return nil
}

// ReadDir reads dir/state.bwst. A missing file reads as no state.
func ReadDir(ctx context.Context, dir string, opts state.Options) (*state.State, error) {
	start := time.Now()
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		err = errors.Wrap(errors.ErrCodeIO, err, "read state from %s", dir)
		observability.Store().OnRead(ctx, 0, false, time.Since(start), err)
		return nil, err
	}
	return readBytes(ctx, data, opts, start), nil
}
