// Package watch runs a callback whenever declaration files change.
//
// Events are debounced: a burst of writes, such as an editor saving through
// a temp file, produces a single callback that receives every changed path.
// Callbacks never overlap; changes that arrive while one runs are delivered
// to the next.
package watch

import (
	"context"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/matzehuels/bundlewire/pkg/errors"
	"github.com/matzehuels/bundlewire/pkg/io"
)

// DefaultDebounce is the quiet period before a callback fires.
const DefaultDebounce = 300 * time.Millisecond

// Config configures a Watcher.
type Config struct {
	// Path is a declaration file or a directory of them.
	Path string

	// Debounce is the quiet period before OnChange runs (default: 300ms).
	Debounce time.Duration

	// OnChange receives the changed files. An error is logged and watching
	// continues.
	OnChange func(ctx context.Context, changed []string) error

	Logger *log.Logger
}

// WithDefaults returns a copy with zero-value fields set to defaults.
func (c Config) WithDefaults() Config {
	if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	return c
}

// Watcher observes one declaration path.
type Watcher struct {
	cfg  Config
	fsw  *fsnotify.Watcher
	dir  string // watched directory
	file string // watched file name, empty when watching a whole directory
}

// New starts watching cfg.Path. The caller must call Run or Close.
func New(cfg Config) (*Watcher, error) {
	cfg = cfg.WithDefaults()
	abs, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "resolve %s", cfg.Path)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, err, "stat %s", cfg.Path)
	}

	w := &Watcher{cfg: cfg, dir: abs}
	if !info.IsDir() {
		// Watch the parent: editors replace files, which drops a watch on
		// the file itself.
		w.dir, w.file = filepath.Dir(abs), filepath.Base(abs)
	}

	w.fsw, err = fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, err, "create watcher")
	}
	if err := w.fsw.Add(w.dir); err != nil {
		w.fsw.Close()
		return nil, errors.Wrap(errors.ErrCodeIO, err, "watch %s", w.dir)
	}
	return w, nil
}

// Close stops watching without running.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// relevant reports whether an event on name concerns the watched
// declarations.
func (w *Watcher) relevant(name string) bool {
	if w.file != "" {
		return filepath.Base(name) == w.file
	}
	return io.IsDeclarationFile(name)
}

// Run delivers changes until ctx is cancelled and then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	var (
		mu      sync.Mutex
		pending = map[string]struct{}{}
		timer   *time.Timer
		running sync.Mutex
	)

	fire := func() {
		running.Lock()
		defer running.Unlock()
		if ctx.Err() != nil {
			return
		}
		mu.Lock()
		changed := slices.Sorted(maps.Keys(pending))
		clear(pending)
		mu.Unlock()
		if len(changed) == 0 {
			return
		}
		w.cfg.Logger.Debug("declarations changed", "files", changed)
		if err := w.cfg.OnChange(ctx, changed); err != nil {
			w.cfg.Logger.Error("watch callback failed", "error", err)
		}
	}

	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
		w.fsw.Close()
	}()

	w.cfg.Logger.Info("watching", "path", w.cfg.Path)
	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New(errors.ErrCodeIO, "watch: event channel closed")
			}
			if evt.Op == fsnotify.Chmod || !w.relevant(evt.Name) {
				continue
			}
			mu.Lock()
			pending[evt.Name] = struct{}{}
			if timer == nil {
				timer = time.AfterFunc(w.cfg.Debounce, fire)
			} else {
				timer.Reset(w.cfg.Debounce)
			}
			mu.Unlock()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New(errors.ErrCodeIO, "watch: error channel closed")
			}
			w.cfg.Logger.Warn("watch error", "error", err)
		}
	}
}
