// Package cli implements the bundlewire command-line interface.
package cli

import (
	"context"
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/bundlewire/pkg/buildinfo"
	"github.com/matzehuels/bundlewire/pkg/cache"
	"github.com/matzehuels/bundlewire/pkg/config"
	"github.com/matzehuels/bundlewire/pkg/pipeline"
	"github.com/matzehuels/bundlewire/pkg/state"
	"github.com/matzehuels/bundlewire/pkg/store"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	// Config is loaded before any subcommand runs.
	Config *config.Config

	configFile string
	configPath string // file actually read, empty when none
	stateName  string
	stateDir   string
	noCache    bool
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	info := buildinfo.Get(store.SchemaVersion)
	root := &cobra.Command{
		Use:   "bundlewire",
		Short: "bundlewire resolves and wires modular bundles",
		Long: `bundlewire reads bundle declarations (exports, imports, bundle requirements,
generic capabilities and fragments), resolves them against a platform and
keeps the resulting wiring in a persisted state so that later runs only
report what changed.`,
		Version:           info.Version,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
	}

	root.SetVersionTemplate(info.Template())

	flags := root.PersistentFlags()
	flags.StringVar(&c.configFile, "config", "", "config file (default: $XDG_CONFIG_HOME/bundlewire/config.toml)")
	flags.StringVar(&c.stateName, "state", "", "name of the persisted state (default from config)")
	flags.StringVar(&c.stateDir, "state-dir", "", "keep the state in this directory instead of the cache")
	flags.BoolVar(&c.noCache, "no-cache", false, "do not read or write the cache")

	root.AddCommand(c.resolveCommand())
	root.AddCommand(c.showCommand())
	root.AddCommand(c.diffCommand())
	root.AddCommand(c.renderCommand())
	root.AddCommand(c.inspectCommand())
	root.AddCommand(c.watchCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// setup loads the configuration and attaches the logger to the command.
func (c *CLI) setup(cmd *cobra.Command, _ []string) error {
	cfg, path, err := config.Load(config.LoadOptions{File: c.configFile})
	if err != nil {
		return err
	}
	c.Config = cfg
	c.configPath = path
	c.SetLogLevel(cfg.LogLevel())
	if path != "" {
		c.Logger.Debug("loaded config", "path", path)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(withLogger(ctx, c.Logger))
	return nil
}

// =============================================================================
// Runner Factory
// =============================================================================

// newRunner creates a pipeline runner over the configured cache.
func (c *CLI) newRunner(ctx context.Context) (*pipeline.Runner, error) {
	ch, err := c.openCache(ctx)
	if err != nil {
		return nil, err
	}
	return pipeline.NewRunner(ch, c.config().Keyer(), c.Logger), nil
}

func (c *CLI) openCache(ctx context.Context) (cache.Cache, error) {
	if c.noCache {
		return cache.NewNullCache(), nil
	}
	opts := c.config().CacheOptions(c.Logger)
	switch opts.Backend {
	case cache.BackendRedis, cache.BackendMongo:
	default:
		return cache.Open(ctx, opts)
	}

	// Remote backends dial on open.
	s := startSpinner(ctx, "Connecting to the "+opts.Backend+" cache")
	ch, err := cache.Open(ctx, opts)
	if err != nil {
		s.fail("Could not connect to the " + opts.Backend + " cache")
		return nil, err
	}
	s.stop()
	return ch, nil
}

// config returns the loaded config, or the defaults when setup did not run.
func (c *CLI) config() *config.Config {
	if c.Config == nil {
		d := config.Default()
		c.Config = &d
	}
	return c.Config
}

// pipelineOptions builds the run options shared by every command that
// touches the persisted state.
func (c *CLI) pipelineOptions(declarations string) (pipeline.Options, error) {
	cfg := c.config()
	props, err := cfg.Platform()
	if err != nil {
		return pipeline.Options{}, err
	}
	name := c.stateName
	if name == "" {
		name = cfg.State.Name
	}
	return pipeline.Options{
		Declarations: declarations,
		StateName:    name,
		StateDir:     c.stateDir,
		State:        cfg.StateOptions(props, c.Logger),
		TTL:          cfg.Cache.TTL,
		Logger:       c.Logger,
	}, nil
}

// restoreState reads the persisted state without loading declarations. It
// reports false when nothing is stored.
func (c *CLI) restoreState(ctx context.Context) (*state.State, bool, error) {
	runner, err := c.newRunner(ctx)
	if err != nil {
		return nil, false, err
	}
	defer runner.Close()

	opts, err := c.pipelineOptions("")
	if err != nil {
		return nil, false, err
	}
	return runner.Restore(ctx, opts)
}
