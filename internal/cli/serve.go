package cli

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/bundlewire/internal/server"
	"github.com/matzehuels/bundlewire/internal/watch"
	"github.com/matzehuels/bundlewire/pkg/observability"
	"github.com/matzehuels/bundlewire/pkg/observability/prom"
	"github.com/matzehuels/bundlewire/pkg/state"
)

// serveOpts holds the flags of the serve command.
type serveOpts struct {
	addr    string
	noWatch bool
	force   bool
}

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	var opts serveOpts

	cmd := &cobra.Command{
		Use:   "serve <declarations>",
		Short: "Serve the resolved state over HTTP",
		Long: `Serve resolves the declarations and exposes the state over HTTP:

  GET  /healthz                liveness
  GET  /state                  state summary
  GET  /revisions              revisions (?resolved=true)
  GET  /revisions/{id}         one revision with its wires
  GET  /changes                delta since the previous resolve pass
  POST /resolve                run a resolve pass
  GET  /wiring.dot             wiring graph in DOT
  GET  /metrics                Prometheus metrics

The declarations are re-resolved when they change unless --no-watch is set.`,
		Example: `  bundlewire serve bundles/
  bundlewire serve bundles/ --addr 127.0.0.1:9000 --no-watch`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runServe(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "listen address (default from config)")
	cmd.Flags().BoolVar(&opts.noWatch, "no-watch", false, "do not re-resolve when declarations change")
	cmd.Flags().BoolVar(&opts.force, "force", false, "refresh dependents of removed revisions and displace resolved singletons")

	return cmd
}

// registerMetrics installs Prometheus-backed observability hooks and
// returns the registry that serves them.
func registerMetrics() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	observability.Install(prom.NewHooks(reg))
	return reg
}

func (c *CLI) runServe(ctx context.Context, path string, opts serveOpts) error {
	reg := registerMetrics()
	defer observability.Reset()

	runner, err := c.newRunner(ctx)
	if err != nil {
		return err
	}
	defer runner.Close()

	popts, err := c.pipelineOptions(path)
	if err != nil {
		return err
	}
	popts.Force = opts.force

	res, err := runner.Execute(ctx, popts)
	if err != nil {
		return err
	}
	printSuccess("Resolved %s", StyleHighlight.Render(path))
	printStats(res.Stats.Revisions, res.Stats.Resolved, res.Delta.Len(), res.CacheInfo.Restored)

	cfg := c.config().Server
	addr := opts.addr
	if addr == "" {
		addr = cfg.Addr
	}
	srv := server.New(res.State, server.Options{
		Addr:         addr,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		Gatherer:     reg,
		Logger:       c.Logger,
		AfterResolve: func(ctx context.Context, st *state.State) error {
			_, err := runner.Persist(ctx, st, popts)
			return err
		},
	})

	var w *watch.Watcher
	if !opts.noWatch {
		w, err = watch.New(watch.Config{
			Path:   path,
			Logger: c.Logger,
			OnChange: func(ctx context.Context, _ []string) error {
				return srv.Update(func(st *state.State) error {
					res, err := runner.Refresh(ctx, st, popts)
					if err != nil {
						return err
					}
					c.Logger.Info("re-resolved", "changes", res.Delta.Len(), "resolved", res.Stats.Resolved)
					return nil
				})
			},
		})
		if err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx)
	})
	if w != nil {
		g.Go(func() error {
			return w.Run(ctx)
		})
	}

	printDetail("Listening on %s", addr)
	return g.Wait()
}
