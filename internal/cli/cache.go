package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/bundlewire/pkg/cache"
)

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the cache holding persisted states and renders",
	}

	cmd.AddCommand(c.cacheClearCommand())
	cmd.AddCommand(c.cachePathCommand())

	return cmd
}

// cacheClearCommand creates the "cache clear" subcommand.
func (c *CLI) cacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every persisted state and cached render",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.noCache {
				printInfo("Caching is disabled, nothing to clear")
				return nil
			}
			ctx := cmd.Context()
			ch, err := c.openCache(ctx)
			if err != nil {
				return err
			}
			defer ch.Close()

			backend := c.config().Cache.Backend
			ok, err := cache.Clear(ctx, ch)
			if err != nil {
				return err
			}
			if !ok {
				printWarning("The %s cache cannot be cleared", backend)
				return nil
			}
			printSuccess("Cleared the %s cache", backend)
			if p := c.cachePath(); p != "" {
				printDetail("Location: %s", p)
			}
			return nil
		},
	}
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print where the cache and the config file live",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := c.config()
			if p := c.cachePath(); p != "" {
				fmt.Fprintln(out, p)
			} else {
				printInfo("The %s cache has no local path", cfg.Cache.Backend)
			}
			if c.configPath != "" {
				printDetail("Config: %s", c.configPath)
			}
			return nil
		},
	}
}

// cachePath returns the local location of the configured backend, or ""
// for remote and disabled caches.
func (c *CLI) cachePath() string {
	cfg := c.config().Cache
	switch cfg.Backend {
	case "", cache.BackendFile:
		return cfg.Dir
	case cache.BackendBadger:
		return cfg.Badger.Path
	default:
		return ""
	}
}
