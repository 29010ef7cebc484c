package cli

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/bundlewire/pkg/errors"
	"github.com/matzehuels/bundlewire/pkg/pipeline"
	"github.com/matzehuels/bundlewire/pkg/render"
)

// renderOpts holds the command-line flags for the render command.
type renderOpts struct {
	output         string // output file; "-" writes to stdout
	format         string // dot, svg, pdf or png
	namespace      string // only draw wires of this namespace
	detailed       bool   // label edges and show ids and locations
	hideUnresolved bool   // leave unresolved revisions out
}

// renderCommand creates the render command.
func (c *CLI) renderCommand() *cobra.Command {
	opts := renderOpts{format: render.FormatSVG}

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Draw the wiring of the persisted state",
		Example: `  bundlewire render -o wiring.svg
  bundlewire render -f dot -o - | dot -Tpng > wiring.png
  bundlewire render --namespace osgi.wiring.package --detailed`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(render.Formats, opts.format) {
				return errors.New(errors.ErrCodeInvalidFormat, "format %q is not one of %s", opts.format, strings.Join(render.Formats, ", "))
			}
			return c.runRender(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (default: wiring.<format>, - for stdout)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", opts.format, "output format: "+strings.Join(render.Formats, ", "))
	cmd.Flags().StringVar(&opts.namespace, "namespace", "", "only draw wires of this namespace")
	cmd.Flags().BoolVar(&opts.detailed, "detailed", false, "label edges with package names and show ids")
	cmd.Flags().BoolVar(&opts.hideUnresolved, "hide-unresolved", false, "leave unresolved revisions out")
	registerRenderCompletions(cmd)

	return cmd
}

func (c *CLI) runRender(ctx context.Context, opts renderOpts) error {
	st, err := c.requireState(ctx)
	if err != nil || st == nil {
		return err
	}
	runner, err := c.newRunner(ctx)
	if err != nil {
		return err
	}
	defer runner.Close()

	prog := newProgress(loggerFromContext(ctx))
	data, hit, err := runner.RenderWithCacheInfo(ctx, st, pipeline.RenderOptions{
		Format:         opts.format,
		Namespace:      opts.namespace,
		Detailed:       opts.detailed,
		HideUnresolved: opts.hideUnresolved,
	})
	if err != nil {
		return err
	}
	prog.done("Rendered wiring")

	if opts.output == "-" {
		_, err := out.Write(data)
		return err
	}
	path := opts.output
	if path == "" {
		path = "wiring." + opts.format
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrap(errors.ErrCodeIO, err, "create %s", dir)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "write %s", path)
	}

	if hit {
		printSuccess("Rendered wiring %s", StyleDim.Render("("+iconCached+")"))
	} else {
		printSuccess("Rendered wiring")
	}
	printFile(path)
	return nil
}
