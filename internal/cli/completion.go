package cli

import (
	"github.com/spf13/cobra"

	"github.com/matzehuels/bundlewire/pkg/model"
	"github.com/matzehuels/bundlewire/pkg/render"
)

// completionCommand prints a completion script for the given shell.
func (c *CLI) completionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "completion bash|zsh|fish|powershell",
		Short: "Generate shell completion scripts",
		Long: `Completion prints a completion script for bundlewire. For example:

  source <(bundlewire completion bash)
  bundlewire completion zsh > "${fpath[1]}/_bundlewire"
  bundlewire completion fish > ~/.config/fish/completions/bundlewire.fish

Besides commands and flags, the scripts complete render formats and wiring
namespaces.`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := cmd.Root()
			switch args[0] {
			case "zsh":
				return root.GenZshCompletion(out)
			case "fish":
				return root.GenFishCompletion(out, true)
			case "powershell":
				return root.GenPowerShellCompletionWithDesc(out)
			default:
				return root.GenBashCompletionV2(out, true)
			}
		},
	}
}

// fixed returns a flag completion function offering values.
func fixed(values ...string) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return values, cobra.ShellCompDirectiveNoFileComp
	}
}

// registerRenderCompletions completes --format and --namespace of the
// render command.
func registerRenderCompletions(cmd *cobra.Command) {
	_ = cmd.RegisterFlagCompletionFunc("format", fixed(render.Formats...))
	_ = cmd.RegisterFlagCompletionFunc("namespace", fixed(
		model.PackageNamespaceName,
		model.BundleNamespaceName,
		model.HostNamespaceName,
	))
}
