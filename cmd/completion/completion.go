// Package completion provides shell completion generation commands.
package completion

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewCommand returns the completion command.
func NewCommand(rootCmd *cobra.Command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completions",
		Long: `Generate shell completion scripts for pricekit.

Install instructions:
  Bash:       pricekit completion bash > /etc/bash_completion.d/pricekit
              echo 'source <(pricekit completion bash)' >> ~/.bashrc
  Zsh:        pricekit completion zsh > ~/.zsh/completions/_pricekit
  Fish:       pricekit completion fish > ~/.config/fish/completions/pricekit.fish
  PowerShell: pricekit completion powershell >> $PROFILE`,
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		Args:      cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				fmt.Fprintln(out, "# pricekit bash completion")
				fmt.Fprintln(out, "# Install: pricekit completion bash > /etc/bash_completion.d/pricekit")
				fmt.Fprintln(out, "# Or:      echo 'source <(pricekit completion bash)' >> ~/.bashrc")
				fmt.Fprintln(out)
				return rootCmd.GenBashCompletion(out)
			case "zsh":
				fmt.Fprintln(out, "# pricekit zsh completion")
				fmt.Fprintln(out, "# Install: pricekit completion zsh > ~/.zsh/completions/_pricekit")
				fmt.Fprintln(out)
				return rootCmd.GenZshCompletion(out)
			case "fish":
				fmt.Fprintln(out, "# pricekit fish completion")
				fmt.Fprintln(out, "# Install: pricekit completion fish > ~/.config/fish/completions/pricekit.fish")
				fmt.Fprintln(out)
				return rootCmd.GenFishCompletion(out, true)
			case "powershell":
				fmt.Fprintln(out, "# pricekit PowerShell completion")
				fmt.Fprintln(out, "# Install: pricekit completion powershell >> $PROFILE")
				fmt.Fprintln(out)
				return rootCmd.GenPowerShellCompletionWithDesc(out)
			default:
				return fmt.Errorf("unsupported shell: %s (supported: bash, zsh, fish, powershell)", args[0])
			}
		},
	}
	return cmd
}
