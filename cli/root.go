// Package cli implements incentivectl, an offline tool for checking policy
// documents and previewing incentive splits without a running server.
package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Options holds the flags shared by every subcommand.
type Options struct {
	Format   string // table or json
	NoColor  bool
	Policies string // policy document path
}

// New creates the root command with all subcommands registered.
func New() *cobra.Command {
	opts := &Options{}

	rootCmd := &cobra.Command{
		Use:   "incentivectl",
		Short: "Contribution incentive policy tool",
		Long: `Validate incentive policy documents, resolve the policy that applies
to a contribution type on a date, and preview how a contribution's pool
is split across its authors.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.NoColor {
				color.NoColor = true
			}
			switch opts.Format {
			case FormatTable, FormatJSON:
				return nil
			default:
				return fmt.Errorf("invalid format: %s (must be table or json)", opts.Format)
			}
		},
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.Format, "format", "f", FormatTable, "Output format (table, json)")
	rootCmd.PersistentFlags().BoolVar(&opts.NoColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(NewCmdSplit(opts))
	rootCmd.AddCommand(NewCmdResolve(opts))
	rootCmd.AddCommand(NewCmdValidate(opts))
	rootCmd.AddCommand(NewCmdTransitions(opts))
	rootCmd.AddCommand(NewCmdVersion())

	return rootCmd
}

// addPoliciesFlag registers the required --policies flag on cmd.
func addPoliciesFlag(cmd *cobra.Command, opts *Options) {
	cmd.Flags().StringVarP(&opts.Policies, "policies", "p", "", "Policy document (YAML or JSON)")
	_ = cmd.MarkFlagRequired("policies")
}
