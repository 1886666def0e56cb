package cli

import (
	"github.com/spf13/cobra"

	"github.com/warp/contribution-engine/generic"
	"github.com/warp/contribution-engine/review"
)

type transitionsOptions struct {
	*Options
	Role string
	From string
}

// NewCmdTransitions creates the transitions command.
func NewCmdTransitions(opts *Options) *cobra.Command {
	to := &transitionsOptions{Options: opts}
	cmd := &cobra.Command{
		Use:   "transitions",
		Short: "Print the review transition table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransitions(cmd, to)
		},
	}
	cmd.Flags().StringVarP(&to.Role, "role", "r", "", "Only rules for this actor role")
	cmd.Flags().StringVar(&to.From, "from", "", "Only rules leaving this status")
	return cmd
}

// RuleOutput is the json rendering of one transition rule.
type RuleOutput struct {
	From      string `json:"from"`
	Role      string `json:"role"`
	Action    string `json:"action"`
	To        string `json:"to"`
	Condition string `json:"condition,omitempty"`
}

func runTransitions(cmd *cobra.Command, to *transitionsOptions) error {
	var out []RuleOutput
	for _, r := range review.Rules() {
		if to.Role != "" && r.Role != generic.ActorRole(to.Role) {
			continue
		}
		if to.From != "" && r.From != generic.Status(to.From) {
			continue
		}
		out = append(out, RuleOutput{
			From:      string(r.From),
			Role:      string(r.Role),
			Action:    string(r.Action),
			To:        string(r.To),
			Condition: r.Condition,
		})
	}

	w := cmd.OutOrStdout()
	if to.Format == FormatJSON {
		if out == nil {
			out = []RuleOutput{}
		}
		return writeJSON(w, out)
	}

	t := newTable("FROM", "ROLE", "ACTION", "TO", "WHEN")
	for _, r := range out {
		t.add(r.From, r.Role, r.Action, r.To, r.Condition)
	}
	t.render(w)
	return nil
}
