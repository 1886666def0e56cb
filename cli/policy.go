package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/warp/contribution-engine/factory"
	"github.com/warp/contribution-engine/generic"
	"github.com/warp/contribution-engine/incentive"
)

// =============================================================================
// RESOLVE
// =============================================================================

type resolveOptions struct {
	*Options
	Type string
	Date string
}

// NewCmdResolve creates the resolve command.
func NewCmdResolve(opts *Options) *cobra.Command {
	ro := &resolveOptions{Options: opts}
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Show the policy that applies to a type on a date",
		Long: `Picks the active policy for a contribution type whose effective window
contains the date. The latest effective_from wins, then the higher version,
then the smaller id.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd, ro)
		},
	}
	addPoliciesFlag(cmd, opts)
	cmd.Flags().StringVarP(&ro.Type, "type", "t", "", "Contribution type (e.g. journal_article)")
	cmd.Flags().StringVarP(&ro.Date, "date", "d", "", "Reference date (YYYY-MM-DD, default today)")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func runResolve(cmd *cobra.Command, ro *resolveOptions) error {
	ct := generic.ContributionType(ro.Type)
	if !ct.Valid() {
		return fmt.Errorf("unknown contribution type %q", ro.Type)
	}
	at := generic.Today()
	if ro.Date != "" {
		tp, err := generic.ParseTimePoint(ro.Date)
		if err != nil {
			return fmt.Errorf("invalid --date: %w", err)
		}
		at = tp
	}

	f := factory.NewPolicyFactory()
	policies, err := f.LoadFile(ro.Policies)
	if err != nil {
		return err
	}
	p, err := incentive.ResolvePolicy(policies, ct, at)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if ro.Format == FormatJSON {
		return writeJSON(w, f.ToJSON(*p))
	}

	field(w, "Policy", fmt.Sprintf("%s (v%d)", p.ID, p.Version))
	if p.Name != "" {
		field(w, "Name", p.Name)
	}
	field(w, "Effective", window(*p))
	field(w, "First", p.FirstAuthorPct.String()+"%")
	field(w, "Corresponding", p.CorrespondingAuthorPct.String()+"%")
	field(w, "Co-authors", p.CoAuthorPct().String()+"%")
	field(w, "Base", fmt.Sprintf("%s / %s points", p.BaseAmount.Value.String(), p.BasePoints.Value.String()))
	if len(p.TierMultipliers) > 0 {
		tiers := make([]string, 0, len(p.TierMultipliers))
		for tier := range p.TierMultipliers {
			tiers = append(tiers, tier)
		}
		sort.Strings(tiers)
		parts := make([]string, len(tiers))
		for i, tier := range tiers {
			parts[i] = tier + "=" + p.TierMultipliers[tier].String()
		}
		field(w, "Tiers", strings.Join(parts, " "))
	}
	return nil
}

func window(p incentive.Policy) string {
	if p.EffectiveTo == nil {
		return p.EffectiveFrom.String() + " .."
	}
	return p.EffectiveFrom.String() + " .. " + p.EffectiveTo.String()
}

// =============================================================================
// VALIDATE
// =============================================================================

// NewCmdValidate creates the validate command.
func NewCmdValidate(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a policy document",
		Long: `Parses and validates every policy in the document. Exits non-zero on
the first invalid policy. Active policies of one type that share both
effective_from and version are reported, since only the id separates them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, opts)
		},
	}
	addPoliciesFlag(cmd, opts)
	return cmd
}

// ValidateOutput is the json rendering of a validation run.
type ValidateOutput struct {
	Policies []factory.PolicyJSON `json:"policies"`
	Warnings []string             `json:"warnings,omitempty"`
}

func runValidate(cmd *cobra.Command, opts *Options) error {
	f := factory.NewPolicyFactory()
	policies, err := f.LoadFile(opts.Policies)
	if err != nil {
		return err
	}
	sort.Slice(policies, func(i, j int) bool {
		if policies[i].ContributionType != policies[j].ContributionType {
			return policies[i].ContributionType < policies[j].ContributionType
		}
		return policies[i].EffectiveFrom.Before(policies[j].EffectiveFrom)
	})
	warnings := Ambiguities(policies)

	w := cmd.OutOrStdout()
	if opts.Format == FormatJSON {
		out := ValidateOutput{Policies: make([]factory.PolicyJSON, len(policies)), Warnings: warnings}
		for i, p := range policies {
			out.Policies[i] = f.ToJSON(p)
		}
		return writeJSON(w, out)
	}

	t := newTable("ID", "TYPE", "VERSION", "EFFECTIVE", "ACTIVE", "BASE", "POINTS")
	for _, p := range policies {
		t.add(string(p.ID), string(p.ContributionType), fmt.Sprint(p.Version), window(p),
			fmt.Sprint(p.IsActive), p.BaseAmount.Value.String(), p.BasePoints.Value.String())
	}
	t.render(w)
	fmt.Fprintln(w)
	for _, warning := range warnings {
		fmt.Fprintln(w, color.YellowString("warning: %s", warning))
	}
	fmt.Fprintln(w, color.GreenString("%d policies valid", len(policies)))
	return nil
}

// Ambiguities lists active policies of one type that tie on effective_from
// and version.
func Ambiguities(policies []incentive.Policy) []string {
	type key struct {
		t       generic.ContributionType
		from    string
		version int
	}
	groups := map[key][]string{}
	var order []key
	for _, p := range policies {
		if !p.IsActive {
			continue
		}
		k := key{p.ContributionType, p.EffectiveFrom.String(), p.Version}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], string(p.ID))
	}

	var out []string
	for _, k := range order {
		ids := groups[k]
		if len(ids) < 2 {
			continue
		}
		sort.Strings(ids)
		out = append(out, fmt.Sprintf("%s from %s v%d: %s tie, %s wins by id",
			k.t, k.from, k.version, strings.Join(ids, ", "), ids[0]))
	}
	return out
}
