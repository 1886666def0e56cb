package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/warp/contribution-engine/factory"
	"github.com/warp/contribution-engine/generic"
	"github.com/warp/contribution-engine/incentive"
)

// ContributionDoc is the file form of a contribution for split previews.
// JSON documents parse too since YAML is a superset.
type ContributionDoc struct {
	Type        string      `yaml:"type" json:"type"`
	Title       string      `yaml:"title,omitempty" json:"title,omitempty"`
	Quartile    string      `yaml:"quartile,omitempty" json:"quartile,omitempty"`
	ImpactTier  string      `yaml:"impact_tier,omitempty" json:"impact_tier,omitempty"`
	SubmittedAt string      `yaml:"submitted_at,omitempty" json:"submitted_at,omitempty"` // YYYY-MM-DD
	Authors     []AuthorDoc `yaml:"authors" json:"authors"`
}

type AuthorDoc struct {
	Name     string `yaml:"name" json:"name"`
	Email    string `yaml:"email,omitempty" json:"email,omitempty"`
	Order    int    `yaml:"order,omitempty" json:"order,omitempty"` // defaults to list position
	Role     string `yaml:"role" json:"role"`
	Category string `yaml:"category" json:"category"`
}

// LoadContribution reads a contribution document from disk.
func LoadContribution(path string) (*ContributionDoc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read contribution file: %w", err)
	}
	return ParseContribution(data)
}

// ParseContribution parses a YAML or JSON contribution document.
func ParseContribution(data []byte) (*ContributionDoc, error) {
	var doc ContributionDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse contribution: %w", err)
	}
	return &doc, nil
}

// Build converts the document into a contribution and its authors. The
// reference date is at when set, else submitted_at, else today.
func (d *ContributionDoc) Build(at *generic.TimePoint) (generic.Contribution, []generic.Author, error) {
	c := generic.Contribution{
		ID:     "preview",
		Type:   generic.ContributionType(d.Type),
		Title:  d.Title,
		Status: generic.StatusDraft,
	}
	if !c.Type.Valid() {
		return c, nil, fmt.Errorf("unknown contribution type %q", d.Type)
	}
	if d.Quartile != "" {
		q := generic.Quartile(d.Quartile)
		if !q.Valid() {
			return c, nil, fmt.Errorf("invalid quartile %q", d.Quartile)
		}
		c.Quartile = &q
	}
	if d.ImpactTier != "" {
		t := generic.ImpactTier(d.ImpactTier)
		if !t.Valid() {
			return c, nil, fmt.Errorf("invalid impact tier %q", d.ImpactTier)
		}
		c.ImpactTier = &t
	}

	ref := generic.Today()
	switch {
	case at != nil:
		ref = *at
	case d.SubmittedAt != "":
		tp, err := generic.ParseTimePoint(d.SubmittedAt)
		if err != nil {
			return c, nil, fmt.Errorf("invalid submitted_at: %w", err)
		}
		ref = tp
	}
	c.CreatedAt = ref.Time

	authors := make([]generic.Author, len(d.Authors))
	for i, a := range d.Authors {
		order := a.Order
		if order == 0 {
			order = i + 1
		}
		authors[i] = generic.Author{
			ID:             generic.AuthorID(fmt.Sprintf("a%d", i+1)),
			ContributionID: c.ID,
			Name:           a.Name,
			Email:          a.Email,
			Order:          order,
			Role:           generic.Role(a.Role),
			Category:       generic.Category(a.Category),
		}
	}
	return c, authors, nil
}

// =============================================================================
// SPLIT COMMAND
// =============================================================================

type splitOptions struct {
	*Options
	Contribution string
	Date         string
}

// NewCmdSplit creates the split command.
func NewCmdSplit(opts *Options) *cobra.Command {
	so := &splitOptions{Options: opts}
	cmd := &cobra.Command{
		Use:   "split",
		Short: "Preview how a contribution's pool is split",
		Long: `Resolves the policy that applies to the contribution on its reference
date and prints the pool, the multiplier and every author's share.

The reference date is --date when given, else the document's submitted_at,
else today.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSplit(cmd, so)
		},
	}
	addPoliciesFlag(cmd, opts)
	cmd.Flags().StringVarP(&so.Contribution, "contribution", "c", "", "Contribution document (YAML or JSON)")
	cmd.Flags().StringVarP(&so.Date, "date", "d", "", "Reference date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("contribution")
	return cmd
}

// SplitOutput is the json rendering of a split.
type SplitOutput struct {
	PolicyID        string             `json:"policy_id"`
	PolicyVersion   int                `json:"policy_version"`
	ReferenceDate   string             `json:"reference_date"`
	Multiplier      float64            `json:"multiplier"`
	PoolAmount      float64            `json:"pool_amount"`
	PoolPoints      float64            `json:"pool_points"`
	ForfeitedAmount float64            `json:"forfeited_amount"`
	ForfeitedPoints float64            `json:"forfeited_points"`
	Authors         []SplitAuthorShare `json:"authors"`
}

type SplitAuthorShare struct {
	Order    int     `json:"order"`
	Name     string  `json:"name"`
	Role     string  `json:"role"`
	Category string  `json:"category"`
	Amount   float64 `json:"amount"`
	Points   float64 `json:"points"`
}

func runSplit(cmd *cobra.Command, so *splitOptions) error {
	var at *generic.TimePoint
	if so.Date != "" {
		tp, err := generic.ParseTimePoint(so.Date)
		if err != nil {
			return fmt.Errorf("invalid --date: %w", err)
		}
		at = &tp
	}

	policies, err := factory.NewPolicyFactory().LoadFile(so.Policies)
	if err != nil {
		return err
	}
	doc, err := LoadContribution(so.Contribution)
	if err != nil {
		return err
	}
	c, authors, err := doc.Build(at)
	if err != nil {
		return err
	}

	result, err := incentive.Preview(policies, c, authors)
	if err != nil {
		return fmt.Errorf("split failed: %w", err)
	}

	out := toSplitOutput(c, result)
	w := cmd.OutOrStdout()
	if so.Format == FormatJSON {
		return writeJSON(w, out)
	}

	field(w, "Policy", fmt.Sprintf("%s (v%d)", out.PolicyID, out.PolicyVersion))
	field(w, "Date", out.ReferenceDate)
	field(w, "Multiplier", result.Multiplier.String())
	field(w, "Pool", fmt.Sprintf("%s / %s points", result.PoolAmount.Value.String(), result.PoolPoints.Value.String()))
	fmt.Fprintln(w)

	t := newTable("#", "NAME", "ROLE", "CATEGORY", "AMOUNT", "POINTS")
	for _, a := range result.Authors {
		t.add(fmt.Sprint(a.Order), a.Name, string(a.Role), string(a.Category),
			a.IncentiveShare.Value.String(), a.PointsShare.Value.String())
	}
	t.render(w)

	if !result.ForfeitedAmount.IsZero() || !result.ForfeitedPoints.IsZero() {
		fmt.Fprintln(w)
		field(w, "Forfeited", color.YellowString("%s / %s points",
			result.ForfeitedAmount.Value.String(), result.ForfeitedPoints.Value.String()))
	}
	return nil
}

func toSplitOutput(c generic.Contribution, r *incentive.SplitResult) SplitOutput {
	out := SplitOutput{
		PolicyID:        string(r.PolicyID),
		PolicyVersion:   r.PolicyVersion,
		ReferenceDate:   c.ReferenceDate().String(),
		Multiplier:      r.Multiplier.InexactFloat64(),
		PoolAmount:      r.PoolAmount.Value.InexactFloat64(),
		PoolPoints:      r.PoolPoints.Value.InexactFloat64(),
		ForfeitedAmount: r.ForfeitedAmount.Value.InexactFloat64(),
		ForfeitedPoints: r.ForfeitedPoints.Value.InexactFloat64(),
		Authors:         make([]SplitAuthorShare, len(r.Authors)),
	}
	for i, a := range r.Authors {
		out.Authors[i] = SplitAuthorShare{
			Order:    a.Order,
			Name:     a.Name,
			Role:     string(a.Role),
			Category: string(a.Category),
			Amount:   a.IncentiveShare.Value.InexactFloat64(),
			Points:   a.PointsShare.Value.InexactFloat64(),
		}
	}
	return out
}
