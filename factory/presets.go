package factory

import (
	"encoding/json"

	"github.com/warp/contribution-engine/generic"
)

// =============================================================================
// PRESET POLICIES
// =============================================================================
//
// Presets return JSON strings so they go through the same parser as
// documents posted to the API:
//
//   policy, err := factory.NewPolicyFactory().ParsePolicy(
//       factory.JournalArticleJSON("ja-2025", "2025-01-01", 200000, 100))

// JournalArticleJSON grades by quartile and top-percentile band.
func JournalArticleJSON(id, effectiveFrom string, baseAmount, basePoints float64) string {
	return presetJSON(map[string]interface{}{
		"id":                       id,
		"name":                     "Journal articles",
		"contribution_type":        generic.TypeJournalArticle,
		"effective_from":           effectiveFrom,
		"first_author_pct":         40,
		"corresponding_author_pct": 40,
		"base_amount":              baseAmount,
		"base_points":              basePoints,
		"tier_multipliers": map[string]float64{
			string(generic.Q1):        1,
			string(generic.Q2):        0.75,
			string(generic.Q3):        0.5,
			string(generic.Q4):        0.25,
			string(generic.TierTop1):  2,
			string(generic.TierTop5):  1.5,
			string(generic.TierTop10): 1.25,
		},
	})
}

// ConferencePaperJSON grades by quartile only.
func ConferencePaperJSON(id, effectiveFrom string, baseAmount, basePoints float64) string {
	return presetJSON(map[string]interface{}{
		"id":                       id,
		"name":                     "Conference papers",
		"contribution_type":        generic.TypeConferencePaper,
		"effective_from":           effectiveFrom,
		"first_author_pct":         50,
		"corresponding_author_pct": 30,
		"base_amount":              baseAmount,
		"base_points":              basePoints,
		"tier_multipliers": map[string]float64{
			string(generic.Q1): 1,
			string(generic.Q2): 0.8,
			string(generic.Q3): 0.6,
			string(generic.Q4): 0.4,
		},
	})
}

// PatentJSON has no tier grading; inventors listed first take the larger share.
func PatentJSON(id, effectiveFrom string, baseAmount, basePoints float64) string {
	return presetJSON(map[string]interface{}{
		"id":                       id,
		"name":                     "Patents",
		"contribution_type":        generic.TypePatent,
		"effective_from":           effectiveFrom,
		"first_author_pct":         60,
		"corresponding_author_pct": 20,
		"base_amount":              baseAmount,
		"base_points":              basePoints,
	})
}

// BookJSON pays the whole pool to the anchors: nothing is left for co-authors.
func BookJSON(id, effectiveFrom string, baseAmount, basePoints float64) string {
	return presetJSON(map[string]interface{}{
		"id":                       id,
		"name":                     "Books",
		"contribution_type":        generic.TypeBook,
		"effective_from":           effectiveFrom,
		"first_author_pct":         70,
		"corresponding_author_pct": 30,
		"base_amount":              baseAmount,
		"base_points":              basePoints,
	})
}

// DefaultPresets returns one preset per supported type, effective from the given date.
func DefaultPresets(effectiveFrom string) []string {
	return []string{
		JournalArticleJSON("ja-"+effectiveFrom, effectiveFrom, 200000, 100),
		ConferencePaperJSON("cp-"+effectiveFrom, effectiveFrom, 20000, 20),
		PatentJSON("pt-"+effectiveFrom, effectiveFrom, 100000, 80),
		BookJSON("bk-"+effectiveFrom, effectiveFrom, 50000, 40),
	}
}

func presetJSON(pj map[string]interface{}) string {
	b, _ := json.MarshalIndent(pj, "", "  ")
	return string(b)
}
