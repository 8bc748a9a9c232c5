package alerting

import "github.com/CIRISAI/CIRISBridge/pkg/models"

// ComputeRuleStats derives each rule's false-positive standing from counts
// over the same window. A rule is flagged when its ratio exceeds threshold.
// The weight is 1 - ratio and only ranks candidates.
func ComputeRuleStats(raised, falsePositives map[models.RuleID]int, threshold float64) []models.RuleStat {
	rules := models.AllRules()
	stats := make([]models.RuleStat, 0, len(rules))
	for _, id := range rules {
		s := models.RuleStat{
			RuleID:         id,
			Raised:         raised[id],
			FalsePositives: falsePositives[id],
			Weight:         1,
		}
		if s.Raised > 0 {
			s.Ratio = float64(s.FalsePositives) / float64(s.Raised)
			if s.Ratio > 1 {
				s.Ratio = 1
			}
			s.Flagged = s.Ratio > threshold
			s.Weight = 1 - s.Ratio
		}
		stats = append(stats, s)
	}
	return stats
}
