package detector

import (
	"sync/atomic"

	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

// Weights is the rule-weight table the alert manager publishes after each
// false-positive recount. It only ranks candidates; it never disables a rule.
type Weights struct {
	table atomic.Pointer[map[models.RuleID]models.RuleStat]
}

func NewWeights() *Weights {
	w := &Weights{}
	empty := make(map[models.RuleID]models.RuleStat)
	w.table.Store(&empty)
	return w
}

// Publish replaces the whole table.
func (w *Weights) Publish(stats []models.RuleStat) {
	table := make(map[models.RuleID]models.RuleStat, len(stats))
	for _, s := range stats {
		table[s.RuleID] = s
	}
	w.table.Store(&table)
}

func (w *Weights) Stat(rule models.RuleID) (models.RuleStat, bool) {
	s, ok := (*w.table.Load())[rule]
	return s, ok
}

// Weight returns the rule's weight, 1 when nothing is known about it.
func (w *Weights) Weight(rule models.RuleID) float64 {
	if s, ok := w.Stat(rule); ok {
		return s.Weight
	}
	return 1
}
