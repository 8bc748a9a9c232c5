package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

type RuleRegistry interface {
	Enabled(id models.RuleID) bool
}

type RuleStatsSource interface {
	RuleStats() []models.RuleStat
}

type RuleHandler struct {
	registry RuleRegistry
	stats    RuleStatsSource
}

func NewRuleHandler(registry RuleRegistry, stats RuleStatsSource) *RuleHandler {
	return &RuleHandler{registry: registry, stats: stats}
}

type RuleInfo struct {
	ID                 models.RuleID   `json:"id"`
	Severity           models.Severity `json:"severity"`
	Enabled            bool            `json:"enabled"`
	Raised             int             `json:"raised"`
	FalsePositives     int             `json:"false_positives"`
	FalsePositiveRatio float64         `json:"false_positive_ratio"`
	Flagged            bool            `json:"flagged"`
	Weight             float64         `json:"weight"`
}

type RulesResponse struct {
	Rules []RuleInfo `json:"rules"`
}

// List godoc
// @Summary List detection rules
// @Description Every rule with its severity, enabled flag and false-positive standing
// @Tags Rules
// @Produce json
// @Security BearerAuth
// @Success 200 {object} RulesResponse
// @Router /rules [get]
func (h *RuleHandler) List(c *gin.Context) {
	stats := make(map[models.RuleID]models.RuleStat)
	for _, s := range h.stats.RuleStats() {
		stats[s.RuleID] = s
	}

	rules := make([]RuleInfo, 0, len(models.AllRules()))
	for _, id := range models.AllRules() {
		info := RuleInfo{
			ID:       id,
			Severity: id.Severity(),
			// consecutive_failures is raised by the engine itself, not the detector.
			Enabled: h.registry.Enabled(id) || id == models.RuleConsecutiveFailures,
			Weight:  1,
		}
		if s, ok := stats[id]; ok {
			info.Raised = s.Raised
			info.FalsePositives = s.FalsePositives
			info.FalsePositiveRatio = s.Ratio
			info.Flagged = s.Flagged
			info.Weight = s.Weight
		}
		rules = append(rules, info)
	}
	c.JSON(http.StatusOK, RulesResponse{Rules: rules})
}
