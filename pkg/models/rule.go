package models

import "fmt"

type RuleID string

const (
	RuleErrorRateSpike      RuleID = "error_rate_spike"
	RuleVolumeAnomaly       RuleID = "volume_anomaly"
	RuleLatencyDegradation  RuleID = "latency_degradation"
	RuleAuthFailureBurst    RuleID = "auth_failure_burst"
	RuleNovelErrorPattern   RuleID = "novel_error_pattern"
	RuleGeographicAnomaly   RuleID = "geographic_anomaly"
	RuleMultivariateOutlier RuleID = "multivariate_outlier"
	RuleConsecutiveFailures RuleID = "consecutive_failures"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

var ruleSeverity = map[RuleID]Severity{
	RuleErrorRateSpike:      SeverityCritical,
	RuleVolumeAnomaly:       SeverityWarning,
	RuleLatencyDegradation:  SeverityWarning,
	RuleAuthFailureBurst:    SeverityCritical,
	RuleNovelErrorPattern:   SeverityWarning,
	RuleGeographicAnomaly:   SeverityInfo,
	RuleMultivariateOutlier: SeverityInfo,
	RuleConsecutiveFailures: SeverityCritical,
}

// AllRules lists every rule identifier in evaluation order.
func AllRules() []RuleID {
	return []RuleID{
		RuleErrorRateSpike,
		RuleVolumeAnomaly,
		RuleLatencyDegradation,
		RuleAuthFailureBurst,
		RuleNovelErrorPattern,
		RuleGeographicAnomaly,
		RuleMultivariateOutlier,
		RuleConsecutiveFailures,
	}
}

func (r RuleID) Severity() Severity {
	if s, ok := ruleSeverity[r]; ok {
		return s
	}
	return SeverityInfo
}

func (r RuleID) Valid() bool {
	_, ok := ruleSeverity[r]
	return ok
}

func ParseRuleID(s string) (RuleID, error) {
	r := RuleID(s)
	if !r.Valid() {
		return "", fmt.Errorf("%w: unknown rule %q", ErrInvalidInput, s)
	}
	return r, nil
}

func ParseSeverity(s string) (Severity, error) {
	switch Severity(s) {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return Severity(s), nil
	}
	return "", fmt.Errorf("%w: unknown severity %q", ErrInvalidInput, s)
}

// RuleStat is the derived false-positive standing of one rule.
type RuleStat struct {
	RuleID         RuleID  `json:"rule_id"`
	Raised         int     `json:"raised"`
	FalsePositives int     `json:"false_positives"`
	Ratio          float64 `json:"false_positive_ratio"`
	Flagged        bool    `json:"flagged"`
	Weight         float64 `json:"weight"`
}
