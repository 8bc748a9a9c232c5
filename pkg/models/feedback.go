package models

import (
	"fmt"
	"time"
)

type FeedbackType string

const (
	FeedbackFalsePositive FeedbackType = "false_positive"
	FeedbackConfirmed     FeedbackType = "confirmed"
	FeedbackAdjusted      FeedbackType = "adjusted"
)

func ParseFeedbackType(s string) (FeedbackType, error) {
	switch FeedbackType(s) {
	case FeedbackFalsePositive, FeedbackConfirmed, FeedbackAdjusted:
		return FeedbackType(s), nil
	}
	return "", fmt.Errorf("%w: unknown feedback type %q", ErrInvalidInput, s)
}

// Feedback is an append-only human judgment about an anomaly.
type Feedback struct {
	ID        int64        `json:"id"`
	AnomalyID string       `json:"anomaly_id"`
	RuleID    RuleID       `json:"rule_id"`
	Type      FeedbackType `json:"type"`
	Actor     string       `json:"actor"`
	Note      string       `json:"note,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}
