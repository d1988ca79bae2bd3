package model

import "time"

// RuleState is the lifecycle state of a user's automation rule.
type RuleState string

const (
	RuleAbsent   RuleState = "absent"
	RuleEnabled  RuleState = "enabled"
	RuleDisabled RuleState = "disabled"
)

// AutomationSettings is the single keyword -> reply rule a user owns.
// JSON names match the dashboard contract.
type AutomationSettings struct {
	UserID           string    `json:"-"`
	Keyword          string    `json:"keyword"`
	AutoReplyMessage string    `json:"autoReplyMessage"`
	Enabled          bool      `json:"automationEnabled"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// RuleState derives the rule's state; a nil receiver is RuleAbsent.
func (s *AutomationSettings) RuleState() RuleState {
	switch {
	case s == nil:
		return RuleAbsent
	case s.Enabled:
		return RuleEnabled
	default:
		return RuleDisabled
	}
}

// DispatchReady is the dispatch gate: validated credentials and an enabled rule.
func DispatchReady(c *Credentials, s *AutomationSettings) bool {
	return c.Validated() && s.RuleState() == RuleEnabled
}
