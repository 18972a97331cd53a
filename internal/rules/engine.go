// Package rules decides whether the agent may speak at all for a batch.
// Evaluate is pure; the caller applies and persists the resulting mutation.
package rules

import (
	"fmt"

	"github.com/convoreach/convoreach-backend/internal/model"
)

type RuleType string

const (
	RuleResponseLimit RuleType = "response_limit"
	RuleLeadScore     RuleType = "lead_score"
	RuleMilestone     RuleType = "milestone"
)

// Verdict is the rule engine's decision for one batch.
type Verdict struct {
	Allow    bool
	Reason   string
	RuleType RuleType
}

func allow() Verdict { return Verdict{Allow: true} }

func deny(rule RuleType, reason string) Verdict {
	return Verdict{Allow: false, RuleType: rule, Reason: reason}
}

// Evaluate runs the policy rules in fixed order, first match wins. Same
// inputs always produce the same verdict.
func Evaluate(conv *model.Conversation, cfg *model.AgentConfig) Verdict {
	if !cfg.SystemSettings.EnableAutoResponses {
		return Verdict{Allow: false, Reason: "auto responses disabled globally"}
	}
	if !conv.AIEnabled {
		return Verdict{Allow: false, Reason: "agent disabled for conversation"}
	}

	// 1. Response limit
	if cfg.SystemSettings.EnableResponseLimits &&
		cfg.ResponseLimits.MaxPerConversation > 0 &&
		conv.Counter.Total >= cfg.ResponseLimits.MaxPerConversation {
		return deny(RuleResponseLimit, fmt.Sprintf(
			"response limit reached (%d/%d)", conv.Counter.Total, cfg.ResponseLimits.MaxPerConversation))
	}

	// 2. Lead-score threshold. An unset or out-of-range threshold never
	// triggers disablement; a zero value must not lock every conversation out.
	if cfg.SystemSettings.EnableLeadScoring {
		threshold := cfg.LeadScoring.AutoDisableOnScore
		if threshold >= 1 && threshold <= 7 && conv.LeadScore.Current >= threshold {
			return deny(RuleLeadScore, fmt.Sprintf(
				"lead score %d reached auto-disable threshold %d", conv.LeadScore.Current, threshold))
		}
	}

	// 3. Milestone achieved
	if cfg.SystemSettings.EnableMilestones &&
		cfg.LeadScoring.AutoDisableOnMilestone &&
		conv.Milestone.Status == model.MilestoneAchieved &&
		conv.Milestone.AutoDisableAgent {
		return deny(RuleMilestone, "milestone achieved with auto-disable")
	}

	return allow()
}

// Apply records a disallow verdict on the conversation: the agent goes quiet
// and the matching disabledBy flag is set. Only the first evaluated rule is
// recorded even when several would match. No-op for allow verdicts and for
// denials without a rule (already-disabled agent, global kill switch).
func Apply(conv *model.Conversation, v Verdict) {
	if v.Allow || v.RuleType == "" {
		return
	}
	conv.AIEnabled = false
	switch v.RuleType {
	case RuleResponseLimit:
		conv.Counter.DisabledByResponseLimit = true
	case RuleLeadScore:
		conv.Counter.DisabledByLeadScore = true
	case RuleMilestone:
		conv.Counter.DisabledByMilestone = true
	}
}
