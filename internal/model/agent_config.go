// internal/model/agent_config.go
package model

// AgentConfig is the operator-editable response policy. The pipeline reloads
// it on every rule evaluation so edits take effect immediately; nothing
// caches it.
type AgentConfig struct {
	ResponseLimits ResponseLimits `json:"response_limits"`
	LeadScoring    LeadScoring    `json:"lead_scoring"`
	SystemSettings SystemSettings `json:"system_settings"`
}

type ResponseLimits struct {
	MaxPerConversation int `json:"max_per_conversation"`
}

type LeadScoring struct {
	AutoDisableOnScore     int  `json:"auto_disable_on_score"` // valid only within [1,7]
	AutoDisableOnMilestone bool `json:"auto_disable_on_milestone"`
}

type SystemSettings struct {
	EnableAutoResponses  bool `json:"enable_auto_responses"`
	EnableResponseLimits bool `json:"enable_response_limits"`
	EnableLeadScoring    bool `json:"enable_lead_scoring"`
	EnableMilestones     bool `json:"enable_milestones"`
}

// DefaultAgentConfig is what a fresh install runs with before an operator
// saves anything.
func DefaultAgentConfig() *AgentConfig {
	return &AgentConfig{
		ResponseLimits: ResponseLimits{MaxPerConversation: 20},
		LeadScoring:    LeadScoring{AutoDisableOnScore: 0, AutoDisableOnMilestone: true},
		SystemSettings: SystemSettings{
			EnableAutoResponses:  true,
			EnableResponseLimits: true,
			EnableLeadScoring:    true,
			EnableMilestones:     true,
		},
	}
}
