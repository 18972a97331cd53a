// internal/model/conversation.go
package model

import "time"

type Channel string

const (
	ChannelInstagram Channel = "instagram"
	ChannelGmail     Channel = "gmail"
)

type ConversationStatus string

const (
	ConversationOpen      ConversationStatus = "open"
	ConversationScheduled ConversationStatus = "scheduled"
	ConversationClosed    ConversationStatus = "closed"
	ConversationArchived  ConversationStatus = "archived"
)

type MilestoneStatus string

const (
	MilestonePending  MilestoneStatus = "pending"
	MilestoneAchieved MilestoneStatus = "achieved"
	MilestoneFailed   MilestoneStatus = "failed"
)

// Milestone target kinds recognised by the keyword detector.
const (
	MilestoneTargetLink    = "link_shared"
	MilestoneTargetMeeting = "meeting_scheduled"
	MilestoneTargetDemo    = "demo_booked"
	MilestoneTargetCustom  = "custom"
)

// ResponseCounter records how many automated replies went out and which
// policy, if any, switched the agent off.
type ResponseCounter struct {
	Total                   int  `json:"total"`
	DisabledByResponseLimit bool `json:"disabled_by_response_limit"`
	DisabledByLeadScore     bool `json:"disabled_by_lead_score"`
	DisabledByMilestone     bool `json:"disabled_by_milestone"`
}

// LeadScoreEntry is one recorded scoring decision.
type LeadScoreEntry struct {
	Score       int       `json:"score"`
	Progression string    `json:"progression"` // increased | decreased | maintained
	Intent      string    `json:"intent,omitempty"`
	Confidence  float64   `json:"confidence"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// LeadScore tracks the 7-step sales-readiness ordinal
// (1 = Contact Received ... 7 = Sales Done).
type LeadScore struct {
	Current int              `json:"current"`
	History []LeadScoreEntry `json:"history,omitempty"`
}

type Milestone struct {
	Target           string          `json:"target,omitempty"`
	CustomTarget     string          `json:"custom_target,omitempty"`
	Status           MilestoneStatus `json:"status"`
	AutoDisableAgent bool            `json:"auto_disable_agent"`
	AchievedAt       *time.Time      `json:"achieved_at,omitempty"`
}

// Conversation owns its lead-score and milestone state. It is mutated only
// by the rule engine and the orchestrator, never concurrently: the
// single-in-flight outbound item invariant keeps processing per conversation
// sequential.
type Conversation struct {
	ID               string             `db:"id" json:"id"`
	ContactID        string             `db:"contact_id" json:"contact_id"`
	ContactRef       string             `db:"contact_ref" json:"contact_ref"` // channel-native recipient ref for replies
	ChannelAccountID string             `db:"channel_account_id" json:"channel_account_id"`
	Channel          Channel            `db:"channel" json:"channel"`
	Status           ConversationStatus `db:"status" json:"status"`
	AIEnabled        bool               `db:"ai_enabled" json:"ai_enabled"`
	Counter          ResponseCounter    `db:"response_counter" json:"response_counter"`
	LeadScore        LeadScore          `db:"lead_score" json:"lead_score"`
	Milestone        Milestone          `db:"milestone" json:"milestone"`
	LastActivityAt   time.Time          `db:"last_activity_at" json:"last_activity_at"`
	CreatedAt        time.Time          `db:"created_at" json:"created_at"`
}
