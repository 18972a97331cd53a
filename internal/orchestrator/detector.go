package orchestrator

import (
	"regexp"
	"strings"

	"github.com/convoreach/convoreach-backend/internal/model"
)

// Detector decides whether a batch of inbound text achieves the
// conversation's milestone. Pluggable so a model-based detector can replace
// keyword matching without touching the state machine.
type Detector interface {
	Detect(milestone model.Milestone, texts []string) bool
}

// KeywordDetector matches link patterns and scheduling/demo keywords, plus a
// custom keyword target when configured.
type KeywordDetector struct{}

var linkPattern = regexp.MustCompile(`https?://\S+`)

var meetingKeywords = []string{
	"schedule", "calendly", "meeting", "appointment", "book a call", "booked",
}

var demoKeywords = []string{
	"demo", "free trial", "walkthrough",
}

func (KeywordDetector) Detect(milestone model.Milestone, texts []string) bool {
	joined := strings.ToLower(strings.Join(texts, "\n"))

	switch milestone.Target {
	case model.MilestoneTargetLink:
		return linkPattern.MatchString(joined)
	case model.MilestoneTargetMeeting:
		return containsAny(joined, meetingKeywords)
	case model.MilestoneTargetDemo:
		return containsAny(joined, demoKeywords)
	case model.MilestoneTargetCustom:
		custom := strings.ToLower(strings.TrimSpace(milestone.CustomTarget))
		if custom == "" {
			return false
		}
		return strings.Contains(joined, custom)
	default:
		return false
	}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
