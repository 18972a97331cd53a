package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/convoreach/convoreach-backend/internal/model"
)

func TestKeywordDetector(t *testing.T) {
	d := KeywordDetector{}

	tests := []struct {
		name      string
		milestone model.Milestone
		texts     []string
		want      bool
	}{
		{
			name:      "link shared",
			milestone: model.Milestone{Target: model.MilestoneTargetLink},
			texts:     []string{"here you go https://example.com/offer"},
			want:      true,
		},
		{
			name:      "no link",
			milestone: model.Milestone{Target: model.MilestoneTargetLink},
			texts:     []string{"sounds good"},
			want:      false,
		},
		{
			name:      "meeting keyword",
			milestone: model.Milestone{Target: model.MilestoneTargetMeeting},
			texts:     []string{"let's Schedule something for tuesday"},
			want:      true,
		},
		{
			name:      "demo keyword",
			milestone: model.Milestone{Target: model.MilestoneTargetDemo},
			texts:     []string{"can I get a demo?"},
			want:      true,
		},
		{
			name:      "custom target match",
			milestone: model.Milestone{Target: model.MilestoneTargetCustom, CustomTarget: "contract signed"},
			texts:     []string{"great news, Contract Signed this morning"},
			want:      true,
		},
		{
			name:      "custom target empty never matches",
			milestone: model.Milestone{Target: model.MilestoneTargetCustom},
			texts:     []string{"anything at all"},
			want:      false,
		},
		{
			name:      "no target configured",
			milestone: model.Milestone{},
			texts:     []string{"https://example.com demo schedule"},
			want:      false,
		},
		{
			name:      "match across batch messages",
			milestone: model.Milestone{Target: model.MilestoneTargetMeeting},
			texts:     []string{"hey", "booked for friday"},
			want:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.Detect(tt.milestone, tt.texts))
		})
	}
}
