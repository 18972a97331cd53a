// Package orchestrator runs one collected batch through policy, generation,
// lead scoring, milestone detection, and outbound enqueueing.
package orchestrator

import (
	"context"
	"log"
	"time"

	"github.com/convoreach/convoreach-backend/internal/model"
	"github.com/convoreach/convoreach-backend/internal/repository"
	"github.com/convoreach/convoreach-backend/internal/rules"
)

// Enqueuer creates the single outbound item for a reply. Implemented by
// queue.OutboundQueue.
type Enqueuer interface {
	Enqueue(conv *model.Conversation, text string) (*model.OutboundItem, error)
	HasInFlight(conversationID string) (bool, error)
}

type Orchestrator struct {
	Conversations repository.ConversationRepositoryInterface
	Messages      repository.MessageRepositoryInterface
	Config        repository.AgentConfigRepositoryInterface
	Queue         Enqueuer
	Generator     Generator
	Detector      Detector

	BusinessName      string
	GenerationTimeout time.Duration
	TranscriptLimit   int
}

const (
	defaultGenerationTimeout = 30 * time.Second
	defaultTranscriptLimit   = 50
)

// ProcessBatch is the pipeline core for one conversation batch. A nil item
// with a nil error means the batch was legitimately skipped (policy veto,
// in-flight reply, generation failure); the worker loop treats all three the
// same way and moves on.
func (o *Orchestrator) ProcessBatch(ctx context.Context, conversationID string, batch []*model.Message) (*model.OutboundItem, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	conv, err := o.Conversations.GetByID(conversationID)
	if err != nil {
		return nil, err
	}

	// Policy is re-read every evaluation so operator edits apply immediately.
	cfg, err := o.Config.Load()
	if err != nil {
		return nil, err
	}

	verdict := rules.Evaluate(conv, cfg)
	if !verdict.Allow {
		rules.Apply(conv, verdict)
		if err := o.Conversations.Update(conv); err != nil {
			return nil, err
		}
		if err := o.markProcessed(batch); err != nil {
			return nil, err
		}
		log.Printf("orchestrator: conversation %s vetoed: %s", conv.ID, verdict.Reason)
		return nil, nil
	}

	// An in-flight reply means this conversation is already being answered;
	// leave the batch unprocessed for the sweep to retry after it resolves.
	inFlight, err := o.Queue.HasInFlight(conv.ID)
	if err != nil {
		return nil, err
	}
	if inFlight {
		log.Printf("orchestrator: conversation %s has an in-flight reply, deferring batch", conv.ID)
		return nil, nil
	}

	if conv.Milestone.Status == model.MilestoneAchieved {
		if err := o.markProcessed(batch); err != nil {
			return nil, err
		}
		log.Printf("orchestrator: conversation %s milestone already achieved, not replying", conv.ID)
		return nil, nil
	}

	// Mark processed BEFORE generation: if the call hangs or the process dies
	// mid-call, redelivery can at worst duplicate a queued reply, never
	// re-generate for the same input.
	if err := o.markProcessed(batch); err != nil {
		return nil, err
	}

	result, err := o.generate(ctx, conv)
	if err != nil {
		log.Printf("orchestrator: generation failed for conversation %s: %v", conv.ID, err)
		return nil, nil
	}

	texts := make([]string, 0, len(batch))
	for _, m := range batch {
		texts = append(texts, m.Text)
	}

	o.applyLeadScore(conv, result)
	o.detectMilestone(conv, texts)
	conv.Counter.Total++

	if err := o.Conversations.Update(conv); err != nil {
		return nil, err
	}

	item, err := o.Queue.Enqueue(conv, result.Text)
	if err != nil {
		return nil, err
	}
	log.Printf("orchestrator: queued reply for conversation %s (item=%s score=%d intent=%s)",
		conv.ID, item.ID, conv.LeadScore.Current, result.Intent)
	return item, nil
}

func (o *Orchestrator) markProcessed(batch []*model.Message) error {
	ids := make([]string, 0, len(batch))
	for _, m := range batch {
		ids = append(ids, m.ID)
		m.Processed = true
	}
	return o.Messages.MarkProcessed(ids)
}

func (o *Orchestrator) generate(ctx context.Context, conv *model.Conversation) (*GenerationResult, error) {
	limit := o.TranscriptLimit
	if limit <= 0 {
		limit = defaultTranscriptLimit
	}
	history, err := o.Messages.ListTranscript(conv.ID, limit)
	if err != nil {
		return nil, err
	}
	transcript := make([]TranscriptEntry, 0, len(history))
	for _, m := range history {
		transcript = append(transcript, TranscriptEntry{
			Direction: m.Direction,
			Text:      m.Text,
			SentAt:    m.CreatedAt,
		})
	}

	timeout := o.GenerationTimeout
	if timeout <= 0 {
		timeout = defaultGenerationTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return o.Generator.Generate(ctx, GenerationRequest{
		ConversationID:  conv.ID,
		BusinessName:    o.BusinessName,
		Transcript:      transcript,
		MilestoneTarget: conv.Milestone.Target,
		MilestoneStatus: conv.Milestone.Status,
	})
}

// applyLeadScore clamps and records the generated score.
//
// While the milestone is still pending the score is capped at 4: the lead
// cannot be credited with post-milestone progress before the milestone
// actually lands. Score 5 ("reminder sent") additionally requires that step 4
// was genuinely reached, not inferred from keywords in a single reply.
func (o *Orchestrator) applyLeadScore(conv *model.Conversation, result *GenerationResult) {
	score := result.LeadScore
	if score < 1 {
		score = 1
	}
	if score > 7 {
		score = 7
	}
	if conv.Milestone.Status == model.MilestonePending && score > 4 {
		score = 4
	}
	if score == 5 && conv.LeadScore.Current < 4 {
		score = 4
	}

	progression := "maintained"
	if score > conv.LeadScore.Current {
		progression = "increased"
	} else if score < conv.LeadScore.Current {
		progression = "decreased"
	}

	conv.LeadScore.History = append(conv.LeadScore.History, model.LeadScoreEntry{
		Score:       score,
		Progression: progression,
		Intent:      result.Intent,
		Confidence:  result.Confidence,
		RecordedAt:  time.Now(),
	})
	conv.LeadScore.Current = score
}

func (o *Orchestrator) detectMilestone(conv *model.Conversation, texts []string) {
	if conv.Milestone.Target == "" || conv.Milestone.Status != model.MilestonePending {
		return
	}
	if !o.Detector.Detect(conv.Milestone, texts) {
		return
	}
	now := time.Now()
	conv.Milestone.Status = model.MilestoneAchieved
	conv.Milestone.AchievedAt = &now
	if conv.Milestone.AutoDisableAgent {
		conv.AIEnabled = false
	}
	log.Printf("orchestrator: conversation %s achieved milestone %s", conv.ID, conv.Milestone.Target)
}
