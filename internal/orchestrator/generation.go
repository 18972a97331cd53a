package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	appErrors "github.com/convoreach/convoreach-backend/internal/errors"
	"github.com/convoreach/convoreach-backend/internal/model"
)

// TranscriptEntry is one line of conversation context for generation.
type TranscriptEntry struct {
	Direction model.Direction `json:"direction"`
	Text      string          `json:"text"`
	SentAt    time.Time       `json:"sent_at"`
}

// GenerationRequest carries the transcript and business context verbatim to
// the collaborator.
type GenerationRequest struct {
	ConversationID  string                `json:"conversation_id"`
	BusinessName    string                `json:"business_name"`
	Transcript      []TranscriptEntry     `json:"transcript"`
	MilestoneTarget string                `json:"milestone_target,omitempty"`
	MilestoneStatus model.MilestoneStatus `json:"milestone_status"`
}

// GenerationResult is the collaborator's typed contract. The returned lead
// score is trusted only after clamping.
type GenerationResult struct {
	Text       string  `json:"text"`
	LeadScore  int     `json:"lead_score"`
	Intent     string  `json:"intent"`
	NextAction string  `json:"next_action"`
	Confidence float64 `json:"confidence"`
}

// Generator is the opaque natural-language collaborator.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error)
}

// HTTPGenerator calls an external generation service.
type HTTPGenerator struct {
	URL        string
	HTTPClient *http.Client
}

func NewHTTPGenerator(url string, timeout time.Duration) *HTTPGenerator {
	return &HTTPGenerator{
		URL:        url,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

func (g *HTTPGenerator) Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, appErrors.NewGenerationError(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.URL, bytes.NewReader(body))
	if err != nil {
		return nil, appErrors.NewGenerationError(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, appErrors.NewGenerationError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, appErrors.NewGenerationError(fmt.Errorf("generation service returned %d", resp.StatusCode))
	}

	var result GenerationResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, appErrors.NewGenerationError(err)
	}
	if result.Text == "" {
		return nil, appErrors.NewGenerationError(fmt.Errorf("generation service returned empty text"))
	}
	return &result, nil
}

// StubGenerator is a development fallback used when no generation service is
// configured. It keeps the score where it is.
type StubGenerator struct{}

func (StubGenerator) Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error) {
	return &GenerationResult{
		Text:       fmt.Sprintf("Thanks for reaching out to %s! A team member will follow up shortly.", req.BusinessName),
		LeadScore:  1,
		Intent:     "acknowledgement",
		NextAction: "wait",
		Confidence: 0.2,
	}, nil
}
