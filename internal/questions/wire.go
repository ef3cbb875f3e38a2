package questions

import (
	"context"
	"time"

	"github.com/kiliankoe/playtutor/internal/bus"
)

// GameProps is the game's view of what it was launched for.
type GameProps struct {
	GameID            string `json:"gameId,omitempty"`
	QuestionSpec      string `json:"questionSpec,omitempty"`
	RequiredQuestions string `json:"requiredQuestions,omitempty"`
	ProblemSpec       string `json:"problemSpec,omitempty"`
	UserSpec          string `json:"userSpec,omitempty"`
	SelectedStyle     string `json:"selectedStyle,omitempty"`
	Name              string `json:"name,omitempty"`
}

// WireRequest is the payload of GENERATE_QUESTIONS_REQUESTED.
type WireRequest struct {
	GameProps         GameProps      `json:"gameProps"`
	QuestionSpec      string         `json:"questionSpec,omitempty"`
	RequiredQuestions string         `json:"requiredQuestions,omitempty"`
	Count             int            `json:"count"`
	FormatSpec        string         `json:"formatSpec,omitempty"`
	IsFirstGeneration bool           `json:"isFirstGeneration"`
	History           []HistoryEntry `json:"questionHistory,omitempty"`
}

// WireResponse is the payload of QUESTIONS_GENERATED.
type WireResponse struct {
	Questions []Question `json:"questions"`
}

func (w WireRequest) Request() Request {
	r := Request{
		GameID:            w.GameProps.GameID,
		QuestionSpec:      w.GameProps.QuestionSpec,
		RequiredQuestions: w.GameProps.RequiredQuestions,
		ProblemSpec:       w.GameProps.ProblemSpec,
		UserSpec:          w.GameProps.UserSpec,
		Count:             w.Count,
		FormatSpec:        w.FormatSpec,
		IsFirstGeneration: w.IsFirstGeneration,
		History:           w.History,
	}
	if w.QuestionSpec != "" {
		r.QuestionSpec = w.QuestionSpec
	}
	if w.RequiredQuestions != "" {
		r.RequiredQuestions = w.RequiredQuestions
	}
	return r
}

// Fetch asks the host for a batch over b, the way an embedded game does. Any
// failure, including the timeout, yields an empty batch.
func Fetch(ctx context.Context, b *bus.Bus, req WireRequest, timeout time.Duration) []Question {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	msg, err := b.SendRequest(ctx, bus.GenerateQuestions, req, timeout)
	if err != nil {
		return []Question{}
	}
	var out WireResponse
	if err := msg.Bind(&out); err != nil || out.Questions == nil {
		return []Question{}
	}
	return out.Questions
}
