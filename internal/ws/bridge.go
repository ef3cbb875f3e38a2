package ws

import (
	"context"
	"errors"

	"github.com/kiliankoe/playtutor/internal/bus"
	"github.com/kiliankoe/playtutor/internal/game"
	"github.com/kiliankoe/playtutor/internal/questions"
	"github.com/rs/zerolog/log"
)

var errGenerationUnavailable = errors.New("question generation unavailable")

type llmRequest struct {
	Prompt  string         `json:"prompt"`
	Context map[string]any `json:"context"`
}

type llmResponse struct {
	Response string `json:"response"`
}

type statusReport struct {
	Stats *game.Stats `json:"stats"`
}

type completedReport struct {
	Completed bool        `json:"completed"`
	Stats     *game.Stats `json:"stats"`
}

// Bind serves a game's requests for session s on b and attaches b as the
// session's peer. Topic fields come from the session; the game only
// contributes count, output shape and its answer history.
func Bind(b *bus.Bus, s *game.Session, p *questions.Pipeline) {
	b.OnRequest(bus.GenerateQuestions, func(ctx context.Context, req bus.Message) (any, error) {
		var w questions.WireRequest
		if err := req.Bind(&w); err != nil {
			return nil, err
		}
		r := w.Request()
		props := s.Props
		r.GameID = props.GameID
		if props.QuestionSpec != "" {
			r.QuestionSpec = props.QuestionSpec
		}
		if props.RequiredQuestions != "" {
			r.RequiredQuestions = props.RequiredQuestions
		}
		if props.ProblemSpec != "" {
			r.ProblemSpec = props.ProblemSpec
		}
		if props.UserSpec != "" {
			r.UserSpec = props.UserSpec
		}
		if w.History != nil {
			s.RecordHistory(w.History)
		}
		if len(r.History) == 0 {
			r.History = s.History()
		}

		qs := p.Generate(ctx, r)
		if len(qs) == 0 {
			return nil, errGenerationUnavailable
		}
		return questions.WireResponse{Questions: qs}, nil
	})

	b.OnRequest(bus.RequestLLM, func(ctx context.Context, req bus.Message) (any, error) {
		var in llmRequest
		if err := req.Bind(&in); err != nil {
			return nil, err
		}
		out, err := p.Freeform(ctx, in.Prompt, in.Context)
		if err != nil {
			return nil, err
		}
		return llmResponse{Response: out}, nil
	})

	b.OnNotify(bus.TypeGameStatus, func(msg bus.Message) {
		var rep statusReport
		if err := msg.Bind(&rep); err != nil {
			log.Debug().Err(err).Str("session", s.ID).Msg("bad status report")
			return
		}
		if rep.Stats == nil {
			// older games send the stats fields at the top level
			var flat game.Stats
			if err := msg.Bind(&flat); err != nil {
				return
			}
			rep.Stats = &flat
		}
		s.ApplyStatus(*rep.Stats)
	})

	b.OnNotify(bus.TypeGameCompleted, func(msg bus.Message) {
		var rep completedReport
		if err := msg.Bind(&rep); err != nil {
			log.Debug().Err(err).Str("session", s.ID).Msg("bad completion report")
			return
		}
		s.ApplyCompleted(rep.Completed, rep.Stats)
	})

	s.Attach(b)
}

// Unbind detaches b from s and fails whatever b still has in flight.
func Unbind(b *bus.Bus, s *game.Session) {
	s.Detach(b)
	b.Close()
}
