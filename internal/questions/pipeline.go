// Package questions turns a topic description, required items and the
// learner's answer history into a validated batch of game questions.
package questions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kiliankoe/playtutor/internal/ai"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

const (
	DefaultCount   = 8
	MaxCount       = 20
	DefaultTimeout = 30 * time.Second
)

var (
	ErrMixedShapes = errors.New("batch mixes question shapes")
	ErrEmptyPrompt = errors.New("empty prompt")
)

type Pipeline struct {
	gen      ai.Generator
	timeout  time.Duration
	validate *validator.Validate
	log      zerolog.Logger
}

func NewPipeline(gen ai.Generator, timeout time.Duration) *Pipeline {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Pipeline{gen: gen, timeout: timeout, validate: validator.New(), log: zlog.Logger}
}

func (p *Pipeline) SetLogger(l zerolog.Logger) { p.log = l }

// Generate never fails: a backend error, a timeout or a non-conforming batch
// all yield an empty slice, which callers read as "generation unavailable".
func (p *Pipeline) Generate(ctx context.Context, req Request) []Question {
	count := req.Count
	if count <= 0 {
		count = DefaultCount
	}
	if count > MaxCount {
		count = MaxCount
	}
	plan := BuildPlan(req.History, req.RequiredQuestions)
	prompt := buildQuestionPrompt(req, count, plan)

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var out struct {
		Questions []Question `json:"questions"`
	}
	start := time.Now()
	if err := p.gen.GenerateObject(ctx, prompt, &out); err != nil {
		p.log.Warn().Err(err).Str("game", req.GameID).Dur("dur", time.Since(start)).Msg("question generation failed")
		return []Question{}
	}
	if err := p.check(out.Questions); err != nil {
		p.log.Warn().Err(err).Str("game", req.GameID).Int("returned", len(out.Questions)).Msg("rejecting question batch")
		return []Question{}
	}

	batch := make([]Question, 0, count)
	for _, q := range out.Questions {
		if plan.isMastered(q.Text()) && !plan.IsRequired(q.Text()) {
			p.log.Debug().Str("question", q.Text()).Msg("dropping reissued mastered question")
			continue
		}
		batch = append(batch, q)
		if len(batch) == count {
			break
		}
	}
	p.log.Info().Str("game", req.GameID).Int("count", len(batch)).Str("trend", string(plan.Trend)).Dur("dur", time.Since(start)).Msg("questions generated")
	return batch
}

// Freeform serves a game's generic model request.
func (p *Pipeline) Freeform(ctx context.Context, prompt string, gameContext map[string]any) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.gen.GenerateText(ctx, buildFreeformPrompt(prompt, gameContext))
}

func (p *Pipeline) check(batch []Question) error {
	var shape Shape
	for i, q := range batch {
		if i == 0 {
			shape = q.Shape()
		} else if q.Shape() != shape {
			return ErrMixedShapes
		}
		if err := p.validateQuestion(q); err != nil {
			return fmt.Errorf("question %d: %w", i, err)
		}
	}
	return nil
}

func (p *Pipeline) validateQuestion(q Question) error {
	switch {
	case q.MultipleChoice != nil:
		return p.validate.Struct(q.MultipleChoice)
	case q.Matching != nil:
		m := q.Matching
		if err := p.validate.Struct(m); err != nil {
			return err
		}
		if len(m.Left) != m.PairsCount || len(m.Right) != m.PairsCount || len(m.Answer) != m.PairsCount {
			return fmt.Errorf("pairsCount %d does not match items", m.PairsCount)
		}
		used := map[string]bool{}
		for l, r := range m.Answer {
			if _, ok := m.Left[l]; !ok {
				return fmt.Errorf("answer references unknown left item %q", l)
			}
			if _, ok := m.Right[r]; !ok {
				return fmt.Errorf("answer references unknown right item %q", r)
			}
			if used[r] {
				return fmt.Errorf("right item %q matched twice", r)
			}
			used[r] = true
		}
		return nil
	}
	return ErrUnknownShape
}
