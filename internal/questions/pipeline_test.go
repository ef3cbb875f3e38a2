package questions

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kiliankoe/playtutor/internal/ai"
	"github.com/rs/zerolog"
)

type fakeGen struct {
	mu      sync.Mutex
	body    string
	text    string
	err     error
	block   bool
	prompts []string
}

func (f *fakeGen) GenerateObject(ctx context.Context, prompt string, out any) error {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.body), out)
}

func (f *fakeGen) GenerateText(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	return f.text, f.err
}

func (f *fakeGen) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

func newPipeline(gen ai.Generator, timeout time.Duration) *Pipeline {
	p := NewPipeline(gen, timeout)
	p.SetLogger(zerolog.Nop())
	return p
}

const mcBatch = `{"questions":[
 {"question":"5+3","answers":["6","7","8","9"],"correctAnswerIndex":2},
 {"question":"6+2","answers":["8","7","6","9"],"correctAnswerIndex":0},
 {"question":"4+4","answers":["7","8","9","6"],"correctAnswerIndex":1}
]}`

func TestGenerateReturnsValidatedBatch(t *testing.T) {
	gen := &fakeGen{body: mcBatch}
	p := newPipeline(gen, time.Second)
	got := p.Generate(context.Background(), Request{QuestionSpec: "single digit addition", Count: 3, IsFirstGeneration: true})
	if len(got) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(got))
	}
	if got[0].Shape() != ShapeMultipleChoice || got[0].MultipleChoice.CorrectAnswerIndex != 2 {
		t.Fatalf("unexpected first question %+v", got[0].MultipleChoice)
	}
	if !strings.Contains(gen.lastPrompt(), "single digit addition") {
		t.Fatal("prompt should carry the question spec")
	}
}

func TestGenerateTruncatesToCount(t *testing.T) {
	p := newPipeline(&fakeGen{body: mcBatch}, time.Second)
	if got := p.Generate(context.Background(), Request{Count: 2}); len(got) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(got))
	}
}

func TestGenerateDoesNotReissueMasteredQuestion(t *testing.T) {
	gen := &fakeGen{body: mcBatch}
	p := newPipeline(gen, time.Second)
	history := []HistoryEntry{{Question: "5+3", Answers: []string{"6", "7", "8", "9"}, CorrectIndex: 2, ChosenIndex: 2, WasCorrect: true}}

	got := p.Generate(context.Background(), Request{Count: 3, IsFirstGeneration: false, History: history})
	for _, q := range got {
		if q.Text() == "5+3" {
			t.Fatal("a correctly answered question must not be reissued")
		}
	}
	if len(got) != 2 {
		t.Fatalf("expected the two remaining questions, got %d", len(got))
	}
	if !strings.Contains(gen.lastPrompt(), "Do not ask these again") {
		t.Fatal("prompt should list mastered questions")
	}
}

func TestGenerateKeepsRequiredMasteredQuestion(t *testing.T) {
	p := newPipeline(&fakeGen{body: mcBatch}, time.Second)
	history := []HistoryEntry{{Question: "5+3", WasCorrect: true}}
	got := p.Generate(context.Background(), Request{Count: 3, RequiredQuestions: "5+3", History: history})
	if len(got) != 3 {
		t.Fatalf("required questions may repeat, expected 3 got %d", len(got))
	}
}

func TestGenerateMissedQuestionMayReturn(t *testing.T) {
	p := newPipeline(&fakeGen{body: mcBatch}, time.Second)
	history := []HistoryEntry{{Question: "5+3", WasCorrect: false}}
	got := p.Generate(context.Background(), Request{Count: 3, History: history})
	if len(got) != 3 || got[0].Text() != "5+3" {
		t.Fatalf("missed question should be allowed back, got %d items", len(got))
	}
}

func TestGenerateBackendFailureYieldsEmpty(t *testing.T) {
	p := newPipeline(&fakeGen{err: errors.New("rate limited")}, time.Second)
	got := p.Generate(context.Background(), Request{Count: 3})
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil batch, got %v", got)
	}
}

func TestGenerateTimeoutYieldsEmpty(t *testing.T) {
	p := newPipeline(&fakeGen{block: true}, 20*time.Millisecond)
	start := time.Now()
	got := p.Generate(context.Background(), Request{Count: 3})
	elapsed := time.Since(start)
	if len(got) != 0 {
		t.Fatalf("expected empty batch, got %d", len(got))
	}
	if elapsed < 20*time.Millisecond || elapsed > time.Second {
		t.Fatalf("expected to give up after the timeout, took %s", elapsed)
	}
}

func TestGenerateRejectsMalformedBatch(t *testing.T) {
	bodies := map[string]string{
		"three answers": `{"questions":[{"question":"a","answers":["1","2","3"],"correctAnswerIndex":0}]}`,
		"index out of range": `{"questions":[{"question":"a","answers":["1","2","3","4"],"correctAnswerIndex":4}]}`,
		"empty question": `{"questions":[{"question":"","answers":["1","2","3","4"],"correctAnswerIndex":0}]}`,
		"unknown shape": `{"questions":[{"prompt":"a"}]}`,
		"mixed shapes": `{"questions":[
			{"question":"a","answers":["1","2","3","4"],"correctAnswerIndex":0},
			{"question":"b","pairsCount":1,"left":{"1":"cat"},"right":{"A":"gato"},"answer":{"1":"A"},"difficulty":"easy"}]}`,
		"bad matching answer": `{"questions":[{"question":"b","pairsCount":1,"left":{"1":"cat"},"right":{"A":"gato"},"answer":{"1":"B"},"difficulty":"easy"}]}`,
		"pair count mismatch": `{"questions":[{"question":"b","pairsCount":2,"left":{"1":"cat"},"right":{"A":"gato"},"answer":{"1":"A"},"difficulty":"easy"}]}`,
	}
	for name, body := range bodies {
		p := newPipeline(&fakeGen{body: body}, time.Second)
		if got := p.Generate(context.Background(), Request{Count: 2}); len(got) != 0 {
			t.Fatalf("%s: expected rejection, got %d questions", name, len(got))
		}
	}
}

func TestGenerateAcceptsMatchingShape(t *testing.T) {
	body := `{"questions":[{"question":"Match the animals","pairsCount":2,
		"left":{"1":"cat","2":"dog"},"right":{"A":"perro","B":"gato"},
		"answer":{"1":"B","2":"A"},"difficulty":"easy"}]}`
	p := newPipeline(&fakeGen{body: body}, time.Second)
	got := p.Generate(context.Background(), Request{Count: 1, FormatSpec: "matching pairs"})
	if len(got) != 1 || got[0].Shape() != ShapeMatching {
		t.Fatalf("expected one matching question, got %+v", got)
	}
	b, err := json.Marshal(got[0])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(b), `"pairsCount":2`) {
		t.Fatalf("matching question should encode flat, got %s", b)
	}
}

func TestFreeform(t *testing.T) {
	gen := &fakeGen{text: "a dinosaur fact"}
	p := newPipeline(gen, time.Second)
	out, err := p.Freeform(context.Background(), "tell me a fact", map[string]any{"gameId": "dino-dash"})
	if err != nil || out != "a dinosaur fact" {
		t.Fatalf("unexpected freeform result %q, %v", out, err)
	}
	if !strings.Contains(gen.lastPrompt(), "gameId: dino-dash") {
		t.Fatal("freeform prompt should include the game context")
	}
	if _, err := p.Freeform(context.Background(), "  ", nil); !errors.Is(err, ErrEmptyPrompt) {
		t.Fatalf("expected ErrEmptyPrompt, got %v", err)
	}
}

func TestGenerateDropsMasteredLookalikeOfRequired(t *testing.T) {
	body := `{"questions":[
 {"question":"15+3","answers":["16","17","18","19"],"correctAnswerIndex":2},
 {"question":"5+3","answers":["6","7","8","9"],"correctAnswerIndex":2}
]}`
	p := newPipeline(&fakeGen{body: body}, time.Second)
	history := []HistoryEntry{{Question: "15+3", WasCorrect: true}}
	got := p.Generate(context.Background(), Request{Count: 2, RequiredQuestions: "5+3", History: history})
	if len(got) != 1 || got[0].Text() != "5+3" {
		t.Fatalf("expected only the required 5+3, got %d items", len(got))
	}
}
