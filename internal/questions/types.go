package questions

import (
	"encoding/json"
	"errors"
	"fmt"
)

type Shape string

const (
	ShapeMultipleChoice Shape = "multiple-choice"
	ShapeMatching       Shape = "matching"
)

var ErrUnknownShape = errors.New("question matches no known shape")

type MultipleChoice struct {
	Question           string   `json:"question" validate:"required"`
	Answers            []string `json:"answers" validate:"len=4,dive,required"`
	CorrectAnswerIndex int      `json:"correctAnswerIndex" validate:"min=0,max=3"`
}

// Matching pairs left items with right items. Answer maps left keys to right keys.
type Matching struct {
	Question   string            `json:"question" validate:"required"`
	PairsCount int               `json:"pairsCount" validate:"min=1"`
	Left       map[string]string `json:"left" validate:"min=1,dive,required"`
	Right      map[string]string `json:"right" validate:"min=1,dive,required"`
	Answer     map[string]string `json:"answer" validate:"min=1"`
	Difficulty string            `json:"difficulty" validate:"required"`
}

// Question holds exactly one of the accepted shapes.
type Question struct {
	MultipleChoice *MultipleChoice
	Matching       *Matching
}

func (q Question) Shape() Shape {
	if q.Matching != nil {
		return ShapeMatching
	}
	return ShapeMultipleChoice
}

func (q Question) Text() string {
	switch {
	case q.Matching != nil:
		return q.Matching.Question
	case q.MultipleChoice != nil:
		return q.MultipleChoice.Question
	}
	return ""
}

func (q Question) MarshalJSON() ([]byte, error) {
	switch {
	case q.Matching != nil:
		return json.Marshal(q.Matching)
	case q.MultipleChoice != nil:
		return json.Marshal(q.MultipleChoice)
	}
	return nil, ErrUnknownShape
}

func (q *Question) UnmarshalJSON(b []byte) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(b, &probe); err != nil {
		return err
	}
	_, hasPairs := probe["pairsCount"]
	_, hasLeft := probe["left"]
	_, hasAnswers := probe["answers"]
	switch {
	case hasPairs || hasLeft:
		var m Matching
		if err := json.Unmarshal(b, &m); err != nil {
			return fmt.Errorf("matching question: %w", err)
		}
		*q = Question{Matching: &m}
	case hasAnswers:
		var mc MultipleChoice
		if err := json.Unmarshal(b, &mc); err != nil {
			return fmt.Errorf("multiple choice question: %w", err)
		}
		*q = Question{MultipleChoice: &mc}
	default:
		return ErrUnknownShape
	}
	return nil
}

// HistoryEntry is one answered question as reported by the game.
type HistoryEntry struct {
	Question     string   `json:"question"`
	Answers      []string `json:"answers,omitempty"`
	CorrectIndex int      `json:"correctIndex"`
	ChosenIndex  int      `json:"chosenIndex"`
	WasCorrect   bool     `json:"wasCorrect"`
	Difficulty   string   `json:"difficulty,omitempty"`
}

// Request asks for a batch of questions.
type Request struct {
	GameID            string
	QuestionSpec      string
	RequiredQuestions string
	ProblemSpec       string
	UserSpec          string
	Count             int
	FormatSpec        string
	IsFirstGeneration bool
	History           []HistoryEntry
}
