package game

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ExportResult appends a readable summary of a finished session to filename.
func ExportResult(r Result, filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	fileExists := false
	if _, err := os.Stat(filename); err == nil {
		fileExists = true
	}

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var sb strings.Builder
	if fileExists {
		sb.WriteString("\n") // spacing between sessions
	}
	title := r.Match.Name
	if title == "" {
		title = r.Match.GameID
	}
	sb.WriteString(fmt.Sprintf("PlayTutor Session %s - %s\n", r.SessionID, title))
	sb.WriteString(fmt.Sprintf("Closed: %s (%s)\n", r.ClosedAt.Local().Format("2006-01-02 15:04:05"), r.Cause))
	sb.WriteString(strings.Repeat("=", 50) + "\n")
	sb.WriteString(fmt.Sprintf("Game: %s, style %s, match score %.2f\n", r.Stats.GameID, r.Stats.SelectedStyle, r.Match.MatchScore))
	if r.Match.QuestionSpec != "" {
		sb.WriteString(fmt.Sprintf("Questions: %s\n", r.Match.QuestionSpec))
	}

	st := r.Stats
	sb.WriteString(fmt.Sprintf("\nAttempted: %d, correct: %d, wrong: %d\n", st.QuestionsAttempted, st.CorrectAnswers, st.WrongAnswers))
	if st.QuestionsAttempted > 0 {
		sb.WriteString(fmt.Sprintf("Accuracy: %d%%\n", accuracy(st)))
	}
	if d := playTime(st); d > 0 {
		sb.WriteString(fmt.Sprintf("Time played: %s\n", d))
	}

	if len(r.History) > 0 {
		sb.WriteString("\nQuestions:\n")
		sb.WriteString(strings.Repeat("-", 40) + "\n")
		for i, h := range r.History {
			mark := "x"
			if h.WasCorrect {
				mark = "ok"
			}
			chosen := ""
			if h.ChosenIndex >= 0 && h.ChosenIndex < len(h.Answers) {
				chosen = h.Answers[h.ChosenIndex]
			}
			sb.WriteString(fmt.Sprintf("%d. [%s] %s", i+1, mark, h.Question))
			if chosen != "" {
				sb.WriteString(fmt.Sprintf(" -> %q", chosen))
			}
			sb.WriteString("\n")
		}
	}
	sb.WriteString(strings.Repeat("=", 50) + "\n")

	if _, err := file.WriteString(sb.String()); err != nil {
		return fmt.Errorf("failed to write to file: %w", err)
	}
	return nil
}

func accuracy(st Stats) int {
	if st.Accuracy > 0 || st.QuestionsAttempted == 0 {
		return st.Accuracy
	}
	return st.CorrectAnswers * 100 / st.QuestionsAttempted
}

func playTime(st Stats) time.Duration {
	if st.TimeSpent > 0 {
		return time.Duration(st.TimeSpent) * time.Second
	}
	if st.EndTime != nil && st.StartTime > 0 && *st.EndTime > st.StartTime {
		return (time.Duration(*st.EndTime-st.StartTime) * time.Millisecond).Round(time.Second)
	}
	return 0
}
