package questions

import (
	"fmt"
	"sort"
	"strings"
)

const defaultFormatSpec = `Each question is a JSON object:
{"question": "What is 5 + 3?", "answers": ["6", "7", "8", "9"], "correctAnswerIndex": 2}
answers holds exactly 4 options and correctAnswerIndex (0-3) points at the right one.`

func buildQuestionPrompt(req Request, count int, plan Plan) string {
	var sb strings.Builder
	sb.WriteString("Generate questions for an educational mini-game.\n\n")

	sb.WriteString("## Learner\n")
	sb.WriteString(fmt.Sprintf("Working on: %s\n", orDefault(req.ProblemSpec, "general math practice")))
	sb.WriteString(fmt.Sprintf("About the learner: %s\n", orDefault(req.UserSpec, "elementary school student")))
	if req.IsFirstGeneration || len(req.History) == 0 {
		sb.WriteString("This is the first batch for this play session.\n")
	} else {
		sb.WriteString("This is a follow-up batch based on how the learner has done so far.\n")
	}

	sb.WriteString("\n## Questions\n")
	sb.WriteString(fmt.Sprintf("Generate exactly %d questions matching: %q\n", count, orDefault(req.QuestionSpec, "basic arithmetic for elementary students")))

	if len(plan.UnmetRequired) > 0 {
		sb.WriteString("\n## Required questions\nInclude each of these verbatim:\n")
		for _, r := range plan.UnmetRequired {
			sb.WriteString("- " + r + "\n")
		}
	}

	if plan.Answered > 0 {
		sb.WriteString("\n## History\n")
		sb.WriteString(fmt.Sprintf("Answered %d so far; recent accuracy %.0f%%.\n", plan.Answered, plan.RecentAccuracy*100))
		switch plan.Trend {
		case TrendHarder:
			sb.WriteString("Make this batch a bit harder than the previous one.\n")
		case TrendEasier:
			sb.WriteString("Make this batch a bit easier than the previous one.\n")
		default:
			sb.WriteString("Keep the difficulty about the same.\n")
		}
		if len(plan.Mastered) > 0 {
			sb.WriteString("Do not ask these again, they were answered correctly:\n")
			for _, q := range plan.Mastered {
				sb.WriteString("- " + q + "\n")
			}
		}
		if len(plan.Missed) > 0 {
			sb.WriteString("These were missed; they may come back later with different options and order:\n")
			for _, q := range plan.Missed {
				sb.WriteString("- " + q + "\n")
			}
		}
	}

	sb.WriteString("\n## Output\n")
	sb.WriteString(orDefault(req.FormatSpec, defaultFormatSpec))
	sb.WriteString(fmt.Sprintf("\nAll questions use the same shape. Return {\"questions\": [...]} with %d items.\n", count))
	return sb.String()
}

func buildFreeformPrompt(prompt string, gameContext map[string]any) string {
	var sb strings.Builder
	sb.WriteString("You are helping generate educational content for a game.\n")
	if len(gameContext) > 0 {
		keys := make([]string, 0, len(gameContext))
		for k := range gameContext {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString("\nGame context:\n")
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("- %s: %v\n", k, gameContext[k]))
		}
	}
	sb.WriteString("\nRequest: ")
	sb.WriteString(prompt)
	sb.WriteString("\n\nIf asked for JSON, reply with valid JSON only.")
	return sb.String()
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
