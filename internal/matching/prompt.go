package matching

import (
	"fmt"
	"strings"

	"github.com/kiliankoe/playtutor/internal/catalog"
)

func buildPrompt(c *catalog.Catalog, problemSpec, userSpec string) string {
	var sb strings.Builder
	sb.WriteString("Rank educational games for a learner.\n\n")
	sb.WriteString(fmt.Sprintf("Problem: %s\n", strings.TrimSpace(problemSpec)))
	sb.WriteString(fmt.Sprintf("Learner: %s\n\n", strings.TrimSpace(userSpec)))

	sb.WriteString("## Games\n")
	for _, g := range c.All() {
		sb.WriteString(fmt.Sprintf("- id: %s\n  title: %s\n  styles: %s\n", g.ID, g.Title, strings.Join(g.Styles, ", ")))
		if len(g.Topics) > 0 {
			sb.WriteString(fmt.Sprintf("  topics: %s\n", strings.Join(g.Topics, ", ")))
		}
		if len(g.Levels) > 0 {
			sb.WriteString(fmt.Sprintf("  levels: %s\n", strings.Join(g.Levels, ", ")))
		}
		sb.WriteString(fmt.Sprintf("  description: %s\n", g.Description))
	}

	sb.WriteString("\n## Scoring\n")
	sb.WriteString("Give every game one matchScore between 0 and 1, combining:\n")
	sb.WriteString("- 0.5: how well the game's answer format fits the kind of question in the problem\n")
	sb.WriteString("- 0.25: whether the game suits the learner's grade or level\n")
	sb.WriteString("- 0.25: whether one of the game's styles matches what the learner likes\n")
	sb.WriteString(fmt.Sprintf("Games that clearly do not fit score below %.1f.\n", MinScore))

	sb.WriteString("\n## Output\n")
	sb.WriteString(`Return {"results": [...]} with one item per game:
{"gameId": "<id>", "matchScore": 0.0, "selectedStyle": "<one of the game's styles>",
 "questionSpec": "<exact question type and difficulty for this learner>",
 "requiredQuestions": "<questions from the problem that must appear, one per line, or empty>",
 "name": "<short fun game name>", "message": "<one friendly sentence inviting the learner to play>"}`)
	sb.WriteString("\n")
	return sb.String()
}
