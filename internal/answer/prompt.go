package answer

import (
	"fmt"
	"strings"

	"github.com/dgallion1/dealmap/internal/docmap"
)

// SystemPrompt frames the completion as an evidence-bound analyst answer.
const SystemPrompt = `You are a credit agreement ops analyst. Use only provided evidence. Cite anchors in square brackets. If unresolved, say exactly what is unresolved.`

const promptEvidence = 8

// BuildPrompt renders the user prompt: the question, up to eight evidence
// lines and the support check outcome.
func BuildPrompt(question string, evidence []docmap.Quote, check Support) string {
	var sb strings.Builder
	sb.WriteString("Question: ")
	sb.WriteString(question)
	sb.WriteString("\n\nEvidence:\n")
	for i, q := range evidence {
		if i == promptEvidence {
			break
		}
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(fmt.Sprintf("[%s] page %d: %s", q.Anchor, q.Page, q.Excerpt))
	}
	sb.WriteString("\n\n")
	sb.WriteString(fmt.Sprintf("Consistency check: %s (%s)\n", check.Status, formatScore(check.Score)))
	return sb.String()
}
